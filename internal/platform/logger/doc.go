// Package logger configures structured JSON logging with log/slog and
// carries request- and task-scoped loggers through context.Context.
package logger
