// Package store defines the result persistence contract: sessions and
// the single current ToolResult per session. Implementations live in
// internal/platform (SQL and PostgREST backends); an in-memory store is
// provided here for single-process deployments and tests.
package store
