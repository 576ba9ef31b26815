// Package domain defines the assessment entities shared by the gateway,
// the task queue and the result store: the submitted AssessmentInput, the
// Session it belongs to, and the ToolResult produced for it. It also holds
// the error taxonomy the rest of the application classifies against.
package domain
