// Package api handles incoming HTTP requests for the assessment gateway and
// the results API: request decoding and validation, status mapping and
// response formatting. Handlers delegate to service.AssessmentService and
// never touch the queue or the result store directly.
package api
