// Package service contains the assessment use cases. AssessmentService is
// the request-path side: it validates submissions, enqueues them and reads
// task state and stored results under bounded upstream timeouts.
// AssessmentHandler is the worker side: it evaluates a claimed task and
// writes the outcome through to the result store.
//
// Services receive their queue and store through constructor injection and
// depend only on the interfaces in internal/task and internal/store.
package service
