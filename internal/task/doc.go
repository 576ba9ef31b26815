// Package task implements the durable task queue and the worker pool that
// drains it.
//
// Tasks are rows in a TaskStore. Submit inserts a PENDING row and wakes idle
// workers; workers Claim rows under a lease, run the registered Handler under
// a hard timeout and Complete the row as SUCCESS or FAILURE. A Reaper fails
// rows whose lease expired without completion and deletes terminal rows once
// their retention window has passed.
package task
