// Package task orchestrates the task lifecycle: admission under a global
// concurrency cap, the credit debit that pays for a task, handoff to the
// execution backend, resolution of outcomes, the administrative kill
// switch, and reconciliation of tasks whose worker went silent.
//
// Statuses move QUEUED -> PLANNING -> EXECUTING -> SUCCEEDED or FAILED.
// Every write is a conditional update on the task's status, so overlapping
// admission cycles, workers, and administrators can race freely: claims
// never exceed the cap, no task is debited twice, and of two terminal writes
// only the first takes effect.
package task
