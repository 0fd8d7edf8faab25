// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the orchestrator, allowing the admission, execution, and kill paths to
// remain independent of specific database technologies. Every mutation of a
// task row is expressed as a conditional update on its status so that
// concurrent callers never overwrite each other's transitions.
package store
