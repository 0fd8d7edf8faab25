// Package events carries in-process notifications between components that
// must not import each other.
//
// The submission path emits a TaskEvent of type TypeTaskSubmitted after a
// task is persisted; the admission runner subscribes and schedules an
// admission cycle. Delivery is synchronous and best-effort: the periodic
// admission schedule picks up any task whose event was lost.
package events
