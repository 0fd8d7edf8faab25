// Package audit records administrative and system actions in the
// append-only audit log. Recording is best-effort: a failure is logged and
// returned, and callers never undo the action that was being recorded.
package audit
