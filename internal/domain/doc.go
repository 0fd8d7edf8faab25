// Package domain defines the core business entities of the task platform:
// tasks and their typed results, the users and workspaces that own them,
// credit ledger entries, and audit log entries.
//
// Entities carry their own validation but no persistence or orchestration
// logic; those live in the store and task packages respectively.
package domain
