// Package sqlstore implements the store interfaces on database/sql.
//
// The same SQL runs on PostgreSQL (through the pgx stdlib driver) and on
// SQLite (through the pure-Go modernc driver, used for local runs and tests).
// Queries stick to the common subset: $N placeholders, RETURNING, partial
// indexes, and timestamps passed as parameters rather than computed with
// NOW(). Every task status change is a conditional UPDATE guarded on the
// status the caller expects.
package sqlstore
