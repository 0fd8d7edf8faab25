// Package testdb provides database fixtures for tests.
//
// By default every call to Open returns a fresh, fully migrated in-memory
// SQLite database, so tests can run in parallel without external services.
// When TASKFORGE_TEST_DATABASE_URL is set, tests run against that PostgreSQL
// database instead; tables are truncated before each test and tests within a
// package are serialized. Run such suites with `go test -p 1`.
package testdb
