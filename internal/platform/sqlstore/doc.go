// Package sqlstore implements the durable task queue and the result store
// on database/sql. PostgreSQL (via pgx) is the production backend; SQLite
// (via modernc.org/sqlite) serves single-node deployments and tests. Both
// share the same queries apart from the claim lock clause and time encoding.
package sqlstore
