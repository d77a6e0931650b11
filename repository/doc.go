// Package repository persists buckets and bucket instances with database/sql.
//
// Two dialects are supported: PostgreSQL through the pgx stdlib driver and
// SQLite through the pure-Go modernc driver. Queries are written with '?'
// placeholders and rebound per dialect. Schema changes are goose migrations
// embedded from the migrations package.
//
// Uniqueness of bucket names, bucket root paths and instance root paths is
// enforced by UNIQUE constraints; the stores translate constraint failures
// into the sentinel errors of the interfaces package. State transitions are
// conditional updates, so a bucket can only leave a state it is actually in.
package repository
