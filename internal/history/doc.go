// Package history implements the append-only durable price log on
// PostgreSQL.
//
// Rows are never updated or deleted. Queries page with offset/limit and
// return rows in ascending observed_at order.
package history
