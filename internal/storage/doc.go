// Package storage persists notification subscriptions.
//
// A subscriber is a chat id opted into one or more categories. Drivers:
//   - "file": JSONL journal compacted into a JSON snapshot
//   - "sqlite": single-file SQLite database (modernc.org/sqlite, no cgo)
//   - "memory": process-local, for tests and dry runs
package storage
