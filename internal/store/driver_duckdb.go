//go:build cgo

package store

// The DuckDB binding is cgo-only; registering it is limited to cgo builds so
// the package still compiles with CGO_ENABLED=0 (SQLite remains available).
import _ "github.com/marcboeker/go-duckdb"
