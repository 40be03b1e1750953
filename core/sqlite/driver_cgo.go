//go:build cgo_sqlite

// Build with -tags cgo_sqlite and CGO_ENABLED=1 to use mattn/go-sqlite3.
package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
)

var driver = driverInfo{
	Info: Info{
		Name:    "sqlite3",
		Kind:    "cgo",
		Package: "github.com/mattn/go-sqlite3",
	},
	busyTimeout: "_busy_timeout=5000",
}
