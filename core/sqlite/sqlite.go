// Package sqlite opens snapshot databases through whichever SQLite driver the
// binary was built with: modernc.org/sqlite by default, mattn/go-sqlite3
// under the cgo_sqlite build tag.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/JuniperXref/core/errors"
)

// Info describes the compiled-in driver.
type Info struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // "purego" or "cgo"
	Package string `json:"package"`
}

type driverInfo struct {
	Info

	// busyTimeout is the driver's DSN spelling of a 5s busy timeout.
	busyTimeout string
}

// Driver reports the compiled-in driver.
func Driver() Info {
	return driver.Info
}

// dsn builds a file: URI for path in the driver's parameter dialect.
func dsn(path string, readOnly bool) string {
	params := driver.busyTimeout
	if readOnly {
		params = "mode=ro&" + params
	}
	return "file:" + filepath.ToSlash(path) + "?" + params
}

// Open opens path for writing, creating the file if needed.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(driver.Name, dsn(path, false))
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenReadOnly opens an existing snapshot read-only and verifies it can be
// reached. A missing file is a dataset error.
func OpenReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	db, err := sql.Open(driver.Name, dsn(path, true))
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewIO("open", path, err)
	}
	return db, nil
}

// IsSnapshot reports whether path names a SQLite file by its extension.
func IsSnapshot(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}
