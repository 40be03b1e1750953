// Package snapshot stores a loaded cross-reference index and curated
// database in a single SQLite file, and rebuilds them from it.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/FocuswithJustin/JuniperXref/core/errors"
	"github.com/FocuswithJustin/JuniperXref/core/parallels"
	"github.com/FocuswithJustin/JuniperXref/core/xref"
)

// SchemaVersion is written to the meta table and checked on load.
const SchemaVersion = "1"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS cross_references (
		from_ref TEXT NOT NULL,
		to_ref   TEXT NOT NULL,
		votes    INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (from_ref, position)
	)`,
	`CREATE TABLE IF NOT EXISTS parallels (
		key            TEXT PRIMARY KEY,
		event          TEXT NOT NULL,
		relationship   TEXT NOT NULL,
		confidence     INTEGER NOT NULL,
		notes          TEXT NOT NULL,
		parallels_json TEXT NOT NULL,
		unique_json    TEXT NOT NULL
	)`,
}

// Export replaces the snapshot contents of db with idx and pdb in one
// transaction. Either source may be nil.
func Export(ctx context.Context, db *sql.DB, idx *xref.Index, pdb *parallels.Database) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, table := range []string{"meta", "cross_references", "parallels"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	meta := map[string]string{
		"schema_version": SchemaVersion,
		"exported_at":    time.Now().UTC().Format(time.RFC3339),
	}

	if idx != nil {
		if err := exportIndex(ctx, tx, idx); err != nil {
			return err
		}
		meta["skipped_rows"] = strconv.Itoa(idx.Stats().SkippedRows)
	}
	if pdb != nil {
		if err := exportDatabase(ctx, tx, pdb); err != nil {
			return err
		}
		meta["parallels_description"] = pdb.Description
		meta["parallels_version"] = pdb.Version
	}

	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func exportIndex(ctx context.Context, tx *sql.Tx, idx *xref.Index) error {
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO cross_references (from_ref, to_ref, votes, position) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare cross_references: %w", err)
	}
	defer stmt.Close()

	var insertErr error
	idx.Each(func(from string, edges []xref.Edge) {
		if insertErr != nil {
			return
		}
		for i, e := range edges {
			if _, err := stmt.ExecContext(ctx, from, e.Reference(), e.Votes, i); err != nil {
				insertErr = fmt.Errorf("insert cross reference %s: %w", from, err)
				return
			}
		}
	})
	return insertErr
}

func exportDatabase(ctx context.Context, tx *sql.Tx, pdb *parallels.Database) error {
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO parallels (key, event, relationship, confidence, notes, parallels_json, unique_json) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare parallels: %w", err)
	}
	defer stmt.Close()

	var insertErr error
	pdb.Each(func(key string, e parallels.Entry) {
		if insertErr != nil {
			return
		}
		list, err := json.Marshal(e.Parallels)
		if err != nil {
			insertErr = err
			return
		}
		unique, err := json.Marshal(e.UniqueDetails)
		if err != nil {
			insertErr = err
			return
		}
		if _, err := stmt.ExecContext(ctx, key, e.Event, string(e.Relationship), e.Confidence, e.Notes, string(list), string(unique)); err != nil {
			insertErr = fmt.Errorf("insert parallel %s: %w", key, err)
		}
	})
	return insertErr
}

// Meta reads the snapshot meta table.
func Meta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, errors.NewParse("snapshot", "", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.NewParse("snapshot", "", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewParse("snapshot", "", err)
	}
	if meta["schema_version"] != SchemaVersion {
		return nil, errors.NewParse("snapshot", "", fmt.Errorf("unsupported schema version %q", meta["schema_version"]))
	}
	return meta, nil
}

// LoadIndex rebuilds a cross-reference index from a snapshot. Edge order
// within each verse is preserved.
func LoadIndex(ctx context.Context, db *sql.DB) (*xref.Index, error) {
	meta, err := Meta(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT from_ref, to_ref, votes FROM cross_references ORDER BY from_ref, position")
	if err != nil {
		return nil, errors.NewParse("snapshot", "", err)
	}
	defer rows.Close()

	b := xref.NewBuilder()
	for rows.Next() {
		var from, to string
		var votes int
		if err := rows.Scan(&from, &to, &votes); err != nil {
			return nil, errors.NewParse("snapshot", "", err)
		}
		b.Add(from, to, votes)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewParse("snapshot", "", err)
	}

	skipped, _ := strconv.Atoi(meta["skipped_rows"])
	for range skipped {
		b.Skip()
	}
	return b.Index(), nil
}

// LoadDatabase rebuilds the curated database from a snapshot.
func LoadDatabase(ctx context.Context, db *sql.DB) (*parallels.Database, error) {
	meta, err := Meta(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT key, event, relationship, confidence, notes, parallels_json, unique_json FROM parallels ORDER BY key")
	if err != nil {
		return nil, errors.NewParse("snapshot", "", err)
	}
	defer rows.Close()

	entries := make(map[string]parallels.Entry)
	for rows.Next() {
		var (
			key, rel, list, unique string
			e                      parallels.Entry
		)
		if err := rows.Scan(&key, &e.Event, &rel, &e.Confidence, &e.Notes, &list, &unique); err != nil {
			return nil, errors.NewParse("snapshot", "", err)
		}
		e.Relationship = parallels.Relationship(rel)
		if err := json.Unmarshal([]byte(list), &e.Parallels); err != nil {
			return nil, errors.NewParse("snapshot", "", fmt.Errorf("parallels of %s: %w", key, err))
		}
		if err := json.Unmarshal([]byte(unique), &e.UniqueDetails); err != nil {
			return nil, errors.NewParse("snapshot", "", fmt.Errorf("unique details of %s: %w", key, err))
		}
		entries[key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewParse("snapshot", "", err)
	}

	return parallels.NewDatabase(meta["parallels_description"], meta["parallels_version"], entries), nil
}
