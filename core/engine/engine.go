// Package engine assembles the cross-reference index, the curated parallel
// database and the correlator from their dataset files.
package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/JuniperXref/core/dataset"
	"github.com/FocuswithJustin/JuniperXref/core/errors"
	"github.com/FocuswithJustin/JuniperXref/core/parallels"
	"github.com/FocuswithJustin/JuniperXref/core/sqlite"
	"github.com/FocuswithJustin/JuniperXref/core/xref"
	"github.com/FocuswithJustin/JuniperXref/internal/logging"
	"github.com/FocuswithJustin/JuniperXref/internal/snapshot"
)

// Config names the dataset files. Paths ending in .db, .sqlite or .sqlite3
// are read as snapshots written by the export command.
type Config struct {
	CrossRefPath  string
	ParallelsPath string

	// License is reported in result citations.
	License string
}

// Validate checks that both dataset paths are set.
func (c Config) Validate() error {
	if c.CrossRefPath == "" {
		return errors.NewValidation("crossrefs", "", "path is required")
	}
	if c.ParallelsPath == "" {
		return errors.NewValidation("parallels", "", "path is required")
	}
	return nil
}

// Engine holds the loaded, read-only query structures.
type Engine struct {
	Index      *xref.Index
	Database   *parallels.Database
	Correlator *parallels.Correlator
	Citation   parallels.Citation
}

// Stats summarizes what an engine loaded.
type Stats struct {
	CrossReferences xref.Stats         `json:"cross_references"`
	CuratedEntries  int                `json:"curated_entries"`
	DroppedEntries  int                `json:"dropped_entries"`
	Citation        parallels.Citation `json:"citation"`

	// Revision joins the short BLAKE3 digests of the source files, so two
	// deployments can tell whether they serve the same data.
	Revision string `json:"revision,omitempty"`
}

// New loads both datasets concurrently. Any failure aborts construction;
// the engine is unusable without its data.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		idx          *xref.Index
		pdb          *parallels.Database
		fingerprints = make([]dataset.Fingerprint, 2)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		var err error
		if sqlite.IsSnapshot(cfg.CrossRefPath) {
			idx, err = withSnapshot(gctx, cfg.CrossRefPath, snapshot.LoadIndex)
		} else {
			idx, err = xref.Load(cfg.CrossRefPath)
		}
		if err != nil {
			return err
		}
		stats := idx.Stats()
		logging.DatasetLoaded("crossrefs", cfg.CrossRefPath, stats.Edges, time.Since(start),
			"from_verses", stats.FromVerses, "skipped_rows", stats.SkippedRows)

		fingerprints[0], err = dataset.Hash(cfg.CrossRefPath)
		return err
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		if sqlite.IsSnapshot(cfg.ParallelsPath) {
			pdb, err = withSnapshot(gctx, cfg.ParallelsPath, snapshot.LoadDatabase)
		} else {
			pdb, err = parallels.LoadDatabase(cfg.ParallelsPath)
		}
		if err != nil {
			return err
		}
		logging.DatasetLoaded("parallels", cfg.ParallelsPath, pdb.Len(), time.Since(start),
			"version", pdb.Version, "dropped", pdb.Dropped())

		fingerprints[1], err = dataset.Hash(cfg.ParallelsPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cit := parallels.Citation{
		Description: pdb.Description,
		Version:     pdb.Version,
		License:     cfg.License,
		Sources:     fingerprints,
	}
	return NewFromParts(idx, pdb, cit), nil
}

// NewFromParts wraps already-built structures.
func NewFromParts(idx *xref.Index, pdb *parallels.Database, cit parallels.Citation) *Engine {
	return &Engine{
		Index:      idx,
		Database:   pdb,
		Correlator: parallels.NewCorrelator(pdb, idx, parallels.WithCitation(cit)),
		Citation:   cit,
	}
}

// Stats reports dataset sizes and provenance.
func (e *Engine) Stats() Stats {
	s := Stats{Citation: e.Citation}
	shorts := make([]string, 0, len(e.Citation.Sources))
	for _, fp := range e.Citation.Sources {
		shorts = append(shorts, fp.Short())
	}
	s.Revision = strings.Join(shorts, "-")
	if e.Index != nil {
		s.CrossReferences = e.Index.Stats()
	}
	if e.Database != nil {
		s.CuratedEntries = e.Database.Len()
		s.DroppedEntries = e.Database.Dropped()
	}
	return s
}

func withSnapshot[T any](ctx context.Context, path string, load func(context.Context, *sql.DB) (T, error)) (T, error) {
	db, err := sqlite.OpenReadOnly(ctx, path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer db.Close()

	v, err := load(ctx, db)
	if err != nil {
		return v, errors.Loading(path, err)
	}
	return v, nil
}
