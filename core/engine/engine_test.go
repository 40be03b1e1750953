package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/JuniperXref/core/errors"
	"github.com/FocuswithJustin/JuniperXref/core/parallels"
	"github.com/FocuswithJustin/JuniperXref/core/sqlite"
	"github.com/FocuswithJustin/JuniperXref/internal/snapshot"
)

var fixtureConfig = Config{
	CrossRefPath:  filepath.Join("..", "xref", "testdata", "cross_references.txt"),
	ParallelsPath: filepath.Join("..", "parallels", "testdata", "parallels.json"),
	License:       "CC-BY 4.0",
}

func TestNew(t *testing.T) {
	eng, err := New(context.Background(), fixtureConfig)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stats := eng.Stats()
	if stats.CrossReferences.Edges != 15 || stats.CrossReferences.FromVerses != 5 {
		t.Errorf("cross reference stats = %+v", stats.CrossReferences)
	}
	if stats.CuratedEntries != 6 || stats.DroppedEntries != 3 {
		t.Errorf("curated = %d, dropped = %d", stats.CuratedEntries, stats.DroppedEntries)
	}

	cit := eng.Citation
	if cit.License != "CC-BY 4.0" || cit.Version != "1.0-test" {
		t.Errorf("citation = %+v", cit)
	}
	if len(cit.Sources) != 2 {
		t.Fatalf("citation has %d sources, want 2", len(cit.Sources))
	}
	for _, fp := range cit.Sources {
		if len(fp.BLAKE3) != 64 || fp.Size == 0 {
			t.Errorf("incomplete fingerprint %+v", fp)
		}
	}
	wantRev := cit.Sources[0].BLAKE3[:12] + "-" + cit.Sources[1].BLAKE3[:12]
	if stats.Revision != wantRev {
		t.Errorf("Revision = %q, want %q", stats.Revision, wantRev)
	}

	res := eng.Correlator.Find("Isaiah 7:14", parallels.DefaultOptions())
	if len(res.Parallels) == 0 || res.Parallels[0].Reference != "Matthew 1:23" {
		t.Errorf("Isaiah 7:14 parallels = %+v", res.Parallels)
	}
	if res.Citation.License != "CC-BY 4.0" {
		t.Errorf("result citation = %+v", res.Citation)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		dataset bool
	}{
		{
			name: "missing cross references path",
			cfg:  Config{ParallelsPath: fixtureConfig.ParallelsPath},
		},
		{
			name: "missing parallels path",
			cfg:  Config{CrossRefPath: fixtureConfig.CrossRefPath},
		},
		{
			name:    "cross references file absent",
			cfg:     Config{CrossRefPath: "nope.txt", ParallelsPath: fixtureConfig.ParallelsPath},
			dataset: true,
		},
		{
			name:    "parallels file absent",
			cfg:     Config{CrossRefPath: fixtureConfig.CrossRefPath, ParallelsPath: "nope.json"},
			dataset: true,
		},
		{
			name:    "snapshot absent",
			cfg:     Config{CrossRefPath: "nope.db", ParallelsPath: fixtureConfig.ParallelsPath},
			dataset: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := New(context.Background(), tt.cfg)
			if err == nil || eng != nil {
				t.Fatalf("New = %v, %v; want error", eng, err)
			}
			if tt.dataset && !errors.IsDataset(err) {
				t.Errorf("error %v should be a dataset error", err)
			}
			if !tt.dataset && !errors.IsInvalid(err) {
				t.Errorf("error %v should be a validation error", err)
			}
		})
	}
}

func TestNewFromSnapshot(t *testing.T) {
	ctx := context.Background()
	src, err := New(ctx, fixtureConfig)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "xref.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := snapshot.Export(ctx, db, src.Index, src.Database); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	db.Close()

	eng, err := New(ctx, Config{CrossRefPath: path, ParallelsPath: path})
	if err != nil {
		t.Fatalf("New from snapshot failed: %v", err)
	}

	if eng.Index.Stats() != src.Index.Stats() {
		t.Errorf("index stats = %+v, want %+v", eng.Index.Stats(), src.Index.Stats())
	}
	if eng.Database.Len() != src.Database.Len() || eng.Database.Version != "1.0-test" {
		t.Errorf("database = %d entries version %q", eng.Database.Len(), eng.Database.Version)
	}
}
