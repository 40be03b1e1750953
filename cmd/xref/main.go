// Command xref queries Bible cross-references and parallel passages from the
// command line, exports SQLite snapshots and runs the REST API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/JuniperXref/core/engine"
	"github.com/FocuswithJustin/JuniperXref/core/errors"
	"github.com/FocuswithJustin/JuniperXref/core/parallels"
	"github.com/FocuswithJustin/JuniperXref/core/ref"
	"github.com/FocuswithJustin/JuniperXref/core/sqlite"
	"github.com/FocuswithJustin/JuniperXref/core/xref"
	"github.com/FocuswithJustin/JuniperXref/internal/api"
	"github.com/FocuswithJustin/JuniperXref/internal/config"
	"github.com/FocuswithJustin/JuniperXref/internal/logging"
	"github.com/FocuswithJustin/JuniperXref/internal/metrics"
	"github.com/FocuswithJustin/JuniperXref/internal/snapshot"
)

const version = "0.1.0"

// Exit codes.
const (
	exitFailure = 1
	exitUsage   = 2
	exitDataset = 3
)

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// Globals are flags shared by every command.
type Globals struct {
	Config        string `name:"config" short:"c" help:"YAML configuration file" type:"path" env:"XREF_CONFIG"`
	CrossRefsPath string `name:"crossrefs" help:"Cross-reference dataset (.txt, .txt.xz, OSIS .xml or SQLite snapshot)" type:"path"`
	ParallelsPath string `name:"parallels" help:"Curated parallels (.json or SQLite snapshot)" type:"path"`
	LogLevel      string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat     string `name:"log-format" help:"Log format (json, text)"`
}

// CLI defines the command-line interface for xref.
type CLI struct {
	Globals

	Normalize NormalizeCmd `cmd:"" help:"Normalize citations to canonical form"`
	Lookup    LookupCmd    `cmd:"" help:"List cross-references for a verse"`
	Chapter   ChapterCmd   `cmd:"" help:"Rank the verses of a chapter by cross-reference count"`
	Parallels ParallelsCmd `cmd:"" help:"Find parallel passages for a reference"`
	Stats     StatsCmd     `cmd:"" help:"Print dataset statistics and citation"`
	Export    ExportCmd    `cmd:"" help:"Export both datasets to a SQLite snapshot"`
	Serve     ServeCmd     `cmd:"" help:"Start REST API server"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// loadConfig reads the config file and applies flag overrides on top.
func (g *Globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.CrossRefsPath != "" {
		cfg.Data.CrossRefs = g.CrossRefsPath
	}
	if g.ParallelsPath != "" {
		cfg.Data.Parallels = g.ParallelsPath
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Logging.Format = g.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEngine loads the configuration and both datasets.
func (g *Globals) loadEngine(ctx context.Context) (*engine.Engine, *config.Config, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(ctx, cfg.Engine())
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NormalizeCmd normalizes citations without loading any dataset.
type NormalizeCmd struct {
	Refs []string `arg:"" name:"ref" help:"Citations to normalize"`
}

func (c *NormalizeCmd) Run() error {
	out := make([]api.NormalizeResult, 0, len(c.Refs))
	for _, raw := range c.Refs {
		r := ref.Normalize(raw)
		out = append(out, api.NormalizeResult{
			Input:      raw,
			Reference:  r,
			Normalized: r.String(),
			Key:        ref.ToKey(r),
			Known:      r.Known(),
		})
	}
	return printJSON(out)
}

// LookupCmd lists the cross-references of one verse.
type LookupCmd struct {
	Ref      string `arg:"" help:"Verse reference"`
	MinVotes int    `name:"min-votes" help:"Minimum votes" default:"0"`
	Max      int    `help:"Maximum results" default:"5"`
}

func (c *LookupCmd) Run(g *Globals) error {
	eng, _, err := g.loadEngine(context.Background())
	if err != nil {
		return err
	}
	return printJSON(eng.Index.Lookup(c.Ref, xref.LookupOptions{
		MinVotes:   c.MinVotes,
		MaxResults: c.Max,
	}))
}

// ChapterCmd ranks a chapter's verses by cross-reference count.
type ChapterCmd struct {
	Ref string `arg:"" help:"Chapter reference, e.g. \"Romans 8\""`
}

func (c *ChapterCmd) Run(g *Globals) error {
	eng, _, err := g.loadEngine(context.Background())
	if err != nil {
		return err
	}
	verses := eng.Index.Chapter(c.Ref)
	if verses == nil {
		verses = []xref.VerseSummary{}
	}
	return printJSON(api.ChapterResult{Reference: ref.NormalizeString(c.Ref), Verses: verses})
}

// ParallelsCmd finds parallel passages.
type ParallelsCmd struct {
	Ref       string `arg:"" help:"Primary reference"`
	Mode      string `help:"Relationship filter (auto, synoptic, quotation, allusion, thematic)" default:"auto"`
	Max       int    `help:"Maximum parallels" default:"10"`
	CrossRefs bool   `name:"use-crossrefs" help:"Augment curated results from cross-references" default:"true" negatable:""`
}

func (c *ParallelsCmd) Run(g *Globals) error {
	mode, err := parallels.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	eng, _, err := g.loadEngine(context.Background())
	if err != nil {
		return err
	}

	res := api.ParallelsResult{Result: eng.Correlator.Find(c.Ref, parallels.Options{
		Mode:               mode,
		MaxParallels:       c.Max,
		UseCrossReferences: c.CrossRefs,
	})}
	if res.Entry != nil {
		analysis := res.Analyze()
		res.Analysis = &analysis
	}
	return printJSON(res)
}

// StatsCmd prints what the engine loaded.
type StatsCmd struct{}

func (c *StatsCmd) Run(g *Globals) error {
	eng, _, err := g.loadEngine(context.Background())
	if err != nil {
		return err
	}
	return printJSON(eng.Stats())
}

// ExportCmd writes both datasets to a SQLite snapshot.
type ExportCmd struct {
	Output string `arg:"" help:"Snapshot file to create or replace (.db)" type:"path"`
}

func (c *ExportCmd) Run(g *Globals) error {
	ctx := context.Background()
	eng, _, err := g.loadEngine(ctx)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(c.Output)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	if err := snapshot.Export(ctx, db, eng.Index, eng.Database); err != nil {
		return err
	}
	stats := eng.Stats()
	logging.Info("snapshot exported",
		"path", c.Output,
		"driver", sqlite.Driver().Kind,
		"edges", stats.CrossReferences.Edges,
		"curated_entries", stats.CuratedEntries,
		"duration_ms", time.Since(start).Milliseconds())
	fmt.Fprintf(stdout, "exported %d cross-references and %d curated entries to %s\n",
		stats.CrossReferences.Edges, stats.CuratedEntries, c.Output)
	return nil
}

// ServeCmd starts the REST API server.
type ServeCmd struct {
	Port int `help:"HTTP server port (overrides config)"`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, cfg, err := g.loadEngine(ctx)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}
	api.Version = version
	return api.NewServer(eng, cfg, m).Start(ctx)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "xref version %s (sqlite: %s)\n", version, sqlite.Driver().Kind)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("xref"),
		kong.Description("Bible cross-reference and parallel passage engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report describes err on w and returns the exit code for it: rejected
// input is a usage error, an unloadable dataset is a configuration error.
func report(w io.Writer, err error) int {
	var verr *errors.ValidationError
	switch {
	case errors.As(err, &verr):
		fmt.Fprintf(w, "xref: invalid %s %q: %s\n", verr.Field, verr.Value, verr.Message)
		return exitUsage
	case errors.IsInvalid(err):
		fmt.Fprintf(w, "xref: %v\n", err)
		return exitUsage
	case errors.IsDataset(err):
		fmt.Fprintf(w, "xref: %v\nxref: check --crossrefs and --parallels or the data section of --config\n", err)
		return exitDataset
	}
	fmt.Fprintf(w, "xref: %v\n", err)
	return exitFailure
}
