package parallels

import (
	"sort"
	"strings"

	"github.com/FocuswithJustin/JuniperXref/core/dataset"
	"github.com/FocuswithJustin/JuniperXref/core/ref"
	"github.com/FocuswithJustin/JuniperXref/core/xref"
)

// Augmentation parameters for cross-reference derived parallels.
const (
	AugmentMinVotes   = 10
	AugmentMaxResults = 20
	MinConfidence     = 50

	// DefaultMaxParallels is used when Options.MaxParallels is not positive.
	DefaultMaxParallels = 10
)

// Passage is one correlated parallel in a result list.
type Passage struct {
	Reference      string       `json:"reference"`
	Relationship   Relationship `json:"relationship"`
	Confidence     int          `json:"confidence"`
	Notes          string       `json:"notes,omitempty"`
	UniqueElements []string     `json:"uniqueElements,omitempty"`
}

// Options control a FindParallels query. Start from DefaultOptions; the
// zero value disables cross-reference augmentation.
type Options struct {
	// Mode restricts results to one relationship. Empty or ModeAuto accepts all.
	Mode Relationship

	MaxParallels int

	// UseCrossReferences enables augmentation from the cross-reference index.
	UseCrossReferences bool
}

// DefaultOptions returns auto mode, ten results and augmentation enabled.
func DefaultOptions() Options {
	return Options{
		Mode:               ModeAuto,
		MaxParallels:       DefaultMaxParallels,
		UseCrossReferences: true,
	}
}

func (o Options) accepts(r Relationship) bool {
	return o.Mode == "" || o.Mode == ModeAuto || o.Mode == r
}

// Citation names the datasets a result was derived from.
type Citation struct {
	Description string                `json:"description,omitempty"`
	Version     string                `json:"version,omitempty"`
	License     string                `json:"license,omitempty"`
	Sources     []dataset.Fingerprint `json:"sources,omitempty"`
}

// Result wraps a parallel list with the query and its provenance.
type Result struct {
	Primary   string    `json:"primary"`
	Key       string    `json:"key"`
	Entry     *Entry    `json:"entry,omitempty"`
	Parallels []Passage `json:"parallels"`
	Citation  Citation  `json:"citation"`
}

// Analyze compares the unique details of the accounts in r.
func (r Result) Analyze() Analysis {
	return Analyze(r.Primary, r.Entry, r.Parallels)
}

// Correlator merges curated parallels with classified cross-references.
// It is read-only after construction and safe for concurrent use.
type Correlator struct {
	db       *Database
	idx      *xref.Index
	rules    []Rule
	citation Citation
}

// CorrelatorOption configures a Correlator.
type CorrelatorOption func(*Correlator)

// WithRules replaces the classification rules.
func WithRules(rules []Rule) CorrelatorOption {
	return func(c *Correlator) {
		c.rules = rules
	}
}

// WithCitation sets the citation attached to every Find result.
func WithCitation(cit Citation) CorrelatorOption {
	return func(c *Correlator) {
		c.citation = cit
	}
}

// NewCorrelator creates a correlator over db and idx. Either may be nil, in
// which case that source contributes nothing.
func NewCorrelator(db *Database, idx *xref.Index, opts ...CorrelatorOption) *Correlator {
	c := &Correlator{
		db:    db,
		idx:   idx,
		rules: DefaultRules(),
	}
	if db != nil {
		c.citation = Citation{Description: db.Description, Version: db.Version}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Citation returns the citation attached to results.
func (c *Correlator) Citation() Citation {
	return c.citation
}

// FindParallels returns the parallels of reference ordered by confidence,
// highest first. A reference with no known parallels yields an empty slice.
func (c *Correlator) FindParallels(reference string, opts Options) []Passage {
	_, _, passages := c.correlate(reference, opts)
	return passages
}

// Find is FindParallels with the normalized query, the matched curated
// entry and citation metadata.
func (c *Correlator) Find(reference string, opts Options) Result {
	key, entry, passages := c.correlate(reference, opts)
	return Result{
		Primary:   ref.NormalizeString(reference),
		Key:       key,
		Entry:     entry,
		Parallels: passages,
		Citation:  c.citation,
	}
}

func (c *Correlator) correlate(reference string, opts Options) (string, *Entry, []Passage) {
	if opts.MaxParallels <= 0 {
		opts.MaxParallels = DefaultMaxParallels
	}

	primary := ref.Normalize(reference)
	key := ref.ToKey(primary)

	entry := c.curated(key, primary)
	if entry != nil && !opts.accepts(entry.Relationship) {
		entry = nil
	}

	var merged []Passage
	seen := map[string]bool{
		dedupKey(primary.String()): true,
	}
	add := func(p Passage) {
		k := dedupKey(p.Reference)
		if seen[k] {
			return
		}
		seen[k] = true
		merged = append(merged, p)
	}

	if entry != nil {
		for _, k := range entry.Parallels {
			add(Passage{
				Reference:    ref.NormalizeString(ref.FromKey(k)),
				Relationship: entry.Relationship,
				Confidence:   entry.Confidence,
				Notes:        entry.Event,
			})
		}
	}

	if opts.UseCrossReferences && c.idx != nil {
		for _, p := range c.augment(reference, primary, opts) {
			add(p)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	if len(merged) > opts.MaxParallels {
		merged = merged[:opts.MaxParallels]
	}

	if entry != nil && len(entry.UniqueDetails) > 0 {
		for i := range merged {
			book := strings.ToLower(ref.Normalize(merged[i].Reference).Book)
			if details := entry.UniqueDetails[book]; len(details) > 0 {
				merged[i].UniqueElements = append([]string(nil), details...)
			}
		}
	}

	if merged == nil {
		merged = []Passage{}
	}
	return key, entry, merged
}

// curated finds the entry for key, falling back to a chapter match when the
// query names a chapter without a verse.
func (c *Correlator) curated(key string, primary ref.Ref) *Entry {
	if c.db == nil {
		return nil
	}
	if e, ok := c.db.entries[key]; ok {
		return &e
	}
	if primary.IsChapterOnly() {
		if _, e, ok := c.db.MatchChapter(key); ok {
			return &e
		}
	}
	return nil
}

// augment classifies well-voted cross-references of the query. Results that
// fall below MinConfidence or outside the requested mode are dropped here.
func (c *Correlator) augment(reference string, primary ref.Ref, opts Options) []Passage {
	res := c.idx.Lookup(reference, xref.LookupOptions{
		MinVotes:   AugmentMinVotes,
		MaxResults: AugmentMaxResults,
	})

	var out []Passage
	for _, e := range res.References {
		to := ref.ParseSpan(e.Reference).Start
		rel, conf, ok := classify(c.rules, primary, to, e.Votes)
		if !ok || conf < MinConfidence || !opts.accepts(rel) {
			continue
		}
		out = append(out, Passage{
			Reference:    e.Reference,
			Relationship: rel,
			Confidence:   conf,
		})
	}
	return out
}

// dedupKey compares references ignoring case and whitespace.
func dedupKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
