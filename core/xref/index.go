// Package xref provides the vote-weighted cross-reference index.
//
// The index is built once from a flat dataset of (from, to, votes) rows and is
// read-only afterwards. Every from-verse maps to its target edges ordered by
// vote count, highest first; ties keep dataset order.
package xref

import (
	"sort"
	"strings"

	"github.com/FocuswithJustin/JuniperXref/core/ref"
)

// Edge is one community-voted relationship from a verse to a target passage.
type Edge struct {
	// To is the (start of the) target passage.
	To ref.Ref `json:"to"`

	// Through is the end of a target span that crosses a verse boundary
	// written with a book on both sides (e.g., "Ps.148.4-Ps.148.5").
	Through ref.Ref `json:"through,omitzero"`

	// Votes is the community vote count; never negative.
	Votes int `json:"votes"`
}

// Reference renders the target in canonical form.
func (e Edge) Reference() string {
	return ref.Span{Start: e.To, End: e.Through}.String()
}

// Index maps canonical from-verse strings to their ordered edges.
type Index struct {
	edges     map[string][]Edge
	keys      []string // sorted from-verse keys
	edgeCount int
	skipped   int
}

// Stats summarizes an index for diagnostics.
type Stats struct {
	FromVerses  int `json:"from_verses"`
	Edges       int `json:"edges"`
	SkippedRows int `json:"skipped_rows"`
}

// Builder accumulates edges and produces an Index.
// A Builder is not safe for concurrent use.
type Builder struct {
	edges     map[string][]Edge
	edgeCount int
	skipped   int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{edges: make(map[string][]Edge)}
}

// Add normalizes both sides and appends an edge. Negative votes count as 0.
func (b *Builder) Add(from, to string, votes int) {
	if votes < 0 {
		votes = 0
	}
	key := ref.NormalizeString(from)
	span := ref.ParseSpan(to)
	b.edges[key] = append(b.edges[key], Edge{To: span.Start, Through: span.End, Votes: votes})
	b.edgeCount++
}

// Skip records a malformed row.
func (b *Builder) Skip() {
	b.skipped++
}

// Index sorts every edge list once and returns the finished Index.
// The Builder must not be used afterwards.
func (b *Builder) Index() *Index {
	keys := make([]string, 0, len(b.edges))
	for k, list := range b.edges {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Votes > list[j].Votes
		})
		keys = append(keys, k)
	}
	sort.Strings(keys)

	idx := &Index{
		edges:     b.edges,
		keys:      keys,
		edgeCount: b.edgeCount,
		skipped:   b.skipped,
	}
	b.edges = nil
	return idx
}

// Stats returns index size counters.
func (idx *Index) Stats() Stats {
	return Stats{
		FromVerses:  len(idx.edges),
		Edges:       idx.edgeCount,
		SkippedRows: idx.skipped,
	}
}

// Keys returns the sorted from-verse keys.
func (idx *Index) Keys() []string {
	out := make([]string, len(idx.keys))
	copy(out, idx.keys)
	return out
}

// Edges returns a copy of the ordered edges for a from-verse.
func (idx *Index) Edges(from string) []Edge {
	list := idx.edges[ref.NormalizeString(from)]
	if len(list) == 0 {
		return nil
	}
	out := make([]Edge, len(list))
	copy(out, list)
	return out
}

// LookupOptions filters and pages a lookup.
type LookupOptions struct {
	MinVotes   int
	MaxResults int
}

// DefaultMaxResults is used when LookupOptions.MaxResults is not positive.
const DefaultMaxResults = 5

// Entry is one cross-reference in a lookup result.
type Entry struct {
	Reference string `json:"reference"`
	Votes     int    `json:"votes"`
}

// Result is a filtered, paged lookup. Total counts the filtered edges so
// callers can page against it.
type Result struct {
	References []Entry `json:"references"`
	Total      int     `json:"total"`
	Showing    int     `json:"showing"`
	HasMore    bool    `json:"hasMore"`
}

// Lookup returns the cross-references for a verse with at least MinVotes
// votes, truncated to MaxResults. An unknown reference yields an empty result.
func (idx *Index) Lookup(reference string, opts LookupOptions) Result {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}

	result := Result{References: []Entry{}}
	for _, e := range idx.edges[ref.NormalizeString(reference)] {
		if e.Votes < opts.MinVotes {
			// Lists are vote-descending, so nothing further can qualify.
			break
		}
		result.Total++
		if len(result.References) < opts.MaxResults {
			result.References = append(result.References, Entry{
				Reference: e.Reference(),
				Votes:     e.Votes,
			})
		}
	}
	result.Showing = len(result.References)
	result.HasMore = result.Total > opts.MaxResults
	return result
}

// VerseSummary describes how heavily one verse of a chapter is cross-referenced.
type VerseSummary struct {
	Reference string `json:"reference"`
	Verse     int    `json:"verse"`
	EdgeCount int    `json:"edge_count"`
	Top       Entry  `json:"top"`
}

// Chapter ranks the verses of a chapter by how many cross-references they
// carry, most first; ties are ordered by verse number. Any verse reference
// is widened to its chapter. References without a recognizable book and
// chapter return nil.
func (idx *Index) Chapter(reference string) []VerseSummary {
	prefix := ref.Normalize(reference).ChapterPrefix()
	if prefix == "" {
		return nil
	}

	start := sort.SearchStrings(idx.keys, prefix)
	var out []VerseSummary
	for _, k := range idx.keys[start:] {
		if !strings.HasPrefix(k, prefix) {
			break
		}
		list := idx.edges[k]
		if len(list) == 0 {
			continue
		}
		out = append(out, VerseSummary{
			Reference: k,
			Verse:     ref.Normalize(k).Verse,
			EdgeCount: len(list),
			Top:       Entry{Reference: list[0].Reference(), Votes: list[0].Votes},
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EdgeCount != out[j].EdgeCount {
			return out[i].EdgeCount > out[j].EdgeCount
		}
		return out[i].Verse < out[j].Verse
	})
	return out
}

// Each calls fn for every from-verse in key order with its ordered edges.
// The slice must not be modified.
func (idx *Index) Each(fn func(from string, edges []Edge)) {
	for _, k := range idx.keys {
		fn(k, idx.edges[k])
	}
}
