// Package parallels holds the curated parallel-passage database and the
// correlator that merges it with the cross-reference index.
package parallels

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperXref/core/dataset"
	"github.com/FocuswithJustin/JuniperXref/core/errors"
	"github.com/FocuswithJustin/JuniperXref/core/ref"
	"github.com/FocuswithJustin/JuniperXref/internal/logging"
)

// Relationship classifies how two passages relate.
type Relationship string

const (
	// RelSynoptic links accounts of the same event in different Gospels.
	RelSynoptic Relationship = "synoptic"
	// RelQuotation links an Old Testament passage to a New Testament citation of it.
	RelQuotation Relationship = "quotation"
	// RelAllusion links a New Testament passage back to the Old Testament.
	RelAllusion Relationship = "allusion"
	// RelThematic links passages that share a theme.
	RelThematic Relationship = "thematic"

	// ModeAuto is the query mode that accepts every relationship.
	ModeAuto Relationship = "auto"
)

// Relationships lists the relationships an entry may carry.
var Relationships = []Relationship{RelSynoptic, RelQuotation, RelAllusion, RelThematic}

// Valid reports whether r is one of the four entry relationships.
func (r Relationship) Valid() bool {
	return slices.Contains(Relationships, r)
}

// modeChoices is the accepted query modes, for error messages and help text.
func modeChoices() string {
	names := []string{string(ModeAuto)}
	for _, r := range Relationships {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}

// ParseMode parses a query mode. The empty string means auto.
func ParseMode(s string) (Relationship, error) {
	m := Relationship(strings.ToLower(strings.TrimSpace(s)))
	if m == "" || m == ModeAuto {
		return ModeAuto, nil
	}
	if !m.Valid() {
		return "", errors.NewValidation("mode", s, "must be one of "+modeChoices())
	}
	return m, nil
}

// Entry is one hand-curated parallel record.
type Entry struct {
	Event        string       `json:"event"`
	Relationship Relationship `json:"relationship"`
	Confidence   int          `json:"confidence"`

	// Parallels are database keys of the other accounts, in curator order.
	Parallels []string `json:"parallels"`
	Notes     string   `json:"notes,omitempty"`

	// UniqueDetails maps a lowercased book name to details only that
	// account records.
	UniqueDetails map[string][]string `json:"uniqueDetails,omitempty"`
}

// UnmarshalJSON accepts both "uniqueDetails" and "unique_details".
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var aux struct {
		plain
		UniqueDetailsSnake map[string][]string `json:"unique_details"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Entry(aux.plain)
	if e.UniqueDetails == nil {
		e.UniqueDetails = aux.UniqueDetailsSnake
	}
	return nil
}

// validate checks the fields a correlator depends on.
func (e Entry) validate() error {
	if !e.Relationship.Valid() {
		return fmt.Errorf("unknown relationship %q", e.Relationship)
	}
	if e.Confidence < 0 || e.Confidence > 100 {
		return fmt.Errorf("confidence %d out of range", e.Confidence)
	}
	return nil
}

// Database is the read-only curated parallel table.
type Database struct {
	Description string
	Version     string

	entries map[string]Entry
	keys    []string // sorted
	dropped int
}

type document struct {
	Description string                     `json:"description"`
	Version     string                     `json:"version"`
	Parallels   map[string]json.RawMessage `json:"parallels"`
}

// NewDatabase builds a database from already-decoded entries. Keys and
// unique-detail book names are canonicalized; invalid entries are dropped.
func NewDatabase(description, version string, entries map[string]Entry) *Database {
	db := &Database{
		Description: description,
		Version:     version,
		entries:     make(map[string]Entry, len(entries)),
	}

	raw := make([]string, 0, len(entries))
	for k := range entries {
		raw = append(raw, k)
	}
	sort.Strings(raw)

	for _, k := range raw {
		db.add(k, entries[k])
	}

	db.keys = make([]string, 0, len(db.entries))
	for k := range db.entries {
		db.keys = append(db.keys, k)
	}
	sort.Strings(db.keys)
	return db
}

func (db *Database) add(rawKey string, e Entry) {
	if err := e.validate(); err != nil {
		logging.DatasetAnomaly("parallels", rawKey, err.Error())
		db.dropped++
		return
	}

	key := canonicalKey(rawKey)
	if _, dup := db.entries[key]; dup {
		logging.DatasetAnomaly("parallels", rawKey, "duplicate of "+key)
		db.dropped++
		return
	}

	if len(e.UniqueDetails) > 0 {
		details := make(map[string][]string, len(e.UniqueDetails))
		for book, list := range e.UniqueDetails {
			details[bookKey(book)] = list
		}
		e.UniqueDetails = details
	}
	db.entries[key] = e
}

// canonicalKey rewrites a curator key into the form ref.KeyOf produces, so
// "psalm_22_1" and "ps_22_1" both become "psalms_22_1".
func canonicalKey(raw string) string {
	return ref.KeyOf(ref.FromKey(strings.ToLower(strings.TrimSpace(raw))))
}

// bookKey lowercases a book name, resolving abbreviations where possible.
func bookKey(name string) string {
	if b, ok := ref.LookupBook(name); ok {
		return strings.ToLower(b.Name)
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// ReadDatabase decodes a curated database document:
//
//	{"description": "...", "version": "1.0", "parallels": {"matthew_14_13-21": {...}}}
//
// A malformed document is an error. Individual entries that fail to decode
// or validate are logged and dropped.
func ReadDatabase(r io.Reader) (*Database, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.NewParse("JSON", "", err)
	}

	entries := make(map[string]Entry, len(doc.Parallels))
	var undecodable int
	for k, raw := range doc.Parallels {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			logging.DatasetAnomaly("parallels", k, err.Error())
			undecodable++
			continue
		}
		entries[k] = e
	}

	db := NewDatabase(doc.Description, doc.Version, entries)
	db.dropped += undecodable
	return db, nil
}

// LoadDatabase reads the curated database at path. A missing or invalid
// file is returned as an error.
func LoadDatabase(path string) (*Database, error) {
	r, err := dataset.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	db, err := ReadDatabase(r)
	if err != nil {
		return nil, errors.Loading(path, err)
	}
	return db, nil
}

// Get returns the entry stored under key. The key is canonicalized first.
func (db *Database) Get(key string) (Entry, bool) {
	e, ok := db.entries[canonicalKey(key)]
	return e, ok
}

// Len returns the number of entries.
func (db *Database) Len() int {
	return len(db.entries)
}

// Dropped returns how many entries were rejected while loading.
func (db *Database) Dropped() int {
	return db.dropped
}

// Keys returns the sorted entry keys.
func (db *Database) Keys() []string {
	out := make([]string, len(db.keys))
	copy(out, db.keys)
	return out
}

// Each calls fn for every entry in key order.
func (db *Database) Each(fn func(key string, e Entry)) {
	for _, k := range db.keys {
		fn(k, db.entries[k])
	}
}

// MatchChapter finds an entry for a chapter-only key such as "psalms_22".
// Among keys beginning with key+"_", the lowest starting verse wins; equal
// verses fall back to key order.
func (db *Database) MatchChapter(key string) (string, Entry, bool) {
	prefix := key + "_"
	start := sort.SearchStrings(db.keys, prefix)

	best, bestVerse := "", math.MaxInt
	for _, k := range db.keys[start:] {
		if !strings.HasPrefix(k, prefix) {
			break
		}
		v := leadingInt(k[len(prefix):])
		if v < bestVerse {
			best, bestVerse = k, v
		}
	}
	if best == "" {
		return "", Entry{}, false
	}
	return best, db.entries[best], true
}

// leadingInt parses the digits at the start of s, or returns math.MaxInt.
func leadingInt(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return math.MaxInt
	}
	return n
}
