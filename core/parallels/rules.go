package parallels

import (
	"github.com/FocuswithJustin/JuniperXref/core/ref"
)

// VoteWeight is the confidence added per community vote.
const VoteWeight = 2

// Rule is one row of the cross-reference classification table. Rules are
// evaluated in order and the first match decides.
type Rule struct {
	Name         string
	Match        func(from, to ref.Ref) bool
	Relationship Relationship
	Base         int
	Cap          int
}

// Confidence scores an edge with the given vote count.
func (r Rule) Confidence(votes int) int {
	return min(r.Cap, r.Base+votes*VoteWeight)
}

// DefaultRules returns the standard classification table:
//
//	distinct Gospels   synoptic   min(85, 50+2v)
//	OT -> NT           quotation  min(80, 50+2v)
//	NT -> OT           allusion   min(75, 50+2v)
//	anything else      thematic   min(70, 40+2v)
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "gospel-to-gospel",
			Match: func(from, to ref.Ref) bool {
				return from.Book != to.Book && ref.IsGospel(from.Book) && ref.IsGospel(to.Book)
			},
			Relationship: RelSynoptic,
			Base:         50,
			Cap:          85,
		},
		{
			Name: "ot-to-nt",
			Match: func(from, to ref.Ref) bool {
				return inOT(from) && inNT(to)
			},
			Relationship: RelQuotation,
			Base:         50,
			Cap:          80,
		},
		{
			Name: "nt-to-ot",
			Match: func(from, to ref.Ref) bool {
				return inNT(from) && inOT(to)
			},
			Relationship: RelAllusion,
			Base:         50,
			Cap:          75,
		},
		{
			Name:         "thematic",
			Match:        func(from, to ref.Ref) bool { return true },
			Relationship: RelThematic,
			Base:         40,
			Cap:          70,
		},
	}
}

var defaultRules = DefaultRules()

// Classify applies DefaultRules to an edge from one verse to another.
func Classify(from, to ref.Ref, votes int) (Relationship, int) {
	rel, conf, _ := classify(defaultRules, from, to, votes)
	return rel, conf
}

func classify(rules []Rule, from, to ref.Ref, votes int) (Relationship, int, bool) {
	for _, r := range rules {
		if r.Match(from, to) {
			return r.Relationship, r.Confidence(votes), true
		}
	}
	return "", 0, false
}

// inOT and inNT are false for books outside the canon.
func inOT(r ref.Ref) bool {
	b, ok := r.BookInfo()
	return ok && b.IsOT()
}

func inNT(r ref.Ref) bool {
	b, ok := r.BookInfo()
	return ok && b.IsNT()
}
