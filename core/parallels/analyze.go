package parallels

import (
	"strings"

	"github.com/FocuswithJustin/JuniperXref/core/ref"
)

// Analysis compares the curated details of the accounts in a result.
type Analysis struct {
	// Accounts are the lowercased books compared, primary first.
	Accounts []string `json:"accounts"`

	// Common lists details recorded by every account.
	Common []string `json:"common"`

	// Unique maps each account to the details no other account records.
	Unique map[string][]string `json:"unique"`
}

// Analyze compares the unique details entry records for the primary
// reference and each passage. Only accounts with curated details take part.
// Verse text is left to the caller.
func Analyze(primary string, entry *Entry, passages []Passage) Analysis {
	a := Analysis{
		Accounts: []string{},
		Common:   []string{},
		Unique:   map[string][]string{},
	}
	if entry == nil || len(entry.UniqueDetails) == 0 {
		return a
	}

	refs := make([]string, 0, len(passages)+1)
	refs = append(refs, primary)
	for _, p := range passages {
		refs = append(refs, p.Reference)
	}

	seen := map[string]bool{}
	for _, r := range refs {
		book := strings.ToLower(ref.Normalize(r).Book)
		if seen[book] || len(entry.UniqueDetails[book]) == 0 {
			continue
		}
		seen[book] = true
		a.Accounts = append(a.Accounts, book)
	}

	// count[d] is the number of accounts recording detail d.
	count := map[string]int{}
	for _, book := range a.Accounts {
		for _, d := range distinct(entry.UniqueDetails[book]) {
			count[detailKey(d)]++
		}
	}

	for i, book := range a.Accounts {
		for _, d := range distinct(entry.UniqueDetails[book]) {
			n := count[detailKey(d)]
			switch {
			case n == 1:
				a.Unique[book] = append(a.Unique[book], d)
			case i == 0 && n == len(a.Accounts) && len(a.Accounts) > 1:
				a.Common = append(a.Common, d)
			}
		}
	}
	return a
}

func detailKey(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

// distinct drops repeated details, keeping first occurrences.
func distinct(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, d := range list {
		k := detailKey(d)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}
