package ref

import (
	"sort"
	"strings"
)

// Testament identifies which half of the Protestant canon a book belongs to.
type Testament string

// Testament constants.
const (
	OldTestament Testament = "OT"
	NewTestament Testament = "NT"
)

// Book describes one of the 66 canonical books.
type Book struct {
	// Name is the full canonical English name (e.g., "Psalms", "1 Corinthians").
	Name string `json:"name"`

	// OSIS is the OSIS book ID used by dotted dataset references (e.g., "Ps", "1Cor").
	OSIS string `json:"osis"`

	// Order is the 1-indexed canonical position.
	Order int `json:"order"`

	// Chapters is the chapter count in the KJV versification.
	Chapters int `json:"chapters"`

	// Testament is OT or NT.
	Testament Testament `json:"testament"`

	// aliases are compact lowercase spellings (no spaces or dots).
	aliases []string
}

// IsOT reports whether the book is in the Old Testament.
func (b Book) IsOT() bool { return b.Testament == OldTestament }

// IsNT reports whether the book is in the New Testament.
func (b Book) IsNT() bool { return b.Testament == NewTestament }

var canon = []Book{
	{"Genesis", "Gen", 1, 50, OldTestament, []string{"ge", "gn"}},
	{"Exodus", "Exod", 2, 40, OldTestament, []string{"ex", "exo"}},
	{"Leviticus", "Lev", 3, 27, OldTestament, []string{"le", "lv"}},
	{"Numbers", "Num", 4, 36, OldTestament, []string{"nu", "nm", "nb"}},
	{"Deuteronomy", "Deut", 5, 34, OldTestament, []string{"de", "dt", "deu"}},
	{"Joshua", "Josh", 6, 24, OldTestament, []string{"jos", "jsh"}},
	{"Judges", "Judg", 7, 21, OldTestament, []string{"jdg", "jg", "jdgs"}},
	{"Ruth", "Ruth", 8, 4, OldTestament, []string{"rth", "ru"}},
	{"1 Samuel", "1Sam", 9, 31, OldTestament, []string{"1sa", "1sm", "1s"}},
	{"2 Samuel", "2Sam", 10, 24, OldTestament, []string{"2sa", "2sm", "2s"}},
	{"1 Kings", "1Kgs", 11, 22, OldTestament, []string{"1ki", "1kg", "1kin", "1k"}},
	{"2 Kings", "2Kgs", 12, 25, OldTestament, []string{"2ki", "2kg", "2kin", "2k"}},
	{"1 Chronicles", "1Chr", 13, 29, OldTestament, []string{"1ch", "1chron"}},
	{"2 Chronicles", "2Chr", 14, 36, OldTestament, []string{"2ch", "2chron"}},
	{"Ezra", "Ezra", 15, 10, OldTestament, []string{"ezr"}},
	{"Nehemiah", "Neh", 16, 13, OldTestament, []string{"ne"}},
	{"Esther", "Esth", 17, 10, OldTestament, []string{"est", "es"}},
	{"Job", "Job", 18, 42, OldTestament, []string{"jb"}},
	{"Psalms", "Ps", 19, 150, OldTestament, []string{"psa", "psm", "pss", "psalm"}},
	{"Proverbs", "Prov", 20, 31, OldTestament, []string{"pro", "prv", "pr"}},
	{"Ecclesiastes", "Eccl", 21, 12, OldTestament, []string{"ecc", "ec", "eccles", "qoh"}},
	{"Song of Solomon", "Song", 22, 8, OldTestament, []string{"sos", "sng", "songofsongs", "canticles"}},
	{"Isaiah", "Isa", 23, 66, OldTestament, []string{"is"}},
	{"Jeremiah", "Jer", 24, 52, OldTestament, []string{"je", "jr"}},
	{"Lamentations", "Lam", 25, 5, OldTestament, []string{"la"}},
	{"Ezekiel", "Ezek", 26, 48, OldTestament, []string{"eze", "ezk"}},
	{"Daniel", "Dan", 27, 12, OldTestament, []string{"da", "dn"}},
	{"Hosea", "Hos", 28, 14, OldTestament, []string{"ho"}},
	{"Joel", "Joel", 29, 3, OldTestament, []string{"jl"}},
	{"Amos", "Amos", 30, 9, OldTestament, []string{"am"}},
	{"Obadiah", "Obad", 31, 1, OldTestament, []string{"ob", "oba"}},
	{"Jonah", "Jonah", 32, 4, OldTestament, []string{"jon", "jnh"}},
	{"Micah", "Mic", 33, 7, OldTestament, []string{"mi"}},
	{"Nahum", "Nah", 34, 3, OldTestament, []string{"na"}},
	{"Habakkuk", "Hab", 35, 3, OldTestament, []string{"hb"}},
	{"Zephaniah", "Zeph", 36, 3, OldTestament, []string{"zep", "zp"}},
	{"Haggai", "Hag", 37, 2, OldTestament, []string{"hg"}},
	{"Zechariah", "Zech", 38, 14, OldTestament, []string{"zec", "zc"}},
	{"Malachi", "Mal", 39, 4, OldTestament, []string{"ml"}},
	{"Matthew", "Matt", 40, 28, NewTestament, []string{"mt", "mat"}},
	{"Mark", "Mark", 41, 16, NewTestament, []string{"mk", "mr", "mrk"}},
	{"Luke", "Luke", 42, 24, NewTestament, []string{"lk", "luk"}},
	{"John", "John", 43, 21, NewTestament, []string{"jn", "jhn", "joh"}},
	{"Acts", "Acts", 44, 28, NewTestament, []string{"act", "ac"}},
	{"Romans", "Rom", 45, 16, NewTestament, []string{"ro", "rm"}},
	{"1 Corinthians", "1Cor", 46, 16, NewTestament, []string{"1co"}},
	{"2 Corinthians", "2Cor", 47, 13, NewTestament, []string{"2co"}},
	{"Galatians", "Gal", 48, 6, NewTestament, []string{"ga"}},
	{"Ephesians", "Eph", 49, 6, NewTestament, []string{"ephes"}},
	{"Philippians", "Phil", 50, 4, NewTestament, []string{"php", "pp"}},
	{"Colossians", "Col", 51, 4, NewTestament, nil},
	{"1 Thessalonians", "1Thess", 52, 5, NewTestament, []string{"1th", "1thes"}},
	{"2 Thessalonians", "2Thess", 53, 3, NewTestament, []string{"2th", "2thes"}},
	{"1 Timothy", "1Tim", 54, 6, NewTestament, []string{"1ti"}},
	{"2 Timothy", "2Tim", 55, 4, NewTestament, []string{"2ti"}},
	{"Titus", "Titus", 56, 3, NewTestament, []string{"tit", "ti"}},
	{"Philemon", "Phlm", 57, 1, NewTestament, []string{"phm", "philem"}},
	{"Hebrews", "Heb", 58, 13, NewTestament, nil},
	{"James", "Jas", 59, 5, NewTestament, []string{"jm", "jam"}},
	{"1 Peter", "1Pet", 60, 5, NewTestament, []string{"1pe", "1pt", "1p"}},
	{"2 Peter", "2Pet", 61, 3, NewTestament, []string{"2pe", "2pt", "2p"}},
	{"1 John", "1John", 62, 5, NewTestament, []string{"1jn", "1jo", "1jhn"}},
	{"2 John", "2John", 63, 1, NewTestament, []string{"2jn", "2jo", "2jhn"}},
	{"3 John", "3John", 64, 1, NewTestament, []string{"3jn", "3jo", "3jhn"}},
	{"Jude", "Jude", 65, 1, NewTestament, []string{"jud", "jd"}},
	{"Revelation", "Rev", 66, 22, NewTestament, []string{"re", "rv", "revelations"}},
}

// alias pairs a compact spelling with the book it resolves to.
type alias struct {
	text string
	book *Book
}

var (
	// aliasTable is ordered longest-first so the most specific spelling wins.
	aliasTable []alias
	byName     = make(map[string]*Book, len(canon))
)

func init() {
	seen := make(map[string]bool)
	for i := range canon {
		b := &canon[i]
		byName[strings.ToLower(b.Name)] = b

		spellings := append([]string{compact(b.Name), compact(b.OSIS)}, b.aliases...)
		for _, s := range spellings {
			if seen[s] {
				continue
			}
			seen[s] = true
			aliasTable = append(aliasTable, alias{text: s, book: b})
		}
	}
	sort.SliceStable(aliasTable, func(i, j int) bool {
		return len(aliasTable[i].text) > len(aliasTable[j].text)
	})
}

// compact lowercases s and strips spaces and dots.
func compact(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := lowerASCII(s[i])
		if c == ' ' || c == '.' {
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// Books returns the 66 canonical books in canonical order.
func Books() []Book {
	out := make([]Book, len(canon))
	copy(out, canon)
	return out
}

// LookupBook resolves a book name or abbreviation to its canonical entry.
// The whole string must be a book spelling; trailing chapter numbers are not accepted.
func LookupBook(name string) (Book, bool) {
	name = strings.TrimSpace(name)
	if b, ok := byName[strings.ToLower(name)]; ok {
		return *b, true
	}
	b, end := matchBook(lowerString(name))
	if b == nil || strings.TrimSpace(name[end:]) != "" {
		return Book{}, false
	}
	return *b, true
}

// gospels are the four Gospel accounts.
var gospels = map[string]bool{
	"Matthew": true,
	"Mark":    true,
	"Luke":    true,
	"John":    true,
}

// IsGospel reports whether name is one of Matthew, Mark, Luke or John.
func IsGospel(name string) bool {
	return gospels[name]
}

// matchBook finds the longest alias at the start of s (already lowercased).
// Spaces inside s are skipped while matching so "1 cor" matches "1cor".
// The match must end on a non-letter boundary. It returns the book and the
// byte offset just past the matched spelling.
func matchBook(s string) (*Book, int) {
	for _, a := range aliasTable {
		if end, ok := matchAlias(s, a.text); ok {
			return a.book, end
		}
	}
	return nil, 0
}

func matchAlias(s, text string) (int, bool) {
	i, j := 0, 0
	for j < len(text) {
		if i >= len(s) {
			return 0, false
		}
		if s[i] == ' ' && j > 0 {
			i++
			continue
		}
		if s[i] != text[j] {
			return 0, false
		}
		i++
		j++
	}
	if i < len(s) && isLetter(s[i]) {
		return 0, false
	}
	return i, true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// lowerString lowercases ASCII letters only, preserving byte offsets.
func lowerString(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] = lowerASCII(b[i])
	}
	return string(b)
}
