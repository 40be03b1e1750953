// Package ref normalizes Bible citations into one canonical form.
//
// Citations arrive in many spellings: dotted OSIS IDs from the cross-reference
// dataset ("Gen.1.1", "1Cor.13.4"), abbreviations ("Ps 23:1", "1 Jn 4:8"),
// space-separated chapter and verse ("Genesis 1 1") and chapter-only queries
// ("Psalm 22"). All of them normalize to a Ref whose Book is one of the 66
// canonical English names and whose String form is "Book Chapter:Verse".
//
// Normalization never fails. Input whose book cannot be recognized is passed
// through as a literal so callers see a lookup miss rather than an error.
package ref

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Ref is a canonical scripture reference.
type Ref struct {
	// Book is the canonical English book name, or the trimmed literal input
	// when the book could not be recognized.
	Book string `json:"book"`

	// Chapter is the chapter number (0 for whole-book references).
	Chapter int `json:"chapter,omitempty"`

	// Verse is the verse number (0 for chapter-only references).
	Verse int `json:"verse,omitempty"`

	// VerseEnd is the last verse of a range within one chapter (0 if none).
	VerseEnd int `json:"verse_end,omitempty"`
}

// citationGrammar parses the chapter/verse tail that follows a book name.
// Examples: "1:1", "1.1", "1 1", "1:1-3", "23", "5:3a-12b"
//
//nolint:govet // participle grammar tags are not standard struct tags
type citationGrammar struct {
	Chapter  int        `@Int`
	VerseRef *versePart `( (":" | ".")? @@ )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type versePart struct {
	Verse    int        `@Int`
	SubVerse *string    `@SubVerse?`
	Range    *rangePart `( "-" @@ )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type rangePart struct {
	End      int     `@Int`
	SubVerse *string `@SubVerse?`
}

var citationLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "SubVerse", Pattern: `[a-z]`},
	{Name: "Punct", Pattern: `[:.\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var citationParser = participle.MustBuild[citationGrammar](
	participle.Lexer(citationLexer),
	participle.Elide("Whitespace"),
)

var dashReplacer = strings.NewReplacer("–", "-", "—", "-")

// Normalize converts a citation in any supported spelling to a Ref.
func Normalize(raw string) Ref {
	s := strings.TrimSpace(dashReplacer.Replace(raw))
	if s == "" {
		return Ref{}
	}
	s = expandOrdinal(s)

	book, end := matchBook(lowerString(s))
	if book == nil {
		return Ref{Book: literal(raw)}
	}

	tail := strings.TrimLeft(s[end:], " .")
	if tail == "" {
		return Ref{Book: book.Name}
	}

	parsed, err := citationParser.ParseString("", tail)
	if err != nil || parsed.Chapter <= 0 {
		return Ref{Book: literal(raw)}
	}

	r := Ref{Book: book.Name, Chapter: parsed.Chapter}
	if v := parsed.VerseRef; v != nil {
		if v.Verse <= 0 {
			return Ref{Book: literal(raw)}
		}
		r.Verse = v.Verse
		if v.Range != nil && v.Range.End > v.Verse {
			r.VerseEnd = v.Range.End
		}
	}
	return r
}

// literal is the passthrough form of an unrecognized citation.
func literal(raw string) string {
	return strings.Join(strings.Fields(dashReplacer.Replace(raw)), " ")
}

// ordinals maps leading roman numerals and words to book-number digits.
var ordinals = []struct{ prefix, digit string }{
	{"iii ", "3 "},
	{"ii ", "2 "},
	{"i ", "1 "},
	{"third ", "3 "},
	{"second ", "2 "},
	{"first ", "1 "},
}

// expandOrdinal rewrites "II Kings" or "First John" to "2 Kings" or "1 John".
func expandOrdinal(s string) string {
	lower := lowerString(s)
	for _, o := range ordinals {
		if strings.HasPrefix(lower, o.prefix) && len(s) > len(o.prefix) && isLetter(s[len(o.prefix)]) {
			return o.digit + s[len(o.prefix):]
		}
	}
	return s
}

// String renders "Book Chapter:Verse", "Book Chapter:Verse-End" or "Book Chapter".
func (r Ref) String() string {
	if r.Chapter == 0 {
		return r.Book
	}

	var sb strings.Builder
	sb.WriteString(r.Book)
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(r.Chapter))

	if r.Verse > 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(r.Verse))

		if r.VerseEnd > 0 {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(r.VerseEnd))
		}
	}

	return sb.String()
}

// IsZero reports whether r is the empty reference.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// IsChapterOnly reports whether r names a chapter without a verse.
func (r Ref) IsChapterOnly() bool {
	return r.Chapter > 0 && r.Verse == 0
}

// IsRange returns true if this reference spans multiple verses.
func (r Ref) IsRange() bool {
	return r.VerseEnd > r.Verse
}

// Known reports whether the book was recognized.
func (r Ref) Known() bool {
	_, ok := byName[strings.ToLower(r.Book)]
	return ok && r.Book != ""
}

// BookInfo returns the canonical book entry for r.
func (r Ref) BookInfo() (Book, bool) {
	b, ok := byName[strings.ToLower(r.Book)]
	if !ok {
		return Book{}, false
	}
	return *b, true
}

// ChapterPrefix returns "Book Chapter:", the key prefix shared by every
// verse in r's chapter. It is empty when r has no chapter.
func (r Ref) ChapterPrefix() string {
	if r.Chapter == 0 || !r.Known() {
		return ""
	}
	return r.Book + " " + strconv.Itoa(r.Chapter) + ":"
}
