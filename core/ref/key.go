package ref

import (
	"strings"
)

// Span is a reference that may run across a book or chapter boundary, as
// in the dataset form "Ps.148.4-Ps.148.5". End is zero for a plain reference.
type Span struct {
	Start Ref `json:"start"`
	End   Ref `json:"end,omitzero"`
}

// ParseSpan normalizes raw, splitting it into two independently normalized
// sides when the text after a hyphen begins with a recognizable book.
func ParseSpan(raw string) Span {
	s := dashReplacer.Replace(raw)
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			continue
		}
		right := strings.TrimSpace(s[i+1:])
		if b, _ := matchBook(lowerString(expandOrdinal(right))); b == nil {
			continue
		}
		return Span{Start: Normalize(s[:i]), End: Normalize(right)}
	}
	return Span{Start: Normalize(s)}
}

// String renders the span, joining two-sided spans with "-".
func (sp Span) String() string {
	if sp.End.IsZero() {
		return sp.Start.String()
	}
	return sp.Start.String() + "-" + sp.End.String()
}

// NormalizeString returns the canonical string form of raw.
func NormalizeString(raw string) string {
	return ParseSpan(raw).String()
}

var keyReplacer = strings.NewReplacer(" ", "_", ":", "_")

// ToKey derives the curated-database key for r:
// "Matthew 14:13-21" becomes "matthew_14_13-21".
func ToKey(r Ref) string {
	return keyReplacer.Replace(strings.ToLower(r.String()))
}

// KeyOf normalizes raw and derives its curated-database key.
func KeyOf(raw string) string {
	return ToKey(Normalize(raw))
}

// FromKey reconstructs a display reference from a curated-database key:
// "matthew_14_13-21" becomes "Matthew 14:13-21" and "1_corinthians_13_4"
// becomes "1 Corinthians 13:4". A leading number token stays attached to the
// book word. The result is not normalized; pass it to Normalize for that.
func FromKey(key string) string {
	parts := strings.Split(strings.TrimSpace(key), "_")

	var bookWords, numbers []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if isDigit(p[0]) && len(bookWords) > 0 {
			numbers = append(numbers, p)
			continue
		}
		if len(numbers) > 0 {
			// Words after the chapter/verse belong to no book; keep them verbatim.
			numbers = append(numbers, p)
			continue
		}
		bookWords = append(bookWords, titleWord(p))
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(bookWords, " "))
	if len(numbers) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(numbers[0])
	}
	if len(numbers) > 1 {
		sb.WriteByte(':')
		sb.WriteString(strings.Join(numbers[1:], "_"))
	}
	return sb.String()
}

// titleWord capitalizes the first letter of a word; number tokens pass through.
func titleWord(w string) string {
	if w == "" || !isLetter(w[0]) {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
