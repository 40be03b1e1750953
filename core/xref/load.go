package xref

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/JuniperXref/core/dataset"
	"github.com/FocuswithJustin/JuniperXref/core/errors"
)

// maxLineSize bounds a single TSV row.
const maxLineSize = 1 << 20

// Build reads a tab-separated dataset with a header row and columns
// FromVerse, ToVerse, Votes. The first line is always treated as the header.
// Rows with fewer than three fields are skipped and unparsable vote counts
// become 0; only read failures are returned.
func Build(r io.Reader) (*Index, error) {
	b := NewBuilder()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			b.Skip()
			continue
		}

		votes, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			votes = 0
		}
		b.Add(fields[0], fields[1], votes)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIO("read", "", err)
	}

	return b.Index(), nil
}

// Load builds an index from the dataset file at path. Files whose name
// contains ".xml" are read as OSIS cross-reference notes; everything else as
// TSV. A ".xz" suffix is decompressed transparently.
func Load(path string) (*Index, error) {
	r, err := dataset.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if strings.Contains(strings.ToLower(path), ".xml") {
		idx, err := BuildOSIS(r)
		if err != nil {
			return nil, errors.Loading(path, err)
		}
		return idx, nil
	}

	idx, err := Build(r)
	if err != nil {
		return nil, errors.Loading(path, err)
	}
	return idx, nil
}

var (
	crossRefNotes = xpath.MustCompile(`//note[@type='crossReference']`)
	noteTargets   = xpath.MustCompile(`.//reference[@osisRef]`)
)

// BuildOSIS reads OSIS cross-reference notes:
//
//	<note type="crossReference" osisRef="Gen.1.1">
//	  <reference osisRef="John.1.1" n="50"/>
//	</note>
//
// The optional n attribute carries a vote count; it defaults to 0. Notes
// without an osisRef are skipped.
func BuildOSIS(r io.Reader) (*Index, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.NewParse("OSIS", "", err)
	}

	b := NewBuilder()
	for _, note := range xmlquery.QuerySelectorAll(doc, crossRefNotes) {
		from := note.SelectAttr("osisRef")
		if from == "" {
			b.Skip()
			continue
		}
		for _, target := range xmlquery.QuerySelectorAll(note, noteTargets) {
			votes, err := strconv.Atoi(target.SelectAttr("n"))
			if err != nil {
				votes = 0
			}
			b.Add(from, target.SelectAttr("osisRef"), votes)
		}
	}
	return b.Index(), nil
}
