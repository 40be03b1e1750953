package dataset

import (
	"bytes"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/JuniperXref/core/errors"
)

const sample = "From Verse\tTo Verse\tVotes\nGen.1.1\tJohn.1.1\t50\n"

func writeXZ(t *testing.T, path string, data []byte) {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz.NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestOpenPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cross_references.txt")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != sample {
		t.Errorf("content = %q, want %q", got, sample)
	}
}

func TestOpenXZ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cross_references.txt.xz")
	writeXZ(t, path, []byte(sample))

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != sample {
		t.Errorf("decompressed = %q, want %q", got, sample)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.IsDataset(err) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error %v should be a dataset error wrapping ErrNotExist", err)
	}
}

func TestOpenCorruptXZ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.txt.xz")
	if err := os.WriteFile(path, []byte("not xz at all"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	var ioErr *errors.IOError
	if !errors.As(err, &ioErr) || ioErr.Operation != "decompress" {
		t.Errorf("expected decompress IOError, got %v", err)
	}
}

func TestHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parallels.json")
	data := []byte(`{"version":"1.0"}`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	fp, err := Hash(path)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if fp.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", fp.Size, len(data))
	}
	if len(fp.SHA256) != 64 || len(fp.BLAKE3) != 64 {
		t.Errorf("unexpected hash lengths: %d, %d", len(fp.SHA256), len(fp.BLAKE3))
	}
	if sum := blake3.Sum256(data); fp.BLAKE3 != hex.EncodeToString(sum[:]) {
		t.Errorf("BLAKE3 = %s, want %x", fp.BLAKE3, sum)
	}
	if fp.Short() != fp.BLAKE3[:12] {
		t.Errorf("Short() = %s", fp.Short())
	}

	if _, err := Hash(filepath.Join(t.TempDir(), "nope")); !errors.IsDataset(err) {
		t.Errorf("expected dataset error, got %v", err)
	}
}
