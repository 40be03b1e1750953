// Package dataset opens the bundled data files the engine is built from.
// Files ending in ".xz" are decompressed transparently, so the large
// cross-reference table can ship compressed.
package dataset

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/JuniperXref/core/errors"
)

// Reader wraps a dataset file with automatic decompression handling.
type Reader struct {
	io.Reader
	file *os.File
}

// Open opens the dataset at path. A missing or unreadable file is returned as
// an *errors.IOError so construction can fail fast.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".xz") {
		xzr, err := xz.NewReader(r)
		if err != nil {
			f.Close()
			return nil, errors.NewIO("decompress", path, err)
		}
		r = xzr
	}

	return &Reader{Reader: r, file: f}, nil
}

// Close closes the underlying file. The xz reader holds no resources of its own.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Fingerprint identifies the exact bytes of a dataset file as shipped.
type Fingerprint struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// Short returns the first 12 hex digits of the BLAKE3 hash.
func (fp Fingerprint) Short() string {
	if len(fp.BLAKE3) < 12 {
		return fp.BLAKE3
	}
	return fp.BLAKE3[:12]
}

// Hash computes the fingerprint of the file at path, hashing the stored
// (possibly compressed) bytes in a single pass.
func Hash(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, errors.NewIO("open", path, err)
	}
	defer f.Close()

	sh := sha256.New()
	bh := blake3.New()
	n, err := io.Copy(io.MultiWriter(sh, bh), f)
	if err != nil {
		return Fingerprint{}, errors.NewIO("read", path, err)
	}

	return Fingerprint{
		Path:   path,
		Size:   n,
		SHA256: hex.EncodeToString(sh.Sum(nil)),
		BLAKE3: hex.EncodeToString(bh.Sum(nil)),
	}, nil
}
