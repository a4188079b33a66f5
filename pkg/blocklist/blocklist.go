// Package blocklist computes the per-block content digests Baidu Netdisk uses
// to identify file content during upload.
//
// A file is split into fixed-size windows starting at offset 0; every window
// except the last is exactly the chunk size. Each window is hashed with MD5
// and rendered as lowercase hex. The ordered list of digests (the "block
// list") is submitted at precreate, keys the server's fast-upload dedup
// lookup, and must be submitted again, unchanged, at create.
package blocklist

import (
	"crypto/md5" //nolint:gosec // the provider keys dedup on MD5; not used for security
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"iter"
)

// DefaultChunkSize is the window size the provider expects for ordinary
// accounts (4 MiB).
const DefaultChunkSize = 4 * 1024 * 1024

// ErrInvalidChunkSize is returned for chunk sizes that are zero or negative.
var ErrInvalidChunkSize = errors.New("blocklist: chunk size must be positive")

// Window is one contiguous byte range of a file, identified by its
// zero-based index.
type Window struct {
	Index  int
	Offset int64
	Length int64
}

// Windows returns the windows that cover a file of the given size.
// The result has ceil(size/chunkSize) entries; every window is chunkSize
// long except the last, which holds the remainder. A zero-byte file has no
// windows.
func Windows(size, chunkSize int64) ([]Window, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	if size < 0 {
		return nil, fmt.Errorf("blocklist: negative size %d", size)
	}

	n := Count(size, chunkSize)
	out := make([]Window, 0, n)

	for i := range n {
		off := int64(i) * chunkSize
		out = append(out, Window{
			Index:  i,
			Offset: off,
			Length: min(chunkSize, size-off),
		})
	}

	return out, nil
}

// Count returns ceil(size/chunkSize). Callers must pass chunkSize > 0.
func Count(size, chunkSize int64) int {
	if size <= 0 {
		return 0
	}

	return int((size + chunkSize - 1) / chunkSize)
}

// Hasher is an io.Writer that splits everything written to it into
// chunkSize windows and records the MD5 of each. Use Sum to read the block
// list; a trailing partial window is included.
type Hasher struct {
	chunkSize int64
	cur       hash.Hash
	curLen    int64
	total     int64
	done      []string
}

// New returns a Hasher for the given window size.
func New(chunkSize int64) (*Hasher, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	return &Hasher{chunkSize: chunkSize, cur: md5.New()}, nil //nolint:gosec // see import
}

// Write absorbs p into the running block list. It always returns len(p), nil.
func (h *Hasher) Write(p []byte) (int, error) {
	written := len(p)

	for len(p) > 0 {
		room := h.chunkSize - h.curLen
		take := min(int64(len(p)), room)

		h.cur.Write(p[:take])
		h.curLen += take
		h.total += take
		p = p[take:]

		if h.curLen == h.chunkSize {
			h.done = append(h.done, hex.EncodeToString(h.cur.Sum(nil)))
			h.cur.Reset()
			h.curLen = 0
		}
	}

	return written, nil
}

// Sum returns the block list for everything written so far. It does not
// change the Hasher's state.
func (h *Hasher) Sum() []string {
	out := make([]string, len(h.done), len(h.done)+1)
	copy(out, h.done)

	if h.curLen > 0 {
		out = append(out, hex.EncodeToString(h.cur.Sum(nil)))
	}

	return out
}

// Size returns the number of bytes written so far.
func (h *Hasher) Size() int64 {
	return h.total
}

// Reset clears all state so the Hasher can be reused.
func (h *Hasher) Reset() {
	h.cur.Reset()
	h.curLen = 0
	h.total = 0
	h.done = nil
}

// Compute reads r to EOF and returns its block list and total length.
func Compute(r io.Reader, chunkSize int64) ([]string, int64, error) {
	h, err := New(chunkSize)
	if err != nil {
		return nil, 0, err
	}

	if _, err := io.Copy(h, r); err != nil {
		return nil, 0, fmt.Errorf("blocklist: reading content: %w", err)
	}

	return h.Sum(), h.Size(), nil
}

// Digest returns the lowercase hex MD5 of a single block.
func Digest(p []byte) string {
	sum := md5.Sum(p) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// Blocks returns a lazy sequence of (index, digest) pairs over the first size
// bytes of r. Each iteration reads from offset 0 again, so the sequence can be
// ranged over more than once. Iteration stops early on a read error; use
// Compute when the error itself matters.
func Blocks(r io.ReaderAt, size, chunkSize int64) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		windows, err := Windows(size, chunkSize)
		if err != nil {
			return
		}

		buf := make([]byte, min(chunkSize, max(size, 0)))

		for _, w := range windows {
			p := buf[:w.Length]
			n, err := r.ReadAt(p, w.Offset)
			if n < len(p) || (err != nil && !errors.Is(err, io.EOF)) {
				return
			}

			if !yield(w.Index, Digest(p)) {
				return
			}
		}
	}
}

// Marshal renders a block list in the wire form the provider expects: a JSON
// array of strings, itself carried as a string value.
func Marshal(digests []string) (string, error) {
	if digests == nil {
		digests = []string{}
	}

	b, err := json.Marshal(digests)
	if err != nil {
		return "", fmt.Errorf("blocklist: encoding: %w", err)
	}

	return string(b), nil
}
