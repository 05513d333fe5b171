package cas

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Digester computes a BLAKE3 digest of everything written to it, so it
// can sit behind an io.MultiWriter while a map is being saved.
type Digester struct {
	h *blake3.Hasher
	n int64
}

// NewDigester returns an empty digester.
func NewDigester() *Digester {
	return &Digester{h: blake3.New()}
}

func (d *Digester) Write(p []byte) (int, error) {
	n, err := d.h.Write(p)
	d.n += int64(n)
	return n, err
}

// Size returns the number of bytes written.
func (d *Digester) Size() int64 { return d.n }

// Sum returns the hex digest of the bytes written so far.
func (d *Digester) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// DigestReader consumes r and returns its digest and length.
func DigestReader(r io.Reader) (string, int64, error) {
	d := NewDigester()
	if _, err := io.Copy(d, r); err != nil {
		return "", d.n, err
	}
	return d.Sum(), d.n, nil
}
