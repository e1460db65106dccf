// Package codec implements the per-archive block compression schemes of the
// PSARC container: store (raw), zlib/deflate, and LZMA-alone. The scheme is a
// header-level property, so one Codec value decodes every block in an archive.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz/lzma"
)

// Codec identifies the block compression scheme declared in the archive
// header's compression tag.
type Codec uint8

const (
	Store Codec = iota
	Zlib
	LZMA
)

// ErrUnknownScheme is returned for a Codec value outside the supported set.
var ErrUnknownScheme = errors.New("codec: unknown compression scheme")

// FromTag maps the 4-byte header compression tag to a Codec. "zlib" and
// "lzma" select their schemes; any other tag means blocks are stored raw.
func FromTag(tag [4]byte) Codec {
	switch string(tag[:]) {
	case "zlib":
		return Zlib
	case "lzma":
		return LZMA
	}
	return Store
}

func (c Codec) String() string {
	switch c {
	case Store:
		return "store"
	case Zlib:
		return "zlib"
	case LZMA:
		return "lzma"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// Valid returns a nil error iff this Codec is in the supported set.
func (c Codec) Valid() error {
	switch c {
	case Store, Zlib, LZMA:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownScheme, uint8(c))
}

// Decompress decodes one compressed block into exactly size bytes.
//
// Zlib blocks are tried with a zlib header first and as a raw deflate stream
// second; archives produced by some packers omit the wrapper. LZMA blocks are
// LZMA-alone streams (13-byte property header, as emitted by the reference
// alone encoder).
func (c Codec) Decompress(src []byte, size int) ([]byte, error) {
	switch c {
	case Store:
		if len(src) < size {
			return nil, fmt.Errorf("stored block is %d bytes, want %d", len(src), size)
		}
		out := make([]byte, size)
		copy(out, src[:size])
		return out, nil

	case Zlib:
		out, err := inflateZlib(src, size)
		if err == nil {
			return out, nil
		}
		if out, rawErr := inflateRaw(src, size); rawErr == nil {
			return out, nil
		}
		return nil, err

	case LZMA:
		r, err := lzma.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("lzma: %w", err)
		}
		return readExactly(r, size)
	}
	return nil, c.Valid()
}

func inflateZlib(src []byte, size int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	return readExactly(r, size)
}

func inflateRaw(src []byte, size int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	return readExactly(r, size)
}

func readExactly(r io.Reader, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("short decompressed block: %w", err)
	}
	return out, nil
}
