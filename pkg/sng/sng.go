// Package sng unwraps encrypted song chart (.sng) entries as stored inside
// PC archives. The wrapper is a payload-level stage layered above the
// container: the archive core returns the wrapper bytes untouched, and
// consumers that know an entry is an SNG call Decrypt explicitly.
//
// Wrapper layout (Little Endian, unlike the container):
// Offset 0x00: Magic 0x4A (4 bytes)
// Offset 0x04: Flags (4 bytes), bit 0 = plaintext is zlib compressed
// Offset 0x08: AES-CTR IV (16 bytes)
// Offset 0x18: Encrypted payload
// A compressed plaintext starts with the LE32 decompressed size.
package sng

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/falk/psarc-go/pkg/crypto"
)

const (
	magic          = 0x4A
	flagCompressed = 0x1
	wrapperSize    = 24
)

// DefaultKey is the AES-256 key for PC song charts. Like the archive TOC key
// it is a recovered format constant, so Decrypt takes the key explicitly and
// callers normally pass this.
var DefaultKey = []byte{
	0xCB, 0x64, 0x8D, 0xF3, 0xD1, 0x2A, 0x16, 0xBF,
	0x71, 0x70, 0x14, 0x14, 0xE6, 0x96, 0x19, 0xEC,
	0x17, 0x1C, 0xCA, 0x5D, 0x2A, 0x14, 0x2E, 0x3E,
	0x59, 0xDE, 0x7A, 0xDD, 0xA1, 0x8A, 0x3A, 0x30,
}

// ErrNotSNG is returned when the data does not start with the SNG wrapper.
var ErrNotSNG = errors.New("sng: not an sng wrapper")

// IsSNGPath reports whether an archive entry path denotes a wrapped song
// chart. Only the generic per-platform chart directory holds wrapped files.
func IsSNGPath(name string) bool {
	return strings.Contains(name, "songs/bin/generic/") && strings.HasSuffix(name, ".sng")
}

// Decrypt removes the SNG wrapper: it decrypts the payload with AES-256-CTR
// under the wrapper's IV and, when the compressed flag is set, inflates the
// plaintext to its declared size.
func Decrypt(data, key []byte) ([]byte, error) {
	if len(data) < wrapperSize {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrNotSNG, len(data), wrapperSize)
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != magic {
		return nil, fmt.Errorf("%w: magic 0x%X", ErrNotSNG, m)
	}
	flags := binary.LittleEndian.Uint32(data[4:8])
	iv := data[8:wrapperSize]

	plain, err := crypto.CTRDecrypt(data[wrapperSize:], key, iv)
	if err != nil {
		return nil, fmt.Errorf("sng: decrypt: %w", err)
	}

	if flags&flagCompressed == 0 {
		return plain, nil
	}

	if len(plain) < 4 {
		return nil, fmt.Errorf("sng: compressed payload is %d bytes", len(plain))
	}
	size := binary.LittleEndian.Uint32(plain[0:4])

	zr, err := zlib.NewReader(bytes.NewReader(plain[4:]))
	if err != nil {
		return nil, fmt.Errorf("sng: inflate: %w", err)
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("sng: inflate: %w", err)
	}
	return out, nil
}
