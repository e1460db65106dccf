package psarc

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"

	"github.com/falk/psarc-go/pkg/crypto"
)

// fixtureFile is one asset to place in a built archive.
type fixtureFile struct {
	name string
	data []byte
}

type fixtureOpts struct {
	blockSize uint32
	tag       string // "zlib", "lzma", or "" for store
	encrypted bool
	key       []byte // nil = DefaultTOCKey
	manifest  *string
}

// buildFixture assembles a complete archive in memory: entry 0 is the
// newline-delimited name list, followed by one entry per file. Chunks that
// compression does not shrink are stored raw, with the zero sentinel for
// full-size blocks, matching what retail packers emit.
func buildFixture(t *testing.T, files []fixtureFile, o fixtureOpts) []byte {
	t.Helper()
	require.NotZero(t, o.blockSize)

	manifest := ""
	if len(files) > 0 {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.name
		}
		manifest = strings.Join(names, "\n") + "\n"
	}
	if o.manifest != nil {
		manifest = *o.manifest
	}

	contents := make([][]byte, 0, len(files)+1)
	contents = append(contents, []byte(manifest))
	for _, f := range files {
		contents = append(contents, f.data)
	}

	var (
		blobs    [][]byte
		zLengths []uint32
		starts   = make([]uint32, len(contents))
	)
	for i, data := range contents {
		starts[i] = uint32(len(zLengths))
		for pos := 0; pos < len(data); pos += int(o.blockSize) {
			end := pos + int(o.blockSize)
			if end > len(data) {
				end = len(data)
			}
			chunk := data[pos:end]

			blob, z := encodeChunk(t, o.tag, chunk, o.blockSize)
			blobs = append(blobs, blob)
			zLengths = append(zLengths, z)
		}
	}

	const entrySize = 30
	cellWidth := zCellWidth(o.blockSize)
	tocLength := HeaderSize + entrySize*len(contents) + cellWidth*len(zLengths)

	// Entry records. Offsets are absolute and contiguous from the end of
	// the TOC, in entry order.
	var toc bytes.Buffer
	offset := uint64(tocLength)
	bi := 0
	for i, data := range contents {
		digest := md5.Sum([]byte(fmt.Sprintf("entry-%d", i)))
		toc.Write(digest[:])

		var rec [14]byte
		binary.BigEndian.PutUint32(rec[0:4], starts[i])
		put40(rec[4:9], uint64(len(data)))
		put40(rec[9:14], offset)
		toc.Write(rec[:])

		for pos := 0; pos < len(data); pos += int(o.blockSize) {
			offset += uint64(len(blobs[bi]))
			bi++
		}
	}
	for _, z := range zLengths {
		cell := make([]byte, cellWidth)
		for j := cellWidth - 1; j >= 0; j-- {
			cell[j] = byte(z)
			z >>= 8
		}
		toc.Write(cell)
	}

	tocBytes := toc.Bytes()
	var flags uint32
	if o.encrypted {
		flags |= FlagTOCEncrypted
		key := o.key
		if key == nil {
			key = DefaultTOCKey
		}
		enc, err := crypto.CFBEncrypt(tocBytes, key, tocIV)
		require.NoError(t, err)
		tocBytes = enc
	}

	var out bytes.Buffer
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], Magic)
	binary.BigEndian.PutUint16(hdr[4:6], 1)
	binary.BigEndian.PutUint16(hdr[6:8], 4)
	copy(hdr[8:12], o.tag)
	binary.BigEndian.PutUint32(hdr[12:16], uint32(tocLength))
	binary.BigEndian.PutUint32(hdr[16:20], entrySize)
	binary.BigEndian.PutUint32(hdr[20:24], uint32(len(contents)))
	binary.BigEndian.PutUint32(hdr[24:28], o.blockSize)
	binary.BigEndian.PutUint32(hdr[28:32], flags)
	out.Write(hdr[:])
	out.Write(tocBytes)
	for _, blob := range blobs {
		out.Write(blob)
	}
	return out.Bytes()
}

// encodeChunk compresses one block, falling back to raw storage when the
// codec does not shrink it. Returns the stored bytes and the z-length cell
// value (zero sentinel for a raw full-size block).
func encodeChunk(t *testing.T, tag string, chunk []byte, blockSize uint32) ([]byte, uint32) {
	t.Helper()

	var comp []byte
	switch tag {
	case "zlib":
		var b bytes.Buffer
		zw := zlib.NewWriter(&b)
		_, err := zw.Write(chunk)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		comp = b.Bytes()
	case "lzma":
		var b bytes.Buffer
		lw, err := lzma.NewWriter(&b)
		require.NoError(t, err)
		_, err = lw.Write(chunk)
		require.NoError(t, err)
		require.NoError(t, lw.Close())
		comp = b.Bytes()
	}

	if comp == nil || len(comp) >= len(chunk) {
		raw := append([]byte(nil), chunk...)
		if uint32(len(chunk)) == blockSize {
			return raw, 0
		}
		return raw, uint32(len(chunk))
	}
	return comp, uint32(len(comp))
}

func put40(dst []byte, v uint64) {
	dst[0] = byte(v >> 32)
	dst[1] = byte(v >> 24)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 8)
	dst[4] = byte(v)
}

// compressible returns n bytes that deflate well.
func compressible(n int) []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), (n+15)/16)[:n]
}

// incompressible returns n pseudo-random bytes that no codec shrinks.
func incompressible(n int, seed int64) []byte {
	out := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(out)
	return out
}

func openFixture(t *testing.T, raw []byte, opts ...Option) *Archive {
	t.Helper()
	a, err := Open(bytes.NewReader(raw), int64(len(raw)), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}
