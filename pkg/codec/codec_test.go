package codec

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
)

func tag(s string) [4]byte {
	var t [4]byte
	copy(t[:], s)
	return t
}

func TestFromTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Zlib, FromTag(tag("zlib")))
	assert.Equal(t, LZMA, FromTag(tag("lzma")))
	assert.Equal(t, Store, FromTag(tag("")))
	assert.Equal(t, Store, FromTag(tag("ZLIB")), "tags are case sensitive")
	assert.Equal(t, Store, FromTag(tag("wot?")))
}

func TestStore(t *testing.T) {
	t.Parallel()

	src := []byte("stored bytes, plus slack")
	out, err := Store.Decompress(src, 12)
	require.NoError(t, err)
	assert.Equal(t, src[:12], out)

	_, err = Store.Decompress(src[:4], 12)
	require.Error(t, err)
}

func TestZlibRoundTrip(t *testing.T) {
	t.Parallel()

	want := bytes.Repeat([]byte("zlib block data "), 64)

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(want)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out, err := Zlib.Decompress(buf.Bytes(), len(want))
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestZlibRawDeflateFallback(t *testing.T) {
	t.Parallel()

	// Some packers emit headerless deflate streams under the zlib tag.
	want := bytes.Repeat([]byte("raw deflate "), 50)

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	require.NoError(t, err)
	_, err = fw.Write(want)
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	out, err := Zlib.Decompress(buf.Bytes(), len(want))
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestZlibRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Zlib.Decompress([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}, 16)
	require.Error(t, err)
}

func TestLZMARoundTrip(t *testing.T) {
	t.Parallel()

	want := bytes.Repeat([]byte("lzma alone stream "), 100)

	var buf bytes.Buffer
	lw, err := lzma.NewWriter(&buf)
	require.NoError(t, err)
	_, err = lw.Write(want)
	require.NoError(t, err)
	require.NoError(t, lw.Close())

	out, err := LZMA.Decompress(buf.Bytes(), len(want))
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestUnknownScheme(t *testing.T) {
	t.Parallel()

	bogus := Codec(9)
	require.ErrorIs(t, bogus.Valid(), ErrUnknownScheme)

	_, err := bogus.Decompress([]byte{1, 2, 3}, 3)
	require.ErrorIs(t, err, ErrUnknownScheme)

	assert.Equal(t, "codec(9)", bogus.String())
	assert.Equal(t, "zlib", Zlib.String())
}
