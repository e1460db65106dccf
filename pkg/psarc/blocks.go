package psarc

import (
	"errors"
	"fmt"
	"io"

	"github.com/falk/psarc-go/pkg/codec"
)

// blockReader walks an entry's sub-range of the shared z-length table and
// decodes blocks against a positioned-read source. It holds no mutable state,
// so concurrent reads need no locking beyond what the source itself requires.
type blockReader struct {
	src       io.ReaderAt
	codec     codec.Codec
	blockSize uint32
	zLengths  []uint32
}

// zLen returns the compressed byte length of table cell zi. A zero cell means
// the block occupies exactly one nominal block size, not that it is empty;
// the natural encoding cannot represent the maximal value.
func (b *blockReader) zLen(zi uint32) uint32 {
	if n := b.zLengths[zi]; n != 0 {
		return n
	}
	return b.blockSize
}

// readEntry decompresses the whole entry.
func (b *blockReader) readEntry(e Entry) ([]byte, error) {
	return b.readRange(e, 0, e.Length)
}

// readRange decompresses the byte span [off, off+n) of the entry. The span is
// clamped to the entry's length. Decoding starts at the block containing off:
// blocks before it are skipped by their compressed lengths, but bytes inside
// the first decoded block cannot be skipped without decoding (LZMA keeps
// sequential dictionary state within a block).
func (b *blockReader) readRange(e Entry, off, n uint64) ([]byte, error) {
	if off >= e.Length {
		return []byte{}, nil
	}
	if off+n > e.Length || off+n < off {
		n = e.Length - off
	}
	if n == 0 {
		return []byte{}, nil
	}

	blockSize := uint64(b.blockSize)
	firstBlock := uint32(off / blockSize)
	skip := off % blockSize

	// Seek to the first needed block by summing compressed lengths.
	srcOff := e.Offset
	for i := uint32(0); i < firstBlock; i++ {
		srcOff += uint64(b.zLen(e.StartBlock + i))
	}

	out := make([]byte, 0, n)
	nBlocks := e.BlockCount(b.blockSize)

	for bi := firstBlock; bi < nBlocks && uint64(len(out)) < n; bi++ {
		segLen := blockSize
		if rem := e.Length - uint64(bi)*blockSize; rem < segLen {
			segLen = rem
		}

		seg, compLen, err := b.readBlock(e, bi, srcOff, segLen)
		if err != nil {
			return nil, err
		}
		srcOff += uint64(compLen)

		if bi == firstBlock && skip > 0 {
			seg = seg[skip:]
		}
		out = append(out, seg...)
	}

	return out[:n], nil
}

// readBlock reads and decodes block bi of the entry at absolute offset
// srcOff, returning segLen decompressed bytes and the compressed length
// consumed. A block is stored raw when its table cell is the zero sentinel
// (one full nominal-size block) or when its compressed length equals the
// segment's decompressed length; packers store a block raw when compression
// does not shrink it, which is only representable at those two points.
func (b *blockReader) readBlock(e Entry, bi uint32, srcOff, segLen uint64) ([]byte, uint32, error) {
	zi := e.StartBlock + bi
	raw := b.zLengths[zi] == 0
	compLen := b.zLen(zi)

	buf := make([]byte, compLen)
	if n, err := b.src.ReadAt(buf, int64(srcOff)); err != nil && n < len(buf) {
		return nil, 0, fmt.Errorf("%w: entry %d block %d: got %d of %d bytes at offset %d: %v",
			ErrTruncatedBlockData, e.Index, bi, n, compLen, srcOff, err)
	}

	if b.codec == codec.Store || raw || uint64(compLen) == segLen {
		if uint64(compLen) < segLen {
			return nil, 0, fmt.Errorf("%w: entry %d block %d: stored block is %d bytes, want %d",
				ErrTruncatedBlockData, e.Index, bi, compLen, segLen)
		}
		return buf[:segLen], compLen, nil
	}

	seg, err := b.codec.Decompress(buf, int(segLen))
	if err != nil {
		if errors.Is(err, codec.ErrUnknownScheme) {
			return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedCompression, err)
		}
		return nil, 0, fmt.Errorf("%w: entry %d block %d (%s): %v",
			ErrDecompressionFailure, e.Index, bi, b.codec, err)
	}
	return seg, compLen, nil
}
