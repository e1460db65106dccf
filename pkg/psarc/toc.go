package psarc

import (
	"encoding/binary"
	"fmt"
)

// TOC record layout (Big Endian), repeated EntryCount times:
// Offset 0x00: MD5 digest of the entry path (16 bytes, kept opaque)
// Offset 0x10: First block index into the shared z-length table (4 bytes)
// Offset 0x14: Original length (N bytes)
// Offset 0x14+N: Data section offset (N bytes)
// where N = (TOCEntrySize - 20) / 2. The canonical 30-byte record gives
// 40-bit length and offset fields.
const tocRecordFixed = 20

// Entry describes one archived asset. Its index is its identity; entries are
// never reordered, and entry i's blocks immediately follow entry i-1's in the
// data section.
type Entry struct {
	Index      int
	Name       string // empty until name resolution, and always for entry 0
	Digest     [16]byte
	Length     uint64 // decompressed size
	StartBlock uint32 // first cell of this entry's z-length sub-range
	Offset     uint64 // absolute offset of the first compressed block
}

// BlockCount returns the number of blocks the entry occupies in the z-length
// table for the given nominal block size.
func (e Entry) BlockCount(blockSize uint32) uint32 {
	return uint32((e.Length + uint64(blockSize) - 1) / uint64(blockSize))
}

// zCellWidth returns the byte width of one z-length table cell: the smallest
// width that can count up to blockSize, with the zero sentinel standing in
// for blockSize itself. 2 bytes for 64 KiB blocks, 3 for anything larger.
func zCellWidth(blockSize uint32) int {
	w := 1
	for uint64(blockSize) > 1<<(8*w) {
		w++
	}
	return w
}

// parseTOC decodes the plaintext TOC region (everything after the header)
// into the ordered entry table and the shared z-length table. Entry order is
// load-bearing and preserved as read.
func parseTOC(toc []byte, h Header) ([]Entry, []uint32, error) {
	if h.TOCEntrySize < tocRecordFixed+2 || h.TOCEntrySize%2 != 0 {
		return nil, nil, fmt.Errorf("%w: toc entry size %d", ErrTOCSizeMismatch, h.TOCEntrySize)
	}
	fieldWidth := int(h.TOCEntrySize-tocRecordFixed) / 2
	if fieldWidth > 8 {
		return nil, nil, fmt.Errorf("%w: %d-byte length fields", ErrTOCSizeMismatch, fieldWidth)
	}

	recordBytes := uint64(h.EntryCount) * uint64(h.TOCEntrySize)
	if recordBytes > uint64(len(toc)) {
		return nil, nil, fmt.Errorf("%w: %d records of %d bytes exceed toc length %d",
			ErrTOCSizeMismatch, h.EntryCount, h.TOCEntrySize, len(toc))
	}

	entries := make([]Entry, h.EntryCount)
	pos := 0
	for i := range entries {
		rec := toc[pos : pos+int(h.TOCEntrySize)]
		e := &entries[i]
		e.Index = i
		copy(e.Digest[:], rec[:16])
		e.StartBlock = binary.BigEndian.Uint32(rec[16:20])
		e.Length = beUint(rec[20 : 20+fieldWidth])
		e.Offset = beUint(rec[20+fieldWidth : 20+2*fieldWidth])
		pos += int(h.TOCEntrySize)
	}

	cellWidth := zCellWidth(h.BlockSize)
	table := toc[pos:]
	if len(table)%cellWidth != 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes in %d-byte-cell block table",
			ErrTOCSizeMismatch, len(table)%cellWidth, cellWidth)
	}

	zLengths := make([]uint32, len(table)/cellWidth)
	for i := range zLengths {
		zLengths[i] = uint32(beUint(table[i*cellWidth : (i+1)*cellWidth]))
	}

	// Every entry's block range must land inside the table, and the ranges
	// combined must account for every cell.
	var total uint64
	for i := range entries {
		e := &entries[i]
		n := e.BlockCount(h.BlockSize)
		if uint64(e.StartBlock)+uint64(n) > uint64(len(zLengths)) {
			return nil, nil, fmt.Errorf("%w: entry %d blocks [%d,%d) exceed table of %d",
				ErrTOCSizeMismatch, i, e.StartBlock, e.StartBlock+n, len(zLengths))
		}
		total += uint64(n)
	}
	if total != uint64(len(zLengths)) {
		return nil, nil, fmt.Errorf("%w: entries cover %d blocks, table has %d",
			ErrTOCSizeMismatch, total, len(zLengths))
	}

	return entries, zLengths, nil
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
