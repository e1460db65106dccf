package psarc

import (
	"encoding/binary"
	"fmt"
)

// Header layout (Big Endian)
// Offset 0x00: Magic "PSAR" (4 bytes)
// Offset 0x04: Version major (2 bytes), minor (2 bytes)
// Offset 0x08: Compression tag, e.g. "zlib" or "lzma" (4 bytes)
// Offset 0x0C: TOC length including this header (4 bytes)
// Offset 0x10: TOC entry record size (4 bytes)
// Offset 0x14: Entry count, including the name-list entry (4 bytes)
// Offset 0x18: Nominal block size (4 bytes)
// Offset 0x1C: Archive flags (4 bytes)
const (
	Magic      = 0x50534152 // "PSAR"
	HeaderSize = 32

	versionMajor = 1
	versionMinor = 4
)

// FlagTOCEncrypted marks the TOC region (everything between the header and
// the data section) as encrypted with AES-256-CFB.
const FlagTOCEncrypted = 0x1

// Header is the fixed-size archive header.
type Header struct {
	Magic          uint32
	VersionMajor   uint16
	VersionMinor   uint16
	CompressionTag [4]byte
	TOCLength      uint32 // header + entry records + block size table
	TOCEntrySize   uint32
	EntryCount     uint32
	BlockSize      uint32
	ArchiveFlags   uint32
}

// TOCEncrypted reports whether the TOC region is encrypted.
func (h Header) TOCEncrypted() bool {
	return h.ArchiveFlags&FlagTOCEncrypted != 0
}

// ParseHeader decodes the 32-byte archive header. It is a pure function of
// its input slice: the magic is validated first, then the version, then the
// structural fields.
func ParseHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("%w: header is %d bytes, want %d", ErrInvalidMagic, len(buf), HeaderSize)
	}

	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrInvalidMagic, h.Magic, uint32(Magic))
	}

	h.VersionMajor = binary.BigEndian.Uint16(buf[4:6])
	h.VersionMinor = binary.BigEndian.Uint16(buf[6:8])
	if h.VersionMajor != versionMajor || h.VersionMinor != versionMinor {
		return Header{}, fmt.Errorf("%w: %d.%d, want %d.%d",
			ErrUnsupportedVersion, h.VersionMajor, h.VersionMinor, versionMajor, versionMinor)
	}

	copy(h.CompressionTag[:], buf[8:12])
	h.TOCLength = binary.BigEndian.Uint32(buf[12:16])
	h.TOCEntrySize = binary.BigEndian.Uint32(buf[16:20])
	h.EntryCount = binary.BigEndian.Uint32(buf[20:24])
	h.BlockSize = binary.BigEndian.Uint32(buf[24:28])
	h.ArchiveFlags = binary.BigEndian.Uint32(buf[28:32])

	if h.TOCLength < HeaderSize {
		return Header{}, fmt.Errorf("%w: toc length %d is smaller than the header",
			ErrTOCSizeMismatch, h.TOCLength)
	}
	if h.BlockSize == 0 {
		return Header{}, fmt.Errorf("%w: block size is zero", ErrTOCSizeMismatch)
	}

	return h, nil
}
