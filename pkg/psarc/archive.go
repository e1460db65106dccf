// Package psarc reads PSARC game content archives: a single file bundling
// many independently named, independently compressed assets with random
// access to any entry without decompressing the whole archive.
//
// An Archive is opened once, after which its entry table is immutable and
// concurrent reads are safe. Reads are positioned (io.ReaderAt), so parallel
// extraction needs no external locking when the source supports it; a
// single-cursor stream can be adapted with OpenReader, which serializes.
package psarc

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/falk/psarc-go/pkg/codec"
	"github.com/falk/psarc-go/pkg/crypto"
)

// Archive is an opened PSARC container. All methods are safe for concurrent
// use once Open returns.
type Archive struct {
	src    io.ReaderAt
	closer io.Closer
	closed atomic.Bool

	header  Header
	entries []Entry
	names   map[string]int
	blocks  blockReader
}

type config struct {
	tocKey []byte
}

// Option configures Open.
type Option func(*config)

// WithTOCKey overrides the default TOC decryption key. The key must be 32
// bytes; it is only consulted for archives whose encryption flag is set.
func WithTOCKey(key []byte) Option {
	return func(c *config) {
		c.tocKey = key
	}
}

// Open reads the archive structure from a positioned-read source of the given
// total size. It parses the header, decrypts the TOC if the archive is
// protected, decodes the entry and block tables, and resolves entry names
// from the name-list entry. Any failure before that returns a nil Archive and
// the originating error; name resolution alone is non-fatal and degrades to
// index-only access.
func Open(src io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	cfg := config{tocKey: DefaultTOCKey}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	hdr := make([]byte, HeaderSize)
	if n, err := src.ReadAt(hdr, 0); err != nil && n < len(hdr) {
		return nil, fmt.Errorf("psarc: read header: %w", err)
	}
	h, err := ParseHeader(hdr)
	if err != nil {
		return nil, err
	}

	if int64(h.TOCLength) > size {
		return nil, fmt.Errorf("%w: toc length %d exceeds file size %d",
			ErrTOCSizeMismatch, h.TOCLength, size)
	}

	toc := make([]byte, h.TOCLength-HeaderSize)
	if n, err := src.ReadAt(toc, HeaderSize); err != nil && n < len(toc) {
		return nil, fmt.Errorf("psarc: read toc: %w", err)
	}

	if h.TOCEncrypted() {
		toc, err = crypto.CFBDecrypt(toc, cfg.tocKey, tocIV)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTOCDecryptionFailed, err)
		}
	}

	entries, zLengths, err := parseTOC(toc, h)
	if err != nil {
		if h.TOCEncrypted() {
			// CFB has no integrity check; a wrong key surfaces as a TOC
			// whose tables don't add up.
			return nil, fmt.Errorf("%w: plaintext inconsistent (wrong key?): %v",
				ErrTOCDecryptionFailed, err)
		}
		return nil, err
	}

	a := &Archive{
		src:     src,
		header:  h,
		entries: entries,
		names:   make(map[string]int),
		blocks: blockReader{
			src:       src,
			codec:     codec.FromTag(h.CompressionTag),
			blockSize: h.BlockSize,
			zLengths:  zLengths,
		},
	}
	a.resolveNames()
	return a, nil
}

// OpenFile opens the archive at path. Close releases the file handle.
func OpenFile(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := Open(f, st.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// OpenReader opens an archive backed by a single-cursor stream. Every read is
// serialized through one seek-and-read critical section, so concurrent
// extraction gains nothing; callers wanting parallel reads should provide an
// io.ReaderAt to Open instead.
func OpenReader(rs io.ReadSeeker, size int64, opts ...Option) (*Archive, error) {
	return Open(&lockedReaderAt{rs: rs}, size, opts...)
}

// resolveNames decodes the name-list entry (index 0): newline-delimited
// relative paths for entries 1..N-1 in declared order. Entry 0 itself keeps
// no name. Failure here leaves entries identified by index only; the archive
// stays readable.
func (a *Archive) resolveNames() {
	if len(a.entries) == 0 || a.entries[0].Length == 0 {
		return
	}
	manifest, err := a.blocks.readEntry(a.entries[0])
	if err != nil {
		return
	}

	names := strings.Split(string(manifest), "\n")
	i := 1
	for _, name := range names {
		if i >= len(a.entries) {
			break
		}
		name = strings.TrimRight(name, "\r")
		if name == "" {
			continue
		}
		a.entries[i].Name = name
		a.names[name] = i
		i++
	}
}

// Header returns the parsed archive header.
func (a *Archive) Header() Header {
	return a.header
}

// List returns the ordered entry table. The returned slice is a copy; the
// archive's own table never changes after Open.
func (a *Archive) List() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// EntryCount returns the number of entries, including the name-list entry.
func (a *Archive) EntryCount() int {
	return len(a.entries)
}

// Entry returns the entry at index.
func (a *Archive) Entry(index int) (Entry, error) {
	if index < 0 || index >= len(a.entries) {
		return Entry{}, fmt.Errorf("%w: index %d of %d", ErrEntryNotFound, index, len(a.entries))
	}
	return a.entries[index], nil
}

// EntryByName returns the entry with the given resolved path.
func (a *Archive) EntryByName(name string) (Entry, error) {
	i, ok := a.names[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	return a.entries[i], nil
}

// Read decompresses the whole entry at index.
func (a *Archive) Read(index int) ([]byte, error) {
	if a.closed.Load() {
		return nil, ErrArchiveClosed
	}
	e, err := a.Entry(index)
	if err != nil {
		return nil, err
	}
	return a.blocks.readEntry(e)
}

// ReadName decompresses the whole entry with the given resolved path.
func (a *Archive) ReadName(name string) ([]byte, error) {
	if a.closed.Load() {
		return nil, ErrArchiveClosed
	}
	e, err := a.EntryByName(name)
	if err != nil {
		return nil, err
	}
	return a.blocks.readEntry(e)
}

// ReadRange decompresses the byte span [off, off+n) of the entry at index.
// The span is clamped to the entry's length. Decoding starts at the block
// containing off, not at the entry's first block.
func (a *Archive) ReadRange(index int, off, n uint64) ([]byte, error) {
	if a.closed.Load() {
		return nil, ErrArchiveClosed
	}
	e, err := a.Entry(index)
	if err != nil {
		return nil, err
	}
	return a.blocks.readRange(e, off, n)
}

// Close releases the byte source. Reads after Close fail with
// ErrArchiveClosed. Close is idempotent.
func (a *Archive) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// lockedReaderAt adapts a single-cursor io.ReadSeeker to io.ReaderAt by
// serializing seek+read pairs under one mutex.
type lockedReaderAt struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func (l *lockedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(l.rs, p)
}
