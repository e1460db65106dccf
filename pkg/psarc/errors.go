package psarc

import "errors"

// Error taxonomy of the container core. Open-stage failures abort Open
// entirely; per-entry read failures are local to that call. Callers match
// with errors.Is.
var (
	ErrInvalidMagic           = errors.New("psarc: invalid magic")
	ErrUnsupportedVersion     = errors.New("psarc: unsupported version")
	ErrUnsupportedCompression = errors.New("psarc: unsupported compression")
	ErrTOCDecryptionFailed    = errors.New("psarc: toc decryption failed")
	ErrTOCSizeMismatch        = errors.New("psarc: toc size mismatch")
	ErrTruncatedBlockData     = errors.New("psarc: truncated block data")
	ErrDecompressionFailure   = errors.New("psarc: block decompression failed")
	ErrEntryNotFound          = errors.New("psarc: entry not found")
	ErrArchiveClosed          = errors.New("psarc: archive closed")
)
