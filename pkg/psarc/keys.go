package psarc

// DefaultTOCKey is the AES-256 key protecting the TOC of retail archives. It
// is a constant of the format, recovered by the community rather than issued
// to integrators, so Open accepts a replacement via WithTOCKey.
var DefaultTOCKey = []byte{
	0xC5, 0x3D, 0xB2, 0x38, 0x70, 0xA1, 0xA2, 0xF7,
	0x1C, 0xAE, 0x64, 0x06, 0x1F, 0xDD, 0x0E, 0x11,
	0x57, 0x30, 0x9D, 0xC8, 0x52, 0x04, 0xD4, 0xC5,
	0xBF, 0xDF, 0x25, 0x09, 0x0D, 0xF2, 0x57, 0x2C,
}

// tocIV is the fixed CFB initialization vector for the TOC region. Unlike the
// key it is baked into the format and not derived from archive content.
var tocIV = []byte{
	0xE9, 0x15, 0xAA, 0x01, 0x8F, 0xEF, 0x71, 0xFC,
	0x50, 0x81, 0x32, 0xE4, 0xBB, 0x4C, 0xEB, 0x42,
}
