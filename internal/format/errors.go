package format

import "errors"

var (
	// ErrFormat indicates a bad file signature or an unsupported version.
	ErrFormat = errors.New("format: bad signature or version")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrCorrupt indicates a structural inconsistency: checksum mismatch,
	// extension framing that does not add up, or entry ordering violations.
	ErrCorrupt = errors.New("format: corrupt index")
	// ErrUnsupportedExtension indicates an unknown extension whose signature
	// marks it as mandatory.
	ErrUnsupportedExtension = errors.New("format: unsupported mandatory extension")
)
