package index

import (
	"fmt"

	"github.com/indexkit/indexkit/internal/format"
)

// Sentinel errors. Every decode failure wraps exactly one of these, so
// callers can classify with errors.Is regardless of the message detail.
var (
	// ErrFormat reports a bad file signature or a version outside 2..4.
	ErrFormat = format.ErrFormat
	// ErrTruncated reports a declared length exceeding the available bytes.
	ErrTruncated = format.ErrTruncated
	// ErrCorrupt reports a checksum mismatch, inconsistent extension
	// framing, or an entry ordering violation.
	ErrCorrupt = format.ErrCorrupt
	// ErrUnsupportedExtension reports an unknown extension whose signature
	// marks it as mandatory.
	ErrUnsupportedExtension = format.ErrUnsupportedExtension
)

// DecodeTaskError reports the failure of one parallel entry-decode worker,
// carrying the offset-table block it was decoding and the original cause.
type DecodeTaskError struct {
	Block int
	Err   error
}

func (e *DecodeTaskError) Error() string {
	return fmt.Sprintf("index: entry block %d: %v", e.Block, e.Err)
}

func (e *DecodeTaskError) Unwrap() error { return e.Err }
