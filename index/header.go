package index

import (
	"bytes"
	"fmt"

	"github.com/indexkit/indexkit/internal/format"
)

// Header is the parsed 12-byte index header.
type Header struct {
	Version    Version
	EntryCount uint32
}

// ParseHeader validates the signature and version and returns the header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < format.HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is too small for an index header", format.ErrTruncated, len(b))
	}
	if !bytes.Equal(b[format.HeaderSignatureOffset:format.HeaderSignatureOffset+4], format.IndexSignature) {
		return Header{}, fmt.Errorf("%w: signature %q", format.ErrFormat, b[:4])
	}
	v := format.ReadU32(b, format.HeaderVersionOffset)
	if v < format.VersionMin || v > format.VersionMax {
		return Header{}, fmt.Errorf("%w: version %d", format.ErrFormat, v)
	}
	return Header{
		Version:    Version(v),
		EntryCount: format.ReadU32(b, format.HeaderEntryCountOffset),
	}, nil
}

// appendHeader emits the 12-byte header.
func appendHeader(dst []byte, v Version, entries uint32) []byte {
	dst = append(dst, format.IndexSignature...)
	dst = format.AppendU32(dst, uint32(v))
	dst = format.AppendU32(dst, entries)
	return dst
}
