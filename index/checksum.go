package index

import (
	"bytes"
	"fmt"

	"github.com/indexkit/indexkit/internal/format"
)

// Checksum trailer. The final hash-width bytes of the file are a hash over
// every preceding byte. A mismatch rejects the file outright: downstream
// commit and diff operations trust the decoded state completely, so a
// partially-valid index is never returned.

// computeChecksum hashes data with the format's algorithm.
func computeChecksum(f ObjectFormat, data []byte) []byte {
	h := f.NewHasher()
	h.Write(data)
	return h.Sum(nil)
}

// validateTrailer checks the trailing hash of a whole index buffer and
// returns the trailer bytes.
func validateTrailer(f ObjectFormat, buf []byte) ([]byte, error) {
	n := f.Size()
	if len(buf) < format.HeaderSize+n {
		return nil, fmt.Errorf("%w: %d bytes cannot hold a header and a %s trailer", format.ErrTruncated, len(buf), f)
	}
	body, trailer := buf[:len(buf)-n], buf[len(buf)-n:]
	if !bytes.Equal(computeChecksum(f, body), trailer) {
		return nil, fmt.Errorf("%w: trailer hash mismatch", format.ErrCorrupt)
	}
	return trailer, nil
}
