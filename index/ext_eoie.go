package index

import (
	"bytes"
	"fmt"

	"github.com/indexkit/indexkit/internal/format"
)

// End-of-index-entry extension ("EOIE"): written last, with a fixed-size
// payload, so a reader can find it at a fixed distance from the end of the
// file without parsing any entries. It records where the extension region
// begins and a digest over the headers (signature and size, not content) of
// every extension before it. That is enough to locate the entry-offset
// table and start parallel entry decoding immediately.

// endOfIndex is the decoded marker. It is a derived view of the byte
// layout, recomputed on every encode, and therefore never stored on State.
type endOfIndex struct {
	// Offset is the absolute file offset where extensions begin.
	Offset uint32
	// Digest hashes the (signature, size) header of every extension
	// between the entries and the marker itself.
	Digest []byte
}

func decodeEndOfIndex(p []byte, hashLen int) (endOfIndex, error) {
	if len(p) != 4+hashLen {
		return endOfIndex{}, fmt.Errorf("%w: end-of-index payload is %d bytes, want %d", format.ErrCorrupt, len(p), 4+hashLen)
	}
	return endOfIndex{
		Offset: format.ReadU32(p, 0),
		Digest: append([]byte(nil), p[4:]...),
	}, nil
}

// headerDigest hashes the chunk headers of the extension region in region
// order, as the marker digest requires.
func headerDigest(f ObjectFormat, headers []Signature, sizes []int) []byte {
	h := f.NewHasher()
	var tmp [format.ExtensionHeaderSize]byte
	for i, sig := range headers {
		copy(tmp[:4], sig[:])
		format.PutU32(tmp[:], 4, uint32(sizes[i]))
		h.Write(tmp[:])
	}
	return h.Sum(nil)
}

func appendEndOfIndex(dst []byte, offset uint32, digest []byte) []byte {
	payload := make([]byte, 0, 4+len(digest))
	payload = format.AppendU32(payload, offset)
	payload = append(payload, digest...)
	return appendExtension(dst, Signature(format.EndOfIndexSignature), payload)
}

// findEndOfIndex looks for the marker at its fixed position: immediately
// before the trailer. Any inconsistency reports ok=false rather than an
// error: entry bytes may spell out the signature by coincidence, so the
// marker is only trusted when its offset and digest check out. A real but
// malformed marker chunk still fails the decode later, during extension
// iteration.
func findEndOfIndex(buf []byte, f ObjectFormat) (endOfIndex, bool) {
	hashLen := f.Size()
	total := format.ExtensionHeaderSize + 4 + hashLen // header + payload
	start := len(buf) - hashLen - total
	if start < format.HeaderSize {
		return endOfIndex{}, false
	}
	var sig Signature
	copy(sig[:], buf[start:])
	if sig != Signature(format.EndOfIndexSignature) {
		return endOfIndex{}, false
	}
	if size := format.ReadU32(buf, start+4); int(size) != 4+hashLen {
		return endOfIndex{}, false
	}
	eoi, err := decodeEndOfIndex(buf[start+format.ExtensionHeaderSize:len(buf)-hashLen], hashLen)
	if err != nil {
		return endOfIndex{}, false
	}
	if int(eoi.Offset) < format.HeaderSize || int(eoi.Offset) > start {
		return endOfIndex{}, false
	}

	// The digest spans the headers of every extension before the marker;
	// walking only headers is cheap and proves the offset is framed right.
	it := &extIter{buf: buf[eoi.Offset:start]}
	var sigs []Signature
	var sizes []int
	for {
		sig, payload, ok, err := it.next()
		if err != nil {
			return endOfIndex{}, false
		}
		if !ok {
			break
		}
		sigs = append(sigs, sig)
		sizes = append(sizes, len(payload))
	}
	if !bytes.Equal(headerDigest(f, sigs, sizes), eoi.Digest) {
		return endOfIndex{}, false
	}
	return eoi, true
}
