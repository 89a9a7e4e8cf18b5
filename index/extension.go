package index

import (
	"fmt"

	"github.com/indexkit/indexkit/internal/format"
)

// Extension chunks follow the entry region: a 4-byte signature, a 4-byte
// big-endian payload length, and exactly that many payload bytes. A chunk
// whose signature starts with a lowercase letter is optional; anything else
// is mandatory and must be understood by the reader.

// Signature is a 4-byte extension chunk signature.
type Signature [4]byte

func (s Signature) String() string { return string(s[:]) }

// Optional reports whether a reader may skip the chunk: the first signature
// byte is a lowercase ASCII letter.
func (s Signature) Optional() bool { return s[0] >= 'a' && s[0] <= 'z' }

// Opaque is an extension chunk this engine does not interpret, preserved
// verbatim so a re-encoded index keeps it.
type Opaque struct {
	Signature Signature
	Payload   []byte
}

// extIter walks the extension region chunk by chunk.
type extIter struct {
	buf []byte
	pos int
}

// next returns the next chunk, or ok=false at the end of the region.
func (it *extIter) next() (sig Signature, payload []byte, ok bool, err error) {
	if it.pos == len(it.buf) {
		return Signature{}, nil, false, nil
	}
	if it.pos+format.ExtensionHeaderSize > len(it.buf) {
		return Signature{}, nil, false, fmt.Errorf("%w: extension header at %d", format.ErrTruncated, it.pos)
	}
	copy(sig[:], it.buf[it.pos:])
	size := int(format.ReadU32(it.buf, it.pos+4))
	it.pos += format.ExtensionHeaderSize
	if it.pos+size > len(it.buf) {
		return Signature{}, nil, false, fmt.Errorf("%w: extension %s declares %d bytes, %d remain", format.ErrTruncated, sig, size, len(it.buf)-it.pos)
	}
	payload = it.buf[it.pos : it.pos+size]
	it.pos += size
	return sig, payload, true, nil
}

// decodeExtensions dispatches every chunk in region onto the state.
// Decoders copy what they keep; region may be unmapped afterwards.
func decodeExtensions(region []byte, s *State, f ObjectFormat) error {
	it := &extIter{buf: region}
	for {
		sig, payload, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch sig {
		case Signature(format.TreeSignature):
			s.TreeCache, err = decodeTreeCache(payload, f.Size())
		case Signature(format.ResolveUndoSignature):
			s.ResolveUndo, err = decodeResolveUndo(payload, f.Size())
		case Signature(format.UntrackedSignature):
			s.UntrackedCache, err = decodeUntrackedCache(payload, f.Size())
		case Signature(format.FSMonitorSignature):
			s.FSMonitor, err = decodeFSMonitor(payload)
		case Signature(format.LinkSignature):
			s.Link, err = decodeLink(payload, f.Size())
		case Signature(format.OffsetTableSignature):
			// Derived layout data; validated here, recomputed on encode.
			_, err = decodeOffsetTable(payload)
		case Signature(format.EndOfIndexSignature):
			_, err = decodeEndOfIndex(payload, f.Size())
		default:
			if !sig.Optional() {
				return fmt.Errorf("%w: %s", format.ErrUnsupportedExtension, sig)
			}
			s.Opaque = append(s.Opaque, Opaque{
				Signature: sig,
				Payload:   append([]byte(nil), payload...),
			})
		}
		if err != nil {
			return fmt.Errorf("extension %s: %w", sig, err)
		}
	}
}

// appendExtension frames a payload with its signature and length.
func appendExtension(dst []byte, sig Signature, payload []byte) []byte {
	dst = append(dst, sig[:]...)
	dst = format.AppendU32(dst, uint32(len(payload)))
	return append(dst, payload...)
}
