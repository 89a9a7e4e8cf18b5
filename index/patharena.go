package index

// PathArena is an append-only byte arena holding all entry path text.
// Entries reference it by (offset, length), decoupling path lifetime from
// mutable entry metadata: any number of readers may resolve paths while
// entry stat data and flags are rewritten.
//
// During parallel decode each worker fills a private arena for its chunk;
// the coordinator then splices the chunks together in offset order and
// rebases the references, so the final layout is fixed before any caller
// sees a PathRef.
type PathArena struct {
	buf []byte
}

// PathRef locates one path inside a PathArena.
type PathRef struct {
	off uint32
	len uint32
}

// Len returns the path length in bytes.
func (r PathRef) Len() int { return int(r.len) }

// NewPathArena returns an arena with capacity for sizeHint bytes.
func NewPathArena(sizeHint int) *PathArena {
	return &PathArena{buf: make([]byte, 0, sizeHint)}
}

// Append copies p into the arena and returns its reference.
func (a *PathArena) Append(p []byte) PathRef {
	off := len(a.buf)
	a.buf = append(a.buf, p...)
	return PathRef{off: uint32(off), len: uint32(len(p))}
}

// AppendParts copies the concatenation of two byte slices into the arena
// and returns its reference. Used by version-4 decoding, where a path is a
// kept prefix of the previous path plus a literal suffix.
func (a *PathArena) AppendParts(prefix, suffix []byte) PathRef {
	off := len(a.buf)
	a.buf = append(a.buf, prefix...)
	a.buf = append(a.buf, suffix...)
	return PathRef{off: uint32(off), len: uint32(len(prefix) + len(suffix))}
}

// Bytes resolves a reference. The returned slice aliases arena memory and
// must be treated as immutable.
func (a *PathArena) Bytes(r PathRef) []byte {
	return a.buf[r.off : r.off+r.len]
}

// Size returns the number of bytes stored.
func (a *PathArena) Size() int { return len(a.buf) }

// splice appends another arena's bytes and returns the offset delta to
// apply to its references.
func (a *PathArena) splice(o *PathArena) uint32 {
	delta := uint32(len(a.buf))
	a.buf = append(a.buf, o.buf...)
	return delta
}

// shift rebases a reference produced by a spliced arena.
func (r PathRef) shift(delta uint32) PathRef {
	return PathRef{off: r.off + delta, len: r.len}
}
