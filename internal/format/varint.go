package format

import "fmt"

// Variable-width integers use git's "offset encoding": every byte carries
// seven payload bits, the high bit marks continuation, and each continuation
// step adds one before shifting so that no value has more than one encoding.
//
//	0x00..0x7F            one byte
//	0x80 0x00..0xFF 0x7F  two bytes covering 128..16511
//
// The same encoding is shared by version-4 path compression and the
// untracked-cache directory counts.

// maxVarintLen bounds how many bytes a 64-bit value may occupy.
const maxVarintLen = 10

// ReadVarint decodes a variable-width integer starting at b[0].
// It returns the value and the number of bytes consumed.
func ReadVarint(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}
	c := b[0]
	v := uint64(c & 0x7F)
	n := 1
	for c&0x80 != 0 {
		if n >= len(b) {
			return 0, 0, ErrTruncated
		}
		if n >= maxVarintLen {
			return 0, 0, fmt.Errorf("%w: varint longer than %d bytes", ErrCorrupt, maxVarintLen)
		}
		c = b[n]
		n++
		v++
		if v >= 1<<57 {
			return 0, 0, fmt.Errorf("%w: varint overflows 64 bits", ErrCorrupt)
		}
		v = (v << 7) | uint64(c&0x7F)
	}
	return v, n, nil
}

// AppendVarint appends the offset encoding of v to dst.
func AppendVarint(dst []byte, v uint64) []byte {
	var tmp [maxVarintLen]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7F)
	for v >>= 7; v != 0; v >>= 7 {
		v--
		i--
		tmp[i] = 0x80 | byte(v&0x7F)
	}
	return append(dst, tmp[i:]...)
}
