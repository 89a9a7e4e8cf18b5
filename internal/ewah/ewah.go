// Package ewah implements the word-aligned run-length bitmap encoding used
// by index extensions (untracked cache, filesystem monitor, split-index
// link).
//
// The serialized form is:
//
//	0x00  u32  number of bits in the uncompressed bitmap
//	0x04  u32  number of 64-bit words that follow
//	0x08  u64  words...
//	 ...  u32  word position of the last marker word
//
// All integers are big-endian. The word stream alternates marker words and
// literal words. A marker word packs three fields:
//
//	bit  0       run bit (value of the run)
//	bits 1..32   run length, in whole 64-bit words
//	bits 33..63  count of literal words that follow the marker
//
// Bits are numbered least-significant first within each word.
package ewah

import (
	"fmt"

	"github.com/indexkit/indexkit/internal/format"
)

const (
	wordBits = 64

	runBitMask    = 1
	runLenShift   = 1
	runLenMask    = 0xFFFFFFFF
	literalShift  = 33
	maxRunLen     = runLenMask
	maxLiteralLen = 1<<31 - 1
)

// Bitmap is an uncompressed bitmap with a fixed bit length.
type Bitmap struct {
	words []uint64
	bits  int
}

// New returns a bitmap of nbits bits, all unset.
func New(nbits int) *Bitmap {
	return &Bitmap{
		words: make([]uint64, (nbits+wordBits-1)/wordBits),
		bits:  nbits,
	}
}

// Bits returns the bit length of the bitmap.
func (b *Bitmap) Bits() int { return b.bits }

// Set sets bit i. It panics if i is out of range, mirroring slice indexing.
func (b *Bitmap) Set(i int) {
	if i < 0 || i >= b.bits {
		panic(fmt.Sprintf("ewah: bit %d out of range [0,%d)", i, b.bits))
	}
	b.words[i/wordBits] |= 1 << (i % wordBits)
}

// Get reports whether bit i is set. Bits outside the range are unset.
func (b *Bitmap) Get(i int) bool {
	if i < 0 || i >= b.bits {
		return false
	}
	return b.words[i/wordBits]&(1<<(i%wordBits)) != 0
}

// Popcount returns the number of set bits.
func (b *Bitmap) Popcount() int {
	n := 0
	for i := 0; i < b.bits; i++ {
		if b.Get(i) {
			n++
		}
	}
	return n
}

// Equal reports whether two bitmaps have the same length and the same bits.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b.bits != o.bits {
		return false
	}
	for i, w := range b.words {
		if w != o.words[i] {
			return false
		}
	}
	return true
}

func isFill(w uint64) bool { return w == 0 || w == ^uint64(0) }

// Append appends the serialized bitmap to dst and returns the extended slice.
func (b *Bitmap) Append(dst []byte) []byte {
	dst = format.AppendU32(dst, uint32(b.bits))

	var stream []uint64
	lastRLW := 0
	i := 0
	for i < len(b.words) {
		var runBit uint64
		runLen := uint64(0)
		if isFill(b.words[i]) {
			if b.words[i] != 0 {
				runBit = 1
			}
			fill := b.words[i]
			for i < len(b.words) && b.words[i] == fill && runLen < maxRunLen {
				runLen++
				i++
			}
		}
		litStart := i
		for i < len(b.words) && !isFill(b.words[i]) && i-litStart < maxLiteralLen {
			i++
		}
		lastRLW = len(stream)
		marker := runBit | runLen<<runLenShift | uint64(i-litStart)<<literalShift
		stream = append(stream, marker)
		stream = append(stream, b.words[litStart:i]...)
	}
	if len(stream) == 0 {
		// An empty bitmap still carries one zero marker word.
		stream = []uint64{0}
	}

	dst = format.AppendU32(dst, uint32(len(stream)))
	for _, w := range stream {
		dst = format.AppendU64(dst, w)
	}
	dst = format.AppendU32(dst, uint32(lastRLW))
	return dst
}

// Decode reads a serialized bitmap from the front of b. It returns the
// bitmap and the number of bytes consumed.
func Decode(b []byte) (*Bitmap, int, error) {
	if len(b) < 8 {
		return nil, 0, format.ErrTruncated
	}
	nbits := int(format.ReadU32(b, 0))
	nwords := int(format.ReadU32(b, 4))
	need := 8 + nwords*8 + 4
	if len(b) < need {
		return nil, 0, format.ErrTruncated
	}

	// Walk the markers once before allocating anything sized by nbits: the
	// declared bit count is untrusted, and the uncompressed bitmap it asks
	// for must be covered by runs and literals actually in the stream.
	avail := uint64(0)
	for pos, w := 8, 0; w < nwords; {
		marker := format.ReadU64(b, pos)
		literals := int(marker >> literalShift)
		if w+1+literals > nwords {
			return nil, 0, fmt.Errorf("%w: bitmap marker declares %d literal words beyond stream", format.ErrCorrupt, literals)
		}
		avail += marker >> runLenShift & runLenMask
		avail += uint64(literals)
		pos += 8 * (1 + literals)
		w += 1 + literals
	}
	if needWords := (uint64(nbits) + wordBits - 1) / wordBits; avail < needWords {
		return nil, 0, fmt.Errorf("%w: bitmap declares %d bits, stream covers %d words", format.ErrCorrupt, nbits, avail)
	}

	bm := New(nbits)
	out := 0 // next uncompressed word to fill
	pos := 8
	for w := 0; w < nwords; {
		marker := format.ReadU64(b, pos)
		pos += 8
		w++

		runLen := int(marker >> runLenShift & runLenMask)
		literals := int(marker >> literalShift)
		if w+literals > nwords {
			return nil, 0, fmt.Errorf("%w: bitmap marker declares %d literal words beyond stream", format.ErrCorrupt, literals)
		}

		if marker&runBitMask != 0 {
			if out+runLen > len(bm.words) {
				return nil, 0, fmt.Errorf("%w: set-bit run exceeds declared %d bits", format.ErrCorrupt, nbits)
			}
			for k := 0; k < runLen; k++ {
				bm.words[out] = ^uint64(0)
				out++
			}
		} else {
			// Runs of unset words past the declared length are padding.
			out += runLen
			if out > len(bm.words) {
				out = len(bm.words)
			}
		}
		for k := 0; k < literals; k++ {
			word := format.ReadU64(b, pos)
			pos += 8
			w++
			if out < len(bm.words) {
				bm.words[out] = word
				out++
			} else if word != 0 {
				return nil, 0, fmt.Errorf("%w: set bits beyond declared %d bits", format.ErrCorrupt, nbits)
			}
		}
	}
	// Trailing padding bits in the last word decode as unset.
	if rem := nbits % wordBits; rem != 0 && len(bm.words) > 0 {
		bm.words[len(bm.words)-1] &= 1<<rem - 1
	}
	pos += 4 // last-marker position, informational only
	return bm, pos, nil
}
