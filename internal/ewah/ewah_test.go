package ewah

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexkit/indexkit/internal/format"
)

func roundtrip(t *testing.T, b *Bitmap) *Bitmap {
	t.Helper()

	enc := b.Append(nil)
	got, n, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, len(enc), n, "decode must consume the full encoding")
	return got
}

func TestRoundtripEmpty(t *testing.T) {
	b := New(0)
	got := roundtrip(t, b)
	require.Equal(t, 0, got.Bits())
	require.Equal(t, 0, got.Popcount())

	// A zero-bit bitmap still serializes one marker word.
	enc := b.Append(nil)
	require.Len(t, enc, 4+4+8+4)
}

func TestRoundtripSparseBits(t *testing.T) {
	b := New(300)
	for _, i := range []int{0, 1, 63, 64, 130, 299} {
		b.Set(i)
	}
	got := roundtrip(t, b)
	require.True(t, b.Equal(got))
	require.Equal(t, 6, got.Popcount())
	require.True(t, got.Get(299))
	require.False(t, got.Get(298))
}

func TestRoundtripRunHeavy(t *testing.T) {
	// A long all-set prefix followed by a literal word compresses into a
	// fill run; the decoder must expand it back exactly.
	b := New(64*10 + 3)
	for i := 0; i < 64*10; i++ {
		b.Set(i)
	}
	b.Set(64*10 + 1)

	enc := b.Append(nil)
	// One marker plus one literal word.
	require.Equal(t, uint32(2), format.ReadU32(enc, 4))

	got := roundtrip(t, b)
	require.True(t, b.Equal(got))
}

func TestRoundtripAllZero(t *testing.T) {
	b := New(1000)
	got := roundtrip(t, b)
	require.True(t, b.Equal(got))
	require.Equal(t, 0, got.Popcount())
}

func TestRoundtripUnalignedTail(t *testing.T) {
	// 70 bits leaves 58 padding bits in the second word. They must stay
	// unset after a roundtrip even though the literal word covers them.
	b := New(70)
	b.Set(65)
	b.Set(69)
	got := roundtrip(t, b)
	require.True(t, b.Equal(got))
	require.Equal(t, 2, got.Popcount())
	require.False(t, got.Get(70))
}

func TestGetOutOfRange(t *testing.T) {
	b := New(10)
	b.Set(9)
	require.False(t, b.Get(-1))
	require.False(t, b.Get(10))
	require.Panics(t, func() { b.Set(10) })
}

func TestDecodeTruncated(t *testing.T) {
	b := New(100)
	b.Set(50)
	enc := b.Append(nil)

	for _, n := range []int{0, 4, 7, len(enc) - 1} {
		_, _, err := Decode(enc[:n])
		require.ErrorIs(t, err, format.ErrTruncated, "prefix of %d bytes", n)
	}
}

func TestDecodeLiteralOverrun(t *testing.T) {
	// A marker that declares more literal words than the stream holds.
	var enc []byte
	enc = format.AppendU32(enc, 64)              // bits
	enc = format.AppendU32(enc, 1)               // words
	enc = format.AppendU64(enc, 5<<literalShift) // marker: 5 literals, none present
	enc = format.AppendU32(enc, 0)
	_, _, err := Decode(enc)
	require.ErrorIs(t, err, format.ErrCorrupt)
}

func TestDecodeSetRunPastLength(t *testing.T) {
	// A run of set words overflowing the declared bit count is corrupt,
	// unlike zero runs which may cover padding.
	var enc []byte
	enc = format.AppendU32(enc, 64) // one word of bits
	enc = format.AppendU32(enc, 1)
	enc = format.AppendU64(enc, runBitMask|2<<runLenShift) // set run of 2 words
	enc = format.AppendU32(enc, 0)
	_, _, err := Decode(enc)
	require.ErrorIs(t, err, format.ErrCorrupt)
}

func TestDecodeRejectsBitsBeyondStream(t *testing.T) {
	// A tiny stream declaring four billion bits it never covers must be
	// rejected before the uncompressed bitmap is allocated.
	var enc []byte
	enc = format.AppendU32(enc, 0xFFFFFFF0) // bits
	enc = format.AppendU32(enc, 1)
	enc = format.AppendU64(enc, 0) // empty marker: no runs, no literals
	enc = format.AppendU32(enc, 0)
	_, _, err := Decode(enc)
	require.ErrorIs(t, err, format.ErrCorrupt)
}

func TestDecodeZeroRunPadding(t *testing.T) {
	// Compressors may round the zero run up to the word stream; the extra
	// words are padding, not an error.
	var enc []byte
	enc = format.AppendU32(enc, 10)
	enc = format.AppendU32(enc, 1)
	enc = format.AppendU64(enc, 4<<runLenShift) // zero run of 4 words for 10 bits
	enc = format.AppendU32(enc, 0)
	got, n, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, len(enc), n)
	require.Equal(t, 10, got.Bits())
	require.Equal(t, 0, got.Popcount())
}
