package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexkit/indexkit/internal/format"
)

func TestFindEndOfIndex(t *testing.T) {
	s := blockedState(t, 8)
	buf, err := s.Encode(WriteOptions{OffsetTableBlocks: 2})
	require.NoError(t, err)

	eoi, ok := findEndOfIndex(buf, SHA1)
	require.True(t, ok)

	// The offset names the first extension chunk, which is the table.
	require.Equal(t, format.OffsetTableSignature[:], buf[eoi.Offset:eoi.Offset+4])
}

func TestFindEndOfIndexAbsent(t *testing.T) {
	ext := NoExtensions()
	buf, err := blockedState(t, 4).Encode(WriteOptions{Extensions: &ext})
	require.NoError(t, err)
	_, ok := findEndOfIndex(buf, SHA1)
	require.False(t, ok)
}

func TestEndOfIndexDigestMismatchFallsBackToSequential(t *testing.T) {
	s := blockedState(t, 8)
	buf, err := s.Encode(WriteOptions{OffsetTableBlocks: 2})
	require.NoError(t, err)

	// Flip one digest byte inside the end-of-index payload and reseal the
	// trailer. The marker is no longer trusted, so a parallel request
	// silently decodes sequentially; the file itself is still valid.
	idx := bytes.Index(buf, format.EndOfIndexSignature[:])
	require.GreaterOrEqual(t, idx, 0)
	buf[idx+format.ExtensionHeaderSize+4] ^= 0xFF
	body := buf[:len(buf)-format.SHA1Size]
	copy(buf[len(buf)-format.SHA1Size:], computeChecksum(SHA1, body))

	_, ok := findEndOfIndex(buf, SHA1)
	require.False(t, ok)

	got, err := Decode(buf, DecodeOptions{MaxParallel: 8})
	require.NoError(t, err)
	require.Equal(t, 8, got.Len())
}

func TestEndOfIndexIsLastExtension(t *testing.T) {
	buf, err := fullState(t).Encode(WriteOptions{OffsetTableBlocks: 2})
	require.NoError(t, err)

	// Fixed position: signature, 4-byte size, 4-byte offset, digest,
	// trailer.
	total := format.ExtensionHeaderSize + 4 + 2*format.SHA1Size
	require.Equal(t, format.EndOfIndexSignature[:], buf[len(buf)-total:len(buf)-total+4])
}
