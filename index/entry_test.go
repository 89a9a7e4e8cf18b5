package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexkit/indexkit/internal/format"
)

// appendRawEntryV4 emits one version-4 record by hand: fixed fields, then a
// varint strip count against prev and the literal suffix.
func appendRawEntryV4(dst []byte, prev, path string, hash byte) []byte {
	for i := 0; i < 6; i++ {
		dst = format.AppendU32(dst, 0)
	}
	dst = format.AppendU32(dst, format.ModeRegular)
	dst = format.AppendU32(dst, 0)
	dst = format.AppendU32(dst, 0)
	dst = format.AppendU32(dst, 0)
	dst = append(dst, testHash(format.SHA1Size, hash)...)
	dst = format.AppendU16(dst, uint16(len(path)))

	common := commonPrefix([]byte(prev), []byte(path))
	dst = format.AppendVarint(dst, uint64(len(prev)-common))
	dst = append(dst, path[common:]...)
	dst = append(dst, 0)
	return dst
}

func TestDecodeEntryV4PrefixCompression(t *testing.T) {
	// "src/main" followed by "src/lib.rs": the second record strips the
	// four bytes after the shared "src/" prefix and appends "lib.rs".
	prev := "src/main"
	rec := appendRawEntryV4(nil, prev, "src/lib.rs", 0x22)

	arena := NewPathArena(0)
	e, pos, path, err := decodeEntry(rec, 0, V4, format.SHA1Size, []byte(prev), arena)
	require.NoError(t, err)
	require.Equal(t, len(rec), pos, "no record padding in version 4")
	require.Equal(t, []byte("src/lib.rs"), path)
	require.Equal(t, []byte("src/lib.rs"), e.PathIn(arena))
	require.Equal(t, testHash(format.SHA1Size, 0x22), e.Hash)
}

func TestDecodeEntryV4FullStrip(t *testing.T) {
	// A path sharing nothing with its predecessor strips all of it.
	rec := appendRawEntryV4(nil, "zzz", "a", 0x01)
	arena := NewPathArena(0)
	_, _, path, err := decodeEntry(rec, 0, V4, format.SHA1Size, []byte("zzz"), arena)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), path)
}

func TestDecodeEntryV4StripTooLong(t *testing.T) {
	// Strip count exceeding the previous path length is corrupt.
	var rec []byte
	for i := 0; i < 10; i++ {
		rec = format.AppendU32(rec, 0)
	}
	rec = append(rec, testHash(format.SHA1Size, 0x01)...)
	rec = format.AppendU16(rec, 1)
	rec = format.AppendVarint(rec, 5) // prev is only 3 bytes
	rec = append(rec, 'x', 0)

	_, _, _, err := decodeEntry(rec, 0, V4, format.SHA1Size, []byte("abc"), arena0())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeEntryV4DeclaredLengthMismatch(t *testing.T) {
	// The flag word's stored length must match the resolved path.
	var rec []byte
	for i := 0; i < 10; i++ {
		rec = format.AppendU32(rec, 0)
	}
	rec = append(rec, testHash(format.SHA1Size, 0x01)...)
	rec = format.AppendU16(rec, 7) // actual resolved path is 3 bytes
	rec = format.AppendVarint(rec, 0)
	rec = append(rec, 'a', 'b', 'c', 0)

	_, _, _, err := decodeEntry(rec, 0, V4, format.SHA1Size, nil, arena0())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeEntryRejectsExtendedFlagInV2(t *testing.T) {
	var rec []byte
	for i := 0; i < 10; i++ {
		rec = format.AppendU32(rec, 0)
	}
	rec = append(rec, testHash(format.SHA1Size, 0x01)...)
	rec = format.AppendU16(rec, format.FlagExtended|1)
	rec = format.AppendU16(rec, format.FlagSkipWorktree)
	rec = append(rec, 'a', 0)

	_, _, _, err := decodeEntry(rec, 0, V2, format.SHA1Size, nil, arena0())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeEntryRejectsUnknownExtendedBits(t *testing.T) {
	var rec []byte
	for i := 0; i < 10; i++ {
		rec = format.AppendU32(rec, 0)
	}
	rec = append(rec, testHash(format.SHA1Size, 0x01)...)
	rec = format.AppendU16(rec, format.FlagExtended|1)
	rec = format.AppendU16(rec, 0x0001) // none of the known bits
	rec = append(rec, 'a', 0)
	for len(rec)%format.EntryAlignment != 0 {
		rec = append(rec, 0)
	}

	_, _, _, err := decodeEntry(rec, 0, V3, format.SHA1Size, nil, arena0())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestEntryRoundtripV3ExtendedFlags(t *testing.T) {
	arena := NewPathArena(0)
	e := Entry{
		Mode:  format.ModeRegular,
		Hash:  testHash(format.SHA1Size, 0x42),
		Flags: AssumeValid | SkipWorktree | IntentToAdd,
		Stage: StageNormal,
	}
	path := []byte("sparse/file")

	enc, err := appendEntry(nil, &e, path, V3, format.SHA1Size, nil, 0)
	require.NoError(t, err)
	require.Zero(t, len(enc)%format.EntryAlignment)

	got, pos, gotPath, err := decodeEntry(enc, 0, V3, format.SHA1Size, nil, arena)
	require.NoError(t, err)
	require.Equal(t, len(enc), pos)
	require.Equal(t, path, gotPath)
	require.Equal(t, e.Flags, got.Flags)
}

func TestAppendEntryRejectsExtendedFlagsInV2(t *testing.T) {
	e := Entry{
		Mode:  format.ModeRegular,
		Hash:  testHash(format.SHA1Size, 0x42),
		Flags: SkipWorktree,
	}
	_, err := appendEntry(nil, &e, []byte("x"), V2, format.SHA1Size, nil, 0)
	require.Error(t, err)
}

func TestAppendEntryRejectsWrongHashWidth(t *testing.T) {
	e := Entry{Hash: testHash(10, 0x42)}
	_, err := appendEntry(nil, &e, []byte("x"), V2, format.SHA1Size, nil, 0)
	require.Error(t, err)
}

func TestOnDiskFlagsStageAndLength(t *testing.T) {
	e := Entry{Stage: StageTheirs, Flags: AssumeValid}
	flags, ext, needExt := onDiskFlags(&e, 5)
	require.False(t, needExt)
	require.Zero(t, ext)
	require.Equal(t, uint16(5), flags&format.FlagPathLenMask)
	require.Equal(t, uint16(StageTheirs), flags&format.FlagStageMask>>format.FlagStageShift)
	require.NotZero(t, flags&format.FlagAssumeValid)
}

func TestOnDiskFlagsSaturatesLongPaths(t *testing.T) {
	e := Entry{}
	flags, _, _ := onDiskFlags(&e, format.FlagPathLenMask+100)
	require.Equal(t, uint16(format.FlagPathLenMask), flags&format.FlagPathLenMask)
}

func arena0() *PathArena { return NewPathArena(0) }
