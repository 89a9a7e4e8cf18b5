package index

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexkit/indexkit/internal/ewah"
	"github.com/indexkit/indexkit/internal/format"
)

// fullState builds a state carrying every extension this engine decodes,
// consistent enough to survive an encode.
func fullState(t *testing.T) *State {
	t.Helper()

	s := NewState(SHA1)
	s.Insert("a.txt", plainEntry(0x11))
	s.Insert("src/lib.rs", plainEntry(0x22))
	s.Insert("src/main.rs", plainEntry(0x33))

	s.TreeCache = &TreeCache{Nodes: []TreeCacheNode{
		{Path: nil, EntryCount: 3, Subtrees: 1, Hash: testHash(format.SHA1Size, 0xA0)},
		{Path: []byte("src"), EntryCount: 2, Subtrees: 0, Hash: testHash(format.SHA1Size, 0xA1)},
	}}

	s.ResolveUndo = &ResolveUndo{Entries: []ResolveUndoEntry{{
		Path:  []byte("a.txt"),
		Modes: [3]uint32{0o100644, 0o100644, 0},
		Hashes: [3][]byte{
			testHash(format.SHA1Size, 0xB1),
			testHash(format.SHA1Size, 0xB2),
			nil,
		},
	}}}

	valid := ewah.New(2)
	valid.Set(0)
	valid.Set(1)
	statPresent := ewah.New(2)
	statPresent.Set(0)
	s.UntrackedCache = &UntrackedCache{
		Ident:            []byte("test ident"),
		DirFlags:         1,
		InfoExcludeHash:  testHash(format.SHA1Size, 0xC1),
		ExcludesFileHash: testHash(format.SHA1Size, 0xC2),
		PerDirExclude:    []byte(".gitignore"),
		Dirs: []UntrackedDir{
			{Name: nil, Subdirs: 1, Untracked: [][]byte{[]byte("scratch.o")}},
			{Name: []byte("src"), Subdirs: 0},
		},
		Valid:       valid,
		CheckOnly:   ewah.New(2),
		StatPresent: statPresent,
		Stats:       []StatData{{MtimeSec: 7, Size: 11}},
		Hashes:      [][]byte{testHash(format.SHA1Size, 0xC3)},
	}

	dirty := ewah.New(3)
	dirty.Set(1)
	s.FSMonitor = &FSMonitor{Version: 2, Token: []byte("builtin:42"), Dirty: dirty}

	del := ewah.New(4)
	del.Set(2)
	repl := ewah.New(4)
	repl.Set(0)
	s.Link = &Link{BaseHash: testHash(format.SHA1Size, 0xD1), Delete: del, Replace: repl}

	s.Opaque = []Opaque{{Signature: Signature{'z', 'z', 'z', 'z'}, Payload: []byte("keep me")}}
	return s
}

func TestEncodeDecodeRoundtripAllExtensions(t *testing.T) {
	opts := WriteOptions{OffsetTableBlocks: 2}
	buf, err := fullState(t).Encode(opts)
	require.NoError(t, err)

	s, err := Decode(buf, DecodeOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "src/lib.rs", "src/main.rs"}, statePaths(s))

	require.NotNil(t, s.TreeCache)
	require.Len(t, s.TreeCache.Nodes, 2)
	require.Equal(t, int32(3), s.TreeCache.Nodes[0].EntryCount)
	require.Equal(t, []byte("src"), s.TreeCache.Nodes[1].Path)

	require.NotNil(t, s.ResolveUndo)
	require.Equal(t, [3]uint32{0o100644, 0o100644, 0}, s.ResolveUndo.Entries[0].Modes)
	require.Nil(t, s.ResolveUndo.Entries[0].Hashes[2])

	require.NotNil(t, s.UntrackedCache)
	require.Equal(t, []byte("test ident"), s.UntrackedCache.Ident)
	require.Equal(t, [][]byte{[]byte("scratch.o")}, s.UntrackedCache.Dirs[0].Untracked)
	require.Equal(t, 1, s.UntrackedCache.StatPresent.Popcount())
	require.Equal(t, uint32(7), s.UntrackedCache.Stats[0].MtimeSec)

	require.NotNil(t, s.FSMonitor)
	require.Equal(t, []byte("builtin:42"), s.FSMonitor.Token)
	require.True(t, s.FSMonitor.Dirty.Get(1))
	require.False(t, s.FSMonitor.Dirty.Get(0))

	require.NotNil(t, s.Link)
	require.True(t, s.Link.HasBase())
	require.True(t, s.Link.Delete.Get(2))
	require.True(t, s.Link.Replace.Get(0))

	require.Len(t, s.Opaque, 1)
	require.Equal(t, []byte("keep me"), s.Opaque[0].Payload)

	// A second encode of the decoded state reproduces the bytes exactly.
	buf2, err := s.Encode(opts)
	require.NoError(t, err)
	require.Equal(t, buf, buf2)
}

func TestEncodeVersionRoundtrips(t *testing.T) {
	for _, v := range []Version{V2, V3, V4} {
		s := NewState(SHA1)
		s.Insert("deep/nested/dir/file.go", plainEntry(0x11))
		s.Insert("deep/nested/other.go", plainEntry(0x22))
		s.Insert("top", plainEntry(0x33))

		buf, err := s.Encode(WriteOptions{Version: v})
		require.NoError(t, err)
		require.Equal(t, uint32(v), format.ReadU32(buf, format.HeaderVersionOffset))

		got, err := Decode(buf, DecodeOptions{})
		require.NoError(t, err)
		require.Equal(t, v, got.Version())
		require.Equal(t, []string{"deep/nested/dir/file.go", "deep/nested/other.go", "top"}, statePaths(got))
	}
}

func TestEncodeV4SmallerThanV2(t *testing.T) {
	s := NewState(SHA1)
	for _, p := range []string{
		"internal/codec/decode.go",
		"internal/codec/decode_test.go",
		"internal/codec/encode.go",
		"internal/codec/encode_test.go",
	} {
		s.Insert(p, plainEntry(0x11))
	}
	ext := NoExtensions()
	v2, err := s.Encode(WriteOptions{Version: V2, Extensions: &ext})
	require.NoError(t, err)
	v4, err := s.Encode(WriteOptions{Version: V4, Extensions: &ext})
	require.NoError(t, err)
	require.Less(t, len(v4), len(v2))
}

func TestEncodeAutoDetectsVersion(t *testing.T) {
	s := NewState(SHA1)
	s.Insert("plain", plainEntry(0x11))
	buf, err := s.Encode(WriteOptions{})
	require.NoError(t, err)
	require.Equal(t, uint32(2), format.ReadU32(buf, format.HeaderVersionOffset))

	e := plainEntry(0x22)
	e.Flags = SkipWorktree
	s.Insert("sparse", e)
	buf, err = s.Encode(WriteOptions{})
	require.NoError(t, err)
	require.Equal(t, uint32(3), format.ReadU32(buf, format.HeaderVersionOffset))
}

func TestEncodeRejectsExtendedFlagsInExplicitV2(t *testing.T) {
	s := NewState(SHA1)
	e := plainEntry(0x11)
	e.Flags = IntentToAdd
	s.Insert("staged", e)
	_, err := s.Encode(WriteOptions{Version: V2})
	require.Error(t, err)
}

func TestEncodeRejectsUnknownVersion(t *testing.T) {
	s := NewState(SHA1)
	_, err := s.Encode(WriteOptions{Version: 7})
	require.Error(t, err)
}

func TestEncodeNoExtensions(t *testing.T) {
	ext := NoExtensions()
	buf, err := fullState(t).Encode(WriteOptions{Extensions: &ext})
	require.NoError(t, err)

	s, err := Decode(buf, DecodeOptions{})
	require.NoError(t, err)
	require.Nil(t, s.TreeCache)
	require.Nil(t, s.ResolveUndo)
	require.Nil(t, s.UntrackedCache)
	require.Nil(t, s.FSMonitor)
	require.Nil(t, s.Link)
	require.Empty(t, s.Opaque)
	require.NotContains(t, string(buf), "TREE")
}

func TestEncodeSkipsEmptyExtensions(t *testing.T) {
	s := NewState(SHA1)
	s.Insert("only", plainEntry(0x11))
	s.TreeCache = &TreeCache{} // no nodes, nothing to write

	buf, err := s.Encode(WriteOptions{})
	require.NoError(t, err)
	require.NotContains(t, string(buf), "TREE")

	got, err := Decode(buf, DecodeOptions{})
	require.NoError(t, err)
	require.Nil(t, got.TreeCache)
}

func TestEncodeRefusesUnsortedEntries(t *testing.T) {
	s := NewState(SHA1)
	s.Insert("a", plainEntry(0x11))
	s.Insert("b", plainEntry(0x22))
	// Force disorder behind the accessor.
	s.entries[0], s.entries[1] = s.entries[1], s.entries[0]
	_, err := s.Encode(WriteOptions{})
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestEncodeRefreshesStaleTreeCache(t *testing.T) {
	s := fullState(t)
	require.True(t, s.Remove("src/lib.rs", StageNormal))

	buf, err := s.Encode(WriteOptions{})
	require.NoError(t, err)

	got, err := Decode(buf, DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, got.TreeCache.Nodes, 2)
	// Both the root and "src" counted the removed entry, so both must be
	// written invalidated.
	require.False(t, got.TreeCache.Nodes[0].Valid())
	require.False(t, got.TreeCache.Nodes[1].Valid())
	require.Nil(t, got.TreeCache.Nodes[0].Hash)
}

func TestEncodeKeepsAccurateTreeCacheValid(t *testing.T) {
	s := fullState(t)
	buf, err := s.Encode(WriteOptions{})
	require.NoError(t, err)

	got, err := Decode(buf, DecodeOptions{})
	require.NoError(t, err)
	require.True(t, got.TreeCache.Nodes[0].Valid())
	require.True(t, got.TreeCache.Nodes[1].Valid())
	require.Equal(t, testHash(format.SHA1Size, 0xA1), got.TreeCache.Nodes[1].Hash)
}

func TestEncodeInvalidatesTreeCacheOnConflict(t *testing.T) {
	s := fullState(t)
	e := plainEntry(0x44)
	e.Stage = StageOurs
	s.Insert("src/lib.rs", e) // conflicted path under "src"

	buf, err := s.Encode(WriteOptions{})
	require.NoError(t, err)
	got, err := Decode(buf, DecodeOptions{})
	require.NoError(t, err)
	require.False(t, got.TreeCache.Nodes[0].Valid())
	require.False(t, got.TreeCache.Nodes[1].Valid())
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	s := NewState(SHA1)
	s.Insert("committed", plainEntry(0x11))
	require.NoError(t, s.WriteFile(path, WriteOptions{}))

	// No temp files left behind.
	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, names, 1)

	got, err := Open(path, DecodeOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"committed"}, statePaths(got))

	// Rewriting replaces the content in place.
	s.Insert("second", plainEntry(0x22))
	require.NoError(t, s.WriteFile(path, WriteOptions{}))
	got, err = Open(path, DecodeOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"committed", "second"}, statePaths(got))
}

func TestEncodeTrailerMatchesContent(t *testing.T) {
	buf, err := fullState(t).Encode(WriteOptions{})
	require.NoError(t, err)
	body := buf[:len(buf)-format.SHA1Size]
	require.True(t, bytes.Equal(computeChecksum(SHA1, body), buf[len(buf)-format.SHA1Size:]))
}
