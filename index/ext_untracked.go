package index

import (
	"bytes"
	"fmt"

	"github.com/indexkit/indexkit/internal/ewah"
	"github.com/indexkit/indexkit/internal/format"
)

// Untracked-cache extension ("UNTR"): per-directory listings of untracked
// names plus the exclude-file state they were computed under, so status can
// skip re-scanning directories whose stat data is unchanged.
//
// On-disk layout:
//
//	varint length, then that many bytes of identification string
//	stat data of the repo exclude file, stat data of the global exclude
//	file (nine 32-bit words each), 32-bit dir flags
//	hash of the repo exclude file, hash of the global exclude file
//	(all-zero when the file does not exist)
//	per-directory exclude file name, NUL
//	varint directory-block count; zero ends the extension here
//	directory blocks in depth-first order:
//	    varint untracked-name count, varint subdirectory count,
//	    directory component NUL, untracked names each NUL
//	three bitmaps over directory numbers: listing valid, check-only,
//	stat-and-hash present
//	one stat block, then one hash, per set bit of the third bitmap
//	a single trailing NUL

// UntrackedDir is one cached directory, stored in depth-first order
// matching the block's bitmap numbering.
type UntrackedDir struct {
	// Name is the directory component, empty for the root block.
	Name []byte
	// Subdirs is the number of immediate child blocks that follow.
	Subdirs uint32
	// Untracked is the cached list of untracked names in the directory.
	Untracked [][]byte
}

// UntrackedCache is the decoded untracked-cache extension.
type UntrackedCache struct {
	Ident            []byte
	InfoExcludeStat  StatData
	ExcludesFileStat StatData
	DirFlags         uint32
	InfoExcludeHash  []byte
	ExcludesFileHash []byte
	PerDirExclude    []byte

	Dirs []UntrackedDir

	// Valid selects directories whose untracked listing may be reused;
	// CheckOnly marks directories only traversed to find ignored files;
	// StatPresent selects the directories that carry a stat block and an
	// exclude-file hash below.
	Valid       *ewah.Bitmap
	CheckOnly   *ewah.Bitmap
	StatPresent *ewah.Bitmap

	// Stats and Hashes hold one element per set bit of StatPresent, in
	// bit order.
	Stats  []StatData
	Hashes [][]byte
}

func readBareStat(b []byte, off int) StatData {
	return StatData{
		CtimeSec:  format.ReadU32(b, off+0x00),
		CtimeNsec: format.ReadU32(b, off+0x04),
		MtimeSec:  format.ReadU32(b, off+0x08),
		MtimeNsec: format.ReadU32(b, off+0x0C),
		Dev:       format.ReadU32(b, off+0x10),
		Ino:       format.ReadU32(b, off+0x14),
		UID:       format.ReadU32(b, off+0x18),
		GID:       format.ReadU32(b, off+0x1C),
		Size:      format.ReadU32(b, off+0x20),
	}
}

func appendBareStat(dst []byte, sd StatData) []byte {
	dst = format.AppendU32(dst, sd.CtimeSec)
	dst = format.AppendU32(dst, sd.CtimeNsec)
	dst = format.AppendU32(dst, sd.MtimeSec)
	dst = format.AppendU32(dst, sd.MtimeNsec)
	dst = format.AppendU32(dst, sd.Dev)
	dst = format.AppendU32(dst, sd.Ino)
	dst = format.AppendU32(dst, sd.UID)
	dst = format.AppendU32(dst, sd.GID)
	dst = format.AppendU32(dst, sd.Size)
	return dst
}

func decodeUntrackedCache(p []byte, hashLen int) (*UntrackedCache, error) {
	uc := &UntrackedCache{}
	identLen, n, err := format.ReadVarint(p)
	if err != nil {
		return nil, fmt.Errorf("untracked ident length: %w", err)
	}
	pos := n
	if pos+int(identLen) > len(p) {
		return nil, fmt.Errorf("%w: untracked ident", format.ErrTruncated)
	}
	uc.Ident = append([]byte(nil), p[pos:pos+int(identLen)]...)
	pos += int(identLen)

	fixed := 2*format.StatDataSize + 4 + 2*hashLen
	if pos+fixed > len(p) {
		return nil, fmt.Errorf("%w: untracked exclude-file block", format.ErrTruncated)
	}
	uc.InfoExcludeStat = readBareStat(p, pos)
	pos += format.StatDataSize
	uc.ExcludesFileStat = readBareStat(p, pos)
	pos += format.StatDataSize
	uc.DirFlags = format.ReadU32(p, pos)
	pos += 4
	uc.InfoExcludeHash = append([]byte(nil), p[pos:pos+hashLen]...)
	pos += hashLen
	uc.ExcludesFileHash = append([]byte(nil), p[pos:pos+hashLen]...)
	pos += hashLen

	nul := bytes.IndexByte(p[pos:], 0)
	if nul < 0 {
		return nil, fmt.Errorf("%w: untracked per-dir exclude name", format.ErrTruncated)
	}
	uc.PerDirExclude = append([]byte(nil), p[pos:pos+nul]...)
	pos += nul + 1

	blocks, n, err := format.ReadVarint(p[pos:])
	if err != nil {
		return nil, fmt.Errorf("untracked block count: %w", err)
	}
	pos += n
	if blocks == 0 {
		if pos != len(p) {
			return nil, fmt.Errorf("%w: %d trailing bytes after empty untracked cache", format.ErrCorrupt, len(p)-pos)
		}
		return uc, nil
	}
	if blocks > uint64(len(p)) {
		return nil, fmt.Errorf("%w: untracked cache declares %d directories in %d bytes", format.ErrCorrupt, blocks, len(p))
	}

	for i := uint64(0); i < blocks; i++ {
		var d UntrackedDir
		untracked, n, err := format.ReadVarint(p[pos:])
		if err != nil {
			return nil, fmt.Errorf("untracked count of block %d: %w", i, err)
		}
		pos += n
		subdirs, n, err := format.ReadVarint(p[pos:])
		if err != nil {
			return nil, fmt.Errorf("subdir count of block %d: %w", i, err)
		}
		pos += n
		d.Subdirs = uint32(subdirs)

		nul = bytes.IndexByte(p[pos:], 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: untracked dir name in block %d", format.ErrTruncated, i)
		}
		d.Name = append([]byte(nil), p[pos:pos+nul]...)
		pos += nul + 1

		if untracked > uint64(len(p)-pos) {
			return nil, fmt.Errorf("%w: block %d declares %d untracked names", format.ErrCorrupt, i, untracked)
		}
		for j := uint64(0); j < untracked; j++ {
			nul = bytes.IndexByte(p[pos:], 0)
			if nul < 0 {
				return nil, fmt.Errorf("%w: untracked name in block %d", format.ErrTruncated, i)
			}
			d.Untracked = append(d.Untracked, append([]byte(nil), p[pos:pos+nul]...))
			pos += nul + 1
		}
		uc.Dirs = append(uc.Dirs, d)
	}

	var consumed int
	if uc.Valid, consumed, err = ewah.Decode(p[pos:]); err != nil {
		return nil, fmt.Errorf("untracked valid bitmap: %w", err)
	}
	pos += consumed
	if uc.CheckOnly, consumed, err = ewah.Decode(p[pos:]); err != nil {
		return nil, fmt.Errorf("untracked check-only bitmap: %w", err)
	}
	pos += consumed
	if uc.StatPresent, consumed, err = ewah.Decode(p[pos:]); err != nil {
		return nil, fmt.Errorf("untracked stat bitmap: %w", err)
	}
	pos += consumed

	present := uc.StatPresent.Popcount()
	if pos+present*(format.StatDataSize+hashLen) > len(p) {
		return nil, fmt.Errorf("%w: untracked stat blocks", format.ErrTruncated)
	}
	for i := 0; i < present; i++ {
		uc.Stats = append(uc.Stats, readBareStat(p, pos))
		pos += format.StatDataSize
	}
	for i := 0; i < present; i++ {
		uc.Hashes = append(uc.Hashes, append([]byte(nil), p[pos:pos+hashLen]...))
		pos += hashLen
	}

	if pos+1 != len(p) || p[pos] != 0 {
		return nil, fmt.Errorf("%w: untracked cache does not end at its trailing NUL", format.ErrCorrupt)
	}
	return uc, nil
}

func (uc *UntrackedCache) appendTo(dst []byte, hashLen int) ([]byte, error) {
	if len(uc.InfoExcludeHash) != hashLen || len(uc.ExcludesFileHash) != hashLen {
		return nil, fmt.Errorf("index: untracked exclude hashes must be %d bytes", hashLen)
	}
	dst = format.AppendVarint(dst, uint64(len(uc.Ident)))
	dst = append(dst, uc.Ident...)
	dst = appendBareStat(dst, uc.InfoExcludeStat)
	dst = appendBareStat(dst, uc.ExcludesFileStat)
	dst = format.AppendU32(dst, uc.DirFlags)
	dst = append(dst, uc.InfoExcludeHash...)
	dst = append(dst, uc.ExcludesFileHash...)
	dst = append(dst, uc.PerDirExclude...)
	dst = append(dst, 0)

	dst = format.AppendVarint(dst, uint64(len(uc.Dirs)))
	if len(uc.Dirs) == 0 {
		return dst, nil
	}
	for i := range uc.Dirs {
		d := &uc.Dirs[i]
		dst = format.AppendVarint(dst, uint64(len(d.Untracked)))
		dst = format.AppendVarint(dst, uint64(d.Subdirs))
		dst = append(dst, d.Name...)
		dst = append(dst, 0)
		for _, name := range d.Untracked {
			dst = append(dst, name...)
			dst = append(dst, 0)
		}
	}

	dst = uc.Valid.Append(dst)
	dst = uc.CheckOnly.Append(dst)
	dst = uc.StatPresent.Append(dst)
	if got, want := len(uc.Stats), uc.StatPresent.Popcount(); got != want {
		return nil, fmt.Errorf("index: untracked cache has %d stat blocks for %d marked directories", got, want)
	}
	if len(uc.Hashes) != len(uc.Stats) {
		return nil, fmt.Errorf("index: untracked cache has %d hashes for %d stat blocks", len(uc.Hashes), len(uc.Stats))
	}
	for _, sd := range uc.Stats {
		dst = appendBareStat(dst, sd)
	}
	for _, h := range uc.Hashes {
		if len(h) != hashLen {
			return nil, fmt.Errorf("index: untracked dir hash is %d bytes, want %d", len(h), hashLen)
		}
		dst = append(dst, h...)
	}
	return append(dst, 0), nil
}
