package index

import (
	"bytes"
	"fmt"

	"github.com/indexkit/indexkit/internal/format"
)

// Entry record codec. Version 2 and 3 records are a fixed stat block, the
// object hash, a flag word (plus an optional extended flag word), and a
// NUL-terminated path, with the whole record NUL-padded to an 8-byte
// boundary relative to the start of the entry region. Version 4 records
// replace the padded path with a varint strip count against the previous
// entry's path followed by the literal suffix and a NUL, with no padding.

// onDiskFlags converts between the in-memory flag set and the two on-disk
// flag words.
func onDiskFlags(e *Entry, pathLen int) (flags uint16, extended uint16, needExt bool) {
	if pathLen > format.FlagPathLenMask {
		pathLen = format.FlagPathLenMask
	}
	flags = uint16(pathLen)
	flags |= uint16(e.Stage) << format.FlagStageShift
	if e.Flags&AssumeValid != 0 {
		flags |= format.FlagAssumeValid
	}
	if e.Flags&SkipWorktree != 0 {
		extended |= format.FlagSkipWorktree
	}
	if e.Flags&IntentToAdd != 0 {
		extended |= format.FlagIntentToAdd
	}
	if extended != 0 {
		flags |= format.FlagExtended
		needExt = true
	}
	return flags, extended, needExt
}

// decodeEntry decodes one record at b[pos:]. prev is the previous resolved
// path within the current decode block (nil at a block start). It returns
// the entry, the position past the record, and the resolved path bytes,
// which alias the arena.
func decodeEntry(b []byte, pos int, v Version, hashLen int, prev []byte, arena *PathArena) (Entry, int, []byte, error) {
	start := pos
	fixed := format.EntryFixedSize + hashLen + format.EntryFlagsSize
	if pos+fixed > len(b) {
		return Entry{}, 0, nil, fmt.Errorf("%w: entry record at %d", format.ErrTruncated, pos)
	}

	var e Entry
	e.Stat = StatData{
		CtimeSec:  format.ReadU32(b, pos+0x00),
		CtimeNsec: format.ReadU32(b, pos+0x04),
		MtimeSec:  format.ReadU32(b, pos+0x08),
		MtimeNsec: format.ReadU32(b, pos+0x0C),
		Dev:       format.ReadU32(b, pos+0x10),
		Ino:       format.ReadU32(b, pos+0x14),
		UID:       format.ReadU32(b, pos+0x1C),
		GID:       format.ReadU32(b, pos+0x20),
		Size:      format.ReadU32(b, pos+0x24),
	}
	e.Mode = format.ReadU32(b, pos+0x18)
	pos += format.EntryFixedSize

	e.Hash = append([]byte(nil), b[pos:pos+hashLen]...)
	pos += hashLen

	flags := format.ReadU16(b, pos)
	pos += format.EntryFlagsSize
	e.Stage = Stage(flags & format.FlagStageMask >> format.FlagStageShift)
	if flags&format.FlagAssumeValid != 0 {
		e.Flags |= AssumeValid
	}
	if flags&format.FlagExtended != 0 {
		if v < V3 {
			return Entry{}, 0, nil, fmt.Errorf("%w: extended flag in a version %d entry", format.ErrCorrupt, v)
		}
		if pos+format.EntryFlagsSize > len(b) {
			return Entry{}, 0, nil, fmt.Errorf("%w: extended flags at %d", format.ErrTruncated, pos)
		}
		ext := format.ReadU16(b, pos)
		pos += format.EntryFlagsSize
		if ext&^uint16(format.ExtendedFlagsKnownMask) != 0 {
			return Entry{}, 0, nil, fmt.Errorf("%w: unknown extended flag bits %#04x", format.ErrCorrupt, ext)
		}
		if ext&format.FlagSkipWorktree != 0 {
			e.Flags |= SkipWorktree
		}
		if ext&format.FlagIntentToAdd != 0 {
			e.Flags |= IntentToAdd
		}
	}

	storedLen := int(flags & format.FlagPathLenMask)

	var path []byte
	if v == V4 {
		strip, n, err := format.ReadVarint(b[pos:])
		if err != nil {
			return Entry{}, 0, nil, fmt.Errorf("path strip count at %d: %w", pos, err)
		}
		pos += n
		if strip > uint64(len(prev)) {
			return Entry{}, 0, nil, fmt.Errorf("%w: strip %d exceeds previous path of %d bytes", format.ErrCorrupt, strip, len(prev))
		}
		nul := bytes.IndexByte(b[pos:], 0)
		if nul < 0 {
			return Entry{}, 0, nil, fmt.Errorf("%w: unterminated path at %d", format.ErrTruncated, pos)
		}
		keep := prev[:len(prev)-int(strip)]
		e.Path = arena.AppendParts(keep, b[pos:pos+nul])
		pos += nul + 1
		path = arena.Bytes(e.Path)
	} else {
		var raw []byte
		if storedLen < format.FlagPathLenMask {
			if pos+storedLen >= len(b) {
				return Entry{}, 0, nil, fmt.Errorf("%w: path at %d", format.ErrTruncated, pos)
			}
			if b[pos+storedLen] != 0 {
				return Entry{}, 0, nil, fmt.Errorf("%w: path at %d is not NUL-terminated at its declared length %d", format.ErrCorrupt, pos, storedLen)
			}
			raw = b[pos : pos+storedLen]
		} else {
			nul := bytes.IndexByte(b[pos:], 0)
			if nul < 0 {
				return Entry{}, 0, nil, fmt.Errorf("%w: unterminated path at %d", format.ErrTruncated, pos)
			}
			raw = b[pos : pos+nul]
		}
		e.Path = arena.Append(raw)
		path = arena.Bytes(e.Path)

		// Record length includes the terminating NUL and pads to 8 bytes.
		record := fixed + len(raw) + 1
		if flags&format.FlagExtended != 0 {
			record += format.EntryFlagsSize
		}
		record = (record + format.EntryAlignment - 1) &^ (format.EntryAlignment - 1)
		pos = start + record
		if pos > len(b) {
			return Entry{}, 0, nil, fmt.Errorf("%w: entry padding at %d", format.ErrTruncated, start)
		}
	}

	if v == V4 && storedLen < format.FlagPathLenMask && storedLen != len(path) {
		return Entry{}, 0, nil, fmt.Errorf("%w: declared path length %d, resolved %d bytes", format.ErrCorrupt, storedLen, len(path))
	}

	return e, pos, path, nil
}

// appendEntry emits one record. prev is the previous path written in the
// current offset-table block (nil at a block start); entriesStart anchors
// the 8-byte record padding of versions 2 and 3.
func appendEntry(dst []byte, e *Entry, path []byte, v Version, hashLen int, prev []byte, entriesStart int) ([]byte, error) {
	if len(e.Hash) != hashLen {
		return nil, fmt.Errorf("index: entry %q hash is %d bytes, want %d", path, len(e.Hash), hashLen)
	}

	dst = format.AppendU32(dst, e.Stat.CtimeSec)
	dst = format.AppendU32(dst, e.Stat.CtimeNsec)
	dst = format.AppendU32(dst, e.Stat.MtimeSec)
	dst = format.AppendU32(dst, e.Stat.MtimeNsec)
	dst = format.AppendU32(dst, e.Stat.Dev)
	dst = format.AppendU32(dst, e.Stat.Ino)
	dst = format.AppendU32(dst, e.Mode)
	dst = format.AppendU32(dst, e.Stat.UID)
	dst = format.AppendU32(dst, e.Stat.GID)
	dst = format.AppendU32(dst, e.Stat.Size)
	dst = append(dst, e.Hash...)

	flags, extended, needExt := onDiskFlags(e, len(path))
	if needExt && v < V3 {
		return nil, fmt.Errorf("index: entry %q needs extended flags, not representable in version %d", path, v)
	}
	dst = format.AppendU16(dst, flags)
	if needExt {
		dst = format.AppendU16(dst, extended)
	}

	if v == V4 {
		common := commonPrefix(prev, path)
		dst = format.AppendVarint(dst, uint64(len(prev)-common))
		dst = append(dst, path[common:]...)
		dst = append(dst, 0)
		return dst, nil
	}

	dst = append(dst, path...)
	dst = append(dst, 0)
	for (len(dst)-entriesStart)%format.EntryAlignment != 0 {
		dst = append(dst, 0)
	}
	return dst, nil
}

func commonPrefix(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
