package index

import (
	"bytes"
	"fmt"

	"github.com/indexkit/indexkit/internal/ewah"
	"github.com/indexkit/indexkit/internal/format"
)

// Filesystem-monitor extension ("FSMN"): the watcher token the cache was
// computed under and a bitmap over entry numbers. A set bit means the
// watcher has NOT vouched for the entry since the token, so its stat data
// must be re-checked; unset bits are confirmed unchanged.
//
// On-disk layout: a 32-bit extension version; for version 1 a 64-bit
// timestamp, for version 2 a NUL-terminated opaque token; then the bitmap's
// serialized byte size as a 32-bit value, then the ewah bitmap itself.

// FSMonitor is the decoded filesystem-monitor extension.
type FSMonitor struct {
	Version uint32
	// Since is the version-1 watcher timestamp.
	Since uint64
	// Token is the version-2 opaque watcher token.
	Token []byte
	// Dirty marks entries the watcher has not confirmed unchanged.
	Dirty *ewah.Bitmap
}

func decodeFSMonitor(p []byte) (*FSMonitor, error) {
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: fsmonitor version", format.ErrTruncated)
	}
	m := &FSMonitor{Version: format.ReadU32(p, 0)}
	pos := 4
	switch m.Version {
	case 1:
		if len(p) < pos+8 {
			return nil, fmt.Errorf("%w: fsmonitor timestamp", format.ErrTruncated)
		}
		m.Since = format.ReadU64(p, pos)
		pos += 8
	case 2:
		nul := bytes.IndexByte(p[pos:], 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: unterminated fsmonitor token", format.ErrTruncated)
		}
		m.Token = append([]byte(nil), p[pos:pos+nul]...)
		pos += nul + 1
	default:
		return nil, fmt.Errorf("%w: fsmonitor version %d", format.ErrCorrupt, m.Version)
	}

	if len(p) < pos+4 {
		return nil, fmt.Errorf("%w: fsmonitor bitmap size", format.ErrTruncated)
	}
	declared := int(format.ReadU32(p, pos))
	pos += 4

	bm, consumed, err := ewah.Decode(p[pos:])
	if err != nil {
		return nil, fmt.Errorf("fsmonitor bitmap: %w", err)
	}
	if consumed != declared {
		return nil, fmt.Errorf("%w: fsmonitor bitmap is %d bytes, declared %d", format.ErrCorrupt, consumed, declared)
	}
	pos += consumed
	if pos != len(p) {
		return nil, fmt.Errorf("%w: %d trailing bytes after fsmonitor extension", format.ErrCorrupt, len(p)-pos)
	}
	m.Dirty = bm
	return m, nil
}

func (m *FSMonitor) appendTo(dst []byte) ([]byte, error) {
	switch m.Version {
	case 1:
		dst = format.AppendU32(dst, 1)
		dst = format.AppendU64(dst, m.Since)
	case 2:
		dst = format.AppendU32(dst, 2)
		dst = append(dst, m.Token...)
		dst = append(dst, 0)
	default:
		return nil, fmt.Errorf("index: cannot write fsmonitor version %d", m.Version)
	}
	bm := m.Dirty.Append(nil)
	dst = format.AppendU32(dst, uint32(len(bm)))
	return append(dst, bm...), nil
}
