package index

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/indexkit/indexkit/internal/format"
)

// Resolve-undo extension ("REUC"): for every path whose conflict was
// resolved, the pre-conflict (mode, hash) pair of each of the three higher
// stages, so the conflict can be recreated.
//
// On-disk record layout:
//
//	path, NUL
//	three ASCII octal mode values, each NUL-terminated; "0" marks an
//	absent stage
//	one object hash per non-zero mode, in stage order

// ResolveUndoEntry records the pre-conflict state of one path. Index i
// holds stage i+1 (ancestor, ours, theirs); a zero mode means the stage
// was absent.
type ResolveUndoEntry struct {
	Path   []byte
	Modes  [3]uint32
	Hashes [3][]byte
}

// ResolveUndo is the decoded resolve-undo extension, ordered by path.
type ResolveUndo struct {
	Entries []ResolveUndoEntry
}

func decodeResolveUndo(p []byte, hashLen int) (*ResolveUndo, error) {
	ru := &ResolveUndo{}
	pos := 0
	for pos < len(p) {
		nul := bytes.IndexByte(p[pos:], 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: unterminated resolve-undo path at %d", format.ErrTruncated, pos)
		}
		e := ResolveUndoEntry{Path: append([]byte(nil), p[pos:pos+nul]...)}
		pos += nul + 1

		for stage := 0; stage < 3; stage++ {
			end := bytes.IndexByte(p[pos:], 0)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated resolve-undo mode at %d", format.ErrTruncated, pos)
			}
			mode, err := strconv.ParseUint(string(p[pos:pos+end]), 8, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: resolve-undo mode %q at %d", format.ErrCorrupt, p[pos:pos+end], pos)
			}
			e.Modes[stage] = uint32(mode)
			pos += end + 1
		}
		for stage := 0; stage < 3; stage++ {
			if e.Modes[stage] == 0 {
				continue
			}
			if pos+hashLen > len(p) {
				return nil, fmt.Errorf("%w: resolve-undo hash at %d", format.ErrTruncated, pos)
			}
			e.Hashes[stage] = append([]byte(nil), p[pos:pos+hashLen]...)
			pos += hashLen
		}
		ru.Entries = append(ru.Entries, e)
	}
	return ru, nil
}

func (ru *ResolveUndo) appendTo(dst []byte, hashLen int) ([]byte, error) {
	for i := range ru.Entries {
		e := &ru.Entries[i]
		dst = append(dst, e.Path...)
		dst = append(dst, 0)
		for stage := 0; stage < 3; stage++ {
			dst = strconv.AppendUint(dst, uint64(e.Modes[stage]), 8)
			dst = append(dst, 0)
		}
		for stage := 0; stage < 3; stage++ {
			if e.Modes[stage] == 0 {
				continue
			}
			if len(e.Hashes[stage]) != hashLen {
				return nil, fmt.Errorf("index: resolve-undo %q stage %d hash is %d bytes, want %d", e.Path, stage+1, len(e.Hashes[stage]), hashLen)
			}
			dst = append(dst, e.Hashes[stage]...)
		}
	}
	return dst, nil
}
