package index

import (
	"bytes"
	"fmt"

	"github.com/indexkit/indexkit/internal/ewah"
	"github.com/indexkit/indexkit/internal/format"
)

// Split-index link extension ("link", optional): references a shared base
// index file plus two bitmaps describing how this index edits it. The
// cross-file relationship is carried through unchanged; this engine does
// not load or merge the base index.
//
// On-disk layout: the base index hash (all-zero when no base exists), an
// ewah bitmap of base entries to delete, and an ewah bitmap of base entries
// to replace.

// Link is the decoded split-index link extension.
type Link struct {
	// BaseHash names the shared base index; all-zero means none.
	BaseHash []byte
	// Delete marks base entries removed by this index.
	Delete *ewah.Bitmap
	// Replace marks base entries superseded by this index's entries.
	Replace *ewah.Bitmap
}

// HasBase reports whether the extension references a base index.
func (l *Link) HasBase() bool {
	return !bytes.Equal(l.BaseHash, make([]byte, len(l.BaseHash)))
}

func decodeLink(p []byte, hashLen int) (*Link, error) {
	if len(p) < hashLen {
		return nil, fmt.Errorf("%w: link base hash", format.ErrTruncated)
	}
	l := &Link{BaseHash: append([]byte(nil), p[:hashLen]...)}
	pos := hashLen

	var consumed int
	var err error
	if l.Delete, consumed, err = ewah.Decode(p[pos:]); err != nil {
		return nil, fmt.Errorf("link delete bitmap: %w", err)
	}
	pos += consumed
	if l.Replace, consumed, err = ewah.Decode(p[pos:]); err != nil {
		return nil, fmt.Errorf("link replace bitmap: %w", err)
	}
	pos += consumed
	if pos != len(p) {
		return nil, fmt.Errorf("%w: %d trailing bytes after link extension", format.ErrCorrupt, len(p)-pos)
	}
	return l, nil
}

func (l *Link) appendTo(dst []byte, hashLen int) ([]byte, error) {
	if len(l.BaseHash) != hashLen {
		return nil, fmt.Errorf("index: link base hash is %d bytes, want %d", len(l.BaseHash), hashLen)
	}
	dst = append(dst, l.BaseHash...)
	dst = l.Delete.Append(dst)
	dst = l.Replace.Append(dst)
	return dst, nil
}
