package index

import (
	"fmt"

	"github.com/indexkit/indexkit/internal/format"
)

// Index-entry-offset-table extension ("IEOT"): the writer's record of how
// it partitioned the entry region into independently decodable blocks.
// Reached through the end-of-index marker, it lets a reader fan entry
// decoding out across workers without first parsing any entries. With
// version 4, the writer restarts path compression at every block boundary,
// so a block's first entry never depends on the previous block.
//
// On-disk layout: a 32-bit table version (always 1), then one (32-bit file
// offset, 32-bit entry count) pair per block.

const offsetTableVersion = 1

type offsetBlock struct {
	// Offset is the absolute file offset of the block's first entry.
	Offset uint32
	// Count is the number of entries in the block.
	Count uint32
}

type offsetTable struct {
	Blocks []offsetBlock
}

func decodeOffsetTable(p []byte) (offsetTable, error) {
	if len(p) < 4 {
		return offsetTable{}, fmt.Errorf("%w: offset table", format.ErrTruncated)
	}
	if v := format.ReadU32(p, 0); v != offsetTableVersion {
		return offsetTable{}, fmt.Errorf("%w: offset table version %d", format.ErrCorrupt, v)
	}
	if (len(p)-4)%8 != 0 {
		return offsetTable{}, fmt.Errorf("%w: offset table payload of %d bytes", format.ErrCorrupt, len(p))
	}
	t := offsetTable{Blocks: make([]offsetBlock, 0, (len(p)-4)/8)}
	for pos := 4; pos < len(p); pos += 8 {
		t.Blocks = append(t.Blocks, offsetBlock{
			Offset: format.ReadU32(p, pos),
			Count:  format.ReadU32(p, pos+4),
		})
	}
	return t, nil
}

func (t offsetTable) appendTo(dst []byte) []byte {
	dst = format.AppendU32(dst, offsetTableVersion)
	for _, b := range t.Blocks {
		dst = format.AppendU32(dst, b.Offset)
		dst = format.AppendU32(dst, b.Count)
	}
	return dst
}

// validate checks the table against the entry region: monotonic offsets
// inside [entriesStart, entriesEnd) and counts summing to the header count.
func (t offsetTable) validate(entriesStart, entriesEnd int, entryCount uint32) error {
	if len(t.Blocks) == 0 {
		return fmt.Errorf("%w: empty offset table", format.ErrCorrupt)
	}
	sum := uint64(0)
	prev := entriesStart - 1
	for i, b := range t.Blocks {
		if int(b.Offset) <= prev || int(b.Offset) >= entriesEnd {
			return fmt.Errorf("%w: offset table block %d at offset %d", format.ErrCorrupt, i, b.Offset)
		}
		if b.Count == 0 {
			return fmt.Errorf("%w: offset table block %d is empty", format.ErrCorrupt, i)
		}
		prev = int(b.Offset)
		sum += uint64(b.Count)
	}
	if int(t.Blocks[0].Offset) != entriesStart {
		return fmt.Errorf("%w: offset table starts at %d, entries at %d", format.ErrCorrupt, t.Blocks[0].Offset, entriesStart)
	}
	if sum != uint64(entryCount) {
		return fmt.Errorf("%w: offset table covers %d entries, header declares %d", format.ErrCorrupt, sum, entryCount)
	}
	return nil
}
