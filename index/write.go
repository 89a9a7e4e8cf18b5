package index

import (
	"bytes"
	"sort"

	"github.com/indexkit/indexkit/internal/format"
	"github.com/indexkit/indexkit/internal/writer"
)

// Encode serializes the state: header, entries, extensions in canonical
// order, then the trailer hash. Entries must already be in (path, stage)
// order; Encode refuses to reorder them. Cached values that depend on entry
// content — cache-tree validity, the offset table, the end-of-index marker —
// are recomputed, never trusted from a prior decode.
func (s *State) Encode(opts WriteOptions) ([]byte, error) {
	v, err := opts.version(s)
	if err != nil {
		return nil, err
	}
	if err := checkEntryOrder(s); err != nil {
		return nil, err
	}

	f := s.objectFormat
	hashLen := f.Size()
	exts := opts.extensions()

	dst := appendHeader(nil, v, uint32(len(s.entries)))

	// Partition entries into offset-table blocks. Path compression state
	// resets at every boundary so each block decodes independently; that
	// reset is what makes later parallel decoding safe.
	blockSize := len(s.entries)
	wantTable := exts.OffsetTable && opts.OffsetTableBlocks >= 2 && len(s.entries) >= opts.OffsetTableBlocks
	if wantTable {
		blockSize = (len(s.entries) + opts.OffsetTableBlocks - 1) / opts.OffsetTableBlocks
	}

	var table offsetTable
	entriesStart := len(dst)
	var prev []byte
	for i := range s.entries {
		if i%blockSize == 0 {
			prev = nil
			if wantTable {
				table.Blocks = append(table.Blocks, offsetBlock{Offset: uint32(len(dst))})
			}
		}
		if wantTable {
			table.Blocks[len(table.Blocks)-1].Count++
		}
		e := &s.entries[i]
		path := e.PathIn(s.arena)
		dst, err = appendEntry(dst, e, path, v, hashLen, prev, entriesStart)
		if err != nil {
			return nil, err
		}
		prev = path
	}

	// Extensions, canonical order: offset table first so a reader reaches
	// it cheaply, end-of-index marker last so it sits at a fixed distance
	// from the trailer.
	offsetToExtensions := len(dst)
	var sigs []Signature
	var sizes []int
	emit := func(sig Signature, payload []byte) {
		dst = appendExtension(dst, sig, payload)
		sigs = append(sigs, sig)
		sizes = append(sizes, len(payload))
	}

	if wantTable {
		emit(Signature(format.OffsetTableSignature), table.appendTo(nil))
	}
	if exts.TreeCache && s.TreeCache != nil && len(s.TreeCache.Nodes) > 0 {
		s.refreshTreeCache()
		payload, err := s.TreeCache.appendTo(nil, hashLen)
		if err != nil {
			return nil, err
		}
		emit(Signature(format.TreeSignature), payload)
	}
	if exts.ResolveUndo && s.ResolveUndo != nil && len(s.ResolveUndo.Entries) > 0 {
		payload, err := s.ResolveUndo.appendTo(nil, hashLen)
		if err != nil {
			return nil, err
		}
		emit(Signature(format.ResolveUndoSignature), payload)
	}
	if exts.Link && s.Link != nil {
		payload, err := s.Link.appendTo(nil, hashLen)
		if err != nil {
			return nil, err
		}
		emit(Signature(format.LinkSignature), payload)
	}
	if exts.UntrackedCache && s.UntrackedCache != nil {
		payload, err := s.UntrackedCache.appendTo(nil, hashLen)
		if err != nil {
			return nil, err
		}
		emit(Signature(format.UntrackedSignature), payload)
	}
	if exts.FSMonitor && s.FSMonitor != nil {
		payload, err := s.FSMonitor.appendTo(nil)
		if err != nil {
			return nil, err
		}
		emit(Signature(format.FSMonitorSignature), payload)
	}
	if exts.Opaque {
		for _, o := range s.Opaque {
			emit(o.Signature, o.Payload)
		}
	}
	if exts.EndOfIndexMarker && len(sigs) > 0 && len(s.entries) > 0 {
		dst = appendEndOfIndex(dst, uint32(offsetToExtensions), headerDigest(f, sigs, sizes))
	}

	return append(dst, computeChecksum(f, dst)...), nil
}

// WriteFile encodes the state and replaces the file at path atomically via
// a temp file and rename. A failed write never leaves a half-written index
// in the durable location.
func (s *State) WriteFile(path string, opts WriteOptions) error {
	buf, err := s.Encode(opts)
	if err != nil {
		return err
	}
	return (&writer.FileWriter{Path: path}).WriteIndex(buf)
}

// refreshTreeCache re-derives the validity of every cache-tree node from
// the current entries. A node stays valid only if its covered-entry count
// matches the entries actually under its directory, none of them is
// conflicted, and all of its children are valid; anything else invalidates
// the node and, transitively, its ancestors.
func (s *State) refreshTreeCache() {
	if s.TreeCache == nil || len(s.TreeCache.Nodes) == 0 {
		return
	}
	pos := 0
	s.refreshTreeNode(&pos, nil)
}

// refreshTreeNode walks one node in the pre-order arena; *pos advances
// past the node and its subtree. It reports whether the node stayed valid.
func (s *State) refreshTreeNode(pos *int, prefix []byte) bool {
	node := &s.TreeCache.Nodes[*pos]
	*pos++

	var dir []byte
	if len(node.Path) > 0 || len(prefix) > 0 {
		dir = append(append(append([]byte(nil), prefix...), node.Path...), '/')
	}
	lo, hi := s.prefixRange(dir)

	ok := node.Valid()
	for i := uint32(0); i < node.Subtrees; i++ {
		if *pos >= len(s.TreeCache.Nodes) {
			// Defensive: a short arena cannot validate anything below it.
			ok = false
			break
		}
		if !s.refreshTreeNode(pos, dir) {
			ok = false
		}
	}
	if ok && int(node.EntryCount) != hi-lo {
		ok = false
	}
	if ok {
		for i := lo; i < hi; i++ {
			if s.entries[i].Stage != StageNormal {
				ok = false
				break
			}
		}
	}
	if !ok {
		node.Invalidate()
	}
	return ok
}

// prefixRange returns the half-open entry range whose paths live under
// dir (a directory prefix ending in '/', or nil for the whole index).
func (s *State) prefixRange(dir []byte) (int, int) {
	if len(dir) == 0 {
		return 0, len(s.entries)
	}
	lo := sort.Search(len(s.entries), func(i int) bool {
		return bytes.Compare(s.entries[i].PathIn(s.arena), dir) >= 0
	})
	hi := sort.Search(len(s.entries), func(i int) bool {
		p := s.entries[i].PathIn(s.arena)
		return !bytes.HasPrefix(p, dir) && bytes.Compare(p, dir) >= 0
	})
	return lo, hi
}
