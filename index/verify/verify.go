// Package verify provides validation functions for decoded index state.
// These helpers are used in tests and by the inspection tooling to ensure
// index invariants are maintained.
package verify

import (
	"bytes"
	"fmt"

	"github.com/indexkit/indexkit/index"
)

// ValidationError describes one failed invariant.
type ValidationError struct {
	Type    string
	Message string
	// Entry is the entry number the failure points at, or -1.
	Entry int
}

func (e *ValidationError) Error() string {
	if e.Entry >= 0 {
		return fmt.Sprintf("%s at entry %d: %s", e.Type, e.Entry, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// AllInvariants validates all state invariants in one call.
// Returns the first error encountered, or nil if all checks pass.
func AllInvariants(s *index.State) error {
	if err := EntryOrder(s); err != nil {
		return err
	}
	if err := EntryShape(s); err != nil {
		return err
	}
	if err := TreeCache(s); err != nil {
		return err
	}
	return nil
}

// EntryOrder validates strict (path, stage) ordering with no duplicates.
func EntryOrder(s *index.State) error {
	arena := s.Arena()
	for i := 1; i < s.Len(); i++ {
		prev, cur := s.Entry(i-1), s.Entry(i)
		c := bytes.Compare(prev.PathIn(arena), cur.PathIn(arena))
		if c > 0 || (c == 0 && prev.Stage >= cur.Stage) {
			return &ValidationError{
				Type:    "EntryOrder",
				Message: fmt.Sprintf("%q stage %d does not sort after %q stage %d", cur.PathIn(arena), cur.Stage, prev.PathIn(arena), prev.Stage),
				Entry:   i,
			}
		}
	}
	return nil
}

// EntryShape validates per-entry basics: non-empty path, hash of the
// state's width, and a stage within 0..3.
func EntryShape(s *index.State) error {
	arena := s.Arena()
	want := s.ObjectFormat().Size()
	for i := 0; i < s.Len(); i++ {
		e := s.Entry(i)
		if e.Path.Len() == 0 {
			return &ValidationError{Type: "EntryShape", Message: "empty path", Entry: i}
		}
		if len(e.Hash) != want {
			return &ValidationError{
				Type:    "EntryShape",
				Message: fmt.Sprintf("%q has a %d-byte hash, want %d", e.PathIn(arena), len(e.Hash), want),
				Entry:   i,
			}
		}
		if e.Stage > index.StageTheirs {
			return &ValidationError{
				Type:    "EntryShape",
				Message: fmt.Sprintf("%q has stage %d", e.PathIn(arena), e.Stage),
				Entry:   i,
			}
		}
	}
	return nil
}

// TreeCache validates the cache-tree extension against the entries it
// claims to cover: every valid node's covered-entry count must equal the
// number of entries under its directory, all of them at stage 0, and its
// children's counts plus its direct entries must add up.
func TreeCache(s *index.State) error {
	t := s.TreeCache
	if t == nil || len(t.Nodes) == 0 {
		return nil
	}
	pos := 0
	if err := treeNode(s, t, &pos, nil); err != nil {
		return err
	}
	if pos != len(t.Nodes) {
		return &ValidationError{
			Type:    "TreeCache",
			Message: fmt.Sprintf("%d nodes outside the root subtree", len(t.Nodes)-pos),
			Entry:   -1,
		}
	}
	return nil
}

// treeNode checks one pre-order node and, recursively, its subtree.
func treeNode(s *index.State, t *index.TreeCache, pos *int, prefix []byte) error {
	if *pos >= len(t.Nodes) {
		return &ValidationError{Type: "TreeCache", Message: "node arena shorter than its subtree counts", Entry: -1}
	}
	node := &t.Nodes[*pos]
	*pos++

	var dir []byte
	if len(node.Path) > 0 || len(prefix) > 0 {
		dir = append(append(append([]byte(nil), prefix...), node.Path...), '/')
	}

	childSum := int64(0)
	childrenValid := true
	for i := uint32(0); i < node.Subtrees; i++ {
		if *pos >= len(t.Nodes) {
			return &ValidationError{Type: "TreeCache", Message: "node arena shorter than its subtree counts", Entry: -1}
		}
		child := &t.Nodes[*pos]
		if child.Valid() {
			childSum += int64(child.EntryCount)
		} else {
			childrenValid = false
		}
		if err := treeNode(s, t, pos, dir); err != nil {
			return err
		}
	}

	if !node.Valid() {
		return nil
	}
	covered, conflicted := coveredEntries(s, dir)
	if conflicted {
		return &ValidationError{
			Type:    "TreeCache",
			Message: fmt.Sprintf("node %q is valid over conflicted entries", dir),
			Entry:   -1,
		}
	}
	if int64(covered) != int64(node.EntryCount) {
		return &ValidationError{
			Type:    "TreeCache",
			Message: fmt.Sprintf("node %q declares %d covered entries, index holds %d", dir, node.EntryCount, covered),
			Entry:   -1,
		}
	}
	// Direct entries are the covered entries not claimed by any child, so
	// valid children can never sum past the parent.
	if childrenValid && childSum > int64(node.EntryCount) {
		return &ValidationError{
			Type:    "TreeCache",
			Message: fmt.Sprintf("node %q declares %d covered entries but its children cover %d", dir, node.EntryCount, childSum),
			Entry:   -1,
		}
	}
	return nil
}

// coveredEntries counts entries under dir ("" for the whole index) and
// reports whether any of them is conflicted.
func coveredEntries(s *index.State, dir []byte) (int, bool) {
	arena := s.Arena()
	n := 0
	conflicted := false
	for i := 0; i < s.Len(); i++ {
		e := s.Entry(i)
		if len(dir) == 0 || bytes.HasPrefix(e.PathIn(arena), dir) {
			n++
			if e.Stage != index.StageNormal {
				conflicted = true
			}
		}
	}
	return n, conflicted
}
