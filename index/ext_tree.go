package index

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/indexkit/indexkit/internal/format"
)

// Cache-tree extension ("TREE"): a pre-order serialization of the directory
// tree, each node carrying the number of index entries it covers and the
// hash of the corresponding tree object. A node whose covered-entry count
// is written as -1 is invalidated: its hash is omitted on disk and nil in
// memory, and it must be recomputed before it can be trusted again.
//
// On-disk node layout:
//
//	path component (empty at the root), NUL
//	ASCII decimal covered-entry count (or "-1"), SP
//	ASCII decimal subtree count, LF
//	object hash (only when the covered-entry count is non-negative)

// TreeCacheNode is one node of the cache tree, addressed by position in the
// pre-order node arena rather than by child pointers.
type TreeCacheNode struct {
	// Path is the directory component, empty at the root.
	Path []byte
	// EntryCount is the number of index entries covered by this subtree,
	// or -1 when the node is invalidated.
	EntryCount int32
	// Subtrees is the number of immediate child nodes.
	Subtrees uint32
	// Hash is the tree object hash, nil when the node is invalidated.
	Hash []byte
}

// Valid reports whether the node's cached hash may be trusted.
func (n *TreeCacheNode) Valid() bool { return n.EntryCount >= 0 }

// Invalidate clears the node's cached hash and count.
func (n *TreeCacheNode) Invalidate() {
	n.EntryCount = -1
	n.Hash = nil
}

// TreeCache is the decoded cache-tree extension. Nodes are stored in
// pre-order: a node's children are the Subtrees nodes that follow it, each
// with its own nested children.
type TreeCache struct {
	Nodes []TreeCacheNode
}

func decodeTreeCache(p []byte, hashLen int) (*TreeCache, error) {
	t := &TreeCache{}
	pos, err := decodeTreeNode(t, p, 0, hashLen, 0)
	if err != nil {
		return nil, err
	}
	if pos != len(p) {
		return nil, fmt.Errorf("%w: %d trailing bytes after cache tree", format.ErrCorrupt, len(p)-pos)
	}
	return t, nil
}

// decodeTreeNode decodes one node and, recursively, its subtrees.
func decodeTreeNode(t *TreeCache, p []byte, pos, hashLen, depth int) (int, error) {
	// Path components bound the depth; a cycle is impossible, but a
	// hostile subtree count could recurse on an empty payload forever
	// without this guard.
	if depth > len(p) {
		return 0, fmt.Errorf("%w: cache tree deeper than its payload", format.ErrCorrupt)
	}
	nul := bytes.IndexByte(p[pos:], 0)
	if nul < 0 {
		return 0, fmt.Errorf("%w: unterminated cache-tree path at %d", format.ErrTruncated, pos)
	}
	path := p[pos : pos+nul]
	pos += nul + 1

	count, n, err := readTreeNumber(p, pos, ' ')
	if err != nil {
		return 0, err
	}
	pos += n
	subtrees, n, err := readTreeNumber(p, pos, '\n')
	if err != nil {
		return 0, err
	}
	pos += n
	if subtrees < 0 {
		return 0, fmt.Errorf("%w: negative subtree count at %d", format.ErrCorrupt, pos)
	}

	node := TreeCacheNode{
		Path:       append([]byte(nil), path...),
		EntryCount: int32(count),
		Subtrees:   uint32(subtrees),
	}
	if count >= 0 {
		if pos+hashLen > len(p) {
			return 0, fmt.Errorf("%w: cache-tree hash at %d", format.ErrTruncated, pos)
		}
		node.Hash = append([]byte(nil), p[pos:pos+hashLen]...)
		pos += hashLen
	} else {
		node.EntryCount = -1
	}
	t.Nodes = append(t.Nodes, node)

	childSum := int64(0)
	allChildrenValid := true
	for i := int64(0); i < subtrees; i++ {
		childIdx := len(t.Nodes)
		pos, err = decodeTreeNode(t, p, pos, hashLen, depth+1)
		if err != nil {
			return 0, err
		}
		child := &t.Nodes[childIdx]
		if child.Valid() {
			childSum += int64(child.EntryCount)
		} else {
			allChildrenValid = false
		}
	}
	// A valid parent covers its children plus its direct entries, so valid
	// children can never sum past it.
	if node.Valid() && allChildrenValid && childSum > int64(node.EntryCount) {
		return 0, fmt.Errorf("%w: cache-tree node %q covers %d entries but its children cover %d", format.ErrCorrupt, node.Path, node.EntryCount, childSum)
	}
	return pos, nil
}

// readTreeNumber parses an ASCII decimal (optionally negative) terminated
// by sep, returning the value and bytes consumed including the separator.
func readTreeNumber(p []byte, pos int, sep byte) (int64, int, error) {
	end := bytes.IndexByte(p[pos:], sep)
	if end < 0 {
		return 0, 0, fmt.Errorf("%w: unterminated cache-tree number at %d", format.ErrTruncated, pos)
	}
	v, err := strconv.ParseInt(string(p[pos:pos+end]), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: cache-tree number %q at %d", format.ErrCorrupt, p[pos:pos+end], pos)
	}
	return v, end + 1, nil
}

// appendTreeCache emits the pre-order node sequence.
func (t *TreeCache) appendTo(dst []byte, hashLen int) ([]byte, error) {
	for i := range t.Nodes {
		n := &t.Nodes[i]
		dst = append(dst, n.Path...)
		dst = append(dst, 0)
		dst = strconv.AppendInt(dst, int64(n.EntryCount), 10)
		dst = append(dst, ' ')
		dst = strconv.AppendUint(dst, uint64(n.Subtrees), 10)
		dst = append(dst, '\n')
		if n.Valid() {
			if len(n.Hash) != hashLen {
				return nil, fmt.Errorf("index: cache-tree node %q hash is %d bytes, want %d", n.Path, len(n.Hash), hashLen)
			}
			dst = append(dst, n.Hash...)
		}
	}
	return dst, nil
}
