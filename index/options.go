package index

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/indexkit/indexkit/internal/format"
)

// ObjectFormat selects the repository's hash algorithm. It fixes the width
// of every hash in the file: entry hashes, extension hashes and the trailer.
type ObjectFormat int

const (
	// SHA1 is the 20-byte object format.
	SHA1 ObjectFormat = iota
	// SHA256 is the 32-byte object format.
	SHA256
)

// Size returns the hash width in bytes.
func (f ObjectFormat) Size() int {
	if f == SHA256 {
		return format.SHA256Size
	}
	return format.SHA1Size
}

// NewHasher returns a fresh hash state for the format.
func (f ObjectFormat) NewHasher() hash.Hash {
	if f == SHA256 {
		return sha256.New()
	}
	return sha1.New()
}

func (f ObjectFormat) String() string {
	if f == SHA256 {
		return "sha256"
	}
	return "sha1"
}

// Version is the on-disk index format version.
type Version uint32

const (
	// V2 is the baseline format.
	V2 Version = 2
	// V3 adds the extended flags word (skip-worktree, intent-to-add).
	V3 Version = 3
	// V4 prefix-compresses entry paths and drops record padding.
	V4 Version = 4
)

// DecodeOptions configure a decode call. The zero value decodes a SHA-1
// index sequentially.
type DecodeOptions struct {
	// ObjectFormat fixes all hash widths. Configured externally by the
	// repository; this engine never inspects repository config itself.
	ObjectFormat ObjectFormat

	// MaxParallel bounds the number of concurrent entry-decode workers used
	// when the file carries an entry-offset table. Values below 2 decode
	// sequentially. Parallelism is an explicit parameter, never a
	// process-wide default, so decoding is reproducible at any level.
	MaxParallel int
}

// WriteExtensions selects which extensions Encode emits. Extensions whose
// payload would be empty are skipped regardless.
type WriteExtensions struct {
	TreeCache        bool
	ResolveUndo      bool
	UntrackedCache   bool
	FSMonitor        bool
	Link             bool
	Opaque           bool
	OffsetTable      bool
	EndOfIndexMarker bool
}

// AllExtensions writes every extension present on the State, plus the
// offset-table and end-of-index marker when applicable. This avoids losing
// information and keeps accelerated reading available.
func AllExtensions() WriteExtensions {
	return WriteExtensions{
		TreeCache:        true,
		ResolveUndo:      true,
		UntrackedCache:   true,
		FSMonitor:        true,
		Link:             true,
		Opaque:           true,
		OffsetTable:      true,
		EndOfIndexMarker: true,
	}
}

// NoExtensions writes the smallest possible index.
func NoExtensions() WriteExtensions { return WriteExtensions{} }

// WriteOptions configure an encode call. The zero value auto-detects the
// version and emits all extensions; hash widths come from the State's own
// object format.
type WriteOptions struct {
	// Version selects the on-disk version. Zero auto-detects: version 2
	// unless any entry carries extended flags, then version 3. Version 4
	// must be requested explicitly.
	Version Version

	// Extensions selects which extension chunks to emit. The zero value of
	// WriteOptions emits all of them; set this explicitly to trim.
	Extensions *WriteExtensions

	// OffsetTableBlocks partitions entries into this many offset-table
	// blocks for later parallel decoding. Values below 2 omit the table.
	// With version 4, path compression restarts at every block boundary so
	// blocks stay independently decodable.
	OffsetTableBlocks int
}

func (o WriteOptions) extensions() WriteExtensions {
	if o.Extensions == nil {
		return AllExtensions()
	}
	return *o.Extensions
}

func (o WriteOptions) version(s *State) (Version, error) {
	switch o.Version {
	case 0:
		for i := range s.entries {
			if s.entries[i].Flags&(SkipWorktree|IntentToAdd) != 0 {
				return V3, nil
			}
		}
		return V2, nil
	case V2, V3, V4:
		return o.Version, nil
	default:
		return 0, fmt.Errorf("index: cannot write version %d", o.Version)
	}
}
