package index

import (
	"bytes"
	"fmt"
	"sort"
)

// Stage is the merge stage of an entry: 0 for a normally staged path, 1-3
// for the ancestor, ours and theirs versions of a conflicted path.
type Stage uint8

const (
	StageNormal   Stage = 0
	StageAncestor Stage = 1
	StageOurs     Stage = 2
	StageTheirs   Stage = 3
)

// Flags is the in-memory entry flag set. It is deliberately decoupled from
// the on-disk split into a base flag word and an extended flag word; the
// codec maps between the two.
type Flags uint16

const (
	// AssumeValid marks an entry the user promised not to modify.
	AssumeValid Flags = 1 << iota
	// SkipWorktree marks a sparse-checkout entry. Requires version >= 3.
	SkipWorktree
	// IntentToAdd marks an entry staged with intent-to-add. Requires version >= 3.
	IntentToAdd
)

// StatData is the filesystem metadata recorded for an entry, used by status
// to decide whether a tracked file may have changed. All fields are stored
// on disk as 32-bit values; truncation of wider inode numbers or post-2038
// timestamps is part of the external format.
type StatData struct {
	CtimeSec  uint32
	CtimeNsec uint32
	MtimeSec  uint32
	MtimeNsec uint32
	Dev       uint32
	Ino       uint32
	UID       uint32
	GID       uint32
	Size      uint32
}

// Entry is one staged path. The entry does not own its path bytes: Path is
// a reference into the arena owned by the containing State, so path reads
// never conflict with metadata mutation.
type Entry struct {
	Stat  StatData
	Mode  uint32
	Hash  []byte // width fixed by the ObjectFormat
	Flags Flags
	Stage Stage
	Path  PathRef
}

// PathIn returns the entry path resolved against the given arena.
func (e *Entry) PathIn(a *PathArena) []byte { return a.Bytes(e.Path) }

// State is the decoded in-memory index: version, entries in (path, stage)
// order, the path arena, decoded extensions and the trailer hash of the
// buffer the state was decoded from (nil for a fresh state).
type State struct {
	version      Version
	objectFormat ObjectFormat
	entries      []Entry
	arena        *PathArena

	// Extensions. Nil pointers mean "not present". The end-of-index marker
	// and the entry-offset table are not retained: both are derived views
	// of the byte layout and are recomputed on every encode.
	TreeCache      *TreeCache
	ResolveUndo    *ResolveUndo
	UntrackedCache *UntrackedCache
	FSMonitor      *FSMonitor
	Link           *Link
	Opaque         []Opaque

	checksum []byte
}

// NewState returns an empty index for the given object format, defaulting
// to version 2 on write.
func NewState(f ObjectFormat) *State {
	return &State{
		version:      V2,
		objectFormat: f,
		arena:        NewPathArena(0),
	}
}

// Version returns the version stored in the decoded header, or the version
// a fresh state defaults to.
func (s *State) Version() Version { return s.version }

// ObjectFormat returns the hash algorithm the state was decoded with.
func (s *State) ObjectFormat() ObjectFormat { return s.objectFormat }

// Len returns the number of entries.
func (s *State) Len() int { return len(s.entries) }

// Entry returns a pointer to the i-th entry in (path, stage) order.
// Mutating stat data, hash or flags through it is allowed; paths are owned
// by the arena and must not be rewritten in place.
func (s *State) Entry(i int) *Entry { return &s.entries[i] }

// Entries returns the backing entry slice.
func (s *State) Entries() []Entry { return s.entries }

// Arena returns the path arena owning all entry path bytes.
func (s *State) Arena() *PathArena { return s.arena }

// Checksum returns the trailer hash of the buffer this state was decoded
// from, or nil for a state that was never decoded.
func (s *State) Checksum() []byte { return s.checksum }

// Get returns the entry with the given path and stage, or nil.
func (s *State) Get(path string, stage Stage) *Entry {
	i, ok := s.find([]byte(path), stage)
	if !ok {
		return nil
	}
	return &s.entries[i]
}

// Insert adds an entry for path at the given stage, keeping (path, stage)
// order. An existing entry with the same path and stage is replaced. The
// entry's Path reference is assigned by the state; any value set by the
// caller is ignored.
func (s *State) Insert(path string, e Entry) {
	p := []byte(path)
	i, ok := s.find(p, e.Stage)
	if ok {
		ref := s.entries[i].Path
		e.Path = ref
		s.entries[i] = e
		return
	}
	e.Path = s.arena.Append(p)
	s.entries = append(s.entries, Entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
}

// Remove deletes the entry with the given path and stage and reports
// whether it was present. The path bytes stay in the arena; the arena is
// append-only and compacted only by an encode/decode cycle.
func (s *State) Remove(path string, stage Stage) bool {
	i, ok := s.find([]byte(path), stage)
	if !ok {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return true
}

// find locates path/stage via binary search. It returns the insertion
// index and whether an exact match exists.
func (s *State) find(path []byte, stage Stage) (int, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		e := &s.entries[i]
		if c := bytes.Compare(e.PathIn(s.arena), path); c != 0 {
			return c >= 0
		}
		return e.Stage >= stage
	})
	if i < len(s.entries) {
		e := &s.entries[i]
		if e.Stage == stage && bytes.Equal(e.PathIn(s.arena), path) {
			return i, true
		}
	}
	return i, false
}

// entryLess reports whether entry a sorts strictly before entry b by
// (path, stage).
func entryLess(arena *PathArena, a, b *Entry) bool {
	if c := bytes.Compare(a.PathIn(arena), b.PathIn(arena)); c != 0 {
		return c < 0
	}
	return a.Stage < b.Stage
}

func (s *State) String() string {
	return fmt.Sprintf("index.State{v%d %s entries=%d}", s.version, s.objectFormat, len(s.entries))
}
