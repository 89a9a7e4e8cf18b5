// Package format houses the low-level layout of the git index file format.
// The goal is to keep byte-level knowledge (field offsets, signatures,
// integer encoding, varints) in one focused place, independent from the
// public API, so higher-level packages can orchestrate the data in a more
// ergonomic form.
package format

var (
	// IndexSignature is the four-byte signature at the start of every index file.
	// Layout:
	//   0x00  'D' 'I' 'R' 'C'
	IndexSignature = []byte{'D', 'I', 'R', 'C'}

	// TreeSignature identifies the cache-tree extension chunk.
	TreeSignature = [4]byte{'T', 'R', 'E', 'E'}

	// ResolveUndoSignature identifies the resolve-undo extension chunk.
	ResolveUndoSignature = [4]byte{'R', 'E', 'U', 'C'}

	// UntrackedSignature identifies the untracked-cache extension chunk.
	UntrackedSignature = [4]byte{'U', 'N', 'T', 'R'}

	// EndOfIndexSignature identifies the end-of-index-entry extension chunk.
	EndOfIndexSignature = [4]byte{'E', 'O', 'I', 'E'}

	// OffsetTableSignature identifies the index-entry-offset-table extension chunk.
	OffsetTableSignature = [4]byte{'I', 'E', 'O', 'T'}

	// LinkSignature identifies the split-index link extension chunk.
	// Lowercase first byte: the extension is optional.
	LinkSignature = [4]byte{'l', 'i', 'n', 'k'}

	// FSMonitorSignature identifies the filesystem-monitor extension chunk.
	FSMonitorSignature = [4]byte{'F', 'S', 'M', 'N'}
)

const (
	// HeaderSize is the size of the index header: signature, version and
	// entry count, all 32-bit big-endian.
	HeaderSize = 12

	// HeaderSignatureOffset is the offset of the "DIRC" signature.
	HeaderSignatureOffset = 0x00
	// HeaderVersionOffset is the offset of the 4-byte version field.
	HeaderVersionOffset = 0x04
	// HeaderEntryCountOffset is the offset of the 4-byte entry count field.
	HeaderEntryCountOffset = 0x08

	// VersionMin and VersionMax bound the accepted on-disk versions.
	VersionMin = 2
	VersionMax = 4

	// ExtensionHeaderSize is the size of an extension chunk header:
	// 4-byte signature followed by a 4-byte big-endian payload length.
	ExtensionHeaderSize = 8

	// EntryFixedSize is the size of the fixed portion of an entry record
	// before the object hash: ten 32-bit stat fields.
	//   0x00 ctime seconds      0x04 ctime nanoseconds
	//   0x08 mtime seconds      0x0C mtime nanoseconds
	//   0x10 dev                0x14 ino
	//   0x18 mode               0x1C uid
	//   0x20 gid                0x24 file size
	EntryFixedSize = 40

	// EntryFlagsSize is the size of the 16-bit flags word that follows the
	// object hash, and of the optional extended flags word after it.
	EntryFlagsSize = 2

	// EntryAlignment is the record alignment for version 2 and 3 entries.
	// Records are NUL-padded so that their total length is a multiple of 8.
	// Version 4 records are not padded.
	EntryAlignment = 8

	// StatDataSize is the size of a serialized stat-data block as used by
	// the untracked-cache extension: the entry stat portion without the
	// mode word (nine 32-bit fields).
	StatDataSize = 36
)

// Entry flag word bits (first 16-bit flags field).
const (
	// FlagAssumeValid marks an entry the user promised not to change.
	FlagAssumeValid = 0x8000
	// FlagExtended marks the presence of the second flags word (v3+).
	FlagExtended = 0x4000
	// FlagStageMask covers the two stage bits.
	FlagStageMask = 0x3000
	// FlagStageShift positions the stage bits.
	FlagStageShift = 12
	// FlagPathLenMask covers the stored path length. Paths of this length
	// or longer store the mask value and rely on the NUL scan instead.
	FlagPathLenMask = 0x0FFF
)

// Extended flag word bits (second 16-bit flags field, v3+).
const (
	// FlagSkipWorktree marks sparse-checkout entries.
	FlagSkipWorktree = 0x4000
	// FlagIntentToAdd marks entries staged with intent-to-add.
	FlagIntentToAdd = 0x2000
	// ExtendedFlagsKnownMask covers the extended bits this engine understands.
	ExtendedFlagsKnownMask = FlagSkipWorktree | FlagIntentToAdd
)

// File mode values as stored in the 32-bit mode field.
const (
	ModeRegular    = 0o100644
	ModeExecutable = 0o100755
	ModeSymlink    = 0o120000
	ModeGitlink    = 0o160000
	ModeDir        = 0o040000
)

// Hash widths for the two supported object formats.
const (
	SHA1Size   = 20
	SHA256Size = 32
)
