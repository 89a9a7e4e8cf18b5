// Package index reads and writes the git index file: the binary staging
// record of every tracked path, its last-known filesystem metadata, its
// object hash, and the auxiliary caches that accelerate status, diff and
// commit operations.
//
// # Overview
//
// The decoder is byte-for-byte compatible with index versions 2, 3 and 4,
// including the prefix-compressed path encoding of version 4, and understands
// the known extension chunks (cache tree, resolve-undo, untracked cache,
// end-of-index marker, entry-offset table, split-index link, filesystem
// monitor). Unknown optional extensions are carried through opaquely; unknown
// mandatory extensions fail the decode. The encoder reproduces files that
// existing git tooling re-reads unchanged.
//
// # Key Types
//
//   - State: the decoded in-memory index
//   - Entry: one staged path with stat metadata, hash, flags and stage
//   - PathArena: the byte arena owning all path text
//   - TreeCache, ResolveUndo, UntrackedCache, FSMonitor, Link, Opaque:
//     decoded extension payloads
//
// # File Structure
//
// An index file consists of:
//
//	[12-byte header] [entry records] [extension chunks...] [hash trailer]
//
// The header carries the "DIRC" signature, the version and the entry count.
// Every fixed-width integer in the format is big-endian. The trailer is a
// SHA-1 or SHA-256 hash over every preceding byte; a mismatch rejects the
// whole file, there is no partially-valid State.
//
// # Reading an Index
//
//	st, err := index.Open(".git/index", index.DecodeOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for i := 0; i < st.Len(); i++ {
//	    fmt.Println(st.Entry(i).PathIn(st.Arena()))
//	}
//
// Decode parallelism is an explicit option. When the file carries an
// entry-offset table, Decode splits the entry region across that many
// workers; behavior at any parallelism level, including 1, is identical.
//
// # Writing an Index
//
//	buf, err := st.Encode(index.WriteOptions{})
//
// The writer keeps entries in (path, stage) order, re-derives every cached
// value that depends on entry content (cache-tree validity, offset table,
// end-of-index marker) instead of trusting values from a prior decode, and
// appends a fresh trailer. Durable replacement of an index file goes through
// a temp file and rename; see WriteFile.
//
// # Path Ownership
//
// Entries do not own their path bytes. All path text lives in a PathArena
// owned by the State, and entries hold (offset, length) references into it.
// Callers can therefore read paths while mutating entry metadata.
package index
