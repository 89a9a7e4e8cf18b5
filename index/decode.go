package index

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/indexkit/indexkit/internal/format"
	"github.com/indexkit/indexkit/internal/mmfile"
)

// Decode parses a whole index buffer into a State. The buffer must be the
// complete file; the trailer hash is verified before anything else, and any
// structural error aborts the decode with no partial state.
//
// When the file carries an entry-offset table and opts.MaxParallel is
// greater than 1, the entry region is decoded by a bounded pool of workers,
// one offset-table block each. The result is identical to a sequential
// decode.
func Decode(buf []byte, opts DecodeOptions) (*State, error) {
	f := opts.ObjectFormat
	trailer, err := validateTrailer(f, buf)
	if err != nil {
		return nil, err
	}
	hdr, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	body := buf[:len(buf)-f.Size()]
	s := &State{
		version:      hdr.Version,
		objectFormat: f,
		arena:        NewPathArena(32 * entryCapacity(int(hdr.EntryCount), len(body), f.Size())),
		checksum:     append([]byte(nil), trailer...),
	}

	// The end-of-index marker sits at a fixed distance from the end of the
	// file; through it the offset table is reachable before any entry has
	// been parsed.
	eoi, haveEOI := findEndOfIndex(buf, f)
	var table offsetTable
	haveTable := false
	if haveEOI {
		it := &extIter{buf: body[eoi.Offset:]}
		for {
			sig, payload, ok, iterErr := it.next()
			if iterErr != nil {
				return nil, iterErr
			}
			if !ok {
				break
			}
			if sig == Signature(format.OffsetTableSignature) {
				if table, err = decodeOffsetTable(payload); err != nil {
					return nil, fmt.Errorf("extension %s: %w", sig, err)
				}
				haveTable = true
				break
			}
		}
	}

	var extStart int
	if haveTable && opts.MaxParallel > 1 && len(table.Blocks) > 1 {
		if err := table.validate(format.HeaderSize, int(eoi.Offset), hdr.EntryCount); err != nil {
			return nil, err
		}
		if err := decodeEntriesParallel(body, s, hdr, table, int(eoi.Offset), opts.MaxParallel); err != nil {
			return nil, err
		}
		extStart = int(eoi.Offset)
	} else {
		entries, end, err := decodeEntriesSeq(context.Background(), body, format.HeaderSize, int(hdr.EntryCount), hdr.Version, f.Size(), s.arena)
		if err != nil {
			return nil, err
		}
		s.entries = entries
		extStart = end
	}

	if err := checkEntryOrder(s); err != nil {
		return nil, err
	}
	if err := decodeExtensions(body[extStart:], s, f); err != nil {
		return nil, err
	}
	return s, nil
}

// Open maps the index file at path, decodes it, and releases the mapping.
// The returned State owns all of its memory.
func Open(path string, opts DecodeOptions) (*State, error) {
	data, cleanup, err := mmfile.Map(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cleanup() }()
	return Decode(data, opts)
}

// entryCapacity bounds an allocation hint for count entries by how many
// records the buffer can physically hold. The header's count is attacker
// controlled; sizing an allocation from it directly would let a tiny file
// request gigabytes before the first record is even looked at.
func entryCapacity(count, bufLen, hashLen int) int {
	most := bufLen / (format.EntryFixedSize + hashLen + format.EntryFlagsSize)
	if count > most {
		return most
	}
	return count
}

// decodeEntriesSeq decodes count entries starting at pos in a single pass.
// ctx is checked periodically so a peer worker's failure stops the scan.
func decodeEntriesSeq(ctx context.Context, b []byte, pos, count int, v Version, hashLen int, arena *PathArena) ([]Entry, int, error) {
	entries := make([]Entry, 0, entryCapacity(count, len(b)-pos, hashLen))
	var prev []byte
	for i := 0; i < count; i++ {
		if i&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		e, next, path, err := decodeEntry(b, pos, v, hashLen, prev, arena)
		if err != nil {
			return nil, 0, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
		pos = next
		prev = path
	}
	return entries, pos, nil
}

// decodeEntriesParallel fans the offset-table blocks out over a bounded
// worker pool. Every worker owns a disjoint slice of the source buffer,
// writes into its own slot of the result list, and fills a private path
// arena, so no synchronization beyond the final join is needed. The first
// failing block cancels the rest; partial results are discarded.
func decodeEntriesParallel(body []byte, s *State, hdr Header, table offsetTable, entriesEnd, maxParallel int) error {
	type blockResult struct {
		entries []Entry
		arena   *PathArena
	}
	results := make([]blockResult, len(table.Blocks))

	g, ctx := errgroup.WithContext(context.Background())
	if maxParallel > len(table.Blocks) {
		maxParallel = len(table.Blocks)
	}
	g.SetLimit(maxParallel)

	for i := range table.Blocks {
		blk := table.Blocks[i]
		end := entriesEnd
		if i+1 < len(table.Blocks) {
			end = int(table.Blocks[i+1].Offset)
		}
		i := i
		g.Go(func() error {
			hashLen := s.objectFormat.Size()
			arena := NewPathArena(32 * entryCapacity(int(blk.Count), end-int(blk.Offset), hashLen))
			entries, pos, err := decodeEntriesSeq(ctx, body[:end], int(blk.Offset), int(blk.Count), hdr.Version, hashLen, arena)
			if err != nil {
				return &DecodeTaskError{Block: i, Err: err}
			}
			if pos != end {
				return &DecodeTaskError{
					Block: i,
					Err:   fmt.Errorf("%w: block ends at %d, next block starts at %d", format.ErrCorrupt, pos, end),
				}
			}
			results[i] = blockResult{entries: entries, arena: arena}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Blocks are already in offset order; concatenation is the merge.
	s.entries = make([]Entry, 0, hdr.EntryCount)
	for _, r := range results {
		delta := s.arena.splice(r.arena)
		for _, e := range r.entries {
			e.Path = e.Path.shift(delta)
			s.entries = append(s.entries, e)
		}
	}
	return nil
}

// checkEntryOrder enforces strict (path, stage) ordering. Unsorted or
// duplicated entries fail the decode outright rather than being silently
// reordered.
func checkEntryOrder(s *State) error {
	for i := 1; i < len(s.entries); i++ {
		if !entryLess(s.arena, &s.entries[i-1], &s.entries[i]) {
			return fmt.Errorf("%w: entry %d (%q stage %d) does not sort after its predecessor",
				format.ErrCorrupt, i, s.entries[i].PathIn(s.arena), s.entries[i].Stage)
		}
	}
	return nil
}
