// Package ingest parses the three document submission formats spec.md
// recognizes (the packed binary format plus the two legacy formats carried
// forward from the original prototype, per SPEC_FULL.md's "Supplemented
// Features") and bounds admission into the per-shard writer queue.
package ingest

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/go-mizu/strobe/internal/wire"
)

// ParsePack parses the packed ingest body (spec.md §6.3). A truncated
// trailing record is a malformed request (spec.md §7's "wire parser" row),
// unlike the two legacy formats below.
func ParsePack(body []byte) ([]wire.Record, error) {
	return wire.DecodeAllRecords(body)
}

// ParseLines parses the legacy "id<TAB>search\n" / "search\n" text format
// (original_source/src/ingest.rs's ingest_lines). Blank lines are skipped;
// a missing or unparsable id assigns a new one. This format predates
// structured metadata, so Title/Author/Genres/URL/URI are always empty.
func ParseLines(body []byte) []wire.Record {
	var out []wire.Record
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		id := wire.AssignID
		search := line
		if tab := bytes.IndexByte(line, '\t'); tab >= 0 {
			if n, err := strconv.ParseUint(string(bytes.TrimSpace(line[:tab])), 10, 32); err == nil {
				id = uint32(n)
			}
			search = bytes.TrimSpace(line[tab+1:])
		}
		if len(search) == 0 {
			continue
		}
		out = append(out, wire.Record{ID: id, Search: string(search)})
	}
	return out
}

// ParseBin parses the legacy naive binary format: repeated
// [u32 id][u32 len][len bytes search], metadata always empty
// (original_source/src/ingest.rs's ingest_bin). A truncated trailing
// record is silently dropped rather than rejected — this format was always
// a best-effort stopgap, never the primary wire contract.
func ParseBin(body []byte) []wire.Record {
	var out []wire.Record
	i := 0
	for i+8 <= len(body) {
		id := binary.LittleEndian.Uint32(body[i : i+4])
		length := int(binary.LittleEndian.Uint32(body[i+4 : i+8]))
		i += 8
		if i+length > len(body) {
			break
		}
		out = append(out, wire.Record{ID: id, Search: string(body[i : i+length])})
		i += length
	}
	return out
}
