package core

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strconv"
	"strings"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/model"
)

// Index file header tags.
const (
	l2pHeaderTag = "L2P"
	p2lHeaderTag = "P2L"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// contentCRC is the checksum carried by logical item headers and by
// physical-to-logical index entries, over content bytes only.
func contentCRC(content []byte) uint32 {
	return crc32.Checksum(content, castagnoliTable)
}

// l2pEntry locates one item of a packed shard by its id
type l2pEntry struct {
	ItemID int64
	Offset int64
	Size   int64
}

// p2lEntry describes the item stored at one offset of a pack file.
// Entries tile the pack file exactly: each one starts where the
// previous one ended.
type p2lEntry struct {
	Offset   int64
	Size     int64
	ItemType string
	CRC      uint32
}

// serializeManifest renders the ASCII offset manifest of a packed shard
func serializeManifest(offsets []int64) []byte {
	var sb strings.Builder
	for _, off := range offsets {
		fmt.Fprintf(&sb, "%d\n", off)
	}
	return []byte(sb.String())
}

func parseManifest(data []byte) ([]int64, error) {
	lines := splitLines(data)
	offsets := make([]int64, 0, len(lines))
	last := int64(-1)
	for _, line := range lines {
		off, err := model.ParseDigits(line)
		if err != nil {
			return nil, status.ErrCorrupt.WrapMessage("manifest offset %q", line)
		}
		if off <= last {
			return nil, status.ErrCorrupt.WrapMessage("manifest offsets not ascending at %d", off)
		}
		offsets = append(offsets, off)
		last = off
	}
	return offsets, nil
}

func serializeL2P(entries []l2pEntry) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d\n", l2pHeaderTag, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&sb, "%d %d %d\n", e.ItemID, e.Offset, e.Size)
	}
	return []byte(sb.String())
}

func parseL2P(data []byte) ([]l2pEntry, error) {
	lines := splitLines(data)
	count, err := parseIndexHeader(l2pHeaderTag, lines)
	if err != nil {
		return nil, err
	}
	entries := make([]l2pEntry, 0, count)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, status.ErrCorrupt.WrapMessage("logical index entry %q", line)
		}
		var e l2pEntry
		if e.ItemID, err = model.ParseDigits(fields[0]); err != nil {
			return nil, status.ErrCorrupt.Wrap(err)
		}
		if e.Offset, err = model.ParseDigits(fields[1]); err != nil {
			return nil, status.ErrCorrupt.Wrap(err)
		}
		if e.Size, err = model.ParseDigits(fields[2]); err != nil {
			return nil, status.ErrCorrupt.Wrap(err)
		}
		entries = append(entries, e)
	}
	if int64(len(entries)) != count {
		return nil, status.ErrCorrupt.WrapMessage("logical index has %d entries, header says %d", len(entries), count)
	}
	return entries, nil
}

func serializeP2L(entries []p2lEntry) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d\n", p2lHeaderTag, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&sb, "%d %d %s %08x\n", e.Offset, e.Size, e.ItemType, e.CRC)
	}
	return []byte(sb.String())
}

func parseP2L(data []byte) ([]p2lEntry, error) {
	lines := splitLines(data)
	count, err := parseIndexHeader(p2lHeaderTag, lines)
	if err != nil {
		return nil, err
	}
	entries := make([]p2lEntry, 0, count)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, status.ErrCorrupt.WrapMessage("physical index entry %q", line)
		}
		var e p2lEntry
		if e.Offset, err = model.ParseDigits(fields[0]); err != nil {
			return nil, status.ErrCorrupt.Wrap(err)
		}
		if e.Size, err = model.ParseDigits(fields[1]); err != nil {
			return nil, status.ErrCorrupt.Wrap(err)
		}
		e.ItemType = fields[2]
		crc, err := strconv.ParseUint(fields[3], 16, 32)
		if err != nil {
			return nil, status.ErrCorrupt.WrapMessage("physical index checksum %q", fields[3])
		}
		e.CRC = uint32(crc)
		entries = append(entries, e)
	}
	if int64(len(entries)) != count {
		return nil, status.ErrCorrupt.WrapMessage("physical index has %d entries, header says %d", len(entries), count)
	}
	return entries, nil
}

func parseIndexHeader(tag string, lines []string) (int64, error) {
	if len(lines) == 0 {
		return 0, status.ErrCorrupt.WrapMessage("empty %s index", tag)
	}
	fields := strings.Fields(lines[0])
	if len(fields) != 2 || fields[0] != tag {
		return 0, status.ErrCorrupt.WrapMessage("index header %q", lines[0])
	}
	count, err := model.ParseDigits(fields[1])
	if err != nil {
		return 0, status.ErrCorrupt.Wrap(err)
	}
	return count, nil
}

// findL2P locates the entry for an item id. Entries are written in
// ascending id order.
func findL2P(entries []l2pEntry, itemID int64) (l2pEntry, bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].ItemID >= itemID
	})
	if i < len(entries) && entries[i].ItemID == itemID {
		return entries[i], true
	}
	return l2pEntry{}, false
}

// findP2L locates the entry starting exactly at offset. Entries are
// written in ascending offset order.
func findP2L(entries []p2lEntry, offset int64) (p2lEntry, bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Offset >= offset
	})
	if i < len(entries) && entries[i].Offset == offset {
		return entries[i], true
	}
	return p2lEntry{}, false
}

// splitLines breaks a metadata file into its non-empty lines
func splitLines(data []byte) []string {
	raw := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
