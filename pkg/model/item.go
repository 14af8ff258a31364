package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/packline/revstore/pkg/model/status"
)

// ItemTypeRev tags revision items, in item headers and in
// physical-to-logical index entries.
const ItemTypeRev = "rev"

// ItemHeader is the one-line header prefixed to every revision item,
// loose or packed. The header states the addressing mode the item was
// written under:
//
//	rev P ‹content-size›
//	rev L ‹item-id› ‹crc32c›
//
// Physical items carry their content size inline and no checksum.
// Logical items carry an opaque item id, resolved through the
// logical-to-physical index once packed, and the Castagnoli CRC of
// their content computed at commit time.
type ItemHeader struct {
	Logical bool
	Size    int64  // content bytes, physical items
	ItemID  int64  // logical items
	CRC     uint32 // crc32c of the content, logical items

	_ struct{}
}

// Serialize renders the header line, including the terminating newline
func (h ItemHeader) Serialize() []byte {
	if h.Logical {
		return []byte(fmt.Sprintf("%s L %d %08x\n", ItemTypeRev, h.ItemID, h.CRC))
	}
	return []byte(fmt.Sprintf("%s P %d\n", ItemTypeRev, h.Size))
}

// ParseItemHeader parses the first line of a revision item. The line is
// passed without its terminating newline.
func ParseItemHeader(line string) (ItemHeader, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != ItemTypeRev {
		return ItemHeader{}, status.ErrBadItemHeader.WrapMessage("not a revision item: %q", line)
	}
	switch fields[1] {
	case "P":
		if len(fields) != 3 {
			return ItemHeader{}, status.ErrBadItemHeader.WrapMessage("physical header %q", line)
		}
		size, err := ParseDigits(fields[2])
		if err != nil {
			return ItemHeader{}, status.ErrBadItemHeader.Wrap(err)
		}
		return ItemHeader{Size: size}, nil
	case "L":
		if len(fields) != 4 {
			return ItemHeader{}, status.ErrBadItemHeader.WrapMessage("logical header %q", line)
		}
		id, err := ParseDigits(fields[2])
		if err != nil {
			return ItemHeader{}, status.ErrBadItemHeader.Wrap(err)
		}
		crc, err := strconv.ParseUint(fields[3], 16, 32)
		if err != nil {
			return ItemHeader{}, status.ErrBadItemHeader.WrapMessage("checksum %q", fields[3])
		}
		return ItemHeader{Logical: true, ItemID: id, CRC: uint32(crc)}, nil
	default:
		return ItemHeader{}, status.ErrBadItemHeader.WrapMessage("unknown addressing tag %q", fields[1])
	}
}

// SplitItem separates a raw revision item into its header and content
func SplitItem(raw []byte) (ItemHeader, []byte, error) {
	nl := -1
	for i, b := range raw {
		if b == '\n' {
			nl = i
			break
		}
	}
	if nl < 0 {
		return ItemHeader{}, nil, status.ErrBadItemHeader.WrapMessage("missing header line")
	}
	h, err := ParseItemHeader(string(raw[:nl]))
	if err != nil {
		return ItemHeader{}, nil, err
	}
	return h, raw[nl+1:], nil
}
