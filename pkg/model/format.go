package model

import (
	"fmt"
	"strings"

	"github.com/packline/revstore/pkg/model/status"
)

// Repository format numbers. Each number is a superset of the
// capabilities of the previous one.
const (
	// MinSupportedFormat is the oldest format revstore can open
	MinSupportedFormat = 1

	// MinPackFormat is the first format whose shards can be packed
	MinPackFormat = 4

	// MinPackedRevpropFormat is the first format supporting packed
	// revision properties
	MinPackedRevpropFormat = 6

	// MinLogicalFormat is the first format supporting logical
	// addressing of revision items
	MinLogicalFormat = 7

	// CurrentFormat is the format written by Create and Upgrade
	CurrentFormat = 7
)

// DefaultShardSize is the number of revisions per shard unless
// overridden at creation time.
const DefaultShardSize = 1000

// Format is the capability descriptor of a repository, persisted as the
// first file consulted when opening one.
type Format struct {
	// Number is the format generation
	Number int

	// Linear is set for legacy repositories without sharding. Linear
	// repositories never pack.
	Linear bool

	// ShardSize is the number of revisions per shard (sharded layouts)
	ShardSize int64

	// Logical is set when revision items are located through indexes
	// rather than physical offsets
	Logical bool

	// LogicalStart is the first revision stored under logical
	// addressing. Always a multiple of ShardSize, so a shard never
	// mixes addressing modes. 0 for repositories created logical.
	LogicalStart RevNum

	_ struct{}
}

// NewFormat returns the format descriptor written for new repositories
func NewFormat(shardSize int64) Format {
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return Format{
		Number:    CurrentFormat,
		ShardSize: shardSize,
		Logical:   true,
	}
}

// Serialize renders the on-disk format file
func (f Format) Serialize() []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d\n", f.Number)
	if f.Linear {
		sb.WriteString("layout linear\n")
	} else {
		fmt.Fprintf(&sb, "layout sharded %d\n", f.ShardSize)
	}
	if f.Number >= MinLogicalFormat {
		if f.Logical {
			fmt.Fprintf(&sb, "addressing logical %d\n", f.LogicalStart)
		} else {
			sb.WriteString("addressing physical\n")
		}
	}
	return []byte(sb.String())
}

// ParseFormat reads a format file back into a descriptor
func ParseFormat(data []byte) (Format, error) {
	var f Format
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) < 1 || lines[0] == "" {
		return f, status.ErrBadFormat.WrapMessage("empty format file")
	}
	n, err := ParseDigits(lines[0])
	if err != nil {
		return f, status.ErrBadFormat.Wrap(err)
	}
	f.Number = int(n)
	if f.Number < MinSupportedFormat {
		return f, status.ErrBadFormat.WrapMessage("format %d out of range", f.Number)
	}

	// defaults when optional lines are absent
	f.Linear = true
	f.ShardSize = 0

	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "layout":
			if err := f.parseLayout(fields); err != nil {
				return f, err
			}
		case "addressing":
			if err := f.parseAddressing(fields); err != nil {
				return f, err
			}
		default:
			return f, status.ErrBadFormat.WrapMessage("unknown directive %q", fields[0])
		}
	}
	if f.Logical && f.Linear {
		return f, status.ErrBadFormat.WrapMessage("logical addressing requires a sharded layout")
	}
	if f.Logical && f.Number < MinLogicalFormat {
		return f, status.ErrBadFormat.WrapMessage("logical addressing requires format %d", MinLogicalFormat)
	}
	return f, nil
}

func (f *Format) parseLayout(fields []string) error {
	switch {
	case len(fields) == 2 && fields[1] == "linear":
		f.Linear = true
		f.ShardSize = 0
	case len(fields) == 3 && fields[1] == "sharded":
		size, err := ParseDigits(fields[2])
		if err != nil {
			return status.ErrBadFormat.Wrap(err)
		}
		if size <= 0 {
			return status.ErrBadFormat.WrapMessage("shard size must be positive")
		}
		f.Linear = false
		f.ShardSize = size
	default:
		return status.ErrBadFormat.WrapMessage("invalid layout line %q", strings.Join(fields, " "))
	}
	return nil
}

func (f *Format) parseAddressing(fields []string) error {
	switch {
	case len(fields) == 2 && fields[1] == "physical":
		f.Logical = false
		f.LogicalStart = 0
	case len(fields) == 3 && fields[1] == "logical":
		start, err := ParseRevNum(fields[2])
		if err != nil {
			return status.ErrBadFormat.Wrap(err)
		}
		f.Logical = true
		f.LogicalStart = start
	default:
		return status.ErrBadFormat.WrapMessage("invalid addressing line %q", strings.Join(fields, " "))
	}
	return nil
}

// SupportsPacking reports whether shards of this repository may be
// packed at all.
func (f Format) SupportsPacking() bool {
	return !f.Linear && f.Number >= MinPackFormat
}

// SupportsPackedRevprops reports whether revision properties are
// consolidated when a shard is packed.
func (f Format) SupportsPackedRevprops() bool {
	return f.SupportsPacking() && f.Number >= MinPackedRevpropFormat
}

// UsesLogical reports the addressing mode revision rev is stored under
func (f Format) UsesLogical(rev RevNum) bool {
	return f.Logical && rev >= f.LogicalStart
}

// ShardOf returns the shard holding revision rev. Linear layouts put
// everything in shard 0.
func (f Format) ShardOf(rev RevNum) int64 {
	if f.Linear {
		return 0
	}
	return ShardID(rev, f.ShardSize)
}
