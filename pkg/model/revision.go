package model

import (
	"math"

	"github.com/packline/revstore/pkg/model/status"
)

// RevNum is a revision number. Valid revision numbers are dense and
// start at 0.
type RevNum int64

const (
	// InvalidRev is the sentinel for "no revision". Operations accepting
	// a revision range treat it as "unbounded".
	InvalidRev RevNum = -1

	// MaxRevNum is the largest representable revision number.
	MaxRevNum RevNum = math.MaxInt64
)

// IsValid reports whether r denotes an actual revision
func (r RevNum) IsValid() bool {
	return r >= 0
}

// ShardID returns the shard a revision belongs to
func ShardID(rev RevNum, shardSize int64) int64 {
	return int64(rev) / shardSize
}

// ShardStart returns the first revision of a shard
func ShardStart(shard, shardSize int64) RevNum {
	return RevNum(shard * shardSize)
}

// CompletedShards returns the number of shards whose every revision has
// been committed, given the youngest revision. A shard counts as
// completed as soon as its last revision exists, youngest included.
func CompletedShards(youngest RevNum, shardSize int64) int64 {
	return (int64(youngest) + 1) / shardSize
}

// PackWatermark returns the lowest loose revision once all completed
// shards are packed: the first revision of the first incomplete shard.
// It is always a multiple of the shard size.
func PackWatermark(youngest RevNum, shardSize int64) RevNum {
	return RevNum(CompletedShards(youngest, shardSize) * shardSize)
}

// ParseRevNum parses a decimal revision number, rejecting anything that
// is not a plain sequence of digits or that overflows int64.
func ParseRevNum(s string) (RevNum, error) {
	v, err := ParseDigits(s)
	if err != nil {
		return InvalidRev, err
	}
	return RevNum(v), nil
}

// ParseDigits parses a non-negative decimal int64 one digit at a time.
// The value is range-checked before each extension so that inputs
// wrapping around the int64 domain are caught, not silently truncated.
func ParseDigits(s string) (int64, error) {
	if len(s) == 0 {
		return 0, status.ErrMalformedID.WrapMessage("empty number")
	}
	var v int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, status.ErrMalformedID.WrapMessage("unexpected character %q in %q", c, s)
		}
		digit := int64(c - '0')
		if v > math.MaxInt64/10 {
			return 0, status.ErrMalformedID.WrapMessage("number %q out of range", s)
		}
		v *= 10
		if v > math.MaxInt64-digit {
			return 0, status.ErrMalformedID.WrapMessage("number %q out of range", s)
		}
		v += digit
	}
	return v, nil
}
