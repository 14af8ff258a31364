package core

import (
	"context"

	"github.com/packline/revstore/pkg/model"
)

// Info is a point-in-time summary of a repository
type Info struct {
	UUID             string       `yaml:"uuid"`
	Format           int          `yaml:"format"`
	Linear           bool         `yaml:"linear,omitempty"`
	ShardSize        int64        `yaml:"shard_size,omitempty"`
	Logical          bool         `yaml:"logical"`
	LogicalStart     model.RevNum `yaml:"logical_start,omitempty"`
	Youngest         model.RevNum `yaml:"youngest"`
	MinUnpacked      model.RevNum `yaml:"min_unpacked"`
	RevpropPackSize  int64        `yaml:"revprop_pack_size"`
	CompressRevprops bool         `yaml:"compress_revprops"`
	RepCacheBytes    uint64       `yaml:"rep_cache_bytes,omitempty"`

	_ struct{}
}

// Info reports the layout and state of the repository
func (r *Repository) Info(ctx context.Context) (*Info, error) {
	f := r.currentFormat()
	youngest, err := r.readCurrent(ctx)
	if err != nil {
		return nil, err
	}
	wm, err := r.minUnpackedRev(ctx)
	if err != nil {
		return nil, err
	}
	info := &Info{
		UUID:             r.uuid,
		Format:           f.Number,
		Linear:           f.Linear,
		ShardSize:        f.ShardSize,
		Logical:          f.Logical,
		LogicalStart:     f.LogicalStart,
		Youngest:         youngest,
		MinUnpacked:      wm,
		RevpropPackSize:  r.config.RevpropPackSize,
		CompressRevprops: r.config.CompressRevprops,
	}
	if r.repCache != nil {
		info.RepCacheBytes = r.repCache.size()
	}
	return info, nil
}
