package core

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
	"github.com/packline/revstore/pkg/storage"
	storagestatus "github.com/packline/revstore/pkg/storage/status"
)

// Pack packs every closed shard of the repository at path. See
// (*Repository).Pack.
func Pack(ctx context.Context, path string, opts ...Option) error {
	r, err := Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()
	return r.Pack(ctx, opts...)
}

// Pack consolidates all closed shards: for each one, the loose
// revision items are concatenated into a pack file with its indexes,
// revision properties are packed alongside, the watermark is bumped,
// and only then are the loose files deleted. The watermark replacement
// is the commit point of each shard: interrupting a pack never leaves
// a shard half-visible, and a new Pack call resumes where the previous
// one stopped.
//
// A shard is closed once its last revision is committed; the shard
// holding the youngest revision packs too when youngest sits exactly
// at the end of it.
//
// Cancellation via ctx is honored between shards and reported as
// ErrInterrupted.
func (r *Repository) Pack(ctx context.Context, opts ...Option) error {
	s := r.settingsWith(opts)

	f, err := r.refreshFormat(ctx)
	if err != nil {
		return err
	}
	if !f.SupportsPacking() {
		return status.ErrUnsupportedFormat.WrapMessage("format %d, layout linear %v", f.Number, f.Linear)
	}
	youngest, err := r.readCurrent(ctx)
	if err != nil {
		return err
	}
	wm, err := r.refreshMinUnpacked(ctx)
	if err != nil {
		return err
	}
	if int64(wm)%f.ShardSize != 0 {
		return status.ErrCorrupt.WrapMessage("watermark %d is not a multiple of the shard size %d", wm, f.ShardSize)
	}

	firstShard := int64(wm) / f.ShardSize
	completed := model.CompletedShards(youngest, f.ShardSize)
	s.logger.Info("packing",
		zap.String("repository", r.String()),
		zap.Int64("from_shard", firstShard),
		zap.Int64("shards", completed-firstShard),
	)

	for shard := firstShard; shard < completed; shard++ {
		select {
		case <-ctx.Done():
			return status.ErrInterrupted.Wrap(ctx.Err())
		default:
		}
		if s.notify != nil {
			s.notify(shard, PackActionStart)
		}
		if err := r.packShard(ctx, f, shard, s); err != nil {
			return err
		}
		if s.notify != nil {
			s.notify(shard, PackActionEnd)
		}
	}
	return nil
}

func (r *Repository) packShard(ctx context.Context, f model.Format, shard int64, s Settings) error {
	if err := r.packShardContent(ctx, f, shard); err != nil {
		return err
	}
	if err := r.packShardRevprops(ctx, f, shard); err != nil {
		return err
	}

	// the swing: from here on the packed side is authoritative
	if err := r.writeMinUnpacked(ctx, model.ShardStart(shard+1, f.ShardSize)); err != nil {
		return err
	}

	if err := r.deleteLooseShard(ctx, f, shard); err != nil {
		return err
	}
	s.logger.Debug("packed shard", zap.Int64("shard", shard))
	return nil
}

// packShardContent stages the content pack of one shard: the pack file
// itself, the indexes, and last the offset manifest whose presence
// marks the artifact set complete.
func (r *Repository) packShardContent(ctx context.Context, f model.Format, shard int64) error {
	first := model.ShardStart(shard, f.ShardSize)
	last := first + model.RevNum(f.ShardSize) - 1

	var pack bytes.Buffer
	offsets := make([]int64, 0, int(f.ShardSize))
	l2p := make([]l2pEntry, 0, int(f.ShardSize))
	p2l := make([]p2lEntry, 0, int(f.ShardSize))

	for rev := first; rev <= last; rev++ {
		raw, err := storage.ReadAll(ctx, r.store, model.GetRevLoosePath(f, rev))
		if err != nil {
			if errors.Is(err, storagestatus.ErrNotExists) {
				return status.ErrCorrupt.WrapMessage("revision %d missing while packing shard %d", rev, shard)
			}
			return err
		}
		h, content, err := model.SplitItem(raw)
		if err != nil {
			return status.ErrCorrupt.Wrap(err)
		}
		if err := itemStructuralCheck(h, content, rev); err != nil {
			return err
		}
		crc := contentCRC(content)
		if h.Logical && crc != h.CRC {
			return status.ErrCorrupt.WrapMessage("revision %d content checksum %08x, header says %08x", rev, crc, h.CRC)
		}

		off := int64(pack.Len())
		offsets = append(offsets, off)
		pack.Write(raw)
		if f.UsesLogical(rev) {
			l2p = append(l2p, l2pEntry{ItemID: h.ItemID, Offset: off, Size: int64(len(raw))})
		}
		p2l = append(p2l, p2lEntry{Offset: off, Size: int64(len(raw)), ItemType: model.ItemTypeRev, CRC: crc})
	}

	if err := storage.PutBytes(ctx, r.store, model.GetRevPackFilePath(shard), pack.Bytes()); err != nil {
		return err
	}
	if len(l2p) > 0 {
		if err := storage.PutBytes(ctx, r.store, model.GetL2PIndexPath(shard), serializeL2P(l2p)); err != nil {
			return err
		}
	}
	if err := storage.PutBytes(ctx, r.store, model.GetP2LIndexPath(shard), serializeP2L(p2l)); err != nil {
		return err
	}
	return storage.PutBytes(ctx, r.store, model.GetRevPackManifestPath(shard), serializeManifest(offsets))
}

// deleteLooseShard removes the loose files a pack supersedes. Content
// goes wholesale; properties revision by revision, since revision 0's
// property blob stays loose forever.
func (r *Repository) deleteLooseShard(ctx context.Context, f model.Format, shard int64) error {
	if err := r.store.DeletePrefix(ctx, model.GetRevShardDir(shard)); err != nil {
		return err
	}
	if !f.SupportsPackedRevprops() {
		return nil
	}
	first, last := revpropRange(f, shard)
	for rev := first; rev <= last; rev++ {
		if err := r.store.Delete(ctx, model.GetRevpropLoosePath(f, rev)); err != nil {
			return err
		}
	}
	return nil
}
