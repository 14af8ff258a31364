package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
	"github.com/packline/revstore/pkg/storage"
	storagestatus "github.com/packline/revstore/pkg/storage/status"
)

// Verify checks the repository at path over a revision range. See
// (*Repository).Verify.
func Verify(ctx context.Context, path string, start, end model.RevNum, opts ...Option) error {
	r, err := Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()
	return r.Verify(ctx, start, end, opts...)
}

// Verify walks the revisions of [start, end] and checks everything
// that backs them: watermark alignment, pack artifact structure, index
// agreement, the checksum of every content byte covered by one, and
// the readability of every revision's properties. InvalidRev bounds
// select the full range. The first problem found is returned wrapped
// in ErrCorrupt.
//
// Cancellation via ctx is honored at shard boundaries and reported as
// ErrInterrupted.
func (r *Repository) Verify(ctx context.Context, start, end model.RevNum, opts ...Option) error {
	s := r.settingsWith(opts)

	f, err := r.refreshFormat(ctx)
	if err != nil {
		return err
	}
	youngest, err := r.readCurrent(ctx)
	if err != nil {
		return err
	}
	wm, err := r.refreshMinUnpacked(ctx)
	if err != nil {
		return err
	}
	if !f.Linear && int64(wm)%f.ShardSize != 0 {
		return status.ErrCorrupt.WrapMessage("watermark %d is not a multiple of the shard size %d", wm, f.ShardSize)
	}
	if wm > youngest+1 {
		return status.ErrCorrupt.WrapMessage("watermark %d beyond youngest %d", wm, youngest)
	}

	if !start.IsValid() {
		start = 0
	}
	if !end.IsValid() {
		end = youngest
	}
	if start > end || end > youngest {
		return status.ErrNotFound.WrapMessage("revision range %d:%d, youngest is %d", start, end, youngest)
	}

	s.logger.Info("verifying",
		zap.String("repository", r.String()),
		zap.Int64("start", int64(start)),
		zap.Int64("end", int64(end)),
	)

	if !f.Linear {
		for shard := f.ShardOf(start); shard <= f.ShardOf(end); shard++ {
			select {
			case <-ctx.Done():
				return status.ErrInterrupted.Wrap(ctx.Err())
			default:
			}
			if model.ShardStart(shard+1, f.ShardSize) > wm {
				continue // loose shard, covered by the per-revision pass
			}
			if err := r.verifyPackedShard(ctx, f, shard); err != nil {
				return err
			}
			if err := r.verifyPackedShardRevprops(ctx, f, shard); err != nil {
				return err
			}
			s.logger.Debug("verified packed shard", zap.Int64("shard", shard))
		}
	}

	for rev := start; rev <= end; rev++ {
		if _, _, err := r.readItem(ctx, rev, CheckIndexed); err != nil {
			return err
		}
		if _, err := r.GetRevisionProperties(ctx, rev); err != nil {
			return err
		}
	}
	return nil
}

// verifyPackedShard checks the structure of one packed shard: artifact
// presence, entry counts, index agreement, exact tiling of the pack
// file, and the recorded checksum of every item.
func (r *Repository) verifyPackedShard(ctx context.Context, f model.Format, shard int64) error {
	first := model.ShardStart(shard, f.ShardSize)

	offsets, err := r.packManifest(ctx, shard)
	if err != nil {
		return err
	}
	if int64(len(offsets)) != f.ShardSize {
		return status.ErrCorrupt.WrapMessage("shard %d manifest covers %d revisions, expected %d", shard, len(offsets), f.ShardSize)
	}
	if offsets[0] != 0 {
		return status.ErrCorrupt.WrapMessage("shard %d manifest starts at offset %d", shard, offsets[0])
	}

	p2l, err := r.p2lIndex(ctx, shard)
	if err != nil {
		return err
	}
	if len(p2l) != len(offsets) {
		return status.ErrCorrupt.WrapMessage("shard %d physical index holds %d entries, manifest %d", shard, len(p2l), len(offsets))
	}

	pack, err := storage.ReadAll(ctx, r.store, model.GetRevPackFilePath(shard))
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			return status.ErrCorrupt.WrapMessage("shard %d has no pack file", shard)
		}
		return err
	}

	logical := f.UsesLogical(first)
	var l2p []l2pEntry
	if logical {
		if l2p, err = r.l2pIndex(ctx, shard); err != nil {
			return err
		}
		if len(l2p) != len(offsets) {
			return status.ErrCorrupt.WrapMessage("shard %d logical index holds %d entries, manifest %d", shard, len(l2p), len(offsets))
		}
	}

	// the physical index must tile the pack file exactly
	next := int64(0)
	for i, e := range p2l {
		rev := first + model.RevNum(i)
		if e.Offset != next {
			return status.ErrCorrupt.WrapMessage("shard %d physical index leaves a gap at offset %d", shard, next)
		}
		if e.Offset != offsets[i] {
			return status.ErrCorrupt.WrapMessage("shard %d manifest and physical index disagree on revision %d", shard, rev)
		}
		if e.ItemType != model.ItemTypeRev {
			return status.ErrCorrupt.WrapMessage("shard %d offset %d holds a %q item", shard, e.Offset, e.ItemType)
		}
		if e.Offset+e.Size > int64(len(pack)) {
			return status.ErrCorrupt.WrapMessage("shard %d physical index runs past the pack end", shard)
		}
		if logical {
			le := l2p[i]
			if le.ItemID != int64(rev) || le.Offset != e.Offset || le.Size != e.Size {
				return status.ErrCorrupt.WrapMessage("shard %d logical index disagrees on revision %d", shard, rev)
			}
		}

		h, content, err := model.SplitItem(pack[e.Offset : e.Offset+e.Size])
		if err != nil {
			return status.ErrCorrupt.Wrap(err)
		}
		if err := itemStructuralCheck(h, content, rev); err != nil {
			return err
		}
		crc := contentCRC(content)
		if crc != e.CRC {
			return status.ErrCorrupt.WrapMessage("revision %d content checksum %08x, index says %08x", rev, crc, e.CRC)
		}
		if h.Logical && h.CRC != crc {
			return status.ErrCorrupt.WrapMessage("revision %d content checksum %08x, header says %08x", rev, crc, h.CRC)
		}
		next = e.Offset + e.Size
	}
	if next != int64(len(pack)) {
		return status.ErrCorrupt.WrapMessage("shard %d pack holds %d bytes, index covers %d", shard, len(pack), next)
	}
	return nil
}

// verifyPackedShardRevprops checks the revprop manifest of a packed
// shard and the structure of every pack file it names.
func (r *Repository) verifyPackedShardRevprops(ctx context.Context, f model.Format, shard int64) error {
	if !f.SupportsPackedRevprops() {
		return nil
	}
	first, last := revpropRange(f, shard)
	covered := int64(last-first) + 1
	if covered < 0 {
		covered = 0
	}

	names, err := r.revpropManifest(ctx, shard)
	if err != nil {
		return err
	}
	if int64(len(names)) != covered {
		return status.ErrCorrupt.WrapMessage("shard %d revprop manifest covers %d revisions, expected %d", shard, len(names), covered)
	}

	for i := 0; i < len(names); {
		name := names[i]
		run := 0
		for i+run < len(names) && names[i+run] == name {
			run++
		}
		pack, err := r.revpropPackBody(ctx, shard, name)
		if err != nil {
			return err
		}
		if pack.start != first+model.RevNum(i) {
			return status.ErrCorrupt.WrapMessage("revprop pack %q starts at %d, manifest says %d", name, pack.start, first+model.RevNum(i))
		}
		if len(pack.blobs) != run {
			return status.ErrCorrupt.WrapMessage("revprop pack %q holds %d blobs, manifest names it for %d revisions", name, len(pack.blobs), run)
		}
		i += run
	}
	return nil
}
