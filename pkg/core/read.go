package core

import (
	"context"
	"io"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
	"github.com/packline/revstore/pkg/storage"
	storagestatus "github.com/packline/revstore/pkg/storage/status"
)

// GetRevision returns the content bytes of a revision.
//
// The default read trusts structure only. Check(CheckIndexed)
// additionally re-verifies the recorded content checksum wherever one
// exists; physically addressed loose revisions predate checksums and
// have nothing to verify against.
func (r *Repository) GetRevision(ctx context.Context, rev model.RevNum, opts ...Option) ([]byte, error) {
	s := r.settingsWith(opts)
	if err := r.boundsCheck(ctx, rev); err != nil {
		return nil, err
	}
	_, content, err := r.readItem(ctx, rev, s.check)
	return content, err
}

func (r *Repository) boundsCheck(ctx context.Context, rev model.RevNum) error {
	if !rev.IsValid() {
		return status.ErrNotFound.WrapMessage("invalid revision %d", rev)
	}
	youngest, err := r.readCurrent(ctx)
	if err != nil {
		return err
	}
	if rev > youngest {
		return status.ErrNotFound.WrapMessage("revision %d, youngest is %d", rev, youngest)
	}
	return nil
}

// readItem fetches a revision item, loose or packed. The watermark
// hint decides which side to try first; a vanished loose file means a
// pack swept the shard since the hint was taken, so the hint is
// refreshed and the packed side consulted.
func (r *Repository) readItem(ctx context.Context, rev model.RevNum, check CheckLevel) (model.ItemHeader, []byte, error) {
	f := r.currentFormat()
	wm, err := r.minUnpackedRev(ctx)
	if err != nil {
		return model.ItemHeader{}, nil, err
	}
	if rev >= wm || f.Linear {
		h, content, err := r.readLooseItem(ctx, f, rev, check)
		if err == nil || !errors.Is(err, storagestatus.ErrNotExists) {
			return h, content, err
		}
		if f.Linear {
			return model.ItemHeader{}, nil, status.ErrCorrupt.WrapMessage("revision %d missing", rev)
		}
		if wm, err = r.refreshMinUnpacked(ctx); err != nil {
			return model.ItemHeader{}, nil, err
		}
		if rev >= wm {
			return model.ItemHeader{}, nil, status.ErrCorrupt.WrapMessage("revision %d missing", rev)
		}
	}
	return r.readPackedItem(ctx, f, rev, check)
}

func (r *Repository) readLooseItem(ctx context.Context, f model.Format, rev model.RevNum, check CheckLevel) (model.ItemHeader, []byte, error) {
	raw, err := storage.ReadAll(ctx, r.store, model.GetRevLoosePath(f, rev))
	if err != nil {
		return model.ItemHeader{}, nil, err
	}
	h, content, err := model.SplitItem(raw)
	if err != nil {
		return model.ItemHeader{}, nil, status.ErrCorrupt.Wrap(err)
	}
	if err := itemStructuralCheck(h, content, rev); err != nil {
		return model.ItemHeader{}, nil, err
	}
	if check >= CheckIndexed && h.Logical {
		if crc := contentCRC(content); crc != h.CRC {
			return model.ItemHeader{}, nil, status.ErrCorrupt.WrapMessage("revision %d content checksum %08x, header says %08x", rev, crc, h.CRC)
		}
	}
	return h, content, nil
}

func (r *Repository) readPackedItem(ctx context.Context, f model.Format, rev model.RevNum, check CheckLevel) (model.ItemHeader, []byte, error) {
	shard := f.ShardOf(rev)
	off, size, err := r.locatePackedItem(ctx, f, shard, rev)
	if err != nil {
		return model.ItemHeader{}, nil, err
	}
	raw, err := r.readPackRange(ctx, model.GetRevPackFilePath(shard), off, size)
	if err != nil {
		return model.ItemHeader{}, nil, r.packedArtifactError(shard, err)
	}
	h, content, err := model.SplitItem(raw)
	if err != nil {
		return model.ItemHeader{}, nil, status.ErrCorrupt.Wrap(err)
	}
	if err := itemStructuralCheck(h, content, rev); err != nil {
		return model.ItemHeader{}, nil, err
	}
	if check >= CheckIndexed {
		entries, err := r.p2lIndex(ctx, shard)
		if err != nil {
			return model.ItemHeader{}, nil, err
		}
		e, ok := findP2L(entries, off)
		if !ok {
			return model.ItemHeader{}, nil, status.ErrCorrupt.WrapMessage("shard %d has no index entry at offset %d", shard, off)
		}
		if e.Size != int64(len(raw)) {
			return model.ItemHeader{}, nil, status.ErrCorrupt.WrapMessage("revision %d spans %d bytes, index says %d", rev, len(raw), e.Size)
		}
		crc := contentCRC(content)
		if crc != e.CRC {
			return model.ItemHeader{}, nil, status.ErrCorrupt.WrapMessage("revision %d content checksum %08x, index says %08x", rev, crc, e.CRC)
		}
		if h.Logical && crc != h.CRC {
			return model.ItemHeader{}, nil, status.ErrCorrupt.WrapMessage("revision %d content checksum %08x, header says %08x", rev, crc, h.CRC)
		}
	}
	return h, content, nil
}

// locatePackedItem resolves the byte range of a revision inside its
// pack file: through the logical index when the revision is logically
// addressed, through the offset manifest otherwise.
func (r *Repository) locatePackedItem(ctx context.Context, f model.Format, shard int64, rev model.RevNum) (int64, int64, error) {
	if f.UsesLogical(rev) {
		entries, err := r.l2pIndex(ctx, shard)
		if err != nil {
			return 0, 0, err
		}
		e, ok := findL2P(entries, int64(rev))
		if !ok {
			return 0, 0, status.ErrCorrupt.WrapMessage("shard %d logical index has no item %d", shard, rev)
		}
		return e.Offset, e.Size, nil
	}

	offsets, err := r.packManifest(ctx, shard)
	if err != nil {
		return 0, 0, err
	}
	idx := int(int64(rev) - int64(model.ShardStart(shard, f.ShardSize)))
	if idx < 0 || idx >= len(offsets) {
		return 0, 0, status.ErrCorrupt.WrapMessage("shard %d manifest has no entry for revision %d", shard, rev)
	}
	off := offsets[idx]
	var end int64
	if idx+1 < len(offsets) {
		end = offsets[idx+1]
	} else {
		attr, err := r.store.Stat(ctx, model.GetRevPackFilePath(shard))
		if err != nil {
			return 0, 0, r.packedArtifactError(shard, err)
		}
		end = attr.Size
	}
	if end < off {
		return 0, 0, status.ErrCorrupt.WrapMessage("shard %d manifest offset %d beyond pack end %d", shard, off, end)
	}
	return off, end - off, nil
}

// readPackRange slices one item out of a pack file
func (r *Repository) readPackRange(ctx context.Context, key string, off, size int64) ([]byte, error) {
	ra, err := r.store.GetAt(ctx, key)
	if err != nil {
		return nil, err
	}
	if c, ok := ra.(io.Closer); ok {
		defer c.Close()
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(ra, off, size), buf); err != nil {
		return nil, status.ErrCorrupt.WrapMessage("reading %s at %d+%d: %v", key, off, size, err)
	}
	return buf, nil
}

// itemStructuralCheck validates what an item header states about its
// content without touching checksums.
func itemStructuralCheck(h model.ItemHeader, content []byte, rev model.RevNum) error {
	if h.Logical {
		if h.ItemID != int64(rev) {
			return status.ErrCorrupt.WrapMessage("item id %d under revision %d", h.ItemID, rev)
		}
		return nil
	}
	if h.Size != int64(len(content)) {
		return status.ErrCorrupt.WrapMessage("revision %d holds %d content bytes, header says %d", rev, len(content), h.Size)
	}
	return nil
}

// Cached accessors for packed shard metadata. A missing artifact below
// the watermark is corruption, not absence.

func (r *Repository) packManifest(ctx context.Context, shard int64) ([]int64, error) {
	v, err := r.cachedMeta(ctx, model.GetRevPackManifestPath(shard), func(data []byte) (interface{}, error) {
		return parseManifest(data)
	})
	if err != nil {
		return nil, r.packedArtifactError(shard, err)
	}
	return v.([]int64), nil
}

func (r *Repository) l2pIndex(ctx context.Context, shard int64) ([]l2pEntry, error) {
	v, err := r.cachedMeta(ctx, model.GetL2PIndexPath(shard), func(data []byte) (interface{}, error) {
		return parseL2P(data)
	})
	if err != nil {
		return nil, r.packedArtifactError(shard, err)
	}
	return v.([]l2pEntry), nil
}

func (r *Repository) p2lIndex(ctx context.Context, shard int64) ([]p2lEntry, error) {
	v, err := r.cachedMeta(ctx, model.GetP2LIndexPath(shard), func(data []byte) (interface{}, error) {
		return parseP2L(data)
	})
	if err != nil {
		return nil, r.packedArtifactError(shard, err)
	}
	return v.([]p2lEntry), nil
}

func (r *Repository) packedArtifactError(shard int64, err error) error {
	if errors.Is(err, storagestatus.ErrNotExists) {
		return status.ErrCorrupt.WrapMessage("shard %d is below the watermark but misses pack artifacts: %v", shard, err)
	}
	return err
}
