package core

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/model"
)

// Recover rebuilds the sidecar metadata of the repository at path. It
// works on repositories too damaged for Open. See
// (*Repository).Recover.
func Recover(ctx context.Context, path string, opts ...RepoOption) error {
	r, err := openLenient(ctx, path, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()
	return r.Recover(ctx)
}

// Recover derives the watermark and the youngest revision from the
// revision files actually present and rewrites min-unpacked-rev and
// current accordingly. Revision data is never touched: only sidecar
// metadata is rewritten, and the content index drops records beyond
// the recovered youngest.
//
// The packed shards must form a contiguous run starting at shard 0 and
// the youngest revision must still have its properties, loose or
// packed; anything else is reported as ErrCorrupt.
func (r *Repository) Recover(ctx context.Context, opts ...Option) error {
	s := r.settingsWith(opts)

	f, err := r.refreshFormat(ctx)
	if err != nil {
		return err
	}

	packed, loose, err := r.scanRevisions(ctx, f)
	if err != nil {
		return err
	}

	// packed shards are only usable as an unbroken run from shard 0
	maxPacked := int64(-1)
	for len(packed) > 0 {
		if _, ok := packed[maxPacked+1]; !ok {
			break
		}
		delete(packed, maxPacked+1)
		maxPacked++
	}
	for shard := range packed {
		return status.ErrCorrupt.WrapMessage("packed shard %d found beyond the contiguous run ending at %d", shard, maxPacked)
	}

	wm := model.RevNum(0)
	if !f.Linear && f.ShardSize > 0 {
		wm = model.ShardStart(maxPacked+1, f.ShardSize)
	}

	// youngest: the last revision reachable without a gap
	youngest := wm - 1
	for {
		if _, ok := loose[youngest+1]; !ok {
			break
		}
		youngest++
	}
	if !youngest.IsValid() {
		return status.ErrCorrupt.WrapMessage("no revisions found")
	}

	r.mu.Lock()
	r.minUnpacked = wm
	r.mu.Unlock()
	if r.meta != nil {
		r.meta.Purge()
	}

	// a revision without properties cannot be served
	if _, err := r.readRevpropBlob(ctx, youngest); err != nil {
		return status.ErrCorrupt.WrapMessage("youngest revision %d has no readable properties: %v", youngest, err)
	}

	if err := r.writeMinUnpacked(ctx, wm); err != nil {
		return err
	}
	if err := r.writeCurrent(ctx, youngest); err != nil {
		return err
	}
	if r.repCache != nil {
		if err := r.repCache.pruneAbove(youngest); err != nil {
			return err
		}
	}

	s.logger.Info("recovered",
		zap.String("repository", r.String()),
		zap.Int64("youngest", int64(youngest)),
		zap.Int64("watermark", int64(wm)),
	)
	return nil
}

// scanRevisions lists the revs tree once and reports which shards are
// packed and which loose revisions exist. Stray files that do not
// look like revision artifacts are ignored.
func (r *Repository) scanRevisions(ctx context.Context, f model.Format) (map[int64]struct{}, map[model.RevNum]struct{}, error) {
	keys, err := r.store.KeysPrefix(ctx, model.RevsDir)
	if err != nil {
		return nil, nil, err
	}
	packed := map[int64]struct{}{}
	loose := map[model.RevNum]struct{}{}
	for _, key := range keys {
		parts := strings.Split(key, "/")
		if len(parts) != 3 || parts[0] != model.RevsDir {
			continue
		}
		if strings.HasSuffix(parts[1], model.PackDirSuffix) {
			if parts[2] != model.ManifestFileName {
				continue
			}
			shard, err := model.ParseDigits(strings.TrimSuffix(parts[1], model.PackDirSuffix))
			if err != nil {
				continue
			}
			packed[shard] = struct{}{}
			continue
		}
		rev, err := model.ParseRevNum(parts[2])
		if err != nil {
			continue
		}
		if f.Linear {
			continue
		}
		shard, err := model.ParseDigits(parts[1])
		if err != nil || shard != f.ShardOf(rev) {
			continue
		}
		loose[rev] = struct{}{}
	}

	if f.Linear {
		// linear layouts keep every revision directly under revs/
		for _, key := range keys {
			parts := strings.Split(key, "/")
			if len(parts) != 2 || parts[0] != model.RevsDir {
				continue
			}
			rev, err := model.ParseRevNum(parts[1])
			if err != nil {
				continue
			}
			loose[rev] = struct{}{}
		}
	}
	return packed, loose, nil
}
