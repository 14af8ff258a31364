package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/model"
	"github.com/packline/revstore/pkg/storage"
)

// Upgrade brings the repository at path to the current format. See
// (*Repository).Upgrade.
func Upgrade(ctx context.Context, path string, opts ...Option) error {
	r, err := Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()
	return r.Upgrade(ctx, opts...)
}

// Upgrade rewrites the format file to the current format number and,
// for sharded repositories, switches future revisions to logical
// addressing. The switch point is the next shard boundary strictly
// above the youngest revision, so no shard ever mixes addressing
// modes and nothing already on disk moves.
//
// Transactions opened before the upgrade are unaffected: the
// addressing mode of a revision is decided when its commit sequences
// it, not when its transaction was opened.
//
// Linear repositories only get the format number bump; they stay
// physically addressed. Upgrading an already current repository is a
// no-op.
func (r *Repository) Upgrade(ctx context.Context, opts ...Option) error {
	s := r.settingsWith(opts)

	f, err := r.refreshFormat(ctx)
	if err != nil {
		return err
	}
	if f.Number == model.CurrentFormat && (f.Logical || f.Linear) {
		return nil
	}

	nf := f
	nf.Number = model.CurrentFormat
	if !f.Linear && !f.Logical {
		youngest, err := r.readCurrent(ctx)
		if err != nil {
			return err
		}
		nf.Logical = true
		nf.LogicalStart = model.ShardStart(model.ShardID(youngest, f.ShardSize)+1, f.ShardSize)
	}

	if err := storage.PutBytes(ctx, r.store, model.FormatFile, nf.Serialize()); err != nil {
		return err
	}
	r.mu.Lock()
	r.format = nf
	r.mu.Unlock()

	s.logger.Info("upgraded",
		zap.String("repository", r.String()),
		zap.Int("from_format", f.Number),
		zap.Int("to_format", nf.Number),
		zap.Int64("logical_start", int64(nf.LogicalStart)),
	)
	return nil
}
