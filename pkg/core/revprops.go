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

// GetRevisionProperties returns all properties of a revision
func (r *Repository) GetRevisionProperties(ctx context.Context, rev model.RevNum) (model.Properties, error) {
	if err := r.boundsCheck(ctx, rev); err != nil {
		return nil, err
	}
	data, err := r.readRevpropBlob(ctx, rev)
	if err != nil {
		return nil, err
	}
	return model.DecodeProperties(data)
}

// GetRevisionProperty returns one property of a revision and whether it
// is set at all.
func (r *Repository) GetRevisionProperty(ctx context.Context, rev model.RevNum, name string) (string, bool, error) {
	props, err := r.GetRevisionProperties(ctx, rev)
	if err != nil {
		return "", false, err
	}
	v, ok := props[name]
	return v, ok, nil
}

// SetRevisionProperty rewrites one property of a committed revision.
// Unlike content, properties are mutable after commit.
func (r *Repository) SetRevisionProperty(ctx context.Context, rev model.RevNum, name, value string) error {
	if err := r.boundsCheck(ctx, rev); err != nil {
		return err
	}
	data, err := r.readRevpropBlob(ctx, rev)
	if err != nil {
		return err
	}
	props, err := model.DecodeProperties(data)
	if err != nil {
		return err
	}
	props[name] = value
	r.l.Debug("set revision property", zap.Int64("revision", int64(rev)), zap.String("name", name))
	return r.setRevisionProperties(ctx, rev, props)
}

// SetRevisionProperties replaces the whole property set of a revision
func (r *Repository) SetRevisionProperties(ctx context.Context, rev model.RevNum, props model.Properties) error {
	if err := r.boundsCheck(ctx, rev); err != nil {
		return err
	}
	return r.setRevisionProperties(ctx, rev, props)
}

func (r *Repository) setRevisionProperties(ctx context.Context, rev model.RevNum, props model.Properties) error {
	data, err := model.EncodeProperties(props)
	if err != nil {
		return err
	}
	f := r.currentFormat()
	// a write must not land on the loose side of a shard a pack just
	// swept, so the hint is not good enough here
	if _, err := r.refreshMinUnpacked(ctx); err != nil {
		return err
	}
	packed, err := r.revpropIsPacked(ctx, f, rev)
	if err != nil {
		return err
	}
	if !packed {
		return storage.PutBytes(ctx, r.store, model.GetRevpropLoosePath(f, rev), data)
	}
	return r.setPackedRevprop(ctx, f, rev, data)
}

// revpropIsPacked reports whether the properties of rev live in a
// revprop pack. Revision 0's properties never pack.
func (r *Repository) revpropIsPacked(ctx context.Context, f model.Format, rev model.RevNum) (bool, error) {
	if rev == 0 || f.Linear || !f.SupportsPackedRevprops() {
		return false, nil
	}
	wm, err := r.minUnpackedRev(ctx)
	if err != nil {
		return false, err
	}
	return rev < wm, nil
}

func (r *Repository) readRevpropBlob(ctx context.Context, rev model.RevNum) ([]byte, error) {
	f := r.currentFormat()
	packed, err := r.revpropIsPacked(ctx, f, rev)
	if err != nil {
		return nil, err
	}
	if !packed {
		data, err := r.looseRevpropBlob(ctx, f, rev)
		if err == nil || !errors.Is(err, storagestatus.ErrNotExists) {
			return data, err
		}
		// a pack may have swept the shard since the watermark hint was
		// taken
		if _, err := r.refreshMinUnpacked(ctx); err != nil {
			return nil, err
		}
		if packed, err = r.revpropIsPacked(ctx, f, rev); err != nil {
			return nil, err
		}
		if !packed {
			return nil, status.ErrCorrupt.WrapMessage("revision %d has no properties", rev)
		}
	}
	return r.readPackedRevprop(ctx, f, rev)
}

func (r *Repository) looseRevpropBlob(ctx context.Context, f model.Format, rev model.RevNum) ([]byte, error) {
	v, err := r.cachedMeta(ctx, model.GetRevpropLoosePath(f, rev), func(data []byte) (interface{}, error) {
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
