package core

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
	"github.com/packline/revstore/pkg/storage"
	storagestatus "github.com/packline/revstore/pkg/storage/status"
)

const (
	// sequencing retries before a commit gives up on the youngest race
	commitRetries = 32

	// retries for the transaction counter race in Begin
	beginRetries = 32

	sequenceBackOff = 5 * time.Millisecond
)

// Txn is an open transaction: content and properties staged under a
// unique id, turned into a revision by Commit. The addressing mode of
// the final revision is not fixed before Commit runs.
type Txn struct {
	r  *Repository
	id model.TxnID

	mu   sync.Mutex
	done bool
}

// Begin opens a transaction based on revision base. InvalidRev bases
// the transaction on the youngest revision.
func (r *Repository) Begin(ctx context.Context, base model.RevNum) (*Txn, error) {
	youngest, err := r.readCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if !base.IsValid() {
		base = youngest
	}
	if base > youngest {
		return nil, status.ErrNotFound.WrapMessage("base revision %d beyond youngest %d", base, youngest)
	}

	seed, err := model.EncodeProperties(model.Properties{})
	if err != nil {
		return nil, err
	}

	// reserve an id: the exclusive creation of the staged property file
	// arbitrates the counter race
	var id model.TxnID
	op := func() error {
		c, err := r.readTxnCurrent(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		id = model.TxnID{Base: base, Counter: c}
		err = r.store.Put(ctx, model.GetTxnPropsPath(id), bytes.NewReader(seed), storage.NoOverWrite)
		if err != nil {
			if errors.Is(err, storagestatus.ErrExists) {
				_ = r.writeTxnCurrent(ctx, c+1)
				return err
			}
			return backoff.Permanent(err)
		}
		return backoff.Permanent(r.writeTxnCurrent(ctx, c+1))
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(sequenceBackOff), beginRetries)); err != nil {
		if errors.Is(err, storagestatus.ErrExists) {
			return nil, status.ErrCommitContention.Wrap(err)
		}
		return nil, err
	}

	r.l.Debug("transaction opened", zap.Stringer("txn", id))
	return &Txn{r: r, id: id}, nil
}

// OpenTxn returns a handle on an existing transaction from its external
// identifier.
func (r *Repository) OpenTxn(ctx context.Context, id string) (*Txn, error) {
	tid, err := model.ParseTxnID(id)
	if err != nil {
		return nil, err
	}
	ok, err := r.store.Has(ctx, model.GetTxnPropsPath(tid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("transaction %s", id)
	}
	return &Txn{r: r, id: tid}, nil
}

// ID returns the transaction identifier
func (t *Txn) ID() model.TxnID {
	return t.id
}

// SetContent stages the full content of the future revision
func (t *Txn) SetContent(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return status.ErrTxnDone
	}
	return storage.PutBytes(ctx, t.r.store, model.GetTxnContentPath(t.id), data)
}

// SetProperty stages one property of the future revision
func (t *Txn) SetProperty(ctx context.Context, name, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return status.ErrTxnDone
	}
	props, err := t.stagedProps(ctx)
	if err != nil {
		return err
	}
	props[name] = value
	data, err := model.EncodeProperties(props)
	if err != nil {
		return err
	}
	return storage.PutBytes(ctx, t.r.store, model.GetTxnPropsPath(t.id), data)
}

func (t *Txn) stagedProps(ctx context.Context) (model.Properties, error) {
	data, err := storage.ReadAll(ctx, t.r.store, model.GetTxnPropsPath(t.id))
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			return nil, status.ErrTxnDone.WrapMessage("transaction %s", t.id)
		}
		return nil, err
	}
	return model.DecodeProperties(data)
}

func (t *Txn) stagedContent(ctx context.Context) ([]byte, error) {
	data, err := storage.ReadAll(ctx, t.r.store, model.GetTxnContentPath(t.id))
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Commit turns the transaction into the next revision and returns its
// number.
//
// The revision number is not reserved before this point: the commit
// races for youngest+1 through exclusive creation of the revision file
// and moves on to the next candidate when it loses. The format is
// re-read here, so a transaction opened before an addressing upgrade
// commits under the mode in force for the revision it finally lands on.
func (t *Txn) Commit(ctx context.Context, opts ...Option) (model.RevNum, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return model.InvalidRev, status.ErrTxnDone
	}
	r := t.r
	s := r.settingsWith(opts)

	f, err := r.refreshFormat(ctx)
	if err != nil {
		return model.InvalidRev, err
	}
	content, err := t.stagedContent(ctx)
	if err != nil {
		return model.InvalidRev, err
	}
	props, err := t.stagedProps(ctx)
	if err != nil {
		return model.InvalidRev, err
	}
	if _, ok := props[model.PropDate]; !ok {
		props[model.PropDate] = model.NewCommitProperties("")[model.PropDate]
	}
	propData, err := model.EncodeProperties(props)
	if err != nil {
		return model.InvalidRev, err
	}

	var target model.RevNum
	op := func() error {
		youngest, err := r.readCurrent(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		target = youngest + 1
		item := buildItem(f, target, content)
		err = r.store.Put(ctx, model.GetRevLoosePath(f, target), bytes.NewReader(item), storage.NoOverWrite)
		if err != nil {
			if errors.Is(err, storagestatus.ErrExists) {
				return err // lost the race, try the next number
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(sequenceBackOff), commitRetries)); err != nil {
		if errors.Is(err, storagestatus.ErrExists) {
			return model.InvalidRev, status.ErrCommitContention.Wrap(err)
		}
		return model.InvalidRev, err
	}

	if err := storage.PutBytes(ctx, r.store, model.GetRevpropLoosePath(f, target), propData); err != nil {
		return model.InvalidRev, err
	}
	if r.repCache != nil {
		if err := r.repCache.remember(content, target); err != nil {
			return model.InvalidRev, err
		}
	}

	// advance youngest, never backwards: a slower racer must not undo a
	// faster one
	r.mu.Lock()
	cur, err := r.readCurrent(ctx)
	if err == nil && target > cur {
		err = r.writeCurrent(ctx, target)
	}
	r.mu.Unlock()
	if err != nil {
		return model.InvalidRev, err
	}

	_ = r.store.DeletePrefix(ctx, model.GetTxnDir(t.id))
	t.done = true

	s.logger.Info("committed revision",
		zap.Int64("revision", int64(target)),
		zap.Stringer("txn", t.id),
		zap.Int("content_bytes", len(content)),
	)
	return target, nil
}

// Abort discards the transaction and its staged data
func (t *Txn) Abort(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return status.ErrTxnDone
	}
	t.done = true
	return t.r.store.DeletePrefix(ctx, model.GetTxnDir(t.id))
}

// buildItem renders the loose revision file for content, under the
// addressing mode the format assigns to rev.
func buildItem(f model.Format, rev model.RevNum, content []byte) []byte {
	var h model.ItemHeader
	if f.UsesLogical(rev) {
		h = model.ItemHeader{Logical: true, ItemID: int64(rev), CRC: contentCRC(content)}
	} else {
		h = model.ItemHeader{Size: int64(len(content))}
	}
	return append(h.Serialize(), content...)
}
