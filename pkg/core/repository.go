package core

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/cache"
	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
	"github.com/packline/revstore/pkg/storage"
	storagestatus "github.com/packline/revstore/pkg/storage/status"
)

// Repository is an open handle on a revision store.
//
// A handle is safe for concurrent use. Handles do not lock each other
// out: several of them, in one process or many, may read and commit
// against the same repository, with sequencing resolved through
// exclusive revision file creation.
type Repository struct {
	store  storage.Store
	osPath string
	uuid   string
	config Config

	l      *zap.Logger
	tracer opentracing.Tracer

	meta     *cache.Cache // stamped metadata cache, nil when disabled
	repCache *repCache    // content index, nil unless opened

	mu          sync.Mutex
	format      model.Format
	minUnpacked model.RevNum // watermark hint, InvalidRev until read
}

// Create initializes a repository at path and returns an open handle on
// it. The layout metadata is written first and revision 0 is committed
// with empty content; the current file goes last, marking the
// repository complete.
func Create(ctx context.Context, path string, opts ...RepoOption) (*Repository, error) {
	rs := defaultRepoSettings()
	for _, apply := range opts {
		apply(&rs)
	}
	if rs.formatNumber < model.MinSupportedFormat || rs.formatNumber > model.CurrentFormat {
		return nil, status.ErrUnsupportedFormat.WrapMessage("cannot create format %d", rs.formatNumber)
	}

	store, osPath, err := rs.backend(path)
	if err != nil {
		return nil, err
	}
	if ok, err := store.Has(ctx, model.FormatFile); err != nil {
		return nil, err
	} else if ok {
		return nil, status.ErrAlreadyExists.WrapMessage("%s", path)
	}

	f := model.Format{
		Number:    rs.formatNumber,
		Linear:    rs.linear,
		ShardSize: rs.shardSize,
		Logical:   rs.formatNumber >= model.MinLogicalFormat && !rs.physical,
	}
	if f.Linear {
		f.ShardSize = 0
		f.Logical = false
	}

	cfg := defaultConfig()
	rs.overrideConfig(&cfg)

	uuid := ksuid.New().String()
	for _, put := range []struct {
		key  string
		data []byte
	}{
		{model.FormatFile, f.Serialize()},
		{model.UUIDFile, []byte(uuid + "\n")},
		{model.TxnCurrentFile, []byte("0\n")},
		{model.MinUnpackedFile, []byte("0\n")},
	} {
		if err := store.Put(ctx, put.key, bytes.NewReader(put.data), storage.NoOverWrite); err != nil {
			return nil, err
		}
	}
	cfgData, err := cfg.serialize()
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, model.ConfigFile, bytes.NewReader(cfgData), storage.NoOverWrite); err != nil {
		return nil, err
	}

	r, err := newRepository(store, osPath, f, uuid, cfg, rs)
	if err != nil {
		return nil, err
	}

	// revision 0: empty content, dated properties
	item := buildItem(f, 0, nil)
	if err := storage.PutBytes(ctx, r.store, model.GetRevLoosePath(f, 0), item); err != nil {
		return nil, err
	}
	props, err := model.EncodeProperties(model.NewCommitProperties(""))
	if err != nil {
		return nil, err
	}
	if err := storage.PutBytes(ctx, r.store, model.GetRevpropLoosePath(f, 0), props); err != nil {
		return nil, err
	}
	if err := r.writeCurrent(ctx, 0); err != nil {
		return nil, err
	}

	r.l.Info("repository created",
		zap.String("path", r.String()),
		zap.Int("format", f.Number),
		zap.Int64("shard_size", f.ShardSize),
		zap.Bool("logical", f.Logical),
	)
	return r, nil
}

// Open opens an existing repository at path
func Open(ctx context.Context, path string, opts ...RepoOption) (*Repository, error) {
	r, err := openLenient(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	// a complete repository has a current file and an aligned watermark
	if _, err := r.readCurrent(ctx); err != nil {
		return nil, err
	}
	wm, err := r.refreshMinUnpacked(ctx)
	if err != nil {
		return nil, err
	}
	f := r.currentFormat()
	if !f.Linear && int64(wm)%f.ShardSize != 0 {
		return nil, status.ErrCorrupt.WrapMessage("watermark %d is not a multiple of the shard size %d", wm, f.ShardSize)
	}
	return r, nil
}

// openLenient opens a repository without requiring it to be complete
// or consistent. Recover builds on this.
func openLenient(ctx context.Context, path string, opts []RepoOption) (*Repository, error) {
	rs := defaultRepoSettings()
	for _, apply := range opts {
		apply(&rs)
	}
	store, osPath, err := rs.backend(path)
	if err != nil {
		return nil, err
	}

	data, err := storage.ReadAll(ctx, store, model.FormatFile)
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			return nil, status.ErrNotARepository.WrapMessage("%s", path)
		}
		return nil, err
	}
	f, err := model.ParseFormat(data)
	if err != nil {
		return nil, err
	}
	if f.Number > model.CurrentFormat {
		return nil, status.ErrUnsupportedFormat.WrapMessage("format %d is newer than %d", f.Number, model.CurrentFormat)
	}

	uuid := ""
	if raw, err := storage.ReadAll(ctx, store, model.UUIDFile); err == nil {
		uuid = strings.TrimSpace(string(raw))
	} else if !errors.Is(err, storagestatus.ErrNotExists) {
		return nil, err
	}

	cfg := defaultConfig()
	if raw, err := storage.ReadAll(ctx, store, model.ConfigFile); err == nil {
		if cfg, err = parseConfig(raw); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, storagestatus.ErrNotExists) {
		return nil, err
	}
	rs.overrideConfig(&cfg)

	return newRepository(store, osPath, f, uuid, cfg, rs)
}

// overrideConfig applies explicit options on top of configured values
func (rs repoSettings) overrideConfig(cfg *Config) {
	if rs.revpropPackSize > 0 {
		cfg.RevpropPackSize = rs.revpropPackSize
	}
	if rs.compress != nil {
		cfg.CompressRevprops = *rs.compress
	}
	if rs.cacheSize >= 0 {
		cfg.CacheSize = rs.cacheSize
	}
	if rs.cacheNamespace != "" {
		cfg.CacheNamespace = rs.cacheNamespace
	}
}

func newRepository(store storage.Store, osPath string, f model.Format, uuid string, cfg Config, rs repoSettings) (*Repository, error) {
	r := &Repository{
		store:       storage.Instrument(rs.tracer, rs.l, store),
		osPath:      osPath,
		uuid:        uuid,
		config:      cfg,
		l:           rs.l,
		tracer:      rs.tracer,
		format:      f,
		minUnpacked: model.InvalidRev,
	}
	if cfg.CacheSize > 0 {
		meta, err := cache.Shared(cfg.CacheNamespace, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		r.meta = meta
	}
	if rs.repCache {
		dir := rs.repCacheDir
		if dir == "" {
			if osPath == "" {
				return nil, storagestatus.ErrNotSupported.WrapMessage("rep-cache needs a directory when the repository is not OS-backed")
			}
			dir = filepath.Join(osPath, model.RepCacheDir)
		}
		rc, err := openRepCache(dir)
		if err != nil {
			return nil, err
		}
		r.repCache = rc
	}
	return r, nil
}

// Close releases resources held by the handle
func (r *Repository) Close() error {
	var errs error
	if r.meta != nil {
		r.meta.Purge()
	}
	if r.repCache != nil {
		errs = multierr.Append(errs, r.repCache.close())
	}
	return errs
}

// UUID returns the repository identity written at creation time
func (r *Repository) UUID() string {
	return r.uuid
}

func (r *Repository) String() string {
	if r.osPath != "" {
		return r.osPath
	}
	return r.store.String()
}

// Youngest returns the highest committed revision
func (r *Repository) Youngest(ctx context.Context) (model.RevNum, error) {
	return r.readCurrent(ctx)
}

// currentFormat returns the format loaded at open time or by the last
// refresh.
func (r *Repository) currentFormat() model.Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

// refreshFormat re-reads the format file. Operations sensitive to an
// upgrade happening underneath the handle call this first.
func (r *Repository) refreshFormat(ctx context.Context) (model.Format, error) {
	data, err := storage.ReadAll(ctx, r.store, model.FormatFile)
	if err != nil {
		return model.Format{}, err
	}
	f, err := model.ParseFormat(data)
	if err != nil {
		return model.Format{}, err
	}
	r.mu.Lock()
	r.format = f
	r.mu.Unlock()
	return f, nil
}

func (r *Repository) readCurrent(ctx context.Context) (model.RevNum, error) {
	return r.readRevFile(ctx, model.CurrentFile)
}

func (r *Repository) writeCurrent(ctx context.Context, rev model.RevNum) error {
	return storage.PutBytes(ctx, r.store, model.CurrentFile, []byte(fmt.Sprintf("%d\n", rev)))
}

func (r *Repository) readMinUnpacked(ctx context.Context) (model.RevNum, error) {
	return r.readRevFile(ctx, model.MinUnpackedFile)
}

// writeMinUnpacked atomically replaces the watermark. This is the
// commit point of a shard transition, so the in-handle hint moves with
// it.
func (r *Repository) writeMinUnpacked(ctx context.Context, rev model.RevNum) error {
	if err := storage.PutBytes(ctx, r.store, model.MinUnpackedFile, []byte(fmt.Sprintf("%d\n", rev))); err != nil {
		return err
	}
	r.mu.Lock()
	r.minUnpacked = rev
	r.mu.Unlock()
	return nil
}

// minUnpackedRev returns the watermark hint, reading it on first use
func (r *Repository) minUnpackedRev(ctx context.Context) (model.RevNum, error) {
	r.mu.Lock()
	wm := r.minUnpacked
	r.mu.Unlock()
	if wm.IsValid() {
		return wm, nil
	}
	return r.refreshMinUnpacked(ctx)
}

// refreshMinUnpacked drops the hint and reads the watermark from the
// store. Read paths call this when a loose file they expected has
// vanished, which is what a pack racing the read looks like.
func (r *Repository) refreshMinUnpacked(ctx context.Context) (model.RevNum, error) {
	wm, err := r.readMinUnpacked(ctx)
	if err != nil {
		return model.InvalidRev, err
	}
	r.mu.Lock()
	r.minUnpacked = wm
	r.mu.Unlock()
	return wm, nil
}

// readRevFile reads one of the single-number metadata files
func (r *Repository) readRevFile(ctx context.Context, key string) (model.RevNum, error) {
	data, err := storage.ReadAll(ctx, r.store, key)
	if err != nil {
		return model.InvalidRev, status.ErrCorrupt.WrapMessage("reading %s: %v", key, err)
	}
	rev, err := model.ParseRevNum(strings.TrimSpace(string(data)))
	if err != nil {
		return model.InvalidRev, status.ErrCorrupt.WrapMessage("parsing %s: %v", key, err)
	}
	return rev, nil
}

func (r *Repository) readTxnCurrent(ctx context.Context) (int64, error) {
	data, err := storage.ReadAll(ctx, r.store, model.TxnCurrentFile)
	if err != nil {
		return 0, status.ErrCorrupt.WrapMessage("reading %s: %v", model.TxnCurrentFile, err)
	}
	c, err := model.ParseDigits(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, status.ErrCorrupt.WrapMessage("parsing %s: %v", model.TxnCurrentFile, err)
	}
	return c, nil
}

func (r *Repository) writeTxnCurrent(ctx context.Context, c int64) error {
	return storage.PutBytes(ctx, r.store, model.TxnCurrentFile, []byte(fmt.Sprintf("%d\n", c)))
}

// stampOf returns the cache freshness token of a stored object
func (r *Repository) stampOf(ctx context.Context, key string) (cache.Stamp, error) {
	attr, err := r.store.Stat(ctx, key)
	if err != nil {
		return cache.Stamp{}, err
	}
	return cache.Stamp{Size: attr.Size, ModTime: attr.Updated}, nil
}

// cachedMeta reads and parses a metadata file through the stamped
// cache. A cached value is only served while the stamp of the backing
// file still matches, so rewrites through other handles turn into
// misses here.
func (r *Repository) cachedMeta(ctx context.Context, key string, parse func([]byte) (interface{}, error)) (interface{}, error) {
	if r.meta == nil {
		data, err := storage.ReadAll(ctx, r.store, key)
		if err != nil {
			return nil, err
		}
		return parse(data)
	}
	stamp, err := r.stampOf(ctx, key)
	if err != nil {
		return nil, err
	}
	if v, ok := r.meta.Get(key, stamp); ok {
		return v, nil
	}
	data, err := storage.ReadAll(ctx, r.store, key)
	if err != nil {
		return nil, err
	}
	v, err := parse(data)
	if err != nil {
		return nil, err
	}
	r.meta.Put(key, stamp, v)
	return v, nil
}
