package core

import (
	"context"
	"strconv"

	"go.uber.org/multierr"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/fingerprint"
	"github.com/packline/revstore/pkg/model"
)

// repCache is the optional content index of a repository: a KV store
// mapping content digests to the first revision that carried the
// content. Commits feed it, recovery prunes it.
type repCache struct {
	kv kvStore
}

func openRepCache(dir string) (*repCache, error) {
	kv, err := openKV(dir)
	if err != nil {
		return nil, err
	}
	return &repCache{kv: kv}, nil
}

func (c *repCache) close() error {
	return c.kv.Close()
}

func (c *repCache) size() uint64 {
	return c.kv.Size()
}

var repCacheDigest = fingerprint.New()

func digestOf(content []byte) ([]byte, error) {
	return repCacheDigest.Bytes(content)
}

// remember records rev as a carrier of content. The oldest revision
// wins: a digest already present is left alone.
func (c *repCache) remember(content []byte, rev model.RevNum) error {
	key, err := digestOf(content)
	if err != nil {
		return err
	}
	return c.kv.SetIfNotExists(key, []byte(strconv.FormatInt(int64(rev), 10)))
}

// lookup returns the oldest known revision carrying content
func (c *repCache) lookup(content []byte) (model.RevNum, bool, error) {
	key, err := digestOf(content)
	if err != nil {
		return model.InvalidRev, false, err
	}
	ok, err := c.kv.Exists(key)
	if err != nil || !ok {
		return model.InvalidRev, false, err
	}
	v, err := c.kv.Get(key)
	if err != nil {
		return model.InvalidRev, false, err
	}
	rev, err := model.ParseRevNum(string(v))
	if err != nil {
		return model.InvalidRev, false, status.ErrCorrupt.WrapMessage("rep-cache value %q: %v", v, err)
	}
	return rev, true, nil
}

// pruneAbove drops every record pointing beyond rev. Recovery calls
// this after rewinding the youngest revision. Deletions are best
// effort: a failed one does not stop the sweep, failures come back
// combined.
func (c *repCache) pruneAbove(rev model.RevNum) error {
	it := c.kv.AllKeys()

	stale := make([][]byte, 0, 64)
	for it.Next() {
		k, v, err := it.Item()
		if err != nil {
			return multierr.Append(err, it.Close())
		}
		recorded, err := model.ParseRevNum(string(v))
		if err != nil {
			// unreadable records go too
			stale = append(stale, k)
			continue
		}
		if recorded > rev {
			stale = append(stale, k)
		}
	}
	errs := it.Close()
	for _, k := range stale {
		errs = multierr.Append(errs, c.kv.Delete(k))
	}
	return errs
}

// LookupContent returns the oldest revision whose content matches data
// byte for byte, consulting the content index only. Repositories opened
// without WithRepCache report ErrRepCacheDisabled.
func (r *Repository) LookupContent(ctx context.Context, data []byte) (model.RevNum, bool, error) {
	if r.repCache == nil {
		return model.InvalidRev, false, status.ErrRepCacheDisabled
	}
	rev, ok, err := r.repCache.lookup(data)
	if err != nil || !ok {
		return model.InvalidRev, false, err
	}
	// the index is a hint: confirm against the store
	content, err := r.GetRevision(ctx, rev)
	if err != nil {
		return model.InvalidRev, false, err
	}
	if len(content) != len(data) || contentCRC(content) != contentCRC(data) {
		return model.InvalidRev, false, nil
	}
	return rev, true, nil
}
