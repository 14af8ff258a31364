package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
	storagestatus "github.com/packline/revstore/pkg/storage/status"
)

func TestWatchMinUnpacked(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := filepath.Join(t.TempDir(), "repo")
	r, err := Create(ctx, dir, ShardSize(2))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	commitRevisions(t, r, 5)

	var mu sync.Mutex
	var seen []model.RevNum
	require.NoError(t, WatchMinUnpacked(ctx, dir, func(wm model.RevNum) {
		mu.Lock()
		seen = append(seen, wm)
		mu.Unlock()
	}))

	require.NoError(t, r.Pack(ctx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == model.RevNum(6)
	}, 3*time.Second, 25*time.Millisecond)
}

func TestWatchUpdatesHandle(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := filepath.Join(t.TempDir(), "repo")
	r1, err := Create(ctx, dir, ShardSize(2))
	require.NoError(t, err)
	defer func() { _ = r1.Close() }()
	commitRevisions(t, r1, 3)

	r2, err := Open(ctx, dir)
	require.NoError(t, err)
	defer func() { _ = r2.Close() }()
	require.NoError(t, r2.WatchMinUnpacked(ctx))

	require.NoError(t, r1.Pack(ctx))

	require.Eventually(t, func() bool {
		r2.mu.Lock()
		defer r2.mu.Unlock()
		return r2.minUnpacked == 4
	}, 3*time.Second, 25*time.Millisecond)
}

func TestWatchNeedsOSBackend(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	r, _ := testRepo(t, 4)
	defer func() { _ = r.Close() }()
	err := r.WatchMinUnpacked(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storagestatus.ErrNotSupported))
}
