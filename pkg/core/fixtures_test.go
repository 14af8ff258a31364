package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/packline/revstore/pkg/model"
)

const testRepoPath = "repo"

// testRepo creates a fresh repository on a private memory backend
func testRepo(t *testing.T, shardSize int64, opts ...RepoOption) (*Repository, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	r, err := Create(context.Background(), testRepoPath,
		append([]RepoOption{Backend(fs), ShardSize(shardSize)}, opts...)...)
	require.NoError(t, err)
	return r, fs
}

// revisionPayload returns deterministic content of varying size for a
// revision, so read-back checks can recompute the expectation.
func revisionPayload(rev model.RevNum) []byte {
	seed := ((int64(rev)*1234353+4358)*4583 + (int64(rev)%4)<<1) / 42
	size := int(seed%271) + 1
	b := make([]byte, size)
	for i := range b {
		b[i] = byte('a' + (seed+int64(i))%26)
	}
	return b
}

// commitRevisions commits n revisions carrying revisionPayload content
// and a log property.
func commitRevisions(t *testing.T, r *Repository, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		youngest, err := r.Youngest(ctx)
		require.NoError(t, err)
		target := youngest + 1

		txn, err := r.Begin(ctx, model.InvalidRev)
		require.NoError(t, err)
		require.NoError(t, txn.SetContent(ctx, revisionPayload(target)))
		require.NoError(t, txn.SetProperty(ctx, model.PropLog, fmt.Sprintf("change %d", target)))
		rev, err := txn.Commit(ctx)
		require.NoError(t, err)
		require.Equal(t, target, rev)
	}
}

// requireReadBack checks every revision in [0, youngest] serves its
// exact payload bytes under both read strengths.
func requireReadBack(t *testing.T, r *Repository, youngest model.RevNum) {
	t.Helper()
	ctx := context.Background()
	for rev := model.RevNum(0); rev <= youngest; rev++ {
		want := revisionPayload(rev)
		if rev == 0 {
			want = []byte{}
		}
		got, err := r.GetRevision(ctx, rev)
		require.NoError(t, err, "revision %d", rev)
		require.Equal(t, string(want), string(got), "revision %d", rev)

		got, err = r.GetRevision(ctx, rev, Check(CheckIndexed))
		require.NoError(t, err, "revision %d (indexed)", rev)
		require.Equal(t, string(want), string(got), "revision %d (indexed)", rev)
	}
}
