package core

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
)

func commitWithLog(t *testing.T, r *Repository, logValue string) model.RevNum {
	t.Helper()
	ctx := context.Background()
	youngest, err := r.Youngest(ctx)
	require.NoError(t, err)
	txn, err := r.Begin(ctx, model.InvalidRev)
	require.NoError(t, err)
	require.NoError(t, txn.SetContent(ctx, revisionPayload(youngest+1)))
	require.NoError(t, txn.SetProperty(ctx, model.PropLog, logValue))
	rev, err := txn.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, youngest+1, rev)
	return rev
}

func TestRevpropPacksShareAndSplit(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 5)
	defer func() { _ = r.Close() }()

	// 15000 bytes of properties per revision: four blobs share a pack
	// under the 64KiB limit, the fifth starts a new one
	bigLog := strings.Repeat("m", 15000)
	for i := 0; i < 9; i++ {
		commitWithLog(t, r, bigLog)
	}
	require.NoError(t, r.Pack(ctx))

	data, err := afero.ReadFile(fs, testRepoPath+"/"+model.GetRevpropManifestPath(0))
	require.NoError(t, err)
	assert.Equal(t, "1.0\n1.0\n1.0\n1.0\n", string(data))
	data, err = afero.ReadFile(fs, testRepoPath+"/"+model.GetRevpropManifestPath(1))
	require.NoError(t, err)
	assert.Equal(t, "5.0\n5.0\n5.0\n5.0\n9.0\n", string(data))
	for _, pth := range []string{
		model.GetRevpropPackFilePath(0, "1.0"),
		model.GetRevpropPackFilePath(1, "5.0"),
		model.GetRevpropPackFilePath(1, "9.0"),
	} {
		ok, err := afero.Exists(fs, testRepoPath+"/"+pth)
		require.NoError(t, err)
		assert.True(t, ok, pth)
	}

	for _, rev := range []model.RevNum{1, 3, 5, 8, 9} {
		v, found, err := r.GetRevisionProperty(ctx, rev, model.PropLog)
		require.NoError(t, err, "revision %d", rev)
		require.True(t, found, "revision %d", rev)
		assert.Equal(t, bigLog, v, "revision %d", rev)
	}
	require.NoError(t, r.Verify(ctx, model.InvalidRev, model.InvalidRev))
}

func TestRevpropPackIsolatesOversized(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 4)
	defer func() { _ = r.Close() }()

	// each blob alone exceeds the limit: every revision gets its own pack
	huge := strings.Repeat("w", 90000)
	for i := 0; i < 7; i++ {
		commitWithLog(t, r, huge)
	}
	require.NoError(t, r.Pack(ctx))

	data, err := afero.ReadFile(fs, testRepoPath+"/"+model.GetRevpropManifestPath(0))
	require.NoError(t, err)
	assert.Equal(t, "1.0\n2.0\n3.0\n", string(data))

	v, found, err := r.GetRevisionProperty(ctx, 2, model.PropLog)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, huge, v)
	require.NoError(t, r.Verify(ctx, model.InvalidRev, model.InvalidRev))
}

func TestRevpropSetOnPackedRevision(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 4)
	defer func() { _ = r.Close() }()

	commitRevisions(t, r, 7)
	require.NoError(t, r.Pack(ctx))

	// revision 5 lives in the shard 1 pack: the rewrite bumps the
	// generation and leaves its neighbors alone
	require.NoError(t, r.SetRevisionProperty(ctx, 5, model.PropLog, "rewritten"))
	ok, err := afero.Exists(fs, testRepoPath+"/"+model.GetRevpropPackFilePath(1, "4.1"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = afero.Exists(fs, testRepoPath+"/"+model.GetRevpropPackFilePath(1, "4.0"))
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := r.GetRevisionProperty(ctx, 5, model.PropLog)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rewritten", v)
	v, found, err = r.GetRevisionProperty(ctx, 4, model.PropLog)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "change 4", v)

	// revision 0 never packs: its rewrite stays loose
	require.NoError(t, r.SetRevisionProperty(ctx, 0, model.PropLog, "the beginning"))
	ok, err = afero.Exists(fs, testRepoPath+"/revprops/0/0")
	require.NoError(t, err)
	assert.True(t, ok)
	v, found, err = r.GetRevisionProperty(ctx, 0, model.PropLog)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "the beginning", v)

	// full replacement drops properties not in the new set
	require.NoError(t, r.SetRevisionProperties(ctx, 6, model.Properties{"only": "this"}))
	props, err := r.GetRevisionProperties(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, model.Properties{"only": "this"}, props)

	require.NoError(t, r.Verify(ctx, model.InvalidRev, model.InvalidRev))
}

func TestRevpropRewriteResplitsPack(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 4)
	defer func() { _ = r.Close() }()

	commitRevisions(t, r, 7)
	require.NoError(t, r.Pack(ctx))

	data, err := afero.ReadFile(fs, testRepoPath+"/"+model.GetRevpropManifestPath(0))
	require.NoError(t, err)
	assert.Equal(t, "1.0\n1.0\n1.0\n", string(data))

	// growing revision 2 past the limit splits the shared pack
	huge := strings.Repeat("w", 90000)
	require.NoError(t, r.SetRevisionProperty(ctx, 2, model.PropLog, huge))

	data, err = afero.ReadFile(fs, testRepoPath+"/"+model.GetRevpropManifestPath(0))
	require.NoError(t, err)
	assert.Equal(t, "1.1\n2.1\n3.1\n", string(data))
	ok, err := afero.Exists(fs, testRepoPath+"/"+model.GetRevpropPackFilePath(0, "1.0"))
	require.NoError(t, err)
	assert.False(t, ok)

	for rev, want := range map[model.RevNum]string{1: "change 1", 2: huge, 3: "change 3"} {
		v, found, err := r.GetRevisionProperty(ctx, rev, model.PropLog)
		require.NoError(t, err, "revision %d", rev)
		require.True(t, found, "revision %d", rev)
		assert.Equal(t, want, v, "revision %d", rev)
	}
	require.NoError(t, r.Verify(ctx, model.InvalidRev, model.InvalidRev))
}

func TestRevpropCompression(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	r, err := Create(ctx, testRepoPath, Backend(fs), ShardSize(4), Compression(true))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	commitRevisions(t, r, 7)
	require.NoError(t, r.Pack(ctx))

	raw, err := afero.ReadFile(fs, testRepoPath+"/"+model.GetRevpropPackFilePath(0, "1.0"))
	require.NoError(t, err)
	assert.True(t, isCompressedBlob(raw))

	v, found, err := r.GetRevisionProperty(ctx, 2, model.PropLog)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "change 2", v)

	// rewrites keep the body compressed
	require.NoError(t, r.SetRevisionProperty(ctx, 2, model.PropLog, "still compressed"))
	raw, err = afero.ReadFile(fs, testRepoPath+"/"+model.GetRevpropPackFilePath(0, "1.1"))
	require.NoError(t, err)
	assert.True(t, isCompressedBlob(raw))
	v, found, err = r.GetRevisionProperty(ctx, 2, model.PropLog)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "still compressed", v)

	require.NoError(t, r.Verify(ctx, model.InvalidRev, model.InvalidRev))
}

func TestPlanRevpropPacks(t *testing.T) {
	blob := func(n int) []byte { return make([]byte, n) }

	t.Run("empty range", func(t *testing.T) {
		assert.Empty(t, planRevpropPacks(1, nil, 25))
	})

	t.Run("boundary before overflowing blob", func(t *testing.T) {
		packs := planRevpropPacks(1, [][]byte{blob(10), blob(10), blob(10)}, 25)
		require.Len(t, packs, 2)
		assert.Equal(t, model.RevNum(1), packs[0].start)
		assert.Len(t, packs[0].blobs, 2)
		assert.Equal(t, model.RevNum(3), packs[1].start)
		assert.Len(t, packs[1].blobs, 1)
	})

	t.Run("exact fit stays together", func(t *testing.T) {
		packs := planRevpropPacks(4, [][]byte{blob(10), blob(15)}, 25)
		require.Len(t, packs, 1)
		assert.Len(t, packs[0].blobs, 2)
	})

	t.Run("oversized blobs are isolated", func(t *testing.T) {
		packs := planRevpropPacks(7, [][]byte{blob(5), blob(30), blob(5)}, 25)
		require.Len(t, packs, 3)
		assert.Equal(t, model.RevNum(7), packs[0].start)
		assert.Equal(t, model.RevNum(8), packs[1].start)
		assert.Equal(t, model.RevNum(9), packs[2].start)
	})
}

func TestRevpropPackCodec(t *testing.T) {
	orig := &revpropPack{
		start: 12,
		blobs: [][]byte{[]byte("first"), {}, []byte("third blob")},
	}

	for _, compress := range []bool{false, true} {
		got, err := parseRevpropPack(orig.serialize(compress))
		require.NoError(t, err, "compress=%v", compress)
		assert.Equal(t, orig.start, got.start, "compress=%v", compress)
		require.Len(t, got.blobs, 3, "compress=%v", compress)
		assert.Equal(t, "first", string(got.blobs[0]))
		assert.Empty(t, got.blobs[1])
		assert.Equal(t, "third blob", string(got.blobs[2]))
	}

	for name, data := range map[string]string{
		"no separator":     "revprop-pack 1 0",
		"bad tag":          "propkcap 1 1\n3\n\nabc",
		"count mismatch":   "revprop-pack 1 2\n3\n\nabc",
		"truncated blob":   "revprop-pack 1 1\n10\n\nabc",
		"trailing bytes":   "revprop-pack 1 1\n3\n\nabcdef",
		"negative start":   "revprop-pack -1 1\n3\n\nabc",
		"non-digit length": "revprop-pack 1 1\nxyz\n\nabc",
	} {
		_, err := parseRevpropPack([]byte(data))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, status.ErrCorrupt), name)
	}
}
