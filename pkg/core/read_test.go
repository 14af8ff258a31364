package core

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
)

// flipLastByte corrupts the trailing byte of a stored file in place
func flipLastByte(t *testing.T, fs afero.Fs, pth string) {
	t.Helper()
	raw, err := afero.ReadFile(fs, pth)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, afero.WriteFile(fs, pth, raw, 0600))
}

func TestReadPackedCorruption(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 4)
	defer func() { _ = r.Close() }()

	commitRevisions(t, r, 7)
	require.NoError(t, r.Pack(ctx))

	// the last pack byte is revision 7 content
	flipLastByte(t, fs, testRepoPath+"/"+model.GetRevPackFilePath(1))

	// the structural read cannot tell: header and placement still agree
	got, err := r.GetRevision(ctx, 7)
	require.NoError(t, err)
	assert.NotEqual(t, revisionPayload(7), got)

	// the indexed read recomputes the checksum
	_, err = r.GetRevision(ctx, 7, Check(CheckIndexed))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))

	// verification finds it too, but an untouched range stays clean
	err = r.Verify(ctx, model.InvalidRev, model.InvalidRev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))
	require.NoError(t, r.Verify(ctx, 0, 3))
}

func TestReadLooseCorruption(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 4)
	defer func() { _ = r.Close() }()

	commitRevisions(t, r, 5)
	flipLastByte(t, fs, testRepoPath+"/revs/1/5")

	got, err := r.GetRevision(ctx, 5)
	require.NoError(t, err)
	assert.NotEqual(t, revisionPayload(5), got)
	_, err = r.GetRevision(ctx, 5, Check(CheckIndexed))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))

	// an item filed under the wrong revision fails structurally
	payload := revisionPayload(4)
	stray := model.ItemHeader{Logical: true, ItemID: 6, CRC: contentCRC(payload)}
	require.NoError(t, afero.WriteFile(fs, testRepoPath+"/revs/1/4",
		append(stray.Serialize(), payload...), 0600))
	_, err = r.GetRevision(ctx, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))
}

func TestReadPhysicalLooseLegacy(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	r, err := Create(ctx, testRepoPath, Backend(fs), ShardSize(4), Format(6))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	commitRevisions(t, r, 2)

	// physical loose items predate checksums: a same-size corruption
	// passes both levels
	flipLastByte(t, fs, testRepoPath+"/revs/0/1")
	got, err := r.GetRevision(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, revisionPayload(1), got)
	got, err = r.GetRevision(ctx, 1, Check(CheckIndexed))
	require.NoError(t, err)
	assert.NotEqual(t, revisionPayload(1), got)

	// a size mismatch does not
	raw, err := afero.ReadFile(fs, testRepoPath+"/revs/0/2")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, testRepoPath+"/revs/0/2", raw[:len(raw)-1], 0600))
	_, err = r.GetRevision(ctx, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))
}

func TestReadMissingFiles(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 4)
	defer func() { _ = r.Close() }()

	commitRevisions(t, r, 5)

	// a loose revision below youngest that is simply gone is corruption,
	// not absence
	require.NoError(t, fs.Remove(testRepoPath+"/revs/1/5"))
	_, err := r.GetRevision(ctx, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))

	_, err = r.GetRevisionProperties(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, fs.Remove(testRepoPath+"/revprops/1/4"))
	_, err = r.GetRevisionProperties(ctx, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))
}

func TestReadMissingPackArtifacts(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 4)
	defer func() { _ = r.Close() }()

	commitRevisions(t, r, 7)
	require.NoError(t, r.Pack(ctx))
	requireReadBack(t, r, 7)

	// cached index entries are not served once the backing file is gone
	require.NoError(t, fs.Remove(testRepoPath+"/"+model.GetL2PIndexPath(0)))
	_, err := r.GetRevision(ctx, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))

	require.NoError(t, fs.Remove(testRepoPath+"/"+model.GetRevPackFilePath(1)))
	_, err = r.GetRevision(ctx, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))
}
