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

// packedTestRepo builds a repository with shards 0 and 1 packed and no
// loose revisions left.
func packedTestRepo(t *testing.T) (*Repository, afero.Fs) {
	t.Helper()
	r, fs := testRepo(t, 4)
	commitRevisions(t, r, 7)
	require.NoError(t, r.Pack(context.Background()))
	return r, fs
}

func dropLastLine(t *testing.T, fs afero.Fs, pth string) {
	t.Helper()
	raw, err := afero.ReadFile(fs, pth)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.NotEmpty(t, lines)
	out := strings.Join(lines[:len(lines)-1], "\n")
	if out != "" {
		out += "\n"
	}
	require.NoError(t, afero.WriteFile(fs, pth, []byte(out), 0600))
}

func TestVerifyRangeValidation(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, _ := testRepo(t, 4)
	defer func() { _ = r.Close() }()
	commitRevisions(t, r, 5)

	err := r.Verify(ctx, 3, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
	err = r.Verify(ctx, 0, 9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))

	require.NoError(t, r.Verify(ctx, model.InvalidRev, 2))
	require.NoError(t, r.Verify(ctx, 4, model.InvalidRev))
}

func TestVerifyDetectsArtifactDamage(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	damage := map[string]func(t *testing.T, fs afero.Fs){
		"manifest truncated": func(t *testing.T, fs afero.Fs) {
			dropLastLine(t, fs, testRepoPath+"/"+model.GetRevPackManifestPath(0))
		},
		"physical index missing": func(t *testing.T, fs afero.Fs) {
			require.NoError(t, fs.Remove(testRepoPath+"/"+model.GetP2LIndexPath(1)))
		},
		"logical index missing": func(t *testing.T, fs afero.Fs) {
			require.NoError(t, fs.Remove(testRepoPath+"/"+model.GetL2PIndexPath(0)))
		},
		"pack file missing": func(t *testing.T, fs afero.Fs) {
			require.NoError(t, fs.Remove(testRepoPath+"/"+model.GetRevPackFilePath(1)))
		},
		"pack truncated": func(t *testing.T, fs afero.Fs) {
			pth := testRepoPath + "/" + model.GetRevPackFilePath(0)
			raw, err := afero.ReadFile(fs, pth)
			require.NoError(t, err)
			require.NoError(t, afero.WriteFile(fs, pth, raw[:len(raw)-1], 0600))
		},
		"pack trailing garbage": func(t *testing.T, fs afero.Fs) {
			pth := testRepoPath + "/" + model.GetRevPackFilePath(0)
			raw, err := afero.ReadFile(fs, pth)
			require.NoError(t, err)
			require.NoError(t, afero.WriteFile(fs, pth, append(raw, '!'), 0600))
		},
		"revprop manifest short": func(t *testing.T, fs afero.Fs) {
			dropLastLine(t, fs, testRepoPath+"/"+model.GetRevpropManifestPath(0))
		},
		"revprop pack truncated": func(t *testing.T, fs afero.Fs) {
			pth := testRepoPath + "/" + model.GetRevpropPackFilePath(0, "1.0")
			raw, err := afero.ReadFile(fs, pth)
			require.NoError(t, err)
			require.NoError(t, afero.WriteFile(fs, pth, raw[:len(raw)-1], 0600))
		},
	}
	for name, corrupt := range damage {
		t.Run(name, func(t *testing.T) {
			r, fs := packedTestRepo(t)
			defer func() { _ = r.Close() }()
			require.NoError(t, r.Verify(ctx, model.InvalidRev, model.InvalidRev))

			corrupt(t, fs)
			err := r.Verify(ctx, model.InvalidRev, model.InvalidRev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, status.ErrCorrupt), "got %v", err)
		})
	}
}

func TestVerifyWatermarkBeyondYoungest(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	r, fs := testRepo(t, 4)
	defer func() { _ = r.Close() }()
	commitRevisions(t, r, 3)

	require.NoError(t, afero.WriteFile(fs, testRepoPath+"/"+model.MinUnpackedFile,
		[]byte("8\n"), 0600))
	err := r.Verify(ctx, model.InvalidRev, model.InvalidRev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrCorrupt))
}

func TestVerifyInterrupted(t *testing.T) {
	defer goleak.VerifyNone(t)
	r, _ := packedTestRepo(t)
	defer func() { _ = r.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Verify(ctx, model.InvalidRev, model.InvalidRev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInterrupted))
}
