package fingerprint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDigestDeterminism(t *testing.T) {
	defer goleak.VerifyNone(t)

	maker := New()
	content := []byte("some revision content worth indexing")
	d1, err := maker.Bytes(content)
	require.NoError(t, err)
	require.Len(t, d1, 64)

	d2, err := New().Bytes(content)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	d3, err := maker.Bytes([]byte("some revision content worth indexinG"))
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestDigestChunked(t *testing.T) {
	defer goleak.VerifyNone(t)

	content := make([]byte, 100)
	for i := range content {
		content[i] = byte(i)
	}
	chunked := New(LeafSize(16), NumberOfWorkers(2))
	d1, err := chunked.Bytes(content)
	require.NoError(t, err)
	d2, err := New(LeafSize(16), NumberOfWorkers(7)).Bytes(content)
	require.NoError(t, err)
	// the digest depends on content and leaf size, not on workers
	assert.Equal(t, d1, d2)

	whole, err := New().Bytes(content)
	require.NoError(t, err)
	assert.NotEqual(t, d1, whole)
}

func TestDigestEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)

	d, err := New().Bytes(nil)
	require.NoError(t, err)
	assert.Len(t, d, 64)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestDigestReadFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("disk on fire")
	_, err := New().Process(failingReader{err: boom}, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}
