// Copyright © 2019 Packline

package storage_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/packline/revstore/pkg/storage"
	"github.com/packline/revstore/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInstrumentedStore(t *testing.T) {
	inner := localfs.New(afero.NewMemMapFs())
	store := storage.Instrument(opentracing.NoopTracer{}, zap.NewNop(), inner)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k/v", bytes.NewBufferString("payload"), storage.OverWrite))

	has, err := store.Has(ctx, "k/v")
	require.NoError(t, err)
	assert.True(t, has)

	rdr, err := store.Get(ctx, "k/v")
	require.NoError(t, err)
	b, err := ioutil.ReadAll(rdr)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	keys, err := store.KeysPrefix(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	assert.Equal(t, inner.String(), store.String())
	require.NoError(t, store.DeletePrefix(ctx, "k"))
}
