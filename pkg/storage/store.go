// Copyright © 2019 Packline

package storage

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sync"
	"time"
)

// Flags for the exclusive argument of Store.Put.
const (
	// OverWrite replaces any previous object under the same key
	OverWrite = false

	// NoOverWrite makes Put fail when the key already holds an object
	NoOverWrite = true
)

// Attributes describe the state of a stored object. They serve as
// freshness tokens for caches layered above the store.
type Attributes struct {
	Size    int64
	Updated time.Time

	_ struct{}
}

// Store implementations know how to read and write entries of a
// repository tree addressed by /-separated keys.
//
// Typically this is something file system-like. Implementations of this
// interface are assumed to be fairly simple: the engine builds its
// atomicity guarantees on Put being an all-or-nothing replacement of
// the object under a key.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Stat(context.Context, string) (Attributes, error)
	Get(context.Context, string) (io.ReadCloser, error)
	GetAt(context.Context, string) (io.ReaderAt, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error
	DeletePrefix(context.Context, string) error
	Keys(context.Context) ([]string, error)
	KeysPrefix(context.Context, string) ([]string, error)
	Clear(context.Context) error
}

var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 32*1024)
		return &b
	},
}

// PipeIO copies a reader to a writer through a pooled buffer
func PipeIO(writer io.Writer, reader io.Reader) (int64, error) {
	pbuf := bufPool.Get().(*[]byte)
	defer bufPool.Put(pbuf)
	return io.CopyBuffer(writer, reader, *pbuf)
}

// ReadAll fetches a whole object into memory
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return ioutil.ReadAll(reader)
}

// PutBytes writes a whole object, replacing any previous version under
// the same key.
func PutBytes(ctx context.Context, store Store, key string, data []byte) error {
	return store.Put(ctx, key, bytes.NewReader(data), OverWrite)
}
