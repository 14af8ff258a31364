package core

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v3"
	badgeroptions "github.com/dgraph-io/badger/v3/options"

	"github.com/packline/revstore/pkg/errors"
)

type (
	// kvBadger provides a KV store implementation based on dgraph-io/badger/v3
	kvBadger struct {
		*badger.DB
	}

	kvBadgerIterator struct {
		isFirst  bool
		txn      *badger.Txn
		iterator *badger.Iterator
	}
)

func (kv *kvBadger) Drop() error {
	return kv.DB.DropAll()
}

func (kv *kvBadger) Size() uint64 {
	lsmSize, logSize := kv.DB.Size()
	dbSize := lsmSize + logSize

	return uint64(dbSize)
}

func (kv *kvBadger) AllKeys() kvIterator {
	txn := kv.DB.NewTransaction(false)
	iterator := txn.NewIterator(badger.IteratorOptions{
		PrefetchSize:   1024,
		PrefetchValues: true,
	})

	return &kvBadgerIterator{
		isFirst:  true,
		txn:      txn,
		iterator: iterator,
	}
}

func (kv *kvBadger) Get(key []byte) ([]byte, error) {
	var value []byte
	err := kv.DB.View(func(txn *badger.Txn) error {
		item, e := txn.Get(key)
		if e != nil {
			return e
		}
		value, e = item.ValueCopy(nil)

		return e
	})

	return value, err
}

func (kv *kvBadger) Exists(key []byte) (bool, error) {
	err := kv.DB.View(func(txn *badger.Txn) error {
		_, e := txn.Get(key)

		return e
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}

		// some technical error occurred: interrupt
		return false, err
	}

	return true, nil
}

func (kv *kvBadger) Set(key, value []byte) error {
	return backoff.Retry(func() error {
		return kv.DB.Update(func(txn *badger.Txn) error {
			e := txn.Set(key, value)
			if e != nil {
				if errors.Is(e, badger.ErrConflict) {
					return e // retry
				}

				return backoff.Permanent(e)
			}

			return nil
		})
	},
		backoff.NewConstantBackOff(10*time.Millisecond),
	)
}

func (kv *kvBadger) SetIfNotExists(key, value []byte) error {
	return backoff.Retry(func() error {
		return kv.DB.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			if err == nil {
				return nil
			}

			if !errors.Is(err, badger.ErrKeyNotFound) {
				return backoff.Permanent(err)
			}

			err = txn.Set(key, value)
			if err != nil {
				if errors.Is(err, badger.ErrConflict) {
					return err // retry
				}

				return backoff.Permanent(err)
			}

			return nil
		})
	},
		backoff.NewConstantBackOff(10*time.Millisecond),
	)
}

func (kv *kvBadger) Delete(key []byte) error {
	return backoff.Retry(func() error {
		return kv.DB.Update(func(txn *badger.Txn) error {
			e := txn.Delete(key)
			if e != nil {
				if errors.Is(e, badger.ErrConflict) {
					return e // retry
				}

				return backoff.Permanent(e)
			}

			return nil
		})
	},
		backoff.NewConstantBackOff(10*time.Millisecond),
	)
}

func (i *kvBadgerIterator) Next() bool {
	if i.isFirst {
		i.iterator.Rewind()
		i.isFirst = false

		return i.iterator.Valid()
	}

	i.iterator.Next()

	return i.iterator.Valid()
}

func (i *kvBadgerIterator) Item() ([]byte, []byte, error) {
	key := i.iterator.Item().KeyCopy(nil)
	val, err := i.iterator.Item().ValueCopy(nil)

	return key, val, err
}

func (i *kvBadgerIterator) Close() error {
	i.iterator.Close()
	i.txn.Discard()

	return nil
}

func makeKVBadger(pth string) (*kvBadger, error) {
	err := os.MkdirAll(pth, 0700)
	if err != nil {
		return nil, fmt.Errorf("makeKV: mkdir: %w", err)
	}

	db, err := badger.Open(
		badger.LSMOnlyOptions(pth).
			WithLoggingLevel(badger.WARNING).
			WithMetricsEnabled(true).            // need this in order to collect a reporting of the DB size
			WithCompression(badgeroptions.None), // a set of keys that are content digests is unlikely to compress well
	)
	if err != nil {
		return nil, fmt.Errorf("open KV: %w", err)
	}

	return &kvBadger{DB: db}, nil
}
