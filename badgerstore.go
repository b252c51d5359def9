package davcloak

import (
	"context"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/scraperwall/davcloak/store"
	log "github.com/sirupsen/logrus"
)

// BadgerDB is a wrapper around a BadgerDB backend database that implements
// the KVStore interface.
type BadgerDB struct {
	db        *badger.DB
	ctx       context.Context
	closeOnce sync.Once
	closeErr  error
}

// NewBadgerDB returns a new initialized BadgerDB database implementing the KVStore
// interface. An empty dataDir creates an in-memory database
func NewBadgerDB(ctx context.Context, dataDir string) (store.KVStore, error) {
	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dataDir)
		opts.SyncWrites = true
		opts.Dir, opts.ValueDir = dataDir, dataDir
	}
	opts.Logger = nil

	badgerDB, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger %s: %w", dataDir, err)
	}

	bdb := &BadgerDB{
		db:  badgerDB,
		ctx: ctx,
	}

	if !opts.InMemory {
		go bdb.runGC()
	}
	return bdb, nil
}

// Get returns the value for a given key and namespace. If the key does not exist
// in the namespace, ErrNotFound() is returned
func (bdb *BadgerDB) Get(namespace, key []byte) ([]byte, error) {
	var value []byte

	err := bdb.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bdb.namespaceKey(namespace, key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores a value for a given key and namespace without expiration
func (bdb *BadgerDB) Set(namespace, key, value []byte) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bdb.namespaceKey(namespace, key), value)
	})
}

// SetEx stores the given key and value for the time given by ttl. A ttl <= 0 never expires.
// If the key/value pair can't be saved an error is returned
func (bdb *BadgerDB) SetEx(namespace, key, value []byte, ttl time.Duration) error {
	err := bdb.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(bdb.namespaceKey(namespace, key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})

	if err != nil {
		log.Warnf("badger: failed to set %s/%s: %s", namespace, key, err)
		return err
	}

	return nil
}

// Remove removes a single entry from the database
func (bdb *BadgerDB) Remove(namespace, key []byte) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(bdb.namespaceKey(namespace, key))
	})
}

// Clear removes all entries of a namespace
func (bdb *BadgerDB) Clear(namespace []byte) error {
	return bdb.db.DropPrefix(bdb.namespaceKey(namespace, []byte{}))
}

// Has returns a boolean reflecting if the database has a given key for a namespace or not.
// An error is only returned if it is not of type badger.ErrKeyNotFound.
func (bdb *BadgerDB) Has(namespace, key []byte) (ok bool, err error) {
	_, err = bdb.Get(namespace, key)
	switch err {
	case badger.ErrKeyNotFound:
		ok, err = false, nil
	case nil:
		ok, err = true, nil
	}

	return
}

// Close closes the underlying BadgerDB database. Calling it more than once is safe
func (bdb *BadgerDB) Close() error {
	bdb.closeOnce.Do(func() {
		bdb.closeErr = bdb.db.Close()
	})
	return bdb.closeErr
}

// runGC triggers the garbage collection for the BadgerDB backend database. It
// should be run in a goroutine.
func (bdb *BadgerDB) runGC() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := bdb.db.RunValueLogGC(0.5)
			if err != nil {
				// don't report error when GC didn't result in any cleanup
				if err == badger.ErrNoRewrite {
					log.Debugf("no BadgerDB GC occurred: %v", err)
				} else {
					log.Errorf("failed to GC BadgerDB: %v", err)
				}
			}

		case <-bdb.ctx.Done():
			return
		}
	}
}

// All returns all values for the given namespace and prefix.
func (bdb *BadgerDB) All(namespace, prefix []byte) ([][]byte, error) {
	res := make([][]byte, 0)

	err := bdb.Each(namespace, prefix, func(v []byte) {
		data := make([]byte, len(v))
		copy(data, v)
		res = append(res, data)
	})

	if err != nil {
		return nil, err
	}

	return res, nil
}

// Each iterates over all items that match namespace and prefix. The value passed to callback is
// only valid until callback returns
func (bdb *BadgerDB) Each(namespace, prefix []byte, callback store.EachFunc) error {
	return bdb.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := bdb.namespaceKey(namespace, prefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				callback(v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of entries that match namespace and prefix
func (bdb *BadgerDB) Count(namespace, prefix []byte) (int, error) {
	c := 0

	err := bdb.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := bdb.namespaceKey(namespace, prefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			c++
		}
		return nil
	})

	return c, err
}

// ErrNotFound is the error badger returns when it can't find a key in the database
func (bdb *BadgerDB) ErrNotFound() error {
	return badger.ErrKeyNotFound
}

// namespaceKey returns a composite key used for lookup and storage for a
// given namespace and key.
func (bdb *BadgerDB) namespaceKey(namespace, key []byte) []byte {
	return []byte(fmt.Sprintf("%s/%s", string(namespace), string(key)))
}
