package geophoto

import (
	"github.com/dgraph-io/badger/v4"
)

// PhotoStore is the durable, on-disk photo archive: photo id to packed
// Photo record, surviving process restarts (spec.md §3). Badger plays
// the role the original's leveldb instance played.
type PhotoStore struct {
	db *badger.DB
}

// OpenPhotoStore opens (creating if absent) the photo store at dir.
func OpenPhotoStore(dir string) (*PhotoStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageError{Store: "photo_store", Op: "open", Err: err}
	}
	return &PhotoStore{db: db}, nil
}

// Close releases the store's file handles.
func (s *PhotoStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &StorageError{Store: "photo_store", Op: "close", Err: err}
	}
	return nil
}

// Put writes one photo record, keyed by its upstream id.
func (s *PhotoStore) Put(id uint64, p Photo) error {
	value, err := PackRecord(p)
	if err != nil {
		return &MalformedRecordError{PhotoID: id, Reason: err.Error()}
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(PackID(id), value)
	})
	if err != nil {
		return &StorageError{Store: "photo_store", Op: "put", Err: err}
	}
	return nil
}

// PutBatch writes many photo records through one badger write batch for
// throughput during bulk ingestion; the batch may commit in several
// transactions.
func (s *PhotoStore) PutBatch(photos map[uint64]Photo) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for id, p := range photos {
		value, err := PackRecord(p)
		if err != nil {
			return &MalformedRecordError{PhotoID: id, Reason: err.Error()}
		}
		if err := wb.Set(PackID(id), value); err != nil {
			return &StorageError{Store: "photo_store", Op: "batch set", Err: err}
		}
	}
	if err := wb.Flush(); err != nil {
		return &StorageError{Store: "photo_store", Op: "batch flush", Err: err}
	}
	return nil
}

// Get reads one photo record by id. ok is false when the id is absent.
func (s *PhotoStore) Get(id uint64) (p Photo, ok bool, err error) {
	txErr := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(PackID(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return item.Value(func(val []byte) error {
			p, err = UnpackRecord(val)
			return err
		})
	})
	if txErr != nil {
		return Photo{}, false, &StorageError{Store: "photo_store", Op: "get", Err: txErr}
	}
	return p, ok, nil
}

// Count returns the number of photo records in the store.
func (s *PhotoStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, &StorageError{Store: "photo_store", Op: "count", Err: err}
	}
	return n, nil
}

// Each streams every (id, Photo) pair in key order, stopping at the
// first error returned by fn.
func (s *PhotoStore) Each(fn func(id uint64, p Photo) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id, err := UnpackID(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			var inner error
			err = item.Value(func(val []byte) error {
				p, err := UnpackRecord(val)
				if err != nil {
					return err
				}
				inner = fn(id, p)
				return nil
			})
			if err != nil {
				return err
			}
			if inner != nil {
				return inner
			}
		}
		return nil
	})
	if err != nil {
		return &StorageError{Store: "photo_store", Op: "scan", Err: err}
	}
	return nil
}
