package queuestore

import (
	"context"
	"errors"
	"sync"

	"github.com/rzbill/syncq/internal/queue"
	pebblestore "github.com/rzbill/syncq/internal/storage/pebble"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

// Options configures a Store.
type Options struct {
	DB     pebblestore.Options
	Logger logpkg.Logger
}

// Store persists queue entries in Pebble. The database is opened on first use;
// a failed open is retried by the next call. Safe for concurrent use.
type Store struct {
	opts   Options
	logger logpkg.Logger

	mu     sync.Mutex
	db     *pebblestore.DB
	closed bool
}

// New returns a Store that has not touched the disk yet.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Store{opts: opts, logger: logger.WithComponent("queuestore")}
}

func (s *Store) handle() (*pebblestore.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storageErr("open", ErrClosed)
	}
	if s.db != nil {
		return s.db, nil
	}
	db, err := pebblestore.Open(s.opts.DB)
	if err != nil {
		s.logger.Error("open failed", logpkg.Str("dir", s.opts.DB.DataDir), logpkg.Err(err))
		return nil, storageErr("open", err)
	}
	s.logger.Debug("opened", logpkg.Str("dir", s.opts.DB.DataDir), logpkg.Str("fsync", db.Mode().String()))
	s.db = db
	return db, nil
}

// Put inserts or replaces the entry with e.ID.
func (s *Store) Put(ctx context.Context, e queue.Entry) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	rec, err := queue.EncodeEntry(e)
	if err != nil {
		return storageErr("put", err)
	}
	return storageErr("put", db.Set(ctx, queue.EntryKey(e.ID), rec))
}

// Get returns the entry, ErrNotFound, or a StorageError (including for a
// corrupt record).
func (s *Store) Get(ctx context.Context, id string) (queue.Entry, error) {
	db, err := s.handle()
	if err != nil {
		return queue.Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return queue.Entry{}, err
	}
	raw, err := db.Get(queue.EntryKey(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return queue.Entry{}, ErrNotFound
	}
	if err != nil {
		return queue.Entry{}, storageErr("get", err)
	}
	e, err := queue.DecodeEntry(raw)
	if err != nil {
		return queue.Entry{}, storageErr("get", err)
	}
	return e, nil
}

// GetAll returns every entry ordered by id. Corrupt records are logged and
// skipped.
func (s *Store) GetAll(ctx context.Context) ([]queue.Entry, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var out []queue.Entry
	err = db.ScanPrefix(ctx, queue.EntryPrefix(), func(key, value []byte) error {
		e, derr := queue.DecodeEntry(value)
		if derr != nil {
			id, _ := queue.IDFromKey(key)
			s.logger.Warn("skipping corrupt entry", logpkg.Str("id", id), logpkg.Err(derr))
			return nil
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, storageErr("scan", err)
	}
	return out, nil
}

// Delete removes the entry if present.
func (s *Store) Delete(ctx context.Context, id string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return storageErr("delete", db.Delete(ctx, queue.EntryKey(id)))
}

// Clear removes every entry in one batch.
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return storageErr("clear", db.DeletePrefix(ctx, queue.EntryPrefix()))
}

// Ping opens the database if needed and checks it is readable.
func (s *Store) Ping(context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return storageErr("ping", db.Ping())
}

// Close releases the database. Later operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
