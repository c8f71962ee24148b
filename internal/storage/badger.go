package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const badgerKeyPrefix = "medrec/"

// Badger stores records in an embedded BadgerDB.
type Badger struct {
	db *badger.DB
}

// BadgerConfig configures OpenBadger.
type BadgerConfig struct {
	// Path is the database directory; ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *zap.Logger
}

// OpenBadger opens (creating if needed) a BadgerDB for record storage.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Load(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

func (b *Badger) Save(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+key), value)
	})
}

func (b *Badger) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + key))
	})
}

func (b *Badger) Close() error { return b.db.Close() }

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct{ log *zap.SugaredLogger }

func (l *badgerLogger) Errorf(f string, args ...interface{})   { l.log.Errorf(f, args...) }
func (l *badgerLogger) Warningf(f string, args ...interface{}) { l.log.Warnf(f, args...) }
func (l *badgerLogger) Infof(f string, args ...interface{})    { l.log.Debugf(f, args...) }
func (l *badgerLogger) Debugf(f string, args ...interface{})   { l.log.Debugf(f, args...) }
