package clipcache

import (
	"context"
	"errors"
	"log"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lingopod/lingopod/pkg/jsontime"
)

const badgerKeyPrefix = "clip:"

// Badger is a Store implementation backed by BadgerDB v4.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB clip store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB in memory-only mode (no disk persistence).
	// Useful for testing with a real badger engine.
	InMemory bool

	// Logger sets the badger logger. If nil, a quiet default is used.
	Logger badger.Logger
}

// NewBadger creates a new BadgerDB-backed clip Store.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("clipcache: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(quietLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

// record is the msgpack-encoded on-disk form of a clip.
type record struct {
	Data      []byte `msgpack:"data"`
	CreatedAt int64  `msgpack:"created_at"`
	Meta      Meta   `msgpack:"meta"`
}

func (b *Badger) Get(_ context.Context, id string) (*Clip, error) {
	key := []byte(badgerKeyPrefix + id)
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &Clip{
		ID:        id,
		Data:      rec.Data,
		ByteSize:  int64(len(rec.Data)),
		CreatedAt: jsontime.Milli(time.UnixMilli(rec.CreatedAt)),
		Meta:      rec.Meta,
	}, nil
}

func (b *Badger) Put(_ context.Context, id string, data []byte, meta Meta) error {
	raw, err := msgpack.Marshal(&record{
		Data:      data,
		CreatedAt: time.Now().UnixMilli(),
		Meta:      meta,
	})
	if err != nil {
		return err
	}
	key := []byte(badgerKeyPrefix + id)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
}

func (b *Badger) Delete(_ context.Context, id string) error {
	key := []byte(badgerKeyPrefix + id)
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// quietLogger silences badger's info/debug chatter, keeping only warnings.
type quietLogger struct{}

func (quietLogger) Errorf(format string, args ...interface{})   { log.Printf("badger: "+format, args...) }
func (quietLogger) Warningf(format string, args ...interface{}) { log.Printf("badger: "+format, args...) }
func (quietLogger) Infof(string, ...interface{})                {}
func (quietLogger) Debugf(string, ...interface{})               {}
