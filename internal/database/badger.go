package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nao1215/chaincrawl/internal/label"
	"github.com/nao1215/chaincrawl/internal/model"
)

// Key prefixes of the Badger label store.
const (
	labelPrefix = "label/"
	missPrefix  = "miss/"
)

// BadgerStore is a label.Store backed by BadgerDB. Records are encoded
// with msgpack under the keys label/<address> and miss/<provider>/<address>.
type BadgerStore struct {
	db *badger.DB
}

var _ label.Store = (*BadgerStore)(nil)

// BadgerOptions configures the Badger label store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger warnings and errors. If nil, slog.Default is used.
	Logger *slog.Logger
}

// labelValue is the msgpack body of a label record.
type labelValue struct {
	Label      string    `msgpack:"l"`
	Provider   string    `msgpack:"p"`
	ResolvedAt time.Time `msgpack:"t"`
}

// OpenBadger opens or creates a BadgerStore.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger directory is required for on-disk mode")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{logger: logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// GetLabel implements label.Store.
func (b *BadgerStore) GetLabel(_ context.Context, addr model.Address) (label.Record, bool, error) {
	var v labelValue
	found, err := b.get(labelKey(addr), &v)
	if err != nil || !found {
		return label.Record{}, false, err
	}
	return label.Record{
		Address:    addr,
		Label:      v.Label,
		Provider:   v.Provider,
		ResolvedAt: v.ResolvedAt,
	}, true, nil
}

// PutLabel implements label.Store.
func (b *BadgerStore) PutLabel(_ context.Context, rec label.Record) error {
	return b.put(labelKey(rec.Address), labelValue{
		Label:      rec.Label,
		Provider:   rec.Provider,
		ResolvedAt: rec.ResolvedAt.UTC(),
	})
}

// GetMiss implements label.Store.
func (b *BadgerStore) GetMiss(_ context.Context, provider string, addr model.Address) (time.Time, bool, error) {
	var at time.Time
	found, err := b.get(missKey(provider, addr), &at)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// PutMiss implements label.Store.
func (b *BadgerStore) PutMiss(_ context.Context, provider string, addr model.Address, at time.Time) error {
	return b.put(missKey(provider, addr), at.UTC())
}

// CountLabels returns the number of stored labels per provider.
func (b *BadgerStore) CountLabels(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	prefix := []byte(labelPrefix)

	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var v labelValue
			if err := it.Item().Value(func(raw []byte) error {
				return msgpack.Unmarshal(raw, &v)
			}); err != nil {
				return err
			}
			counts[v.Provider]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	return counts, nil
}

// Close implements label.Store.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) get(key []byte, out any) (bool, error) {
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
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (b *BadgerStore) put(key []byte, v any) error {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func labelKey(addr model.Address) []byte {
	return []byte(labelPrefix + addr.String())
}

func missKey(provider string, addr model.Address) []byte {
	return []byte(missPrefix + provider + "/" + addr.String())
}

// badgerLogger routes badger's own logging to slog, dropping info and
// debug chatter.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	l.logger.Error(fmt.Sprintf(f, v...), "component", "badger")
}

func (l badgerLogger) Warningf(f string, v ...any) {
	l.logger.Warn(fmt.Sprintf(f, v...), "component", "badger")
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
