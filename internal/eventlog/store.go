package eventlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// DefaultFetchLimit bounds FetchRecent when the caller passes no explicit limit.
const DefaultFetchLimit = 100

// externalIDKeys are checked in order when extracting a cross-reference id
// from an inbound payload.
var externalIDKeys = []string{"imdbId", "MetaIMDB"}

var keyPrefix = []byte("evt/")

// Config controls where the event store persists.
type Config struct {
	Path string
}

// Store is an append-only log of accepted events backed by BadgerDB.
//
// Writes are serialized by a single-writer lock so ids are gapless and
// strictly increasing in commit order. Reads run on Badger snapshots and
// never block writers.
type Store struct {
	db     *badger.DB
	logger *zap.Logger

	mu     sync.Mutex // guards nextID and append commit order
	nextID uint64

	closeMu sync.RWMutex
	closed  bool
}

// Open initializes the store, creating the underlying database if absent.
// Opening an existing database is a no-op for its contents, so Open is safe
// to call at every process startup.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storageErr("open", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.loadNextID(); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	logger.Info("event store opened",
		zap.String("path", cfg.Path),
		zap.Uint64("events", s.nextID-1),
	)
	return s, nil
}

// loadNextID finds the highest assigned id so appends continue the sequence
// after a restart.
func (s *Store) loadNextID() error {
	s.nextID = 1
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Reverse: true,
			Prefix:  keyPrefix,
		})
		defer it.Close()

		it.Seek(seekLast())
		if !it.Valid() {
			return nil
		}
		id, err := parseKey(it.Item().Key())
		if err != nil {
			return err
		}
		s.nextID = id + 1
		return nil
	})
	if err != nil {
		return storageErr("load sequence", err)
	}
	return nil
}

// Append persists a new event and returns its assigned id. The optional
// timestamp and external id are lifted out of the payload when present.
// The event is durably committed before Append returns.
func (s *Store) Append(ctx context.Context, source string, payload map[string]any) (uint64, error) {
	if source == "" {
		return 0, storageErr("append", errors.New("source must be non-empty"))
	}
	if payload == nil {
		return 0, storageErr("append", errors.New("payload must be non-nil"))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, storageErr("marshal payload", err)
	}

	ev := Event{
		Source:  source,
		Payload: raw,
	}
	if ts, ok := payload["timestamp"].(string); ok {
		ev.Timestamp = ts
	}
	for _, key := range externalIDKeys {
		if id, ok := payload[key].(string); ok && id != "" {
			ev.ExternalID = id
			break
		}
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return 0, storageErr("append", ErrClosed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// An aborted request must not land a partial event.
	if err := ctx.Err(); err != nil {
		return 0, storageErr("append", err)
	}

	ev.ID = s.nextID
	encoded, err := json.Marshal(ev)
	if err != nil {
		return 0, storageErr("marshal event", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(ev.ID), encoded)
	})
	if err != nil {
		return 0, storageErr("commit", err)
	}

	s.nextID++
	s.logger.Debug("event appended",
		zap.Uint64("id", ev.ID),
		zap.String("source", source),
		zap.String("external_id", ev.ExternalID),
	)
	return ev.ID, nil
}

// FetchRecent returns up to limit events, newest first. A non-positive limit
// yields an empty slice. The read runs on a snapshot and may or may not
// observe appends that are in flight when the call starts.
func (s *Store) FetchRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return []Event{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, storageErr("fetch", err)
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return nil, storageErr("fetch", ErrClosed)
	}

	events := make([]Event, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Reverse:        true,
			Prefix:         keyPrefix,
			PrefetchValues: true,
			PrefetchSize:   limit,
		})
		defer it.Close()

		for it.Seek(seekLast()); it.Valid() && len(events) < limit; it.Next() {
			var ev Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			})
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("fetch", err)
	}
	return events, nil
}

// Count reports the number of events appended so far.
func (s *Store) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID - 1
}

// Close releases the underlying database. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return storageErr("close", err)
	}
	return nil
}

func eventKey(id uint64) []byte {
	return fmt.Appendf(nil, "%s%020d", keyPrefix, id)
}

// seekLast is a key past every possible event key, used to start reverse scans.
func seekLast() []byte {
	return append(bytes.Clone(keyPrefix), 0xff)
}

func parseKey(key []byte) (uint64, error) {
	var id uint64
	if _, err := fmt.Sscanf(string(key), "evt/%d", &id); err != nil {
		return 0, fmt.Errorf("malformed event key %q: %w", key, err)
	}
	return id, nil
}
