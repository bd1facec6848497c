package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for want := uint64(1); want <= 5; want++ {
		id, err := s.Append(ctx, "autobrr", map[string]any{"Title": "Example"})
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, uint64(5), s.Count())
}

func TestConcurrentAppendsProduceGaplessIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const writers = 50
	ids := make(chan uint64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := s.Append(ctx, "autobrr", map[string]any{"n": n})
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, writers)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	for want := uint64(1); want <= writers; want++ {
		assert.True(t, seen[want], "missing id %d", want)
	}
}

func TestAppendThenFetchReturnsPayload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	payload := map[string]any{"Title": "Example", "Year": float64(2020)}
	id, err := s.Append(ctx, "autobrr", payload)
	require.NoError(t, err)

	events, err := s.FetchRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, "autobrr", events[0].Source)

	var got map[string]any
	require.NoError(t, events[0].UnmarshalPayload(&got))
	assert.Equal(t, payload, got)
}

func TestFetchRecentNewestFirstAndBounded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		_, err := s.Append(ctx, "autobrr", map[string]any{"n": i})
		require.NoError(t, err)
	}

	events, err := s.FetchRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(10), events[0].ID)
	assert.Equal(t, uint64(9), events[1].ID)
	assert.Equal(t, uint64(8), events[2].ID)

	all, err := s.FetchRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestFetchRecentNonPositiveLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "autobrr", map[string]any{"Title": "Example"})
	require.NoError(t, err)

	for _, limit := range []int{0, -1, -100} {
		events, err := s.FetchRecent(ctx, limit)
		require.NoError(t, err)
		assert.Empty(t, events)
	}
}

func TestReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Append(ctx, "autobrr", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = s.Append(ctx, "autobrr", map[string]any{"n": 2})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening must be a no-op for existing data and the sequence.
	s, err = Open(Config{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	id, err := s.Append(ctx, "autobrr", map[string]any{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)

	events, err := s.FetchRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestAppendValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "", map[string]any{"Title": "Example"})
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)

	_, err = s.Append(ctx, "autobrr", nil)
	require.ErrorAs(t, err, &storageErr)
}

func TestAppendExtractsTimestampAndExternalID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "autobrr", map[string]any{
		"timestamp": "2025-10-02T12:00:00Z",
		"imdbId":    "tt0111161",
	})
	require.NoError(t, err)

	// MetaIMDB is the fallback when imdbId is absent.
	_, err = s.Append(ctx, "autobrr", map[string]any{"MetaIMDB": "tt0068646"})
	require.NoError(t, err)

	_, err = s.Append(ctx, "autobrr", map[string]any{"Title": "no ids"})
	require.NoError(t, err)

	events, err := s.FetchRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Empty(t, events[0].ExternalID)
	assert.Equal(t, "tt0068646", events[1].ExternalID)
	assert.Equal(t, "tt0111161", events[2].ExternalID)
	assert.Equal(t, "2025-10-02T12:00:00Z", events[2].Timestamp)
}

func TestCanceledContextPreventsAppend(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Append(ctx, "autobrr", map[string]any{"Title": "Example"})
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.ErrorIs(t, err, context.Canceled)

	events, err := s.FetchRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events, "aborted append must not land a partial event")
}

func TestClosedStoreReturnsStorageError(t *testing.T) {
	s, err := Open(Config{Path: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is a no-op")

	_, err = s.Append(context.Background(), "autobrr", map[string]any{})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.FetchRecent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentFetchDuringAppend(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Append(ctx, "autobrr", map[string]any{"n": n})
			assert.NoError(t, err)
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.FetchRecent(ctx, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestStorageErrorUnwraps(t *testing.T) {
	inner := errors.New("disk on fire")
	err := storageErr("append", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "append")
}
