package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"grocerylist/application/cache"
	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/valueobjects"
	pkgerrors "grocerylist/pkg/errors"
	"grocerylist/tests/fixtures"
	"grocerylist/tests/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const key = "groceryItems"

// funcMutation lets a test control both halves of a mutation
type funcMutation struct {
	kind   string
	apply  func([]entities.GroceryItem) []entities.GroceryItem
	commit func(context.Context) error
}

func (m funcMutation) Kind() string { return m.kind }

func (m funcMutation) Apply(items []entities.GroceryItem) []entities.GroceryItem {
	return m.apply(items)
}

func (m funcMutation) Commit(ctx context.Context) error { return m.commit(ctx) }

func newCache(t *testing.T, sink *mocks.RecordingSink, metrics *mocks.RecordingMetrics) *cache.QueryCache {
	t.Helper()
	qc := cache.NewQueryCache(sink, metrics, zap.NewNop(), cache.Options{ReadRetries: 1})
	t.Cleanup(qc.Close)
	return qc
}

func staticFetcher(items ...entities.GroceryItem) cache.Fetcher {
	return func(context.Context) ([]entities.GroceryItem, error) {
		return entities.CloneItems(items), nil
	}
}

func TestGetLoadsOnce(t *testing.T) {
	qc := newCache(t, &mocks.RecordingSink{}, mocks.NewRecordingMetrics())

	var calls atomic.Int32
	qc.Register(key, func(context.Context) ([]entities.GroceryItem, error) {
		calls.Add(1)
		return []entities.GroceryItem{fixtures.Item("1", "Milk", 1, false)}, nil
	})

	before := qc.Read(key)
	assert.False(t, before.Fetched)
	assert.Empty(t, before.Items)

	snap, err := qc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, snap.Fetched)
	assert.Len(t, snap.Items, 1)

	_, err = qc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchWithoutFetcher(t *testing.T) {
	qc := newCache(t, &mocks.RecordingSink{}, mocks.NewRecordingMetrics())

	_, err := qc.Fetch(context.Background(), "unknown")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeInternal))
}

func TestReadRetriesOnce(t *testing.T) {
	t.Run("second attempt succeeds", func(t *testing.T) {
		sink := &mocks.RecordingSink{}
		qc := newCache(t, sink, mocks.NewRecordingMetrics())

		var calls atomic.Int32
		qc.Register(key, func(context.Context) ([]entities.GroceryItem, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("flaky")
			}
			return []entities.GroceryItem{fixtures.Item("1", "Milk", 1, false)}, nil
		})

		items, err := qc.Fetch(context.Background(), key)
		require.NoError(t, err)
		assert.Len(t, items, 1)
		assert.Equal(t, int32(2), calls.Load())
		assert.Zero(t, sink.Count())
	})

	t.Run("gives up after one retry", func(t *testing.T) {
		sink := &mocks.RecordingSink{}
		qc := newCache(t, sink, mocks.NewRecordingMetrics())

		var calls atomic.Int32
		fetchErr := pkgerrors.NewRemoteRequestError("list", 0, "Failed to fetch grocery items", nil)
		qc.Register(key, func(context.Context) ([]entities.GroceryItem, error) {
			calls.Add(1)
			return nil, fetchErr
		})

		_, err := qc.Fetch(context.Background(), key)
		require.Error(t, err)
		assert.Equal(t, int32(2), calls.Load())

		require.Equal(t, 1, sink.Count())
		assert.Equal(t, "query:"+key, sink.Sources[0])

		snap := qc.Read(key)
		assert.False(t, snap.Fetched)
		assert.Equal(t, fetchErr, snap.Err)
	})
}

func TestRetryDelayHonoursContext(t *testing.T) {
	qc := cache.NewQueryCache(nil, nil, zap.NewNop(), cache.Options{ReadRetries: 1, ReadRetryDelay: time.Hour})
	defer qc.Close()

	qc.Register(key, func(context.Context) ([]entities.GroceryItem, error) {
		return nil, errors.New("down")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := qc.Fetch(ctx, key)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMutateAppliesBeforeCommit(t *testing.T) {
	qc := newCache(t, &mocks.RecordingSink{}, mocks.NewRecordingMetrics())
	milk := fixtures.Item("1", "Milk", 1, false)
	qc.Register(key, staticFetcher(milk))
	_, err := qc.Fetch(context.Background(), key)
	require.NoError(t, err)

	seenDuringCommit := make(chan []entities.GroceryItem, 1)
	m := funcMutation{
		kind: "update",
		apply: func(items []entities.GroceryItem) []entities.GroceryItem {
			items[0].Amount = 5
			return items
		},
		commit: func(context.Context) error {
			seenDuringCommit <- qc.Read(key).Items
			return nil
		},
	}

	require.NoError(t, qc.Mutate(context.Background(), key, m, cache.MutateOptions{}))

	during := <-seenDuringCommit
	assert.Equal(t, 5.0, during[0].Amount)

	// The settle refetch replaces the optimistic state with the store's view
	assert.Equal(t, 1.0, qc.Read(key).Items[0].Amount)
}

func TestMutateRollsBackOnFailure(t *testing.T) {
	sink := &mocks.RecordingSink{}
	metrics := mocks.NewRecordingMetrics()
	qc := newCache(t, sink, metrics)

	store := &mocks.MockRemoteStore{}
	milk := fixtures.Item("1", "Milk", 1, false)
	bread := fixtures.Item("2", "Bread", 1, false)
	remoteErr := pkgerrors.NewRemoteRequestError("update", 500, "Failed to update grocery item", nil)

	store.On("List", mock.Anything).Return([]entities.GroceryItem{milk, bread}, nil)
	store.On("Update", mock.Anything, milk.ID, mock.Anything).Return(entities.GroceryItem{}, remoteErr).Once()

	qc.Register(key, store.List)
	_, err := qc.Fetch(context.Background(), key)
	require.NoError(t, err)

	var published [][]entities.GroceryItem
	var mu sync.Mutex
	unsubscribe := qc.Subscribe(key, func(_ string, items []entities.GroceryItem) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, items)
	})
	defer unsubscribe()

	err = qc.Mutate(context.Background(), key,
		cache.NewUpdateMutation(store, milk.ID, entities.AmountPatch(9)), cache.MutateOptions{})
	require.ErrorIs(t, err, remoteErr)

	assert.Equal(t, []entities.GroceryItem{milk, bread}, qc.Read(key).Items)

	mu.Lock()
	require.GreaterOrEqual(t, len(published), 2)
	assert.Equal(t, 9.0, published[0][0].Amount, "optimistic state published first")
	assert.Equal(t, []entities.GroceryItem{milk, bread}, published[1], "rollback published next")
	mu.Unlock()

	require.Equal(t, 1, sink.Count())
	assert.Equal(t, "mutation:update", sink.Sources[0])
	assert.Equal(t, 1, metrics.Mutation("update", "rolled_back"))

	// No mutation retries
	store.AssertNumberOfCalls(t, "Update", 1)
	// Initial load plus the settle refetch
	store.AssertNumberOfCalls(t, "List", 2)
}

func TestOnErrorSuppressesSink(t *testing.T) {
	sink := &mocks.RecordingSink{}
	qc := newCache(t, sink, mocks.NewRecordingMetrics())
	qc.Register(key, staticFetcher())

	failure := errors.New("nope")
	var handled error
	var settled error
	settledCalled := false

	err := qc.Mutate(context.Background(), key, funcMutation{
		kind:   "delete",
		apply:  func(items []entities.GroceryItem) []entities.GroceryItem { return items },
		commit: func(context.Context) error { return failure },
	}, cache.MutateOptions{
		OnError: func(err error) { handled = err },
		OnSettled: func(err error) {
			settledCalled = true
			settled = err
		},
	})

	assert.ErrorIs(t, err, failure)
	assert.ErrorIs(t, handled, failure)
	assert.True(t, settledCalled)
	assert.ErrorIs(t, settled, failure)
	assert.Zero(t, sink.Count())
}

func TestStaleRefreshIsDropped(t *testing.T) {
	metrics := mocks.NewRecordingMetrics()
	qc := newCache(t, &mocks.RecordingSink{}, metrics)

	stale := []entities.GroceryItem{fixtures.Item("1", "Milk", 1, false)}
	fresh := []entities.GroceryItem{fixtures.Item("1", "Milk", 1, false), fixtures.Item("2", "Eggs", 6, false)}

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	qc.Register(key, func(context.Context) ([]entities.GroceryItem, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return stale, nil
		}
		return fresh, nil
	})

	type result struct {
		items []entities.GroceryItem
		err   error
	}
	slow := make(chan result, 1)
	go func() {
		items, err := qc.Fetch(context.Background(), key)
		slow <- result{items, err}
	}()
	<-started

	err := qc.Mutate(context.Background(), key, funcMutation{
		kind: "create",
		apply: func(items []entities.GroceryItem) []entities.GroceryItem {
			return append(items, fresh[1])
		},
		commit: func(context.Context) error { return nil },
	}, cache.MutateOptions{})
	require.NoError(t, err)

	close(release)
	res := <-slow

	require.NoError(t, res.err)
	assert.Equal(t, fresh, res.items)
	assert.Equal(t, fresh, qc.Read(key).Items)
	assert.Equal(t, 1, metrics.Stale())
}

func TestMutateAsyncAppliesBeforeReturning(t *testing.T) {
	qc := newCache(t, &mocks.RecordingSink{}, mocks.NewRecordingMetrics())
	qc.Register(key, staticFetcher())

	release := make(chan struct{})
	eggs := fixtures.Item("9", "Eggs", 12, false)

	done := qc.MutateAsync(context.Background(), key, funcMutation{
		kind:  "create",
		apply: func(items []entities.GroceryItem) []entities.GroceryItem { return append(items, eggs) },
		commit: func(context.Context) error {
			<-release
			return nil
		},
	}, cache.MutateOptions{})

	assert.Equal(t, []entities.GroceryItem{eggs}, qc.Read(key).Items)

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("mutation never settled")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	qc := newCache(t, &mocks.RecordingSink{}, mocks.NewRecordingMetrics())
	qc.Register(key, staticFetcher(fixtures.Item("1", "Milk", 1, false)))

	var count atomic.Int32
	unsubscribe := qc.Subscribe(key, func(string, []entities.GroceryItem) { count.Add(1) })

	_, err := qc.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int32(1), count.Load())

	unsubscribe()
	_, err = qc.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int32(1), count.Load())
}

func TestRealMutations(t *testing.T) {
	store := &mocks.MockRemoteStore{}
	milk := fixtures.Item("1", "Milk", 1, false)
	eggs := fixtures.Item("2", "Eggs", 6, false)

	create := cache.NewCreateMutation(store, eggs)
	assert.Equal(t, []entities.GroceryItem{milk, eggs}, create.Apply([]entities.GroceryItem{milk}))

	update := cache.NewUpdateMutation(store, milk.ID, entities.BoughtPatch(true))
	updated := update.Apply([]entities.GroceryItem{milk, eggs})
	assert.True(t, updated[0].Bought)
	assert.False(t, updated[1].Bought)

	del := cache.NewDeleteMutation(store, valueobjects.MustItemID("2"))
	assert.Equal(t, []entities.GroceryItem{milk}, del.Apply([]entities.GroceryItem{milk, eggs}))

	store.On("Create", mock.Anything, entities.NewItem{ID: eggs.ID, Title: "Eggs", Amount: 6}).Return(eggs, nil).Once()
	require.NoError(t, create.Commit(context.Background()))
	assert.Equal(t, eggs, create.Created)
	store.AssertExpectations(t)
}

func TestResetDropsEntries(t *testing.T) {
	qc := newCache(t, &mocks.RecordingSink{}, mocks.NewRecordingMetrics())
	qc.Register(key, staticFetcher(fixtures.Item("1", "Milk", 1, false)))
	_, err := qc.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, qc.Keys())

	qc.Reset()
	assert.Empty(t, qc.Keys())

	// The fetcher survives a reset
	snap, err := qc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
}

func TestStaleSnapshotRefetchesInBackground(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Unix(1_700_000_000, 0).UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	qc := cache.NewQueryCache(nil, nil, zap.NewNop(), cache.Options{StaleAfter: time.Minute, Now: clock})
	defer qc.Close()

	var calls atomic.Int32
	qc.Register(key, func(context.Context) ([]entities.GroceryItem, error) {
		calls.Add(1)
		return nil, nil
	})

	_, err := qc.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	now.Add(int64(2 * time.Minute))
	_, err = qc.Get(context.Background(), key)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestInvalidateRefetches(t *testing.T) {
	sink := &mocks.RecordingSink{}
	qc := newCache(t, sink, mocks.NewRecordingMetrics())

	var calls atomic.Int32
	qc.Register(key, func(context.Context) ([]entities.GroceryItem, error) {
		if calls.Add(1) > 1 {
			return nil, errors.New("gone")
		}
		return nil, nil
	})

	qc.Invalidate(context.Background(), key)
	assert.True(t, qc.Read(key).Fetched)
	assert.Zero(t, sink.Count())

	qc.Invalidate(context.Background(), key)
	assert.Equal(t, 1, sink.Count())
	assert.Error(t, qc.Read(key).Err)
}
