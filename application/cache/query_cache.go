package cache

import (
	"context"
	"sync"
	"time"

	"grocerylist/application/ports"
	"grocerylist/domain/core/entities"
	pkgerrors "grocerylist/pkg/errors"

	"go.uber.org/zap"
)

// Fetcher loads the authoritative collection for a key
type Fetcher func(ctx context.Context) ([]entities.GroceryItem, error)

// Options tunes the cache
type Options struct {
	// ReadRetries is the number of extra attempts for a failed fetch
	ReadRetries int
	// ReadRetryDelay is the pause between fetch attempts
	ReadRetryDelay time.Duration
	// StaleAfter triggers a background refetch from Get once a snapshot is older; zero disables it
	StaleAfter time.Duration
	// GCAfter evicts entries that nobody observed or read for this long; zero disables eviction
	GCAfter time.Duration
	// Now is the clock, overridable in tests
	Now func() time.Time
}

// DefaultOptions returns one read retry after a second and five minute
// garbage collection. Mutations are never retried.
func DefaultOptions() Options {
	return Options{
		ReadRetries:    1,
		ReadRetryDelay: time.Second,
		GCAfter:        5 * time.Minute,
	}
}

// Snapshot is a point-in-time copy of one cache entry
type Snapshot struct {
	Key        string
	Items      []entities.GroceryItem
	Generation uint64
	Fetched    bool
	FetchedAt  time.Time
	Fetching   bool
	Err        error
}

// MutateOptions carries per-call settlement handlers
type MutateOptions struct {
	// OnError replaces the global error sink for this mutation
	OnError func(err error)
	// OnSettled runs after the settle refetch, with the mutation error
	OnSettled func(err error)
}

type entry struct {
	items      []entities.GroceryItem
	generation uint64
	fetched    bool
	fetchedAt  time.Time
	touchedAt  time.Time
	inFlight   int
	lastErr    error
}

// QueryCache holds the last known collection per key and applies mutations
// optimistically. Every refetch takes a new generation for its key; a result
// only commits while its generation is still the highest one issued.
type QueryCache struct {
	mu           sync.Mutex
	entries      map[string]*entry
	fetchers     map[string]Fetcher
	observers    map[string]map[int]ports.Observer
	nextObserver int

	sink    ports.ErrorSink
	metrics ports.CacheMetrics
	logger  *zap.Logger
	opts    Options

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewQueryCache creates a cache. A nil sink or metrics is replaced by a no-op.
func NewQueryCache(sink ports.ErrorSink, metrics ports.CacheMetrics, logger *zap.Logger, opts Options) *QueryCache {
	if sink == nil {
		sink = ports.ErrorSinkFunc(func(context.Context, string, error) {})
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReadRetries < 0 {
		opts.ReadRetries = 0
	}

	c := &QueryCache{
		entries:   make(map[string]*entry),
		fetchers:  make(map[string]Fetcher),
		observers: make(map[string]map[int]ports.Observer),
		sink:      sink,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
		stopCh:    make(chan struct{}),
	}

	if opts.GCAfter > 0 {
		go c.collectGarbage()
	}

	return c
}

// Register sets the fetcher used to refresh key
func (c *QueryCache) Register(key string, fetch Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[key] = fetch
}

// Read returns the current snapshot without blocking, even while a refresh
// for the key is in flight.
func (c *QueryCache) Read(key string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.touchedAt = c.opts.Now()
	return c.snapshotLocked(key, e)
}

// Get returns the snapshot, fetching first if the key was never loaded. A
// stale snapshot is returned as is while a background refetch runs.
func (c *QueryCache) Get(ctx context.Context, key string) (Snapshot, error) {
	snap := c.Read(key)
	if !snap.Fetched {
		if _, err := c.Fetch(ctx, key); err != nil {
			return c.Read(key), err
		}
		return c.Read(key), nil
	}

	if c.opts.StaleAfter > 0 && !snap.Fetching && c.opts.Now().Sub(snap.FetchedAt) > c.opts.StaleAfter {
		go func() {
			_, _ = c.Fetch(context.Background(), key)
		}()
	}
	return snap, nil
}

// Fetch refreshes key from its fetcher and returns the committed collection.
func (c *QueryCache) Fetch(ctx context.Context, key string) ([]entities.GroceryItem, error) {
	return c.refresh(ctx, key)
}

// Invalidate refetches key. Failures go to the error sink.
func (c *QueryCache) Invalidate(ctx context.Context, key string) {
	_, _ = c.refresh(ctx, key)
}

// Subscribe registers an observer for key and returns its cancel function
func (c *QueryCache) Subscribe(key string, obs ports.Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextObserver++
	id := c.nextObserver
	if c.observers[key] == nil {
		c.observers[key] = make(map[int]ports.Observer)
	}
	c.observers[key][id] = obs

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers[key], id)
		if len(c.observers[key]) == 0 {
			delete(c.observers, key)
		}
	}
}

// Mutate runs the optimistic update protocol and blocks until the mutation
// has settled and the key has been refetched. It returns the remote error.
func (c *QueryCache) Mutate(ctx context.Context, key string, m Mutation, opts MutateOptions) error {
	tx := c.begin(key, m)
	return c.settle(ctx, tx, opts)
}

// MutateAsync applies m locally before returning, then commits and settles it
// in the background. The channel yields the remote error once settled.
func (c *QueryCache) MutateAsync(ctx context.Context, key string, m Mutation, opts MutateOptions) <-chan error {
	tx := c.begin(key, m)
	done := make(chan error, 1)
	go func() {
		done <- c.settle(ctx, tx, opts)
		close(done)
	}()
	return done
}

// Reset drops every entry. Registered fetchers and observers are kept.
func (c *QueryCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Keys lists the keys currently held
func (c *QueryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Close stops the garbage collector
func (c *QueryCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

type transaction struct {
	key      string
	mutation Mutation
	previous []entities.GroceryItem
	entry    *entry
}

func (c *QueryCache) begin(key string, m Mutation) *transaction {
	c.mu.Lock()
	e := c.entryLocked(key)
	// Any refresh already in flight now holds an older generation and will be dropped
	e.generation++
	e.touchedAt = c.opts.Now()
	tx := &transaction{
		key:      key,
		mutation: m,
		previous: entities.CloneItems(e.items),
		entry:    e,
	}
	e.items = m.Apply(entities.CloneItems(e.items))
	items, observers := entities.CloneItems(e.items), c.observersLocked(key)
	c.mu.Unlock()

	c.publish(key, items, observers)
	return tx
}

func (c *QueryCache) settle(ctx context.Context, tx *transaction, opts MutateOptions) error {
	kind := tx.mutation.Kind()
	err := tx.mutation.Commit(ctx)

	if err != nil {
		c.mu.Lock()
		tx.entry.items = tx.previous
		tx.entry.generation++
		items, observers := entities.CloneItems(tx.entry.items), c.observersLocked(tx.key)
		c.mu.Unlock()

		c.publish(tx.key, items, observers)
		c.metrics.RecordMutation(kind, "rolled_back")
		c.logger.Warn("Mutation failed, rolled back",
			zap.String("key", tx.key),
			zap.String("mutation", kind),
			zap.Error(err),
		)

		if opts.OnError != nil {
			opts.OnError(err)
		} else {
			c.sink.Notify(ctx, "mutation:"+kind, err)
		}
	} else {
		c.metrics.RecordMutation(kind, "committed")
	}

	if c.hasFetcher(tx.key) {
		_, _ = c.refresh(ctx, tx.key)
	}

	if opts.OnSettled != nil {
		opts.OnSettled(err)
	}
	return err
}

func (c *QueryCache) refresh(ctx context.Context, key string) ([]entities.GroceryItem, error) {
	c.mu.Lock()
	fetch := c.fetchers[key]
	if fetch == nil {
		c.mu.Unlock()
		return nil, pkgerrors.NewInternalError("no fetcher registered for cache key " + key)
	}
	e := c.entryLocked(key)
	e.generation++
	gen := e.generation
	e.inFlight++
	c.mu.Unlock()

	items, err := c.fetchWithRetry(ctx, fetch)

	c.mu.Lock()
	e.inFlight--
	if gen != e.generation {
		current := entities.CloneItems(e.items)
		c.mu.Unlock()

		c.metrics.RecordStaleRefreshDropped()
		c.logger.Debug("Dropped superseded refresh",
			zap.String("key", key),
			zap.Uint64("generation", gen),
		)
		return current, nil
	}

	if err != nil {
		e.lastErr = err
		current := entities.CloneItems(e.items)
		c.mu.Unlock()

		c.metrics.RecordRefresh("failed")
		c.sink.Notify(ctx, "query:"+key, err)
		return current, err
	}

	e.items = entities.CloneItems(items)
	if e.items == nil {
		e.items = []entities.GroceryItem{}
	}
	e.fetched = true
	e.fetchedAt = c.opts.Now()
	e.lastErr = nil
	committed, observers := entities.CloneItems(e.items), c.observersLocked(key)
	c.mu.Unlock()

	c.metrics.RecordRefresh("committed")
	c.publish(key, committed, observers)
	return entities.CloneItems(committed), nil
}

func (c *QueryCache) fetchWithRetry(ctx context.Context, fetch Fetcher) ([]entities.GroceryItem, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.ReadRetries; attempt++ {
		if attempt > 0 && c.opts.ReadRetryDelay > 0 {
			timer := time.NewTimer(c.opts.ReadRetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		items, err := fetch(ctx)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *QueryCache) hasFetcher(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchers[key] != nil
}

func (c *QueryCache) entryLocked(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{touchedAt: c.opts.Now()}
		c.entries[key] = e
	}
	return e
}

func (c *QueryCache) snapshotLocked(key string, e *entry) Snapshot {
	return Snapshot{
		Key:        key,
		Items:      entities.CloneItems(e.items),
		Generation: e.generation,
		Fetched:    e.fetched,
		FetchedAt:  e.fetchedAt,
		Fetching:   e.inFlight > 0,
		Err:        e.lastErr,
	}
}

func (c *QueryCache) observersLocked(key string) []ports.Observer {
	obs := make([]ports.Observer, 0, len(c.observers[key]))
	for _, o := range c.observers[key] {
		obs = append(obs, o)
	}
	return obs
}

func (c *QueryCache) publish(key string, items []entities.GroceryItem, observers []ports.Observer) {
	for _, obs := range observers {
		obs(key, entities.CloneItems(items))
	}
}

// collectGarbage periodically evicts entries nobody is using
func (c *QueryCache) collectGarbage() {
	interval := c.opts.GCAfter / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictIdle()
		}
	}
}

func (c *QueryCache) evictIdle() {
	if c.opts.GCAfter <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	for key, e := range c.entries {
		if e.inFlight > 0 || len(c.observers[key]) > 0 {
			continue
		}
		if now.Sub(e.touchedAt) > c.opts.GCAfter {
			delete(c.entries, key)
			c.logger.Debug("Evicted idle cache entry", zap.String("key", key))
		}
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordMutation(string, string) {}
func (noopMetrics) RecordRefresh(string)          {}
func (noopMetrics) RecordStaleRefreshDropped()    {}
func (noopMetrics) RecordMergeDecision(string)    {}
