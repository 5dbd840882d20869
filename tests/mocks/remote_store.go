// Package mocks provides testify mocks of the application ports.
package mocks

import (
	"context"
	"sync"

	"grocerylist/application/ports"
	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/valueobjects"

	"github.com/stretchr/testify/mock"
)

// MockRemoteStore is a testify mock of ports.RemoteStore
type MockRemoteStore struct {
	mock.Mock
}

var _ ports.RemoteStore = (*MockRemoteStore)(nil)

func (m *MockRemoteStore) List(ctx context.Context) ([]entities.GroceryItem, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]entities.GroceryItem)
	return items, args.Error(1)
}

func (m *MockRemoteStore) Create(ctx context.Context, item entities.NewItem) (entities.GroceryItem, error) {
	args := m.Called(ctx, item)
	created, _ := args.Get(0).(entities.GroceryItem)
	return created, args.Error(1)
}

func (m *MockRemoteStore) Update(ctx context.Context, id valueobjects.ItemID, patch entities.ItemPatch) (entities.GroceryItem, error) {
	args := m.Called(ctx, id, patch)
	updated, _ := args.Get(0).(entities.GroceryItem)
	return updated, args.Error(1)
}

func (m *MockRemoteStore) Delete(ctx context.Context, id valueobjects.ItemID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// RecordingSink is an ErrorSink that remembers every notification
type RecordingSink struct {
	mu      sync.Mutex
	Sources []string
	Errors  []error
}

var _ ports.ErrorSink = (*RecordingSink)(nil)

func (s *RecordingSink) Notify(_ context.Context, source string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sources = append(s.Sources, source)
	s.Errors = append(s.Errors, err)
}

// Count returns the number of notifications received
func (s *RecordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Errors)
}

// RecordingMetrics counts cache and merge events
type RecordingMetrics struct {
	mu         sync.Mutex
	Mutations  map[string]int
	Refreshes  map[string]int
	StaleDrops int
	Decisions  map[string]int
}

var _ ports.CacheMetrics = (*RecordingMetrics)(nil)

// NewRecordingMetrics creates an empty recorder
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		Mutations: make(map[string]int),
		Refreshes: make(map[string]int),
		Decisions: make(map[string]int),
	}
}

func (r *RecordingMetrics) RecordMutation(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Mutations[kind+":"+outcome]++
}

func (r *RecordingMetrics) RecordRefresh(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Refreshes[outcome]++
}

func (r *RecordingMetrics) RecordStaleRefreshDropped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StaleDrops++
}

func (r *RecordingMetrics) RecordMergeDecision(decision string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Decisions[decision]++
}

// Decision returns how often decision was recorded
func (r *RecordingMetrics) Decision(decision string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Decisions[decision]
}

// Mutation returns how often kind ended with outcome
func (r *RecordingMetrics) Mutation(kind, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Mutations[kind+":"+outcome]
}

// Stale returns the number of dropped refreshes
func (r *RecordingMetrics) Stale() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.StaleDrops
}
