package ports

import (
	"context"

	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/valueobjects"
)

// RemoteStore is the remote groceryItems resource. Each call is one round
// trip; implementations do not retry.
type RemoteStore interface {
	List(ctx context.Context) ([]entities.GroceryItem, error)
	Create(ctx context.Context, item entities.NewItem) (entities.GroceryItem, error)
	Update(ctx context.Context, id valueobjects.ItemID, patch entities.ItemPatch) (entities.GroceryItem, error)
	Delete(ctx context.Context, id valueobjects.ItemID) error
}

// ErrorSink receives failures nobody handled explicitly
type ErrorSink interface {
	Notify(ctx context.Context, source string, err error)
}

// ErrorSinkFunc adapts a function to ErrorSink
type ErrorSinkFunc func(ctx context.Context, source string, err error)

// Notify calls f
func (f ErrorSinkFunc) Notify(ctx context.Context, source string, err error) {
	f(ctx, source, err)
}

// Observer is told about every snapshot published for a cache key
type Observer func(key string, items []entities.GroceryItem)

// CacheMetrics records cache behaviour
type CacheMetrics interface {
	RecordMutation(kind, outcome string)
	RecordRefresh(outcome string)
	RecordStaleRefreshDropped()
	RecordMergeDecision(decision string)
}

// RemoteMetrics records remote store calls
type RemoteMetrics interface {
	RecordRemoteRequest(ctx context.Context, operation string, status int, seconds float64, err error)
}
