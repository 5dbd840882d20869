package remote

import (
	"context"
	"errors"
	"time"

	"grocerylist/application/ports"
	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/valueobjects"
	pkgerrors "grocerylist/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CircuitBreakerConfig holds configuration for the store circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultCircuitBreakerConfig returns a default configuration for circuit breaker
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// BreakingStore guards a RemoteStore with a circuit breaker. It rejects calls
// while open and never retries.
type BreakingStore struct {
	next   ports.RemoteStore
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakingStore wraps next
func NewBreakingStore(next ports.RemoteStore, config CircuitBreakerConfig, logger *zap.Logger) *BreakingStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Client errors say nothing about the health of the store
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return pkgerrors.IsNotFound(err) || pkgerrors.IsValidation(err)
		},
	})

	return &BreakingStore{next: next, cb: cb, logger: logger}
}

var _ ports.RemoteStore = (*BreakingStore)(nil)

// State reports the breaker state
func (s *BreakingStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakingStore) List(ctx context.Context) ([]entities.GroceryItem, error) {
	res, err := s.execute(OpList, func() (interface{}, error) {
		return s.next.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]entities.GroceryItem), nil
}

func (s *BreakingStore) Create(ctx context.Context, item entities.NewItem) (entities.GroceryItem, error) {
	res, err := s.execute(OpCreate, func() (interface{}, error) {
		return s.next.Create(ctx, item)
	})
	if err != nil {
		return entities.GroceryItem{}, err
	}
	return res.(entities.GroceryItem), nil
}

func (s *BreakingStore) Update(ctx context.Context, id valueobjects.ItemID, patch entities.ItemPatch) (entities.GroceryItem, error) {
	res, err := s.execute(OpUpdate, func() (interface{}, error) {
		return s.next.Update(ctx, id, patch)
	})
	if err != nil {
		return entities.GroceryItem{}, err
	}
	return res.(entities.GroceryItem), nil
}

func (s *BreakingStore) Delete(ctx context.Context, id valueobjects.ItemID) error {
	_, err := s.execute(OpDelete, func() (interface{}, error) {
		return nil, s.next.Delete(ctx, id)
	})
	return err
}

func (s *BreakingStore) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	res, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("Circuit breaker rejected request",
			zap.String("operation", op),
			zap.Error(err),
		)
		return nil, pkgerrors.NewUnavailableError("grocery store").
			WithCode(pkgerrors.CodeRemoteRequestFailed).
			WithCause(err).
			WithDetails(map[string]interface{}{"operation": op})
	}
	return res, err
}
