package services

import (
	"context"
	"fmt"
	"time"

	"grocerylist/application/cache"
	"grocerylist/application/ports"
	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/validators"
	"grocerylist/domain/core/valueobjects"
	domainservices "grocerylist/domain/services"
	pkgerrors "grocerylist/pkg/errors"

	"go.uber.org/zap"
)

// ItemsKey is the cache key holding the whole grocery collection
const ItemsKey = "groceryItems"

// Merge decision labels recorded in metrics
const (
	DecisionInsert              = "insert"
	DecisionFold                = "fold"
	DecisionToggle              = "toggle"
	DecisionConsolidate         = "consolidate"
	DecisionConsolidateFallback = "consolidate_fallback"
)

// AddResult reports what an add-form submission turned into
type AddResult struct {
	Action domainservices.CreateAction `json:"action"`
	Item   entities.GroceryItem        `json:"item"`
}

// ToggleResult reports what a bought toggle turned into
type ToggleResult struct {
	Action domainservices.ToggleAction `json:"action"`
	// Item is the record that remains: the toggled item, or the sibling it was consolidated into
	Item entities.GroceryItem `json:"item"`
	// Removed is set when the toggled item was deleted by consolidation
	Removed *valueobjects.ItemID `json:"removed,omitempty"`
	// FellBack is true when consolidation failed and a plain toggle was applied instead
	FellBack bool `json:"fellBack,omitempty"`
}

// ListCounts summarises a grouped list
type ListCounts struct {
	ToBuy     int `json:"toBuy"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// GroupedList is the list screen: unbought items first, then bought ones,
// each in collection order.
type GroupedList struct {
	ToBuy        []entities.GroceryItem `json:"toBuy"`
	Completed    []entities.GroceryItem `json:"completed"`
	Counts       ListCounts             `json:"counts"`
	Empty        bool                   `json:"empty"`
	EmptyMessage string                 `json:"emptyMessage,omitempty"`
	Fetching     bool                   `json:"fetching"`
}

// DeletePrompt is the confirmation shown before a delete
type DeletePrompt struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Confirm string `json:"confirm"`
}

// EmptyListMessage is shown when the collection has no items
const EmptyListMessage = "Your grocery list is empty.\nAdd your first item above!"

// GroceryService runs the list operations through the query cache and
// applies the merge policy.
type GroceryService struct {
	store     ports.RemoteStore
	cache     *cache.QueryCache
	policy    *domainservices.MergePolicy
	validator *validators.ItemValidator
	ids       valueobjects.IDGenerator
	metrics   ports.CacheMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewGroceryService creates the service and registers the collection fetcher
func NewGroceryService(
	store ports.RemoteStore,
	queryCache *cache.QueryCache,
	policy *domainservices.MergePolicy,
	validator *validators.ItemValidator,
	ids valueobjects.IDGenerator,
	metrics ports.CacheMetrics,
	logger *zap.Logger,
) *GroceryService {
	if policy == nil {
		policy = domainservices.NewMergePolicy(nil)
	}
	if validator == nil {
		validator = validators.NewItemValidator(nil)
	}
	if ids == nil {
		ids = valueobjects.TimeOrderedIDs{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	queryCache.Register(ItemsKey, store.List)

	return &GroceryService{
		store:     store,
		cache:     queryCache,
		policy:    policy,
		validator: validator,
		ids:       ids,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate checks a form without touching the store
func (s *GroceryService) Validate(form validators.ItemForm) (validators.ValidItem, validators.FieldErrors) {
	return s.validator.Validate(form)
}

// List returns the grouped collection, loading it on first use
func (s *GroceryService) List(ctx context.Context) (GroupedList, error) {
	snap, err := s.cache.Get(ctx, ItemsKey)
	if err != nil {
		return GroupedList{}, err
	}
	return Group(snap.Items, snap.Fetching), nil
}

// Group partitions items by bought state, keeping collection order
func Group(items []entities.GroceryItem, fetching bool) GroupedList {
	list := GroupedList{
		ToBuy:     []entities.GroceryItem{},
		Completed: []entities.GroceryItem{},
		Fetching:  fetching,
	}
	for _, item := range items {
		if item.Bought {
			list.Completed = append(list.Completed, item)
		} else {
			list.ToBuy = append(list.ToBuy, item)
		}
	}
	list.Counts = ListCounts{
		ToBuy:     len(list.ToBuy),
		Completed: len(list.Completed),
		Total:     len(items),
	}
	if len(items) == 0 {
		list.Empty = true
		list.EmptyMessage = EmptyListMessage
	}
	return list
}

// AddItem validates the form and either folds the amount into an unbought
// item with the same title or creates a new one. An invalid form never
// reaches the store.
func (s *GroceryService) AddItem(ctx context.Context, form validators.ItemForm) (AddResult, error) {
	valid, err := s.validator.Check(form)
	if err != nil {
		return AddResult{}, err
	}

	snap, err := s.cache.Get(ctx, ItemsKey)
	if err != nil {
		return AddResult{}, err
	}

	decision := s.policy.DecideCreate(valid.Title, valid.Amount, snap.Items)

	switch decision.Action {
	case domainservices.ActionFold:
		s.recordDecision(DecisionFold)
		s.logger.Debug("Folding submitted amount into existing item",
			zap.String("id", decision.Target.ID.String()),
			zap.Float64("amount", decision.NewAmount),
		)

		m := cache.NewUpdateMutation(s.store, decision.Target.ID, entities.AmountPatch(decision.NewAmount))
		if err := s.cache.Mutate(ctx, ItemsKey, m, cache.MutateOptions{}); err != nil {
			return AddResult{}, err
		}
		item := decision.Target
		item.Amount = decision.NewAmount
		if !m.Updated.ID.IsZero() {
			item = m.Updated
		}
		return AddResult{Action: decision.Action, Item: item}, nil

	default:
		s.recordDecision(DecisionInsert)

		item := entities.NewGroceryItem(s.ids.NewID(), valid.Title, valid.Amount, s.now().Truncate(time.Millisecond))
		m := cache.NewCreateMutation(s.store, item)
		if err := s.cache.Mutate(ctx, ItemsKey, m, cache.MutateOptions{}); err != nil {
			return AddResult{}, err
		}
		if !m.Created.ID.IsZero() {
			item = m.Created
		}
		return AddResult{Action: decision.Action, Item: item}, nil
	}
}

// ToggleBought flips the bought flag of id. Marking an item bought while
// another item shares its title consolidates the two: the sibling takes the
// summed amount and the toggled item is deleted. If the consolidating update
// fails, the item is toggled in place instead.
func (s *GroceryService) ToggleBought(ctx context.Context, id valueobjects.ItemID) (ToggleResult, error) {
	snap, err := s.cache.Get(ctx, ItemsKey)
	if err != nil {
		return ToggleResult{}, err
	}
	item, ok := entities.FindItem(snap.Items, id)
	if !ok {
		return ToggleResult{}, pkgerrors.NewNotFoundError("grocery item").
			WithDetails(map[string]interface{}{"id": id.String()})
	}

	decision := s.policy.DecideToggle(item, snap.Items)
	if decision.Action != domainservices.ActionConsolidate {
		s.recordDecision(DecisionToggle)
		return s.toggle(ctx, item, decision.Bought, false)
	}

	s.recordDecision(DecisionConsolidate)

	var consolidateErr error
	update := cache.NewUpdateMutation(s.store, decision.Target.ID, entities.AmountPatch(decision.NewAmount))
	err = s.cache.Mutate(ctx, ItemsKey, update, cache.MutateOptions{
		OnError: func(err error) { consolidateErr = err },
	})
	if err != nil {
		s.recordDecision(DecisionConsolidateFallback)
		s.logger.Warn("Consolidation failed, toggling item instead",
			zap.String("id", item.ID.String()),
			zap.String("target", decision.Target.ID.String()),
			zap.Error(consolidateErr),
		)
		return s.toggle(ctx, item, decision.Bought, true)
	}

	if err := s.cache.Mutate(ctx, ItemsKey, cache.NewDeleteMutation(s.store, item.ID), cache.MutateOptions{}); err != nil {
		return ToggleResult{}, err
	}

	target := decision.Target
	target.Amount = decision.NewAmount
	if !update.Updated.ID.IsZero() {
		target = update.Updated
	}
	removed := item.ID
	return ToggleResult{Action: domainservices.ActionConsolidate, Item: target, Removed: &removed}, nil
}

func (s *GroceryService) toggle(ctx context.Context, item entities.GroceryItem, bought, fellBack bool) (ToggleResult, error) {
	m := cache.NewUpdateMutation(s.store, item.ID, entities.BoughtPatch(bought))
	if err := s.cache.Mutate(ctx, ItemsKey, m, cache.MutateOptions{}); err != nil {
		return ToggleResult{}, err
	}
	item.Bought = bought
	if !m.Updated.ID.IsZero() {
		item = m.Updated
	}
	return ToggleResult{Action: domainservices.ActionToggle, Item: item, FellBack: fellBack}, nil
}

// EditItem validates the edit form and replaces title and amount of id
func (s *GroceryService) EditItem(ctx context.Context, id valueobjects.ItemID, form validators.ItemForm) (entities.GroceryItem, error) {
	valid, err := s.validator.Check(form)
	if err != nil {
		return entities.GroceryItem{}, err
	}

	m := cache.NewUpdateMutation(s.store, id, entities.EditPatch(valid.Title, valid.Amount))
	if err := s.cache.Mutate(ctx, ItemsKey, m, cache.MutateOptions{}); err != nil {
		return entities.GroceryItem{}, err
	}
	if !m.Updated.ID.IsZero() {
		return m.Updated, nil
	}

	item, _ := entities.FindItem(s.cache.Read(ItemsKey).Items, id)
	return item, nil
}

// DeleteItem removes id. Deleting an item that no longer exists fails with a
// not found error and leaves the collection as it was.
func (s *GroceryService) DeleteItem(ctx context.Context, id valueobjects.ItemID) error {
	return s.cache.Mutate(ctx, ItemsKey, cache.NewDeleteMutation(s.store, id), cache.MutateOptions{})
}

// DeletePrompt returns the confirmation text for deleting id
func (s *GroceryService) DeletePrompt(ctx context.Context, id valueobjects.ItemID) (DeletePrompt, error) {
	snap, err := s.cache.Get(ctx, ItemsKey)
	if err != nil {
		return DeletePrompt{}, err
	}
	item, ok := entities.FindItem(snap.Items, id)
	if !ok {
		return DeletePrompt{}, pkgerrors.NewNotFoundError("grocery item").
			WithDetails(map[string]interface{}{"id": id.String()})
	}
	return DeletePrompt{
		Title:   fmt.Sprintf("Delete %s?", item.Title),
		Message: fmt.Sprintf("Are you sure you want to delete %q? This action cannot be undone.", item.Title),
		Confirm: "Delete",
	}, nil
}

// Refresh refetches the collection
func (s *GroceryService) Refresh(ctx context.Context) (GroupedList, error) {
	items, err := s.cache.Fetch(ctx, ItemsKey)
	if err != nil {
		return GroupedList{}, err
	}
	return Group(items, false), nil
}

// Restart drops every cached entry and loads the collection again
func (s *GroceryService) Restart(ctx context.Context) (GroupedList, error) {
	s.logger.Info("Restarting session, clearing cache")
	s.cache.Reset()
	return s.Refresh(ctx)
}

func (s *GroceryService) recordDecision(decision string) {
	if s.metrics != nil {
		s.metrics.RecordMergeDecision(decision)
	}
}
