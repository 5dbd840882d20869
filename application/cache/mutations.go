package cache

import (
	"context"

	"grocerylist/application/ports"
	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/valueobjects"
)

// Mutation is a change applied locally first and then committed remotely
type Mutation interface {
	// Kind names the mutation for logs and metrics
	Kind() string
	// Apply returns the collection with the change applied; items may be modified
	Apply(items []entities.GroceryItem) []entities.GroceryItem
	// Commit performs the remote call
	Commit(ctx context.Context) error
}

// CreateMutation appends a new item
type CreateMutation struct {
	Store ports.RemoteStore
	Item  entities.GroceryItem

	// Created holds the stored item after a successful commit
	Created entities.GroceryItem
}

// NewCreateMutation builds a create for item
func NewCreateMutation(store ports.RemoteStore, item entities.GroceryItem) *CreateMutation {
	return &CreateMutation{Store: store, Item: item}
}

func (m *CreateMutation) Kind() string { return "create" }

func (m *CreateMutation) Apply(items []entities.GroceryItem) []entities.GroceryItem {
	return append(items, m.Item)
}

func (m *CreateMutation) Commit(ctx context.Context) error {
	created, err := m.Store.Create(ctx, entities.NewItem{
		ID:     m.Item.ID,
		Title:  m.Item.Title,
		Amount: m.Item.Amount,
	})
	if err != nil {
		return err
	}
	m.Created = created
	return nil
}

// UpdateMutation merges a patch into one item
type UpdateMutation struct {
	Store ports.RemoteStore
	ID    valueobjects.ItemID
	Patch entities.ItemPatch

	// Updated holds the stored item after a successful commit
	Updated entities.GroceryItem
}

// NewUpdateMutation builds an update of id
func NewUpdateMutation(store ports.RemoteStore, id valueobjects.ItemID, patch entities.ItemPatch) *UpdateMutation {
	return &UpdateMutation{Store: store, ID: id, Patch: patch}
}

func (m *UpdateMutation) Kind() string { return "update" }

func (m *UpdateMutation) Apply(items []entities.GroceryItem) []entities.GroceryItem {
	for i := range items {
		if items[i].ID.Equals(m.ID) {
			items[i] = items[i].Apply(m.Patch)
		}
	}
	return items
}

func (m *UpdateMutation) Commit(ctx context.Context) error {
	updated, err := m.Store.Update(ctx, m.ID, m.Patch)
	if err != nil {
		return err
	}
	m.Updated = updated
	return nil
}

// DeleteMutation filters one item out
type DeleteMutation struct {
	Store ports.RemoteStore
	ID    valueobjects.ItemID
}

// NewDeleteMutation builds a delete of id
func NewDeleteMutation(store ports.RemoteStore, id valueobjects.ItemID) *DeleteMutation {
	return &DeleteMutation{Store: store, ID: id}
}

func (m *DeleteMutation) Kind() string { return "delete" }

func (m *DeleteMutation) Apply(items []entities.GroceryItem) []entities.GroceryItem {
	kept := items[:0]
	for _, item := range items {
		if !item.ID.Equals(m.ID) {
			kept = append(kept, item)
		}
	}
	return kept
}

func (m *DeleteMutation) Commit(ctx context.Context) error {
	return m.Store.Delete(ctx, m.ID)
}
