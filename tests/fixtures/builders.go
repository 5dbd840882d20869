// Package fixtures builds grocery items for tests.
package fixtures

import (
	"time"

	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/valueobjects"
)

// BaseTime is the createdAt of every built item unless overridden
var BaseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// ItemBuilder helps create test items with default values
type ItemBuilder struct {
	id        string
	title     string
	amount    float64
	bought    bool
	createdAt time.Time
}

func NewItemBuilder() *ItemBuilder {
	return &ItemBuilder{
		id:        "1",
		title:     "Milk",
		amount:    1,
		createdAt: BaseTime,
	}
}

func (b *ItemBuilder) WithID(id string) *ItemBuilder {
	b.id = id
	return b
}

func (b *ItemBuilder) WithTitle(title string) *ItemBuilder {
	b.title = title
	return b
}

func (b *ItemBuilder) WithAmount(amount float64) *ItemBuilder {
	b.amount = amount
	return b
}

func (b *ItemBuilder) Bought() *ItemBuilder {
	b.bought = true
	return b
}

func (b *ItemBuilder) WithCreatedAt(t time.Time) *ItemBuilder {
	b.createdAt = t
	return b
}

func (b *ItemBuilder) Build() entities.GroceryItem {
	return entities.GroceryItem{
		ID:        valueobjects.MustItemID(b.id),
		Title:     b.title,
		Amount:    b.amount,
		Bought:    b.bought,
		CreatedAt: b.createdAt,
	}
}

// Item is a shortcut for an item with the given fields
func Item(id, title string, amount float64, bought bool) entities.GroceryItem {
	b := NewItemBuilder().WithID(id).WithTitle(title).WithAmount(amount)
	if bought {
		b.Bought()
	}
	return b.Build()
}
