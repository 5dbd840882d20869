package entities

import (
	"strings"
	"time"

	"grocerylist/domain/core/valueobjects"
)

// GroceryItem is a single line on the grocery list
type GroceryItem struct {
	ID        valueobjects.ItemID `json:"id"`
	Title     string              `json:"title"`
	Amount    float64             `json:"amount"`
	Bought    bool                `json:"bought"`
	CreatedAt time.Time           `json:"createdAt"`
}

// NewGroceryItem builds an unbought item ready to be sent to the store
func NewGroceryItem(id valueobjects.ItemID, title string, amount float64, now time.Time) GroceryItem {
	return GroceryItem{
		ID:        id,
		Title:     title,
		Amount:    amount,
		Bought:    false,
		CreatedAt: now.UTC(),
	}
}

// SameTitle compares titles case-insensitively, ignoring surrounding spaces.
func (i GroceryItem) SameTitle(title string) bool {
	return NormalizeTitle(i.Title) == NormalizeTitle(title)
}

// Apply returns a copy of the item with the non-nil patch fields merged in.
func (i GroceryItem) Apply(p ItemPatch) GroceryItem {
	if p.Title != nil {
		i.Title = *p.Title
	}
	if p.Amount != nil {
		i.Amount = *p.Amount
	}
	if p.Bought != nil {
		i.Bought = *p.Bought
	}
	return i
}

// NormalizeTitle is the key used for title comparisons
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// ItemPatch is a partial update. Nil fields are left untouched.
type ItemPatch struct {
	Title  *string  `json:"title,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
	Bought *bool    `json:"bought,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p ItemPatch) IsEmpty() bool {
	return p.Title == nil && p.Amount == nil && p.Bought == nil
}

// AmountPatch sets only the amount
func AmountPatch(amount float64) ItemPatch {
	return ItemPatch{Amount: &amount}
}

// BoughtPatch sets only the bought flag
func BoughtPatch(bought bool) ItemPatch {
	return ItemPatch{Bought: &bought}
}

// EditPatch sets title and amount, as submitted by the edit form
func EditPatch(title string, amount float64) ItemPatch {
	return ItemPatch{Title: &title, Amount: &amount}
}

// NewItem carries the fields of an item about to be created. A zero ID is
// assigned by the store client.
type NewItem struct {
	ID     valueobjects.ItemID `json:"-"`
	Title  string              `json:"title"`
	Amount float64             `json:"amount"`
}

// CloneItems copies a collection so callers never share backing arrays
func CloneItems(items []GroceryItem) []GroceryItem {
	if items == nil {
		return nil
	}
	out := make([]GroceryItem, len(items))
	copy(out, items)
	return out
}

// FindItem returns the item with the given id
func FindItem(items []GroceryItem, id valueobjects.ItemID) (GroceryItem, bool) {
	for _, item := range items {
		if item.ID.Equals(id) {
			return item, true
		}
	}
	return GroceryItem{}, false
}
