package services

import (
	"grocerylist/domain/config"
	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/valueobjects"
)

// CreateAction is the outcome of the create rule
type CreateAction string

const (
	// ActionInsert creates a new record
	ActionInsert CreateAction = "insert"
	// ActionFold adds the submitted amount to an existing unbought item
	ActionFold CreateAction = "fold"
)

// ToggleAction is the outcome of the toggle-bought rule
type ToggleAction string

const (
	// ActionToggle flips the bought flag in place
	ActionToggle ToggleAction = "toggle"
	// ActionConsolidate folds the toggled item into a same-titled sibling and deletes it
	ActionConsolidate ToggleAction = "consolidate"
)

// CreateDecision describes what an add-form submission turns into
type CreateDecision struct {
	Action    CreateAction
	Target    entities.GroceryItem // set for ActionFold
	NewAmount float64              // target amount after folding
	Title     string
	Amount    float64
}

// ToggleDecision describes what a bought toggle turns into
type ToggleDecision struct {
	Action    ToggleAction
	Item      entities.GroceryItem
	Bought    bool                 // new flag for ActionToggle
	Target    entities.GroceryItem // set for ActionConsolidate
	NewAmount float64              // target amount after consolidation
	Discard   valueobjects.ItemID  // item removed by ActionConsolidate
}

// MergePolicy decides how duplicate titles collapse into one running quantity.
// It has no side effects.
type MergePolicy struct {
	cfg *config.DomainConfig
}

// NewMergePolicy creates a policy using cfg; nil means defaults
func NewMergePolicy(cfg *config.DomainConfig) *MergePolicy {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &MergePolicy{cfg: cfg}
}

// DecideCreate folds into the first unbought item whose title matches,
// otherwise inserts.
func (p *MergePolicy) DecideCreate(title string, amount float64, items []entities.GroceryItem) CreateDecision {
	decision := CreateDecision{Action: ActionInsert, Title: title, Amount: amount}
	if !p.cfg.FoldOnCreate {
		return decision
	}

	for _, item := range items {
		if !item.Bought && item.SameTitle(title) {
			decision.Action = ActionFold
			decision.Target = item
			decision.NewAmount = item.Amount + amount
			return decision
		}
	}
	return decision
}

// DecideToggle consolidates an unbought item into the first other item with
// the same title, bought or not. Un-buying never consolidates.
func (p *MergePolicy) DecideToggle(item entities.GroceryItem, items []entities.GroceryItem) ToggleDecision {
	decision := ToggleDecision{Action: ActionToggle, Item: item, Bought: !item.Bought}
	if item.Bought || !p.cfg.ConsolidateOnBought {
		return decision
	}

	for _, other := range items {
		if other.ID.Equals(item.ID) || !other.SameTitle(item.Title) {
			continue
		}
		decision.Action = ActionConsolidate
		decision.Target = other
		decision.NewAmount = other.Amount + item.Amount
		decision.Discard = item.ID
		return decision
	}
	return decision
}

var defaultPolicy = NewMergePolicy(nil)

// DecideCreate applies the default policy
func DecideCreate(title string, amount float64, items []entities.GroceryItem) CreateDecision {
	return defaultPolicy.DecideCreate(title, amount, items)
}

// DecideToggle applies the default policy
func DecideToggle(item entities.GroceryItem, items []entities.GroceryItem) ToggleDecision {
	return defaultPolicy.DecideToggle(item, items)
}
