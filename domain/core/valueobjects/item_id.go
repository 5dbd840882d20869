package valueobjects

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ItemID is a value object representing a grocery item identifier.
// Identifiers are opaque: the remote store accepts whatever the client assigns.
type ItemID struct {
	value string
}

// NewItemIDFromString creates an ItemID from an existing string
func NewItemIDFromString(id string) (ItemID, error) {
	if id == "" {
		return ItemID{}, errors.New("item ID cannot be empty")
	}
	return ItemID{value: id}, nil
}

// MustItemID is NewItemIDFromString for literals known to be valid.
func MustItemID(id string) ItemID {
	itemID, err := NewItemIDFromString(id)
	if err != nil {
		panic(err)
	}
	return itemID
}

// String returns the string representation of the ItemID
func (id ItemID) String() string {
	return id.value
}

// Equals checks if two ItemIDs are equal
func (id ItemID) Equals(other ItemID) bool {
	return id.value == other.value
}

// IsZero checks if the ItemID is the zero value
func (id ItemID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id ItemID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(id.value)), nil
}

// UnmarshalJSON accepts both strings and bare numbers, since stores seeded
// with numeric ids are common.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return errors.New("ItemID must be a string")
		}
		id.value = unquoted
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return errors.New("ItemID must be a string")
	}
	id.value = s
	return nil
}

// IDGenerator assigns identifiers to new items
type IDGenerator interface {
	NewID() ItemID
}

// TimeOrderedIDs issues UUIDv7 identifiers: ordered by creation time and
// unique even for creates within the same clock tick.
type TimeOrderedIDs struct{}

// NewID returns a fresh UUIDv7 identifier
func (TimeOrderedIDs) NewID() ItemID {
	id, err := uuid.NewV7()
	if err != nil {
		return ItemID{value: uuid.New().String()}
	}
	return ItemID{value: id.String()}
}

// TimestampIDs issues decimal millisecond timestamps. Two creates within the
// same millisecond produce the same id.
type TimestampIDs struct {
	Now func() time.Time
}

// NewID returns the current unix time in milliseconds
func (g TimestampIDs) NewID() ItemID {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return ItemID{value: strconv.FormatInt(now().UnixMilli(), 10)}
}

// SequenceIDs is a deterministic generator, safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	Prefix string
	next   int
}

// NewID returns Prefix followed by the next sequence number
func (g *SequenceIDs) NewID() ItemID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return ItemID{value: g.Prefix + strconv.Itoa(g.next)}
}

// NewIDGenerator returns the generator for a configured strategy name.
func NewIDGenerator(strategy string) IDGenerator {
	switch strategy {
	case "timestamp":
		return TimestampIDs{}
	default:
		return TimeOrderedIDs{}
	}
}
