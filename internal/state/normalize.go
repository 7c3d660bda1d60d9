package state

import (
	"errors"
	"fmt"
)

// ErrMalformedEntity is returned when an entity carries no identifier.
var ErrMalformedEntity = errors.New("malformed entity: missing identifier")

// Keyed is implemented by entities stored by identifier.
type Keyed interface {
	Key() string
}

// ToMapping indexes list by each entity's identifier. Later duplicates win.
// An entity without identifier rejects the whole list.
func ToMapping[T Keyed](list []T) (map[string]T, error) {
	out := make(map[string]T, len(list))
	for i, item := range list {
		id := item.Key()
		if id == "" {
			return nil, fmt.Errorf("entity %d: %w", i, ErrMalformedEntity)
		}
		out[id] = item
	}
	return out, nil
}

// ToOrderedList returns the values of m in map iteration order, which is
// unspecified. Callers needing a total order must sort the result.
func ToOrderedList[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
