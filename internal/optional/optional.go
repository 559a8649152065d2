// Package optional models a field in a partial update that can be left
// untouched, set to a value, or set to null.
//
// A zero Value is untouched. In JSON request bodies an absent key leaves the
// Value untouched and an explicit null clears it.
package optional

import (
	"bytes"
	"encoding/json"
)

// Value is a tri-state field for partial updates.
type Value[T any] struct {
	set bool
	v   *T
}

// Of returns a Value set to v.
func Of[T any](v T) Value[T] {
	return Value[T]{set: true, v: &v}
}

// Null returns a Value that clears the field.
func Null[T any]() Value[T] {
	return Value[T]{set: true}
}

// FromPtr returns a set Value holding *p, or a Null Value when p is nil.
func FromPtr[T any](p *T) Value[T] {
	if p == nil {
		return Null[T]()
	}
	return Of(*p)
}

// IsSet reports whether the field was provided.
func (o Value[T]) IsSet() bool { return o.set }

// IsNull reports whether the field was provided as null.
func (o Value[T]) IsNull() bool { return o.set && o.v == nil }

// Ptr returns the new value, nil when untouched or null.
func (o Value[T]) Ptr() *T {
	if o.v == nil {
		return nil
	}
	v := *o.v
	return &v
}

// UnmarshalJSON marks the field as set; a literal null clears it.
func (o *Value[T]) UnmarshalJSON(data []byte) error {
	o.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.v = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.v = &v
	return nil
}

// Equal reports whether the value held by o equals current. Both nil counts as equal.
func Equal[T comparable](o Value[T], current *T) bool {
	switch {
	case o.v == nil && current == nil:
		return true
	case o.v == nil || current == nil:
		return false
	default:
		return *o.v == *current
	}
}
