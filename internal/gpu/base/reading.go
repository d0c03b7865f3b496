package base

import "encoding/json"

// Reading holds one metric value that may be unavailable. The zero value is
// unavailable, so a freshly declared record reads as all N/A until a query
// succeeds and fills it in.
type Reading[T any] struct {
	value T
	valid bool
}

// Of returns an available reading holding v.
func Of[T any](v T) Reading[T] {
	return Reading[T]{value: v, valid: true}
}

func (r Reading[T]) Get() (T, bool) {
	return r.value, r.valid
}

func (r Reading[T]) Valid() bool {
	return r.valid
}

// Or returns the value, or def when the reading is unavailable.
func (r Reading[T]) Or(def T) T {
	if !r.valid {
		return def
	}
	return r.value
}

// Raw exposes the value untyped so formatters can handle any reading.
func (r Reading[T]) Raw() (any, bool) {
	if !r.valid {
		return nil, false
	}
	return r.value, true
}

func (r Reading[T]) MarshalJSON() ([]byte, error) {
	if !r.valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

func (r Reading[T]) MarshalYAML() (any, error) {
	if !r.valid {
		return nil, nil
	}
	return r.value, nil
}
