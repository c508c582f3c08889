package user

import "encoding/json"

// Field tracks whether a JSON key was sent at all. A key sent as null yields
// Present with a nil Value; a missing key leaves the zero Field.
type Field[T any] struct {
	Present bool
	Value   *T
}

func Set[T any](v T) Field[T] {
	return Field[T]{Present: true, Value: &v}
}

func Null[T any]() Field[T] {
	return Field[T]{Present: true}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Present = true
	if string(data) == "null" {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}
