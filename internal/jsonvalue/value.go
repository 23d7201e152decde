// Package jsonvalue implements the dynamic JSON body representation used by
// the request pipeline's endpoint validation step (C10 step 10): REST,
// GraphQL, and SOAP bodies are opaque JSON structures with no compile-time
// schema, so they are held as a Kind-tagged sum type and walked by dotted
// path rather than unmarshaled into a fixed struct, per the design note on
// dynamic JSON bodies.
package jsonvalue

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a structural JSON value: exactly one of its typed fields is
// meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	String string
	Array  []Value
	Object map[string]Value
}

// UnmarshalJSON decodes raw into the appropriate variant.
func (v *Value) UnmarshalJSON(raw []byte) error {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	*v = fromGeneric(generic)
	return nil
}

// MarshalJSON encodes v back into its canonical JSON representation.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toGeneric())
}

func fromGeneric(generic interface{}) Value {
	switch val := generic.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		return Value{Kind: KindBool, Bool: val}
	case float64:
		return Value{Kind: KindNumber, Number: val}
	case string:
		return Value{Kind: KindString, String: val}
	case []interface{}:
		arr := make([]Value, len(val))
		for i, item := range val {
			arr[i] = fromGeneric(item)
		}
		return Value{Kind: KindArray, Array: arr}
	case map[string]interface{}:
		obj := make(map[string]Value, len(val))
		for k, item := range val {
			obj[k] = fromGeneric(item)
		}
		return Value{Kind: KindObject, Object: obj}
	default:
		return Value{Kind: KindNull}
	}
}

func (v Value) toGeneric() interface{} {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.String
	case KindArray:
		out := make([]interface{}, len(v.Array))
		for i, item := range v.Array {
			out[i] = item.toGeneric()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Object))
		for k, item := range v.Object {
			out[k] = item.toGeneric()
		}
		return out
	default:
		return nil
	}
}

// Parse decodes raw JSON bytes into a Value tree.
func Parse(raw []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, fmt.Errorf("jsonvalue: parse: %w", err)
	}
	return v, nil
}

// Get walks a dotted path (e.g. "user.address.city") from an object Value,
// returning the value found and whether every segment resolved. Array
// segments are not indexed by Get; paths containing array traversal via "[]"
// are walked by Validate.
func (v Value) Get(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	segments := splitPath(path)
	current := v
	for _, seg := range segments {
		if current.Kind != KindObject {
			return Value{}, false
		}
		next, ok := current.Object[seg]
		if !ok {
			return Value{}, false
		}
		current = next
	}
	return current, true
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	segments = append(segments, path[start:])
	return segments
}
