// Package wire holds the values that make up a compiled request body.
//
// A wire body is built from *Object, []any and JSON scalars. Object keeps
// insertion order so compiled bodies serialize deterministically.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is an insertion-ordered map with string keys.
type Object struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{m: orderedmap.New[string, any]()}
}

// ObjectOf builds an object from alternating key/value arguments.
func ObjectOf(kv ...any) *Object {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("wire: odd number of arguments: %d", len(kv)))
	}
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("wire: key at position %d is %T, not string", i, kv[i]))
		}
		o.Set(key, kv[i+1])
	}
	return o
}

// Set stores value under key. Overwriting keeps the key's original position.
func (o *Object) Set(key string, value any) *Object {
	if o.m == nil {
		o.m = orderedmap.New[string, any]()
	}
	o.m.Set(key, value)
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil || o.m == nil {
		return nil, false
	}
	return o.m.Get(key)
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Delete removes key.
func (o *Object) Delete(key string) {
	if o == nil || o.m == nil {
		return
	}
	o.m.Delete(key)
}

// Len returns the number of keys. A nil object is empty.
func (o *Object) Len() int {
	if o == nil || o.m == nil {
		return 0
	}
	return o.m.Len()
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, 0, o.Len())
	o.Range(func(k string, _ any) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Range calls fn for every entry in order until fn returns false.
func (o *Object) Range(fn func(key string, value any) bool) {
	if o == nil || o.m == nil {
		return
	}
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Clone returns a shallow copy.
func (o *Object) Clone() *Object {
	c := NewObject()
	o.Range(func(k string, v any) bool {
		c.Set(k, v)
		return true
	})
	return c
}

// Merge copies every entry of other into o, in other's order.
func (o *Object) Merge(other *Object) *Object {
	other.Range(func(k string, v any) bool {
		o.Set(k, v)
		return true
	})
	return o
}

// Map converts the object into plain maps and slices recursively.
func (o *Object) Map() map[string]any {
	if o == nil {
		return nil
	}
	m := make(map[string]any, o.Len())
	o.Range(func(k string, v any) bool {
		m[k] = Plain(v)
		return true
	})
	return m
}

// Plain converts a wire value into plain maps and slices.
func Plain(v any) any {
	switch val := v.(type) {
	case *Object:
		return val.Map()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the object with keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	switch {
	case o == nil:
		return []byte("null"), nil
	case o.m == nil:
		return []byte("{}"), nil
	}
	return o.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object keeping document order. Nested objects
// become *Object, arrays become []any and integral numbers int64.
func (o *Object) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("wire: expected object, got %.20q", data)
	}
	raw := orderedmap.New[string, json.RawMessage]()
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	decoded := NewObject()
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		v, err := fromRaw(pair.Value)
		if err != nil {
			return fmt.Errorf("wire: decode %q: %w", pair.Key, err)
		}
		decoded.Set(pair.Key, v)
	}
	*o = *decoded
	return nil
}

func fromRaw(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty value")
	}
	switch raw[0] {
	case '{':
		o := NewObject()
		if err := o.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return o, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := fromRaw(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
	return v, nil
}

// Marshal encodes a wire value as JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent encodes a wire value as indented JSON.
func MarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
