package expr

import (
	"fmt"
	"reflect"

	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

// Params are the named options attached to a node, in declaration order.
type Params = wire.Object

// P builds params from alternating key/value arguments. Nil values are
// dropped so optional arguments can be passed through unconditionally.
func P(kv ...any) *Params {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("expr: odd number of params arguments: %d", len(kv)))
	}
	p := wire.NewObject()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("expr: param name at position %d is %T, not string", i, kv[i]))
		}
		if IsNil(kv[i+1]) {
			continue
		}
		p.Set(key, kv[i+1])
	}
	return p
}

// MergeParams returns new params holding the entries of every argument,
// later arguments overriding earlier ones. Nil values are dropped.
func MergeParams(params ...*Params) *Params {
	out := wire.NewObject()
	for _, p := range params {
		p.Range(func(k string, v any) bool {
			if IsNil(v) {
				out.Delete(k)
				return true
			}
			out.Set(k, v)
			return true
		})
	}
	return out
}

// IsNil reports whether v is nil or a typed nil.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func paramsChildren(p *Params) []any {
	if p.Len() == 0 {
		return nil
	}
	children := make([]any, 0, p.Len())
	p.Range(func(_ string, v any) bool {
		children = append(children, v)
		return true
	})
	return children
}
