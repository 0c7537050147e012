// Package compiler turns expression trees and search query contexts into
// Elasticsearch request bodies, and document declarations into mappings.
package compiler

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

type visitFunc func(c *Compiler, e expr.Expression) (any, error)

type dispatchTable map[expr.Kind]visitFunc

// on adapts a typed handler to the dispatch table signature.
func on[T expr.Expression](fn func(*Compiler, T) (any, error)) visitFunc {
	return func(c *Compiler, e expr.Expression) (any, error) {
		node, ok := e.(T)
		if !ok {
			return nil, compileError(e.Kind(), fmt.Errorf("unexpected node type %T", e))
		}
		return fn(c, node)
	}
}

// newTable merges handler sets and panics when a required kind is missing.
func newTable(required []expr.Kind, sets ...dispatchTable) dispatchTable {
	table := make(dispatchTable)
	for _, set := range sets {
		for kind, fn := range set {
			table[kind] = fn
		}
	}
	for _, kind := range required {
		if _, ok := table[kind]; !ok {
			panic(fmt.Sprintf("compiler: no handler for required kind %s", kind))
		}
	}
	return table
}

// Compiler walks values and emits wire bodies. A Compiler holds no state
// between calls and is safe for concurrent use, except for the mapping
// compiler's per-call instances.
type Compiler struct {
	table    dispatchTable
	version  Version
	strategy versionStrategy
	strict   bool
	mapping  *mappingRun
}

// Option configures a Compiler
type Option func(*Compiler)

// WithVersion selects the request schema version.
func WithVersion(v Version) Option {
	return func(c *Compiler) {
		c.version = v
	}
}

// WithStrict controls whether unknown node kinds fail compilation. When
// disabled they are passed through unchanged.
func WithStrict(strict bool) Option {
	return func(c *Compiler) {
		c.strict = strict
	}
}

// New creates a query compiler. The default version is V1.
func New(opts ...Option) *Compiler {
	c := &Compiler{table: queryTable, version: V1, strict: true}
	for _, opt := range opts {
		opt(c)
	}
	strategy, ok := strategies[c.version]
	if !ok {
		panic(fmt.Sprintf("compiler: unsupported version %d", c.version))
	}
	c.strategy = strategy
	return c
}

// Version returns the targeted schema version.
func (c *Compiler) Version() Version {
	return c.version
}

// Compile compiles any value into a wire value.
func (c *Compiler) Compile(v any) (any, error) {
	return c.visit(v)
}

// CompileObject compiles a value that must produce a JSON object.
func (c *Compiler) CompileObject(v any) (*wire.Object, error) {
	out, err := c.visit(v)
	if err != nil {
		return nil, err
	}
	obj, ok := out.(*wire.Object)
	if !ok {
		return nil, fmt.Errorf("compiled %T to %T, not an object", v, out)
	}
	return obj, nil
}

func (c *Compiler) visit(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case expr.Expression:
		if expr.IsNil(val) {
			return nil, nil
		}
		return c.dispatch(val)
	case *wire.Object:
		if val == nil {
			return nil, nil
		}
		return c.visitObject(val)
	case map[string]any:
		return c.visitMap(val)
	case []any:
		return c.visitList(val)
	case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return v, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v, nil
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return c.visitList(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v, nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return c.visitMap(m)
	}
	return v, nil
}

func (c *Compiler) dispatch(e expr.Expression) (any, error) {
	fn, ok := c.table[e.Kind()]
	if !ok {
		if !c.strict {
			return e, nil
		}
		return nil, compileError(e.Kind(), ErrUnknownKind)
	}
	return fn(c, e)
}

func (c *Compiler) visitObject(o *wire.Object) (*wire.Object, error) {
	out := wire.NewObject()
	var err error
	o.Range(func(k string, v any) bool {
		var compiled any
		compiled, err = c.visit(v)
		if err != nil {
			return false
		}
		out.Set(k, compiled)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// visitMap compiles a plain map. Keys are emitted sorted so output does not
// depend on map iteration order.
func (c *Compiler) visitMap(m map[string]any) (*wire.Object, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := wire.NewObject()
	for _, k := range keys {
		compiled, err := c.visit(m[k])
		if err != nil {
			return nil, err
		}
		out.Set(k, compiled)
	}
	return out, nil
}

func (c *Compiler) visitList(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		compiled, err := c.visit(item)
		if err != nil {
			return nil, err
		}
		out[i] = compiled
	}
	return out, nil
}

// visitParams compiles params, treating nil as empty.
func (c *Compiler) visitParams(p *expr.Params) (*wire.Object, error) {
	if p == nil {
		return wire.NewObject(), nil
	}
	return c.visitObject(p)
}

// visitKey compiles a value used as an object key, such as a field.
func (c *Compiler) visitKey(v any) (string, error) {
	out, err := c.visit(v)
	if err != nil {
		return "", err
	}
	if s, ok := out.(string); ok {
		return s, nil
	}
	return fmt.Sprint(out), nil
}
