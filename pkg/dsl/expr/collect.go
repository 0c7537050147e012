package expr

import (
	"reflect"
	"sort"

	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

// CollectDocClasses returns the distinct document classes referenced by
// field lookups anywhere in values, in first-seen order. Documents without
// a doc type do not scope a search and are skipped.
func CollectDocClasses(values ...any) []*Document {
	c := &docCollector{seen: make(map[*Document]bool)}
	for _, v := range values {
		c.walk(v)
	}
	return c.docs
}

type docCollector struct {
	docs []*Document
	seen map[*Document]bool
}

func (c *docCollector) add(d *Document) {
	if d == nil || d.docType == "" || c.seen[d] {
		return
	}
	c.seen[d] = true
	c.docs = append(c.docs, d)
}

func (c *docCollector) walk(v any) {
	if IsNil(v) {
		return
	}
	switch val := v.(type) {
	case *AttributedField:
		c.add(val.doc)
	case Composite:
		for _, child := range val.Children() {
			c.walk(child)
		}
	case *wire.Object:
		val.Range(func(_ string, item any) bool {
			c.walk(item)
			return true
		})
	case []any:
		for _, item := range val {
			c.walk(item)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.walk(val[k])
		}
	case string, bool, int, int64, float64:
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				c.walk(rv.Index(i).Interface())
			}
		}
	}
}
