package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func carDocuments() (name, seller, car *Document) {
	name = NewDocument("name").
		Declare("first", NewField("", String)).
		Declare("last", NewField("", String))
	seller = NewDocument("seller").
		Declare("name", NewField("", Object(name))).
		Declare("rating", NewField("", Float))
	car = NewDocument("car").
		Declare("vendor", NewField("", String, WithSubField("raw", NewField("", String)))).
		Declare("model", NewField("", String)).
		Declare("year", NewField("", Integer)).
		Declare("seller", NewField("", Object(seller))).
		Declare("title", NewField("headline", String)).
		DeclareDynamic(NewField("attr_*", Integer))
	return name, seller, car
}

func TestDocumentLookup(t *testing.T) {
	_, _, car := carDocuments()

	tests := []struct {
		name     string
		path     string
		expected string
		typ      Type
		found    bool
	}{
		{"top level", "vendor", "vendor", String, true},
		{"multi field", "vendor.raw", "vendor.raw", String, true},
		{"nested object", "seller.rating", "seller.rating", Float, true},
		{"two levels", "seller.name.first", "seller.name.first", String, true},
		{"renamed by attribute", "title", "headline", String, true},
		{"renamed by name", "headline", "headline", String, true},
		{"meta field", "_id", "_id", String, true},
		{"dynamic field", "attr_2", "attr_2", Integer, true},
		{"unknown", "fake_attr_1", "", nil, false},
		{"unknown nested", "seller.phone", "", nil, false},
		{"below scalar", "year.month", "", nil, false},
		{"empty", "", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			af, ok := car.Lookup(tt.path)
			assert.Equal(t, tt.found, ok)
			if !tt.found {
				return
			}
			assert.Equal(t, tt.expected, af.Name())
			assert.Equal(t, tt.typ, af.Field().Type())
			assert.Same(t, car, af.Document())
		})
	}
}

func TestDocumentFieldPanicsOnUnknown(t *testing.T) {
	_, _, car := carDocuments()
	assert.Panics(t, func() { car.Field("nope") })
	assert.NotPanics(t, func() { car.Field("seller.name.last") })
}

func TestDynamicDocument(t *testing.T) {
	doc := NewDynamicDocument("log")
	af := doc.Field("request.headers.host")
	assert.Equal(t, "request.headers.host", af.Name())
	assert.Nil(t, af.Field().Type())
	assert.True(t, doc.IsDynamic())
}

func TestDocumentFieldSets(t *testing.T) {
	_, _, car := carDocuments()
	car.DeclareMeta("_routing", P("required", true))
	car.DeclareMeta("_custom", P("enabled", true))

	var userNames []string
	for _, af := range car.UserFields() {
		userNames = append(userNames, af.Name())
	}
	assert.Equal(t, []string{"vendor", "model", "year", "seller", "headline"}, userNames)

	var metaNames []string
	for _, mf := range car.MappingFields() {
		metaNames = append(metaNames, mf.Name())
	}
	assert.Equal(t, []string{"_routing", "_custom"}, metaNames)

	dynamic := car.DynamicFields()
	require.Len(t, dynamic, 1)
	assert.Equal(t, "attr_*", dynamic[0].Name())
}

func TestAttributedFieldNestedFields(t *testing.T) {
	_, _, car := carDocuments()
	seller := car.Field("seller")

	var names []string
	for _, af := range seller.NestedFields() {
		names = append(names, af.Name())
	}
	assert.Equal(t, []string{"seller.name", "seller.rating"}, names)
	assert.Nil(t, car.Field("year").NestedFields())
}

func TestDeclareWildcardAttribute(t *testing.T) {
	doc := NewDocument("d").Declare("tag_*", NewField("", String))
	assert.Empty(t, doc.UserFields())
	require.Len(t, doc.DynamicFields(), 1)
	assert.Equal(t, "tag_*", doc.DynamicFields()[0].Name())
}

func TestCollectDocClasses(t *testing.T) {
	_, seller, car := carDocuments()
	customer := NewDocument("customer").Declare("birthday", NewField("", Date))
	untyped := NewDynamicDocument("")

	tests := []struct {
		name     string
		values   []any
		expected []*Document
	}{
		{
			name:     "none",
			values:   []any{Term(F("user"), "kimchy"), nil},
			expected: nil,
		},
		{
			name:     "single",
			values:   []any{car.Field("seller.name.first").Match("Alex"), car.Field("seller.rating").Gt(4)},
			expected: []*Document{car},
		},
		{
			name: "first seen order",
			values: []any{
				seller.Field("name.first").Match("Alex"),
				[]any{customer.Field("birthday").Gte("1960-01-01")},
			},
			expected: []*Document{seller, customer},
		},
		{
			name:     "params and maps",
			values:   []any{P("filter", customer.Field("birthday").Exists()), map[string]any{"x": car.Field("year")}},
			expected: []*Document{customer, car},
		},
		{
			name:     "relational queries do not scope",
			values:   []any{NewHasParent(customer.Field("birthday").Exists(), nil)},
			expected: nil,
		},
		{
			name:     "documents without type are skipped",
			values:   []any{untyped.Field("anything").Eq(1)},
			expected: nil,
		},
		{
			name:     "typed slices",
			values:   []any{[]Expression{car.Field("year").Eq(2004)}},
			expected: []*Document{car},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CollectDocClasses(tt.values...))
		})
	}
}

func TestParams(t *testing.T) {
	var nilField *Field
	p := P("a", 1, "b", nil, "c", nilField, "d", false)
	assert.Equal(t, []string{"a", "d"}, p.Keys())

	merged := MergeParams(P("score_mode", "sum", "boost_mode", "sum"), nil, P("boost_mode", "multiply"))
	assert.Equal(t, []string{"score_mode", "boost_mode"}, merged.Keys())
	v, _ := merged.Get("boost_mode")
	assert.Equal(t, "multiply", v)

	assert.Panics(t, func() { P("a") })
	assert.Panics(t, func() { P(1, 2) })
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "search_query", KindSearchQuery.String())
	assert.Equal(t, "attributed_field", KindAttributedField.String())
	assert.Equal(t, "unknown", Kind(0).String())
	assert.Equal(t, "and", OpAnd.String())
	assert.Equal(t, "or", OpOr.String())
}
