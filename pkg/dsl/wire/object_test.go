package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeepsInsertionOrder(t *testing.T) {
	o := NewObject().Set("query", 1).Set("size", 10).Set("from", 0)
	o.Set("query", 2)

	assert.Equal(t, []string{"query", "size", "from"}, o.Keys())

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"query":2,"size":10,"from":0}`, string(data))
}

func TestObjectDelete(t *testing.T) {
	o := ObjectOf("a", 1, "b", 2, "c", 3)
	o.Delete("b")
	o.Delete("missing")

	assert.Equal(t, []string{"a", "c"}, o.Keys())
	assert.False(t, o.Has("b"))
	assert.Equal(t, 2, o.Len())
}

func TestObjectNilSafe(t *testing.T) {
	var o *Object
	assert.Equal(t, 0, o.Len())
	assert.Nil(t, o.Keys())
	_, ok := o.Get("x")
	assert.False(t, ok)

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestObjectMergeAndClone(t *testing.T) {
	base := ObjectOf("score_mode", "sum", "boost_mode", "sum")
	clone := base.Clone().Merge(ObjectOf("boost_mode", "multiply", "max_boost", 5))

	assert.Equal(t, map[string]any{"score_mode": "sum", "boost_mode": "sum"}, base.Map())
	assert.Equal(t, []string{"score_mode", "boost_mode", "max_boost"}, clone.Keys())
	v, _ := clone.Get("boost_mode")
	assert.Equal(t, "multiply", v)
}

func TestObjectUnmarshalKeepsDocumentOrder(t *testing.T) {
	var o Object
	err := json.Unmarshal([]byte(`{"z":1,"a":{"y":[1,2.5,"x"],"b":null},"m":true}`), &o)
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m"}, o.Keys())
	nested, _ := o.Get("a")
	require.IsType(t, &Object{}, nested)
	assert.Equal(t, []string{"y", "b"}, nested.(*Object).Keys())

	out, err := json.Marshal(&o)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":{"y":[1,2.5,"x"],"b":null},"m":true}`, string(out))
}

func TestObjectOfPanicsOnBadArguments(t *testing.T) {
	assert.Panics(t, func() { ObjectOf("a") })
	assert.Panics(t, func() { ObjectOf(1, 2) })
}

func TestPlain(t *testing.T) {
	v := Plain([]any{ObjectOf("a", ObjectOf("b", 1)), "x"})
	assert.Equal(t, []any{map[string]any{"a": map[string]any{"b": 1}}, "x"}, v)
}

func TestObjectUnmarshalNested(t *testing.T) {
	tests := []struct {
		name  string
		input string
		keys  []string
	}{
		{
			name:  "objects inside arrays",
			input: `{"sort":[{"year":{"order":"desc"}},{"_score":{}}],"size":0}`,
			keys:  []string{"sort", "size"},
		},
		{
			name:  "escaped strings",
			input: `{"q":"say \"hi\" <now>","n":-3.25e2}`,
			keys:  []string{"q", "n"},
		},
		{
			name:  "empty",
			input: `{}`,
			keys:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o Object
			require.NoError(t, json.Unmarshal([]byte(tt.input), &o))
			assert.Equal(t, tt.keys, o.Keys())

			out, err := json.Marshal(&o)
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(out))
		})
	}

	var o Object
	require.NoError(t, json.Unmarshal([]byte(`{"sort":[{"b":1,"a":2}],"n":1.5,"i":7}`), &o))
	sort, _ := o.Get("sort")
	require.IsType(t, []any{}, sort)
	first := sort.([]any)[0]
	require.IsType(t, &Object{}, first)
	assert.Equal(t, []string{"b", "a"}, first.(*Object).Keys())
	n, _ := o.Get("n")
	assert.Equal(t, 1.5, n)
	i, _ := o.Get("i")
	assert.Equal(t, int64(7), i)
}

func TestObjectUnmarshalRejectsNonObjects(t *testing.T) {
	for _, input := range []string{`[1,2]`, `"x"`, `3`} {
		var o Object
		assert.Error(t, o.UnmarshalJSON([]byte(input)), input)
	}
}

func TestZeroObject(t *testing.T) {
	var o Object
	data, err := json.Marshal(&o)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	o.Set("a", 1)
	assert.Equal(t, []string{"a"}, o.Keys())
}
