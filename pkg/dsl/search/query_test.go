package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/quidditch/esdsl/pkg/dsl/agg"
	"github.com/quidditch/esdsl/pkg/dsl/compiler"
	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

var f = expr.F

// tester is satisfied by *testing.T and *rapid.T.
type tester interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

func toJSON(t tester, v any) string {
	t.Helper()
	data, err := wire.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func compiled(t tester, q *SearchQuery) string {
	t.Helper()
	body, err := q.ToDict()
	require.NoError(t, err)
	return toJSON(t, body)
}

func TestSearchQueryCompile(t *testing.T) {
	tests := []struct {
		name     string
		query    *SearchQuery
		expected string
	}{
		{
			name:     "empty",
			query:    New(nil),
			expected: `{}`,
		},
		{
			name:     "paging",
			query:    New(expr.Term(f("user"), "kimchy")).Limit(10).Offset(0),
			expected: `{"query": {"term": {"user": "kimchy"}}, "size": 10, "from": 0}`,
		},
		{
			name:     "paging without query",
			query:    New(nil).Limit(10).Offset(0),
			expected: `{"size": 10, "from": 0}`,
		},
		{
			name:  "single filter",
			query: New(expr.Term(f("user"), "kimchy")).Filter(f("age").Gte(16)),
			expected: `{"query": {"filtered": {
				"query": {"term": {"user": "kimchy"}},
				"filter": {"range": {"age": {"gte": 16}}}
			}}}`,
		},
		{
			name: "filters are and-ed",
			query: New(expr.Term(f("user"), "kimchy")).
				Filter(f("age").Gte(16)).
				Filter(f("lang").Eq("English")),
			expected: `{"query": {"filtered": {
				"query": {"term": {"user": "kimchy"}},
				"filter": {"bool": {"must": [
					{"range": {"age": {"gte": 16}}},
					{"term": {"lang": "English"}}
				]}}
			}}}`,
		},
		{
			name: "order by",
			query: New(nil).OrderBy(
				f("opinion_rating").Desc(expr.P("missing", "_last")),
				f("opinion_count").Desc(),
				f("id"),
			),
			expected: `{"sort": [
				{"opinion_rating": {"order": "desc", "missing": "_last"}},
				{"opinion_count": "desc"},
				"id"
			]}`,
		},
		{
			name:     "order by cleared",
			query:    New(nil).OrderBy(f("opinion_rating").Desc(), f("id")).OrderBy(nil).OrderBy(nil),
			expected: `{}`,
		},
		{
			name:     "source fields",
			query:    New(nil).Fields(f("name"), f("company")),
			expected: `{"_source": ["name", "company"]}`,
		},
		{
			name:     "source cleared",
			query:    New(nil).Fields(f("name"), f("company")).Fields(nil),
			expected: `{}`,
		},
		{
			name:     "source disabled",
			query:    New(nil).Fields(f("name"), f("company")).Fields(false),
			expected: `{"_source": false}`,
		},
		{
			name:     "source added",
			query:    New(nil).Source(f("name")).AddSourceFields(f("company")),
			expected: `{"_source": ["name", "company"]}`,
		},
		{
			name:     "source filter",
			query:    New(nil).SourceFilter([]any{f("title")}, []any{"*.raw"}),
			expected: `{"_source": {"include": ["title"], "exclude": ["*.raw"]}}`,
		},
		{
			name:     "all stored fields",
			query:    New(nil).StoredFields(true),
			expected: `{"fields": "*"}`,
		},
		{
			name:     "no stored fields",
			query:    New(nil).StoredFields(false),
			expected: `{"fields": []}`,
		},
		{
			name:  "boost function",
			query: New(nil).BoostScore(map[string]any{"random_score": map[string]any{"seed": 1234}}),
			expected: `{"query": {"function_score": {
				"functions": [{"random_score": {"seed": 1234}}],
				"score_mode": "sum",
				"boost_mode": "sum"
			}}}`,
		},
		{
			name: "boost functions with filter",
			query: New(expr.MultiMatch("Iphone 6", []any{f("name"), f("description")})).
				Filter(f("status").Eq(0)).
				BoostScore(map[string]any{"_score": map[string]any{"seed": 1234}}).
				BoostScore(nil).
				BoostScore(map[string]any{"field_value_factor": expr.P("field", f("popularity"), "factor", 1.2, "modifier", "sqrt")}).
				BoostScoreParams(expr.P("boost_mode", "multiply")).
				BoostScore(expr.P("boost_factor", 3, "filter", f("region").Eq(12))),
			expected: `{"query": {"filtered": {
				"query": {"function_score": {
					"query": {"multi_match": {"query": "Iphone 6", "fields": ["name", "description"]}},
					"functions": [
						{"field_value_factor": {"field": "popularity", "factor": 1.2, "modifier": "sqrt"}},
						{"boost_factor": 3, "filter": {"term": {"region": 12}}}
					],
					"score_mode": "sum",
					"boost_mode": "multiply"
				}},
				"filter": {"term": {"status": 0}}
			}}}`,
		},
		{
			name: "function score then boost score",
			query: New(expr.Match(f("name"), "phone")).
				FunctionScore(expr.P("weight", 2)).
				FunctionScoreParams(expr.P("score_mode", "max")).
				BoostScore(expr.P("weight", 3)),
			expected: `{"query": {"function_score": {
				"query": {"function_score": {
					"query": {"match": {"name": "phone"}},
					"functions": [{"weight": 2}],
					"score_mode": "max"
				}},
				"functions": [{"weight": 3}],
				"score_mode": "sum",
				"boost_mode": "sum"
			}}}`,
		},
		{
			name: "rescore",
			query: New(f("field1").Match("the quick brown", expr.P("type", "boolean", "operator", "or"))).
				RescoreQuery(
					f("field1").Match("the quick brown", expr.P("type", "phrase", "slop", 2)),
					100,
					expr.P("query_weight", 0.7, "rescore_query_weight", 1.2),
				).
				Rescore(expr.NewQueryRescorer(
					expr.FunctionScore(nil, nil, expr.P("script_score", expr.P("script", "log10(doc['numeric'].value + 2)"))),
					expr.P("score_mode", "multiply"),
				), 10),
			expected: `{
				"query": {"match": {"field1": {"query": "the quick brown", "type": "boolean", "operator": "or"}}},
				"rescore": [
					{
						"window_size": 100,
						"query": {
							"rescore_query": {"match": {"field1": {"query": "the quick brown", "type": "phrase", "slop": 2}}},
							"query_weight": 0.7,
							"rescore_query_weight": 1.2
						}
					},
					{
						"window_size": 10,
						"query": {
							"score_mode": "multiply",
							"rescore_query": {"function_score": {"script_score": {"script": "log10(doc['numeric'].value + 2)"}}}
						}
					}
				]
			}`,
		},
		{
			name:     "rescore cleared",
			query:    New(nil).Rescore(expr.NewQueryRescorer(f("a").Eq(1)), 10).Rescore(nil, 0),
			expected: `{}`,
		},
		{
			name:     "post filter",
			query:    New(nil).PostFilter(f("color").Eq("red")),
			expected: `{"post_filter": {"term": {"color": "red"}}}`,
		},
		{
			name: "filter and post filters",
			query: New(nil).
				Filter(f("brand").Eq("gucci")).
				PostFilter(f("color").Eq("red")).
				PostFilter(f("model").Eq("t-shirt")),
			expected: `{
				"query": {"filtered": {"filter": {"term": {"brand": "gucci"}}}},
				"post_filter": {"bool": {"must": [
					{"term": {"color": "red"}},
					{"term": {"model": "t-shirt"}}
				]}}
			}`,
		},
		{
			name:     "highlight",
			query:    New(nil).Highlight([]any{f("title"), f("body").Highlight(expr.P("fragment_size", 50))}, expr.P("order", "score")),
			expected: `{"highlight": {"order": "score", "fields": [{"title": {}}, {"body": {"fragment_size": 50}}]}}`,
		},
		{
			name:     "suggest",
			query:    New(nil).Suggest(expr.P("text", "iphon", "title", expr.P("term", expr.P("field", f("title"))))),
			expected: `{"suggest": {"text": "iphon", "title": {"term": {"field": "title"}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.expected, compiled(t, tt.query))
		})
	}
}

func TestSearchQueryAggregations(t *testing.T) {
	tests := []struct {
		name     string
		query    *SearchQuery
		expected string
	}{
		{
			name:     "metric",
			query:    New(nil).Aggregation("min_price", agg.Min(f("price"))),
			expected: `{"aggregations": {"min_price": {"min": {"field": "price"}}}}`,
		},
		{
			name:     "bucket",
			query:    New(nil).Aggregations(expr.P("genders", agg.Terms(f("gender")))),
			expected: `{"aggregations": {"genders": {"terms": {"field": "gender"}}}}`,
		},
		{
			name:  "sub aggregation",
			query: New(nil).Aggregation("type", agg.Terms(f("type")).Aggregate("min_price", agg.Min(f("price")))),
			expected: `{"aggregations": {"type": {
				"terms": {"field": "type"},
				"aggregations": {"min_price": {"min": {"field": "price"}}}
			}}}`,
		},
		{
			name: "top hits",
			query: New(nil).Aggregation("top_tags",
				agg.Terms(f("tags"), expr.P("size", 3)).Aggregate("top_tag_hits", agg.TopHits(expr.P(
					"sort", f("last_activity_date").Desc(),
					"size", 1,
					"_source", expr.P("include", []any{f("title")}),
				))),
			),
			expected: `{"aggregations": {"top_tags": {
				"terms": {"field": "tags", "size": 3},
				"aggregations": {"top_tag_hits": {"top_hits": {
					"sort": {"last_activity_date": "desc"},
					"size": 1,
					"_source": {"include": ["title"]}
				}}}
			}}}`,
		},
		{
			name: "ordered by sub aggregation",
			query: New(nil).Aggregation("top_sites",
				agg.Terms(f("domain"), expr.P("order", expr.Sort("top_hit", "desc"))).
					Aggregate("top_tags_hits", agg.TopHits()).
					Aggregate("top_hit", agg.Max(nil, expr.P("script", "_doc.score"))),
			),
			expected: `{"aggregations": {"top_sites": {
				"terms": {"field": "domain", "order": {"top_hit": "desc"}},
				"aggregations": {
					"top_tags_hits": {"top_hits": {}},
					"top_hit": {"max": {"script": "_doc.score"}}
				}
			}}}`,
		},
		{
			name:     "cleared",
			query:    New(nil).Aggregation("min_price", agg.Min(f("price"))).Aggregations(nil),
			expected: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.expected, compiled(t, tt.query))
		})
	}
}

func TestSearchQueryVersions(t *testing.T) {
	q := New(expr.Term(f("user"), "kimchy")).Filter(f("age").Gte(16)).Filter(f("lang").Eq("en"))

	v2 := q.WithCompiler(compiler.New(compiler.WithVersion(compiler.V2)))
	assert.JSONEq(t, `{"query": {"bool": {
		"must": {"term": {"user": "kimchy"}},
		"filter": {"bool": {"must": [
			{"range": {"age": {"gte": 16}}},
			{"term": {"lang": "en"}}
		]}}
	}}}`, compiled(t, v2))

	idx := &fakeIndex{compiler: compiler.New(compiler.WithVersion(compiler.V2))}
	assert.Equal(t, compiled(t, v2), compiled(t, q.WithIndex(idx)))
	assert.Equal(t, compiler.V1, q.Compiler().Version())
}

func TestSearchQueryFiltersWithMeta(t *testing.T) {
	q := New(nil).
		FilterWithMeta("facet:brand", f("brand").Eq("gucci"), f("brand").Eq("prada")).
		Filter(f("status").Eq(0)).
		PostFilterWithMeta("facet:color", f("color").Eq("red"))

	filters := q.FiltersWithMeta()
	require.Len(t, filters, 3)
	assert.Equal(t, "facet:brand", filters[0].Meta)
	assert.Equal(t, "facet:brand", filters[1].Meta)
	assert.Nil(t, filters[2].Meta)
	assert.Len(t, q.Filters(), 3)

	post := q.PostFiltersWithMeta()
	require.Len(t, post, 1)
	assert.Equal(t, "facet:color", post[0].Meta)
}

func TestSearchQuerySlice(t *testing.T) {
	tests := []struct {
		name     string
		query    *SearchQuery
		expected string
	}{
		{"closed", New(nil).Slice(10, 20), `{"size": 10, "from": 10}`},
		{"open end", New(nil).Slice(5, -1), `{"from": 5}`},
		{"head", New(nil).Slice(0, 3), `{"size": 3}`},
		{"composes with offset", New(nil).Offset(10).Slice(5, 10), `{"size": 5, "from": 15}`},
		{"capped by limit", New(nil).Limit(10).Slice(5, 20), `{"size": 5, "from": 5}`},
		{"past limit", New(nil).Limit(10).Slice(15, 20), `{"size": 0, "from": 15}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.expected, compiled(t, tt.query))
		})
	}
}

func TestDocTypeInference(t *testing.T) {
	car, seller, customer := testIndexDocuments()

	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	tests := []struct {
		name     string
		query    *SearchQuery
		expected string
		warned   bool
	}{
		{
			name:     "inferred",
			query:    New(car.Field("seller.name.first").Match("Alex")).Filter(car.Field("seller.rating").Gt(4)),
			expected: "car",
		},
		{
			name:     "several inferred",
			query:    New(seller.Field("name.first").Match("Alex")).PostFilter(customer.Field("birthday").Gte("1960-01-01")),
			expected: "seller,customer",
		},
		{
			name:     "from aggregations and sort",
			query:    New(nil).Aggregation("years", agg.Terms(car.Field("year"))).OrderBy(seller.Field("rating").Desc()),
			expected: "car,seller",
		},
		{
			name:     "explicit classes",
			query:    New(car.Field("year").Eq(2004), WithDocClasses(seller, customer)),
			expected: "seller,customer",
		},
		{
			name:     "explicit type wins",
			query:    New(car.Field("year").Eq(2004)).WithDocType("vehicle"),
			expected: "vehicle",
		},
		{
			name:     "undetermined",
			query:    New(expr.Term(f("user"), "kimchy")),
			expected: "",
			warned:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := func() int { return logs.FilterMessage("cannot determine document class").Len() }
			before := warnings()
			assert.Equal(t, tt.expected, tt.query.WithLogger(logger).DocType())
			assert.Equal(t, tt.warned, warnings() > before)
		})
	}
}

type fakeIndex struct {
	compiler *compiler.Compiler
	result   *Result
	err      error
	count    int64
	exists   bool

	searches    int
	lastBody    *wire.Object
	lastDocType string
	lastParams  *expr.Params
}

func (i *fakeIndex) Compiler() *compiler.Compiler {
	if i.compiler == nil {
		return compiler.New()
	}
	return i.compiler
}

func (i *fakeIndex) record(body *wire.Object, docType string, params *expr.Params) {
	i.lastBody = body
	i.lastDocType = docType
	i.lastParams = params
}

func (i *fakeIndex) Search(_ context.Context, body *wire.Object, docType string, params *expr.Params) (*Result, error) {
	i.searches++
	i.record(body, docType, params)
	if i.err != nil {
		return nil, i.err
	}
	return i.result, nil
}

func (i *fakeIndex) Count(_ context.Context, body *wire.Object, docType string, params *expr.Params) (int64, error) {
	i.record(body, docType, params)
	return i.count, i.err
}

func (i *fakeIndex) Exists(_ context.Context, body *wire.Object, docType string, params *expr.Params) (bool, error) {
	i.record(body, docType, params)
	return i.exists, i.err
}

func (i *fakeIndex) DeleteByQuery(_ context.Context, body *wire.Object, docType string, params *expr.Params) error {
	i.record(body, docType, params)
	return i.err
}

func testIndexDocuments() (car, seller, customer *expr.Document) {
	name := expr.NewDocument("").
		Declare("first", expr.NewField("", expr.String)).
		Declare("last", expr.NewField("", expr.String))
	carSeller := expr.NewDocument("").
		Declare("name", expr.NewField("", expr.Object(name))).
		Declare("rating", expr.NewField("", expr.Float))
	car = expr.NewDocument("car").
		Declare("vendor", expr.NewField("", expr.String)).
		Declare("model", expr.NewField("", expr.String)).
		Declare("year", expr.NewField("", expr.Integer)).
		Declare("status", expr.NewField("", expr.Integer)).
		Declare("seller", expr.NewField("", expr.Object(carSeller)))
	seller = expr.NewDocument("seller").
		Declare("name", expr.NewField("", expr.Object(name))).
		Declare("birthday", expr.NewField("", expr.Date)).
		Declare("rating", expr.NewField("", expr.Float))
	customer = expr.NewDocument("customer").
		Declare("name", expr.NewField("", expr.Object(name))).
		Declare("birthday", expr.NewField("", expr.Date))
	return car, seller, customer
}

func TestCount(t *testing.T) {
	car, _, _ := testIndexDocuments()
	ctx := context.Background()

	idx := &fakeIndex{count: 1024}
	n, err := New(nil, WithIndex(idx), WithDocClasses(car)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), n)
	assert.Nil(t, idx.lastBody)
	assert.Equal(t, "car", idx.lastDocType)

	idx.count = 2
	n, err = New(nil, WithIndex(idx)).
		Filter(car.Field("status").Eq(1)).
		BoostScore(expr.P("boost_factor", 3)).
		WithRouting("dealer-7").
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "car", idx.lastDocType)
	assert.JSONEq(t, `{"query": {"filtered": {"filter": {"term": {"status": 1}}}}}`, toJSON(t, idx.lastBody))
	routing, _ := idx.lastParams.Get("routing")
	assert.Equal(t, "dealer-7", routing)
}

func TestExists(t *testing.T) {
	car, _, _ := testIndexDocuments()
	ctx := context.Background()

	idx := &fakeIndex{exists: true}
	ok, err := New(nil, WithIndex(idx), WithDocClasses(car)).Exists(ctx, expr.P("refresh", true))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, idx.lastBody)
	refresh, _ := idx.lastParams.Get("refresh")
	assert.Equal(t, true, refresh)

	idx.exists = false
	ok, err = New(nil, WithIndex(idx)).Filter(car.Field("status").Eq(1)).FunctionScore(expr.P("weight", 3)).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "car", idx.lastDocType)
	assert.JSONEq(t, `{"query": {"filtered": {"filter": {"term": {"status": 1}}}}}`, toJSON(t, idx.lastBody))
}

func TestDelete(t *testing.T) {
	car, _, _ := testIndexDocuments()
	ctx := context.Background()
	idx := &fakeIndex{}

	require.NoError(t, New(car.Field("vendor").Eq("Focus"), WithIndex(idx)).Delete(ctx))
	assert.Equal(t, "car", idx.lastDocType)
	assert.JSONEq(t, `{"query": {"term": {"vendor": "Focus"}}}`, toJSON(t, idx.lastBody))

	err := New(car.Field("vendor").Eq("Focus"), WithIndex(idx)).
		Filter(car.Field("status").Eq(0)).
		Limit(20).
		Delete(ctx, expr.P("timeout", "1m", "replication", "async"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"query": {"filtered": {
		"query": {"term": {"vendor": "Focus"}},
		"filter": {"term": {"status": 0}}
	}}}`, toJSON(t, idx.lastBody))
	assert.Equal(t, []string{"timeout", "replication"}, idx.lastParams.Keys())
}

func TestUnboundQuery(t *testing.T) {
	ctx := context.Background()
	q := New(expr.MatchAll())

	_, err := q.Count(ctx)
	assert.ErrorIs(t, err, ErrNoIndex)
	_, err = q.Exists(ctx)
	assert.ErrorIs(t, err, ErrNoIndex)
	assert.ErrorIs(t, q.Delete(ctx), ErrNoIndex)
	_, err = q.Result(ctx)
	assert.ErrorIs(t, err, ErrNoSearcher)

	_, err = q.WithCluster(&fakeIndex{result: &Result{}}).Count(ctx)
	assert.ErrorIs(t, err, ErrNoIndex)
}

type carObject struct {
	ID   string
	Name string
}

func TestSearch(t *testing.T) {
	car, _, _ := testIndexDocuments()
	ctx := context.Background()

	idx := &fakeIndex{result: &Result{
		Total:    6234,
		MaxScore: 4.675524,
		Took:     47,
		Hits: []*Hit{
			{ID: "31888815", Type: "car", Index: "ads", Score: 4.675524, Source: map[string]any{"vendor": "Subaru", "model": "Imprezza", "year": 2004}},
			{ID: "987321", Type: "car", Index: "ads", Score: 3.654321, Source: map[string]any{"vendor": "Subaru", "model": "Forester", "year": 2007}},
		},
	}}

	mapperCalls := 0
	mapper := MapperFunc(func(_ context.Context, ids []string) (map[string]any, error) {
		mapperCalls++
		out := make(map[string]any, len(ids))
		for _, id := range ids {
			out[id] = &carObject{ID: id, Name: id + ":" + id}
		}
		return out, nil
	})

	sq := New(car.Field("seller.name.first").Match("Alex"), WithIndex(idx), WithSearchType("dfs_query_then_fetch")).
		Filter(car.Field("seller.rating").Gt(4.0)).
		WithInstanceMapper(mapper)

	res, err := sq.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, "car", idx.lastDocType)
	assert.JSONEq(t, `{"query": {"filtered": {
		"query": {"match": {"seller.name.first": "Alex"}},
		"filter": {"range": {"seller.rating": {"gt": 4.0}}}
	}}}`, toJSON(t, idx.lastBody))
	assert.Equal(t, []string{"search_type"}, idx.lastParams.Keys())

	require.Len(t, res.Hits, 2)
	assert.Equal(t, int64(6234), res.Total)
	assert.Same(t, car, res.Hits[0].Document)
	assert.Equal(t, &carObject{ID: "31888815", Name: "31888815:31888815"}, res.Hits[0].Instance)
	assert.Equal(t, &carObject{ID: "987321", Name: "987321:987321"}, res.Hits[1].Instance)
	assert.Equal(t, 1, mapperCalls)

	again, err := sq.Result(ctx)
	require.NoError(t, err)
	assert.Same(t, res, again)
	assert.Equal(t, 1, idx.searches)

	_, err = sq.Limit(1).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.searches)
}

func TestMultiTypeSearch(t *testing.T) {
	_, seller, customer := testIndexDocuments()
	ctx := context.Background()

	idx := &fakeIndex{result: &Result{
		Total: 73,
		Hits: []*Hit{
			{ID: "3", Type: "customer", Index: "test", Score: 2.437682},
			{ID: "21", Type: "seller", Index: "test", Score: 2.290845},
			{ID: "5", Type: "dealer", Index: "test", Score: 1.5},
		},
	}}

	sq := New(seller.Field("name.first").Match("Alex"), WithIndex(idx), WithDocClasses(seller, customer)).
		WithInstanceMapper(MappersByType{
			"seller": func(_ context.Context, ids []string) (map[string]any, error) {
				return map[string]any{ids[0]: ids[0] + "-" + ids[0]}, nil
			},
			"customer": func(_ context.Context, ids []string) (map[string]any, error) {
				return map[string]any{ids[0]: ids[0] + ":" + ids[0]}, nil
			},
		}).
		Filter(customer.Field("birthday").Gte("1960-01-01")).
		Limit(2)

	res, err := sq.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, "seller,customer", idx.lastDocType)
	assert.JSONEq(t, `{
		"query": {"filtered": {
			"query": {"match": {"name.first": "Alex"}},
			"filter": {"range": {"birthday": {"gte": "1960-01-01"}}}
		}},
		"size": 2
	}`, toJSON(t, idx.lastBody))

	assert.Same(t, customer, res.Hits[0].Document)
	assert.Equal(t, "3:3", res.Hits[0].Instance)
	assert.Same(t, seller, res.Hits[1].Document)
	assert.Equal(t, "21-21", res.Hits[1].Instance)
	assert.Nil(t, res.Hits[2].Document)
	assert.Nil(t, res.Hits[2].Instance)

	seq, err := sq.Instances().Iter(ctx)
	require.NoError(t, err)
	var instances []any
	for v := range seq {
		instances = append(instances, v)
	}
	assert.Equal(t, []any{"3:3", "21-21"}, instances)

	seq, err = sq.Iter(ctx)
	require.NoError(t, err)
	var hits []any
	for v := range seq {
		hits = append(hits, v)
	}
	assert.Len(t, hits, 3)
}

func TestScoringWithFiltersAcrossTypes(t *testing.T) {
	_, seller, customer := testIndexDocuments()

	q := New(seller.Field("name.first").Match("Alex")).
		FunctionScore(expr.P("weight", 2)).
		BoostScore(expr.P("filter", seller.Field("rating").Gte(4), "weight", 3)).
		Filter(customer.Field("birthday").Gte("1960-01-01")).
		PostFilter(seller.Field("rating").Eq(5)).
		PostFilter(customer.Field("name.last").Eq("Smith"))

	scored := `{"function_score": {
		"query": {"function_score": {
			"query": {"match": {"name.first": "Alex"}},
			"functions": [{"weight": 2}]
		}},
		"functions": [{"filter": {"range": {"rating": {"gte": 4}}}, "weight": 3}],
		"score_mode": "sum",
		"boost_mode": "sum"
	}}`
	postFilter := `{"bool": {"must": [
		{"term": {"rating": 5}},
		{"term": {"name.last": "Smith"}}
	]}}`
	filter := `{"range": {"birthday": {"gte": "1960-01-01"}}}`

	tests := []struct {
		version  compiler.Version
		expected string
	}{
		{
			version: compiler.V1,
			expected: `{
				"query": {"filtered": {"query": ` + scored + `, "filter": ` + filter + `}},
				"post_filter": ` + postFilter + `
			}`,
		},
		{
			version: compiler.V2,
			expected: `{
				"query": {"bool": {"must": ` + scored + `, "filter": ` + filter + `}},
				"post_filter": ` + postFilter + `
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			idx := &fakeIndex{
				compiler: compiler.New(compiler.WithVersion(tt.version)),
				result:   &Result{},
			}
			_, err := q.WithIndex(idx).Result(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "seller,customer", idx.lastDocType)
			assert.JSONEq(t, tt.expected, toJSON(t, idx.lastBody))
		})
	}
}

func TestResultIndexing(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndex{result: &Result{Hits: []*Hit{{ID: "1"}, {ID: "2"}, {ID: "3"}}}}
	q := New(expr.MatchAll(), WithIndex(idx))

	hit, err := q.At(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2", hit.ID)

	hit, err = q.At(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, "3", hit.ID)

	_, err = q.At(ctx, 3)
	assert.Error(t, err)

	hits, err := q.Hits(ctx, 1, -1)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = q.Hits(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "3", hits[0].ID)
	assert.Equal(t, 1, idx.searches)
}

func TestSearchErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndex{err: errors.New("connection refused")}
	q := New(expr.MatchAll(), WithIndex(idx))

	_, err := q.Result(ctx)
	require.Error(t, err)

	idx.err = nil
	idx.result = &Result{Total: 1}
	res, err := q.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, 2, idx.searches)
}

func TestInstanceMapperError(t *testing.T) {
	idx := &fakeIndex{result: &Result{Hits: []*Hit{{ID: "1", Type: "car"}}}}
	failing := MapperFunc(func(context.Context, []string) (map[string]any, error) {
		return nil, errors.New("db down")
	})
	_, err := New(nil, WithIndex(idx), WithInstanceMapper(failing)).Result(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestSearchParams(t *testing.T) {
	q := New(nil).
		WithRouting("r1").
		WithPreference("_local").
		WithTimeout("10s").
		WithQueryCache(true).
		WithTerminateAfter(100).
		WithScroll("1m")
	assert.Equal(t, []string{"routing", "preference", "timeout", "query_cache", "terminate_after", "scroll"}, q.searchParams.Keys())

	assert.Nil(t, q.WithSearchParams(nil).searchParams)
	assert.Equal(t, 6, q.WithSearchParams(expr.P()).searchParams.Len())
	assert.Nil(t, New(nil).WithSearchParams(expr.P()).searchParams)
}

// mutation applies one builder call, with n as its variable argument.
type mutation struct {
	name  string
	apply func(q *SearchQuery, n int) *SearchQuery
}

var mutations = []mutation{
	{"query", func(q *SearchQuery, n int) *SearchQuery { return q.Query(expr.Term(f("user"), n)) }},
	{"clear query", func(q *SearchQuery, _ int) *SearchQuery { return q.Query(nil) }},
	{"filter", func(q *SearchQuery, n int) *SearchQuery { return q.Filter(f("age").Gte(n)) }},
	{"post filter", func(q *SearchQuery, n int) *SearchQuery { return q.PostFilter(f("color").Eq(n)) }},
	{"order by", func(q *SearchQuery, _ int) *SearchQuery { return q.OrderBy(f("rank").Desc()) }},
	{"clear order", func(q *SearchQuery, _ int) *SearchQuery { return q.OrderBy(nil) }},
	{"aggregation", func(q *SearchQuery, n int) *SearchQuery {
		return q.Aggregation("a", agg.Terms(f("tag"), expr.P("size", n)))
	}},
	{"function score", func(q *SearchQuery, n int) *SearchQuery { return q.FunctionScore(expr.P("weight", n)) }},
	{"boost score", func(q *SearchQuery, n int) *SearchQuery { return q.BoostScore(expr.P("weight", n)) }},
	{"clear boost", func(q *SearchQuery, _ int) *SearchQuery { return q.BoostScore(nil) }},
	{"limit", func(q *SearchQuery, n int) *SearchQuery { return q.Limit(n) }},
	{"offset", func(q *SearchQuery, n int) *SearchQuery { return q.Offset(n) }},
	{"slice", func(q *SearchQuery, n int) *SearchQuery { return q.Slice(n, n+10) }},
	{"source", func(q *SearchQuery, _ int) *SearchQuery { return q.Source(f("name")) }},
	{"add source", func(q *SearchQuery, _ int) *SearchQuery { return q.AddSourceFields(f("extra")) }},
	{"rescore", func(q *SearchQuery, n int) *SearchQuery { return q.RescoreQuery(f("title").Match("x"), n) }},
	{"highlight", func(q *SearchQuery, _ int) *SearchQuery { return q.Highlight([]any{f("title")}) }},
	{"routing", func(q *SearchQuery, _ int) *SearchQuery { return q.WithRouting("r") }},
}

func TestSearchQueryImmutability(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := New(nil)
		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			m := rapid.SampledFrom(mutations).Draw(rt, "mutation")
			n := rapid.IntRange(0, 50).Draw(rt, "n")

			before := compiled(rt, q)
			beforeFilters := len(q.Filters())
			next := m.apply(q, n)

			assert.NotSame(rt, q, next, m.name)
			assert.Equal(rt, before, compiled(rt, q), m.name)
			assert.Equal(rt, beforeFilters, len(q.Filters()), m.name)
			q = next
		}
	})
}

func TestSearchQueryCompileIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := New(nil)
		steps := rapid.IntRange(0, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			m := rapid.SampledFrom(mutations).Draw(rt, "mutation")
			q = m.apply(q, rapid.IntRange(0, 50).Draw(rt, "n"))
		}
		assert.Equal(rt, compiled(rt, q), compiled(rt, q))
	})
}

func TestFilterCallsAreAnded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOfN(rapid.IntRange(0, 100), 1, 6).Draw(rt, "values")
		var filters []any
		chained := New(f("q").Eq("x"))
		for _, v := range values {
			filters = append(filters, f("v").Eq(v))
			chained = chained.Filter(f("v").Eq(v))
		}
		assert.Equal(rt, compiled(rt, New(f("q").Eq("x")).Filter(filters...)), compiled(rt, chained))
	})
}

func TestSearchQueryAsExpression(t *testing.T) {
	q := New(f("a").Eq(1)).Limit(5)
	out, err := compiler.New().Compile(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query": {"term": {"a": 1}}, "size": 5}`, toJSON(t, out))
}
