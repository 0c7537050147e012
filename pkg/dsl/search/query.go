// Package search provides SearchQuery, an immutable builder for search
// requests. Every mutator returns a new query and leaves the receiver
// untouched, so partially built queries can be shared and branched.
package search

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quidditch/esdsl/pkg/dsl/compiler"
	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

var defaultCompiler = compiler.New()

// SearchQuery accumulates the state of one search request.
type SearchQuery struct {
	q                   any
	filters             []compiler.FilterGroup
	postFilters         []compiler.FilterGroup
	orderBy             []any
	aggregations        *expr.Params
	functionScore       []any
	functionScoreParams *expr.Params
	boostScore          []any
	boostScoreParams    *expr.Params
	source              *expr.SourceSpec
	fields              any
	limit               *int
	offset              *int
	rescores            []any
	suggest             any
	highlight           *expr.Highlight

	cluster        Searcher
	index          Index
	docClasses     []*expr.Document
	docType        string
	searchParams   *expr.Params
	instanceMapper InstanceMapper
	iterInstances  bool
	compiler       *compiler.Compiler
	logger         *zap.Logger

	result *resultCache
}

// resultCache holds the first successful result of a query value.
type resultCache struct {
	mu  sync.Mutex
	res *Result
}

func (c *resultCache) get(fetch func() (*Result, error)) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res != nil {
		return c.res, nil
	}
	res, err := fetch()
	if err != nil {
		return nil, err
	}
	c.res = res
	return res, nil
}

// Option configures a SearchQuery.
type Option func(*SearchQuery)

// WithIndex binds the query to an index.
func WithIndex(idx Index) Option {
	return func(q *SearchQuery) { q.index = idx }
}

// WithCluster binds the query to a cluster. An index binding wins.
func WithCluster(c Searcher) Option {
	return func(q *SearchQuery) { q.cluster = c }
}

// WithDocClasses sets the document classes searched instead of inferring
// them from field references.
func WithDocClasses(docs ...*expr.Document) Option {
	return func(q *SearchQuery) {
		q.docClasses = append([]*expr.Document(nil), docs...)
	}
}

// WithDocType sets the doc type string sent with requests.
func WithDocType(docType string) Option {
	return func(q *SearchQuery) { q.docType = docType }
}

// WithInstanceMapper sets the mapper that resolves hits to instances.
func WithInstanceMapper(m InstanceMapper) Option {
	return func(q *SearchQuery) { q.instanceMapper = m }
}

// WithSearchParams merges request parameters. Nil clears them all.
func WithSearchParams(params *expr.Params) Option {
	return func(q *SearchQuery) {
		if params == nil {
			q.searchParams = nil
			return
		}
		merged := expr.MergeParams(q.searchParams, params)
		if merged.Len() == 0 {
			q.searchParams = nil
			return
		}
		q.searchParams = merged
	}
}

func searchParam(key string, value any) Option {
	return WithSearchParams(expr.P(key, value))
}

// WithRouting sets the routing search parameter.
func WithRouting(routing string) Option { return searchParam("routing", routing) }

// WithPreference sets the preference search parameter.
func WithPreference(preference string) Option { return searchParam("preference", preference) }

// WithTimeout sets the timeout search parameter, e.g. "10s".
func WithTimeout(timeout string) Option { return searchParam("timeout", timeout) }

// WithSearchType sets the search_type parameter.
func WithSearchType(searchType string) Option { return searchParam("search_type", searchType) }

// WithQueryCache sets the query_cache parameter.
func WithQueryCache(enabled bool) Option { return searchParam("query_cache", enabled) }

// WithTerminateAfter sets the terminate_after parameter.
func WithTerminateAfter(n int) Option { return searchParam("terminate_after", n) }

// WithScroll sets the scroll parameter, e.g. "1m".
func WithScroll(scroll string) Option { return searchParam("scroll", scroll) }

// WithLogger sets the logger used for inference warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(q *SearchQuery) { q.logger = logger }
}

// WithCompiler overrides the compiler otherwise taken from the index or
// cluster.
func WithCompiler(c *compiler.Compiler) Option {
	return func(q *SearchQuery) { q.compiler = c }
}

// New creates a search query for the main query q, which may be nil.
func New(q any, opts ...Option) *SearchQuery {
	sq := &SearchQuery{q: q, logger: zap.NewNop(), result: &resultCache{}}
	for _, opt := range opts {
		opt(sq)
	}
	return sq
}

func (q *SearchQuery) clone() *SearchQuery {
	c := *q
	c.result = &resultCache{}
	return &c
}

// With returns a copy of q with opts applied.
func (q *SearchQuery) With(opts ...Option) *SearchQuery {
	c := q.clone()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithIndex returns a copy bound to idx.
func (q *SearchQuery) WithIndex(idx Index) *SearchQuery { return q.With(WithIndex(idx)) }

// WithCluster returns a copy searching across c.
func (q *SearchQuery) WithCluster(c Searcher) *SearchQuery { return q.With(WithCluster(c)) }

// WithDocClasses returns a copy targeting the given document classes.
func (q *SearchQuery) WithDocClasses(docs ...*expr.Document) *SearchQuery {
	return q.With(WithDocClasses(docs...))
}

// WithDocType returns a copy with an explicit doc type.
func (q *SearchQuery) WithDocType(docType string) *SearchQuery { return q.With(WithDocType(docType)) }

// WithInstanceMapper returns a copy that maps hits to instances with m.
func (q *SearchQuery) WithInstanceMapper(m InstanceMapper) *SearchQuery {
	return q.With(WithInstanceMapper(m))
}

// WithSearchParams returns a copy with params merged into the search params. Nil clears them.
func (q *SearchQuery) WithSearchParams(params *expr.Params) *SearchQuery {
	return q.With(WithSearchParams(params))
}

// WithRouting returns a copy with the routing param set.
func (q *SearchQuery) WithRouting(routing string) *SearchQuery { return q.With(WithRouting(routing)) }

// WithPreference returns a copy with the preference param set.
func (q *SearchQuery) WithPreference(preference string) *SearchQuery {
	return q.With(WithPreference(preference))
}

// WithTimeout returns a copy with the timeout param set.
func (q *SearchQuery) WithTimeout(timeout string) *SearchQuery { return q.With(WithTimeout(timeout)) }

// WithSearchType returns a copy with the search_type param set.
func (q *SearchQuery) WithSearchType(searchType string) *SearchQuery {
	return q.With(WithSearchType(searchType))
}

// WithQueryCache returns a copy with the query_cache param set.
func (q *SearchQuery) WithQueryCache(enabled bool) *SearchQuery {
	return q.With(WithQueryCache(enabled))
}

// WithTerminateAfter returns a copy with the terminate_after param set.
func (q *SearchQuery) WithTerminateAfter(n int) *SearchQuery {
	return q.With(WithTerminateAfter(n))
}

// WithScroll returns a copy with the scroll param set.
func (q *SearchQuery) WithScroll(scroll string) *SearchQuery { return q.With(WithScroll(scroll)) }

// WithLogger returns a copy logging to logger.
func (q *SearchQuery) WithLogger(logger *zap.Logger) *SearchQuery { return q.With(WithLogger(logger)) }

// WithCompiler returns a copy compiled by c.
func (q *SearchQuery) WithCompiler(c *compiler.Compiler) *SearchQuery {
	return q.With(WithCompiler(c))
}

// appended returns a new slice holding s followed by items. s is never
// written to, so clones can share it.
func appended[T any](s []T, items ...T) []T {
	out := make([]T, 0, len(s)+len(items))
	out = append(out, s...)
	return append(out, items...)
}

func clears(args []any) bool {
	return len(args) == 1 && expr.IsNil(args[0])
}

// Query replaces the main query. Nil removes it.
func (q *SearchQuery) Query(query any) *SearchQuery {
	c := q.clone()
	if expr.IsNil(query) {
		c.q = nil
	} else {
		c.q = query
	}
	return c
}

// Source sets the returned source fields. A single nil clears the setting
// and a single false disables the source.
func (q *SearchQuery) Source(fields ...any) *SearchQuery {
	c := q.clone()
	if clears(fields) {
		c.source = nil
	} else {
		c.source = expr.Source(fields...)
	}
	return c
}

// Fields is an alias of Source.
func (q *SearchQuery) Fields(fields ...any) *SearchQuery {
	return q.Source(fields...)
}

// SourceFilter sets include and exclude source patterns.
func (q *SearchQuery) SourceFilter(include, exclude []any) *SearchQuery {
	c := q.clone()
	c.source = expr.SourceFilter(include, exclude)
	return c
}

// AddSourceFields appends to the returned source fields.
func (q *SearchQuery) AddSourceFields(fields ...any) *SearchQuery {
	c := q.clone()
	src := &expr.SourceSpec{}
	var current []any
	if q.source != nil {
		src.Include = q.source.Include
		src.Exclude = q.source.Exclude
		current, _ = q.source.Fields.([]any)
	}
	src.Fields = appended(current, fields...)
	c.source = src
	return c
}

// StoredFields sets the top level fields key: true requests every stored
// field, false none. Nil clears it.
func (q *SearchQuery) StoredFields(fields any) *SearchQuery {
	c := q.clone()
	if expr.IsNil(fields) {
		c.fields = nil
	} else {
		c.fields = fields
	}
	return c
}

// Filter adds filters, and-ed with every other filter.
func (q *SearchQuery) Filter(filters ...any) *SearchQuery {
	return q.FilterWithMeta(nil, filters...)
}

// FilterWithMeta adds filters tagged with meta. Meta is never compiled.
func (q *SearchQuery) FilterWithMeta(meta any, filters ...any) *SearchQuery {
	c := q.clone()
	c.filters = appended(q.filters, compiler.FilterGroup{Exprs: appended[any](nil, filters...), Meta: meta})
	return c
}

// PostFilter adds filters applied after aggregations are computed.
func (q *SearchQuery) PostFilter(filters ...any) *SearchQuery {
	return q.PostFilterWithMeta(nil, filters...)
}

// PostFilterWithMeta adds post filters tagged with meta.
func (q *SearchQuery) PostFilterWithMeta(meta any, filters ...any) *SearchQuery {
	c := q.clone()
	c.postFilters = appended(q.postFilters, compiler.FilterGroup{Exprs: appended[any](nil, filters...), Meta: meta})
	return c
}

// OrderBy appends sort specifiers. A single nil clears the ordering.
func (q *SearchQuery) OrderBy(orders ...any) *SearchQuery {
	c := q.clone()
	if clears(orders) {
		c.orderBy = nil
	} else {
		c.orderBy = appended(q.orderBy, orders...)
	}
	return c
}

// Aggregation adds or replaces the aggregation called name.
func (q *SearchQuery) Aggregation(name string, a expr.Expression) *SearchQuery {
	return q.Aggregations(expr.P(name, a))
}

// Aggregations merges named aggregations. Nil clears them.
func (q *SearchQuery) Aggregations(aggs *expr.Params) *SearchQuery {
	c := q.clone()
	if aggs == nil {
		c.aggregations = nil
	} else {
		c.aggregations = expr.MergeParams(q.aggregations, aggs)
	}
	return c
}

// FunctionScore appends score functions wrapping the main query. A single
// nil clears the functions and their params.
func (q *SearchQuery) FunctionScore(functions ...any) *SearchQuery {
	c := q.clone()
	if clears(functions) {
		c.functionScore = nil
		c.functionScoreParams = nil
	} else {
		c.functionScore = appended(q.functionScore, functions...)
	}
	return c
}

// FunctionScoreParams merges params such as score_mode into the
// function_score wrapper.
func (q *SearchQuery) FunctionScoreParams(params *expr.Params) *SearchQuery {
	c := q.clone()
	c.functionScoreParams = expr.MergeParams(q.functionScoreParams, params)
	return c
}

// BoostScore appends boost functions. They wrap the query after the score
// functions and default to summing scores. A single nil clears them.
func (q *SearchQuery) BoostScore(functions ...any) *SearchQuery {
	c := q.clone()
	if clears(functions) {
		c.boostScore = nil
		c.boostScoreParams = nil
	} else {
		c.boostScore = appended(q.boostScore, functions...)
	}
	return c
}

// BoostScoreParams merges params into the boost function_score wrapper.
func (q *SearchQuery) BoostScoreParams(params *expr.Params) *SearchQuery {
	c := q.clone()
	c.boostScoreParams = expr.MergeParams(q.boostScoreParams, params)
	return c
}

// Limit sets the number of hits returned.
func (q *SearchQuery) Limit(n int) *SearchQuery {
	c := q.clone()
	c.limit = &n
	return c
}

// Offset sets the index of the first hit returned.
func (q *SearchQuery) Offset(n int) *SearchQuery {
	c := q.clone()
	c.offset = &n
	return c
}

// Slice narrows the hit window to [start, stop) relative to the current
// window. A negative stop leaves the end open.
func (q *SearchQuery) Slice(start, stop int) *SearchQuery {
	if start < 0 {
		start = 0
	}
	c := q.clone()
	base := 0
	if q.offset != nil {
		base = *q.offset
	}
	if start > 0 || q.offset != nil {
		offset := base + start
		c.offset = &offset
	}

	limit := -1
	if q.limit != nil {
		limit = max(*q.limit-start, 0)
	}
	if stop >= 0 {
		size := max(stop-start, 0)
		if limit < 0 || size < limit {
			limit = size
		}
	}
	if limit >= 0 {
		c.limit = &limit
	}
	return c
}

// Rescore appends a rescore pass over the top windowSize hits. A
// non-positive window leaves the engine default; a nil rescorer clears
// every rescore.
func (q *SearchQuery) Rescore(rescorer any, windowSize int) *SearchQuery {
	c := q.clone()
	if expr.IsNil(rescorer) {
		c.rescores = nil
	} else {
		c.rescores = appended(q.rescores, any(expr.NewRescore(rescorer, windowSize)))
	}
	return c
}

// RescoreQuery appends a query rescorer.
func (q *SearchQuery) RescoreQuery(rescoreQuery any, windowSize int, params ...*expr.Params) *SearchQuery {
	return q.Rescore(expr.NewQueryRescorer(rescoreQuery, params...), windowSize)
}

// Highlight sets the highlight block. Nil fields without params clear it.
func (q *SearchQuery) Highlight(fields any, params ...*expr.Params) *SearchQuery {
	c := q.clone()
	if expr.IsNil(fields) && len(params) == 0 {
		c.highlight = nil
	} else {
		c.highlight = expr.NewHighlight(fields, params...)
	}
	return c
}

// Suggest sets the suggest block. Nil clears it.
func (q *SearchQuery) Suggest(suggest any) *SearchQuery {
	c := q.clone()
	if expr.IsNil(suggest) {
		c.suggest = nil
	} else {
		c.suggest = suggest
	}
	return c
}

// Instances makes iteration yield mapped instances instead of hits.
func (q *SearchQuery) Instances() *SearchQuery {
	c := q.clone()
	c.iterInstances = true
	return c
}

// Kind implements expr.Expression.
func (q *SearchQuery) Kind() expr.Kind { return expr.KindSearchQuery }

// Context returns a snapshot of the accumulated state.
func (q *SearchQuery) Context() *compiler.QueryContext {
	return &compiler.QueryContext{
		Q:                   q.q,
		FilterGroups:        q.filters,
		PostFilterGroups:    q.postFilters,
		OrderBy:             q.orderBy,
		Aggregations:        q.aggregations,
		FunctionScore:       q.functionScore,
		FunctionScoreParams: q.functionScoreParams,
		BoostScore:          q.boostScore,
		BoostScoreParams:    q.boostScoreParams,
		Source:              q.source,
		Fields:              q.fields,
		Limit:               q.limit,
		Offset:              q.offset,
		Rescores:            q.rescores,
		Suggest:             q.suggest,
		Highlight:           q.highlight,
	}
}

// MetaFilter is a filter with the meta tag of the call that added it.
type MetaFilter struct {
	Filter any
	Meta   any
}

func withMeta(groups []compiler.FilterGroup) []MetaFilter {
	var out []MetaFilter
	for _, g := range groups {
		for _, f := range g.Exprs {
			out = append(out, MetaFilter{Filter: f, Meta: g.Meta})
		}
	}
	return out
}

// FiltersWithMeta returns every filter in call order.
func (q *SearchQuery) FiltersWithMeta() []MetaFilter { return withMeta(q.filters) }

// PostFiltersWithMeta returns every post filter in call order.
func (q *SearchQuery) PostFiltersWithMeta() []MetaFilter { return withMeta(q.postFilters) }

// Filters returns every filter in call order.
func (q *SearchQuery) Filters() []any { return q.Context().Filters() }

// PostFilters returns every post filter in call order.
func (q *SearchQuery) PostFilters() []any { return q.Context().PostFilters() }

// Compiler returns the compiler used by ToDict: the explicit one, then the
// index's, then the cluster's, then the default V1 compiler.
func (q *SearchQuery) Compiler() *compiler.Compiler {
	switch {
	case q.compiler != nil:
		return q.compiler
	case q.index != nil:
		return q.index.Compiler()
	case q.cluster != nil:
		return q.cluster.Compiler()
	}
	return defaultCompiler
}

// Compile compiles the search body with c.
func (q *SearchQuery) Compile(c *compiler.Compiler) (*wire.Object, error) {
	return c.SearchBody(q.Context())
}

// ToDict compiles the search body.
func (q *SearchQuery) ToDict() (*wire.Object, error) {
	return q.Compile(q.Compiler())
}

// DocClasses returns the bound document classes, or the classes referenced
// by the query, filters, post filters, aggregations, sort and rescores.
func (q *SearchQuery) DocClasses() []*expr.Document {
	if len(q.docClasses) > 0 {
		return q.docClasses
	}
	return expr.CollectDocClasses(
		q.q,
		q.source,
		q.Filters(),
		q.PostFilters(),
		q.aggregations,
		q.orderBy,
		q.rescores,
	)
}

// DocType returns the doc type string sent with requests. Several classes
// are comma joined; none yields "" and searches every type.
func (q *SearchQuery) DocType() string {
	return q.docTypeOf(q.DocClasses())
}

func (q *SearchQuery) docTypeOf(docs []*expr.Document) string {
	if q.docType != "" {
		return q.docType
	}
	if len(docs) == 0 {
		q.logger.Warn("cannot determine document class")
		return ""
	}
	types := make([]string, len(docs))
	for i, d := range docs {
		types[i] = d.DocType()
	}
	return strings.Join(types, ",")
}

func (q *SearchQuery) searcher() Searcher {
	if q.index != nil {
		return q.index
	}
	if q.cluster != nil {
		return q.cluster
	}
	return nil
}

// Result runs the search once per query value and caches the result.
func (q *SearchQuery) Result(ctx context.Context) (*Result, error) {
	return q.result.get(func() (*Result, error) {
		return q.fetch(ctx)
	})
}

func (q *SearchQuery) fetch(ctx context.Context) (*Result, error) {
	s := q.searcher()
	if s == nil {
		return nil, ErrNoSearcher
	}
	body, err := observeCompile(s, "search", q.ToDict)
	if err != nil {
		return nil, err
	}
	docs := q.DocClasses()
	res, err := s.Search(ctx, body, q.docTypeOf(docs), q.searchParams)
	if err != nil {
		return nil, err
	}
	bindDocuments(res, docs)
	if q.instanceMapper != nil {
		if err := mapInstances(ctx, res, q.instanceMapper); err != nil {
			return nil, fmt.Errorf("failed to map instances: %w", err)
		}
	}
	q.logger.Debug("search finished",
		zap.Int64("total", res.Total),
		zap.Int("hits", len(res.Hits)),
		zap.Int64("took_ms", res.Took))
	return res, nil
}

// queryBody compiles the filtered query without score functions.
func (q *SearchQuery) queryBody() (*wire.Object, error) {
	return observeCompile(q.index, "query", func() (*wire.Object, error) {
		return q.Compiler().QueryBody(q.Context())
	})
}

func observeCompile(s Searcher, target string, compile func() (*wire.Object, error)) (*wire.Object, error) {
	o, ok := s.(CompileObserver)
	if !ok {
		return compile()
	}
	start := time.Now()
	body, err := compile()
	o.ObserveCompile(target, err, time.Since(start))
	return body, err
}

func (q *SearchQuery) routing() *expr.Params {
	if q.searchParams == nil {
		return nil
	}
	routing, _ := q.searchParams.Get("routing")
	return expr.P("routing", routing)
}

// Count returns the number of matching documents.
func (q *SearchQuery) Count(ctx context.Context) (int64, error) {
	if q.index == nil {
		return 0, ErrNoIndex
	}
	body, err := q.queryBody()
	if err != nil {
		return 0, err
	}
	return q.index.Count(ctx, body, q.DocType(), q.routing())
}

// Exists reports whether any document matches. Params such as refresh
// are passed to the index.
func (q *SearchQuery) Exists(ctx context.Context, params ...*expr.Params) (bool, error) {
	if q.index == nil {
		return false, ErrNoIndex
	}
	body, err := q.queryBody()
	if err != nil {
		return false, err
	}
	return q.index.Exists(ctx, body, q.DocType(), expr.MergeParams(append([]*expr.Params{q.routing()}, params...)...))
}

// Delete deletes every matching document. Params such as timeout are
// passed to the index.
func (q *SearchQuery) Delete(ctx context.Context, params ...*expr.Params) error {
	if q.index == nil {
		return ErrNoIndex
	}
	body, err := q.queryBody()
	if err != nil {
		return err
	}
	return q.index.DeleteByQuery(ctx, body, q.DocType(), expr.MergeParams(params...))
}

// Iter fetches the result and yields its hits, or the mapped instances
// when Instances was set. Hits without an instance are skipped then.
func (q *SearchQuery) Iter(ctx context.Context) (iter.Seq[any], error) {
	res, err := q.Result(ctx)
	if err != nil {
		return nil, err
	}
	instances := q.iterInstances
	return func(yield func(any) bool) {
		for _, hit := range res.Hits {
			var v any = hit
			if instances {
				if hit.Instance == nil {
					continue
				}
				v = hit.Instance
			}
			if !yield(v) {
				return
			}
		}
	}, nil
}

// At returns the i-th fetched hit. Negative indexes count from the end.
func (q *SearchQuery) At(ctx context.Context, i int) (*Hit, error) {
	res, err := q.Result(ctx)
	if err != nil {
		return nil, err
	}
	n := len(res.Hits)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("hit index %d out of range [0, %d)", i, n)
	}
	return res.Hits[i], nil
}

// Hits returns the fetched hits in [start, stop). Bounds are clamped and a
// negative stop means the end.
func (q *SearchQuery) Hits(ctx context.Context, start, stop int) ([]*Hit, error) {
	res, err := q.Result(ctx)
	if err != nil {
		return nil, err
	}
	n := len(res.Hits)
	if stop < 0 || stop > n {
		stop = n
	}
	start = min(max(start, 0), stop)
	return res.Hits[start:stop], nil
}
