// Package agg defines aggregation nodes.
package agg

import (
	"github.com/quidditch/esdsl/pkg/dsl/expr"
)

// Metric is a single value or multi value metric aggregation.
type Metric struct {
	AggName string
	Params  *expr.Params
}

func (m *Metric) Kind() expr.Kind { return expr.KindAgg }

func (m *Metric) Children() []any { return values(m.Params) }

// Bucket groups documents and may hold sub-aggregations.
type Bucket struct {
	AggName      string
	Params       *expr.Params
	Aggregations *expr.Params
}

func (b *Bucket) Kind() expr.Kind { return expr.KindBucketAgg }

func (b *Bucket) Children() []any {
	return append(values(b.Params), values(b.Aggregations)...)
}

// Aggregate returns a copy of the bucket with a named sub-aggregation.
func (b *Bucket) Aggregate(name string, a expr.Expression) *Bucket {
	c := *b
	c.Aggregations = withAgg(b.Aggregations, name, a)
	return &c
}

// FilterBucket narrows the documents of its sub-aggregations with a filter.
type FilterBucket struct {
	Filter       any
	Aggregations *expr.Params
}

func (f *FilterBucket) Kind() expr.Kind { return expr.KindFilterAgg }

func (f *FilterBucket) Children() []any {
	return append([]any{f.Filter}, values(f.Aggregations)...)
}

// AggName returns "filter".
func (f *FilterBucket) AggName() string { return "filter" }

// Aggregate returns a copy of the filter bucket with a named sub-aggregation.
func (f *FilterBucket) Aggregate(name string, a expr.Expression) *FilterBucket {
	c := *f
	c.Aggregations = withAgg(f.Aggregations, name, a)
	return &c
}

func withAgg(aggs *expr.Params, name string, a expr.Expression) *expr.Params {
	out := expr.MergeParams(aggs)
	out.Set(name, a)
	return out
}

func values(p *expr.Params) []any {
	var out []any
	p.Range(func(_ string, v any) bool {
		out = append(out, v)
		return true
	})
	return out
}

func metric(name string, field any, params []*expr.Params) *Metric {
	return &Metric{AggName: name, Params: expr.MergeParams(append([]*expr.Params{expr.P("field", field)}, params...)...)}
}

func bucket(name string, base *expr.Params, params []*expr.Params) *Bucket {
	return &Bucket{AggName: name, Params: expr.MergeParams(append([]*expr.Params{base}, params...)...), Aggregations: expr.P()}
}

// Min computes the minimum of field. Field may be nil when a script is given.
func Min(field any, params ...*expr.Params) *Metric { return metric("min", field, params) }

// Max computes the maximum of field.
func Max(field any, params ...*expr.Params) *Metric { return metric("max", field, params) }

// Avg computes the average of field.
func Avg(field any, params ...*expr.Params) *Metric { return metric("avg", field, params) }

// Sum computes the sum of field.
func Sum(field any, params ...*expr.Params) *Metric { return metric("sum", field, params) }

// Stats computes min, max, sum, count and avg of field.
func Stats(field any, params ...*expr.Params) *Metric { return metric("stats", field, params) }

// ExtendedStats adds variance and std deviation to Stats.
func ExtendedStats(field any, params ...*expr.Params) *Metric {
	return metric("extended_stats", field, params)
}

// ValueCount counts the values of field.
func ValueCount(field any, params ...*expr.Params) *Metric {
	return metric("value_count", field, params)
}

// Cardinality approximates the distinct values of field.
func Cardinality(field any, params ...*expr.Params) *Metric {
	return metric("cardinality", field, params)
}

// Percentiles computes percentiles of field.
func Percentiles(field any, params ...*expr.Params) *Metric {
	return metric("percentiles", field, params)
}

// TopHits returns the top matching hits per bucket. Params usually carry
// size, sort and _source.
func TopHits(params ...*expr.Params) *Metric {
	return &Metric{AggName: "top_hits", Params: expr.MergeParams(params...)}
}

// Terms buckets documents by the values of field.
func Terms(field any, params ...*expr.Params) *Bucket {
	return bucket("terms", expr.P("field", field), params)
}

// SignificantTerms buckets documents by unusually common values of field.
func SignificantTerms(field any, params ...*expr.Params) *Bucket {
	return bucket("significant_terms", expr.P("field", field), params)
}

// Histogram buckets numeric values into fixed intervals.
func Histogram(field any, interval any, params ...*expr.Params) *Bucket {
	return bucket("histogram", expr.P("field", field, "interval", interval), params)
}

// DateHistogram buckets dates into calendar intervals.
func DateHistogram(field any, interval any, params ...*expr.Params) *Bucket {
	return bucket("date_histogram", expr.P("field", field, "interval", interval), params)
}

// Range buckets values into the given ranges.
func Range(field any, ranges []any, params ...*expr.Params) *Bucket {
	return bucket("range", expr.P("field", field, "ranges", ranges), params)
}

// Global buckets every document regardless of the query.
func Global() *Bucket {
	return bucket("global", expr.P(), nil)
}

// Nested aggregates nested documents under path.
func Nested(path any) *Bucket {
	return bucket("nested", expr.P("path", path), nil)
}

// Filter creates a filter bucket.
func Filter(filter any) *FilterBucket {
	return &FilterBucket{Filter: filter, Aggregations: expr.P()}
}
