package compiler

import (
	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

// FilterGroup is the set of filters added by one filter call. Meta is kept
// for introspection and never compiled.
type FilterGroup struct {
	Exprs []any
	Meta  any
}

// QueryContext is a read-only snapshot of a search query's state.
type QueryContext struct {
	Q                   any
	FilterGroups        []FilterGroup
	PostFilterGroups    []FilterGroup
	OrderBy             []any
	Aggregations        *expr.Params
	FunctionScore       []any
	FunctionScoreParams *expr.Params
	BoostScore          []any
	BoostScoreParams    *expr.Params
	Source              *expr.SourceSpec
	Fields              any
	Limit               *int
	Offset              *int
	Rescores            []any
	Suggest             any
	Highlight           *expr.Highlight
}

// Filters returns every filter in call order.
func (qc *QueryContext) Filters() []any {
	return flatten(qc.FilterGroups)
}

// PostFilters returns every post filter in call order.
func (qc *QueryContext) PostFilters() []any {
	return flatten(qc.PostFilterGroups)
}

func flatten(groups []FilterGroup) []any {
	var out []any
	for _, g := range groups {
		out = append(out, g.Exprs...)
	}
	return out
}

// ContextProvider is a search query that can snapshot its state.
type ContextProvider interface {
	expr.Expression
	Context() *QueryContext
}

var queryHandlers = dispatchTable{
	expr.KindSearchQuery: on(visitSearchQuery),
}

var queryKinds = []expr.Kind{
	expr.KindLiteral, expr.KindField, expr.KindMappingField, expr.KindAttributedField,
	expr.KindBoostExpression, expr.KindQueryExpression, expr.KindFieldQuery, expr.KindRange,
	expr.KindTerms, expr.KindMultiMatch, expr.KindMatchAll, expr.KindQuery,
	expr.KindBooleanExpression, expr.KindNot, expr.KindSort, expr.KindAgg, expr.KindBucketAgg,
	expr.KindFilterAgg, expr.KindSource, expr.KindQueryRescorer, expr.KindRescore,
	expr.KindHighlightedField, expr.KindHighlight, expr.KindHasParent, expr.KindHasChild,
	expr.KindSearchQuery,
}

var queryTable = newTable(queryKinds, expressionHandlers, queryHandlers)

// Query returns the main query, wrapped into function_score for the
// registered functions first and the boost functions second.
func (c *Compiler) Query(qc *QueryContext, wrapFunctionScore bool) any {
	q := qc.Q
	if !wrapFunctionScore {
		return q
	}
	if len(qc.FunctionScore) > 0 {
		q = expr.FunctionScore(q, qc.FunctionScore, qc.FunctionScoreParams)
	}
	if len(qc.BoostScore) > 0 {
		params := expr.MergeParams(expr.P("score_mode", "sum", "boost_mode", "sum"), qc.BoostScoreParams)
		q = expr.FunctionScore(q, qc.BoostScore, params)
	}
	return q
}

// FilteredQuery combines the main query with the filters, which are and-ed
// together. The combination depends on the schema version.
func (c *Compiler) FilteredQuery(qc *QueryContext, wrapFunctionScore bool) any {
	q := c.Query(qc, wrapFunctionScore)
	filters := qc.Filters()
	if len(filters) == 0 {
		return q
	}
	return c.strategy.filtered(q, expr.BoolMust(filters...))
}

// PostFilter and-s every post filter together, nil when there are none.
func (c *Compiler) PostFilter(qc *QueryContext) any {
	return expr.BoolMust(qc.PostFilters()...)
}

// SearchBody compiles a query context into a search request body.
func (c *Compiler) SearchBody(qc *QueryContext) (*wire.Object, error) {
	body := wire.NewObject()
	set := func(key string, v any) error {
		compiled, err := c.visit(v)
		if err != nil {
			return err
		}
		body.Set(key, compiled)
		return nil
	}

	if q := c.FilteredQuery(qc, true); !expr.IsNil(q) {
		if err := set("query", q); err != nil {
			return nil, err
		}
	}
	if pf := c.PostFilter(qc); !expr.IsNil(pf) {
		if err := set("post_filter", pf); err != nil {
			return nil, err
		}
	}
	if len(qc.OrderBy) > 0 {
		if err := set("sort", qc.OrderBy); err != nil {
			return nil, err
		}
	}
	if qc.Source != nil {
		if err := set("_source", qc.Source); err != nil {
			return nil, err
		}
	}
	if qc.Fields != nil {
		switch fields := qc.Fields.(type) {
		case bool:
			if fields {
				body.Set("fields", "*")
			} else {
				body.Set("fields", []any{})
			}
		default:
			if err := set("fields", fields); err != nil {
				return nil, err
			}
		}
	}
	if qc.Aggregations.Len() > 0 {
		if err := set("aggregations", qc.Aggregations); err != nil {
			return nil, err
		}
	}
	if qc.Limit != nil {
		body.Set("size", *qc.Limit)
	}
	if qc.Offset != nil {
		body.Set("from", *qc.Offset)
	}
	if len(qc.Rescores) > 0 {
		if err := set("rescore", qc.Rescores); err != nil {
			return nil, err
		}
	}
	if !expr.IsNil(qc.Suggest) {
		if err := set("suggest", qc.Suggest); err != nil {
			return nil, err
		}
	}
	if qc.Highlight != nil {
		if err := set("highlight", qc.Highlight); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// QueryBody compiles the body of count, exists and delete-by-query
// requests: the filtered query without function scoring. It returns nil
// when there is neither a query nor a filter.
func (c *Compiler) QueryBody(qc *QueryContext) (*wire.Object, error) {
	q := c.FilteredQuery(qc, false)
	if expr.IsNil(q) {
		return nil, nil
	}
	compiled, err := c.visit(q)
	if err != nil {
		return nil, err
	}
	return single("query", compiled), nil
}

func visitSearchQuery(c *Compiler, p ContextProvider) (any, error) {
	return c.SearchBody(p.Context())
}
