package compiler

import (
	"fmt"

	"github.com/quidditch/esdsl/pkg/dsl/agg"
	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

var operatorKeywords = map[expr.Operator]string{
	expr.OpAnd: "and",
	expr.OpOr:  "or",
}

var expressionHandlers = dispatchTable{
	expr.KindLiteral:           on(visitLiteral),
	expr.KindField:             on(visitField),
	expr.KindMappingField:      on(visitMappingFieldName),
	expr.KindAttributedField:   on(visitAttributedField),
	expr.KindBoostExpression:   on(visitBoostExpression),
	expr.KindQueryExpression:   on(visitQueryExpression),
	expr.KindFieldQuery:        on(visitFieldQuery),
	expr.KindRange:             on(visitRange),
	expr.KindTerms:             on(visitTerms),
	expr.KindMultiMatch:        on(visitMultiMatch),
	expr.KindMatchAll:          on(visitMatchAll),
	expr.KindQuery:             on(visitWrappedQuery),
	expr.KindBooleanExpression: on(visitBooleanExpression),
	expr.KindNot:               on(visitNot),
	expr.KindSort:              on(visitSort),
	expr.KindAgg:               on(visitAgg),
	expr.KindBucketAgg:         on(visitBucketAgg),
	expr.KindFilterAgg:         on(visitFilterAgg),
	expr.KindSource:            on(visitSource),
	expr.KindQueryRescorer:     on(visitQueryRescorer),
	expr.KindRescore:           on(visitRescore),
	expr.KindHighlightedField:  on(visitHighlightedField),
	expr.KindHighlight:         on(visitHighlight),
	expr.KindHasParent:         on(visitHasParent),
	expr.KindHasChild:          on(visitHasChild),
}

func single(key string, value any) *wire.Object {
	return wire.NewObject().Set(key, value)
}

func visitLiteral(_ *Compiler, l *expr.Literal) (any, error) {
	return l.Value, nil
}

func visitField(_ *Compiler, f *expr.Field) (any, error) {
	return f.Name(), nil
}

func visitMappingFieldName(_ *Compiler, f *expr.MappingField) (any, error) {
	return f.Name(), nil
}

func visitAttributedField(_ *Compiler, f *expr.AttributedField) (any, error) {
	return f.Name(), nil
}

func visitBoostExpression(c *Compiler, b *expr.Boosted) (any, error) {
	e, err := c.visit(b.Expr)
	if err != nil {
		return nil, err
	}
	w, err := c.visit(b.Weight)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%v^%v", e, w), nil
}

func visitQueryExpression(c *Compiler, q *expr.NamedQuery) (any, error) {
	params, err := c.visitParams(q.Params)
	if err != nil {
		return nil, err
	}
	return single(q.Name, params), nil
}

func visitFieldQuery(c *Compiler, q *expr.FieldQuery) (any, error) {
	field, err := c.visitKey(q.Field)
	if err != nil {
		return nil, err
	}
	query, err := c.visit(q.Query)
	if err != nil {
		return nil, err
	}
	if q.Params.Len() == 0 {
		return single(q.Name, single(field, query)), nil
	}
	params, err := c.visitParams(q.Params)
	if err != nil {
		return nil, err
	}
	body := single(q.QueryKey, query).Merge(params)
	return single(q.Name, single(field, body)), nil
}

func visitRange(c *Compiler, r *expr.RangeQuery) (any, error) {
	field, err := c.visitKey(r.Field)
	if err != nil {
		return nil, err
	}
	body, err := c.visitParams(r.RangeParams)
	if err != nil {
		return nil, err
	}
	bounds, err := c.visitParams(r.Bounds)
	if err != nil {
		return nil, err
	}
	body.Set(field, bounds)
	return single("range", body), nil
}

func visitTerms(c *Compiler, t *expr.TermsQuery) (any, error) {
	field, err := c.visitKey(t.Field)
	if err != nil {
		return nil, err
	}
	terms, err := c.visitList(t.Terms)
	if err != nil {
		return nil, err
	}
	params, err := c.visitParams(t.Params)
	if err != nil {
		return nil, err
	}
	return single("terms", single(field, terms).Merge(params)), nil
}

func visitMultiMatch(c *Compiler, m *expr.MultiMatchQuery) (any, error) {
	query, err := c.visit(m.Query)
	if err != nil {
		return nil, err
	}
	fields, err := c.visitList(m.Fields)
	if err != nil {
		return nil, err
	}
	params, err := c.visitParams(m.Params)
	if err != nil {
		return nil, err
	}
	body := wire.NewObject().Set("query", query).Set("fields", fields).Merge(params)
	return single("multi_match", body), nil
}

func visitMatchAll(c *Compiler, m *expr.MatchAllQuery) (any, error) {
	params, err := c.visitParams(m.Params)
	if err != nil {
		return nil, err
	}
	return single("match_all", params), nil
}

func visitWrappedQuery(c *Compiler, q *expr.WrappedQuery) (any, error) {
	query, err := c.visit(q.Query)
	if err != nil {
		return nil, err
	}
	if q.Params.Len() == 0 {
		return single("query", query), nil
	}
	params, err := c.visitParams(q.Params)
	if err != nil {
		return nil, err
	}
	return single("fquery", single("query", query).Merge(params)), nil
}

func visitBooleanExpression(c *Compiler, b *expr.BooleanExpression) (any, error) {
	op, ok := operatorKeywords[b.Operator]
	if !ok {
		return nil, compileError(b.Kind(), fmt.Errorf("unknown operator %s", b.Operator))
	}
	filters, err := c.visitList(b.Expressions)
	if err != nil {
		return nil, err
	}
	if b.Params.Len() == 0 {
		return single(op, filters), nil
	}
	params, err := c.visitParams(b.Params)
	if err != nil {
		return nil, err
	}
	return single(op, single("filters", filters).Merge(params)), nil
}

func visitNot(c *Compiler, n *expr.NotExpression) (any, error) {
	e, err := c.visit(n.Expr)
	if err != nil {
		return nil, err
	}
	if n.Params.Len() == 0 {
		return single("not", e), nil
	}
	params, err := c.visitParams(n.Params)
	if err != nil {
		return nil, err
	}
	return single("not", single("filter", e).Merge(params)), nil
}

func visitSort(c *Compiler, s *expr.SortExpression) (any, error) {
	field, err := c.visitKey(s.Expr)
	if err != nil {
		return nil, err
	}
	order, err := c.visit(s.Order)
	if err != nil {
		return nil, err
	}
	if s.Params.Len() > 0 {
		params, err := c.visitParams(s.Params)
		if err != nil {
			return nil, err
		}
		body := wire.NewObject()
		if order != nil {
			body.Set("order", order)
		}
		return single(field, body.Merge(params)), nil
	}
	if order != nil {
		return single(field, order), nil
	}
	return field, nil
}

func visitAgg(c *Compiler, a *agg.Metric) (any, error) {
	params, err := c.visitParams(a.Params)
	if err != nil {
		return nil, err
	}
	return single(a.AggName, params), nil
}

func visitBucketAgg(c *Compiler, b *agg.Bucket) (any, error) {
	params, err := c.visitParams(b.Params)
	if err != nil {
		return nil, err
	}
	return c.withSubAggregations(single(b.AggName, params), b.Aggregations)
}

func visitFilterAgg(c *Compiler, f *agg.FilterBucket) (any, error) {
	filter, err := c.visit(f.Filter)
	if err != nil {
		return nil, err
	}
	return c.withSubAggregations(single(f.AggName(), filter), f.Aggregations)
}

func (c *Compiler) withSubAggregations(body *wire.Object, aggs *expr.Params) (any, error) {
	if aggs.Len() == 0 {
		return body, nil
	}
	compiled, err := c.visitParams(aggs)
	if err != nil {
		return nil, err
	}
	return body.Set("aggregations", compiled), nil
}

func visitSource(c *Compiler, s *expr.SourceSpec) (any, error) {
	if s.HasFilter() {
		body := wire.NewObject()
		if len(s.Include) > 0 {
			include, err := c.visitList(s.Include)
			if err != nil {
				return nil, err
			}
			body.Set("include", include)
		}
		if len(s.Exclude) > 0 {
			exclude, err := c.visitList(s.Exclude)
			if err != nil {
				return nil, err
			}
			body.Set("exclude", exclude)
		}
		return body, nil
	}
	if b, ok := s.Fields.(bool); ok {
		return b, nil
	}
	if s.Fields == nil {
		return []any{}, nil
	}
	return c.visit(s.Fields)
}

func visitQueryRescorer(c *Compiler, r *expr.QueryRescorer) (any, error) {
	params, err := c.visitParams(r.Params)
	if err != nil {
		return nil, err
	}
	return single("query", params), nil
}

func visitRescore(c *Compiler, r *expr.Rescore) (any, error) {
	compiled, err := c.visit(r.Rescorer)
	if err != nil {
		return nil, err
	}
	if r.WindowSize == nil {
		return compiled, nil
	}
	body, ok := compiled.(*wire.Object)
	if !ok {
		return nil, compileError(r.Kind(), fmt.Errorf("rescorer compiled to %T, not an object", compiled))
	}
	windowSize, err := c.visit(r.WindowSize)
	if err != nil {
		return nil, err
	}
	return body.Clone().Set("window_size", windowSize), nil
}

func visitHighlightedField(c *Compiler, h *expr.HighlightedField) (any, error) {
	field, err := c.visitKey(h.Field)
	if err != nil {
		return nil, err
	}
	params, err := c.visitParams(h.Params)
	if err != nil {
		return nil, err
	}
	return single(field, params), nil
}

func visitHighlight(c *Compiler, h *expr.Highlight) (any, error) {
	params, err := c.visitParams(h.Params)
	if err != nil {
		return nil, err
	}
	if expr.IsNil(h.Fields) {
		return params, nil
	}
	switch fields := h.Fields.(type) {
	case *wire.Object, map[string]any:
		compiled, err := c.visit(fields)
		if err != nil {
			return nil, err
		}
		params.Set("fields", compiled)
	case []any:
		compiled := make([]any, 0, len(fields))
		for _, f := range fields {
			var item any
			switch f.(type) {
			case *expr.HighlightedField, *wire.Object, map[string]any:
				item, err = c.visit(f)
			default:
				var name string
				name, err = c.visitKey(f)
				item = single(name, wire.NewObject())
			}
			if err != nil {
				return nil, err
			}
			compiled = append(compiled, item)
		}
		params.Set("fields", compiled)
	default:
		return nil, compileError(h.Kind(), fmt.Errorf("unsupported highlight fields %T", h.Fields))
	}
	return params, nil
}

func visitHasParent(c *Compiler, h *expr.HasParent) (any, error) {
	params, err := c.visitParams(h.Params)
	if err != nil {
		return nil, err
	}
	parentType, err := c.relationType(h.Kind(), h.ParentType, h.Params, "parent type", "parent_type")
	if err != nil {
		return nil, err
	}
	params.Set("parent_type", parentType)
	return single("has_parent", params), nil
}

func visitHasChild(c *Compiler, h *expr.HasChild) (any, error) {
	params, err := c.visitParams(h.Params)
	if err != nil {
		return nil, err
	}
	childType, err := c.relationType(h.Kind(), h.ChildType, h.Params, "child type", "type")
	if err != nil {
		return nil, err
	}
	params.Set("type", childType)
	return single("has_child", params), nil
}

// relationType resolves the target type of has_parent/has_child. An
// explicit type wins, otherwise the params must reference exactly one
// document class.
func (c *Compiler) relationType(kind expr.Kind, explicit any, params *expr.Params, what, arg string) (any, error) {
	switch t := explicit.(type) {
	case *expr.Document:
		if t != nil && t.DocType() != "" {
			return t.DocType(), nil
		}
	case string:
		if t != "" {
			return t, nil
		}
	case nil:
	default:
		return c.visit(t)
	}

	docs := expr.CollectDocClasses(params)
	switch len(docs) {
	case 1:
		return docs[0].DocType(), nil
	case 0:
		return nil, compileError(kind, fmt.Errorf("%w %s, specify '%s' argument", ErrUndetectedType, what, arg))
	default:
		return nil, compileError(kind, fmt.Errorf("%w for %s, should be only one", ErrAmbiguousType, what))
	}
}
