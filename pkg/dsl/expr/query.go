package expr

// Literal is a scalar value used where an expression is expected.
type Literal struct {
	Value any
}

func (l *Literal) Kind() Kind { return KindLiteral }

// Lit wraps a scalar value.
func Lit(v any) *Literal { return &Literal{Value: v} }

// Boosted is an expression with a weight, compiled to "expr^weight".
type Boosted struct {
	Expr   any
	Weight any
}

func (b *Boosted) Kind() Kind { return KindBoostExpression }

func (b *Boosted) Children() []any { return []any{b.Expr, b.Weight} }

// NamedQuery is a query identified only by its name and params, such as
// bool, filtered or function_score.
type NamedQuery struct {
	Name   string
	Params *Params
}

func (q *NamedQuery) Kind() Kind { return KindQueryExpression }

func (q *NamedQuery) Children() []any { return paramsChildren(q.Params) }

// Named creates a generic named query.
func Named(name string, params *Params) *NamedQuery {
	if params == nil {
		params = P()
	}
	return &NamedQuery{Name: name, Params: params}
}

// Bool creates a bool query from its clause params (must, should,
// must_not, filter, minimum_should_match...).
func Bool(params *Params) *NamedQuery {
	return Named("bool", params)
}

// BoolMust combines expressions into a bool must clause. A single
// expression is returned unchanged and no expressions yield nil.
func BoolMust(exprs ...any) any {
	return boolClause("must", exprs)
}

// BoolShould combines expressions into a bool should clause.
func BoolShould(exprs ...any) any {
	return boolClause("should", exprs)
}

// BoolMustNot wraps expressions into a bool must_not clause.
func BoolMustNot(exprs ...any) any {
	if len(exprs) == 0 {
		return nil
	}
	return Bool(P("must_not", exprs))
}

func boolClause(clause string, exprs []any) any {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return Bool(P(clause, exprs))
}

// Filtered creates a filtered query. Either side may be nil.
func Filtered(query, filter any) *NamedQuery {
	return Named("filtered", P("query", query, "filter", filter))
}

// FunctionScore creates a function_score query.
func FunctionScore(query any, functions []any, params *Params) *NamedQuery {
	return Named("function_score", MergeParams(P("query", query, "functions", functions), params))
}

// ConstantScore creates a constant_score query around a filter.
func ConstantScore(filter any, params *Params) *NamedQuery {
	return Named("constant_score", MergeParams(P("filter", filter), params))
}

// DisMax creates a dis_max query.
func DisMax(queries []any, params *Params) *NamedQuery {
	return Named("dis_max", MergeParams(P("queries", queries), params))
}

// Ids matches documents by id.
func Ids(values []any, params *Params) *NamedQuery {
	return Named("ids", MergeParams(P("values", values), params))
}

// ExistsQuery matches documents having a value for field.
func ExistsQuery(field any) *NamedQuery {
	return Named("exists", P("field", field))
}

// Missing matches documents without a value for field.
func Missing(field any, params *Params) *NamedQuery {
	return Named("missing", MergeParams(P("field", field), params))
}

// Nested runs query against nested objects under path.
func Nested(path any, query any, params *Params) *NamedQuery {
	return Named("nested", MergeParams(P("path", path, "query", query), params))
}

// QueryString creates a query_string query.
func QueryString(query string, params *Params) *NamedQuery {
	return Named("query_string", MergeParams(P("query", query), params))
}

// Script creates a script query.
func Script(script any, params *Params) *NamedQuery {
	return Named("script", MergeParams(P("script", script), params))
}

// FieldQuery is a query scoped to one field, like term or match.
type FieldQuery struct {
	Name     string
	QueryKey string
	Field    any
	Query    any
	Params   *Params
}

func (q *FieldQuery) Kind() Kind { return KindFieldQuery }

func (q *FieldQuery) Children() []any {
	return append([]any{q.Field, q.Query}, paramsChildren(q.Params)...)
}

func fieldQuery(name, key string, field, query any, params *Params) *FieldQuery {
	return &FieldQuery{Name: name, QueryKey: key, Field: field, Query: query, Params: params}
}

// Term creates a term query.
func Term(field, value any, params ...*Params) *FieldQuery {
	return fieldQuery("term", "value", field, value, MergeParams(params...))
}

// Match creates a match query.
func Match(field, query any, params ...*Params) *FieldQuery {
	return fieldQuery("match", "query", field, query, MergeParams(params...))
}

// MatchPhrase creates a match_phrase query.
func MatchPhrase(field, query any, params ...*Params) *FieldQuery {
	return fieldQuery("match_phrase", "query", field, query, MergeParams(params...))
}

// Prefix creates a prefix query.
func Prefix(field, value any, params ...*Params) *FieldQuery {
	return fieldQuery("prefix", "value", field, value, MergeParams(params...))
}

// Wildcard creates a wildcard query.
func Wildcard(field, value any, params ...*Params) *FieldQuery {
	return fieldQuery("wildcard", "value", field, value, MergeParams(params...))
}

// Regexp creates a regexp query.
func Regexp(field, value any, params ...*Params) *FieldQuery {
	return fieldQuery("regexp", "value", field, value, MergeParams(params...))
}

// Fuzzy creates a fuzzy query.
func Fuzzy(field, value any, params ...*Params) *FieldQuery {
	return fieldQuery("fuzzy", "value", field, value, MergeParams(params...))
}

// RangeQuery bounds a field. Bounds hold gt/gte/lt/lte and per-field
// options, RangeParams the options outside the field block.
type RangeQuery struct {
	Field       any
	Bounds      *Params
	RangeParams *Params
}

func (q *RangeQuery) Kind() Kind { return KindRange }

func (q *RangeQuery) Children() []any {
	children := append([]any{q.Field}, paramsChildren(q.Bounds)...)
	return append(children, paramsChildren(q.RangeParams)...)
}

// Range creates a range query.
func Range(field any, bounds *Params, rangeParams *Params) *RangeQuery {
	if bounds == nil {
		bounds = P()
	}
	return &RangeQuery{Field: field, Bounds: bounds, RangeParams: rangeParams}
}

// TermsQuery matches any of the given values.
type TermsQuery struct {
	Field  any
	Terms  []any
	Params *Params
}

func (q *TermsQuery) Kind() Kind { return KindTerms }

func (q *TermsQuery) Children() []any {
	children := append([]any{q.Field}, q.Terms...)
	return append(children, paramsChildren(q.Params)...)
}

// Terms creates a terms query.
func Terms(field any, values []any, params ...*Params) *TermsQuery {
	return &TermsQuery{Field: field, Terms: values, Params: MergeParams(params...)}
}

// MultiMatchQuery runs a match query against several fields.
type MultiMatchQuery struct {
	Query  any
	Fields []any
	Params *Params
}

func (q *MultiMatchQuery) Kind() Kind { return KindMultiMatch }

func (q *MultiMatchQuery) Children() []any {
	children := append([]any{q.Query}, q.Fields...)
	return append(children, paramsChildren(q.Params)...)
}

// MultiMatch creates a multi_match query.
func MultiMatch(query any, fields []any, params ...*Params) *MultiMatchQuery {
	return &MultiMatchQuery{Query: query, Fields: fields, Params: MergeParams(params...)}
}

// MatchAllQuery matches every document.
type MatchAllQuery struct {
	Params *Params
}

func (q *MatchAllQuery) Kind() Kind { return KindMatchAll }

// MatchAll creates a match_all query.
func MatchAll(params ...*Params) *MatchAllQuery {
	return &MatchAllQuery{Params: MergeParams(params...)}
}

// WrappedQuery uses a query in filter context. With params it compiles to
// an fquery filter.
type WrappedQuery struct {
	Query  any
	Params *Params
}

func (q *WrappedQuery) Kind() Kind { return KindQuery }

func (q *WrappedQuery) Children() []any {
	return append([]any{q.Query}, paramsChildren(q.Params)...)
}

// QueryFilter wraps a query so it can be used as a filter.
func QueryFilter(query any, params ...*Params) *WrappedQuery {
	return &WrappedQuery{Query: query, Params: MergeParams(params...)}
}

// Operator combines boolean expressions.
type Operator int

const (
	OpAnd Operator = iota
	OpOr
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	default:
		return "unknown"
	}
}

// BooleanExpression joins expressions with and/or.
type BooleanExpression struct {
	Operator    Operator
	Expressions []any
	Params      *Params
}

func (b *BooleanExpression) Kind() Kind { return KindBooleanExpression }

func (b *BooleanExpression) Children() []any {
	return append(append([]any{}, b.Expressions...), paramsChildren(b.Params)...)
}

// And creates an and filter.
func And(exprs ...any) *BooleanExpression {
	return &BooleanExpression{Operator: OpAnd, Expressions: exprs, Params: P()}
}

// Or creates an or filter.
func Or(exprs ...any) *BooleanExpression {
	return &BooleanExpression{Operator: OpOr, Expressions: exprs, Params: P()}
}

// WithParams returns a copy carrying params.
func (b *BooleanExpression) WithParams(params *Params) *BooleanExpression {
	c := *b
	c.Params = MergeParams(b.Params, params)
	return &c
}

// NotExpression negates a filter.
type NotExpression struct {
	Expr   any
	Params *Params
}

func (n *NotExpression) Kind() Kind { return KindNot }

func (n *NotExpression) Children() []any {
	return append([]any{n.Expr}, paramsChildren(n.Params)...)
}

// Not creates a not filter.
func Not(e any, params ...*Params) *NotExpression {
	return &NotExpression{Expr: e, Params: MergeParams(params...)}
}

// SortExpression orders hits by a field.
type SortExpression struct {
	Expr   any
	Order  any
	Params *Params
}

func (s *SortExpression) Kind() Kind { return KindSort }

func (s *SortExpression) Children() []any {
	return append([]any{s.Expr, s.Order}, paramsChildren(s.Params)...)
}

// Sort creates a sort specifier. Order may be nil.
func Sort(e any, order any, params ...*Params) *SortExpression {
	return &SortExpression{Expr: e, Order: order, Params: MergeParams(params...)}
}
