// Package expr defines the expression tree compiled into Elasticsearch
// request and mapping bodies.
package expr

// Kind identifies how a node is compiled
type Kind int

const (
	KindLiteral Kind = iota + 1
	KindField
	KindMappingField
	KindAttributedField
	KindBoostExpression
	KindQueryExpression
	KindFieldQuery
	KindRange
	KindTerms
	KindMultiMatch
	KindMatchAll
	KindQuery
	KindBooleanExpression
	KindNot
	KindSort
	KindAgg
	KindBucketAgg
	KindFilterAgg
	KindSource
	KindQueryRescorer
	KindRescore
	KindHighlightedField
	KindHighlight
	KindHasParent
	KindHasChild
	KindSearchQuery
	KindDocument
)

var kindNames = map[Kind]string{
	KindLiteral:           "literal",
	KindField:             "field",
	KindMappingField:      "mapping_field",
	KindAttributedField:   "attributed_field",
	KindBoostExpression:   "boost_expression",
	KindQueryExpression:   "query_expression",
	KindFieldQuery:        "field_query",
	KindRange:             "range",
	KindTerms:             "terms",
	KindMultiMatch:        "multi_match",
	KindMatchAll:          "match_all",
	KindQuery:             "query",
	KindBooleanExpression: "boolean_expression",
	KindNot:               "not",
	KindSort:              "sort",
	KindAgg:               "agg",
	KindBucketAgg:         "bucket_agg",
	KindFilterAgg:         "filter_agg",
	KindSource:            "source",
	KindQueryRescorer:     "query_rescorer",
	KindRescore:           "rescore",
	KindHighlightedField:  "highlighted_field",
	KindHighlight:         "highlight",
	KindHasParent:         "has_parent",
	KindHasChild:          "has_child",
	KindSearchQuery:       "search_query",
	KindDocument:          "document",
}

// String returns the string representation of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Expression is a node of the expression tree.
type Expression interface {
	Kind() Kind
}

// Composite is implemented by nodes holding nested values. Children are
// walked when collecting the document classes a tree refers to.
type Composite interface {
	Children() []any
}
