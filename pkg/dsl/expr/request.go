package expr

// SourceSpec selects the stored source returned with hits. Fields is either
// a bool or a field list. Include and Exclude take precedence over Fields.
type SourceSpec struct {
	Fields  any
	Include []any
	Exclude []any
}

func (s *SourceSpec) Kind() Kind { return KindSource }

func (s *SourceSpec) Children() []any {
	children := []any{s.Fields}
	children = append(children, s.Include...)
	return append(children, s.Exclude...)
}

// Source creates a source specifier. A single boolean argument enables or
// disables the source entirely.
func Source(fields ...any) *SourceSpec {
	if len(fields) == 1 {
		if b, ok := fields[0].(bool); ok {
			return &SourceSpec{Fields: b}
		}
	}
	list := make([]any, len(fields))
	copy(list, fields)
	return &SourceSpec{Fields: list}
}

// SourceFilter creates a source specifier with include/exclude patterns.
func SourceFilter(include, exclude []any) *SourceSpec {
	return &SourceSpec{Fields: []any{}, Include: include, Exclude: exclude}
}

// HasFilter reports whether include or exclude patterns are set.
func (s *SourceSpec) HasFilter() bool {
	return len(s.Include) > 0 || len(s.Exclude) > 0
}

// QueryRescorer rescores the top hits with a second query.
type QueryRescorer struct {
	Params *Params
}

func (r *QueryRescorer) Kind() Kind { return KindQueryRescorer }

func (r *QueryRescorer) Children() []any { return paramsChildren(r.Params) }

// NewQueryRescorer creates a query rescorer. Params usually carry
// query_weight, rescore_query_weight and score_mode.
func NewQueryRescorer(rescoreQuery any, params ...*Params) *QueryRescorer {
	return &QueryRescorer{Params: MergeParams(append([]*Params{P("rescore_query", rescoreQuery)}, params...)...)}
}

// Rescore applies a rescorer to a window of top hits.
type Rescore struct {
	Rescorer   any
	WindowSize any
}

func (r *Rescore) Kind() Kind { return KindRescore }

func (r *Rescore) Children() []any { return []any{r.Rescorer} }

// NewRescore creates a rescore entry. A non-positive window size is left
// to the engine default.
func NewRescore(rescorer any, windowSize int) *Rescore {
	r := &Rescore{Rescorer: rescorer}
	if windowSize > 0 {
		r.WindowSize = windowSize
	}
	return r
}

// HighlightedField is a field with its own highlight options.
type HighlightedField struct {
	Field  any
	Params *Params
}

func (h *HighlightedField) Kind() Kind { return KindHighlightedField }

func (h *HighlightedField) Children() []any {
	return append([]any{h.Field}, paramsChildren(h.Params)...)
}

// NewHighlightedField creates a highlighted field.
func NewHighlightedField(field any, params ...*Params) *HighlightedField {
	return &HighlightedField{Field: field, Params: MergeParams(params...)}
}

// Highlight is the highlight block of a search request. Fields is either
// params keyed by field name or a list of fields and highlighted fields.
type Highlight struct {
	Fields any
	Params *Params
}

func (h *Highlight) Kind() Kind { return KindHighlight }

func (h *Highlight) Children() []any {
	return append([]any{h.Fields}, paramsChildren(h.Params)...)
}

// NewHighlight creates a highlight block.
func NewHighlight(fields any, params ...*Params) *Highlight {
	return &Highlight{Fields: fields, Params: MergeParams(params...)}
}

// HasParent matches children whose parent matches query. ParentType is a
// doc type string or *Document; when nil it is detected from the query.
type HasParent struct {
	Params     *Params
	ParentType any
}

func (h *HasParent) Kind() Kind { return KindHasParent }

// Children is empty: parent fields do not scope the surrounding search.
func (h *HasParent) Children() []any { return nil }

// NewHasParent creates a has_parent query.
func NewHasParent(query any, parentType any, params ...*Params) *HasParent {
	return &HasParent{
		Params:     MergeParams(append([]*Params{P("query", query)}, params...)...),
		ParentType: parentType,
	}
}

// HasChild matches parents having a child matching query. ChildType is a doc
// type string or *Document; when nil it is detected from the query.
type HasChild struct {
	Params    *Params
	ChildType any
}

func (h *HasChild) Kind() Kind { return KindHasChild }

// Children is empty: child fields do not scope the surrounding search.
func (h *HasChild) Children() []any { return nil }

// NewHasChild creates a has_child query.
func NewHasChild(query any, childType any, params ...*Params) *HasChild {
	return &HasChild{
		Params:    MergeParams(append([]*Params{P("query", query)}, params...)...),
		ChildType: childType,
	}
}
