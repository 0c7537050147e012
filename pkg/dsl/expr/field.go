package expr

// fieldOps builds queries against the field it is embedded in.
type fieldOps struct {
	self Expression
}

// Eq matches the exact value.
func (o fieldOps) Eq(v any) *FieldQuery { return Term(o.self, v) }

// NotEq excludes the exact value.
func (o fieldOps) NotEq(v any) any { return BoolMustNot(Term(o.self, v)) }

// Gt matches values greater than v.
func (o fieldOps) Gt(v any) *RangeQuery { return Range(o.self, P("gt", v), nil) }

// Gte matches values greater than or equal to v.
func (o fieldOps) Gte(v any) *RangeQuery { return Range(o.self, P("gte", v), nil) }

// Lt matches values lower than v.
func (o fieldOps) Lt(v any) *RangeQuery { return Range(o.self, P("lt", v), nil) }

// Lte matches values lower than or equal to v.
func (o fieldOps) Lte(v any) *RangeQuery { return Range(o.self, P("lte", v), nil) }

// Between matches values in [from, to]. Nil bounds are open.
func (o fieldOps) Between(from, to any) *RangeQuery {
	return Range(o.self, P("gte", from, "lte", to), nil)
}

// In matches any of values.
func (o fieldOps) In(values ...any) *TermsQuery { return Terms(o.self, values) }

// Match runs a full text match.
func (o fieldOps) Match(query any, params ...*Params) *FieldQuery {
	return Match(o.self, query, params...)
}

// Prefix matches values starting with v.
func (o fieldOps) Prefix(v any, params ...*Params) *FieldQuery {
	return Prefix(o.self, v, params...)
}

// Exists matches documents with a value for the field.
func (o fieldOps) Exists() *NamedQuery { return ExistsQuery(o.self) }

// Asc sorts ascending.
func (o fieldOps) Asc(params ...*Params) *SortExpression { return Sort(o.self, "asc", params...) }

// Desc sorts descending.
func (o fieldOps) Desc(params ...*Params) *SortExpression { return Sort(o.self, "desc", params...) }

// Boost weights the field in multi-field queries.
func (o fieldOps) Boost(weight any) *Boosted { return &Boosted{Expr: o.self, Weight: weight} }

// Highlight attaches highlight options.
func (o fieldOps) Highlight(params ...*Params) *HighlightedField {
	return NewHighlightedField(o.self, params...)
}

type subField struct {
	key   string
	field *Field
}

// Field is a named field. In queries it compiles to its name; in mappings
// it contributes its type, sub-fields and mapping options.
type Field struct {
	fieldOps
	name      string
	typ       Type
	subFields []subField
	mapping   *Params
}

// FieldOption configures a field declaration.
type FieldOption func(*Field)

// WithSubField adds a multi-field under key. The sub-field's own name, when
// set, wins over key.
func WithSubField(key string, sub *Field) FieldOption {
	return func(f *Field) {
		f.subFields = append(f.subFields, subField{key: key, field: sub})
	}
}

// WithSubFields adds positional multi-fields named after themselves.
func WithSubFields(subs ...*Field) FieldOption {
	return func(f *Field) {
		for _, sub := range subs {
			f.subFields = append(f.subFields, subField{key: sub.name, field: sub})
		}
	}
}

// WithMapping sets extra mapping options such as analyzer or index.
func WithMapping(options *Params) FieldOption {
	return func(f *Field) {
		f.mapping = MergeParams(f.mapping, options)
	}
}

// NewField declares a field. Name may be empty when the field is declared
// on a document, which then names it after the attribute.
func NewField(name string, typ Type, opts ...FieldOption) *Field {
	f := &Field{name: name, typ: typ, mapping: P()}
	f.self = f
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// F is a shorthand for an untyped field reference.
func F(name string) *Field {
	return NewField(name, nil)
}

func (f *Field) Kind() Kind { return KindField }

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Type returns the declared type, nil for untyped references.
func (f *Field) Type() Type { return f.typ }

// MappingOptions returns the extra mapping options.
func (f *Field) MappingOptions() *Params { return f.mapping }

// SubFieldKeys returns the declared multi-field keys.
func (f *Field) SubFieldKeys() []string {
	keys := make([]string, len(f.subFields))
	for i, sf := range f.subFields {
		keys[i] = sf.key
	}
	return keys
}

// SubFields returns the multi-fields in declaration order, each named by
// its own name or its declared key.
func (f *Field) SubFields() []*Field {
	subs := make([]*Field, len(f.subFields))
	for i, sf := range f.subFields {
		subs[i] = sf.field.named(sf.key)
	}
	return subs
}

func (f *Field) subField(key string) *Field {
	for _, sf := range f.subFields {
		if sf.key == key || sf.field.name == key {
			return sf.field.named(sf.key)
		}
	}
	return nil
}

// named returns f, or a copy called name when f has no name.
func (f *Field) named(name string) *Field {
	if f.name != "" {
		return f
	}
	c := *f
	c.name = name
	c.self = &c
	return &c
}

// renamed returns a copy of f called name.
func (f *Field) renamed(name string) *Field {
	c := *f
	c.name = name
	c.self = &c
	return &c
}

// MappingField is a document meta field such as _id or _routing.
type MappingField struct {
	fieldOps
	name    string
	typ     Type
	mapping *Params
}

func newMappingField(name string, typ Type) *MappingField {
	f := &MappingField{name: name, typ: typ, mapping: P()}
	f.self = f
	return f
}

func (f *MappingField) Kind() Kind { return KindMappingField }

// Name returns the meta field name.
func (f *MappingField) Name() string { return f.name }

// Type returns the meta field type.
func (f *MappingField) Type() Type { return f.typ }

// MappingOptions returns the options emitted into the document mapping.
func (f *MappingField) MappingOptions() *Params { return f.mapping }

// AttributedField is a field looked up on a document class. Path is the
// full dotted name used in queries.
type AttributedField struct {
	fieldOps
	doc   *Document
	owner *Document
	path  string
	field *Field
}

func newAttributedField(doc, owner *Document, path string, field *Field) *AttributedField {
	af := &AttributedField{doc: doc, owner: owner, path: path, field: field}
	af.self = af
	return af
}

func (a *AttributedField) Kind() Kind { return KindAttributedField }

// Name returns the full dotted path.
func (a *AttributedField) Name() string { return a.path }

// Field returns the declared field.
func (a *AttributedField) Field() *Field { return a.field }

// Document returns the document class the lookup started from.
func (a *AttributedField) Document() *Document { return a.doc }

// DynamicFields returns the wildcard fields of the nested document, with
// their paths prefixed by this field's path.
func (a *AttributedField) DynamicFields() []*AttributedField {
	if a.field.typ == nil || a.field.typ.Document() == nil {
		return nil
	}
	return a.field.typ.Document().dynamicAttributed(a.doc, a.path)
}

// NestedFields returns the user fields of the nested document, with their
// paths prefixed by this field's path.
func (a *AttributedField) NestedFields() []*AttributedField {
	if a.field.typ == nil || a.field.typ.Document() == nil {
		return nil
	}
	return a.field.typ.Document().userAttributed(a.doc, a.path)
}

// Sub looks up a nested field or multi-field below this one.
func (a *AttributedField) Sub(name string) (*AttributedField, bool) {
	if a.field.typ != nil {
		if nested := a.field.typ.Document(); nested != nil {
			return nested.lookup(a.doc, a.path, splitPath(name))
		}
	}
	if a.owner != nil && a.owner.dynamic && a.field.typ == nil {
		return newAttributedField(a.doc, a.owner, joinPath(a.path, name), F(name)), true
	}
	segs := splitPath(name)
	sub := a.field.subField(segs[0])
	if sub == nil {
		return nil, false
	}
	af := newAttributedField(a.doc, a.owner, joinPath(a.path, sub.name), sub)
	if len(segs) == 1 {
		return af, true
	}
	return af.Sub(joinPath(segs[1:]...))
}
