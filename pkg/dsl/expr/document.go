package expr

import (
	"fmt"
	"path"
	"strings"
)

var metaFieldTypes = []struct {
	name string
	typ  Type
}{
	{"_uid", String},
	{"_id", String},
	{"_type", String},
	{"_source", String},
	{"_all", String},
	{"_analyzer", String},
	{"_parent", String},
	{"_routing", String},
	{"_index", String},
	{"_size", Integer},
	{"_timestamp", Date},
	{"_ttl", Long},
	{"_score", Float},
}

type declaredField struct {
	attr  string
	field *Field
}

// Document describes a document class: its doc type, meta fields, user
// fields in declaration order and wildcard (dynamic) fields.
type Document struct {
	docType        string
	mappingOptions *Params
	metaFields     []*MappingField
	fields         []declaredField
	dynamicFields  []*Field
	dynamic        bool
}

// NewDocument creates a document class with the standard meta fields.
func NewDocument(docType string) *Document {
	d := &Document{docType: docType, mappingOptions: P()}
	for _, mf := range metaFieldTypes {
		d.metaFields = append(d.metaFields, newMappingField(mf.name, mf.typ))
	}
	return d
}

// NewDynamicDocument creates a document class on which any field name
// resolves to an untyped field.
func NewDynamicDocument(docType string) *Document {
	d := NewDocument(docType)
	d.dynamic = true
	return d
}

func (d *Document) Kind() Kind { return KindDocument }

// DocType returns the document type name.
func (d *Document) DocType() string { return d.docType }

// IsDynamic reports whether unknown field names resolve.
func (d *Document) IsDynamic() bool { return d.dynamic }

// MappingOptions returns the document level mapping options.
func (d *Document) MappingOptions() *Params { return d.mappingOptions }

// WithMappingOptions merges document level mapping options.
func (d *Document) WithMappingOptions(options *Params) *Document {
	d.mappingOptions = MergeParams(d.mappingOptions, options)
	return d
}

// Declare adds a user field under attr. An unnamed field is named attr.
func (d *Document) Declare(attr string, f *Field) *Document {
	if strings.ContainsAny(attr, "*?") {
		return d.DeclareDynamic(f.named(attr))
	}
	d.fields = append(d.fields, declaredField{attr: attr, field: f.named(attr)})
	return d
}

// DeclareMeta sets mapping options of a meta field, adding the field when
// it is not a standard one.
func (d *Document) DeclareMeta(name string, options *Params) *Document {
	for _, mf := range d.metaFields {
		if mf.name == name {
			mf.mapping = MergeParams(mf.mapping, options)
			return d
		}
	}
	mf := newMappingField(name, String)
	mf.mapping = MergeParams(options)
	d.metaFields = append(d.metaFields, mf)
	return d
}

// DeclareDynamic adds a wildcard field such as "attr_*".
func (d *Document) DeclareDynamic(f *Field) *Document {
	d.dynamicFields = append(d.dynamicFields, f)
	return d
}

// MappingFields returns the meta fields that carry mapping options.
func (d *Document) MappingFields() []*MappingField {
	var fields []*MappingField
	for _, mf := range d.metaFields {
		if mf.mapping.Len() > 0 {
			fields = append(fields, mf)
		}
	}
	return fields
}

// UserFields returns the declared fields in declaration order.
func (d *Document) UserFields() []*AttributedField {
	return d.userAttributed(d, "")
}

// DynamicFields returns the wildcard fields in declaration order.
func (d *Document) DynamicFields() []*AttributedField {
	return d.dynamicAttributed(d, "")
}

func (d *Document) userAttributed(root *Document, prefix string) []*AttributedField {
	fields := make([]*AttributedField, 0, len(d.fields))
	for _, df := range d.fields {
		fields = append(fields, newAttributedField(root, d, joinPath(prefix, df.field.name), df.field))
	}
	return fields
}

func (d *Document) dynamicAttributed(root *Document, prefix string) []*AttributedField {
	fields := make([]*AttributedField, 0, len(d.dynamicFields))
	for _, f := range d.dynamicFields {
		fields = append(fields, newAttributedField(root, d, joinPath(prefix, f.name), f))
	}
	return fields
}

// Lookup resolves a dotted field path through nested documents and
// multi-fields.
func (d *Document) Lookup(fieldPath string) (*AttributedField, bool) {
	return d.lookup(d, "", splitPath(fieldPath))
}

// Field resolves a dotted field path and panics when it does not exist.
func (d *Document) Field(fieldPath string) *AttributedField {
	af, ok := d.Lookup(fieldPath)
	if !ok {
		panic(fmt.Sprintf("expr: document %q has no field %q", d.docType, fieldPath))
	}
	return af
}

func (d *Document) lookup(root *Document, prefix string, segs []string) (*AttributedField, bool) {
	if len(segs) == 0 || segs[0] == "" {
		return nil, false
	}
	f := d.findField(segs[0])
	if f == nil {
		return nil, false
	}
	af := newAttributedField(root, d, joinPath(prefix, f.name), f)
	if len(segs) == 1 {
		return af, true
	}
	return af.Sub(joinPath(segs[1:]...))
}

func (d *Document) findField(name string) *Field {
	for _, df := range d.fields {
		if df.attr == name {
			return df.field
		}
	}
	for _, df := range d.fields {
		if df.field.name == name {
			return df.field
		}
	}
	for _, mf := range d.metaFields {
		if mf.name == name {
			return NewField(mf.name, mf.typ)
		}
	}
	for _, f := range d.dynamicFields {
		if ok, _ := path.Match(f.name, name); ok {
			return f.renamed(name)
		}
	}
	if d.dynamic {
		return F(name)
	}
	return nil
}

func splitPath(p string) []string {
	return strings.Split(p, ".")
}

func joinPath(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}
