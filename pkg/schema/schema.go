// Package schema loads document declarations from YAML.
//
// A schema file lists documents by doc type:
//
//	documents:
//	  - doc_type: car
//	    mapping_options: {_all: {enabled: false}}
//	    meta_fields: {_routing: {required: true}}
//	    fields:
//	      - {name: vendor, type: string, options: {index: not_analyzed}}
//	      - {name: seller, type: object, document: seller}
//	      - {name: tags, type: list, of: string}
//	    dynamic_fields:
//	      - {name: "attr_*", type: integer}
//
// Object, nested and list-of-object fields reference other documents by doc
// type. References may point forward in the file.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

// ErrUnknownDocument is returned when a field references a doc type that
// the schema does not declare.
var ErrUnknownDocument = errors.New("unknown document")

// ErrCycle is returned when documents embed each other.
var ErrCycle = errors.New("document reference cycle")

// File is the root structure of a schema file
type File struct {
	Documents []DocumentDef `yaml:"documents"`
}

// DocumentDef declares one document class
type DocumentDef struct {
	DocType        string     `yaml:"doc_type"`
	MappingOptions yaml.Node  `yaml:"mapping_options"`
	MetaFields     yaml.Node  `yaml:"meta_fields"`
	Fields         []FieldDef `yaml:"fields"`
	DynamicFields  []FieldDef `yaml:"dynamic_fields"`
	Dynamic        bool       `yaml:"dynamic"`
}

// FieldDef declares a field. Name is the attribute, ESName the stored name
// when it differs.
type FieldDef struct {
	Name     string     `yaml:"name"`
	ESName   string     `yaml:"es_name"`
	Type     string     `yaml:"type"`
	Document string     `yaml:"document"` // object, nested and list of object
	Of       string     `yaml:"of"`       // element type of a list
	Options  yaml.Node  `yaml:"options"`
	Fields   []FieldDef `yaml:"fields"` // multi-fields
}

// Registry holds the loaded documents in declaration order.
type Registry struct {
	docs   []*expr.Document
	byType map[string]*expr.Document
}

// Documents returns every document in declaration order.
func (r *Registry) Documents() []*expr.Document {
	return r.docs
}

// Get returns the document with the given doc type.
func (r *Registry) Get(docType string) (*expr.Document, bool) {
	doc, ok := r.byType[docType]
	return doc, ok
}

// DocTypes returns the doc types in declaration order.
func (r *Registry) DocTypes() []string {
	types := make([]string, len(r.docs))
	for i, doc := range r.docs {
		types[i] = doc.DocType()
	}
	return types
}

// Load reads and parses a schema file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return reg, nil
}

// Parse builds a registry from schema YAML.
func Parse(data []byte) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	b := &builder{
		defs:  make(map[string]*DocumentDef, len(file.Documents)),
		state: make(map[string]int),
		reg:   &Registry{byType: make(map[string]*expr.Document, len(file.Documents))},
	}
	for i := range file.Documents {
		def := &file.Documents[i]
		if def.DocType == "" {
			return nil, fmt.Errorf("document %d: missing doc_type", i)
		}
		if strings.HasPrefix(def.DocType, "_") {
			return nil, fmt.Errorf("document %q: doc_type must not start with '_'", def.DocType)
		}
		if _, dup := b.defs[def.DocType]; dup {
			return nil, fmt.Errorf("document %q declared twice", def.DocType)
		}
		b.defs[def.DocType] = def
	}
	for _, def := range file.Documents {
		doc, err := b.document(def.DocType)
		if err != nil {
			return nil, err
		}
		b.reg.docs = append(b.reg.docs, doc)
	}
	return b.reg, nil
}

const (
	unvisited = iota
	visiting
	built
)

type builder struct {
	defs  map[string]*DocumentDef
	state map[string]int
	reg   *Registry
}

func (b *builder) document(docType string) (*expr.Document, error) {
	switch b.state[docType] {
	case built:
		return b.reg.byType[docType], nil
	case visiting:
		return nil, fmt.Errorf("%w at %q", ErrCycle, docType)
	}
	def, ok := b.defs[docType]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDocument, docType)
	}
	b.state[docType] = visiting

	var doc *expr.Document
	if def.Dynamic {
		doc = expr.NewDynamicDocument(docType)
	} else {
		doc = expr.NewDocument(docType)
	}

	options, err := params(&def.MappingOptions)
	if err != nil {
		return nil, fmt.Errorf("document %q mapping_options: %w", docType, err)
	}
	doc.WithMappingOptions(options)

	meta, err := params(&def.MetaFields)
	if err != nil {
		return nil, fmt.Errorf("document %q meta_fields: %w", docType, err)
	}
	var metaErr error
	meta.Range(func(name string, v any) bool {
		opts, ok := v.(*wire.Object)
		if !ok {
			metaErr = fmt.Errorf("document %q meta field %q: options must be a mapping", docType, name)
			return false
		}
		doc.DeclareMeta(name, opts)
		return true
	})
	if metaErr != nil {
		return nil, metaErr
	}

	for _, fd := range def.Fields {
		if fd.Name == "" {
			return nil, fmt.Errorf("document %q: field without name", docType)
		}
		f, err := b.field(fd)
		if err != nil {
			return nil, fmt.Errorf("document %q field %q: %w", docType, fd.Name, err)
		}
		doc.Declare(fd.Name, f)
	}
	for _, fd := range def.DynamicFields {
		if fd.Name == "" {
			return nil, fmt.Errorf("document %q: dynamic field without name", docType)
		}
		f, err := b.field(FieldDef{
			Name: "", ESName: fd.Name, Type: fd.Type, Document: fd.Document,
			Of: fd.Of, Options: fd.Options, Fields: fd.Fields,
		})
		if err != nil {
			return nil, fmt.Errorf("document %q dynamic field %q: %w", docType, fd.Name, err)
		}
		doc.DeclareDynamic(f)
	}

	b.state[docType] = built
	b.reg.byType[docType] = doc
	return doc, nil
}

func (b *builder) field(fd FieldDef) (*expr.Field, error) {
	typ, err := b.fieldType(fd.Type, fd)
	if err != nil {
		return nil, err
	}
	var opts []expr.FieldOption
	options, err := params(&fd.Options)
	if err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	if options.Len() > 0 {
		opts = append(opts, expr.WithMapping(options))
	}
	for _, sub := range fd.Fields {
		if sub.Name == "" {
			return nil, errors.New("multi-field without name")
		}
		f, err := b.field(FieldDef{
			ESName: sub.ESName, Type: sub.Type, Document: sub.Document,
			Of: sub.Of, Options: sub.Options, Fields: sub.Fields,
		})
		if err != nil {
			return nil, fmt.Errorf("multi-field %q: %w", sub.Name, err)
		}
		opts = append(opts, expr.WithSubField(sub.Name, f))
	}
	return expr.NewField(fd.ESName, typ, opts...), nil
}

func (b *builder) fieldType(name string, fd FieldDef) (expr.Type, error) {
	switch name {
	case "":
		return nil, errors.New("missing type")
	case "object", "nested":
		if fd.Document == "" {
			return nil, fmt.Errorf("%s type requires a document", name)
		}
		doc, err := b.document(fd.Document)
		if err != nil {
			return nil, err
		}
		if name == "nested" {
			return expr.NestedType(doc), nil
		}
		return expr.Object(doc), nil
	case "list":
		if fd.Of == "" || fd.Of == "list" {
			return nil, errors.New("list type requires a scalar, object or nested element type in of")
		}
		elem, err := b.fieldType(fd.Of, fd)
		if err != nil {
			return nil, err
		}
		return expr.List(elem), nil
	}
	t, ok := expr.ScalarType(name)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

// params converts a YAML mapping into ordered params. An absent node gives
// empty params.
func params(n *yaml.Node) (*expr.Params, error) {
	if n.Kind == 0 {
		return expr.P(), nil
	}
	v, err := nodeValue(n)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case nil:
		return expr.P(), nil
	case *wire.Object:
		return val, nil
	}
	return nil, fmt.Errorf("expected a mapping at line %d", n.Line)
}

// nodeValue decodes a YAML node into wire values, keeping mapping order.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		obj := wire.NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			var key string
			if err := n.Content[i].Decode(&key); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Content[i].Line, err)
			}
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(key, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := nodeValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
}
