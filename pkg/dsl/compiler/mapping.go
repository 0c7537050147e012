package compiler

import (
	"fmt"

	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

// mappingRun holds the dynamic templates collected during one mapping
// compilation.
type mappingRun struct {
	templates []any
}

var mappingHandlers = dispatchTable{
	expr.KindField:           on(visitMappingField),
	expr.KindMappingField:    on(visitMetaField),
	expr.KindAttributedField: on(visitMappingAttributedField),
	expr.KindDocument:        on(visitDocument),
}

var mappingTable = newTable(
	[]expr.Kind{expr.KindField, expr.KindMappingField, expr.KindAttributedField, expr.KindDocument},
	mappingHandlers,
)

// MappingCompiler compiles document declarations into index mappings.
type MappingCompiler struct{}

// NewMappingCompiler creates a mapping compiler.
func NewMappingCompiler() *MappingCompiler {
	return &MappingCompiler{}
}

// Compile returns {doc_type: mapping} for doc.
func (m *MappingCompiler) Compile(doc *expr.Document) (*wire.Object, error) {
	c := m.newRun()
	return c.CompileObject(doc)
}

// CompileField returns {name: mapping} for a single field declaration.
// Dynamic templates of nested documents are dropped.
func (m *MappingCompiler) CompileField(f expr.Expression) (*wire.Object, error) {
	c := m.newRun()
	return c.CompileObject(f)
}

// CompileAll merges the mappings of several documents into one object.
func (m *MappingCompiler) CompileAll(docs ...*expr.Document) (*wire.Object, error) {
	out := wire.NewObject()
	for _, doc := range docs {
		mapping, err := m.Compile(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to compile mapping for %q: %w", doc.DocType(), err)
		}
		out.Merge(mapping)
	}
	return out, nil
}

func (m *MappingCompiler) newRun() *Compiler {
	return &Compiler{table: mappingTable, strict: true, mapping: &mappingRun{}}
}

func visitDocument(c *Compiler, doc *expr.Document) (any, error) {
	mapping, err := c.visitParams(doc.MappingOptions())
	if err != nil {
		return nil, err
	}
	for _, mf := range doc.MappingFields() {
		compiled, err := c.CompileObject(mf)
		if err != nil {
			return nil, err
		}
		mapping.Merge(compiled)
	}
	properties, err := c.properties(doc.UserFields())
	if err != nil {
		return nil, err
	}
	mapping.Set("properties", properties)
	for _, f := range doc.DynamicFields() {
		if err := c.addDynamicTemplate(f); err != nil {
			return nil, err
		}
	}
	if len(c.mapping.templates) > 0 {
		mapping.Set("dynamic_templates", c.mapping.templates)
	}
	return single(doc.DocType(), mapping), nil
}

func visitMetaField(c *Compiler, f *expr.MappingField) (any, error) {
	out := wire.NewObject()
	if f.MappingOptions().Len() > 0 {
		options, err := c.visitParams(f.MappingOptions())
		if err != nil {
			return nil, err
		}
		out.Set(f.Name(), options)
	}
	return out, nil
}

func visitMappingAttributedField(c *Compiler, af *expr.AttributedField) (any, error) {
	for _, f := range af.DynamicFields() {
		if err := c.addDynamicTemplate(f); err != nil {
			return nil, err
		}
	}
	return c.fieldMapping(af.Field(), af.NestedFields())
}

func visitMappingField(c *Compiler, f *expr.Field) (any, error) {
	var nested []*expr.AttributedField
	if f.Type() != nil && f.Type().Document() != nil {
		nested = f.Type().Document().UserFields()
	}
	return c.fieldMapping(f, nested)
}

// fieldMapping emits {name: {"type": ..., "properties": ..., "fields": ...}}
// followed by the field's own mapping options.
func (c *Compiler) fieldMapping(f *expr.Field, nested []*expr.AttributedField) (*wire.Object, error) {
	mapping := wire.NewObject()
	if t := f.Type(); t != nil {
		mapping.Set("type", t.Name())
		if doc := t.Document(); doc != nil {
			options, err := c.visitParams(doc.MappingOptions())
			if err != nil {
				return nil, err
			}
			mapping.Merge(options)
			properties, err := c.properties(nested)
			if err != nil {
				return nil, err
			}
			mapping.Set("properties", properties)
		}
	}

	if subs := f.SubFields(); len(subs) > 0 {
		fields := wire.NewObject()
		for _, sub := range subs {
			compiled, err := c.CompileObject(sub)
			if err != nil {
				return nil, err
			}
			fields.Merge(compiled)
		}
		mapping.Set("fields", fields)
	}

	options, err := c.visitParams(f.MappingOptions())
	if err != nil {
		return nil, err
	}
	mapping.Merge(options)
	return single(f.Name(), mapping), nil
}

func (c *Compiler) properties(fields []*expr.AttributedField) (*wire.Object, error) {
	properties := wire.NewObject()
	for _, af := range fields {
		compiled, err := c.CompileObject(af)
		if err != nil {
			return nil, err
		}
		properties.Merge(compiled)
	}
	return properties, nil
}

// addDynamicTemplate records {path: {"path_match": path, "mapping": m}}.
func (c *Compiler) addDynamicTemplate(af *expr.AttributedField) error {
	compiled, err := c.fieldMapping(af.Field(), af.NestedFields())
	if err != nil {
		return err
	}
	mapping, _ := compiled.Get(af.Field().Name())
	template := wire.NewObject().Set("path_match", af.Name()).Set("mapping", mapping)
	c.mapping.templates = append(c.mapping.templates, single(af.Name(), template))
	return nil
}
