package expr

// Type is the declared type of a field. Name is the mapping type tag.
type Type interface {
	Name() string
	// Document returns the nested document for object types, nil otherwise.
	Document() *Document
}

type scalarType struct {
	name string
}

func (t scalarType) Name() string        { return t.name }
func (t scalarType) Document() *Document { return nil }

var (
	String     Type = scalarType{"string"}
	Integer    Type = scalarType{"integer"}
	Long       Type = scalarType{"long"}
	Short      Type = scalarType{"short"}
	Byte       Type = scalarType{"byte"}
	Float      Type = scalarType{"float"}
	Double     Type = scalarType{"double"}
	Boolean    Type = scalarType{"boolean"}
	Date       Type = scalarType{"date"}
	Binary     Type = scalarType{"binary"}
	IP         Type = scalarType{"ip"}
	GeoPoint   Type = scalarType{"geo_point"}
	Completion Type = scalarType{"completion"}
)

var scalarTypes = map[string]Type{}

func init() {
	for _, t := range []Type{String, Integer, Long, Short, Byte, Float, Double, Boolean, Date, Binary, IP, GeoPoint, Completion} {
		scalarTypes[t.Name()] = t
	}
}

// ScalarType looks up a built-in scalar type by its mapping tag.
func ScalarType(name string) (Type, bool) {
	t, ok := scalarTypes[name]
	return t, ok
}

type documentType struct {
	name string
	doc  *Document
}

func (t documentType) Name() string        { return t.name }
func (t documentType) Document() *Document { return t.doc }

// Object is an inner object described by doc.
func Object(doc *Document) Type {
	return documentType{name: "object", doc: doc}
}

// NestedType is a nested object described by doc.
func NestedType(doc *Document) Type {
	return documentType{name: "nested", doc: doc}
}

type listType struct {
	elem Type
}

func (t listType) Name() string        { return t.elem.Name() }
func (t listType) Document() *Document { return t.elem.Document() }

// List is a multi-valued field. Elasticsearch has no array type, so the
// mapping is the element type's.
func List(elem Type) Type {
	return listType{elem: elem}
}
