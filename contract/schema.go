// Package contract implements the contract registry (§4.1): it maps a
// user-declared output shape to a structural schema, a stable content
// hash, and the set of its fields tagged opaque.
package contract

// Kind enumerates the closed set of primitive/structural shapes a Field can
// take, per §3: "object with named typed fields, lists, enums from a
// closed set of literals, optional-of-T, nested shapes, primitive
// numerics/strings/bytes/temporal."
type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindFloat   Kind = "float"
	KindBool    Kind = "bool"
	KindBytes   Kind = "bytes"
	KindTime    Kind = "time"
	KindEnum    Kind = "enum"
	KindList    Kind = "list"
	KindObject  Kind = "object"
	KindOptional Kind = "optional"
)

// Schema is a structural description of a shape: either a primitive, an
// enum of closed literal values, a list/optional wrapping an element
// schema, or an object with named fields.
type Schema struct {
	Kind Kind     `json:"kind"`
	Enum []string `json:"enum,omitempty"`
	Elem *Schema  `json:"elem,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Field is one named member of an object Schema. Opaque marks that, when a
// value of this shape is bound to a step parameter, the field's value
// travels as a structured attachment rather than being interpolated into
// the compiled prompt text.
type Field struct {
	Name   string `json:"name"`
	Schema Schema `json:"schema"`
	Opaque bool   `json:"opaque,omitempty"`
}

// String, Int, Float, Bool, Bytes, Time build primitive schemas.
func String() Schema { return Schema{Kind: KindString} }
func Int() Schema    { return Schema{Kind: KindInt} }
func Float() Schema  { return Schema{Kind: KindFloat} }
func Bool() Schema   { return Schema{Kind: KindBool} }
func Bytes() Schema  { return Schema{Kind: KindBytes} }
func Time() Schema   { return Schema{Kind: KindTime} }

// Enum builds a closed-literal-set schema.
func Enum(values ...string) Schema {
	return Schema{Kind: KindEnum, Enum: values}
}

// List builds a list-of-elem schema.
func List(elem Schema) Schema {
	return Schema{Kind: KindList, Elem: &elem}
}

// Optional builds an optional-of-elem schema.
func Optional(elem Schema) Schema {
	return Schema{Kind: KindOptional, Elem: &elem}
}

// Object builds an object schema from its fields, in declaration order.
func Object(fields ...Field) Schema {
	return Schema{Kind: KindObject, Fields: fields}
}

// OpaqueFieldNames returns the top-level field names of an object schema
// that are tagged opaque, in declaration order. Non-object schemas return
// nil — opacity is a property of a named field, not of a bare scalar.
func (s Schema) OpaqueFieldNames() []string {
	if s.Kind != KindObject {
		return nil
	}
	var names []string
	for _, f := range s.Fields {
		if f.Opaque {
			names = append(names, f.Name)
		}
	}
	return names
}
