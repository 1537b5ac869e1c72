// Package record implements the Saby CRM columnar record encoding: a schema
// array ("s") paired positionally with a value array ("d"). Field order is
// significant at the wire level, so the native representation is the ordered
// Object rather than a Go map.
package record

// Type is a CRM column type tag. The tags are Russian strings defined by the
// Saby wire protocol and must be reproduced exactly.
type Type string

// Primitive column type tags.
const (
	TypeString  Type = "Строка"
	TypeInteger Type = "Число целое"
	TypeDouble  Type = "Число вещественное"
	TypeBoolean Type = "Логическое"
	TypeDate    Type = "Дата"
	TypeUUID    Type = "Идентификатор"
)

// Structural column type tags for nested values.
const (
	TypeRecord    Type = "Запись"
	TypeRecordSet Type = "Выборка"
)

// Field is a single schema column: name plus type tag.
type Field struct {
	Name string `json:"n"`
	Type Type   `json:"t"`
}

// Schema is an ordered sequence of columns.
type Schema []Field

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas have identical columns in identical order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Record is a single CRM record: one value per schema column, in schema order.
//
// Cell values are restricted to nil, string, int64, float64, bool, time.Time,
// uuid.UUID, *Record and *RecordSet. Encode produces only these; Decode
// consumes them.
type Record struct {
	Schema Schema
	Values []any
	// FormID is the optional "f" wire field. The CRM includes it on some
	// responses and expects it echoed on some requests.
	FormID *int
}

// RecordSet is a table of rows sharing one schema.
type RecordSet struct {
	Schema Schema
	Rows   [][]any
}

// Object is an ordered collection of named fields, the native counterpart of
// a Record. Iteration and marshalling follow insertion order.
type Object struct {
	names  []string
	values []any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{}
}

// Set appends the field, or replaces its value in place if the name already
// exists. Returns the Object for chaining.
func (o *Object) Set(name string, value any) *Object {
	for i, n := range o.names {
		if n == name {
			o.values[i] = value
			return o
		}
	}
	o.names = append(o.names, name)
	o.values = append(o.values, value)
	return o
}

// Get returns the value of the named field.
func (o *Object) Get(name string) (any, bool) {
	for i, n := range o.names {
		if n == name {
			return o.values[i], true
		}
	}
	return nil, false
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.names)
}

// Names returns the field names in insertion order.
func (o *Object) Names() []string {
	out := make([]string, len(o.names))
	copy(out, o.names)
	return out
}

// Name returns the field name at position i.
func (o *Object) Name(i int) string {
	return o.names[i]
}

// Value returns the field value at position i.
func (o *Object) Value(i int) any {
	return o.values[i]
}
