package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Encode converts an ordered Object into a Record, inferring the schema from
// the field values. Nil fields are typed as strings in the schema; the null
// cell itself carries no type on the wire.
func Encode(obj *Object) (*Record, error) {
	rec := &Record{
		Schema: make(Schema, 0, obj.Len()),
		Values: make([]any, 0, obj.Len()),
	}
	for i := 0; i < obj.Len(); i++ {
		name := obj.Name(i)
		typ, cell, err := encodeCell(name, obj.Value(i))
		if err != nil {
			return nil, err
		}
		rec.Schema = append(rec.Schema, Field{Name: name, Type: typ})
		rec.Values = append(rec.Values, cell)
	}
	return rec, nil
}

// EncodeWithSchema converts an Object into a Record using a declared schema.
// The object's fields must match the schema's names in order; values must be
// compatible with the declared column types (nulls match any type).
func EncodeWithSchema(obj *Object, schema Schema) (*Record, error) {
	values, err := encodeRow(obj, schema, -1)
	if err != nil {
		return nil, err
	}
	return &Record{Schema: schema, Values: values}, nil
}

// EncodeSet converts a sequence of uniform Objects into a RecordSet. The
// schema is derived from the first element; every subsequent element must
// match it exactly or encoding fails with a SchemaMismatchError. An empty
// sequence encodes as a RecordSet with an empty schema.
func EncodeSet(objs []*Object) (*RecordSet, error) {
	if len(objs) == 0 {
		return &RecordSet{Rows: [][]any{}}, nil
	}
	first, err := Encode(objs[0])
	if err != nil {
		return nil, err
	}
	rs := &RecordSet{Schema: first.Schema, Rows: make([][]any, 0, len(objs))}
	rs.Rows = append(rs.Rows, first.Values)
	for i, obj := range objs[1:] {
		row, err := encodeRow(obj, rs.Schema, i+1)
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

// EncodeSetWithSchema converts a sequence of Objects into a RecordSet against
// a declared schema.
func EncodeSetWithSchema(objs []*Object, schema Schema) (*RecordSet, error) {
	rs := &RecordSet{Schema: schema, Rows: make([][]any, 0, len(objs))}
	for i, obj := range objs {
		row, err := encodeRow(obj, schema, i)
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

// encodeRow encodes one object against an established schema. row is the
// recordset row index used in error reporting, -1 for a single record.
func encodeRow(obj *Object, schema Schema, row int) ([]any, error) {
	if obj.Len() != len(schema) {
		return nil, &SchemaMismatchError{
			Row:    row,
			Reason: fmt.Sprintf("expected %d fields, got %d", len(schema), obj.Len()),
		}
	}
	values := make([]any, 0, len(schema))
	for i, col := range schema {
		if name := obj.Name(i); name != col.Name {
			return nil, &SchemaMismatchError{
				Row:    row,
				Field:  col.Name,
				Reason: fmt.Sprintf("expected field %q at position %d, got %q", col.Name, i, name),
			}
		}
		v := obj.Value(i)
		if v == nil {
			values = append(values, nil)
			continue
		}
		typ, cell, err := encodeCell(col.Name, v)
		if err != nil {
			return nil, err
		}
		if typ != col.Type {
			return nil, &SchemaMismatchError{
				Row:    row,
				Field:  col.Name,
				Reason: fmt.Sprintf("declared type %q, value encodes as %q", col.Type, typ),
			}
		}
		values = append(values, cell)
	}
	return values, nil
}

// encodeCell maps a native value onto its CRM type tag and cell
// representation. Returns an UnsupportedTypeError for values outside the cell
// type set.
func encodeCell(field string, v any) (Type, any, error) {
	switch val := v.(type) {
	case nil:
		// Null cells have no distinct wire type; the schema column falls
		// back to a string tag when the type cannot be inferred.
		return TypeString, nil, nil
	case string:
		return TypeString, val, nil
	case int:
		return TypeInteger, int64(val), nil
	case int32:
		return TypeInteger, int64(val), nil
	case int64:
		return TypeInteger, val, nil
	case float32:
		return TypeDouble, float64(val), nil
	case float64:
		return TypeDouble, val, nil
	case bool:
		return TypeBoolean, val, nil
	case time.Time:
		return TypeDate, val, nil
	case uuid.UUID:
		return TypeUUID, val, nil
	case *Object:
		nested, err := Encode(val)
		if err != nil {
			return "", nil, err
		}
		return TypeRecord, nested, nil
	case []*Object:
		nested, err := EncodeSet(val)
		if err != nil {
			return "", nil, err
		}
		return TypeRecordSet, nested, nil
	case *Record:
		return TypeRecord, val, nil
	case *RecordSet:
		return TypeRecordSet, val, nil
	default:
		return "", nil, &UnsupportedTypeError{Field: field, GoType: fmt.Sprintf("%T", v)}
	}
}
