package record

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Decoder converts Records and RecordSets back into native Objects. The zero
// value is usable; Logger, when set, receives a warning for every column with
// an unrecognized type tag (such columns decode as opaque strings so that
// upstream schema evolution does not break the relay).
type Decoder struct {
	Logger *slog.Logger
}

// DecodeRecord converts a Record into an ordered Object, reproducing the
// encoded field order.
func (d *Decoder) DecodeRecord(rec *Record) (*Object, error) {
	if len(rec.Values) != len(rec.Schema) {
		return nil, &MalformedRecordError{
			Reason:    "schema and data length differ",
			SchemaLen: len(rec.Schema),
			ValueLen:  len(rec.Values),
		}
	}
	obj := NewObject()
	for i, col := range rec.Schema {
		v, err := d.decodeCell(col, rec.Values[i])
		if err != nil {
			return nil, err
		}
		obj.Set(col.Name, v)
	}
	return obj, nil
}

// DecodeRecordSet converts a RecordSet into a sequence of Objects sharing the
// set's schema.
func (d *Decoder) DecodeRecordSet(rs *RecordSet) ([]*Object, error) {
	objs := make([]*Object, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		obj, err := d.DecodeRecord(&Record{Schema: rs.Schema, Values: row})
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// Decode converts a Record or RecordSet into its native counterpart.
func (d *Decoder) Decode(v any) (any, error) {
	switch val := v.(type) {
	case *Record:
		return d.DecodeRecord(val)
	case *RecordSet:
		return d.DecodeRecordSet(val)
	default:
		return nil, &MalformedRecordError{Reason: fmt.Sprintf("expected record or recordset, got %T", v)}
	}
}

// decodeCell converts one cell according to its column's type tag. Null cells
// decode to nil regardless of the declared type.
func (d *Decoder) decodeCell(col Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, malformedCell(col, v, "string")
		}
		return s, nil
	case TypeInteger:
		return decodeInteger(col, v)
	case TypeDouble:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, malformedCell(col, v, "number")
			}
			return f, nil
		}
		return nil, malformedCell(col, v, "number")
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, malformedCell(col, v, "boolean")
		}
		return b, nil
	case TypeDate:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(dateLayout, t)
			if err != nil {
				return nil, malformedCell(col, v, "date")
			}
			return parsed, nil
		}
		return nil, malformedCell(col, v, "date")
	case TypeUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id, nil
		case string:
			parsed, err := uuid.Parse(id)
			if err != nil {
				return nil, malformedCell(col, v, "uuid")
			}
			return parsed, nil
		}
		return nil, malformedCell(col, v, "uuid")
	case TypeRecord:
		rec, ok := v.(*Record)
		if !ok {
			return nil, malformedCell(col, v, "record")
		}
		return d.DecodeRecord(rec)
	case TypeRecordSet:
		rs, ok := v.(*RecordSet)
		if !ok {
			return nil, malformedCell(col, v, "recordset")
		}
		return d.DecodeRecordSet(rs)
	default:
		// Unknown tag: decode as an opaque string for forward compatibility
		// with CRM schema evolution, but surface it to the operator.
		if d.Logger != nil {
			d.Logger.Warn("unknown record type tag", "field", col.Name, "type", string(col.Type))
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
}

// decodeInteger accepts the integer cell representations produced by Encode
// (int64) and by JSON unmarshalling (float64, json.Number).
func decodeInteger(col Field, v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		i := int64(n)
		if float64(i) != n {
			return nil, malformedCell(col, v, "integer")
		}
		return i, nil
	case json.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return nil, malformedCell(col, v, "integer")
		}
		return i, nil
	}
	return nil, malformedCell(col, v, "integer")
}

func malformedCell(col Field, v any, want string) error {
	return &MalformedRecordError{
		Field:  col.Name,
		Reason: fmt.Sprintf("cannot decode %T as %s (column type %q)", v, want, col.Type),
	}
}
