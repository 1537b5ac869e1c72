package record

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// dateLayout is the CRM wire format for Дата cells.
const dateLayout = "2006-01-02"

const (
	wireTypeRecord    = "record"
	wireTypeRecordSet = "recordset"
)

type wireRecord struct {
	D    []json.RawMessage `json:"d"`
	S    Schema            `json:"s"`
	Type string            `json:"_type"`
	F    *int              `json:"f,omitempty"`
}

type wireRecordSet struct {
	D    [][]json.RawMessage `json:"d"`
	S    Schema              `json:"s"`
	Type string              `json:"_type"`
}

// MarshalJSON renders the record in the CRM wire shape
// {"d":[...],"s":[{"n","t"},...],"_type":"record","f"?}.
func (r *Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		D:    make([]json.RawMessage, 0, len(r.Values)),
		S:    r.Schema,
		Type: wireTypeRecord,
		F:    r.FormID,
	}
	if w.S == nil {
		w.S = Schema{}
	}
	for _, v := range r.Values {
		cell, err := marshalCell(v)
		if err != nil {
			return nil, err
		}
		w.D = append(w.D, cell)
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the CRM wire shape. Cell parsing is driven by the
// schema type tags; a schema/data length mismatch fails with a
// MalformedRecordError.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type != "" && w.Type != wireTypeRecord {
		return &MalformedRecordError{Reason: "expected _type \"record\", got \"" + w.Type + "\""}
	}
	if len(w.D) != len(w.S) {
		return &MalformedRecordError{
			Reason:    "schema and data length differ",
			SchemaLen: len(w.S),
			ValueLen:  len(w.D),
		}
	}
	r.Schema = w.S
	r.FormID = w.F
	r.Values = make([]any, 0, len(w.D))
	for i, raw := range w.D {
		v, err := unmarshalCell(w.S[i], raw)
		if err != nil {
			return err
		}
		r.Values = append(r.Values, v)
	}
	return nil
}

// MarshalJSON renders the recordset in the CRM wire shape with row-per-entry
// "d" and a shared schema.
func (rs *RecordSet) MarshalJSON() ([]byte, error) {
	w := wireRecordSet{
		D:    make([][]json.RawMessage, 0, len(rs.Rows)),
		S:    rs.Schema,
		Type: wireTypeRecordSet,
	}
	if w.S == nil {
		w.S = Schema{}
	}
	for _, row := range rs.Rows {
		cells := make([]json.RawMessage, 0, len(row))
		for _, v := range row {
			cell, err := marshalCell(v)
			if err != nil {
				return nil, err
			}
			cells = append(cells, cell)
		}
		w.D = append(w.D, cells)
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses a recordset, verifying that every row matches the
// shared schema length.
func (rs *RecordSet) UnmarshalJSON(data []byte) error {
	var w wireRecordSet
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type != "" && w.Type != wireTypeRecordSet {
		return &MalformedRecordError{Reason: "expected _type \"recordset\", got \"" + w.Type + "\""}
	}
	rs.Schema = w.S
	rs.Rows = make([][]any, 0, len(w.D))
	for _, rawRow := range w.D {
		if len(rawRow) != len(w.S) {
			return &MalformedRecordError{
				Reason:    "schema and row length differ",
				SchemaLen: len(w.S),
				ValueLen:  len(rawRow),
			}
		}
		row := make([]any, 0, len(rawRow))
		for i, raw := range rawRow {
			v, err := unmarshalCell(w.S[i], raw)
			if err != nil {
				return err
			}
			row = append(row, v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	return nil
}

// Unmarshal parses a wire payload into a *Record or *RecordSet depending on
// its "_type" discriminator.
func Unmarshal(data []byte) (any, error) {
	var probe struct {
		Type string `json:"_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Type {
	case wireTypeRecord:
		rec := new(Record)
		if err := json.Unmarshal(data, rec); err != nil {
			return nil, err
		}
		return rec, nil
	case wireTypeRecordSet:
		rs := new(RecordSet)
		if err := json.Unmarshal(data, rs); err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, &MalformedRecordError{Reason: "unknown or missing _type \"" + probe.Type + "\""}
	}
}

func marshalCell(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case time.Time:
		return json.Marshal(val.Format(dateLayout))
	case uuid.UUID:
		return json.Marshal(val.String())
	default:
		// Strings, numbers, booleans, and nested *Record/*RecordSet (which
		// carry their own MarshalJSON).
		return json.Marshal(v)
	}
}

// unmarshalCell parses one "d" entry. Structural tags recurse; primitive
// numeric tags keep integer/double distinct; Дата and Идентификатор cells are
// kept as strings at this layer, Decoder converts them to native types.
func unmarshalCell(col Field, raw json.RawMessage) (any, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	switch col.Type {
	case TypeRecord:
		rec := new(Record)
		if err := json.Unmarshal(raw, rec); err != nil {
			return nil, err
		}
		return rec, nil
	case TypeRecordSet:
		rs := new(RecordSet)
		if err := json.Unmarshal(raw, rs); err != nil {
			return nil, err
		}
		return rs, nil
	case TypeInteger:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, &MalformedRecordError{Field: col.Name, Reason: "invalid integer cell: " + string(raw)}
		}
		return n, nil
	case TypeDouble:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, &MalformedRecordError{Field: col.Name, Reason: "invalid number cell: " + string(raw)}
		}
		return f, nil
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, &MalformedRecordError{Field: col.Name, Reason: "invalid boolean cell: " + string(raw)}
		}
		return b, nil
	case TypeString, TypeDate, TypeUUID:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &MalformedRecordError{Field: col.Name, Reason: "invalid string cell: " + string(raw)}
		}
		return s, nil
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
