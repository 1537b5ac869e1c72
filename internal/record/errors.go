package record

import "fmt"

// SchemaMismatchError reports a recordset row that diverges from the
// established schema, or a value that contradicts its declared column type.
type SchemaMismatchError struct {
	Row    int    // row index within the recordset, -1 for a single record
	Field  string // offending column name, empty if the shape itself diverges
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record: schema mismatch at row %d, field %q: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("record: schema mismatch at row %d: %s", e.Row, e.Reason)
}

// UnsupportedTypeError reports a native value with no CRM type mapping.
type UnsupportedTypeError struct {
	Field  string
	GoType string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record: unsupported type %s for field %q", e.GoType, e.Field)
	}
	return fmt.Sprintf("record: unsupported type %s", e.GoType)
}

// MalformedRecordError reports a schema/value parity violation or an
// undecodable cell, which indicates a corrupt or unexpected upstream payload.
type MalformedRecordError struct {
	Reason    string
	Field     string // offending column, if known
	SchemaLen int
	ValueLen  int
}

func (e *MalformedRecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record: malformed record, field %q: %s", e.Field, e.Reason)
	}
	if e.SchemaLen != e.ValueLen {
		return fmt.Sprintf("record: malformed record: %s (schema has %d columns, data has %d values)", e.Reason, e.SchemaLen, e.ValueLen)
	}
	return "record: malformed record: " + e.Reason
}
