package record

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEncode_LiteralContactRecord(t *testing.T) {
	obj := NewObject().
		Set("Surname", "Иванов").
		Set("Name", "Иван").
		Set("Patronymic", "Иванович").
		Set("Gender", int64(0)).
		Set("Address", "г. Москва")

	rec, err := Encode(obj)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	wantSchema := Schema{
		{Name: "Surname", Type: TypeString},
		{Name: "Name", Type: TypeString},
		{Name: "Patronymic", Type: TypeString},
		{Name: "Gender", Type: TypeInteger},
		{Name: "Address", Type: TypeString},
	}
	if !rec.Schema.Equal(wantSchema) {
		t.Errorf("Schema = %v, want %v", rec.Schema, wantSchema)
	}

	wantValues := []any{"Иванов", "Иван", "Иванович", int64(0), "г. Москва"}
	if !reflect.DeepEqual(rec.Values, wantValues) {
		t.Errorf("Values = %v, want %v", rec.Values, wantValues)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, fragment := range []string{
		`{"n":"Surname","t":"Строка"}`,
		`{"n":"Gender","t":"Число целое"}`,
		`"_type":"record"`,
		`"Иванов","Иван","Иванович",0`,
	} {
		if !strings.Contains(string(data), fragment) {
			t.Errorf("wire payload missing %s\ngot: %s", fragment, data)
		}
	}
}

func TestDecode_LiteralPhoneRecordSet(t *testing.T) {
	wire := `{
		"d": [["89151111111", "mobile_phone", null]],
		"s": [
			{"n": "Value", "t": "Строка"},
			{"n": "Type", "t": "Строка"},
			{"n": "Priority", "t": "Число целое"}
		],
		"_type": "recordset"
	}`

	var rs RecordSet
	if err := json.Unmarshal([]byte(wire), &rs); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	var dec Decoder
	objs, err := dec.DecodeRecordSet(&rs)
	if err != nil {
		t.Fatalf("DecodeRecordSet() error = %v", err)
	}
	if len(objs) != 1 {
		t.Fatalf("got %d rows, want 1", len(objs))
	}

	obj := objs[0]
	if got := obj.Names(); !reflect.DeepEqual(got, []string{"Value", "Type", "Priority"}) {
		t.Errorf("field order = %v, want [Value Type Priority]", got)
	}
	if v, _ := obj.Get("Value"); v != "89151111111" {
		t.Errorf("Value = %v, want 89151111111", v)
	}
	if v, _ := obj.Get("Type"); v != "mobile_phone" {
		t.Errorf("Type = %v, want mobile_phone", v)
	}
	if v, ok := obj.Get("Priority"); !ok || v != nil {
		t.Errorf("Priority = %v (present=%v), want nil", v, ok)
	}
}

func TestRoundTrip(t *testing.T) {
	id := uuid.MustParse("b3e6c7a0-1f4d-4e64-9e1a-3c60cf41d001")
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		obj  *Object
	}{
		{
			name: "scalars",
			obj: NewObject().
				Set("Название", "ООО Ромашка").
				Set("Сумма", 12500.50).
				Set("Количество", int64(3)).
				Set("Активен", true).
				Set("Дата", date).
				Set("Идентификатор", id).
				Set("Примечание", nil),
		},
		{
			name: "nested record",
			obj: NewObject().
				Set("Регламент", int64(42)).
				Set("КонтактноеЛицо", NewObject().
					Set("ФИО", "Иванов Иван").
					Set("Телефон", "89151111111")),
		},
		{
			name: "nested recordset",
			obj: NewObject().
				Set("Название", "Клиент").
				Set("Телефоны", []*Object{
					NewObject().Set("Value", "89151111111").Set("Type", "mobile_phone"),
					NewObject().Set("Value", "84951234567").Set("Type", "work_phone"),
				}),
		},
	}

	var dec Decoder
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Encode(tt.obj)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			got, err := dec.DecodeRecord(rec)
			if err != nil {
				t.Fatalf("DecodeRecord() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.obj) {
				t.Errorf("decode(encode(x)) != x\ngot:  %#v\nwant: %#v", got, tt.obj)
			}
		})
	}
}

func TestRoundTrip_ThroughWire(t *testing.T) {
	obj := NewObject().
		Set("Название", "ООО Ромашка").
		Set("Регламент", int64(7)).
		Set("Дата", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)).
		Set("Телефоны", []*Object{
			NewObject().Set("Value", "89151111111").Set("Priority", nil),
		})

	rec, err := Encode(obj)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	parsed, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	var dec Decoder
	got, err := dec.Decode(parsed)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(got, obj) {
		t.Errorf("wire round trip diverged\ngot:  %#v\nwant: %#v", got, obj)
	}
}

func TestEncodeSet_SchemaMismatch(t *testing.T) {
	// Second row misses field "b" and changes the type of "a".
	objs := []*Object{
		NewObject().Set("a", int64(1)).Set("b", "x"),
		NewObject().Set("a", "y"),
	}

	_, err := EncodeSet(objs)
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("EncodeSet() error = %v, want *SchemaMismatchError", err)
	}
	if mismatch.Row != 1 {
		t.Errorf("Row = %d, want 1", mismatch.Row)
	}
}

func TestEncodeSet_TypeDivergence(t *testing.T) {
	objs := []*Object{
		NewObject().Set("a", int64(1)).Set("b", "x"),
		NewObject().Set("a", "oops").Set("b", "y"),
	}

	_, err := EncodeSet(objs)
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("EncodeSet() error = %v, want *SchemaMismatchError", err)
	}
	if mismatch.Field != "a" {
		t.Errorf("Field = %q, want %q", mismatch.Field, "a")
	}
}

func TestEncodeSet_NullsMatchAnyColumn(t *testing.T) {
	objs := []*Object{
		NewObject().Set("a", int64(1)).Set("b", "x"),
		NewObject().Set("a", nil).Set("b", nil),
	}

	rs, err := EncodeSet(objs)
	if err != nil {
		t.Fatalf("EncodeSet() error = %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rs.Rows))
	}
	if rs.Rows[1][0] != nil || rs.Rows[1][1] != nil {
		t.Errorf("second row = %v, want nils", rs.Rows[1])
	}
}

func TestDecodeRecord_LengthMismatch(t *testing.T) {
	rec := &Record{
		Schema: Schema{
			{Name: "a", Type: TypeString},
			{Name: "b", Type: TypeString},
			{Name: "c", Type: TypeInteger},
		},
		Values: []any{"x", "y"},
	}

	var dec Decoder
	_, err := dec.DecodeRecord(rec)
	var malformed *MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("DecodeRecord() error = %v, want *MalformedRecordError", err)
	}
	if malformed.SchemaLen != 3 || malformed.ValueLen != 2 {
		t.Errorf("lengths = (%d, %d), want (3, 2)", malformed.SchemaLen, malformed.ValueLen)
	}
}

func TestUnmarshal_LengthMismatch(t *testing.T) {
	wire := `{"d":["x","y"],"s":[{"n":"a","t":"Строка"},{"n":"b","t":"Строка"},{"n":"c","t":"Число целое"}],"_type":"record"}`

	var rec Record
	err := json.Unmarshal([]byte(wire), &rec)
	var malformed *MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("Unmarshal error = %v, want *MalformedRecordError", err)
	}
}

func TestEncode_UnsupportedType(t *testing.T) {
	obj := NewObject().Set("callback", func() {})

	_, err := Encode(obj)
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Encode() error = %v, want *UnsupportedTypeError", err)
	}
	if unsupported.Field != "callback" {
		t.Errorf("Field = %q, want %q", unsupported.Field, "callback")
	}
}

func TestDecode_UnknownTypeTagIsOpaqueString(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	rec := &Record{
		Schema: Schema{{Name: "UserConds", Type: Type("JSON-объект")}},
		Values: []any{"{\"k\":1}"},
	}

	dec := Decoder{Logger: logger}
	obj, err := dec.DecodeRecord(rec)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	v, _ := obj.Get("UserConds")
	if v != "{\"k\":1}" {
		t.Errorf("UserConds = %v, want the opaque string", v)
	}
	if !strings.Contains(buf.String(), "unknown record type tag") {
		t.Errorf("expected a warning about the unknown tag, log: %s", buf.String())
	}
}

func TestDecode_NullCellAlwaysNil(t *testing.T) {
	rec := &Record{
		Schema: Schema{
			{Name: "n", Type: TypeInteger},
			{Name: "d", Type: TypeDate},
			{Name: "u", Type: TypeUUID},
		},
		Values: []any{nil, nil, nil},
	}

	var dec Decoder
	obj, err := dec.DecodeRecord(rec)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	for _, name := range []string{"n", "d", "u"} {
		if v, _ := obj.Get(name); v != nil {
			t.Errorf("%s = %v, want nil", name, v)
		}
	}
}

func TestEncodeWithSchema_DeclaredTypes(t *testing.T) {
	schema := Schema{
		{Name: "ИНН", Type: TypeString},
		{Name: "КПП", Type: TypeString},
		{Name: "Название", Type: TypeString},
	}
	obj := NewObject().
		Set("ИНН", "7707083893").
		Set("КПП", "770701001").
		Set("Название", "ООО Ромашка")

	rec, err := EncodeWithSchema(obj, schema)
	if err != nil {
		t.Fatalf("EncodeWithSchema() error = %v", err)
	}
	if !rec.Schema.Equal(schema) {
		t.Errorf("Schema = %v, want declared schema", rec.Schema)
	}

	// A declared type contradicted by the value must fail.
	bad := NewObject().
		Set("ИНН", int64(7707083893)).
		Set("КПП", "770701001").
		Set("Название", "ООО Ромашка")
	_, err = EncodeWithSchema(bad, schema)
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("EncodeWithSchema() error = %v, want *SchemaMismatchError", err)
	}
}

func TestUnmarshal_TypeDiscriminator(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string // "record", "recordset", or "" for error
	}{
		{"record", `{"d":[],"s":[],"_type":"record"}`, "record"},
		{"recordset", `{"d":[],"s":[],"_type":"recordset"}`, "recordset"},
		{"missing type", `{"d":[],"s":[]}`, ""},
		{"unknown type", `{"d":[],"s":[],"_type":"table"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Unmarshal([]byte(tt.payload))
			switch tt.want {
			case "record":
				if _, ok := v.(*Record); !ok || err != nil {
					t.Errorf("Unmarshal() = (%T, %v), want *Record", v, err)
				}
			case "recordset":
				if _, ok := v.(*RecordSet); !ok || err != nil {
					t.Errorf("Unmarshal() = (%T, %v), want *RecordSet", v, err)
				}
			default:
				var malformed *MalformedRecordError
				if !errors.As(err, &malformed) {
					t.Errorf("Unmarshal() error = %v, want *MalformedRecordError", err)
				}
			}
		})
	}
}

func TestMarshal_FormID(t *testing.T) {
	formID := 0
	rec := &Record{
		Schema: Schema{{Name: "ИНН", Type: TypeString}},
		Values: []any{"7707083893"},
		FormID: &formID,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"f":0`) {
		t.Errorf("payload missing \"f\":0: %s", data)
	}
}

func TestObject_SetReplacesInPlace(t *testing.T) {
	obj := NewObject().Set("a", int64(1)).Set("b", int64(2)).Set("a", int64(3))

	if obj.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", obj.Len())
	}
	if got := obj.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v, want [a b]", got)
	}
	if v, _ := obj.Get("a"); v != int64(3) {
		t.Errorf("a = %v, want 3", v)
	}
}

// Decoder must be safe for concurrent use; it is shared by all relay
// handlers.
func TestDecoder_ConcurrentUse(t *testing.T) {
	rec := &Record{
		Schema: Schema{{Name: "a", Type: TypeInteger}},
		Values: []any{int64(1)},
	}

	var dec Decoder
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				if _, err := dec.DecodeRecord(rec); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("concurrent decode error = %v", err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for decoders")
		}
	}
}
