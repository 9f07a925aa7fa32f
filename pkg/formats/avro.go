package formats

import (
	"fmt"
	"io"
	"regexp"
	"time"

	jsonpool "github.com/ajitpratap0/relay/pkg/json"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/linkedin/goavro/v2"
)

// AvroRecordName is the record name used for inferred schemas
const AvroRecordName = "Record"

var invalidAvroName = regexp.MustCompile(`[^A-Za-z0-9_]`)

type avroEncoder struct {
	codec *goavro.Codec
}

func newAvroEncoder(opts Options) (*avroEncoder, error) {
	if opts.AvroSchema == "" {
		return &avroEncoder{}, nil
	}
	codec, err := goavro.NewCodec(opts.AvroSchema)
	if err != nil {
		return nil, fmt.Errorf("invalid avro schema: %w", err)
	}
	return &avroEncoder{codec: codec}, nil
}

func (*avroEncoder) ContentType() string { return "application/avro" }
func (*avroEncoder) Extension() string   { return ".avro" }

func (e *avroEncoder) Encode(w io.Writer, records []models.Record) error {
	codec := e.codec
	data := make([]interface{}, len(records))
	if codec == nil {
		fields := inferAvroFields(records)
		schema, err := jsonpool.Marshal(map[string]interface{}{
			"type":   "record",
			"name":   AvroRecordName,
			"fields": avroFieldSchemas(fields),
		})
		if err != nil {
			return err
		}
		if codec, err = goavro.NewCodec(string(schema)); err != nil {
			return fmt.Errorf("failed to build inferred avro schema: %w", err)
		}
		for i, r := range records {
			data[i] = toAvroNative(fields, r)
		}
	} else {
		for i, r := range records {
			data[i] = map[string]interface{}(r)
		}
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     w,
		Codec: codec,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return ocf.Append(data)
}

type avroField struct {
	source string
	name   string
	typ    string
}

// inferAvroFields assigns every key a nullable primitive type taken from the
// first non-nil value. Nested values are carried as JSON strings.
func inferAvroFields(records []models.Record) []avroField {
	keys := keyUnion(records)
	fields := make([]avroField, 0, len(keys))
	used := make(map[string]int)
	for _, key := range keys {
		typ := "string"
		for _, r := range records {
			if v, ok := r[key]; ok && v != nil {
				typ = avroType(v)
				break
			}
		}
		name := avroName(key)
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			used[name] = 1
		}
		fields = append(fields, avroField{source: key, name: name, typ: typ})
	}
	return fields
}

func avroName(key string) string {
	name := invalidAvroName.ReplaceAllString(key, "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "_" + name
	}
	return name
}

func avroType(v interface{}) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return "long"
	case float32, float64:
		return "double"
	}
	return "string"
}

func avroFieldSchemas(fields []avroField) []map[string]interface{} {
	out := make([]map[string]interface{}, len(fields))
	for i, f := range fields {
		out[i] = map[string]interface{}{
			"name":    f.name,
			"type":    []string{"null", f.typ},
			"default": nil,
		}
	}
	return out
}

func toAvroNative(fields []avroField, r models.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v, ok := r[f.source]
		if !ok || v == nil {
			out[f.name] = nil
			continue
		}
		out[f.name] = goavro.Union(f.typ, coerceAvro(f.typ, v))
	}
	return out
}

// coerceAvro converts v to the native Go type goavro expects for typ.
// Values that disagree with the inferred type are stringified.
func coerceAvro(typ string, v interface{}) interface{} {
	switch typ {
	case "boolean":
		if b, ok := v.(bool); ok {
			return b
		}
	case "long":
		switch n := v.(type) {
		case int:
			return int64(n)
		case int8:
			return int64(n)
		case int16:
			return int64(n)
		case int32:
			return int64(n)
		case int64:
			return n
		case uint8:
			return int64(n)
		case uint16:
			return int64(n)
		case uint32:
			return int64(n)
		}
	case "double":
		switch n := v.(type) {
		case float32:
			return float64(n)
		case float64:
			return n
		}
	}
	return avroString(v)
}

func avroString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	if b, err := jsonpool.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// DecodeAvro reads every record of an object container file. Nullable union
// values are unwrapped to their plain value.
func DecodeAvro(r io.Reader) ([]models.Record, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF reader: %w", err)
	}
	var out []models.Record
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, err
		}
		m, ok := datum.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected avro datum %T", datum)
		}
		rec := make(models.Record, len(m))
		for k, v := range m {
			rec[k] = unwrapUnion(v)
		}
		out = append(out, rec)
	}
	return out, ocf.Err()
}

func unwrapUnion(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return v
	}
	for k, inner := range m {
		switch k {
		case "boolean", "long", "int", "double", "float", "string", "bytes":
			return inner
		}
	}
	return v
}
