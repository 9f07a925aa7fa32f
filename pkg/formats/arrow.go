package formats

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	jsonpool "github.com/ajitpratap0/relay/pkg/json"
	"github.com/ajitpratap0/relay/pkg/models"
)

type arrowEncoder struct{}

func (arrowEncoder) ContentType() string { return "application/vnd.apache.arrow.file" }
func (arrowEncoder) Extension() string   { return ".arrow" }

// Encode writes records as a single-batch Arrow IPC file. Column types are
// inferred across the batch: mixed integer and float columns widen to
// float64, any other conflict or nested value becomes a string column.
func (arrowEncoder) Encode(w io.Writer, records []models.Record) error {
	pool := memory.NewGoAllocator()
	schema := inferArrowSchema(records)

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		return fmt.Errorf("failed to create Arrow writer: %w", err)
	}

	if len(records) > 0 {
		builder := array.NewRecordBuilder(pool, schema)
		defer builder.Release()

		for _, r := range records {
			for i, field := range schema.Fields() {
				if err := appendArrowValue(builder.Field(i), r[field.Name]); err != nil {
					return fmt.Errorf("failed to append value for field %s: %w", field.Name, err)
				}
			}
		}

		rec := builder.NewRecord()
		defer rec.Release()
		if err := fw.Write(rec); err != nil {
			return fmt.Errorf("failed to write record batch: %w", err)
		}
	}

	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow writer: %w", err)
	}
	return nil
}

func inferArrowSchema(records []models.Record) *arrow.Schema {
	keys := keyUnion(records)
	fields := make([]arrow.Field, len(keys))
	for i, key := range keys {
		var typ arrow.DataType
		for _, r := range records {
			v, ok := r[key]
			if !ok || v == nil {
				continue
			}
			typ = widenArrowType(typ, arrowTypeOf(v))
		}
		if typ == nil {
			typ = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: key, Type: typ, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowTypeOf(v interface{}) arrow.DataType {
	switch v.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return arrow.PrimitiveTypes.Int64
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	case []byte:
		return arrow.BinaryTypes.Binary
	}
	return arrow.BinaryTypes.String
}

func widenArrowType(have, next arrow.DataType) arrow.DataType {
	switch {
	case have == nil:
		return next
	case arrow.TypeEqual(have, next):
		return have
	case isArrowNumeric(have) && isArrowNumeric(next):
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}

func isArrowNumeric(t arrow.DataType) bool {
	return t.ID() == arrow.INT64 || t.ID() == arrow.FLOAT64
}

func appendArrowValue(builder array.Builder, value interface{}) error {
	if value == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			b.AppendNull()
			return nil
		}
		b.Append(v)

	case *array.Int64Builder:
		switch v := value.(type) {
		case int:
			b.Append(int64(v))
		case int8:
			b.Append(int64(v))
		case int16:
			b.Append(int64(v))
		case int32:
			b.Append(int64(v))
		case int64:
			b.Append(v)
		case uint8:
			b.Append(int64(v))
		case uint16:
			b.Append(int64(v))
		case uint32:
			b.Append(int64(v))
		default:
			b.AppendNull()
		}

	case *array.Float64Builder:
		f, ok := arrowFloat(value)
		if !ok {
			b.AppendNull()
			return nil
		}
		b.Append(f)

	case *array.StringBuilder:
		switch v := value.(type) {
		case string:
			b.Append(v)
		case map[string]interface{}, []interface{}:
			data, err := jsonpool.Marshal(v)
			if err != nil {
				return err
			}
			b.Append(string(data))
		default:
			b.Append(fmt.Sprintf("%v", v))
		}

	case *array.BinaryBuilder:
		switch v := value.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.Append([]byte(v))
		default:
			b.AppendNull()
		}

	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}
	return nil
}

func arrowFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	}
	return 0, false
}

// DecodeArrow reads every batch of an Arrow IPC file
func DecodeArrow(r io.Reader) ([]models.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Arrow data: %w", err)
	}

	reader, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow reader: %w", err)
	}
	defer reader.Close()

	var out []models.Record
	for i := 0; i < reader.NumRecords(); i++ {
		// valid until the next call to Record
		batch, err := reader.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read record batch %d: %w", i, err)
		}
		schema := batch.Schema()
		for row := 0; row < int(batch.NumRows()); row++ {
			rec := make(models.Record, batch.NumCols())
			for c := 0; c < int(batch.NumCols()); c++ {
				rec[schema.Field(c).Name] = arrowColumnValue(batch.Column(c), row)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func arrowColumnValue(col arrow.Array, row int) interface{} {
	if col.IsNull(row) {
		return nil
	}

	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(row)
	case *array.Int64:
		return c.Value(row)
	case *array.Float64:
		return c.Value(row)
	case *array.String:
		return c.Value(row)
	case *array.Binary:
		return append([]byte(nil), c.Value(row)...)
	}
	return nil
}
