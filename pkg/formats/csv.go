package formats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	jsonpool "github.com/ajitpratap0/relay/pkg/json"
	"github.com/ajitpratap0/relay/pkg/models"
)

type csvEncoder struct {
	opts Options
}

func (*csvEncoder) ContentType() string { return "text/csv" }
func (*csvEncoder) Extension() string   { return ".csv" }

func (e *csvEncoder) Encode(w io.Writer, records []models.Record) error {
	columns := e.opts.Columns
	if len(columns) == 0 {
		columns = keyUnion(records)
	}

	cw := csv.NewWriter(w)
	if e.opts.Delimiter != 0 {
		cw.Comma = e.opts.Delimiter
	}
	if err := cw.Write(columns); err != nil {
		return err
	}

	row := make([]string, len(columns))
	for _, r := range records {
		for i, col := range columns {
			cell, err := csvCell(r[col])
			if err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
			row[i] = cell
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvCell renders scalars verbatim and nested values as JSON
func csvCell(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	b, err := jsonpool.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeCSV reads a header row followed by data rows. All values are strings;
// empty cells are kept as empty strings.
func DecodeCSV(r io.Reader, delimiter rune) ([]models.Record, error) {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []models.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		rec := make(models.Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
}
