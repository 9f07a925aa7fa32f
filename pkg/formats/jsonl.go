package formats

import (
	"bufio"
	"io"

	jsonpool "github.com/ajitpratap0/relay/pkg/json"
	"github.com/ajitpratap0/relay/pkg/models"
)

type jsonlEncoder struct{}

func (jsonlEncoder) ContentType() string { return "application/x-ndjson" }
func (jsonlEncoder) Extension() string   { return ".jsonl" }

func (jsonlEncoder) Encode(w io.Writer, records []models.Record) error {
	return jsonpool.MarshalLines(w, records)
}

// DecodeJSONL reads newline-delimited JSON objects. Blank lines are skipped.
func DecodeJSONL(r io.Reader) ([]models.Record, error) {
	var out []models.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.Record
		if err := jsonpool.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}
