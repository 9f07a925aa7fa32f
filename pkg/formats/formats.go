// Package formats serializes record batches for object-store and message
// adapters. Every encoder writes a complete, self-contained document per
// batch so that each batch can become one object or one message.
package formats

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ajitpratap0/relay/pkg/models"
)

// Format identifies a serialization format
type Format string

const (
	// JSONL writes one JSON document per line
	JSONL Format = "jsonl"
	// CSV writes a header row followed by one row per record
	CSV Format = "csv"
	// Avro writes an Avro object container file
	Avro Format = "avro"
	// Arrow writes an Arrow IPC file with one record batch
	Arrow Format = "arrow"
)

// Options configures an encoder
type Options struct {
	// Columns fixes the CSV column order; empty means the sorted key union
	Columns []string
	// AvroSchema is an explicit record schema; empty means inferred per batch
	AvroSchema string
	// Delimiter overrides the CSV field separator
	Delimiter rune
}

// Encoder serializes a batch of records
type Encoder interface {
	Encode(w io.Writer, records []models.Record) error
	ContentType() string
	Extension() string
}

// Parse maps a configuration string to a Format. The empty string is JSONL.
func Parse(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", "json", "ndjson":
		return JSONL, nil
	case JSONL, CSV, Avro, Arrow:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// New creates an encoder for format
func New(format Format, opts Options) (Encoder, error) {
	switch format {
	case JSONL, "":
		return jsonlEncoder{}, nil
	case CSV:
		return &csvEncoder{opts: opts}, nil
	case Avro:
		return newAvroEncoder(opts)
	case Arrow:
		return arrowEncoder{}, nil
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

// keyUnion returns the sorted union of top-level keys across records
func keyUnion(records []models.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decode reads a document written by the encoder for format
func Decode(format Format, r io.Reader, opts Options) ([]models.Record, error) {
	switch format {
	case JSONL, "":
		return DecodeJSONL(r)
	case CSV:
		return DecodeCSV(r, opts.Delimiter)
	case Avro:
		return DecodeAvro(r)
	case Arrow:
		return DecodeArrow(r)
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

// FromExtension infers the format of an object name, ignoring a trailing
// compression suffix handled by the caller.
func FromExtension(name string) (Format, bool) {
	switch {
	case strings.HasSuffix(name, ".jsonl"), strings.HasSuffix(name, ".ndjson"), strings.HasSuffix(name, ".json"):
		return JSONL, true
	case strings.HasSuffix(name, ".csv"):
		return CSV, true
	case strings.HasSuffix(name, ".avro"):
		return Avro, true
	case strings.HasSuffix(name, ".arrow"):
		return Arrow, true
	}
	return "", false
}
