// Package objectstore holds the batch-to-object mapping shared by the S3 and
// GCS adapters: object naming, encoding with optional compression, and
// decoding objects back into records.
package objectstore

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/relay/pkg/compression"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/formats"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/google/uuid"
)

// Layout describes how batches become objects
type Layout struct {
	Prefix      string
	Format      formats.Format
	Compression compression.Algorithm
	Level       compression.Level

	encoder formats.Encoder
	options formats.Options
	session string
	seq     atomic.Int64
	now     func() time.Time
}

// Object is one encoded batch
type Object struct {
	Key             string
	Body            []byte
	ContentType     string
	ContentEncoding string
	Records         int
}

// FromConnector reads prefix, format, compression, compression_level,
// columns and avro_schema from conn.Config. The endpoint is appended to the
// prefix.
func FromConnector(conn *models.Connector) (*Layout, error) {
	format, err := formats.Parse(conn.ConfigString("format"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid format")
	}
	alg, err := compression.Parse(conn.ConfigString("compression"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
	}
	opts := formats.Options{
		Columns:    conn.ConfigStrings("columns"),
		AvroSchema: conn.ConfigString("avro_schema"),
	}
	encoder, err := formats.New(format, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid format options")
	}

	prefix := strings.Trim(path.Join(conn.ConfigString("prefix"), conn.Endpoint), "/")
	return &Layout{
		Prefix:      prefix,
		Format:      format,
		Compression: alg,
		Level:       compression.ParseLevel(conn.ConfigString("compression_level")),
		encoder:     encoder,
		options:     opts,
		session:     uuid.NewString()[:8],
		now:         time.Now,
	}, nil
}

// ListPrefix is the prefix to list when reading objects back
func (l *Layout) ListPrefix() string {
	if l.Prefix == "" {
		return ""
	}
	return l.Prefix + "/"
}

// NextKey names the next object: <prefix>/<yyyy/mm/dd>/<timestamp>-<session>-<seq><ext>
func (l *Layout) NextKey() string {
	now := l.now().UTC()
	name := fmt.Sprintf("%s-%s-%05d%s%s",
		now.Format("20060102T150405Z"), l.session, l.seq.Add(1),
		l.encoder.Extension(), compression.Extension(l.Compression))
	return path.Join(l.Prefix, now.Format("2006/01/02"), name)
}

// Encode serializes a batch into the next object
func (l *Layout) Encode(records []models.Record) (*Object, error) {
	var buf bytes.Buffer
	w, err := compression.NewWriter(l.Compression, l.Level, &buf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor")
	}
	if err := l.encoder.Encode(w, records); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode batch")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to compress batch")
	}
	return &Object{
		Key:             l.NextKey(),
		Body:            buf.Bytes(),
		ContentType:     l.encoder.ContentType(),
		ContentEncoding: compression.ContentEncoding(l.Compression),
		Records:         len(records),
	}, nil
}

// Decode reads an object written by any layout. The format and compression
// come from the key's extensions, falling back to the layout's own.
func (l *Layout) Decode(key string, body []byte) ([]models.Record, error) {
	alg := l.Compression
	name := key
	for _, candidate := range []compression.Algorithm{compression.Gzip, compression.Zstd, compression.Snappy, compression.LZ4, compression.S2} {
		if ext := compression.Extension(candidate); strings.HasSuffix(name, ext) {
			alg = candidate
			name = strings.TrimSuffix(name, ext)
			break
		}
	}

	format, ok := formats.FromExtension(name)
	if !ok {
		format = l.Format
	}

	raw, err := compression.Decompress(alg, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decompress "+key)
	}
	records, err := formats.Decode(format, bytes.NewReader(raw), l.options)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode "+key)
	}
	return records, nil
}
