// Package json provides JSON serialization backed by goccy/go-json with
// pooled buffers for the hot encode paths.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

const maxPooledBuffer = 1 << 20

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// NewEncoder returns an encoder that leaves HTML characters unescaped
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// NewDecoder returns a decoder that keeps numbers as json.Number when
// useNumber is set
func NewDecoder(r io.Reader, useNumber bool) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	if useNumber {
		dec.UseNumber()
	}
	return dec
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// MarshalLines writes every value as one JSON document per line
func MarshalLines(w io.Writer, values []map[string]interface{}) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := NewEncoder(buf)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// MarshalArray marshals values as a single JSON array
func MarshalArray(values []map[string]interface{}) ([]byte, error) {
	if len(values) == 0 {
		return []byte("[]"), nil
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte('[')
	enc := NewEncoder(buf)
	for i, v := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		// Encode appends a newline
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte(']')

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
