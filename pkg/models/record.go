// Package models provides the data model shared by the pipeline engine and
// every adapter: records, pages, connectors, filters and lifecycle events.
package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is a single row/document moved through a pipeline.
// Records are treated as immutable once produced by an adapter.
type Record = map[string]interface{}

// PageOptions is the window requested from an adapter for one download call.
type PageOptions struct {
	// Limit is the requested page size; 0 means unset (single unbounded call)
	Limit int
	// Offset is an opaque string or number; nil on the first call unless the
	// connector declares a starting cursor.
	Offset interface{}
}

// PageInfo carries the adapter's continuation hint.
type PageInfo struct {
	// NextOffset is the cursor for the next call. Its absence ends cursor-style pagination.
	NextOffset interface{}
}

// Page is the unit returned by one download call.
type Page struct {
	Data    []Record
	Options PageInfo
}

// Len returns the number of records in the page; a nil page is empty.
func (p *Page) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}

// OffsetInt interprets an opaque offset as an integer for offset-style
// arithmetic. Missing or non-numeric offsets count as 0.
func OffsetInt(v interface{}) int {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case fmt.Stringer:
		return OffsetInt(n.String())
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && !math.IsNaN(f) {
			return int(f)
		}
	}
	return 0
}

// CloneRecord returns a shallow copy of r.
func CloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// GetPath reads a possibly dotted path ("customer.address.city") from r.
// A literal key containing dots takes precedence over path traversal.
func GetPath(r Record, path string) (interface{}, bool) {
	if r == nil || path == "" {
		return nil, false
	}
	if v, ok := r[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	var current interface{} = r
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath returns a copy of r with value written at a possibly dotted path.
// Intermediate maps are copied, never mutated.
func SetPath(r Record, path string, value interface{}) Record {
	out := CloneRecord(r)
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		out[path] = value
		return out
	}

	head := parts[0]
	var child Record
	if existing, ok := asMap(out[head]); ok {
		child = existing
	} else {
		child = Record{}
	}
	out[head] = SetPath(child, strings.Join(parts[1:], "."), value)
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	default:
		return nil, false
	}
}

// Project keeps only the listed fields (dotted paths allowed). An empty field
// list returns r unchanged.
func Project(r Record, fields []string) Record {
	if len(fields) == 0 {
		return r
	}
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := GetPath(r, f); ok {
			out[f] = v
		}
	}
	return out
}
