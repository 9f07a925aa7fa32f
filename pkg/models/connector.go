package models

import "time"

// Connector binds one pipeline endpoint (source or target) to an adapter,
// a credential and its field/filter/transform configuration. It is never
// mutated by the engine; paging state lives in the run.
type Connector struct {
	// Adapter is the registry id of the adapter ("http", "sql", "memory", ...)
	Adapter string `yaml:"adapter" json:"adapter"`
	// Endpoint selects the adapter endpoint (table, resource, topic, ...)
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Credential is the vault id of the credential; empty means anonymous
	Credential string `yaml:"credential" json:"credential"`
	// Config is free-form adapter configuration
	Config map[string]interface{} `yaml:"config" json:"config"`
	// Fields lists the fields to retain; empty keeps everything
	Fields []string `yaml:"fields" json:"fields"`
	// Filter restricts the extracted records
	Filter *FilterSpec `yaml:"filter" json:"filter"`
	// Sort orders the extracted records
	Sort []SortSpec `yaml:"sort" json:"sort"`
	// Transforms is applied once to the full extracted set
	Transforms []TransformOp `yaml:"transforms" json:"transforms"`
	// Limit caps the number of extracted records (0 = no cap)
	Limit int `yaml:"limit" json:"limit"`
	// Timeout bounds the extraction loop wall time (0 = no timeout)
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Pagination carries the caller's paging hints
	Pagination *PaginationHint `yaml:"pagination" json:"pagination"`
}

// PaginationHint is the caller-side pagination request.
type PaginationHint struct {
	// ItemsPerPage is the requested page (or batch) size
	ItemsPerPage int `yaml:"items_per_page" json:"itemsPerPage"`
	// Start is the first offset or cursor to request
	Start interface{} `yaml:"start" json:"start"`
}

// SortSpec orders records by one field.
type SortSpec struct {
	Field      string `yaml:"field" json:"field"`
	Descending bool   `yaml:"desc" json:"desc"`
}

// RequestedItemsPerPage returns the caller's page size hint, 0 when unset.
func (c *Connector) RequestedItemsPerPage() int {
	if c == nil || c.Pagination == nil {
		return 0
	}
	return c.Pagination.ItemsPerPage
}

// StartOffset returns the starting offset or cursor, nil when unset.
func (c *Connector) StartOffset() interface{} {
	if c == nil || c.Pagination == nil {
		return nil
	}
	return c.Pagination.Start
}

// ConfigString reads a string entry from Config.
func (c *Connector) ConfigString(key string) string {
	if c == nil || c.Config == nil {
		return ""
	}
	if s, ok := c.Config[key].(string); ok {
		return s
	}
	return ""
}

// ConfigInt reads an integer entry from Config, falling back to def.
func (c *Connector) ConfigInt(key string, def int) int {
	if c == nil || c.Config == nil {
		return def
	}
	v, ok := c.Config[key]
	if !ok || v == nil {
		return def
	}
	return OffsetInt(v)
}

// ConfigStrings reads a list of strings from Config. A single string is
// treated as a comma-less one-element list.
func (c *Connector) ConfigStrings(key string) []string {
	if c == nil || c.Config == nil {
		return nil
	}
	switch v := c.Config[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// HasConfig reports whether key is present and non-empty in Config.
func (c *Connector) HasConfig(key string) bool {
	if c == nil || c.Config == nil {
		return false
	}
	v, ok := c.Config[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}
