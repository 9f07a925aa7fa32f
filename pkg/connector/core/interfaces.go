package core

import (
	"context"

	"github.com/ajitpratap0/relay/pkg/models"
)

// Action is a capability an adapter advertises
type Action string

const (
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
)

// PaginationStyle selects how the engine walks pages
type PaginationStyle string

const (
	// PaginationNone performs exactly one download
	PaginationNone PaginationStyle = "none"
	// PaginationOffset advances a numeric offset by the page size
	PaginationOffset PaginationStyle = "offset"
	// PaginationCursor adopts the opaque NextOffset of the previous page
	PaginationCursor PaginationStyle = "cursor"
)

// PaginationDecl is a pagination declaration at adapter or endpoint level
type PaginationDecl struct {
	Style PaginationStyle `json:"style" yaml:"style"`
	// MaxItemsPerPage caps the page size; 0 means no cap
	MaxItemsPerPage int `json:"max_items_per_page,omitempty" yaml:"max_items_per_page,omitempty"`
	// DefaultItemsPerPage is used when neither the caller nor a cap sets a size
	DefaultItemsPerPage int `json:"default_items_per_page,omitempty" yaml:"default_items_per_page,omitempty"`
}

// EndpointDecl overrides adapter defaults for one endpoint
type EndpointDecl struct {
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Actions     []Action        `json:"actions,omitempty" yaml:"actions,omitempty"`
	Pagination  *PaginationDecl `json:"pagination,omitempty" yaml:"pagination,omitempty"`
}

// Descriptor is an adapter's static self-description
type Descriptor struct {
	ID             string                  `json:"id" yaml:"id"`
	Description    string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Actions        []Action                `json:"actions" yaml:"actions"`
	Pagination     *PaginationDecl         `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	Endpoints      map[string]EndpointDecl `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	RequiredConfig []string                `json:"required_config,omitempty" yaml:"required_config,omitempty"`
}

// Supports reports whether the adapter advertises action
func (d Descriptor) Supports(action Action) bool {
	for _, a := range d.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Endpoint returns the declaration for name and whether it exists
func (d Descriptor) Endpoint(name string) (EndpointDecl, bool) {
	ep, ok := d.Endpoints[name]
	return ep, ok
}

// Adapter is a live handle for one connector and credential pair. It is owned
// by a single pipeline run and never shared. The remaining capabilities are
// optional and discovered with type assertions.
type Adapter interface {
	Descriptor() Descriptor
}

// Connector establishes stateful connections. Failures are not retried.
type Connector interface {
	Connect(ctx context.Context) error
}

// Disconnector releases connections. Failures are logged only.
type Disconnector interface {
	Disconnect(ctx context.Context) error
}

// Downloader fetches one page. Graceful end of data is an empty page, not an
// error.
type Downloader interface {
	Download(ctx context.Context, opts models.PageOptions) (*models.Page, error)
}

// Uploader delivers one batch atomically from the engine's point of view
type Uploader interface {
	Upload(ctx context.Context, records []models.Record) error
}
