package pipeline

import (
	"fmt"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/models"
)

// Resolution is the effective pagination for one connector-endpoint pair
type Resolution struct {
	Style core.PaginationStyle
	// ItemsPerPage is 0 when no page size could be resolved
	ItemsPerPage int
	// Declared is the declaration the resolution came from, nil for none
	Declared *core.PaginationDecl
	// Clamped is set when the requested size was lowered to the maximum
	Clamped bool
	// Notes describe every sizing decision; the engine emits them as info events
	Notes []string
}

// Paginated reports whether more than one download may be issued
func (r Resolution) Paginated() bool {
	return r.Style != core.PaginationNone && r.ItemsPerPage > 0
}

// Resolve computes the page style and size for conn. The endpoint declaration
// wins over the adapter default; without either there is no pagination.
// A requested size above the declared maximum is clamped, never rejected.
func Resolve(conn *models.Connector, desc core.Descriptor, requested int) Resolution {
	decl := declaration(conn, desc)
	if decl == nil || decl.Style == "" || decl.Style == core.PaginationNone {
		res := Resolution{Style: core.PaginationNone, Declared: decl}
		if requested > 0 {
			res.Notes = append(res.Notes,
				fmt.Sprintf("adapter %s declares no pagination, ignoring requested page size %d", desc.ID, requested))
		}
		return res
	}

	res := Resolution{Style: decl.Style, Declared: decl}
	maxItems := decl.MaxItemsPerPage

	switch {
	case requested <= 0 && maxItems > 0:
		res.ItemsPerPage = maxItems
		res.Notes = append(res.Notes, fmt.Sprintf("no page size requested, using maximum %d", maxItems))
	case requested <= 0:
		res.ItemsPerPage = decl.DefaultItemsPerPage
		if res.ItemsPerPage > 0 {
			res.Notes = append(res.Notes, fmt.Sprintf("no page size requested, using default %d", res.ItemsPerPage))
		}
	case maxItems > 0 && requested > maxItems:
		res.ItemsPerPage = maxItems
		res.Clamped = true
		res.Notes = append(res.Notes, fmt.Sprintf("requested page size %d clamped to maximum %d", requested, maxItems))
	default:
		res.ItemsPerPage = requested
	}
	return res
}

func declaration(conn *models.Connector, desc core.Descriptor) *core.PaginationDecl {
	if conn != nil && conn.Endpoint != "" {
		if ep, ok := desc.Endpoint(conn.Endpoint); ok && ep.Pagination != nil {
			return ep.Pagination
		}
	}
	return desc.Pagination
}
