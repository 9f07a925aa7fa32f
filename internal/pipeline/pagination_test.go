package pipeline

import (
	"testing"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	offset := &core.PaginationDecl{Style: core.PaginationOffset, MaxItemsPerPage: 100}
	cursor := &core.PaginationDecl{Style: core.PaginationCursor, MaxItemsPerPage: 25}

	desc := core.Descriptor{
		ID:         "crm",
		Pagination: offset,
		Endpoints: map[string]core.EndpointDecl{
			"events":   {Pagination: cursor},
			"contacts": {},
		},
	}

	tests := []struct {
		name      string
		desc      core.Descriptor
		endpoint  string
		requested int
		style     core.PaginationStyle
		ipp       int
		clamped   bool
		notes     int
	}{
		{"no declaration", core.Descriptor{ID: "x"}, "", 50, core.PaginationNone, 0, false, 1},
		{"explicit none", core.Descriptor{ID: "x", Pagination: &core.PaginationDecl{Style: core.PaginationNone}}, "", 0, core.PaginationNone, 0, false, 0},
		{"adapter default used", desc, "contacts", 10, core.PaginationOffset, 10, false, 0},
		{"endpoint overrides adapter", desc, "events", 10, core.PaginationCursor, 10, false, 0},
		{"maximum when none requested", desc, "events", 0, core.PaginationCursor, 25, false, 1},
		{"clamped to maximum", desc, "contacts", 500, core.PaginationOffset, 100, true, 1},
		{"default size", core.Descriptor{Pagination: &core.PaginationDecl{Style: core.PaginationOffset, DefaultItemsPerPage: 20}}, "", 0, core.PaginationOffset, 20, false, 1},
		{"unresolved size", core.Descriptor{Pagination: &core.PaginationDecl{Style: core.PaginationOffset}}, "", 0, core.PaginationOffset, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &models.Connector{Endpoint: tt.endpoint}
			res := Resolve(conn, tt.desc, tt.requested)
			assert.Equal(t, tt.style, res.Style)
			assert.Equal(t, tt.ipp, res.ItemsPerPage)
			assert.Equal(t, tt.clamped, res.Clamped)
			assert.Len(t, res.Notes, tt.notes)
		})
	}
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 7, BatchSize(Resolution{Style: core.PaginationNone}, 7))
	assert.Equal(t, 2, BatchSize(Resolution{Style: core.PaginationOffset, ItemsPerPage: 2}, 7))
	assert.Equal(t, 7, BatchSize(Resolution{Style: core.PaginationCursor, ItemsPerPage: 2}, 7))
	assert.Equal(t, 1, BatchSize(Resolution{}, 0))
}
