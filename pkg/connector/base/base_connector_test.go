package base

import (
	"testing"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	bc := NewBaseConnector("x", &models.Connector{Endpoint: "e"})
	assert.True(t, errors.IsType(bc.EnsureConnected(), errors.ErrorTypeConnection))

	bc.MarkConnected()
	assert.NoError(t, bc.EnsureConnected())
	assert.True(t, bc.MarkDisconnected())
	assert.False(t, bc.MarkDisconnected())
}

func TestShape(t *testing.T) {
	bc := NewBaseConnector("x", &models.Connector{
		Fields: []string{"id"},
		Filter: &models.FilterSpec{Filter: models.Predicate{Field: "ok", Operator: models.OpEqual, Value: true}},
	})
	out := bc.Shape([]models.Record{{"id": 1, "ok": true}, {"id": 2, "ok": false}})
	assert.Equal(t, []models.Record{{"id": 1}}, out)
}

func TestPaginationFromConfig(t *testing.T) {
	decl, err := PaginationFromConfig(&models.Connector{Config: map[string]interface{}{
		"pagination": "cursor", "max_items_per_page": 50,
	}}, core.PaginationNone)
	require.NoError(t, err)
	assert.Equal(t, core.PaginationCursor, decl.Style)
	assert.Equal(t, 50, decl.MaxItemsPerPage)

	decl, err = PaginationFromConfig(&models.Connector{}, core.PaginationOffset)
	require.NoError(t, err)
	assert.Equal(t, core.PaginationOffset, decl.Style)

	_, err = PaginationFromConfig(&models.Connector{Config: map[string]interface{}{"pagination": "page"}}, core.PaginationNone)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRequireConfig(t *testing.T) {
	conn := &models.Connector{Config: map[string]interface{}{"a": "x", "b": ""}}
	assert.NoError(t, RequireConfig("t", conn, "a"))
	assert.ErrorContains(t, RequireConfig("t", conn, "a", "b"), `"b"`)
}
