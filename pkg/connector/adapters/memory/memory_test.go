package memory

import (
	"context"
	"testing"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Record{"id": i, "name": "r"}
	}
	return out
}

func TestDownloadOffsetPages(t *testing.T) {
	store := NewStore()
	store.Put("people", seed(5))
	a, err := New(store, &models.Connector{Adapter: AdapterID, Endpoint: "people"})
	require.NoError(t, err)

	ctx := context.Background()
	p, err := a.Download(ctx, models.PageOptions{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())

	p, err = a.Download(ctx, models.PageOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 4, p.Data[0]["id"])
	assert.Nil(t, p.Options.NextOffset)
}

func TestDownloadCursorPages(t *testing.T) {
	store := NewStore()
	store.Put("people", seed(3))
	a, err := New(store, &models.Connector{
		Adapter: AdapterID, Endpoint: "people",
		Config: map[string]interface{}{"pagination": "cursor"},
	})
	require.NoError(t, err)
	assert.Equal(t, core.PaginationCursor, a.Descriptor().Pagination.Style)

	p, err := a.Download(context.Background(), models.PageOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, "2", p.Options.NextOffset)

	p, err = a.Download(context.Background(), models.PageOptions{Limit: 2, Offset: "2"})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
	assert.Nil(t, p.Options.NextOffset)
}

func TestDownloadFiltersSortsAndProjects(t *testing.T) {
	store := NewStore()
	store.Put("people", []models.Record{
		{"id": 1, "age": 30, "name": "a"},
		{"id": 2, "age": 17, "name": "b"},
		{"id": 3, "age": 45, "name": "c"},
	})
	a, err := New(store, &models.Connector{
		Adapter:  AdapterID,
		Endpoint: "people",
		Fields:   []string{"id"},
		Filter:   &models.FilterSpec{Filter: models.Predicate{Field: "age", Operator: models.OpGreaterEqual, Value: 18}},
		Sort:     []models.SortSpec{{Field: "age", Descending: true}},
	})
	require.NoError(t, err)

	p, err := a.Download(context.Background(), models.PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, []models.Record{{"id": 3}, {"id": 1}}, p.Data)
}

func TestUploadAppends(t *testing.T) {
	store := NewStore()
	a, err := New(store, &models.Connector{Adapter: AdapterID, Config: map[string]interface{}{"dataset": "out"}})
	require.NoError(t, err)

	require.NoError(t, a.Upload(context.Background(), seed(2)))
	require.NoError(t, a.Upload(context.Background(), seed(1)))
	assert.Len(t, store.Get("out"), 3)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(NewStore(), &models.Connector{Adapter: AdapterID})
	assert.Error(t, err)

	_, err = New(NewStore(), &models.Connector{Adapter: AdapterID, Endpoint: "x", Config: map[string]interface{}{"pagination": "pages"}})
	assert.Error(t, err)
}

func TestRegisteredGlobally(t *testing.T) {
	assert.True(t, registry.GetRegistry().Has(AdapterID))
}
