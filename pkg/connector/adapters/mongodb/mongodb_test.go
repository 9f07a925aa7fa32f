package mongodb

import (
	"testing"
	"time"

	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFilterDocument(t *testing.T) {
	doc, err := FilterDocument(models.Group{Logic: models.LogicOr, Filters: []models.Filter{
		models.Predicate{Field: "age", Operator: models.OpLess, Value: 18},
		models.Predicate{Field: "name", Operator: models.OpContains, Value: "a.b"},
		models.Predicate{Field: "tags", Operator: models.OpIn, Value: []interface{}{"x"}},
		models.Predicate{Field: "email", Operator: models.OpExists, Value: false},
	}})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$or": bson.A{
		bson.M{"age": bson.M{"$lt": 18}},
		bson.M{"name": bson.M{"$regex": `a\.b`}},
		bson.M{"tags": bson.M{"$in": bson.A{"x"}}},
		bson.M{"email": bson.M{"$exists": false}},
	}}, doc)

	_, err = FilterDocument(models.Predicate{Field: "x", Operator: "near"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSortDocument(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, SortDocument(nil))
	assert.Equal(t, bson.D{{Key: "ts", Value: -1}}, SortDocument([]models.SortSpec{{Field: "ts", Descending: true}}))
}

func TestNormalize(t *testing.T) {
	id := primitive.NewObjectID()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	out := Normalize(bson.M{
		"_id":  id,
		"at":   primitive.NewDateTimeFromTime(at),
		"tags": bson.A{"a", bson.D{{Key: "k", Value: 1}}},
	}).(map[string]interface{})

	assert.Equal(t, id.Hex(), out["_id"])
	assert.Equal(t, at, out["at"])
	assert.Equal(t, []interface{}{"a", map[string]interface{}{"k": 1}}, out["tags"])
}

func TestNew(t *testing.T) {
	_, err := New(&models.Connector{Adapter: AdapterID, Config: map[string]interface{}{"uri": "mongodb://x"}}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	a, err := New(&models.Connector{Adapter: AdapterID, Endpoint: "people", Config: map[string]interface{}{
		"uri": "mongodb://{username}:{password}@h", "database": "crm",
	}}, &vault.Credential{Kind: vault.KindBasic, Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "mongodb://u:p@h", a.uri)
	assert.Equal(t, "people", a.collection)
	assert.Equal(t, 500, a.Descriptor().Pagination.DefaultItemsPerPage)
}
