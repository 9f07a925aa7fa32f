package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOffsetInt(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int
	}{
		{"nil", nil, 0},
		{"int", 40, 40},
		{"float", float64(12), 12},
		{"numeric string", "25", 25},
		{"opaque cursor", "abc123", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OffsetInt(tt.in))
		})
	}
}

func TestGetPath(t *testing.T) {
	r := Record{
		"customer": map[string]interface{}{
			"address": map[string]interface{}{"city": "Lisbon"},
		},
		"a.b": "literal",
	}

	v, ok := GetPath(r, "customer.address.city")
	require.True(t, ok)
	assert.Equal(t, "Lisbon", v)

	v, ok = GetPath(r, "a.b")
	require.True(t, ok)
	assert.Equal(t, "literal", v)

	_, ok = GetPath(r, "customer.phone")
	assert.False(t, ok)
}

func TestSetPathDoesNotMutate(t *testing.T) {
	inner := map[string]interface{}{"city": "Lisbon"}
	r := Record{"address": inner}

	out := SetPath(r, "address.zip", "1000")

	assert.Equal(t, "1000", out["address"].(Record)["zip"])
	assert.Equal(t, "Lisbon", out["address"].(Record)["city"])
	_, touched := inner["zip"]
	assert.False(t, touched)
}

func TestProject(t *testing.T) {
	r := Record{"id": 1, "name": "x", "secret": "y"}
	assert.Equal(t, Record{"id": 1, "name": "x"}, Project(r, []string{"id", "name"}))
	assert.Equal(t, r, Project(r, nil))
}

func TestFilterSpecYAML(t *testing.T) {
	src := `
or:
  - field: status
    op: eq
    value: active
  - and:
      - field: age
        op: gte
        value: 18
      - field: country
        op: in
        value: [PT, ES]
`
	var spec FilterSpec
	require.NoError(t, yaml.Unmarshal([]byte(src), &spec))

	g, ok := spec.Filter.(Group)
	require.True(t, ok)
	assert.Equal(t, LogicOr, g.Logic)
	require.Len(t, g.Filters, 2)

	assert.True(t, Match(spec.Filter, Record{"status": "active"}))
	assert.True(t, Match(spec.Filter, Record{"age": 30, "country": "PT"}))
	assert.False(t, Match(spec.Filter, Record{"age": 30, "country": "FR"}))
	assert.False(t, Match(spec.Filter, Record{"age": 12, "country": "PT"}))
}

func TestFilterSpecJSON(t *testing.T) {
	var spec FilterSpec
	require.NoError(t, spec.UnmarshalJSON([]byte(`{"field":"name","op":"contains","value":"ann"}`)))

	p, ok := spec.Filter.(Predicate)
	require.True(t, ok)
	assert.Equal(t, OpContains, p.Operator)
	assert.True(t, Match(spec.Filter, Record{"name": "joanna"}))
}

func TestFilterSpecRejectsEmptyPredicate(t *testing.T) {
	var spec FilterSpec
	assert.Error(t, spec.UnmarshalJSON([]byte(`{"op":"eq","value":1}`)))
}

func TestMatchOperators(t *testing.T) {
	r := Record{"n": 5, "s": "b"}
	assert.True(t, Match(Predicate{Field: "n", Operator: OpGreater, Value: 4}, r))
	assert.True(t, Match(Predicate{Field: "n", Operator: OpLessEqual, Value: "5"}, r))
	assert.True(t, Match(Predicate{Field: "s", Operator: OpNotEqual, Value: "a"}, r))
	assert.True(t, Match(Predicate{Field: "missing", Operator: OpExists, Value: false}, r))
	assert.False(t, Match(Predicate{Field: "missing", Operator: OpEqual, Value: 1}, r))
	assert.True(t, Match(nil, r))
}

func TestEventWithCount(t *testing.T) {
	e := NewEvent(EventLoad, "batch delivered").WithCount(3)
	require.NotNil(t, e.Count)
	assert.Equal(t, 3, *e.Count)
	assert.False(t, e.Timestamp.IsZero())
}
