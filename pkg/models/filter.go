package models

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Filter is either a Predicate or a Group of filters.
type Filter interface {
	isFilter()
}

// Operator compares a record field against a value.
type Operator string

const (
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "ne"
	OpGreater      Operator = "gt"
	OpGreaterEqual Operator = "gte"
	OpLess         Operator = "lt"
	OpLessEqual    Operator = "lte"
	OpIn           Operator = "in"
	OpContains     Operator = "contains"
	OpExists       Operator = "exists"
)

// Logic joins the members of a Group.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Predicate is a leaf filter.
type Predicate struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Group is a boolean combination of filters.
type Group struct {
	Logic   Logic
	Filters []Filter
}

func (Predicate) isFilter() {}
func (Group) isFilter()     {}

// FilterSpec wraps a Filter so it can be decoded from YAML or JSON. The wire
// form is {field, op, value} for a predicate and {and: [...]} or {or: [...]}
// for a group.
type FilterSpec struct {
	Filter Filter
}

type rawFilter struct {
	Field string      `yaml:"field" json:"field"`
	Op    string      `yaml:"op" json:"op"`
	Value interface{} `yaml:"value" json:"value"`
	And   []rawFilter `yaml:"and" json:"and"`
	Or    []rawFilter `yaml:"or" json:"or"`
}

func (r rawFilter) toFilter() (Filter, error) {
	switch {
	case len(r.And) > 0 && len(r.Or) > 0:
		return nil, fmt.Errorf("filter group cannot be both and/or")
	case len(r.And) > 0:
		return r.group(LogicAnd, r.And)
	case len(r.Or) > 0:
		return r.group(LogicOr, r.Or)
	case r.Field == "":
		return nil, fmt.Errorf("filter predicate requires a field")
	}
	op := Operator(strings.ToLower(r.Op))
	if op == "" {
		op = OpEqual
	}
	return Predicate{Field: r.Field, Operator: op, Value: r.Value}, nil
}

func (r rawFilter) group(logic Logic, members []rawFilter) (Filter, error) {
	g := Group{Logic: logic, Filters: make([]Filter, 0, len(members))}
	for _, m := range members {
		f, err := m.toFilter()
		if err != nil {
			return nil, err
		}
		g.Filters = append(g.Filters, f)
	}
	return g, nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *FilterSpec) UnmarshalYAML(node *yaml.Node) error {
	var raw rawFilter
	if err := node.Decode(&raw); err != nil {
		return err
	}
	f, err := raw.toFilter()
	if err != nil {
		return err
	}
	s.Filter = f
	return nil
}

// UnmarshalJSON implements json.Unmarshaler
func (s *FilterSpec) UnmarshalJSON(data []byte) error {
	var raw rawFilter
	if err := unmarshalJSON(data, &raw); err != nil {
		return err
	}
	f, err := raw.toFilter()
	if err != nil {
		return err
	}
	s.Filter = f
	return nil
}

// Match evaluates f against r. A nil filter matches everything.
func Match(f Filter, r Record) bool {
	switch v := f.(type) {
	case nil:
		return true
	case Predicate:
		return matchPredicate(v, r)
	case *Predicate:
		return matchPredicate(*v, r)
	case Group:
		return matchGroup(v, r)
	case *Group:
		return matchGroup(*v, r)
	}
	return false
}

func matchGroup(g Group, r Record) bool {
	if g.Logic == LogicOr {
		for _, f := range g.Filters {
			if Match(f, r) {
				return true
			}
		}
		return len(g.Filters) == 0
	}
	for _, f := range g.Filters {
		if !Match(f, r) {
			return false
		}
	}
	return true
}

func matchPredicate(p Predicate, r Record) bool {
	actual, present := GetPath(r, p.Field)
	switch p.Operator {
	case OpExists:
		want := true
		if b, ok := p.Value.(bool); ok {
			want = b
		}
		return present == want
	case OpNotEqual:
		return !present || !looseEqual(actual, p.Value)
	}
	if !present {
		return false
	}

	switch p.Operator {
	case OpEqual:
		return looseEqual(actual, p.Value)
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		c, ok := compare(actual, p.Value)
		if !ok {
			return false
		}
		switch p.Operator {
		case OpGreater:
			return c > 0
		case OpGreaterEqual:
			return c >= 0
		case OpLess:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn:
		rv := reflect.ValueOf(p.Value)
		if rv.Kind() != reflect.Slice {
			return looseEqual(actual, p.Value)
		}
		for i := 0; i < rv.Len(); i++ {
			if looseEqual(actual, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	case OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(p.Value))
	}
	return false
}

func looseEqual(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compare(a, b interface{}) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs), true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
