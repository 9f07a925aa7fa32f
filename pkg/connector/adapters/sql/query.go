package sql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/relay/pkg/errors"
	jsonpool "github.com/ajitpratap0/relay/pkg/json"
	"github.com/ajitpratap0/relay/pkg/models"
)

// queryBuilder accumulates SQL text and bind arguments
type queryBuilder struct {
	d    Dialect
	sb   strings.Builder
	args []interface{}
}

func (q *queryBuilder) bind(v interface{}) string {
	q.args = append(q.args, v)
	return q.d.Placeholder(len(q.args))
}

// SelectQuery builds the SELECT for one page. source is either a table name
// or a custom query, which is wrapped as a derived table.
func SelectQuery(d Dialect, table, custom string, fields []string, filter models.Filter, sorts []models.SortSpec, limit, offset int) (string, []interface{}, error) {
	q := &queryBuilder{d: d}

	q.sb.WriteString("SELECT ")
	if len(fields) == 0 {
		q.sb.WriteString("*")
	} else {
		cols := make([]string, len(fields))
		for i, f := range fields {
			cols[i] = d.Quote(f)
		}
		q.sb.WriteString(strings.Join(cols, ", "))
	}

	q.sb.WriteString(" FROM ")
	if custom != "" {
		q.sb.WriteString("(" + custom + ") src")
	} else {
		q.sb.WriteString(d.Quote(table))
	}

	if filter != nil {
		where, err := q.condition(filter)
		if err != nil {
			return "", nil, err
		}
		q.sb.WriteString(" WHERE " + where)
	}

	if len(sorts) > 0 {
		parts := make([]string, len(sorts))
		for i, s := range sorts {
			dir := "ASC"
			if s.Descending {
				dir = "DESC"
			}
			parts[i] = d.Quote(s.Field) + " " + dir
		}
		q.sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	return d.Paginate(q.sb.String(), len(sorts) > 0, limit, offset), q.args, nil
}

func (q *queryBuilder) condition(f models.Filter) (string, error) {
	switch t := f.(type) {
	case models.Predicate:
		return q.predicate(t)
	case *models.Predicate:
		return q.predicate(*t)
	case models.Group:
		return q.group(t)
	case *models.Group:
		return q.group(*t)
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported filter %T", f)
}

func (q *queryBuilder) group(g models.Group) (string, error) {
	if len(g.Filters) == 0 {
		return "1=1", nil
	}
	joiner := " AND "
	if g.Logic == models.LogicOr {
		joiner = " OR "
	}
	parts := make([]string, 0, len(g.Filters))
	for _, member := range g.Filters {
		c, err := q.condition(member)
		if err != nil {
			return "", err
		}
		parts = append(parts, c)
	}
	return "(" + strings.Join(parts, joiner) + ")", nil
}

func (q *queryBuilder) predicate(p models.Predicate) (string, error) {
	col := q.d.Quote(p.Field)
	switch p.Operator {
	case models.OpEqual:
		if p.Value == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + q.bind(p.Value), nil
	case models.OpNotEqual:
		if p.Value == nil {
			return col + " IS NOT NULL", nil
		}
		return col + " <> " + q.bind(p.Value), nil
	case models.OpGreater:
		return col + " > " + q.bind(p.Value), nil
	case models.OpGreaterEqual:
		return col + " >= " + q.bind(p.Value), nil
	case models.OpLess:
		return col + " < " + q.bind(p.Value), nil
	case models.OpLessEqual:
		return col + " <= " + q.bind(p.Value), nil
	case models.OpContains:
		return col + " LIKE " + q.bind("%"+fmt.Sprint(p.Value)+"%"), nil
	case models.OpExists:
		if b, ok := p.Value.(bool); ok && !b {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	case models.OpIn:
		values, ok := p.Value.([]interface{})
		if !ok || len(values) == 0 {
			return "1=0", nil
		}
		marks := make([]string, len(values))
		for i, v := range values {
			marks[i] = q.bind(v)
		}
		return col + " IN (" + strings.Join(marks, ", ") + ")", nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported filter operator %q", p.Operator)
}

// InsertQuery builds one multi-row INSERT over the sorted key union of records
func InsertQuery(d Dialect, table string, records []models.Record) (string, []interface{}, error) {
	columns := columnUnion(records)
	if len(columns) == 0 {
		return "", nil, errors.New(errors.ErrorTypeData, "batch has no columns")
	}

	q := &queryBuilder{d: d}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	fmt.Fprintf(&q.sb, "INSERT INTO %s (%s) VALUES ", d.Quote(table), strings.Join(quoted, ", "))

	for i, r := range records {
		if i > 0 {
			q.sb.WriteString(", ")
		}
		marks := make([]string, len(columns))
		for j, c := range columns {
			v, err := bindValue(r[c])
			if err != nil {
				return "", nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode column "+c)
			}
			marks[j] = q.bind(v)
		}
		q.sb.WriteString("(" + strings.Join(marks, ", ") + ")")
	}
	return q.sb.String(), q.args, nil
}

func columnUnion(records []models.Record) []string {
	seen := map[string]struct{}{}
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// bindValue stores nested values as JSON text
func bindValue(v interface{}) (interface{}, error) {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := jsonpool.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}
