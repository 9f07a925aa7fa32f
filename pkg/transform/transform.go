// Package transform applies ordered, declarative field operations to a batch
// of records. It performs no I/O and never mutates its input: every stage
// returns a new record whose computed fields are merged over the previous one.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ajitpratap0/relay/pkg/logger"
	"github.com/ajitpratap0/relay/pkg/models"
	"go.uber.org/zap"
)

// DefaultConcatSeparator glues concat inputs when no separator is declared
const DefaultConcatSeparator = " "

// stage transforms one record; ok=false means the record passes through unchanged
type stage func(models.Record) (models.Record, bool)

// Engine applies transform operations
type Engine struct {
	logger *zap.Logger
}

// New creates a transform engine logging skipped operations to l
func New(l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	return &Engine{logger: l.With(zap.String("component", "transform"))}
}

// Apply runs ops over records using the global logger
func Apply(ops []models.TransformOp, records []models.Record) []models.Record {
	return New(logger.Get()).Apply(ops, records)
}

// Apply runs ops in order over every record. An empty op list returns records
// unchanged. Operations missing required options and unknown kinds are skipped.
func (e *Engine) Apply(ops []models.TransformOp, records []models.Record) []models.Record {
	if len(ops) == 0 {
		return records
	}

	stages := make([]stage, 0, len(ops))
	for i, op := range ops {
		s, err := e.compile(op)
		if err != nil {
			e.logger.Warn("skipping transform operation",
				zap.Int("index", i),
				zap.String("type", string(op.Kind)),
				zap.Error(err))
			continue
		}
		if s != nil {
			stages = append(stages, s)
		}
	}

	out := make([]models.Record, len(records))
	for i, r := range records {
		current := r
		for _, s := range stages {
			if next, ok := s(current); ok {
				current = next
			}
		}
		out[i] = current
	}
	return out
}

// compile turns op into a stage. A nil stage with nil error means the op is
// missing required options and is silently skipped.
func (e *Engine) compile(op models.TransformOp) (stage, error) {
	target := op.Output()

	switch op.Kind {
	case models.TransformConcat:
		if len(op.Fields) == 0 || op.Target == "" {
			return nil, nil
		}
		sep := DefaultConcatSeparator
		if op.Separator != nil {
			sep = *op.Separator
		}
		return concat(op.Fields, sep, op.Target), nil

	case models.TransformRename, models.TransformCopy:
		if op.Field == "" || op.Target == "" || op.Field == op.Target {
			return nil, nil
		}
		move := op.Kind == models.TransformRename
		return func(r models.Record) (models.Record, bool) {
			v, ok := models.GetPath(r, op.Field)
			if !ok {
				return nil, false
			}
			out := r
			if move {
				out = deletePath(out, op.Field)
			}
			return models.SetPath(out, op.Target, v), true
		}, nil

	case models.TransformUppercase:
		return stringStage(op.Field, target, strings.ToUpper), nil
	case models.TransformLowercase:
		return stringStage(op.Field, target, strings.ToLower), nil
	case models.TransformTrim:
		return stringStage(op.Field, target, strings.TrimSpace), nil

	case models.TransformPrefix, models.TransformSuffix:
		if op.Value == nil {
			return nil, nil
		}
		lit := *op.Value
		if op.Kind == models.TransformPrefix {
			return stringStage(op.Field, target, func(s string) string { return lit + s }), nil
		}
		return stringStage(op.Field, target, func(s string) string { return s + lit }), nil

	case models.TransformSplit:
		if op.Field == "" || op.Separator == nil {
			return nil, nil
		}
		sep := *op.Separator
		return valueStage(op.Field, target, func(s string) interface{} {
			return strings.Split(s, sep)
		}), nil

	case models.TransformReplace:
		if op.Field == "" || op.Pattern == "" || op.Replacement == nil {
			return nil, nil
		}
		re, err := regexp.Compile(op.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		repl := *op.Replacement
		return stringStage(op.Field, target, func(s string) string {
			return re.ReplaceAllString(s, repl)
		}), nil

	case models.TransformToNumber:
		if op.Field == "" {
			return nil, nil
		}
		return func(r models.Record) (models.Record, bool) {
			v, ok := models.GetPath(r, op.Field)
			if !ok {
				return nil, false
			}
			return models.SetPath(r, target, toNumber(v)), true
		}, nil

	case models.TransformExtract:
		return compileExtract(op, target)

	case models.TransformMerge:
		if len(op.Fields) == 0 || op.Target == "" {
			return nil, nil
		}
		return func(r models.Record) (models.Record, bool) {
			nested := make(map[string]interface{}, len(op.Fields))
			for _, f := range op.Fields {
				if v, ok := models.GetPath(r, f); ok {
					nested[f] = v
				}
			}
			return models.SetPath(r, op.Target, nested), true
		}, nil
	}

	return nil, fmt.Errorf("unknown transform type %q", op.Kind)
}

func compileExtract(op models.TransformOp, target string) (stage, error) {
	if op.Field == "" {
		return nil, nil
	}

	if op.Pattern != "" {
		re, err := regexp.Compile(op.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		group := 0
		if re.NumSubexp() > 0 {
			group = 1
		}
		if op.Group != nil {
			group = *op.Group
		}
		if group < 0 || group > re.NumSubexp() {
			return nil, fmt.Errorf("capture group %d out of range", group)
		}
		return func(r models.Record) (models.Record, bool) {
			s, ok := stringAt(r, op.Field)
			if !ok {
				return nil, false
			}
			m := re.FindStringSubmatch(s)
			if m == nil {
				return nil, false
			}
			return models.SetPath(r, target, m[group]), true
		}, nil
	}

	if op.Start == nil {
		return nil, nil
	}
	start := *op.Start
	return stringStage(op.Field, target, func(s string) string {
		runes := []rune(s)
		end := len(runes)
		if op.End != nil && *op.End < end {
			end = *op.End
		}
		from := start
		if from < 0 {
			from = 0
		}
		if from >= end {
			return ""
		}
		return string(runes[from:end])
	}), nil
}

func concat(fields []string, sep, target string) stage {
	return func(r models.Record) (models.Record, bool) {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			if s, ok := stringAt(r, f); ok {
				parts = append(parts, s)
			}
		}
		return models.SetPath(r, target, strings.Join(parts, sep)), true
	}
}

func stringStage(field, target string, fn func(string) string) stage {
	if field == "" {
		return nil
	}
	return valueStage(field, target, func(s string) interface{} { return fn(s) })
}

func valueStage(field, target string, fn func(string) interface{}) stage {
	return func(r models.Record) (models.Record, bool) {
		s, ok := stringAt(r, field)
		if !ok {
			return nil, false
		}
		return models.SetPath(r, target, fn(s)), true
	}
}

// stringAt reads field as a string; missing and nil values report false
func stringAt(r models.Record, field string) (string, bool) {
	v, ok := models.GetPath(r, field)
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	}
	return fmt.Sprint(v), true
}

// toNumber parses v as float64; anything non-numeric becomes 0
func toNumber(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// deletePath returns a copy of r without the value at path. Nested maps on
// the way are copied.
func deletePath(r models.Record, path string) models.Record {
	out := models.CloneRecord(r)
	if _, ok := out[path]; ok {
		delete(out, path)
		return out
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return out
	}
	child, ok := out[head].(map[string]interface{})
	if !ok {
		return out
	}
	out[head] = map[string]interface{}(deletePath(child, rest))
	return out
}
