package models

import "sort"

// SortRecords returns a sorted copy of records ordered by specs. Missing
// fields sort first. The sort is stable so equal keys keep their order.
func SortRecords(records []Record, specs []SortSpec) []Record {
	out := append([]Record(nil), records...)
	if len(specs) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, s := range specs {
			a, aok := GetPath(out[i], s.Field)
			b, bok := GetPath(out[j], s.Field)
			var c int
			switch {
			case !aok && !bok:
				c = 0
			case !aok:
				c = -1
			case !bok:
				c = 1
			default:
				c, _ = compare(a, b)
			}
			if c == 0 {
				continue
			}
			if s.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

// FilterRecords returns the records matching spec; a nil spec keeps all.
func FilterRecords(records []Record, spec *FilterSpec) []Record {
	if spec == nil || spec.Filter == nil {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if Match(spec.Filter, r) {
			out = append(out, r)
		}
	}
	return out
}
