package query

import (
	"sort"
	"strings"
	"time"
)

// Record exposes the fields of an in-memory value to Match.
type Record interface {
	Field(name string) (any, bool)
}

// Match reports whether r satisfies p. Unknown fields never match.
func (p Predicate) Match(r Record) bool {
	switch p.op {
	case opAll:
		return true
	case opAnd:
		for _, t := range p.terms {
			if !t.Match(r) {
				return false
			}
		}
		return true
	case opOr:
		for _, t := range p.terms {
			if t.Match(r) {
				return true
			}
		}
		return false
	case opNot:
		return !p.terms[0].Match(r)
	}

	v, ok := r.Field(p.field)
	if !ok {
		return false
	}
	v = normalize(v)

	if v == nil || p.value == nil {
		return p.op == opEquals && v == nil && p.value == nil
	}

	c, ok := compare(v, p.value)
	if !ok {
		return false
	}
	switch p.op {
	case opEquals:
		return c == 0
	case opLessThan:
		return c < 0
	case opGreaterThan:
		return c > 0
	}
	return false
}

// Sort orders records in place by the given orders, applied left to right.
func Sort[T Record](records []T, orders ...Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range orders {
			a, _ := records[i].Field(o.Field)
			b, _ := records[j].Field(o.Field)
			c, ok := compare(normalize(a), normalize(b))
			if !ok || c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compare returns -1, 0 or 1 for values of the same comparable kind.
// NULLs sort first.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		switch {
		case !ok:
			return 0, false
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}
