// Package query provides a small typed filter language shared by the
// repositories. A Predicate compiles to a SQL WHERE clause for PostgreSQL
// and evaluates directly against records held in memory.
package query

import (
	"fmt"
	"strings"
	"time"
)

type op int

const (
	opAll op = iota
	opEquals
	opLessThan
	opGreaterThan
	opAnd
	opOr
	opNot
)

// Predicate is an immutable filter over named record fields.
// The zero value matches every record.
type Predicate struct {
	op    op
	field string
	value any
	terms []Predicate
}

// All returns a predicate that matches every record.
func All() Predicate { return Predicate{} }

// Equals matches records whose field equals v. A nil v matches NULL fields.
func Equals(field string, v any) Predicate {
	return Predicate{op: opEquals, field: field, value: normalize(v)}
}

// LessThan matches records whose field is strictly less than v.
func LessThan(field string, v any) Predicate {
	return Predicate{op: opLessThan, field: field, value: normalize(v)}
}

// GreaterThan matches records whose field is strictly greater than v.
func GreaterThan(field string, v any) Predicate {
	return Predicate{op: opGreaterThan, field: field, value: normalize(v)}
}

// And matches records satisfying every term.
func And(terms ...Predicate) Predicate {
	return Predicate{op: opAnd, terms: terms}
}

// Or matches records satisfying at least one term.
func Or(terms ...Predicate) Predicate {
	return Predicate{op: opOr, terms: terms}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return Predicate{op: opNot, terms: []Predicate{p}}
}

// String renders the predicate for logs and test failures.
func (p Predicate) String() string {
	switch p.op {
	case opEquals:
		return fmt.Sprintf("%s = %v", p.field, p.value)
	case opLessThan:
		return fmt.Sprintf("%s < %v", p.field, p.value)
	case opGreaterThan:
		return fmt.Sprintf("%s > %v", p.field, p.value)
	case opAnd, opOr:
		sep := " AND "
		if p.op == opOr {
			sep = " OR "
		}
		parts := make([]string, len(p.terms))
		for i, t := range p.terms {
			parts[i] = t.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	case opNot:
		return "NOT " + p.terms[0].String()
	}
	return "*"
}

// Order sorts results by a single field.
type Order struct {
	Field string
	Desc  bool
}

// Asc orders by field ascending.
func Asc(field string) Order { return Order{Field: field} }

// Desc orders by field descending.
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// normalize unwraps the pointer types records use for nullable columns so
// that comparisons see plain values or nil.
func normalize(v any) any {
	switch t := v.(type) {
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	}
	return v
}
