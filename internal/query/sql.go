package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownField is returned when a predicate or order names a field that
// has no column mapping.
var ErrUnknownField = errors.New("query: unknown field")

// Columns maps record field names to SQL column names.
type Columns map[string]string

func (c Columns) column(field string) (string, error) {
	col, ok := c[field]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownField, field)
	}
	return col, nil
}

// Where compiles p into a boolean SQL expression. Placeholders are numbered
// after the arguments already in args, and the returned slice extends args.
func (p Predicate) Where(cols Columns, args []any) (string, []any, error) {
	switch p.op {
	case opAll:
		return "TRUE", args, nil
	case opAnd, opOr:
		if len(p.terms) == 0 {
			if p.op == opAnd {
				return "TRUE", args, nil
			}
			return "FALSE", args, nil
		}
		sep := " AND "
		if p.op == opOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(p.terms))
		for _, t := range p.terms {
			var (
				sql string
				err error
			)
			sql, args, err = t.Where(cols, args)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
		}
		return "(" + strings.Join(parts, sep) + ")", args, nil
	case opNot:
		sql, args, err := p.terms[0].Where(cols, args)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", args, nil
	}

	col, err := cols.column(p.field)
	if err != nil {
		return "", nil, err
	}

	if p.value == nil {
		if p.op == opEquals {
			return col + " IS NULL", args, nil
		}
		// Ordering against NULL is never true in SQL either.
		return "FALSE", args, nil
	}

	args = append(args, p.value)
	placeholder := "$" + strconv.Itoa(len(args))
	switch p.op {
	case opEquals:
		return col + " = " + placeholder, args, nil
	case opLessThan:
		return col + " < " + placeholder, args, nil
	default:
		return col + " > " + placeholder, args, nil
	}
}

// OrderBy renders an ORDER BY clause, or an empty string for no orders.
func OrderBy(cols Columns, orders ...Order) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		col, err := cols.column(o.Field)
		if err != nil {
			return "", err
		}
		if o.Desc {
			col += " DESC"
		} else {
			col += " ASC"
		}
		parts = append(parts, col)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
