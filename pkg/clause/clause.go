// Package clause builds parameterized statement fragments from ordered
// column/value pairs. Values are never interpolated into the statement text,
// they are always returned separately for binding. Identifiers are the one
// thing that can't be bound, so they are validated against an allow-list
// before interpolation.
package clause

import (
	"fmt"
	"regexp"
	"strings"
)

// Logic joins multiple criteria pairs inside a WHERE fragment.
type Logic int

// supported logic operators, Or is the default
const (
	Or Logic = iota
	And
	Not
)

func (l Logic) String() string {
	switch l {
	case And:
		return "AND"
	case Not:
		return "NOT"
	default:
		return "OR"
	}
}

// Pair is a single column/value binding.
type Pair struct {
	Column string
	Value  any
}

// Pairs is an ordered list of bindings; the list order defines both the
// rendered column order and the bound-value order.
type Pairs []Pair

// Eq makes an exact-match pair for "column = value".
func Eq(column string, value any) Pair { return Pair{Column: column, Value: value} }

// Criteria is a set of exact-match pairs combined by a single logic operator.
// The zero value matches everything (renders no WHERE clause).
type Criteria struct {
	Logic Logic
	Pairs Pairs
}

// Exclude makes NOT criteria for a single pair. NOT is only well-defined for
// one pair, so this is the only way to get it without a render error.
func Exclude(column string, value any) Criteria {
	return Criteria{Logic: Not, Pairs: Pairs{Eq(column, value)}}
}

// Empty is true if the criteria carry no pairs at all.
func (c Criteria) Empty() bool { return len(c.Pairs) == 0 }

// Fragment renders the WHERE clause with the ordered values to bind, e.g.
// ` WHERE title = ? OR year = ?`. Empty criteria render to an empty string.
func (c Criteria) Fragment() (string, []any, error) {
	if c.Empty() {
		return "", nil, nil
	}
	if c.Logic == Not && len(c.Pairs) != 1 {
		return "", nil, fmt.Errorf("not criteria accept exactly one pair, got %d", len(c.Pairs))
	}
	return fragment("WHERE", c.Logic.String(), c.Pairs, c.Logic == Not)
}

// Set renders the SET clause for an update, e.g. ` SET title = ? , year = ?`,
// with the ordered values to bind. At least one pair is required.
func Set(pairs Pairs) (string, []any, error) {
	if len(pairs) == 0 {
		return "", nil, fmt.Errorf("nothing to set")
	}
	return fragment("SET", ",", pairs, false)
}

// fragment renders ` KEYWORD col = ? OP col = ?`. Each pair's column goes
// through the identifier allow-list. negate prefixes every comparison with
// NOT, the rendering the engine expects for negated criteria.
func fragment(keyword, op string, pairs Pairs, negate bool) (string, []any, error) {
	vals := make([]any, 0, len(pairs))
	res := strings.Builder{}
	res.WriteString(" " + keyword)
	for i, p := range pairs {
		if err := ValidIdent(p.Column); err != nil {
			return "", nil, fmt.Errorf("can't use column in %s clause: %w", keyword, err)
		}
		if i > 0 {
			res.WriteString(" " + op)
		}
		if negate {
			res.WriteString(" NOT")
		}
		res.WriteString(" " + p.Column + " = ?")
		vals = append(vals, p.Value)
	}
	return res.String(), vals, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent checks a bare identifier (table, column or database name)
// against the allow-list: letters, digits and underscore, not starting with
// a digit. Anything else is rejected before it can reach statement text.
func ValidIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// ValidTable accepts a bare table name or one qualified with an attached
// schema alias, like "aux.movies".
func ValidTable(name string) error {
	schema, table, qualified := strings.Cut(name, ".")
	if !qualified {
		return ValidIdent(name)
	}
	if err := ValidIdent(schema); err != nil {
		return fmt.Errorf("invalid table %q: %w", name, err)
	}
	if err := ValidIdent(table); err != nil {
		return fmt.Errorf("invalid table %q: %w", name, err)
	}
	return nil
}
