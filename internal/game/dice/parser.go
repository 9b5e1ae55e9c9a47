package dice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidExpression is the sentinel wrapped by every Parse failure.
// Callers validate expressions at construction time with errors.Is; a
// malformed expression is never silently substituted with a default roll.
var ErrInvalidExpression = errors.New("dice: invalid expression")

// Expression represents a parsed dice expression ready to be rolled.
// Invariant: Count >= 1 and Sides >= 2 after a successful Parse.
type Expression struct {
	Raw      string // original input string
	Count    int    // number of dice
	Sides    int    // faces per die
	Modifier int    // flat modifier (may be negative)
}

// Parse parses a dice expression string into an Expression.
// Supported forms: "d20", "2d6", "2d6+3", "4d8-2"
//
// Precondition: expr must be a non-empty string.
// Postcondition: Returns a valid Expression, or an error wrapping
// ErrInvalidExpression.
func Parse(expr string) (Expression, error) {
	if expr == "" {
		return Expression{}, fmt.Errorf("%w: empty string", ErrInvalidExpression)
	}

	raw := expr
	s := strings.ToLower(strings.TrimSpace(expr))

	dIdx := strings.Index(s, "d")
	if dIdx < 0 {
		return Expression{}, fmt.Errorf("%w: missing 'd' in %q", ErrInvalidExpression, raw)
	}

	// Count before 'd'; defaults to 1 when omitted.
	count := 1
	if countStr := s[:dIdx]; countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil {
			return Expression{}, fmt.Errorf("%w: die count in %q: %v", ErrInvalidExpression, raw, err)
		}
		if n < 1 {
			return Expression{}, fmt.Errorf("%w: die count in %q must be >= 1", ErrInvalidExpression, raw)
		}
		count = n
	}

	// Sides and optional modifier after 'd'. The first '+' or '-' past
	// position 0 splits them; a leading sign would be part of the sides
	// token and rejected by Atoi below.
	rest := s[dIdx+1:]
	modOffset := -1
	for i := 1; i < len(rest); i++ {
		if rest[i] == '+' || rest[i] == '-' {
			modOffset = i
			break
		}
	}

	sidesStr, modStr := rest, ""
	if modOffset >= 0 {
		sidesStr, modStr = rest[:modOffset], rest[modOffset:]
	}

	sides, err := strconv.Atoi(sidesStr)
	if err != nil {
		return Expression{}, fmt.Errorf("%w: die sides in %q: %v", ErrInvalidExpression, raw, err)
	}
	if sides < 2 {
		return Expression{}, fmt.Errorf("%w: die sides in %q must be >= 2", ErrInvalidExpression, raw)
	}

	modifier := 0
	if modStr != "" {
		modifier, err = strconv.Atoi(modStr)
		if err != nil {
			return Expression{}, fmt.Errorf("%w: modifier in %q: %v", ErrInvalidExpression, raw, err)
		}
	}

	return Expression{Raw: raw, Count: count, Sides: sides, Modifier: modifier}, nil
}

// MustParse parses expr and panics on error. Useful for package-level constants
// and test fixtures.
//
// Precondition: expr must be a valid dice expression.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic("dice: MustParse failed for expression " + expr + ": " + err.Error())
	}
	return e
}
