package register

import "fmt"

// Comparator selects which elements ReplaceValues rewrites.
type Comparator int

const (
	GreaterEqual Comparator = iota // >=
	Greater                        // >
	LessEqual                      // <=
	Less                           // <
	Equal                          // =
)

// ParseComparator converts one of ">=", ">", "<=", "<", "=" (or "==").
func ParseComparator(s string) (Comparator, error) {
	switch s {
	case ">=":
		return GreaterEqual, nil
	case ">":
		return Greater, nil
	case "<=":
		return LessEqual, nil
	case "<":
		return Less, nil
	case "=", "==":
		return Equal, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownComparator, s)
}

func (c Comparator) String() string {
	switch c {
	case GreaterEqual:
		return ">="
	case Greater:
		return ">"
	case LessEqual:
		return "<="
	case Less:
		return "<"
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Comparator(%d)", int(c))
	}
}

// Match reports whether element compares true against ref.
func (c Comparator) Match(element, ref float64) bool {
	switch c {
	case GreaterEqual:
		return element >= ref
	case Greater:
		return element > ref
	case LessEqual:
		return element <= ref
	case Less:
		return element < ref
	case Equal:
		return element == ref
	}
	return false
}
