package catalog

import (
	"fmt"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// RangeSet is a parsed fix range. Alternatives are OR-ed; the constraints of
// one alternative are AND-ed.
type RangeSet struct {
	alternatives []goversion.Constraints
}

// Check reports whether build index n is covered by the range
func (r RangeSet) Check(n int) bool {
	v, err := goversion.NewVersion(strconv.Itoa(n))
	if err != nil {
		return false
	}
	for _, alt := range r.alternatives {
		if alt.Check(v) {
			return true
		}
	}
	return false
}

// ParseRange converts the npm-style ranges published in the fix catalog
// (">=3 <7", "5 - 9", "^4", "~2.1", "8", "3 || 5", "*") into go-version
// constraints.
func ParseRange(raw string) (RangeSet, error) {
	var set RangeSet
	for _, part := range strings.Split(raw, "||") {
		expr, err := translateAlternative(strings.TrimSpace(part))
		if err != nil {
			return RangeSet{}, fmt.Errorf("invalid range %q: %w", raw, err)
		}
		c, err := goversion.NewConstraint(expr)
		if err != nil {
			return RangeSet{}, fmt.Errorf("invalid range %q: %w", raw, err)
		}
		set.alternatives = append(set.alternatives, c)
	}
	return set, nil
}

func translateAlternative(part string) (string, error) {
	if part == "" || part == "*" || strings.EqualFold(part, "x") {
		return ">=0", nil
	}

	if lo, hi, ok := strings.Cut(part, " - "); ok {
		return fmt.Sprintf(">=%s, <=%s", fillPartial(strings.TrimSpace(lo)), fillPartial(strings.TrimSpace(hi))), nil
	}

	var out []string
	for _, tok := range mergeOperators(strings.Fields(part)) {
		c, err := translateToken(tok)
		if err != nil {
			return "", err
		}
		out = append(out, c...)
	}
	if len(out) == 0 {
		return ">=0", nil
	}
	return strings.Join(out, ", "), nil
}

// mergeOperators joins a detached operator with the version after it (">= 5")
func mergeOperators(fields []string) []string {
	var out []string
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		if isOperator(tok) && i+1 < len(fields) {
			tok += fields[i+1]
			i++
		}
		out = append(out, tok)
	}
	return out
}

func isOperator(s string) bool {
	switch s {
	case ">", ">=", "<", "<=", "=", "^", "~":
		return true
	}
	return false
}

func translateToken(tok string) ([]string, error) {
	tok = strings.TrimPrefix(tok, "v")

	for _, op := range []string{">=", "<=", ">", "<"} {
		if strings.HasPrefix(tok, op) {
			return []string{op + fillPartial(strings.TrimPrefix(tok[len(op):], "v"))}, nil
		}
	}

	switch {
	case strings.HasPrefix(tok, "^"):
		parts, err := splitVersion(tok[1:])
		if err != nil {
			return nil, err
		}
		lo := join(parts)
		switch {
		case parts[0] > 0 || len(parts) == 1:
			return []string{">=" + lo, fmt.Sprintf("<%d.0.0", parts[0]+1)}, nil
		case len(parts) == 2 || parts[1] > 0:
			return []string{">=" + lo, fmt.Sprintf("<0.%d.0", parts[1]+1)}, nil
		default:
			return []string{">=" + lo, fmt.Sprintf("<0.0.%d", parts[2]+1)}, nil
		}

	case strings.HasPrefix(tok, "~"):
		parts, err := splitVersion(tok[1:])
		if err != nil {
			return nil, err
		}
		if len(parts) == 1 {
			return []string{">=" + join(parts), fmt.Sprintf("<%d.0.0", parts[0]+1)}, nil
		}
		return []string{">=" + join(parts), fmt.Sprintf("<%d.%d.0", parts[0], parts[1]+1)}, nil
	}

	tok = strings.TrimPrefix(tok, "=")
	parts, err := splitVersion(tok)
	if err != nil {
		return nil, err
	}
	switch len(parts) {
	case 1:
		return []string{fmt.Sprintf(">=%d.0.0", parts[0]), fmt.Sprintf("<%d.0.0", parts[0]+1)}, nil
	case 2:
		return []string{fmt.Sprintf(">=%d.%d.0", parts[0], parts[1]), fmt.Sprintf("<%d.%d.0", parts[0], parts[1]+1)}, nil
	default:
		return []string{"=" + join(parts)}, nil
	}
}

// splitVersion parses "5", "5.1", "5.1.2" and x-ranges such as "5.x"
func splitVersion(s string) ([]int, error) {
	var parts []int
	for _, p := range strings.Split(s, ".") {
		if p == "x" || p == "X" || p == "*" {
			break
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad version %q", s)
		}
		parts = append(parts, n)
		if len(parts) == 3 {
			break
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("bad version %q", s)
	}
	return parts, nil
}

func fillPartial(s string) string {
	parts, err := splitVersion(s)
	if err != nil {
		return s
	}
	for len(parts) < 3 {
		parts = append(parts, 0)
	}
	return join(parts)
}

func join(parts []int) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = strconv.Itoa(p)
	}
	return strings.Join(strs, ".")
}
