package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

// Dependency is a declared dependency with its manifest version range.
type Dependency struct {
	ID    string `json:"id" yaml:"id"`
	Range string `json:"range,omitempty" yaml:"range,omitempty"`
}

// SortedDependencies flattens a dependency map into a list sorted by id.
func SortedDependencies(deps map[string]string) []Dependency {
	out := make([]Dependency, 0, len(deps))
	for id, r := range deps {
		out = append(out, Dependency{ID: id, Range: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Constraint translates the interval range of the manifest into a version
// constraint. A bare version means "at least"; brackets are inclusive and
// parentheses exclusive. An empty range accepts any version.
func (d Dependency) Constraint() (version.Constraints, error) {
	expr, err := rangeToConstraint(d.Range)
	if err != nil {
		return nil, fmt.Errorf("dependency %s: %w", d.ID, err)
	}
	return version.NewConstraint(expr)
}

// Satisfied reports whether v lies inside the dependency range.
func (d Dependency) Satisfied(v string) bool {
	c, err := d.Constraint()
	if err != nil {
		return false
	}
	parsed, err := version.NewVersion(v)
	if err != nil {
		return false
	}
	return c.Check(parsed)
}

func rangeToConstraint(r string) (string, error) {
	r = strings.TrimSpace(r)
	if r == "" {
		return ">= 0.0.0", nil
	}

	first, last := r[0], r[len(r)-1]
	if first != '[' && first != '(' {
		return ">= " + r, nil
	}
	if len(r) < 3 || (last != ']' && last != ')') {
		return "", fmt.Errorf("malformed version range %q", r)
	}

	body := r[1 : len(r)-1]
	parts := strings.Split(body, ",")
	switch len(parts) {
	case 1:
		v := strings.TrimSpace(parts[0])
		if first != '[' || last != ']' || v == "" {
			return "", fmt.Errorf("malformed version range %q", r)
		}
		return "= " + v, nil
	case 2:
		lower, upper := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if lower == "" && upper == "" {
			return "", fmt.Errorf("malformed version range %q", r)
		}
		var bounds []string
		if lower != "" {
			op := ">"
			if first == '[' {
				op = ">="
			}
			bounds = append(bounds, op+" "+lower)
		}
		if upper != "" {
			op := "<"
			if last == ']' {
				op = "<="
			}
			bounds = append(bounds, op+" "+upper)
		}
		return strings.Join(bounds, ", "), nil
	default:
		return "", fmt.Errorf("malformed version range %q", r)
	}
}
