// Package version compares dotted numeric versions as reported by GKE, ie:
// "1.28.3-gke.1286000". The platform tag carries no ordering information and
// is stripped before comparison.
package version

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a parsed dotted numeric version.
type Version []int

// Strip removes the platform tag, everything from the first '-' or '+'.
func Strip(raw string) string {
	if i := strings.IndexAny(raw, "-+"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Parse strips raw and splits it into numeric components.
func Parse(raw string) (Version, error) {
	s := strings.TrimPrefix(strings.TrimSpace(Strip(raw)), "v")
	if s == "" {
		return nil, errors.Errorf("invalid version %q: empty", raw)
	}
	parts := strings.Split(s, ".")
	v := make(Version, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, errors.Errorf("invalid version %q: component %q is not a non-negative integer", raw, p)
		}
		v[i] = n
	}
	return v, nil
}

// MustParse is Parse for known-good literals.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or 1 as a is less than, equal to or greater than b.
// Missing trailing components compare as 0.
func Compare(a, b Version) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		x, y := a.at(i), b.at(i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// CompareStrings parses and compares two raw versions.
func CompareStrings(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return Compare(va, vb), nil
}

func (v Version) at(i int) int {
	if i < len(v) {
		return v[i]
	}
	return 0
}

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}
