// pkg/scopes/scopes.go
package scopes

import (
	"fmt"
	"sort"
	"strings"
)

const (
	readPrefix  = "read_"
	writePrefix = "write_"
)

// Read / Write build scope names for a resource, e.g. Read("orders") ==
// "read_orders".
func Read(resource string) string  { return readPrefix + resource }
func Write(resource string) string { return writePrefix + resource }

// ForMethod infers the required scope for an HTTP method on a resource:
// GET/HEAD need read, everything else needs write.
func ForMethod(method, resource string) string {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return Read(resource)
	default:
		return Write(resource)
	}
}

// Valid reports whether s follows the read_<resource>/write_<resource>
// convention with a non-empty resource name.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, readPrefix)
	if !ok {
		rest, ok = strings.CutPrefix(s, writePrefix)
	}
	return ok && rest != ""
}

// Set is an unordered collection of scope names.
type Set map[string]struct{}

func NewSet(scopes ...string) Set {
	s := make(Set, len(scopes))
	for _, sc := range scopes {
		if sc = strings.TrimSpace(sc); sc != "" {
			s[sc] = struct{}{}
		}
	}
	return s
}

// ParseList splits a comma-separated scope list (the platform's grant
// format) into a Set.
func ParseList(csv string) Set {
	return NewSet(strings.Split(csv, ",")...)
}

func (s Set) Contains(scope string) bool {
	_, ok := s[scope]
	return ok
}

// Satisfies reports whether the set grants the required scope. A write scope
// for a resource also satisfies the read scope for the same resource; the
// relaxation never runs the other way.
func (s Set) Satisfies(required string) bool {
	if s.Contains(required) {
		return true
	}
	if resource, ok := strings.CutPrefix(required, readPrefix); ok {
		return s.Contains(writePrefix + resource)
	}
	return false
}

// SubsetOf reports whether every scope in s is present in other. Used to
// constrain credential scopes to the tenant's grant at issuance.
func (s Set) SubsetOf(other Set) bool {
	for sc := range s {
		if !other.Contains(sc) {
			return false
		}
	}
	return true
}

// Intersect returns the scopes present in both sets.
func (s Set) Intersect(other Set) Set {
	out := Set{}
	for sc := range s {
		if other.Contains(sc) {
			out[sc] = struct{}{}
		}
	}
	return out
}

// Sorted returns the scopes as a sorted slice, for stable storage and error
// messages.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for sc := range s {
		out = append(out, sc)
	}
	sort.Strings(out)
	return out
}

func (s Set) String() string { return strings.Join(s.Sorted(), ",") }

// ValidateSubset checks that requested is non-empty, well-formed, and within
// the granted set.
func ValidateSubset(requested []string, granted Set) (Set, error) {
	req := NewSet(requested...)
	if len(req) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	for _, sc := range req.Sorted() {
		if !Valid(sc) {
			return nil, fmt.Errorf("invalid scope %q", sc)
		}
		if !granted.Contains(sc) {
			return nil, fmt.Errorf("scope %q is not granted to this store", sc)
		}
	}
	return req, nil
}
