package symbol

import (
	"sort"
	"strings"
)

// Set is an inventory of defined symbol names.
type Set map[Name]struct{}

func NewSet(names ...Name) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

func (s Set) Add(n Name) {
	if n == "" {
		return
	}
	s[n] = struct{}{}
}

func (s Set) Has(n Name) bool {
	if s == nil {
		return false
	}
	_, ok := s[n]
	return ok
}

func (s Set) Len() int { return len(s) }

// Sorted returns the names in lexicographic order.
func (s Set) Sorted() []Name {
	out := make([]Name, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set holding every name of s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for n := range s {
		out[n] = struct{}{}
	}
	for n := range other {
		out[n] = struct{}{}
	}
	return out
}

// Normalize strips a single leading decoration character and any "@version" suffix.
func Normalize(raw string, decoration string) Name {
	name := strings.TrimSpace(raw)
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	if decoration != "" && strings.HasPrefix(name, decoration) {
		name = name[len(decoration):]
	}
	return name
}

// KindOf classifies a base name by the command-prefix convention.
func KindOf(base, commandPrefix string) Kind {
	if commandPrefix != "" && strings.HasPrefix(base, commandPrefix) {
		return KindCommand
	}
	return KindNonCommand
}
