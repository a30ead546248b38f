// Package surface merges the entries of every configured source into the single
// canonical expected set a job reconciles against.
package surface

import (
	"sort"

	"stubgen/internal/symbol"
)

// Surface is the canonical expected set, sorted by Name with unique names.
type Surface struct {
	Entries []symbol.Entry
	// Unverified lists fallback names no declarative source confirmed.
	Unverified []symbol.Name
	// Derived counts companion entries added by derivation.
	Derived int
}

func newSurface(entries []symbol.Entry) *Surface {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &Surface{Entries: entries}
}

func (s *Surface) Len() int { return len(s.Entries) }

// WithoutSignature counts entries whose signature stayed unknown after back-fill.
func (s *Surface) WithoutSignature() int {
	n := 0
	for _, e := range s.Entries {
		if !e.HasSignature() {
			n++
		}
	}
	return n
}
