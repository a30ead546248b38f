package surface

import (
	"fmt"
	"strings"

	"stubgen/internal/diag"
	"stubgen/internal/symbol"
)

const unverifiedPreview = 5

// Builder performs the ordered merge of all sources of one job. Sources are added
// in configuration order; the first definition of a name fixes its origin and the
// first signature-bearing definition fixes its signature.
type Builder struct {
	entries    map[symbol.Name]symbol.Entry
	order      []symbol.Name
	signatures map[string]*symbol.Signature
	verified   symbol.Set
	fallback   []symbol.Name
	companion  Companion
	problems   []error
}

// NewBuilder creates a builder deriving companions per c. A zero Companion disables derivation.
func NewBuilder(c Companion) *Builder {
	return &Builder{
		entries:    make(map[symbol.Name]symbol.Entry),
		signatures: make(map[string]*symbol.Signature),
		verified:   symbol.NewSet(),
		companion:  c,
	}
}

// Add merges entries from one source. Entries from hand-maintained lists pass
// verified=false so Build can report the names no live source confirms.
func (b *Builder) Add(entries []symbol.Entry, verified bool) {
	for _, e := range entries {
		if verified {
			b.verified.Add(e.Name)
		}
		cur, ok := b.entries[e.Name]
		if !ok {
			if !verified {
				b.fallback = append(b.fallback, e.Name)
			}
			b.entries[e.Name] = e
			b.order = append(b.order, e.Name)
			continue
		}
		switch {
		case !cur.HasSignature() && e.HasSignature():
			cur.Signature = e.Signature
			b.entries[e.Name] = cur
		case cur.HasSignature() && e.HasSignature() && !sameSignature(cur.Signature, e.Signature):
			b.problems = append(b.problems, fmt.Errorf("%s: conflicting declaration in %s ignored, keeping %s: %w",
				e.Name, e.Origin, cur.Origin, diag.ErrDuplicateName))
		}
	}
}

// Confirm marks names as backed by a declarative source without adding entries.
func (b *Builder) Confirm(names []symbol.Name) {
	for _, n := range names {
		b.verified.Add(n)
	}
}

// AddSignatures registers a reference signature index keyed by base name.
// Earlier references take precedence.
func (b *Builder) AddSignatures(sigs map[string]*symbol.Signature) {
	for base, sig := range sigs {
		if _, ok := b.signatures[base]; !ok && sig != nil {
			b.signatures[base] = sig
		}
	}
}

// Build back-fills unknown signatures from the references, derives companions
// and returns the canonical surface with any merge warnings.
func (b *Builder) Build() (*Surface, []error) {
	entries := make([]symbol.Entry, 0, len(b.order))
	for _, name := range b.order {
		e := b.entries[name]
		if !e.HasSignature() {
			if sig, ok := b.signatures[e.Base]; ok {
				e.Signature = sig.Clone()
			}
		}
		entries = append(entries, e)
	}

	entries, derived := Derive(entries, b.companion)
	s := newSurface(entries)
	s.Derived = derived

	problems := append([]error(nil), b.problems...)
	for _, name := range b.fallback {
		if !b.verified.Has(name) {
			s.Unverified = append(s.Unverified, name)
		}
	}
	if len(s.Unverified) > 0 && b.verified.Len() > 0 {
		preview := s.Unverified
		if len(preview) > unverifiedPreview {
			preview = preview[:unverifiedPreview]
		}
		problems = append(problems, fmt.Errorf("%d fallback names not confirmed by any declarative source (%s)",
			len(s.Unverified), strings.Join(preview, ", ")))
	}
	return s, problems
}

func sameSignature(a, b *symbol.Signature) bool {
	return a.Return == b.Return && a.ParamList() == b.ParamList()
}
