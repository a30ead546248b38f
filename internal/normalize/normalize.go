// Package normalize rewrites platform-restricted C types into portable placeholders
// so generated code compiles without the platform's headers.
package normalize

import (
	"fmt"
	"regexp"

	"stubgen/internal/symbol"
)

// DefaultScalar replaces a bare platform type when a rule names no replacement.
const DefaultScalar = "uint32_t"

// Rule names one platform-restricted type. Pointers to it always become void*;
// Scalar replaces the bare type.
type Rule struct {
	Type   string `yaml:"type" json:"type"`
	Scalar string `yaml:"scalar,omitempty" json:"scalar,omitempty"`
}

type compiledRule struct {
	pointer *regexp.Regexp
	bare    *regexp.Regexp
	scalar  string
}

var (
	identifier = regexp.MustCompile(`^[A-Za-z_]\w*$`)

	collapse = []struct {
		re   *regexp.Regexp
		with string
	}{
		{regexp.MustCompile(`\bvoid\s+void\s*\*`), "void*"},
		{regexp.MustCompile(`\bvoid\s+void\b`), "void"},
		{regexp.MustCompile(`\bstruct\s+void\s*\*`), "void*"},
		{regexp.MustCompile(`\buint32_t\s+uint32_t\b`), "uint32_t"},
	}
)

// Normalizer applies a fixed rule table. The zero value leaves every type unchanged.
type Normalizer struct {
	rules []compiledRule
}

// New compiles the rule table in order.
func New(rules []Rule) (*Normalizer, error) {
	n := &Normalizer{}
	for _, r := range rules {
		if !identifier.MatchString(r.Type) {
			return nil, fmt.Errorf("platform type %q is not a C identifier", r.Type)
		}
		scalar := r.Scalar
		if scalar == "" {
			scalar = DefaultScalar
		}
		quoted := regexp.QuoteMeta(r.Type)
		n.rules = append(n.rules, compiledRule{
			pointer: regexp.MustCompile(`(?:\bstruct\s+)?\b` + quoted + `\s*\*`),
			bare:    regexp.MustCompile(`(?:\bstruct\s+)?\b` + quoted + `\b`),
			scalar:  scalar,
		})
	}
	return n, nil
}

// Type rewrites one type string. Input mentioning no platform type is returned unchanged.
func (n *Normalizer) Type(typ string) string {
	if n == nil {
		return typ
	}
	out := typ
	for _, r := range n.rules {
		out = r.pointer.ReplaceAllLiteralString(out, "void*")
		out = r.bare.ReplaceAllLiteralString(out, r.scalar)
	}
	if out == typ {
		return typ
	}
	for _, c := range collapse {
		out = c.re.ReplaceAllLiteralString(out, c.with)
	}
	return out
}

// Signature returns a normalized copy of sig and whether anything changed.
// A nil signature stays nil.
func (n *Normalizer) Signature(sig *symbol.Signature) (*symbol.Signature, bool) {
	if sig == nil {
		return nil, false
	}
	out := sig.Clone()
	changed := false
	if t := n.Type(out.Return); t != out.Return {
		out.Return, changed = t, true
	}
	for i := range out.Params {
		if t := n.Type(out.Params[i].Type); t != out.Params[i].Type {
			out.Params[i].Type, changed = t, true
		}
	}
	return out, changed
}

// Entry returns e with its signature normalized.
func (n *Normalizer) Entry(e symbol.Entry) (symbol.Entry, bool) {
	sig, changed := n.Signature(e.Signature)
	e.Signature = sig
	return e, changed
}
