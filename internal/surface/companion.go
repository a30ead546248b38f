package surface

import (
	"fmt"
	"strings"

	"stubgen/internal/symbol"
)

type Scope string

const (
	// ScopeAll derives a sibling for every entry.
	ScopeAll Scope = "all"
	// ScopeCommands derives siblings for Command entries only.
	ScopeCommands Scope = "commands"
)

// Companion describes the restricted-context family: prefix+infix+base.
type Companion struct {
	Prefix string `yaml:"prefix"`
	Infix  string `yaml:"infix"`
	Scope  Scope  `yaml:"scope"`
}

func (c Companion) family() string { return c.Prefix + c.Infix }

// Name is the companion name for a base name.
func (c Companion) Name(base string) symbol.Name {
	return c.family() + base
}

// InFamily reports whether name already belongs to the restricted family.
func (c Companion) InFamily(name symbol.Name) bool {
	return c.Infix != "" && strings.HasPrefix(name, c.family())
}

func (c Companion) applies(e symbol.Entry) bool {
	if e.Companion || c.InFamily(e.Name) {
		return false
	}
	if c.Scope == ScopeCommands {
		return e.Kind == symbol.KindCommand
	}
	return true
}

// Derive returns entries extended with one companion per eligible entry that is
// not already present. Entries already in the family never derive a sibling, so
// Derive(Derive(x)) equals Derive(x). The input slice is not modified.
func Derive(entries []symbol.Entry, c Companion) ([]symbol.Entry, int) {
	out := make([]symbol.Entry, len(entries), len(entries)*2)
	copy(out, entries)
	if c.Infix == "" {
		return out, 0
	}

	present := make(map[symbol.Name]int, len(entries))
	for i, e := range out {
		present[e.Name] = i
	}

	derived := 0
	for _, parent := range entries {
		if !c.applies(parent) {
			continue
		}
		name := c.Name(parent.Base)
		if i, ok := present[name]; ok {
			if !out[i].HasSignature() && parent.HasSignature() {
				out[i].Signature = parent.Signature.Clone()
			}
			continue
		}
		present[name] = len(out)
		out = append(out, symbol.Entry{
			Name:      name,
			Base:      parent.Base,
			Kind:      parent.Kind,
			Signature: parent.Signature.Clone(),
			Companion: true,
			Origin:    fmt.Sprintf("derived from %s", parent.Name),
		})
		derived++
	}
	return out, derived
}

// Validate rejects unknown scopes.
func (c Companion) Validate() error {
	switch c.Scope {
	case "", ScopeAll, ScopeCommands:
		return nil
	default:
		return fmt.Errorf("unknown companion scope %q", c.Scope)
	}
}
