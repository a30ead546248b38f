package resolver

import (
	"fmt"

	"stubgen/internal/symbol"
)

// Alternate is the secondary implementation namespace: base name → Prefix+base.
type Alternate struct {
	Prefix    string
	Inventory symbol.Set
}

// SatisfiedRule accepts every entry the artifact already defines.
type SatisfiedRule struct {
	inventory symbol.Set
}

func NewSatisfiedRule(inventory symbol.Set) *SatisfiedRule {
	return &SatisfiedRule{inventory: inventory}
}

func (r *SatisfiedRule) Name() string { return "satisfied" }

func (r *SatisfiedRule) Resolve(e symbol.Entry) (symbol.Disposition, bool) {
	if !r.inventory.Has(e.Name) {
		return symbol.Disposition{}, false
	}
	return symbol.Disposition{Kind: symbol.Satisfied}, true
}

// ForwardRule delegates to an existing implementation under another name. An
// explicit table entry takes precedence over the alternate prefix. The target
// must be defined in the inventory or the alternate inventory and differ from
// the entry itself.
type ForwardRule struct {
	inventory symbol.Set
	alt       Alternate
	table     map[symbol.Name]symbol.Name
}

func NewForwardRule(inventory symbol.Set, alt Alternate, table map[symbol.Name]symbol.Name) *ForwardRule {
	return &ForwardRule{inventory: inventory, alt: alt, table: table}
}

func (r *ForwardRule) Name() string { return "forward" }

// Target returns the forwarding target for e, if any.
func (r *ForwardRule) Target(e symbol.Entry) (symbol.Name, bool) {
	if t, ok := r.table[e.Name]; ok && r.defined(e, t) {
		return t, true
	}
	if r.alt.Prefix == "" {
		return "", false
	}
	t := r.alt.Prefix + e.Base
	return t, r.defined(e, t)
}

func (r *ForwardRule) defined(e symbol.Entry, target symbol.Name) bool {
	if target == "" || target == e.Name {
		return false
	}
	return r.inventory.Has(target) || r.alt.Inventory.Has(target)
}

func (r *ForwardRule) Resolve(e symbol.Entry) (symbol.Disposition, bool) {
	target, ok := r.Target(e)
	if !ok {
		return symbol.Disposition{}, false
	}
	if !e.HasSignature() {
		// a forward needs the exact parameter list
		return symbol.Disposition{
			Kind:   symbol.Stub,
			Reason: symbol.ReasonOptionalExtension,
			Note:   fmt.Sprintf("forward to %s demoted: signature unknown", target),
		}, true
	}
	return symbol.Disposition{Kind: symbol.Forward, Target: target}, true
}

// StubRule accepts everything left.
type StubRule struct{}

func NewStubRule() *StubRule { return &StubRule{} }

func (r *StubRule) Name() string { return "stub" }

func (r *StubRule) Resolve(symbol.Entry) (symbol.Disposition, bool) {
	return symbol.Disposition{Kind: symbol.Stub, Reason: symbol.ReasonOptionalExtension}, true
}
