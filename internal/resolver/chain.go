package resolver

import (
	"fmt"

	"stubgen/internal/diag"
	"stubgen/internal/symbol"
)

type ResolveStats struct {
	Attempted int
	Resolved  int
	Skipped   int
}

// Rule decides entries it recognizes and leaves the rest pending for later rules.
type Rule interface {
	Name() string
	Resolve(e symbol.Entry) (symbol.Disposition, bool)
}

type StageResult struct {
	Rule          string
	Stats         ResolveStats
	PendingBefore int
	PendingAfter  int
}

// Chain runs its rules in order; every entry is decided by the first rule that
// resolves it, so each entry receives exactly one disposition.
type Chain struct {
	rules []Rule
}

func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: rules}
}

// NewDefaultChain is Satisfied, then Forward, then Stub.
func NewDefaultChain(inventory symbol.Set, alt Alternate, table map[symbol.Name]symbol.Name) *Chain {
	return NewChain(
		NewSatisfiedRule(inventory),
		NewForwardRule(inventory, alt, table),
		NewStubRule(),
	)
}

// Run decides every entry. Entries are expected to carry unique names; a
// duplicate is an invariant violation.
func (c *Chain) Run(entries []symbol.Entry) (*Plan, []StageResult, error) {
	seen := make(map[symbol.Name]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			return nil, nil, fmt.Errorf("%s appears twice in the expected surface: %w", e.Name, diag.ErrInvariant)
		}
		seen[e.Name] = true
	}

	pending := entries
	var decided []symbol.Disposition
	var stages []StageResult
	for _, r := range c.rules {
		before := len(pending)
		var next []symbol.Entry
		for _, e := range pending {
			d, ok := r.Resolve(e)
			if !ok {
				next = append(next, e)
				continue
			}
			d.Entry = e
			if d.Rule == "" {
				d.Rule = r.Name()
			}
			decided = append(decided, d)
		}
		pending = next
		stages = append(stages, StageResult{
			Rule:          r.Name(),
			Stats:         ResolveStats{Attempted: before, Resolved: before - len(pending), Skipped: len(pending)},
			PendingBefore: before,
			PendingAfter:  len(pending),
		})
	}
	if len(pending) > 0 {
		return nil, stages, fmt.Errorf("%d entries left undecided, first %s: %w", len(pending), pending[0].Name, diag.ErrInvariant)
	}
	return newPlan(decided), stages, nil
}
