package resolver

import (
	"fmt"
	"sort"

	"stubgen/internal/diag"
	"stubgen/internal/symbol"
)

// Plan is the decided surface, sorted by entry name.
type Plan struct {
	Dispositions []symbol.Disposition
}

func newPlan(ds []symbol.Disposition) *Plan {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Entry.Name < ds[j].Entry.Name })
	return &Plan{Dispositions: ds}
}

// Counts tallies dispositions by kind.
func (p *Plan) Counts() map[symbol.DispositionKind]int {
	out := map[symbol.DispositionKind]int{
		symbol.Satisfied: 0,
		symbol.Forward:   0,
		symbol.Stub:      0,
	}
	for _, d := range p.Dispositions {
		out[d.Kind]++
	}
	return out
}

// Emitted returns the dispositions that produce generated code, in plan order.
func (p *Plan) Emitted() []symbol.Disposition {
	var out []symbol.Disposition
	for _, d := range p.Dispositions {
		if d.Kind != symbol.Satisfied {
			out = append(out, d)
		}
	}
	return out
}

// Lookup returns the disposition of name.
func (p *Plan) Lookup(name symbol.Name) (symbol.Disposition, bool) {
	i := sort.Search(len(p.Dispositions), func(i int) bool { return p.Dispositions[i].Entry.Name >= name })
	if i < len(p.Dispositions) && p.Dispositions[i].Entry.Name == name {
		return p.Dispositions[i], true
	}
	return symbol.Disposition{}, false
}

// Verify checks that names are unique and every forward is sound against the
// given inventories.
func (p *Plan) Verify(inventory, alternate symbol.Set) error {
	for i, d := range p.Dispositions {
		if i > 0 && p.Dispositions[i-1].Entry.Name == d.Entry.Name {
			return fmt.Errorf("%s emitted twice: %w", d.Entry.Name, diag.ErrInvariant)
		}
		if d.Kind != symbol.Forward {
			continue
		}
		switch {
		case d.Target == d.Entry.Name:
			return fmt.Errorf("%s forwards to itself: %w", d.Entry.Name, diag.ErrInvariant)
		case !inventory.Has(d.Target) && !alternate.Has(d.Target):
			return fmt.Errorf("%s forwards to undefined %s: %w", d.Entry.Name, d.Target, diag.ErrInvariant)
		case !d.Entry.HasSignature():
			return fmt.Errorf("%s forwards without a signature: %w", d.Entry.Name, diag.ErrInvariant)
		}
	}
	return nil
}
