// Package analysis compares a job's new plan with its previously recorded one.
package analysis

import (
	"sort"

	"stubgen/internal/symbol"
)

// Change is one entry whose disposition differs between two runs.
type Change struct {
	Name   symbol.Name
	Before symbol.Disposition
	After  symbol.Disposition
}

// Regressed reports whether the entry lost its real implementation.
func (c Change) Regressed() bool {
	return c.Before.Kind != symbol.Stub && c.After.Kind == symbol.Stub
}

// DriftReport summarizes the entries affected between two runs.
type DriftReport struct {
	Added   []symbol.Name
	Removed []symbol.Name
	Changed []Change
}

// Empty reports whether nothing moved.
func (r *DriftReport) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// Regressions returns the changes that turned a satisfied or forwarded entry into a stub.
func (r *DriftReport) Regressions() []Change {
	var out []Change
	for _, c := range r.Changed {
		if c.Regressed() {
			out = append(out, c)
		}
	}
	return out
}

// Analyzer diffs disposition sets.
type Analyzer struct {
	previous map[symbol.Name]symbol.Disposition
}

// NewAnalyzer creates an analyzer against the previous run's dispositions.
func NewAnalyzer(previous []symbol.Disposition) *Analyzer {
	idx := make(map[symbol.Name]symbol.Disposition, len(previous))
	for _, d := range previous {
		idx[d.Entry.Name] = d
	}
	return &Analyzer{previous: idx}
}

// AnalyzeDrift identifies which entries appeared, disappeared or changed disposition.
func (a *Analyzer) AnalyzeDrift(current []symbol.Disposition) *DriftReport {
	report := &DriftReport{}
	seen := make(map[symbol.Name]bool, len(current))

	for _, d := range current {
		seen[d.Entry.Name] = true
		before, ok := a.previous[d.Entry.Name]
		if !ok {
			report.Added = append(report.Added, d.Entry.Name)
			continue
		}
		if isAffected(before, d) {
			report.Changed = append(report.Changed, Change{Name: d.Entry.Name, Before: before, After: d})
		}
	}

	for name := range a.previous {
		if !seen[name] {
			report.Removed = append(report.Removed, name)
		}
	}

	sort.Strings(report.Added)
	sort.Strings(report.Removed)
	sort.Slice(report.Changed, func(i, j int) bool { return report.Changed[i].Name < report.Changed[j].Name })
	return report
}

func isAffected(before, after symbol.Disposition) bool {
	if before.Kind != after.Kind || before.Target != after.Target {
		return true
	}
	// a stub gaining or losing its signature changes the emitted code
	return before.Entry.HasSignature() != after.Entry.HasSignature()
}
