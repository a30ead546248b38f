package extractor

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"stubgen/internal/diag"
	"stubgen/internal/symbol"
)

// Strategy names accepted by Extractor.Strategy.
const (
	StrategyTable        = "table"
	StrategyScan         = "scan"
	StrategyDeclarations = "declarations"
	StrategyDiagnostics  = "diagnostics"
)

// Options describe the family of entry points being extracted.
type Options struct {
	// Prefix marks names of the family, e.g. "kk_" or "vk_common_".
	Prefix string
	// Infix is stripped after Prefix when computing the base name, e.g. "unless_primary_".
	Infix string
	// CommandPrefix classifies base names as commands.
	CommandPrefix string
	// Denylist drops every name containing one of the substrings (case-sensitive).
	Denylist []string
	// TableSuffix marks aggregate table identifiers that are never entries.
	TableSuffix string
	// Decoration is the leading character linkers prepend in diagnostics.
	Decoration string
	// Attr and Call are the ABI annotations surrounding the return type in declarations.
	Attr string
	Call string
}

// Extractor builds the strategies for one family and reads sources from disk.
type Extractor struct {
	opts   Options
	params *ParamParser
}

// NewExtractor creates an extractor for the given family.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{opts: opts, params: NewParamParser()}
}

// Close releases the C parser.
func (e *Extractor) Close() {
	e.params.Close()
}

// Strategy returns the named strategy bound to this family.
func (e *Extractor) Strategy(name string) (Strategy, error) {
	switch name {
	case StrategyTable:
		return &tableStrategy{ex: e, assignments: true}, nil
	case StrategyScan:
		return &tableStrategy{ex: e}, nil
	case StrategyDeclarations:
		return newDeclarationStrategy(e), nil
	case StrategyDiagnostics:
		return &diagnosticsStrategy{ex: e}, nil
	default:
		return nil, fmt.Errorf("unsupported extraction strategy: %s", name)
	}
}

// ExtractFile reads path and runs the named strategy over it. A missing file is
// reported with diag.ErrMissingSource and an unchanged seen set.
func (e *Extractor) ExtractFile(strategy, path string, seen symbol.Set) (Result, error) {
	s, err := e.Strategy(strategy)
	if err != nil {
		return newResult(seen), err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newResult(seen), fmt.Errorf("%s: %w", path, diag.ErrMissingSource)
		}
		return newResult(seen), fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return s.Extract(src, path, seen), nil
}

// ExtractNames turns an inline list into entries. Names lacking the family prefix get it prepended.
func (e *Extractor) ExtractNames(names []string, origin string, seen symbol.Set) Result {
	res := newResult(seen)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !strings.HasPrefix(n, e.opts.Prefix) {
			n = e.opts.Prefix + n
		}
		if entry, ok := e.entry(n, origin, nil); ok {
			res.record(entry)
		}
	}
	return res
}

// Base strips the family prefix and infix from a full name.
func (e *Extractor) Base(name symbol.Name) string {
	base := strings.TrimPrefix(name, e.opts.Prefix)
	if e.opts.Infix != "" {
		base = strings.TrimPrefix(base, e.opts.Infix)
	}
	return base
}

// entry builds an Entry for name, rejecting table identifiers and denylisted names.
func (e *Extractor) entry(name, origin string, sig *symbol.Signature) (symbol.Entry, bool) {
	if !strings.HasPrefix(name, e.opts.Prefix) || name == e.opts.Prefix {
		return symbol.Entry{}, false
	}
	if e.isTable(name) || e.Denied(name) {
		return symbol.Entry{}, false
	}
	base := e.Base(name)
	if base == "" {
		return symbol.Entry{}, false
	}
	return symbol.Entry{
		Name:      name,
		Base:      base,
		Kind:      symbol.KindOf(base, e.opts.CommandPrefix),
		Signature: sig,
		Companion: e.opts.Infix != "" && strings.HasPrefix(name, e.opts.Prefix+e.opts.Infix),
		Origin:    origin,
	}, true
}

func (e *Extractor) isTable(name string) bool {
	suffix := e.opts.TableSuffix
	if suffix == "" {
		return false
	}
	rest := strings.TrimPrefix(name, e.opts.Prefix)
	return rest == suffix || strings.HasSuffix(name, "_"+suffix)
}

// Denied reports whether name matches the platform denylist.
func (e *Extractor) Denied(name string) bool {
	for _, token := range e.opts.Denylist {
		if token != "" && strings.Contains(name, token) {
			return true
		}
	}
	return false
}
