package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"stubgen/internal/diag"
	"stubgen/internal/symbol"
)

// declarationStrategy reads prototypes of the form
//
//	ATTR RET CALL prefix_Name(PARAMS);
//
// Parameters may span lines; the list ends at the matching parenthesis.
type declarationStrategy struct {
	ex   *Extractor
	head *regexp.Regexp
}

func newDeclarationStrategy(ex *Extractor) *declarationStrategy {
	var b strings.Builder
	if ex.opts.Attr != "" {
		b.WriteString(`\b` + regexp.QuoteMeta(ex.opts.Attr) + `\s+`)
	} else {
		b.WriteString(`(?m)^[ \t]*`)
	}
	b.WriteString(`([A-Za-z_][\w \t\*]*?)\s*`)
	if ex.opts.Call != "" {
		b.WriteString(`\b` + regexp.QuoteMeta(ex.opts.Call) + `\s+`)
	}
	b.WriteString(`(` + regexp.QuoteMeta(ex.opts.Prefix) + `\w+)\s*\(`)
	return &declarationStrategy{ex: ex, head: regexp.MustCompile(b.String())}
}

func (s *declarationStrategy) Name() string { return StrategyDeclarations }

func (s *declarationStrategy) Extract(src []byte, origin string, seen symbol.Set) Result {
	res := newResult(seen)
	text := string(src)

	for _, loc := range s.head.FindAllStringSubmatchIndex(text, -1) {
		ret := collapseSpace(text[loc[2]:loc[3]])
		name := text[loc[4]:loc[5]]

		var sig *symbol.Signature
		params, ok := balancedParams(text, loc[1])
		switch {
		case !ok:
			res.Problems = append(res.Problems, fmt.Errorf("%s: %s: unterminated parameter list: %w", origin, name, diag.ErrUnparsableSignature))
		default:
			if parsed, ok := s.ex.params.Parse(params); ok {
				sig = &symbol.Signature{Return: ret, Params: parsed}
			} else {
				res.Problems = append(res.Problems, fmt.Errorf("%s: %s(%s): %w", origin, name, collapseSpace(params), diag.ErrUnparsableSignature))
			}
		}

		if entry, ok := s.ex.entry(name, origin, sig); ok {
			res.record(entry)
		}
	}
	return res
}

// Signatures indexes the parsed prototypes of a reference header by base name.
// The first declaration of a base wins.
func (e *Extractor) Signatures(src []byte, origin string) (map[string]*symbol.Signature, []error) {
	res := newDeclarationStrategy(e).Extract(src, origin, nil)
	out := make(map[string]*symbol.Signature, len(res.Entries))
	for _, entry := range res.Entries {
		if entry.Signature == nil {
			continue
		}
		if _, dup := out[entry.Base]; !dup {
			out[entry.Base] = entry.Signature
		}
	}
	return out, res.Problems
}

// balancedParams returns the text between the '(' ending at open and its matching ')'.
// Parentheses inside comments do not count.
func balancedParams(text string, open int) (string, bool) {
	depth := 1
	for i := open; i < len(text); i++ {
		switch {
		case strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return "", false
			}
			i += end + 3
		case strings.HasPrefix(text[i:], "//"):
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				return "", false
			}
			i += end
		case text[i] == '(':
			depth++
		case text[i] == ')':
			depth--
			if depth == 0 {
				return text[open:i], true
			}
		}
	}
	return "", false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
