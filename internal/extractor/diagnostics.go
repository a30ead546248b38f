package extractor

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"stubgen/internal/symbol"
)

var (
	quotedSymbol = regexp.MustCompile(`["'](\w+)["']`)
	bareSymbol   = regexp.MustCompile(`^\w+$`)
)

// diagnosticsStrategy reads a captured linker error log. Two line shapes count:
// a quoted undefined symbol (`"_vk_common_Foo", referenced from:`) and a line
// holding nothing but a symbol name.
type diagnosticsStrategy struct {
	ex *Extractor
}

func (s *diagnosticsStrategy) Name() string { return StrategyDiagnostics }

func (s *diagnosticsStrategy) Extract(src []byte, origin string, seen symbol.Set) Result {
	res := newResult(seen)
	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var candidates []string
		if bareSymbol.MatchString(line) {
			candidates = []string{line}
		} else {
			for _, m := range quotedSymbol.FindAllStringSubmatch(line, -1) {
				candidates = append(candidates, m[1])
			}
		}
		for _, raw := range candidates {
			name := symbol.Normalize(raw, s.ex.opts.Decoration)
			if entry, ok := s.ex.entry(name, origin, nil); ok {
				res.record(entry)
			}
		}
	}
	return res
}
