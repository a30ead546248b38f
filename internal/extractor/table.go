package extractor

import (
	"regexp"

	"stubgen/internal/symbol"
)

// tableStrategy finds family names inside C dispatch tables. With assignments set
// only designated initializers (".slot = prefix_Name") count; otherwise every
// identifier carrying the prefix does.
type tableStrategy struct {
	ex          *Extractor
	assignments bool
}

func (s *tableStrategy) Name() string {
	if s.assignments {
		return StrategyTable
	}
	return StrategyScan
}

func (s *tableStrategy) Extract(src []byte, origin string, seen symbol.Set) Result {
	res := newResult(seen)
	prefix := regexp.QuoteMeta(s.ex.opts.Prefix)

	var re *regexp.Regexp
	if s.assignments {
		re = regexp.MustCompile(`\.\s*\w+\s*=\s*(` + prefix + `\w+)`)
	} else {
		re = regexp.MustCompile(`(?:^|[^\w])(` + prefix + `\w+)`)
	}

	for _, m := range re.FindAllSubmatch(src, -1) {
		if entry, ok := s.ex.entry(string(m[1]), origin, nil); ok {
			res.record(entry)
		}
	}
	return res
}
