package crawler

import (
	"io/fs"
	"path/filepath"
	"sort"

	"stubgen/internal/extractor"
	"stubgen/internal/symbol"
)

// Crawler scans a directory for declarative source files.
type Crawler struct {
	extractor *extractor.Extractor
	ignored   []string
}

// NewCrawler creates a new crawler instance.
func NewCrawler(ext *extractor.Extractor) *Crawler {
	return &Crawler{
		extractor: ext,
		ignored:   []string{".git", "build", "_build", "node_modules", "testdata"},
	}
}

// Files walks root and returns the files whose base name matches pattern, in
// lexical order so repeated runs see sources in the same sequence.
func (c *Crawler) Files(root, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root {
				for _, ign := range c.ignored {
					if d.Name() == ign {
						return filepath.SkipDir
					}
				}
			}
			return nil
		}

		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ScanSources runs strategy over every matching file under root. Entries stream
// through onEntry in file order; the returned set extends seen.
func (c *Crawler) ScanSources(root, pattern, strategy string, seen symbol.Set, onEntry func(symbol.Entry)) (extractor.Result, error) {
	out := extractor.Result{Seen: symbol.Set{}.Union(seen)}
	files, err := c.Files(root, pattern)
	if err != nil {
		return out, err
	}

	for _, path := range files {
		res, err := c.extractor.ExtractFile(strategy, path, out.Seen)
		if err != nil {
			out.Problems = append(out.Problems, err)
			continue
		}
		out.Seen = res.Seen
		out.Confirmed = append(out.Confirmed, res.Confirmed...)
		out.Problems = append(out.Problems, res.Problems...)
		for _, e := range res.Entries {
			out.Entries = append(out.Entries, e)
			if onEntry != nil {
				onEntry(e)
			}
		}
	}
	return out, nil
}
