package pipeline

import (
	"fmt"
	"os"

	"stubgen/internal/config"
	"stubgen/internal/crawler"
	"stubgen/internal/diag"
	"stubgen/internal/extractor"
	"stubgen/internal/symbol"
)

type sourceReader struct {
	g       *Generator
	job     *config.Job
	ex      *extractor.Extractor
	crawler *crawler.Crawler
}

func newSourceReader(g *Generator, job *config.Job, ex *extractor.Extractor) *sourceReader {
	return &sourceReader{g: g, job: job, ex: ex, crawler: crawler.NewCrawler(ex)}
}

func (r *sourceReader) label(src config.Source) string {
	switch {
	case src.Kind == config.SourceNames:
		return fmt.Sprintf("%s list (%d names)", src.Kind, len(src.Names))
	case src.Path != "":
		return r.g.cfg.Resolve(src.Path)
	default:
		return r.g.cfg.Resolve(src.Dir) + "/" + src.Pattern
	}
}

// read extracts one source. The boolean reports whether any file was actually read.
func (r *sourceReader) read(src config.Source, seen symbol.Set) (extractor.Result, bool) {
	var (
		res  extractor.Result
		read bool
	)
	switch {
	case src.Kind == config.SourceNames:
		res = r.ex.ExtractNames(src.Names, "configured names", seen)
		read = true
	case src.Path != "":
		path := r.g.cfg.Resolve(src.Path)
		var err error
		res, err = r.ex.ExtractFile(src.Kind, path, seen)
		if err != nil {
			r.g.warn(r.job, "surface", err)
			return res, false
		}
		read = true
	default:
		dir := r.g.cfg.Resolve(src.Dir)
		if _, err := os.Stat(dir); err != nil {
			r.g.warn(r.job, "surface", fmt.Errorf("%s: %w", dir, diag.ErrMissingSource))
			return extractor.Result{Seen: symbol.Set{}.Union(seen)}, false
		}
		files, err := r.crawler.Files(dir, src.Pattern)
		if err != nil {
			r.g.warn(r.job, "surface", err)
			return extractor.Result{Seen: symbol.Set{}.Union(seen)}, false
		}
		res, err = r.crawler.ScanSources(dir, src.Pattern, src.Kind, seen, nil)
		if err != nil {
			r.g.warn(r.job, "surface", err)
		}
		read = len(files) > 0
		if !read {
			r.g.warn(r.job, "surface", fmt.Errorf("no %s under %s: %w", src.Pattern, dir, diag.ErrMissingSource))
		}
	}

	for _, p := range res.Problems {
		r.g.warn(r.job, "surface", p)
	}
	r.g.log.Debugf("%s: %d entries from %s", r.job.Name, len(res.Entries), r.label(src))
	return res, read
}
