// Package pipeline runs configured jobs: inventory, surface, reconciliation,
// normalization, emission and the atomic write of one C file per job.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"stubgen/internal/analysis"
	"stubgen/internal/catalog"
	"stubgen/internal/config"
	"stubgen/internal/diag"
	"stubgen/internal/extractor"
	"stubgen/internal/generator"
	"stubgen/internal/inventory"
	"stubgen/internal/normalize"
	"stubgen/internal/resolver"
	"stubgen/internal/surface"
	"stubgen/internal/symbol"
)

// Generator runs jobs of one configuration.
type Generator struct {
	cfg       *config.Config
	inventory inventory.Reader
	log       *diag.Logger
	norm      *normalize.Normalizer
	emitter   *generator.Emitter

	// Command is recorded in the provenance header, followed by the job name.
	Command string
	DryRun  bool
	// Report and Catalog are optional side outputs.
	Report  *generator.RunReport
	Catalog catalog.Catalog
}

// Result is the outcome of one job.
type Result struct {
	Job        string
	Output     string
	Inventory  symbol.Set
	Alternate  symbol.Set
	Surface    *surface.Surface
	Plan       *resolver.Plan
	Stages     []resolver.StageResult
	Normalized int
	Data       []byte
	Digest     string
	Written    bool
	// Drift compares the plan with the catalog's previous snapshot; nil without a catalog or snapshot.
	Drift *analysis.DriftReport
}

// NewGenerator creates a generator. A nil reader uses nm as configured.
func NewGenerator(cfg *config.Config, inv inventory.Reader, log *diag.Logger) (*Generator, error) {
	norm, err := normalize.New(cfg.PlatformTypes)
	if err != nil {
		return nil, fmt.Errorf("platform types: %w", err)
	}
	if inv == nil {
		inv = inventory.NewNMReader(cfg.Tools.NM, inventory.Filter{
			Decoration:       cfg.Tools.Decoration,
			InternalSuffixes: cfg.Tools.InternalSuffixes,
		})
	}
	if log == nil {
		log = diag.Discard()
	}
	return &Generator{
		cfg:       cfg,
		inventory: inv,
		log:       log,
		norm:      norm,
		emitter:   generator.NewEmitter(cfg.ABI),
		Command:   "stubgen generate",
	}, nil
}

// Run reconciles the job and writes its output file.
func (g *Generator) Run(ctx context.Context, job *config.Job) (*Result, error) {
	res, err := g.Reconcile(ctx, job)
	if err != nil {
		return nil, err
	}

	if err := g.emitStage(job, res); err != nil {
		return nil, err
	}
	if err := g.writeStage(res); err != nil {
		return nil, err
	}
	if err := g.catalogStage(ctx, job, res); err != nil {
		return nil, err
	}
	g.recordJob(job, res)
	return res, nil
}

// Reconcile builds the job's plan without emitting anything.
func (g *Generator) Reconcile(ctx context.Context, job *config.Job) (*Result, error) {
	res := &Result{Job: job.Name, Output: g.cfg.Resolve(job.Output)}

	if err := g.inventoryStage(ctx, job, res); err != nil {
		return nil, err
	}
	if err := g.surfaceStage(job, res); err != nil {
		return nil, err
	}
	if err := g.resolveStage(job, res); err != nil {
		return nil, err
	}
	g.normalizeStage(job, res)
	return res, nil
}

func (g *Generator) inventoryStage(ctx context.Context, job *config.Job, res *Result) error {
	h := g.Report.BeginStage(job.Name, "inventory")
	artifact := g.cfg.ArtifactFor(job)

	inv, err := g.inventory.Read(ctx, artifact)
	if err != nil {
		if diag.Fatal(err) {
			g.Report.EndStage(h, "error", nil, nil, err)
			return fmt.Errorf("inventory of %s: %w", artifact, err)
		}
		g.warn(job, "inventory", err)
		g.log.Infof("%s: no usable inventory, every expected entry point will be stubbed", job.Name)
	}
	res.Inventory = inv
	res.Alternate = inv

	if alt := job.Alternate.Artifact; alt != "" {
		path := g.cfg.Resolve(alt)
		altInv, err := g.inventory.Read(ctx, path)
		if err != nil {
			if diag.Fatal(err) {
				g.Report.EndStage(h, "error", nil, nil, err)
				return fmt.Errorf("alternate inventory of %s: %w", path, err)
			}
			g.warn(job, "inventory", err)
		}
		res.Alternate = altInv
	}

	g.log.Infof("%s: %d defined symbols in %s", job.Name, res.Inventory.Len(), artifact)
	g.Report.EndStage(h, "ok", map[string]float64{
		"symbols":   float64(res.Inventory.Len()),
		"alternate": float64(res.Alternate.Len()),
	}, nil, nil)
	return nil
}

func (g *Generator) extractorFor(job *config.Job, prefix string) *extractor.Extractor {
	return extractor.NewExtractor(extractor.Options{
		Prefix:        prefix,
		Infix:         job.Companion.Infix,
		CommandPrefix: g.cfg.CommandPrefix,
		Denylist:      g.cfg.Denylist,
		TableSuffix:   g.cfg.TableSuffix,
		Decoration:    g.cfg.Tools.Decoration,
		Attr:          g.cfg.ABI.Attr,
		Call:          g.cfg.ABI.Call,
	})
}

func (g *Generator) companion(job *config.Job) surface.Companion {
	c := job.Companion
	if c.Prefix == "" {
		c.Prefix = job.Prefix
	}
	if c.Scope == "" {
		c.Scope = surface.ScopeAll
	}
	return c
}

// surfaceStage reads every source in configuration order. Fallback sources are
// consulted only when no primary source file could be read.
func (g *Generator) surfaceStage(job *config.Job, res *Result) error {
	h := g.Report.BeginStage(job.Name, "surface")
	ex := g.extractorFor(job, job.Prefix)
	defer ex.Close()
	sources := newSourceReader(g, job, ex)

	builder := surface.NewBuilder(g.companion(job))
	seen := symbol.NewSet()
	primaryRead := false
	var missingRequired []string

	for _, src := range job.Sources {
		if src.Fallback() {
			continue
		}
		r, read := sources.read(src, seen)
		seen = r.Seen
		builder.Add(r.Entries, src.Kind != config.SourceNames)
		if src.Kind != config.SourceNames {
			builder.Confirm(r.Confirmed)
			primaryRead = primaryRead || read
		}
		if !read && src.Required {
			missingRequired = append(missingRequired, sources.label(src))
		}
	}

	fallbackEntries := 0
	if !primaryRead {
		for _, src := range job.Sources {
			if !src.Fallback() {
				continue
			}
			r, _ := sources.read(src, seen)
			seen = r.Seen
			builder.Add(r.Entries, src.Kind != config.SourceNames)
			if src.Kind != config.SourceNames {
				builder.Confirm(r.Confirmed)
			}
			fallbackEntries += len(r.Entries)
		}
	}

	if len(missingRequired) > 0 && fallbackEntries == 0 {
		err := fmt.Errorf("%s: required source %v is missing and no fallback source contributed entries: %w",
			job.Name, missingRequired, diag.ErrNoSurface)
		g.Report.EndStage(h, "error", nil, nil, err)
		return err
	}

	for _, ref := range job.References {
		g.readReference(job, ref, builder)
	}

	s, problems := builder.Build()
	for _, p := range problems {
		g.warn(job, "surface", p)
	}
	res.Surface = s

	g.log.Infof("%s: %d expected entry points (%d derived, %d without signature)",
		job.Name, s.Len(), s.Derived, s.WithoutSignature())
	g.Report.EndStage(h, "ok", map[string]float64{
		"expected":          float64(s.Len()),
		"derived":           float64(s.Derived),
		"without_signature": float64(s.WithoutSignature()),
		"unverified":        float64(len(s.Unverified)),
	}, nil, nil)
	return nil
}

func (g *Generator) readReference(job *config.Job, ref config.Reference, b *surface.Builder) {
	path := g.cfg.Resolve(ref.Path)
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("signature reference %s: %w", path, diag.ErrMissingSource)
		}
		g.warn(job, "surface", err)
		return
	}
	ex := g.extractorFor(job, ref.Prefix)
	defer ex.Close()
	sigs, problems := ex.Signatures(src, path)
	for _, p := range problems {
		g.log.Debugf("%s: %v", job.Name, p)
	}
	g.log.Debugf("%s: %d reference signatures from %s", job.Name, len(sigs), path)
	b.AddSignatures(sigs)
}

func (g *Generator) resolveStage(job *config.Job, res *Result) error {
	h := g.Report.BeginStage(job.Name, "resolve")

	table := make(map[symbol.Name]symbol.Name, len(job.Forwards))
	for from, to := range job.Forwards {
		table[from] = to
	}
	chain := resolver.NewDefaultChain(res.Inventory,
		resolver.Alternate{Prefix: job.Alternate.Prefix, Inventory: res.Alternate}, table)

	plan, stages, err := chain.Run(res.Surface.Entries)
	if err == nil {
		err = plan.Verify(res.Inventory, res.Alternate)
	}
	if err != nil {
		g.Report.EndStage(h, "error", nil, nil, err)
		g.Report.AddSignal(job.Name, "resolve", string(diag.Classify(err)), generator.SeverityCritical, err.Error())
		return fmt.Errorf("%s: %w", job.Name, err)
	}
	res.Plan = plan
	res.Stages = stages

	for _, st := range stages {
		g.log.Debugf("%s: rule %s resolved %d (pending %d -> %d)",
			job.Name, st.Rule, st.Stats.Resolved, st.PendingBefore, st.PendingAfter)
	}
	counts := plan.Counts()
	g.log.Infof("%s: %d satisfied, %d forwarded, %d stubbed",
		job.Name, counts[symbol.Satisfied], counts[symbol.Forward], counts[symbol.Stub])
	g.Report.EndStage(h, "ok", map[string]float64{
		"satisfied": float64(counts[symbol.Satisfied]),
		"forwarded": float64(counts[symbol.Forward]),
		"stubbed":   float64(counts[symbol.Stub]),
	}, nil, nil)
	return nil
}

// normalizeStage rewrites platform-restricted types in every signature that will be emitted.
func (g *Generator) normalizeStage(job *config.Job, res *Result) {
	h := g.Report.BeginStage(job.Name, "normalize")
	for i, d := range res.Plan.Dispositions {
		if d.Kind == symbol.Satisfied {
			continue
		}
		if e, changed := g.norm.Entry(d.Entry); changed {
			res.Plan.Dispositions[i].Entry = e
			res.Normalized++
		}
	}
	if res.Normalized > 0 {
		g.log.Debugf("%s: normalized %d signatures", job.Name, res.Normalized)
	}
	g.Report.EndStage(h, "ok", map[string]float64{"normalized": float64(res.Normalized)}, nil, nil)
}

func (g *Generator) emitStage(job *config.Job, res *Result) error {
	h := g.Report.BeginStage(job.Name, "emit")
	fns, err := g.emitter.EmitPlan(res.Plan.Dispositions)
	if err != nil {
		g.Report.EndStage(h, "error", nil, nil, err)
		return fmt.Errorf("%s: %w", job.Name, err)
	}

	res.Data = generator.Render(generator.FileSpec{
		Title:       job.Title,
		Description: job.Description,
		Command:     g.Command + " " + job.Name,
		Includes:    job.Includes,
		Preamble:    job.Preamble,
	}, fns)
	sum := sha256.Sum256(res.Data)
	res.Digest = hex.EncodeToString(sum[:])

	g.Report.EndStage(h, "ok", map[string]float64{
		"functions": float64(len(fns)),
		"bytes":     float64(len(res.Data)),
	}, nil, nil)
	return nil
}

func (g *Generator) writeStage(res *Result) error {
	if g.DryRun {
		g.log.Infof("%s: dry run, %s not written (%d bytes)", res.Job, res.Output, len(res.Data))
		return nil
	}
	h := g.Report.BeginStage(res.Job, "write")
	if err := generator.WriteFile(res.Output, res.Data); err != nil {
		g.Report.EndStage(h, "error", nil, nil, err)
		return fmt.Errorf("write %s: %w", res.Output, err)
	}
	res.Written = true
	g.log.Infof("%s: wrote %s", res.Job, res.Output)
	g.Report.EndStage(h, "ok", map[string]float64{"bytes": float64(len(res.Data))}, []string{res.Output}, nil)
	return nil
}

func (g *Generator) catalogStage(ctx context.Context, job *config.Job, res *Result) error {
	if g.Catalog == nil {
		return nil
	}
	h := g.Report.BeginStage(job.Name, "catalog")
	counters := map[string]float64{}

	prev, err := g.Catalog.LoadRun(ctx, job.Name)
	switch {
	case err == nil:
		res.Drift = analysis.NewAnalyzer(prev.Dispositions).AnalyzeDrift(res.Plan.Dispositions)
		g.logDrift(job, res.Drift)
		counters["added"] = float64(len(res.Drift.Added))
		counters["removed"] = float64(len(res.Drift.Removed))
		counters["changed"] = float64(len(res.Drift.Changed))
	case !errors.Is(err, catalog.ErrNotFound):
		g.Report.EndStage(h, "error", nil, nil, err)
		return fmt.Errorf("%s: load catalog: %w", job.Name, err)
	}

	err = g.Catalog.SaveRun(ctx, catalog.Run{
		Job:          job.Name,
		Output:       res.Output,
		Artifact:     g.cfg.ArtifactFor(job),
		Digest:       res.Digest,
		Inventory:    res.Inventory,
		Dispositions: res.Plan.Dispositions,
	})
	g.Report.EndStage(h, "", counters, nil, err)
	if err != nil {
		return fmt.Errorf("%s: save catalog: %w", job.Name, err)
	}
	return nil
}

func (g *Generator) logDrift(job *config.Job, d *analysis.DriftReport) {
	if d.Empty() {
		g.log.Debugf("%s: no change since the last recorded run", job.Name)
		return
	}
	g.log.Infof("%s: since the last recorded run %d added, %d removed, %d changed",
		job.Name, len(d.Added), len(d.Removed), len(d.Changed))
	for _, c := range d.Regressions() {
		msg := fmt.Sprintf("%s regressed from %s to stub", c.Name, c.Before.Kind)
		g.log.Warnf(job.Name+"/catalog", diag.CodeRegression, "%s", msg)
		g.Report.AddSignal(job.Name, "catalog", string(diag.CodeRegression), generator.SeverityWarning, msg)
	}
}

func (g *Generator) recordJob(job *config.Job, res *Result) {
	if g.Report == nil {
		return
	}
	counts := res.Plan.Counts()
	demoted := 0
	for _, d := range res.Plan.Dispositions {
		if d.Kind == symbol.Stub && d.Note != "" {
			demoted++
		}
	}
	g.Report.AddJobMetric(generator.JobMetric{
		Job:              job.Name,
		Output:           res.Output,
		Expected:         res.Surface.Len(),
		Satisfied:        counts[symbol.Satisfied],
		Forwarded:        counts[symbol.Forward],
		Stubbed:          counts[symbol.Stub],
		Demoted:          demoted,
		Derived:          res.Surface.Derived,
		WithoutSignature: res.Surface.WithoutSignature(),
		Normalized:       res.Normalized,
		Unverified:       res.Surface.Unverified,
		Bytes:            len(res.Data),
		Written:          res.Written,
	})
}

// warn logs a non-fatal problem and mirrors it into the report.
func (g *Generator) warn(job *config.Job, stage string, err error) {
	g.log.Warn(job.Name+"/"+stage, err)
	g.Report.AddSignal(job.Name, stage, string(diag.Classify(err)), generator.SeverityWarning, err.Error())
}
