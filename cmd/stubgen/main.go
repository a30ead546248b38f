package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stubgen/internal/catalog"
	"stubgen/internal/config"
	"stubgen/internal/diag"
	"stubgen/internal/generator"
	"stubgen/internal/inventory"
	"stubgen/internal/pipeline"
	"stubgen/internal/symbol"
)

var (
	rootCmd = &cobra.Command{
		Use:   "stubgen",
		Short: "Generate C stubs and forwarders for entry points missing from a static library",
	}
	configPath  string
	rootDir     string
	verbose     bool
	reportPath  string
	catalogPath string
	dryRun      bool
	inspectDB   string
	forceInit   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "stubgen.yaml", "Configuration file (built-in defaults when missing)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Project root all relative paths resolve against")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug output")

	generateCmd.Flags().StringVar(&reportPath, "report", "", "Write a JSON run report to this file or directory")
	generateCmd.Flags().StringVar(&catalogPath, "catalog", "", "Record dispositions in this SQLite catalog")
	generateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Reconcile and render without writing output files")
	inspectCmd.Flags().StringVar(&inspectDB, "catalog", "stubgen.db", "SQLite catalog written by generate --catalog")
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing configuration file")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(initCmd)
}

// loadConfig applies command-line overrides on top of file and environment settings.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if rootDir != "" {
		cfg.Project.Root = rootDir
	}
	cfg.Verbose = cfg.Verbose || verbose
	return cfg
}

func newLogger(cfg *config.Config) *diag.Logger {
	return diag.NewLogger(os.Stdout, os.Stderr, cfg.Verbose)
}

var generateCmd = &cobra.Command{
	Use:   "generate [job...]",
	Short: "Reconcile every (or the named) job and write its C file",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if failed, total := runGenerate(ctx, args); failed > 0 {
			log.Fatalf("%d of %d jobs failed", failed, total)
		}
	},
}

// runGenerate runs the selected jobs and returns how many failed. The catalog
// is closed before it returns.
func runGenerate(ctx context.Context, names []string) (failed, total int) {
	cfg := loadConfig()
	logger := newLogger(cfg)
	jobs, err := cfg.Select(names...)
	if err != nil {
		log.Fatalf("%v", err)
	}

	g, err := pipeline.NewGenerator(cfg, nil, logger)
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}
	g.DryRun = dryRun

	if reportPath != "" {
		g.Report = generator.NewRunReport("generate", cfg.Project.Root)
	}
	if catalogPath != "" {
		cat, err := catalog.NewSQLiteCatalog(catalogPath)
		if err != nil {
			log.Fatalf("Failed to open catalog: %v", err)
		}
		defer func() {
			if err := cat.Close(); err != nil {
				log.Printf("Warning: failed to close catalog: %v", err)
			}
		}()
		g.Catalog = cat
	}

	for _, job := range jobs {
		res, err := g.Run(ctx, job)
		if err != nil {
			failed++
			logger.Warn(job.Name, err)
			g.Report.AddSignal(job.Name, "run", string(diag.Classify(err)), generator.SeverityCritical, err.Error())
			continue
		}
		counts := res.Plan.Counts()
		fmt.Printf("%s: %d satisfied, %d forwarded, %d stubbed -> %s\n",
			job.Name, counts[symbol.Satisfied], counts[symbol.Forward], counts[symbol.Stub], res.Output)
	}

	if g.Report != nil {
		if err := saveReport(g.Report, reportPath); err != nil {
			log.Printf("Warning: failed to save report: %v", err)
		}
	}

	if n := len(logger.Warnings()); n > 0 {
		fmt.Printf("%d warnings\n", n)
	}
	return failed, len(jobs)
}

func saveReport(r *generator.RunReport, path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		saved, err := r.SaveDir(path)
		if err == nil {
			fmt.Printf("Report: %s\n", saved)
		}
		return err
	}
	if err := r.Save(path); err != nil {
		return err
	}
	fmt.Printf("Report: %s\n", path)
	return nil
}

var planCmd = &cobra.Command{
	Use:   "plan <job> [name]",
	Short: "Print the disposition of every (or one) expected entry point without writing",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		job, err := cfg.Job(args[0])
		if err != nil {
			log.Fatalf("%v", err)
		}
		g, err := pipeline.NewGenerator(cfg, nil, newLogger(cfg))
		if err != nil {
			log.Fatalf("Failed to create generator: %v", err)
		}

		res, err := g.Reconcile(context.Background(), job)
		if err != nil {
			log.Fatalf("Plan failed: %v", err)
		}
		if len(args) == 1 {
			printDispositions(res.Plan.Dispositions)
			return
		}
		d, ok := res.Plan.Lookup(args[1])
		if !ok {
			log.Fatalf("%s is not part of the %s surface", args[1], job.Name)
		}
		printDispositions([]symbol.Disposition{d})
	},
}

func printDispositions(ds []symbol.Disposition) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPOSITION\tDETAIL\tORIGIN")
	for _, d := range ds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Entry.Name, d.Kind, detail(d), d.Entry.Origin)
	}
	w.Flush()
}

func detail(d symbol.Disposition) string {
	var parts []string
	switch d.Kind {
	case symbol.Forward:
		parts = append(parts, "-> "+d.Target)
	case symbol.Stub:
		parts = append(parts, string(d.Reason))
	}
	if !d.Entry.HasSignature() && d.Kind != symbol.Satisfied {
		parts = append(parts, "no signature")
	}
	if d.Note != "" {
		parts = append(parts, d.Note)
	}
	return strings.Join(parts, "; ")
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory <artifact>",
	Short: "List the entry points a static library defines",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		r := inventory.NewNMReader(cfg.Tools.NM, inventory.Filter{
			Decoration:       cfg.Tools.Decoration,
			InternalSuffixes: cfg.Tools.InternalSuffixes,
		})
		set, err := r.Read(context.Background(), args[0])
		if err != nil {
			if diag.Fatal(err) {
				log.Fatalf("Failed to read inventory: %v", err)
			}
			newLogger(cfg).Warn("inventory", err)
		}
		for _, name := range set.Sorted() {
			fmt.Println(name)
		}
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [job] [name]",
	Short: "Query a disposition catalog",
	Args:  cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(inspectDB); err != nil {
			log.Fatalf("Catalog %s not found; run generate --catalog first", inspectDB)
		}
		cat, err := catalog.NewSQLiteCatalog(inspectDB)
		if err != nil {
			log.Fatalf("Failed to open catalog: %v", err)
		}
		defer cat.Close()
		ctx := context.Background()

		switch len(args) {
		case 0:
			jobs, err := cat.Jobs(ctx)
			if err != nil {
				log.Fatalf("Failed to list jobs: %v", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tINVENTORY\tSATISFIED\tFORWARDED\tSTUBBED\tOUTPUT")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n", j.Job, j.Inventory, j.Satisfied, j.Forwarded, j.Stubbed, j.Output)
			}
			w.Flush()
		case 1:
			run, err := cat.LoadRun(ctx, args[0])
			if err != nil {
				log.Fatalf("%v", err)
			}
			fmt.Printf("%s -> %s (artifact %s, %d symbols, sha256 %s)\n",
				run.Job, run.Output, run.Artifact, run.Inventory.Len(), run.Digest)
			printDispositions(run.Dispositions)
		default:
			d, err := cat.FindDisposition(ctx, args[0], args[1])
			if errors.Is(err, catalog.ErrNotFound) {
				log.Fatalf("%s has no record in job %s", args[1], args[0])
			}
			if err != nil {
				log.Fatalf("%v", err)
			}
			printDispositions([]symbol.Disposition{*d})
			if sig := d.Entry.Signature; sig != nil {
				fmt.Printf("\n%s %s(%s)\n", sig.Return, d.Entry.Name, sig.ParamList())
			}
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in configuration to --config",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(configPath); err == nil && !forceInit {
			log.Fatalf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := generator.WriteFile(configPath, config.DefaultYAML()); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote %s\n", configPath)
	},
}
