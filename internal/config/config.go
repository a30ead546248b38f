package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"stubgen/internal/generator"
	"stubgen/internal/normalize"
	"stubgen/internal/surface"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Source kinds.
const (
	SourceTable        = "table"
	SourceScan         = "scan"
	SourceDeclarations = "declarations"
	SourceDiagnostics  = "diagnostics"
	SourceNames        = "names"
)

// Source activation.
const (
	WhenAlways   = "always"
	WhenFallback = "fallback"
)

type Source struct {
	Kind string `yaml:"kind"`
	// Path is a single file. Dir plus Pattern selects every matching file below Dir.
	Path    string   `yaml:"path,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
	Pattern string   `yaml:"pattern,omitempty"`
	Names   []string `yaml:"names,omitempty"`
	// When is "always" (default) or "fallback": fallback sources are read only
	// when no always-source file could be read.
	When     string `yaml:"when,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// Fallback reports whether the source only backs up unavailable primary sources.
func (s Source) Fallback() bool { return s.When == WhenFallback }

// Reference is a header declaring the same surface under another prefix, used
// only to look up signatures by base name.
type Reference struct {
	Path   string `yaml:"path"`
	Prefix string `yaml:"prefix"`
}

type Alternate struct {
	Prefix string `yaml:"prefix,omitempty"`
	// Artifact holds the alternate implementations; empty means the job's artifact.
	Artifact string `yaml:"artifact,omitempty"`
}

type Job struct {
	Name        string            `yaml:"name"`
	Title       string            `yaml:"title,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Output      string            `yaml:"output"`
	Artifact    string            `yaml:"artifact,omitempty"`
	Prefix      string            `yaml:"prefix"`
	Companion   surface.Companion `yaml:"companion,omitempty"`
	Alternate   Alternate         `yaml:"alternate,omitempty"`
	Forwards    map[string]string `yaml:"forwards,omitempty"`
	References  []Reference       `yaml:"references,omitempty"`
	Sources     []Source          `yaml:"sources"`
	Includes    []string          `yaml:"includes,omitempty"`
	Preamble    string            `yaml:"preamble,omitempty"`
}

type Config struct {
	Project struct {
		Root     string `yaml:"root"`
		Artifact string `yaml:"artifact"`
	} `yaml:"project"`
	Tools struct {
		NM               string   `yaml:"nm"`
		Decoration       string   `yaml:"decoration"`
		InternalSuffixes []string `yaml:"internal_suffixes"`
	} `yaml:"tools"`
	ABI           generator.ABI    `yaml:"abi"`
	CommandPrefix string           `yaml:"command_prefix"`
	TableSuffix   string           `yaml:"table_suffix"`
	Denylist      []string         `yaml:"denylist"`
	PlatformTypes []normalize.Rule `yaml:"platform_types"`
	Jobs          []Job            `yaml:"jobs"`

	Verbose bool `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded defaults: %v", err))
	}
	return &cfg
}

// DefaultYAML is the text of the built-in configuration.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// LoadConfig reads path over the built-in defaults. A missing file yields the
// defaults; environment overrides apply in both cases.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()
	env.Load()

	// 2. Load YAML config
	cfg := Default()
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// 3. Override with Environment Variables if present
	cfg.Project.Root = env.Str("STUBGEN_ROOT", cfg.Project.Root)
	cfg.Project.Artifact = env.Str("STUBGEN_ARTIFACT", cfg.Project.Artifact)
	cfg.Tools.NM = env.Str("STUBGEN_NM", cfg.Tools.NM)
	if env.Has("STUBGEN_VERBOSE") {
		cfg.Verbose = env.Bool("STUBGEN_VERBOSE")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations no job could run with.
func (c *Config) Validate() error {
	var problems []string
	names := make(map[string]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		label := j.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			problems = append(problems, fmt.Sprintf("job %s: missing name", label))
		}
		if names[j.Name] {
			problems = append(problems, fmt.Sprintf("job %s: duplicate name", label))
		}
		names[j.Name] = true
		if j.Prefix == "" {
			problems = append(problems, fmt.Sprintf("job %s: missing prefix", label))
		}
		if j.Output == "" {
			problems = append(problems, fmt.Sprintf("job %s: missing output", label))
		}
		if len(j.Sources) == 0 {
			problems = append(problems, fmt.Sprintf("job %s: no sources", label))
		}
		if err := j.Companion.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("job %s: %v", label, err))
		}
		for k, s := range j.Sources {
			if msg := validateSource(s); msg != "" {
				problems = append(problems, fmt.Sprintf("job %s source %d: %s", label, k, msg))
			}
		}
		for _, r := range j.References {
			if r.Path == "" || r.Prefix == "" {
				problems = append(problems, fmt.Sprintf("job %s: reference needs path and prefix", label))
			}
		}
	}
	for _, r := range c.PlatformTypes {
		if strings.TrimSpace(r.Type) == "" {
			problems = append(problems, "platform type with empty name")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validateSource(s Source) string {
	switch s.When {
	case "", WhenAlways, WhenFallback:
	default:
		return fmt.Sprintf("unknown when %q", s.When)
	}
	switch s.Kind {
	case SourceNames:
		if len(s.Names) == 0 {
			return "names source without names"
		}
		return ""
	case SourceTable, SourceScan, SourceDeclarations, SourceDiagnostics:
	default:
		return fmt.Sprintf("unknown kind %q", s.Kind)
	}
	if s.Path == "" && (s.Dir == "" || s.Pattern == "") {
		return "needs path, or dir and pattern"
	}
	return ""
}

// Job returns the named job.
func (c *Config) Job(name string) (*Job, error) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], nil
		}
	}
	return nil, fmt.Errorf("unknown job %q", name)
}

// Select returns the named jobs in the given order, or every job when names is empty.
func (c *Config) Select(names ...string) ([]*Job, error) {
	if len(names) == 0 {
		out := make([]*Job, len(c.Jobs))
		for i := range c.Jobs {
			out[i] = &c.Jobs[i]
		}
		return out, nil
	}
	out := make([]*Job, 0, len(names))
	for _, n := range names {
		j, err := c.Job(n)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Resolve makes p absolute against the project root. Absolute paths are kept.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	root := c.Project.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, p)
}

// ArtifactFor returns the artifact path a job inventories.
func (c *Config) ArtifactFor(j *Job) string {
	if j.Artifact != "" {
		return c.Resolve(j.Artifact)
	}
	return c.Resolve(c.Project.Artifact)
}
