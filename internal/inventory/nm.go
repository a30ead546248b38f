package inventory

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"stubgen/internal/diag"
	"stubgen/internal/symbol"
)

// Filter decides which listed symbols count as defined entry points.
type Filter struct {
	// Decoration is the single leading character the platform prepends to C names.
	Decoration string
	// InternalSuffixes marks helper symbols that are never public entry points.
	InternalSuffixes []string
}

// runNM invokes the symbol-table dump utility and returns its raw stdout.
func runNM(ctx context.Context, nm, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, nm, "-g", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s -g %s: %v: %s: %w", nm, path, err, msg, diag.ErrExternalProcess)
		}
		return nil, fmt.Errorf("%s -g %s: %v: %w", nm, path, err, diag.ErrExternalProcess)
	}
	return output, nil
}

// ParseNM extracts globally visible code symbols from nm output.
func ParseNM(output []byte, f Filter) symbol.Set {
	set := symbol.NewSet()
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasSuffix(line, ":") {
			// member header such as "libfoo.a(bar.o):"
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		typ := fields[len(fields)-2]
		raw := fields[len(fields)-1]
		if typ != "T" {
			continue
		}
		if name, ok := f.accept(raw); ok {
			set.Add(name)
		}
	}
	return set
}

func (f Filter) accept(raw string) (symbol.Name, bool) {
	if isColdPartition(raw) {
		return "", false
	}
	name := symbol.Normalize(raw, f.Decoration)
	if name == "" {
		return "", false
	}
	for _, suffix := range f.InternalSuffixes {
		if suffix != "" && strings.HasSuffix(name, suffix) {
			return "", false
		}
	}
	return name, true
}

func isColdPartition(name string) bool {
	return strings.Contains(name, ".cold.") || strings.HasSuffix(name, ".cold")
}
