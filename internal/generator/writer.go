package generator

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSpec is the fixed framing of one generated source file.
type FileSpec struct {
	Title       string
	Description string
	// Command is the invocation recorded in the provenance header.
	Command  string
	Includes []string
	Preamble string
}

// Render produces the complete file text. Equal inputs render byte-identical output.
func Render(spec FileSpec, fns []Function) []byte {
	var b bytes.Buffer
	b.WriteString("/*\n")
	if spec.Title != "" {
		fmt.Fprintf(&b, " * %s\n *\n", spec.Title)
	}
	b.WriteString(" * AUTO-GENERATED FILE - DO NOT EDIT MANUALLY\n")
	if spec.Command != "" {
		fmt.Fprintf(&b, " * Generated by: %s\n", spec.Command)
	}
	for _, line := range strings.Split(strings.TrimSpace(spec.Description), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fmt.Fprintf(&b, " *\n * %s\n", line)
		}
	}
	b.WriteString(" */\n\n")

	for _, inc := range spec.Includes {
		fmt.Fprintf(&b, "#include %s\n", includeTarget(inc))
	}
	if len(spec.Includes) > 0 {
		b.WriteString("\n")
	}

	if p := strings.TrimSpace(spec.Preamble); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}

	for i, fn := range fns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fn.String())
	}
	return b.Bytes()
}

// includeTarget wraps a bare header name in angle brackets.
func includeTarget(inc string) string {
	inc = strings.TrimSpace(inc)
	if strings.HasPrefix(inc, "<") || strings.HasPrefix(inc, `"`) {
		return inc
	}
	return "<" + inc + ">"
}

// WriteFile replaces path with data through a temporary file in the same
// directory, so readers never observe a partial file.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".stubgen-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	// CreateTemp opens with 0600.
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}

	bw := bufio.NewWriter(tmp)
	if _, err := bw.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
