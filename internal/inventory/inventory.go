// Package inventory lists the entry points a compiled static library already defines.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"stubgen/internal/diag"
	"stubgen/internal/symbol"
)

// Reader produces the inventory of a compiled artifact. Implementations always
// return a non-nil set; a non-nil error is a warning unless diag.Fatal says otherwise.
type Reader interface {
	Read(ctx context.Context, path string) (symbol.Set, error)
}

// NMReader shells out to nm and falls back to in-process archive parsing when the
// tool is not installed.
type NMReader struct {
	NM     string
	Filter Filter
}

// NewNMReader creates a reader using the given nm binary ("nm" when empty).
func NewNMReader(nm string, f Filter) *NMReader {
	if nm == "" {
		nm = "nm"
	}
	return &NMReader{NM: nm, Filter: f}
}

func (r *NMReader) Read(ctx context.Context, path string) (symbol.Set, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return symbol.NewSet(), fmt.Errorf("%s: %w", path, diag.ErrMissingArtifact)
		}
		return symbol.NewSet(), fmt.Errorf("stat %s: %w", path, err)
	}

	if _, err := exec.LookPath(r.NM); err != nil {
		return r.readNative(path)
	}

	output, err := runNM(ctx, r.NM, path)
	if err != nil {
		return symbol.NewSet(), err
	}
	return ParseNM(output, r.Filter), nil
}

func (r *NMReader) readNative(path string) (symbol.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return symbol.NewSet(), fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	set, err := ReadArchive(f, r.Filter)
	if err != nil {
		return symbol.NewSet(), fmt.Errorf("%s: %v: %w", path, err, diag.ErrExternalProcess)
	}
	return set, nil
}

// Static is a fixed inventory, used when the symbol list is already known.
type Static symbol.Set

func (s Static) Read(context.Context, string) (symbol.Set, error) {
	return symbol.Set(s).Union(nil), nil
}
