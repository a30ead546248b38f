// Package diag holds the error taxonomy and the console logger shared by every stage.
package diag

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Warning is a non-fatal anomaly worth surfacing in the run report.
type Warning struct {
	Stage string
	Code  Code
	Msg   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s [%s] %s", w.Stage, w.Code, w.Msg)
}

// Logger writes prefixed progress lines and keeps every warning it sees.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	debug *log.Logger

	verbose bool

	mu       sync.Mutex
	warnings []Warning
}

// NewLogger logs info/debug to out and warnings to errOut.
func NewLogger(out, errOut io.Writer, verbose bool) *Logger {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Logger{
		info:    log.New(out, "[STUBGEN-INFO] ", 0),
		warn:    log.New(errOut, "[STUBGEN-WARN] ", 0),
		debug:   log.New(out, "[STUBGEN-DEBUG] ", 0),
		verbose: verbose,
	}
}

// Discard returns a logger that writes nothing but still records warnings.
func Discard() *Logger {
	return NewLogger(io.Discard, io.Discard, false)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.info.Printf(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.verbose {
		return
	}
	l.debug.Printf(format, args...)
}

// Warn records a warning derived from err and prints it.
func (l *Logger) Warn(stage string, err error) {
	if l == nil || err == nil {
		return
	}
	l.record(Warning{Stage: stage, Code: Classify(err), Msg: err.Error()})
}

// Warnf records a warning with an explicit code.
func (l *Logger) Warnf(stage string, code Code, format string, args ...any) {
	if l == nil {
		return
	}
	l.record(Warning{Stage: stage, Code: code, Msg: fmt.Sprintf(format, args...)})
}

func (l *Logger) record(w Warning) {
	l.mu.Lock()
	l.warnings = append(l.warnings, w)
	l.mu.Unlock()
	l.warn.Println(w.String())
}

// Warnings returns a copy of the recorded warnings.
func (l *Logger) Warnings() []Warning {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Warning, len(l.warnings))
	copy(out, l.warnings)
	return out
}
