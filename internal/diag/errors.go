package diag

import (
	"errors"
	"os"
)

var (
	ErrMissingArtifact     = errors.New("artifact not found")
	ErrMissingSource       = errors.New("declarative source not found")
	ErrUnparsableSignature = errors.New("signature could not be parsed")
	ErrDuplicateName       = errors.New("duplicate expected name")
	ErrExternalProcess     = errors.New("external process failed")
	ErrNoSurface           = errors.New("no expected surface")
	ErrInvariant           = errors.New("invariant violation")
)

// Code is a short classification used in log lines and report signals.
type Code string

const (
	CodeUnknown         Code = "unknown"
	CodeMissingArtifact Code = "missing_artifact"
	CodeMissingSource   Code = "missing_source"
	CodeUnparsable      Code = "unparsable_signature"
	CodeDuplicate       Code = "duplicate_name"
	CodeExternalProcess Code = "external_process"
	CodeNoSurface       Code = "no_surface"
	CodeInvariant       Code = "invariant"
	CodeIO              Code = "io"
	CodeRegression      Code = "regression"
)

// Classify maps an error onto a Code. Sentinels are checked before generic I/O errors.
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, ErrNoSurface):
		return CodeNoSurface
	case errors.Is(err, ErrInvariant):
		return CodeInvariant
	case errors.Is(err, ErrMissingArtifact):
		return CodeMissingArtifact
	case errors.Is(err, ErrMissingSource):
		return CodeMissingSource
	case errors.Is(err, ErrUnparsableSignature):
		return CodeUnparsable
	case errors.Is(err, ErrDuplicateName):
		return CodeDuplicate
	case errors.Is(err, ErrExternalProcess):
		return CodeExternalProcess
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// Fatal reports whether err must abort the current job.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case CodeMissingArtifact, CodeMissingSource, CodeUnparsable, CodeDuplicate, CodeExternalProcess:
		return false
	}
	return true
}
