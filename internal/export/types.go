// Package export renders project status reports as downloadable PDFs.
package export

import "errors"

// Kind selects how much of each record the report includes.
type Kind string

const (
	KindFull         Kind = "full"
	KindSummary      Kind = "summary"
	KindBlockersOnly Kind = "blockers_only"
)

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrNothingToExport indicates the filtered record set is empty.
	ErrNothingToExport = errors.New("export has no matching records")
)
