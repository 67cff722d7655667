package analyzer

import (
	"fmt"
	"io"

	"github.com/thiremani/simmod/token"
)

// DefaultMaxErrors is how many errors are tolerated before the next one is
// treated as fatal.
const DefaultMaxErrors = 20

// Reporter is the single sink for diagnostics. Each one is written as a
// "severity: position: message" line.
type Reporter struct {
	w         io.Writer
	MaxErrors int

	Diagnostics []*token.CompileError
	counts      map[token.Severity]int
}

// NewReporter writes to w, which may be nil to only collect.
func NewReporter(w io.Writer, maxErrors int) *Reporter {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &Reporter{w: w, MaxErrors: maxErrors, counts: map[token.Severity]int{}}
}

// Report records e and returns it as an error when it ends the
// compilation: fatal diagnostics, out-of-memory whatever its severity, and
// the error that exceeds MaxErrors.
func (r *Reporter) Report(e *token.CompileError) error {
	if e.Code == token.OutOfMem {
		e.Severity = token.Fatal
	}
	if e.Severity == token.Error && r.counts[token.Error]+1 > r.MaxErrors {
		e.Severity = token.Fatal
	}
	r.counts[e.Severity]++
	r.Diagnostics = append(r.Diagnostics, e)

	if r.w != nil {
		fmt.Fprintf(r.w, "%s: %s\n", e.Severity, e.Error())
	}
	if e.Severity == token.Fatal {
		return e
	}
	return nil
}

func (r *Reporter) Count(sev token.Severity) int {
	return r.counts[sev]
}

func (r *Reporter) Warnings() int {
	return r.counts[token.Warning]
}

func (r *Reporter) Errors() int {
	return r.counts[token.Error]
}

// Failed reports whether anything was reported that rejects the model.
func (r *Reporter) Failed() bool {
	return r.counts[token.Error] > 0 || r.counts[token.Fatal] > 0
}

// Codes lists the codes reported so far, in order.
func (r *Reporter) Codes() []token.Code {
	codes := make([]token.Code, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		codes = append(codes, d.Code)
	}
	return codes
}
