// Package compiler turns an analyzed model into C source, either for the
// simmod runtime or for the R deSolve package.
package compiler

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/thiremani/simmod/analyzer"
	"github.com/thiremani/simmod/builtins"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/parser"
	"github.com/thiremani/simmod/sbml"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

// DefaultOutput is written when no output file is named.
const DefaultOutput = "model.c"

// ErrSameFile is returned when the output would overwrite the model.
var ErrSameFile = errors.New("input and output files must be different")

// Model is an analyzed model, ready for generation.
type Model struct {
	Table *symbols.Table
	// Delays is set when an equation calls the delay function.
	Delays bool
	// Template is set when a PK template was instantiated.
	Template bool
	// Documents lists the SBML files that were read.
	Documents []string

	Source    string
	Output    string
	Date      string
	Generator string
}

// OutputName is the base name of the generated file.
func (m *Model) OutputName() string {
	if m.Output == "" {
		return DefaultOutput
	}
	return filepath.Base(m.Output)
}

type Options struct {
	Variant   Variant
	MaxErrors int
	MaxIndex  int
	Parser    parser.Options
	// Log receives a line per SBML object read. It may be nil.
	Log io.Writer
	// Generator names the program in the header of the generated file.
	Generator string
	// Now stamps the generated file. The zero value means time.Now.
	Now time.Time
}

// Analyze reads input and checks it. Diagnostics are written to diag, which
// may be nil. The returned model holds a sealed table.
func Analyze(input string, diag io.Writer, opts Options) (*Model, error) {
	rep := analyzer.NewReporter(diag, opts.MaxErrors)
	src, err := os.ReadFile(input)
	if err != nil {
		code := token.CannotOpen
		if errors.Is(err, fs.ErrNotExist) {
			code = token.FileNotFound
		}
		return nil, rep.Report(token.NewError(token.Token{}, token.Fatal, code, input, ""))
	}

	tab := symbols.NewTable()
	a := analyzer.New(tab, rep, analyzer.Options{MaxIndex: opts.MaxIndex})
	p := parser.New(lexer.New(input, string(src)), a, opts.Parser)
	im := sbml.New(a, filepath.Dir(input), opts.Parser)
	im.Log = opts.Log
	p.SetImporter(im)
	defer im.Release()

	if err := p.ParseModel(); err != nil {
		tab.Release()
		return nil, err
	}
	docs := im.Documents()
	if err := a.Finish(); err != nil {
		tab.Release()
		return nil, err
	}
	if err := checkIdentifiers(tab, input, opts.Variant, rep); err != nil {
		tab.Release()
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	gen := opts.Generator
	if gen == "" {
		gen = "simmod"
	}
	return &Model{
		Table:     tab,
		Delays:    a.Delays,
		Template:  im.TemplateInUse(),
		Documents: docs,
		Source:    input,
		Date:      now.Format(time.ANSIC),
		Generator: gen,
	}, nil
}

// checkIdentifiers reports every model name the generated source could not
// use as is.
func checkIdentifiers(tab *symbols.Table, input string, v Variant, rep *analyzer.Reporter) error {
	seen := map[string]bool{}
	for _, r := range tab.Globals.Records() {
		if r.Kind == symbols.Inline || seen[r.Name] || builtins.IsReserved(r.Name) {
			continue
		}
		seen[r.Name] = true
		err := ValidateIdentifier(r.Name, v)
		if err == nil {
			continue
		}
		ce := &token.CompileError{
			Token:    token.Token{FileName: input, Line: r.Line},
			Severity: token.Error,
			Code:     token.BadContext,
			Msg:      fmt.Sprintf("'%s' cannot be used in the generated code: %v", r.Name, err),
		}
		if err := rep.Report(ce); err != nil {
			return err
		}
	}
	if n := rep.Errors(); n > 0 {
		return fmt.Errorf("%w: %d error(s)", analyzer.ErrRejected, n)
	}
	return nil
}

// Compile generates output from input. Nothing is written unless the whole
// model is accepted.
func Compile(input, output string, diag io.Writer, opts Options) error {
	if output == "" {
		output = DefaultOutput
	}
	same, err := sameFile(input, output)
	if err != nil {
		return err
	}
	if same {
		return fmt.Errorf("%w: %s", ErrSameFile, input)
	}

	m, err := Analyze(input, diag, opts)
	if err != nil {
		return err
	}
	defer m.Table.Release()
	m.Output = output

	return writeArtifact(output, Generate(NewGenerator(opts.Variant, m)))
}

func sameFile(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", a, err)
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", b, err)
	}
	if absA == absB {
		return true, nil
	}
	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(infoA, infoB), nil
}

// writeArtifact replaces path with src. Concurrent compiles of the same
// output are serialized with a lock file next to it.
func writeArtifact(path, src string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(src); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
