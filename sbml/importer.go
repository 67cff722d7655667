// Package sbml reads SBML documents, and optionally a PK template written
// in the native grammar, into the symbol table of the model being parsed.
//
// Every document is decoded first. Declarations (compartments, parameters,
// species, functions, rate rules and reactions) are then read from all
// documents before any derivative is constructed, so a reaction may refer
// to species of a later document.
package sbml

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thiremani/simmod/analyzer"
	"github.com/thiremani/simmod/builtins"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/parser"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

type Importer struct {
	a *analyzer.Analyzer
	// Dir resolves relative file names, normally the model's directory.
	Dir string
	// Log receives a line per object read. It may be nil.
	Log  io.Writer
	opts parser.Options

	tmpl     *symbols.Table
	files    []string
	imported []string
	macros   map[string]macro
}

func New(a *analyzer.Analyzer, dir string, opts parser.Options) *Importer {
	return &Importer{a: a, Dir: dir, opts: opts, macros: make(map[string]macro)}
}

// TemplateInUse reports whether a PK template was loaded.
func (im *Importer) TemplateInUse() bool {
	return im.tmpl != nil
}

// Files lists the documents of the import in progress.
func (im *Importer) Files() []string {
	return im.files
}

// Documents lists every document imported so far. Release keeps it.
func (im *Importer) Documents() []string {
	return im.imported
}

// Release drops the list of discovered files. It may be called any number
// of times.
func (im *Importer) Release() {
	im.files = nil
}

func (im *Importer) logf(format string, args ...any) {
	if im.Log != nil {
		fmt.Fprintf(im.Log, format+"\n", args...)
	}
}

func (im *Importer) resolve(name string) string {
	if filepath.IsAbs(name) || im.Dir == "" {
		return name
	}
	return filepath.Join(im.Dir, name)
}

// read loads a file named by tok, reporting a missing or unreadable file
// as fatal.
func (im *Importer) read(tok token.Token) (string, []byte, error) {
	path := im.resolve(tok.Literal)
	data, err := os.ReadFile(path)
	if err == nil {
		return path, data, nil
	}
	im.a.At(tok)
	if errors.Is(err, fs.ErrNotExist) {
		return path, nil, im.a.Report(token.Fatal, token.FileNotFound, path, "")
	}
	return path, nil, im.a.Report(token.Fatal, token.CannotOpen, path, "")
}

// failf reports a fatal problem in the document at path.
func (im *Importer) failf(path string, code token.Code, format string, args ...any) error {
	im.a.At(token.Token{FileName: path})
	return im.a.ReportMsg(token.Fatal, code, fmt.Sprintf(format, args...))
}

// Import reads the SBML documents into the model.
func (im *Importer) Import(files []token.Token) error {
	defer im.Release()
	docs := make([]*document, 0, len(files))
	for _, f := range files {
		path, data, err := im.read(f)
		if err != nil {
			return err
		}
		doc, err := decode(data)
		if err != nil {
			return im.failf(path, token.LexExpected, "Invalid SBML document: %v", err)
		}
		if im.TemplateInUse() && doc.Level < 2 {
			return im.failf(path, token.BadContext, "Use of a PK template requires SBML level 2.")
		}
		im.files = append(im.files, path)
		docs = append(docs, doc)
	}

	for i, doc := range docs {
		im.logf("reading model %s (sbml level %d)", im.files[i], doc.Level)
		if err := im.declare(im.files[i], doc); err != nil {
			return err
		}
	}
	for i, doc := range docs {
		im.logf("reading differentials in model %s", im.files[i])
		if err := im.construct(im.files[i], doc); err != nil {
			return err
		}
	}
	im.imported = append(im.imported, im.files...)
	im.a.Enter(analyzer.Global)
	return nil
}

// enter switches the analyzer to c for definitions read from path.
func (im *Importer) enter(path string, c analyzer.Context) {
	im.a.At(token.Token{FileName: path})
	im.a.Enter(c)
}

// declare is the first pass over a document.
func (im *Importer) declare(path string, doc *document) error {
	m := &doc.Model
	im.enter(path, analyzer.Sbml)
	if im.TemplateInUse() {
		im.readCompartments(m, true)
	} else {
		im.logf("no PK template given: ignoring SBML compartments")
	}

	im.enter(path, analyzer.Global)
	for _, prm := range m.Parameters {
		if err := im.readParameter(path, prm); err != nil {
			return err
		}
	}
	for _, sp := range m.allSpecies() {
		if err := im.readSpecies(path, sp, false); err != nil {
			return err
		}
	}

	// Function bodies may refer to parameters and species.
	if doc.Level == 1 {
		if len(m.Functions) > 0 {
			im.logf("ignoring function definitions in level 1")
		}
	} else {
		for _, fn := range m.Functions {
			if err := im.readFunction(path, fn); err != nil {
				return err
			}
		}
	}

	im.enter(path, analyzer.Dynamics)
	if doc.Level == 1 {
		if len(m.RateRules) > 0 {
			im.logf("ignoring rate rules in level 1")
		}
	} else {
		for _, rule := range m.RateRules {
			eqn, err := im.flatten(path, rule.Math)
			if err != nil {
				return err
			}
			im.logf("rate for %s = %s", rule.Variable, eqn)
			name := im.modelName(rule.Variable)
			if im.a.Table.Globals.KindOf(name) != symbols.State {
				return im.failf(path, token.BadState, token.Message(token.BadState, name, ""))
			}
			if err := im.a.Define(name, eqn, analyzer.Deriv); err != nil {
				return err
			}
		}
	}

	for _, r := range m.Reactions {
		if err := im.readReaction(path, doc.Level, r); err != nil {
			return err
		}
	}
	return nil
}

// construct is the second pass: template derivatives, then the
// stoichiometric terms of every reaction.
func (im *Importer) construct(path string, doc *document) error {
	m := &doc.Model
	im.enter(path, analyzer.Sbml)
	if im.TemplateInUse() {
		im.readCompartments(m, false)
		for _, sp := range m.allSpecies() {
			if err := im.readSpecies(path, sp, true); err != nil {
				return err
			}
		}
	}

	im.enter(path, analyzer.Dynamics)
	for _, r := range m.Reactions {
		rname := r.key()
		refs := append(append([]speciesRef(nil), r.Reactants...), r.Reactants1...)
		for _, ref := range refs {
			if err := im.addTerm(path, rname, ref, " - "); err != nil {
				return err
			}
		}
		refs = append(append([]speciesRef(nil), r.Products...), r.Products1...)
		for _, ref := range refs {
			if err := im.addTerm(path, rname, ref, " + "); err != nil {
				return err
			}
		}
	}
	return nil
}

// readCompartments resets the local compartments to those of the document,
// the automatic external compartment excepted.
func (im *Importer) readCompartments(m *model, tell bool) {
	local := im.a.Table.LocalCompartments
	local.Reset()
	for _, c := range m.Compartments {
		name := c.key()
		if name == ExternalCompartment || local.Lookup(name) != nil {
			continue
		}
		local.Insert(name, symbols.Equation(c.value()), symbols.Compartment)
		if tell {
			im.logf("compart. %s = %s", name, c.value())
		}
	}
}

// compartment is the compartment reactions of the current document happen
// in, or "" when there is none.
func (im *Importer) compartment() string {
	recs := im.a.Table.LocalCompartments.Records()
	if len(recs) == 0 {
		return ""
	}
	return recs[0].Name
}

// modelName qualifies an SBML name by the document's compartment when a
// template is in use and the name is not a model variable already.
func (im *Importer) modelName(name string) string {
	if !im.TemplateInUse() || im.a.Table.Globals.Lookup(name) != nil {
		return name
	}
	if cpt := im.compartment(); cpt != "" {
		return name + "_" + cpt
	}
	return name
}

func (im *Importer) flatten(path string, m *mathNode) (string, error) {
	if m == nil {
		return "", im.failf(path, token.LexExpected, "Expected <math> element.")
	}
	f := &flattener{ident: im.modelName, call: im.expand}
	eqn, err := f.infix(m)
	if err != nil {
		return "", im.failf(path, token.LexExpected, "%v", err)
	}
	return eqn, nil
}

// expand substitutes the arguments of a call into the body of a function
// definition with bound variables.
func (im *Importer) expand(name string, args []string) (string, bool, error) {
	mc, ok := im.macros[name]
	if !ok {
		return "", false, nil
	}
	if len(args) != len(mc.params) {
		return "", true, fmt.Errorf("function %s takes %d arguments, got %d", name, len(mc.params), len(args))
	}
	bound := make(map[string]string, len(args))
	for i, p := range mc.params {
		bound[p] = "(" + args[i] + ")"
	}
	return "(" + rewrite(mc.body, func(id string) string {
		if s, ok := bound[id]; ok {
			return s
		}
		return id
	}) + ")", true, nil
}

// readFunction records a function definition. One without bound variables
// becomes a Function record; calls of the others are expanded in place.
func (im *Importer) readFunction(path string, fn function) error {
	params, body, err := lambda(fn.Math)
	if err != nil {
		return im.failf(path, token.LexExpected, "function %s: %v", fn.key(), err)
	}
	f := &flattener{ident: func(id string) string { return id }, call: im.expand}
	if len(params) == 0 {
		f.ident = im.modelName
	}
	eqn, err := f.infix(body)
	if err != nil {
		return im.failf(path, token.LexExpected, "function %s: %v", fn.key(), err)
	}
	im.logf("function %s(%s) = %s", fn.key(), strings.Join(params, ", "), eqn)
	if len(params) > 0 {
		im.macros[fn.key()] = macro{params: params, body: eqn}
		return nil
	}
	im.enter(path, analyzer.Dynamics)
	return im.a.Define(fn.key(), eqn, analyzer.Func)
}

func (im *Importer) readParameter(path string, prm parameter) error {
	name := prm.key()
	if im.a.Table.Globals.Lookup(name) != nil {
		return im.failf(path, token.DupDecl, "Redeclaration of parameter %s.", name)
	}
	value := firstOf(prm.Value, "0.0")
	im.logf("param.   %s = %s", name, value)
	return im.a.Define(name, value, analyzer.Plain)
}

// readSpecies declares a species. With a template, species in a declared
// compartment are qualified by it and species in the external compartment
// instantiate the template; derivs selects the second pass of that
// instantiation.
func (im *Importer) readSpecies(path string, sp species, derivs bool) error {
	name := sp.key()
	value := sp.value()

	if !im.TemplateInUse() {
		return im.declareSpecies(name, value, sp.boundary())
	}

	value = "0"
	cpt := firstOf(sp.Compartment, ExternalCompartment)
	if cpt != ExternalCompartment {
		if derivs {
			return nil
		}
		if im.tmpl.Compartments.Lookup(cpt) == nil {
			return im.failf(path, token.Undefined, "Template did not define compartment '%s'.", cpt)
		}
		return im.declareSpecies(name+"_"+cpt, value, sp.boundary())
	}

	if sp.boundary() {
		return im.failf(path, token.BadContext,
			"Species %s is set to boundary; it has to be inside a meaningful compartment.", name)
	}
	if derivs {
		return im.instantiateDerivatives(path, name)
	}
	return im.instantiate(path, name, value)
}

// declareSpecies makes a boundary species a Parameter and any other a
// State with an initial value.
func (im *Importer) declareSpecies(name, value string, boundary bool) error {
	if boundary {
		if im.a.Table.Globals.Lookup(name) != nil {
			return nil
		}
		im.logf("param.   %s = %s  (was boundary species)", name, value)
		return im.a.Define(name, value, analyzer.Plain)
	}
	if im.a.Table.Globals.Lookup(name) != nil {
		return nil
	}
	im.logf("species  %s = %s", name, value)
	if err := im.a.Declare(name, symbols.State); err != nil {
		return err
	}
	return im.a.Define(name, value, analyzer.Plain)
}

func (im *Importer) readReaction(path string, level int, r reaction) error {
	for _, prm := range r.KineticLaw.Parameters {
		if im.a.Table.Globals.Lookup(prm.key()) != nil {
			continue
		}
		im.a.Enter(analyzer.Global)
		err := im.readParameter(path, prm)
		im.a.Enter(analyzer.Dynamics)
		if err != nil {
			return err
		}
	}

	var eqn string
	if level == 1 || r.KineticLaw.Math == nil {
		eqn = strings.TrimSpace(r.KineticLaw.Formula)
		if eqn == "" {
			return im.failf(path, token.LexExpected, "Reaction %s has no kinetic law.", r.key())
		}
	} else {
		var err error
		if eqn, err = im.flatten(path, r.KineticLaw.Math); err != nil {
			return err
		}
	}
	im.logf("reaction %s = %s", r.key(), eqn)
	return im.a.Define(r.key(), eqn, analyzer.Plain)
}

// addTerm appends the rate of reaction rname, scaled by the
// stoichiometry, to the derivative of the referenced species.
func (im *Importer) addTerm(path, rname string, ref speciesRef, sign string) error {
	name := im.modelName(ref.name())
	stoich := firstOf(ref.Stoichiometry, "1")
	n, err := strconv.ParseFloat(stoich, 64)
	if err != nil {
		return im.failf(path, token.LexExpected, "Invalid stoichiometry '%s' for %s.", stoich, name)
	}
	im.logf("%s stoichio: %s", name, stoich)

	switch im.a.Table.Globals.KindOf(name) {
	case symbols.State:
	case symbols.Parameter:
		return nil
	default:
		im.a.At(token.Token{FileName: path})
		return im.a.Report(token.Fatal, token.BadState, name, "")
	}

	rec := derivative(im.a.Table.Dynamics, name)
	if rec == nil {
		if err := im.a.Define(name, "", analyzer.Deriv); err != nil {
			return err
		}
		rec = derivative(im.a.Table.Dynamics, name)
	}
	eqn, _ := rec.Equation()
	term := rname
	if n != 1 {
		term = stoich + " * " + rname
	}
	rec.SetContent(symbols.Equation(eqn + sign + term))
	return nil
}

func derivative(s *symbols.Stack, name string) *symbols.Record {
	recs := s.Records()
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Name == name && recs[i].Kind == symbols.Derivative {
			return recs[i]
		}
	}
	return nil
}

// rewrite re-lexes eqn and maps every identifier that is not a math
// function through fn. Spacing follows the original text.
func rewrite(eqn string, fn func(string) string) string {
	var b strings.Builder
	for _, tok := range lexer.New("", eqn).Tokens() {
		text := tok.String()
		if tok.Type == token.IDENT && !builtins.IsMathFunc(tok.Literal) {
			text = fn(tok.Literal)
		}
		if b.Len() > 0 && tok.Space {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}
