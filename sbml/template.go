package sbml

import (
	"strings"

	"github.com/thiremani/simmod/analyzer"
	"github.com/thiremani/simmod/builtins"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/parser"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

// TemplateMarker prefixes the template variables that are cloned once per
// species.
const TemplateMarker = "_"

// LoadTemplate parses a PK template written in the native grammar. Its
// compartments become compartments of the model; the rest is instantiated
// per species by the SBML documents that follow.
func (im *Importer) LoadTemplate(file token.Token) error {
	if im.tmpl != nil {
		im.a.At(file)
		return im.a.Report(token.Fatal, token.DupSect, builtins.PKTemplate, "")
	}
	path, data, err := im.read(file)
	if err != nil {
		return err
	}

	tab := symbols.NewTable()
	ta := analyzer.New(tab, im.a.Reporter(), analyzer.Options{})
	if err := parser.New(lexer.New(path, string(data)), ta, im.opts).ParseModel(); err != nil {
		return err
	}
	im.tmpl = tab
	im.logf("template %s", path)

	im.a.At(file)
	for _, r := range tab.Compartments.Records() {
		if err := im.a.Declare(r.Name, symbols.Compartment); err != nil {
			return err
		}
	}
	return nil
}

// mangler splices the species name in front of marked template names.
func mangler(species string) func(string) string {
	return func(name string) string {
		if strings.HasPrefix(name, TemplateMarker) {
			return species + name
		}
		return name
	}
}

// templateValue is the source text of the value the template gives r.
func (im *Importer) templateValue(r *symbols.Record) (string, bool) {
	if d := r.Dosing(); d != nil {
		return d.Spec, true
	}
	return im.tmpl.Globals.InitialValue(r)
}

// instantiate clones the template variables for one species of the
// external compartment, then its algebraic equations.
func (im *Importer) instantiate(path, species, value string) error {
	mangle := mangler(species)
	im.enter(path, analyzer.Global)
	for _, r := range im.tmpl.Globals.Records() {
		if !r.HasSlot() {
			continue
		}
		name := mangle(r.Name)
		if im.a.Table.Globals.Lookup(name) != nil {
			continue
		}
		if !r.Placeholder {
			if err := im.a.Declare(name, r.Kind); err != nil {
				return err
			}
		}
		v, ok := im.templateValue(r)
		switch {
		case ok:
			v = rewrite(v, mangle)
		case r.Kind == symbols.State && name != r.Name:
			v = value
		default:
			continue
		}
		im.logf("%-8s %s = %s", strings.ToLower(r.Kind.String()), name, v)
		if err := im.a.Define(name, v, analyzer.Plain); err != nil {
			return err
		}
	}

	sections := []struct {
		ctx    analyzer.Context
		from   *symbols.Stack
		target *symbols.Stack
	}{
		{analyzer.Dynamics, im.tmpl.Dynamics, im.a.Table.Dynamics},
		{analyzer.Scale, im.tmpl.Scale, im.a.Table.Scale},
		{analyzer.CalcOutputs, im.tmpl.CalcOutputs, im.a.Table.CalcOutputs},
	}
	for _, s := range sections {
		im.enter(path, s.ctx)
		for _, r := range s.from.Records() {
			if r.Kind == symbols.Derivative {
				continue
			}
			if err := im.transcribe(r, mangle, s.target, analyzer.Plain); err != nil {
				return err
			}
		}
	}
	im.enter(path, analyzer.Global)
	return nil
}

// instantiateDerivatives transcribes the template's derivatives for one
// species.
func (im *Importer) instantiateDerivatives(path, species string) error {
	mangle := mangler(species)
	im.enter(path, analyzer.Dynamics)
	for _, r := range im.tmpl.Dynamics.Records() {
		if r.Kind != symbols.Derivative {
			continue
		}
		if err := im.transcribe(r, mangle, im.a.Table.Dynamics, analyzer.Deriv); err != nil {
			return err
		}
	}
	return nil
}

// transcribe copies one template equation into target, unless target
// already has it. Inline code is copied verbatim.
func (im *Importer) transcribe(r *symbols.Record, mangle func(string) string, target *symbols.Stack, form analyzer.Form) error {
	name := mangle(r.Name)
	if form == analyzer.Deriv {
		if derivative(target, name) != nil {
			return nil
		}
	} else if target.Lookup(name) != nil {
		return nil
	}

	eqn, _ := r.Equation()
	if r.Kind == symbols.Inline {
		im.logf("inline   %s", eqn)
		return im.a.Define(builtins.Inline, eqn, analyzer.InlineCode)
	}
	eqn = rewrite(eqn, mangle)
	if form == analyzer.Deriv {
		im.logf("template ODE term for %s = %s", name, eqn)
	} else {
		im.logf("local v. %s = %s", name, eqn)
	}
	return im.a.Define(name, eqn, form)
}
