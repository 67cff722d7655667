package compiler

import (
	"github.com/thiremani/simmod/analyzer"
	"github.com/thiremani/simmod/symbols"
)

// rGenerator writes a model file for the R deSolve package. Parameters and
// Inputs (forcing functions) are macros over the arrays deSolve fills;
// States, derivatives and Outputs are the y, ydot and yout arguments.
type rGenerator struct {
	emitter
}

func newRGenerator(m *Model) *rGenerator {
	return &rGenerator{emitter: newEmitter(m)}
}

var rNames = namer{
	variable: func(r *symbols.Record) string {
		switch r.Kind {
		case symbols.State:
			return "y[" + IndexName(r.Name) + "]"
		case symbols.Output:
			return "yout[" + IndexName(r.Name) + "]"
		}
		return r.Name
	},
	deriv: func(name string) string {
		return "ydot[" + IndexName(name) + "]"
	},
	time: "(*pdTime)",
}

func (g *rGenerator) translator(c analyzer.Context) *translator {
	return &translator{tab: g.tab, local: c.LocalKind(), names: rNames}
}

func (g *rGenerator) Header() {
	g.line("/* " + g.m.OutputName() + " for R deSolve package")
	g.line("   ___________________________________________________")
	g.line("")
	g.printf("   Model File:  %s\n", g.m.Source)
	g.line("")
	g.printf("   Date:  %s\n", g.m.Date)
	g.line("")
	g.printf("   Created by:  \"%s\"\n", g.m.Generator)
	g.line("   ___________________________________________________")
	g.line("")
	g.summary()
	g.line("*/")
	g.line("")
	g.line("#include <R.h>")
	g.line("#include <Rinternals.h>")
	g.line("#include <Rdefines.h>")
	g.line("#include <R_ext/Rdynload.h>")
	if g.m.Delays {
		g.line("#include <R_ext/Applic.h>")
	}
	g.line("")
}

// IndexMacros numbers States and Outputs separately: they live in
// different deSolve arrays.
func (g *rGenerator) IndexMacros() {
	for _, grp := range []struct {
		title string
		kind  symbols.Kind
	}{{"States", symbols.State}, {"Outputs", symbols.Output}} {
		g.printf("/* Model variables: %s */\n", grp.title)
		for _, s := range g.slotsOf(grp.kind) {
			g.printf("#define %s 0x%05x\n", IndexName(s.Record.Name), s.Handle.Ordinal)
		}
		g.line("")
	}
}

// Declarations maps Parameters onto parms and Inputs onto forc.
func (g *rGenerator) Declarations() {
	parms, inputs := g.slotsOf(symbols.Parameter), g.slotsOf(symbols.Input)

	g.line("/* Parameters */")
	g.printf("static double parms[%d];\n", arraySize(len(parms)))
	g.line("")
	for _, s := range parms {
		g.printf("#define %s parms[%d]\n", s.Record.Name, s.Handle.Ordinal)
	}
	g.line("")
	g.line("/* Forcing (Input) functions */")
	g.printf("static double forc[%d];\n", arraySize(len(inputs)))
	g.line("")
	for _, s := range inputs {
		g.printf("#define %s forc[%d]\n", s.Record.Name, s.Handle.Ordinal)
	}
	g.line("")
	if g.m.Delays {
		g.delays()
	}
}

// delays writes CalcDelay over the lagvalue service of deSolve.
func (g *rGenerator) delays() {
	g.line("/* Function definitions for delay differential equations */")
	g.line("")
	g.line("int Nout=1;")
	g.printf("int nr[%d]={0};\n", arraySize(g.counts[symbols.Output]))
	g.line("double ytau[1] = {0.0};")
	g.line("")
	g.line("static double yini[1] = {0.0};")
	g.line("void lagvalue(double T, int *nr, int N, double *ytau) {")
	g.line("  static void(*fun)(double, int*, int, double*) = NULL;")
	g.line("  if (fun == NULL)")
	g.line("    fun = (void(*)(double, int*, int, double*))R_GetCCallable(\"deSolve\", \"lagvalue\");")
	g.line("  return fun(T, nr, N, ytau);")
	g.line("}")
	g.line("")
	g.line("double CalcDelay(int hvar, double dTime, double delay) {")
	g.line("  double T = dTime-delay;")
	g.line("  if (dTime > delay) {")
	g.line("    nr[0] = hvar;")
	g.line("    lagvalue( T, nr, Nout, ytau );")
	g.line("  }")
	g.line("  else {")
	g.line("    ytau[0] = yini[hvar];")
	g.line("  }")
	g.line("  return(ytau[0]);")
	g.line("}")
	g.line("")
}

// Initializer writes the deSolve entry points that receive the parameter
// and forcing arrays. Initial values stay on the R side; they are listed
// in a comment.
func (g *rGenerator) Initializer() {
	g.line("/*----- Initializers */")
	g.line("void initmod (void (* odeparms)(int *, double *))")
	g.line("{")
	g.printf("  int N=%d;\n", g.counts[symbols.Parameter])
	g.line("  odeparms(&N, parms);")
	g.line("}")
	g.line("")
	g.line("void initforc (void (* odeforcs)(int *, double *))")
	g.line("{")
	g.printf("  int N=%d;\n", g.counts[symbols.Input])
	g.line("  odeforcs(&N, forc);")
	g.line("}")
	g.line("")
	g.line("/* Default values:")
	for _, s := range g.slots {
		if s.Record.Kind == symbols.Input {
			if d := s.Record.Dosing(); d != nil {
				g.printf("     %s = %s (forcing)\n", s.Record.Name, d.Spec)
			}
			continue
		}
		if eqn, ok := g.initialValue(s.Record); ok {
			g.printf("     %s = %s\n", s.Record.Name, eqn)
		}
	}
	g.line("*/")
	g.line("")
}

// Scale writes getParms, which copies the parameters passed from R,
// applies the Scale equations and returns the result.
func (g *rGenerator) Scale() {
	tr := g.translator(analyzer.Scale)
	g.line("/* Calling R code will ensure that input y has same")
	g.line("   dimension as number of state variables. */")
	g.line("")
	g.line("void getParms (double *inParms, double *out, int *nout) {")
	g.line("/*----- Model scaling */")
	g.line("")
	g.line("  int i;")
	g.line("")
	g.line("  for (i = 0; i < *nout; i++) {")
	g.line("    parms[i] = inParms[i];")
	g.line("  }")
	g.line("")
	g.declareLocals(locals(g.tab.Scale, symbols.LocalScale))
	g.equations(g.tab.Scale, tr)
	g.line("")
	g.line("  for (i = 0; i < *nout; i++) {")
	g.line("    out[i] = parms[i];")
	g.line("  }")
	g.line("}")
	g.line("")
}

// Derivatives writes derivs. deSolve expects the outputs from the same
// call, so the CalcOutputs equations follow the Dynamics ones.
func (g *rGenerator) Derivatives() {
	dyn, out := g.translator(analyzer.Dynamics), g.translator(analyzer.CalcOutputs)
	g.line("/*----- Dynamics section */")
	g.line("")
	g.line("void derivs (int *neq, double *pdTime, double *y, double *ydot, double *yout, int *ip)")
	g.line("{")
	vars := recordNames(g.functions())
	vars = append(vars, locals(g.tab.Dynamics, symbols.LocalDyn)...)
	vars = append(vars, locals(g.tab.CalcOutputs, symbols.LocalCalcOut)...)
	g.declareLocals(vars)
	g.defineFunctions(dyn)
	g.equations(g.tab.Dynamics, dyn)
	if g.tab.CalcOutputs.Len() > 0 {
		g.line("")
		g.line("  /* Outputs */")
		g.equations(g.tab.CalcOutputs, out)
	}
	g.line("")
	g.line("} /* derivs */")
	g.line("")
}

func (g *rGenerator) Jacobian() {
	tr := g.translator(analyzer.Jacobian)
	g.line("/*----- Jacobian calculations: */")
	g.line("void jac (int *neq, double *pdTime, double *y, int *ml, int *mu, double *pd, int *nrowpd, double *yout, int *ip)")
	g.line("{")
	g.declareLocals(locals(g.tab.Jacobian, symbols.LocalJacob))
	g.equations(g.tab.Jacobian, tr)
	g.line("")
	g.line("} /* jac */")
	g.line("")
}

// CalcOutputs has no routine of its own in this variant; see Derivatives.
func (g *rGenerator) CalcOutputs() {}

func (g *rGenerator) Events() {
	tr := g.translator(analyzer.Events)
	g.line("/*----- Events calculations: */")
	g.line("void event (int *n, double *pdTime, double *y)")
	g.line("{")
	g.declareLocals(locals(g.tab.Events, symbols.LocalEvent))
	g.equations(g.tab.Events, tr)
	g.line("")
	g.line("} /* event */")
	g.line("")
}

func (g *rGenerator) Roots() {
	tr := g.translator(analyzer.Roots)
	g.line("/*----- Roots calculations: */")
	g.line("void root (int *neq, double *pdTime, double *y, int *ng, double *gout, double *out, int *ip)")
	g.line("{")
	g.declareLocals(locals(g.tab.Roots, symbols.LocalRoot))
	g.roots(tr, "gout")
	g.line("")
	g.line("} /* root */")
	g.line("")
	g.line("")
	g.line("/* End */")
}
