package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/simmod/symbols"
)

func generate(t *testing.T, src string, v Variant) string {
	t.Helper()
	m := analyze(t, src, v)
	m.Source = "pk.model"
	return Generate(NewGenerator(v, m))
}

// requireOrdered checks that every line appears in out, in order.
func requireOrdered(t *testing.T, out string, lines ...string) {
	t.Helper()
	rest := out
	for _, l := range lines {
		i := strings.Index(rest, l+"\n")
		require.GreaterOrEqual(t, i, 0, "missing or out of order: %q\n%s", l, out)
		rest = rest[i+len(l):]
	}
}

func TestPlainIndexMacros(t *testing.T) {
	out := generate(t, pkModel, Plain)
	requireOrdered(t, out,
		"#define ID_A 0x00000",
		"#define ID_B 0x00001",
		"#define ID_Y 0x00002",
		"#define ID_Dose 0x00000",
		"#define ID_k 0x00004",
	)
}

func TestPlainDeclarations(t *testing.T) {
	out := generate(t, pkModel, Plain)
	requireOrdered(t, out,
		`char szModelDescFilename[] = "pk.model";`,
		"int vnStates = 2;",
		"int vnOutputs = 1;",
		"int vnModelVars = 3;",
		"int vnInputs = 1;",
		"int vnParms = 1;",
		"double vrgModelVars[3];",
		"IFN vrgInputs[1];",
		"double k;",
		"BOOL bDelays = 0;",
		"VMMAPSTRCT vrgvmGlo[] = {",
		`  {"A", (PVOID) &vrgModelVars[ID_A], ID_STATE | ID_A},`,
		`  {"B", (PVOID) &vrgModelVars[ID_B], ID_STATE | ID_B},`,
		`  {"Dose", (PVOID) &vrgInputs[ID_Dose], ID_INPUT | ID_Dose},`,
		`  {"Y", (PVOID) &vrgModelVars[ID_Y], ID_OUTPUT | ID_Y},`,
		`  {"k", (PVOID) &k, ID_PARM | ID_k},`,
		`  {"", NULL, 0} /* End flag */`,
	)
}

func TestPlainSummary(t *testing.T) {
	out := generate(t, pkModel, Plain)
	requireOrdered(t, out,
		"   2 States:",
		"     A -> 10;",
		"     B -> 0.0;",
		"   1 Output:",
		"     Y -> 0.0;",
		"   1 Input:",
		"     Dose (is a function)",
		"   1 Parameter:",
		"     k -> 0.1;",
	)
}

func TestPlainInitModel(t *testing.T) {
	out := generate(t, pkModel, Plain)
	requireOrdered(t, out,
		"void InitModel(void)",
		"  vrgModelVars[ID_A] = 0.0;",
		"  vrgModelVars[ID_B] = 0.0;",
		"  vrgInputs[ID_Dose].iType = IH_PERDOSE;",
		"  vrgInputs[ID_Dose].bOn = FALSE;",
		"  vrgInputs[ID_Dose].dMag = 1.0;",
		"  vrgInputs[ID_Dose].hMag = 0;",
		"  vrgInputs[ID_Dose].dTper = 24.0;",
		"  vrgInputs[ID_Dose].dT0 = 0.0;",
		"  vrgInputs[ID_Dose].dTexp = 0.5;",
		"  vrgInputs[ID_Dose].nDoses = 0;",
		"  vrgModelVars[ID_Y] = 0.0;",
		"  k = 0.1;",
		"  vrgModelVars[ID_A] = 10;",
		"  vbModelReinitd = TRUE;",
		"} /* InitModel */",
	)
}

const promotedModel = "A = 5;\nStates = { A };\nDynamics { dt(A) = -A; }\nEnd.\n"

func TestPlainPromotedInitialValue(t *testing.T) {
	out := generate(t, promotedModel, Plain)
	requireOrdered(t, out,
		"   1 State:",
		"     A -> 5;",
		"void InitModel(void)",
		"  vrgModelVars[ID_A] = 5;",
		"} /* InitModel */",
	)
	assert.NotContains(t, out, "vrgModelVars[ID_A] = 0.0;")
}

func TestDeSolvePromotedInitialValue(t *testing.T) {
	out := generate(t, promotedModel, DeSolve)
	requireOrdered(t, out,
		"/* Default values:",
		"     A = 5",
		"*/",
	)
}

func TestPlainDosingDependency(t *testing.T) {
	src := strings.Replace(pkModel, "PerDose(1, 24, 0, 0.5)", "PerDose(k, 24, 0, 0.5)", 1)
	out := generate(t, src, Plain)
	assert.Contains(t, out, "  vrgInputs[ID_Dose].dMag = 0.0;\n")
	assert.Contains(t, out, "  vrgInputs[ID_Dose].hMag = ID_PARM | 0x00004 /* k */;\n")
}

func TestPlainNDoses(t *testing.T) {
	src := "States = { A };\nInputs = { D };\nD = NDoses(2, 1, 2, 0, 10, 1, 1);\nDynamics { dt(A) = D; }\nEnd.\n"
	out := generate(t, src, Plain)
	requireOrdered(t, out,
		"  vrgInputs[ID_D].iType = IH_NDOSES;",
		"  vrgInputs[ID_D].nDoses = 2;",
		"  vrgInputs[ID_D].rgMags = (double *) malloc(2 * sizeof(double));",
		"  vrgInputs[ID_D].rgMags[0] = 1.0;",
		"  vrgInputs[ID_D].rgMags[1] = 2.0;",
		"  vrgInputs[ID_D].rgT0s[1] = 10.0;",
		"  vrgInputs[ID_D].rgTexps[0] = 1.0;",
	)
}

func TestPlainDynamics(t *testing.T) {
	out := generate(t, pkModel, Plain)
	requireOrdered(t, out,
		"void CalcDeriv (double  rgModelVars[], double  rgDerivs[], PDOUBLE pdTime)",
		"{",
		"  /* local */",
		"  double tmp;",
		"  CalcInputs (pdTime); /* Get new input vals */",
		"  tmp = k * rgModelVars[ID_A];",
		"  rgDerivs[ID_A] = -tmp + vrgInputs[ID_Dose].dVal;",
		"  rgDerivs[ID_B] = tmp;",
		"} /* CalcDeriv */",
		"void CalcOutputs (double  rgModelVars[], double  rgDerivs[], PDOUBLE pdTime)",
		"  rgModelVars[ID_Y] = rgModelVars[ID_A] + rgModelVars[ID_B];",
		"} /* CalcOutputs */",
	)
	// The blank line of the model separates the two derivatives.
	assert.Contains(t, out, "vrgInputs[ID_Dose].dVal;\n\n  rgDerivs[ID_B]")
}

func TestPlainRoutinesAlwaysPresent(t *testing.T) {
	out := generate(t, pkModel, Plain)
	for _, name := range []string{"InitModel", "CalcDeriv", "CalcJacob", "ScaleModel", "CalcOutputs", "CalcEvents", "CalcRoots"} {
		assert.Contains(t, out, "} /* "+name+" */\n")
	}
	assert.True(t, strings.HasSuffix(out, "/* End */\n"))
}

func TestPlainSections(t *testing.T) {
	src := `States = { A };
Parameters = { V };
V = 2;
Dynamics { dt(A) = -A / V + t; }
Scale { V = V * 1000; }
Jacobian { J = -1 / V; }
Events { A = 0; }
Roots { r = A - 1; A = A - 2; }
End.
`
	out := generate(t, src, Plain)
	requireOrdered(t, out,
		"  rgDerivs[ID_A] = -rgModelVars[ID_A] / V + (*pdTime);",
		"void CalcJacob (PDOUBLE pdTime, double rgModelVars[], double rgPDerivs[], double rgJacob[])",
		"  double J;",
		"  J = -1 / V;",
		"void ScaleModel (PDOUBLE pdTime)",
		"  V = V * 1000;",
		"void CalcEvents (double rgModelVars[], PDOUBLE pdTime)",
		"  rgModelVars[ID_A] = 0;",
		"void CalcRoots (double rgModelVars[], double rgRoots[], PDOUBLE pdTime)",
		"  double r;",
		"  r = rgModelVars[ID_A] - 1;",
		"  rgRoots[0] = r;",
		"  rgRoots[1] = rgModelVars[ID_A] - 2;",
	)
}

func TestPlainDelaysAndInline(t *testing.T) {
	src := "States = { A };\nDynamics {\n  dt(A) = -CalcDelay(A, 2);\n  Inline( printf(\"%g\\n\", A); );\n}\nEnd.\n"
	out := generate(t, src, Plain)
	assert.Contains(t, out, "BOOL bDelays = 1;\n")
	requireOrdered(t, out,
		"  rgDerivs[ID_A] = -CalcDelay(ID_A, (*pdTime), 2);",
		`  printf("%g\n", A);`,
	)
}

func TestDeSolve(t *testing.T) {
	out := generate(t, pkModel, DeSolve)
	requireOrdered(t, out,
		"/* Model variables: States */",
		"#define ID_A 0x00000",
		"#define ID_B 0x00001",
		"/* Model variables: Outputs */",
		"#define ID_Y 0x00000",
		"static double parms[1];",
		"#define k parms[0]",
		"static double forc[1];",
		"#define Dose forc[0]",
		"void initmod (void (* odeparms)(int *, double *))",
		"  int N=1;",
		"void initforc (void (* odeforcs)(int *, double *))",
		"     A = 10",
		"     k = 0.1",
		"void derivs (int *neq, double *pdTime, double *y, double *ydot, double *yout, int *ip)",
		"  double tmp;",
		"  tmp = k * y[ID_A];",
		"  ydot[ID_A] = -tmp + Dose;",
		"  ydot[ID_B] = tmp;",
		"  /* Outputs */",
		"  yout[ID_Y] = y[ID_A] + y[ID_B];",
		"} /* derivs */",
		"} /* jac */",
		"void getParms (double *inParms, double *out, int *nout) {",
		"} /* event */",
		"} /* root */",
		"/* End */",
	)
	assert.Equal(t, 1, strings.Count(out, "void getParms"))
	assert.NotContains(t, out, "lagvalue")
}

func TestDeSolveDelays(t *testing.T) {
	src := "States = { A };\nDynamics { dt(A) = -CalcDelay(A, 2); }\nEnd.\n"
	out := generate(t, src, DeSolve)
	requireOrdered(t, out,
		"#include <R_ext/Applic.h>",
		"double CalcDelay(int hvar, double dTime, double delay) {",
		"  ydot[ID_A] = -CalcDelay(ID_A, (*pdTime), 2);",
	)
}

func TestNewGeneratorNeedsSealedTable(t *testing.T) {
	m := &Model{Table: symbols.NewTable()}
	assert.Panics(t, func() { NewGenerator(Plain, m) })
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "plain", Plain.String())
	assert.Equal(t, "deSolve", DeSolve.String())

	for _, s := range []string{"", "plain", "C"} {
		v, err := ParseVariant(s)
		require.NoError(t, err)
		assert.Equal(t, Plain, v, s)
	}
	for _, s := range []string{"deSolve", "R"} {
		v, err := ParseVariant(s)
		require.NoError(t, err)
		assert.Equal(t, DeSolve, v, s)
	}
	_, err := ParseVariant("fortran")
	assert.ErrorContains(t, err, `unknown output variant "fortran"`)
}
