package parser

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/simmod/analyzer"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

func newParser(src string, opts Options) (*Parser, *analyzer.Analyzer, *bytes.Buffer) {
	var out bytes.Buffer
	a := analyzer.New(symbols.NewTable(), analyzer.NewReporter(&out, 0), analyzer.Options{})
	p := New(lexer.New("test.model", src), a, opts)
	return p, a, &out
}

func parse(t *testing.T, src string) (*analyzer.Analyzer, *bytes.Buffer, error) {
	t.Helper()
	p, a, out := newParser(src, Options{})
	return a, out, p.ParseModel()
}

func requireFatal(t *testing.T, err error, code token.Code) {
	t.Helper()
	var ce *token.CompileError
	require.True(t, errors.As(err, &ce), "expected a compile error, got %v", err)
	assert.Equal(t, token.Fatal, ce.Severity)
	assert.Equal(t, code, ce.Code, ce.Error())
}

func equation(t *testing.T, s *symbols.Stack, name string) string {
	t.Helper()
	r := s.Lookup(name)
	require.NotNil(t, r, "no record %s in %s", name, s.Name)
	eqn, ok := r.Equation()
	require.True(t, ok, "record %s has no equation", name)
	return eqn
}

const decayModel = `# one compartment
States = { A };
Outputs = { Y };
k = 0.1;
A = 10;

Dynamics {
  tmp = k * A;
  dt(A) = -tmp;
}

CalcOutputs { Y = A / 2; }
End.
`

func TestParseModel(t *testing.T) {
	a, out, err := parse(t, decayModel)
	require.NoError(t, err)
	require.NoError(t, a.Finish())
	assert.Empty(t, out.String())

	tab := a.Table
	assert.Equal(t, symbols.State, tab.Globals.KindOf("A"))
	assert.Equal(t, symbols.Output, tab.Globals.KindOf("Y"))
	assert.Equal(t, symbols.Parameter, tab.Globals.KindOf("k"))
	assert.Equal(t, symbols.LocalDyn, tab.Globals.KindOf("tmp"))

	assert.Equal(t, "10", equation(t, tab.Globals, "A"))
	assert.Equal(t, "k * A", equation(t, tab.Dynamics, "tmp"))
	assert.Equal(t, "-tmp", equation(t, tab.Dynamics, "A"))
	assert.Equal(t, "A / 2", equation(t, tab.CalcOutputs, "Y"))
	assert.Equal(t, analyzer.End, a.Context())
}

func TestEndOfInputInGlobal(t *testing.T) {
	src := "States = { A };\nDynamics { dt(A) = 0; }\n"
	p, a, _ := newParser(src, Options{})
	require.NoError(t, p.ParseModel())
	assert.False(t, p.Done())
	require.NoError(t, a.Finish())
}

func TestMissingEnd(t *testing.T) {
	_, out, err := parse(t, "States = { A };\nDynamics {\n  dt(A) = 0;\n")
	requireFatal(t, err, token.NoEnd)
	assert.Contains(t, out.String(), "End keyword is missing")
}

func TestDuplicateSection(t *testing.T) {
	src := "States = { A };\nDynamics { dt(A) = 0; }\nDynamics { }\n"
	_, _, err := parse(t, src)
	requireFatal(t, err, token.DupSect)
}

func TestSectionInsideSection(t *testing.T) {
	_, _, err := parse(t, "Dynamics { Scale { } }")
	requireFatal(t, err, token.BadContext)
}

func TestDeclarationSeparators(t *testing.T) {
	a, _, err := parse(t, "States { A; B, C }\nInputs = { D };\nCompartments = { Liver };\nEnd")
	require.NoError(t, err)
	tab := a.Table
	for _, name := range []string{"A", "B", "C"} {
		assert.Equal(t, symbols.State, tab.Globals.KindOf(name), name)
	}
	assert.Equal(t, symbols.Input, tab.Globals.KindOf("D"))
	assert.Equal(t, symbols.Compartment, tab.Compartments.KindOf("Liver"))
}

func TestArrays(t *testing.T) {
	src := `States = { B[0-3] };
Parameters = { W[2] };
k = 0.5;
X[1-3] = 2 * j;
Dynamics {
  dt(B[0-3]) = -k * B[j];
}
CalcOutputs { }
End.
`
	a, _, err := parse(t, src)
	require.NoError(t, err)
	tab := a.Table

	assert.Equal(t, 3, tab.Count(symbols.State))
	for _, name := range []string{"B_0", "B_1", "B_2"} {
		assert.Equal(t, symbols.State, tab.Globals.KindOf(name), name)
	}
	assert.Nil(t, tab.Globals.Lookup("B_3"))
	assert.Equal(t, symbols.Parameter, tab.Globals.KindOf("W_0"))
	assert.Equal(t, symbols.Parameter, tab.Globals.KindOf("W_1"))

	assert.Equal(t, "2 * 1", equation(t, tab.Globals, "X_1"))
	assert.Equal(t, "2 * 2", equation(t, tab.Globals, "X_2"))
	assert.Nil(t, tab.Globals.Lookup("X_3"))

	assert.Equal(t, "-k * B_0", equation(t, tab.Dynamics, "B_0"))
	assert.Equal(t, "-k * B_2", equation(t, tab.Dynamics, "B_2"))
}

func TestArrayReferenceWithExpression(t *testing.T) {
	src := "States = { B[0-4] };\nDynamics {\n  dt(B[1-4]) = B[j-1] - B[j];\n  dt(B_0) = -B[(1+1)*0];\n}\n"
	a, _, err := parse(t, src)
	require.NoError(t, err)
	assert.Equal(t, "B_0 - B_1", equation(t, a.Table.Dynamics, "B_1"))
	assert.Equal(t, "B_2 - B_3", equation(t, a.Table.Dynamics, "B_3"))
	assert.Equal(t, "-B_0", equation(t, a.Table.Dynamics, "B_0"))
}

func TestDerivativeOfNonState(t *testing.T) {
	_, out, err := parse(t, "k = 1;\nDynamics { dt(k) = 0; }\n")
	requireFatal(t, err, token.BadState)
	assert.Contains(t, out.String(), "test.model:2")
}

func TestDerivativeOutsideDynamics(t *testing.T) {
	_, _, err := parse(t, "States = { A };\nScale { dt(A) = 0; }\n")
	requireFatal(t, err, token.BadContext)
}

func TestInline(t *testing.T) {
	src := "States = { A };\nDynamics {\n  Inline( printf(\"step\\n\"); );\n  dt(A) = 0;\n}\nEnd.\n"
	a, _, err := parse(t, src)
	require.NoError(t, err)
	recs := a.Table.Dynamics.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, symbols.Inline, recs[0].Kind)
	eqn, _ := recs[0].Equation()
	assert.Equal(t, `printf("step\n");`, eqn)
	assert.Equal(t, symbols.Derivative, recs[1].Kind)
}

func TestUnterminatedInline(t *testing.T) {
	_, _, err := parse(t, "Inline( x = 1;\n")
	requireFatal(t, err, token.UnbalPar)
}

func TestBlankLinesSetSpace(t *testing.T) {
	src := "k = 1;\nDynamics {\n  a = k;\n\n  b = k;\n  c = k;\n}\n"
	a, _, err := parse(t, src)
	require.NoError(t, err)
	recs := a.Table.Dynamics.Records()
	require.Len(t, recs, 3)
	assert.False(t, recs[0].Space)
	assert.True(t, recs[1].Space)
	assert.False(t, recs[2].Space)
}

func TestNameTooLong(t *testing.T) {
	name := strings.Repeat("x", DefaultMaxName+1)
	_, out, err := parse(t, name+" = 1;")
	requireFatal(t, err, token.NameTooLong)
	assert.Contains(t, out.String(), "80")

	_, _, err = parse(t, strings.Repeat("x", DefaultMaxName)+" = 1;")
	require.NoError(t, err)
}

func TestEquationTooLong(t *testing.T) {
	p, _, _ := newParser("k = 1 + 2 + 3 + 4 + 5 + 6;", Options{MaxEquation: 10})
	requireFatal(t, p.ParseModel(), token.EqnTooLong)
}

func TestUnbalancedParentheses(t *testing.T) {
	tests := []string{
		"k = (1 + 2;",
		"k = 1 + 2);",
		"k = (1 + 2",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, _, err := parse(t, src)
			requireFatal(t, err, token.UnbalPar)
		})
	}
}

func TestErrorsContinue(t *testing.T) {
	src := "States = { A };\n3 = 4;\nk 5;\nDynamics { dt(A) = 0; }\n"
	a, out, err := parse(t, src)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Reporter().Errors())
	assert.Equal(t, []token.Code{token.Unexpected, token.Expected}, a.Reporter().Codes())
	assert.Contains(t, out.String(), "error: test.model:2")

	// The model is parsed to the end but rejected.
	assert.Equal(t, symbols.Derivative, a.Table.Dynamics.KindOf("A"))
	assert.ErrorIs(t, a.Finish(), analyzer.ErrRejected)
}

func TestTooManyErrors(t *testing.T) {
	src := strings.Repeat("3;\n", analyzer.DefaultMaxErrors+1)
	a, _, err := parse(t, src)
	requireFatal(t, err, token.Unexpected)
	assert.Equal(t, analyzer.DefaultMaxErrors, a.Reporter().Errors())
}

func TestMissingSemicolonBeforeBrace(t *testing.T) {
	src := "States = { A };\nDynamics { dt(A) = 0 }\n"
	a, _, err := parse(t, src)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Reporter().Errors())
	assert.Equal(t, analyzer.Global, a.Context())
}

type fakeImporter struct {
	template token.Token
	files    []string
}

func (f *fakeImporter) LoadTemplate(file token.Token) error {
	f.template = file
	return nil
}

func (f *fakeImporter) Import(files []token.Token) error {
	for _, tok := range files {
		f.files = append(f.files, tok.Literal)
	}
	return nil
}

func TestDirectives(t *testing.T) {
	src := "PKTemplate = { \"pk.model\" };\nSBMLModels = { \"a.xml\", \"b.xml\" };\nEnd.\n"
	p, _, _ := newParser(src, Options{})
	imp := &fakeImporter{}
	p.SetImporter(imp)
	require.NoError(t, p.ParseModel())
	assert.Equal(t, "pk.model", imp.template.Literal)
	assert.Equal(t, []string{"a.xml", "b.xml"}, imp.files)
}

func TestDirectiveWithoutImporter(t *testing.T) {
	_, _, err := parse(t, "SBMLModels = { \"a.xml\" };")
	requireFatal(t, err, token.BadContext)
}

func TestArrayBoundsFollowMaxIndex(t *testing.T) {
	parseWith := func(src string) error {
		a := analyzer.New(symbols.NewTable(), analyzer.NewReporter(&bytes.Buffer{}, 0), analyzer.Options{MaxIndex: 4})
		return New(lexer.New("test.model", src), a, Options{}).ParseModel()
	}

	err := parseWith("States = { B[5] };\nEnd.\n")
	requireFatal(t, err, token.TooManyVars)
	assert.Contains(t, err.Error(), "Limit is 4.")

	err = parseWith("States = { B[4] };\nDynamics { dt(B_0) = 0; dt(B_1) = 0; dt(B_2) = 0; dt(B_3) = 0; }\nEnd.\n")
	require.NoError(t, err)
}

func TestBadArrayBounds(t *testing.T) {
	tests := []struct {
		src  string
		code token.Code
	}{
		{"States = { B[3-3] };", token.Positive},
		{"States = { B[x] };", token.LexExpected},
		{"States = { B[0-2;", token.Expected},
		{"States = { B[4/0] };", token.LexExpected},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, _, err := parse(t, tt.src)
			requireFatal(t, err, tt.code)
		})
	}
}
