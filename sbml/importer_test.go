package sbml

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/simmod/analyzer"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/parser"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

// compile writes files into a temporary directory and parses model there.
func compile(t *testing.T, model string, files map[string]string) (*analyzer.Analyzer, *Importer, *bytes.Buffer, error) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	var out bytes.Buffer
	a := analyzer.New(symbols.NewTable(), analyzer.NewReporter(&out, 0), analyzer.Options{})
	p := parser.New(lexer.New(filepath.Join(dir, "model.txt"), model), a, parser.Options{})
	im := New(a, dir, parser.Options{})
	p.SetImporter(im)
	return a, im, &out, p.ParseModel()
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

func derivativeOf(t *testing.T, tab *symbols.Table, name string) string {
	t.Helper()
	r := derivative(tab.Dynamics, name)
	require.NotNil(t, r, "no derivative for %s", name)
	eqn, _ := r.Equation()
	return eqn
}

const importModel = "SBMLModels = { \"m.xml\" };\nEnd.\n"

const level2Doc = `<?xml version="1.0" encoding="UTF-8"?>
<sbml xmlns="http://www.sbml.org/sbml/level2" level="2" version="1">
  <model id="m">
    <listOfCompartments>
      <compartment id="cell" size="1"/>
    </listOfCompartments>
    <listOfSpecies>
      <species id="S1" compartment="cell" initialAmount="10"/>
      <species id="S2" compartment="cell" initialAmount="0"/>
      <species id="X" compartment="cell" initialAmount="5" boundaryCondition="true"/>
    </listOfSpecies>
    <listOfParameters>
      <parameter id="k1" value="0.1"/>
    </listOfParameters>
    <listOfReactions>
      <reaction id="R1">
        <listOfReactants>
          <speciesReference species="S1" stoichiometry="2"/>
          <speciesReference species="X"/>
        </listOfReactants>
        <listOfProducts>
          <speciesReference species="S2"/>
        </listOfProducts>
        <kineticLaw>
          <math xmlns="http://www.w3.org/1998/Math/MathML">
            <apply>
              <times/>
              <ci> k1 </ci>
              <apply><power/><ci> S1 </ci><cn> 2 </cn></apply>
            </apply>
          </math>
        </kineticLaw>
      </reaction>
    </listOfReactions>
  </model>
</sbml>
`

func TestImportLevel2(t *testing.T) {
	a, im, out, err := compile(t, importModel, map[string]string{"m.xml": level2Doc})
	require.NoError(t, err)
	require.NoError(t, a.Finish())
	assert.Empty(t, out.String())
	assert.Empty(t, im.Files())

	tab := a.Table
	assert.Equal(t, symbols.Parameter, tab.Globals.KindOf("k1"))
	assert.Equal(t, "0.1", equation(t, tab.Globals, "k1"))
	assert.Equal(t, symbols.State, tab.Globals.KindOf("S1"))
	assert.Equal(t, "10", equation(t, tab.Globals, "S1"))
	assert.Equal(t, symbols.State, tab.Globals.KindOf("S2"))
	assert.Equal(t, symbols.Parameter, tab.Globals.KindOf("X"), "boundary species")
	assert.Equal(t, "5", equation(t, tab.Globals, "X"))

	// Without a template the compartments are ignored.
	assert.Equal(t, 0, tab.Compartments.Len())
	assert.Nil(t, tab.Globals.Lookup("cell"))

	assert.Equal(t, symbols.LocalDyn, tab.Dynamics.KindOf("R1"))
	assert.Equal(t, "(k1*pow(S1,2))", equation(t, tab.Dynamics, "R1"))
	assert.Equal(t, " - 2 * R1", derivativeOf(t, tab, "S1"))
	assert.Equal(t, " + R1", derivativeOf(t, tab, "S2"))
	assert.Nil(t, derivative(tab.Dynamics, "X"))
}

const level1Doc = `<?xml version="1.0"?>
<sbml level="1" version="2">
  <model name="m1">
    <listOfSpecies>
      <specie name="A" compartment="c" initialAmount="1"/>
      <specie name="B" compartment="c"/>
    </listOfSpecies>
    <listOfParameters>
      <parameter name="k" value="2"/>
    </listOfParameters>
    <listOfReactions>
      <reaction name="decay">
        <listOfReactants><specieReference specie="A"/></listOfReactants>
        <listOfProducts><specieReference specie="B" stoichiometry="1"/></listOfProducts>
        <kineticLaw formula="k * A"/>
      </reaction>
    </listOfReactions>
  </model>
</sbml>
`

func TestImportLevel1(t *testing.T) {
	a, _, _, err := compile(t, importModel, map[string]string{"m.xml": level1Doc})
	require.NoError(t, err)
	require.NoError(t, a.Finish())

	tab := a.Table
	assert.Equal(t, "k * A", equation(t, tab.Dynamics, "decay"))
	assert.Equal(t, "0.0", equation(t, tab.Globals, "B"))
	assert.Equal(t, " - decay", derivativeOf(t, tab, "A"))
	assert.Equal(t, " + decay", derivativeOf(t, tab, "B"))
}

const functionsDoc = `<sbml level="2" version="4">
  <model id="f">
    <listOfFunctionDefinitions>
      <functionDefinition id="sq">
        <math><lambda><bvar><ci>x</ci></bvar><apply><times/><ci>x</ci><ci>x</ci></apply></lambda></math>
      </functionDefinition>
      <functionDefinition id="kk">
        <math><lambda><apply><times/><ci>k</ci><cn>2</cn></apply></lambda></math>
      </functionDefinition>
    </listOfFunctionDefinitions>
    <listOfSpecies>
      <species id="A" compartment="c" initialConcentration="4"/>
      <species id="B" compartment="c" initialAmount="1"/>
    </listOfSpecies>
    <listOfParameters>
      <parameter id="k" value="3"/>
    </listOfParameters>
    <listOfRules>
      <rateRule variable="A">
        <math><apply><minus/><apply><ci>sq</ci><ci>A</ci></apply></apply></math>
      </rateRule>
    </listOfRules>
    <listOfReactions>
      <reaction id="R">
        <listOfReactants><speciesReference species="B"/></listOfReactants>
        <kineticLaw>
          <math><apply><times/><ci>kk</ci><ci>B</ci></apply></math>
        </kineticLaw>
      </reaction>
    </listOfReactions>
  </model>
</sbml>
`

func TestImportFunctionsAndRules(t *testing.T) {
	a, _, _, err := compile(t, importModel, map[string]string{"m.xml": functionsDoc})
	require.NoError(t, err)
	require.NoError(t, a.Finish())

	tab := a.Table
	assert.Equal(t, "4", equation(t, tab.Globals, "A"))
	assert.Equal(t, symbols.Function, tab.Globals.KindOf("kk"))
	assert.Equal(t, "(k*2)", equation(t, tab.Globals, "kk"))
	assert.Nil(t, tab.Globals.Lookup("sq"), "functions with arguments are expanded")

	assert.Equal(t, "(-(((A)*(A))))", derivativeOf(t, tab, "A"))
	assert.Equal(t, "(kk*B)", equation(t, tab.Dynamics, "R"))
	assert.Equal(t, " - R", derivativeOf(t, tab, "B"))
}

const pkTemplate = `# generic clearance
Compartments = { liver };
States = { _Q };
Parameters = { ke };
ke = 0.5;
Dynamics {
  _C = _Q / 2;
  dt(_Q) = -ke * _C;
}
End.
`

const templateDoc = `<sbml level="2" version="1">
  <model>
    <listOfCompartments>
      <compartment id="compartment"/>
      <compartment id="liver" size="1.5"/>
    </listOfCompartments>
    <listOfSpecies>
      <species id="D" compartment="compartment" initialAmount="3"/>
      <species id="M" compartment="liver" initialAmount="3"/>
    </listOfSpecies>
    <listOfParameters>
      <parameter id="km" value="0.2"/>
    </listOfParameters>
    <listOfReactions>
      <reaction id="R">
        <listOfReactants><speciesReference species="M"/></listOfReactants>
        <kineticLaw><math><apply><times/><ci>km</ci><ci>M</ci></apply></math></kineticLaw>
      </reaction>
    </listOfReactions>
  </model>
</sbml>
`

const templateModel = "PKTemplate = { \"pk.model\" };\nSBMLModels = { \"m.xml\" };\nEnd.\n"

func TestImportWithTemplate(t *testing.T) {
	a, im, _, err := compile(t, templateModel, map[string]string{"pk.model": pkTemplate, "m.xml": templateDoc})
	require.NoError(t, err)
	require.NoError(t, a.Finish())
	assert.True(t, im.TemplateInUse())

	tab := a.Table
	assert.Equal(t, symbols.Compartment, tab.Compartments.KindOf("liver"))

	// The external species instantiates the template.
	assert.Equal(t, symbols.State, tab.Globals.KindOf("D_Q"))
	assert.Equal(t, "0", equation(t, tab.Globals, "D_Q"))
	assert.Equal(t, symbols.Parameter, tab.Globals.KindOf("ke"))
	assert.Equal(t, "0.5", equation(t, tab.Globals, "ke"))
	assert.Equal(t, "D_Q / 2", equation(t, tab.Dynamics, "D_C"))
	assert.Equal(t, "-ke * D_C", derivativeOf(t, tab, "D_Q"))
	assert.Nil(t, tab.Globals.Lookup("D"))

	// Species of a template compartment are qualified by it.
	assert.Equal(t, symbols.State, tab.Globals.KindOf("M_liver"))
	assert.Equal(t, "0", equation(t, tab.Globals, "M_liver"))
	assert.Equal(t, "(km*M_liver)", equation(t, tab.Dynamics, "R"))
	assert.Equal(t, " - R", derivativeOf(t, tab, "M_liver"))
}

func TestTemplateSharedVariablesOnce(t *testing.T) {
	doc := `<sbml level="2" version="1"><model>
<listOfSpecies>
  <species id="D" compartment="compartment"/>
  <species id="E" compartment="compartment"/>
</listOfSpecies>
</model></sbml>`
	a, _, _, err := compile(t, templateModel, map[string]string{"pk.model": pkTemplate, "m.xml": doc})
	require.NoError(t, err)
	require.NoError(t, a.Finish())

	tab := a.Table
	assert.Equal(t, 1, tab.Count(symbols.Parameter))
	assert.Equal(t, 2, tab.Count(symbols.State))
	assert.Equal(t, "-ke * E_C", derivativeOf(t, tab, "E_Q"))
}

func TestTemplateKeepsValueGivenBeforeDeclaration(t *testing.T) {
	tmpl := "_P = 4;\nStates = { _P };\nDynamics { dt(_P) = -_P; }\nEnd.\n"
	doc := `<sbml level="2" version="1"><model>
<listOfSpecies>
  <species id="D" compartment="compartment" initialAmount="3"/>
</listOfSpecies>
</model></sbml>`
	a, _, _, err := compile(t, templateModel, map[string]string{"pk.model": tmpl, "m.xml": doc})
	require.NoError(t, err)
	require.NoError(t, a.Finish())

	tab := a.Table
	assert.Equal(t, symbols.State, tab.Globals.KindOf("D_P"))
	assert.Equal(t, "4", equation(t, tab.Globals, "D_P"))
	assert.Equal(t, "-D_P", derivativeOf(t, tab, "D_P"))
}

func TestTemplateRequiresLevel2(t *testing.T) {
	_, _, out, err := compile(t, templateModel, map[string]string{"pk.model": pkTemplate, "m.xml": level1Doc})
	requireFatal(t, err, token.BadContext)
	assert.Contains(t, out.String(), "requires SBML level 2")
}

func TestTemplateUndefinedCompartment(t *testing.T) {
	doc := `<sbml level="2"><model><listOfSpecies>
<species id="M" compartment="kidney"/>
</listOfSpecies></model></sbml>`
	_, _, out, err := compile(t, templateModel, map[string]string{"pk.model": pkTemplate, "m.xml": doc})
	requireFatal(t, err, token.Undefined)
	assert.Contains(t, out.String(), "kidney")
}

func TestBoundarySpeciesOutsideCompartment(t *testing.T) {
	doc := `<sbml level="2"><model><listOfSpecies>
<species id="M" compartment="compartment" boundaryCondition="true"/>
</listOfSpecies></model></sbml>`
	_, _, _, err := compile(t, templateModel, map[string]string{"pk.model": pkTemplate, "m.xml": doc})
	requireFatal(t, err, token.BadContext)
}

func TestSecondTemplate(t *testing.T) {
	model := "PKTemplate = { \"pk.model\" };\nPKTemplate = { \"pk.model\" };\n"
	_, _, _, err := compile(t, model, map[string]string{"pk.model": pkTemplate})
	requireFatal(t, err, token.DupSect)
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code token.Code
	}{
		{"missing level", `<sbml><model/></sbml>`, token.LexExpected},
		{"unknown level", `<sbml level="3"><model/></sbml>`, token.LexExpected},
		{"not sbml", `<html/>`, token.LexExpected},
		{"duplicate parameter", `<sbml level="2"><model><listOfParameters>
<parameter id="k" value="1"/><parameter id="k" value="2"/>
</listOfParameters></model></sbml>`, token.DupDecl},
		{"rule for parameter", `<sbml level="2"><model>
<listOfParameters><parameter id="k" value="1"/></listOfParameters>
<listOfRules><rateRule variable="k"><math><cn>1</cn></math></rateRule></listOfRules>
</model></sbml>`, token.BadState},
		{"unknown operator", `<sbml level="2"><model>
<listOfSpecies><species id="A" compartment="c"/></listOfSpecies>
<listOfRules><rateRule variable="A"><math><apply><root/><ci>A</ci></apply></math></rateRule></listOfRules>
</model></sbml>`, token.LexExpected},
		{"reaction on unknown species", `<sbml level="2"><model>
<listOfReactions><reaction id="R">
<listOfReactants><speciesReference species="Z"/></listOfReactants>
<kineticLaw><math><cn>1</cn></math></kineticLaw>
</reaction></listOfReactions>
</model></sbml>`, token.BadState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := compile(t, importModel, map[string]string{"m.xml": tt.doc})
			requireFatal(t, err, tt.code)
		})
	}
}

func TestImportMissingFile(t *testing.T) {
	_, im, out, err := compile(t, importModel, nil)
	requireFatal(t, err, token.FileNotFound)
	assert.Contains(t, out.String(), "m.xml")
	assert.Empty(t, im.Files())
}

func TestReleaseIsIdempotent(t *testing.T) {
	im := New(nil, "", parser.Options{})
	im.files = []string{"a.xml", "b.xml"}
	im.Release()
	im.Release()
	assert.Empty(t, im.Files())
}

func TestDocumentsSurviveRelease(t *testing.T) {
	_, im, out, err := compile(t, importModel, map[string]string{"m.xml": level2Doc})
	require.NoError(t, err, out.String())
	assert.Empty(t, im.Files())
	require.Len(t, im.Documents(), 1)
	assert.Equal(t, "m.xml", filepath.Base(im.Documents()[0]))
}

func TestLog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.xml"), []byte(level2Doc), 0o644))
	a := analyzer.New(symbols.NewTable(), analyzer.NewReporter(nil, 0), analyzer.Options{})
	p := parser.New(lexer.New("model.txt", importModel), a, parser.Options{})
	im := New(a, dir, parser.Options{})
	var log bytes.Buffer
	im.Log = &log
	p.SetImporter(im)
	require.NoError(t, p.ParseModel())

	assert.Contains(t, log.String(), "param.   k1 = 0.1")
	assert.Contains(t, log.String(), "species  S1 = 10")
	assert.Contains(t, log.String(), "param.   X = 5  (was boundary species)")
	assert.Contains(t, log.String(), "reaction R1 = (k1*pow(S1,2))")
	assert.Contains(t, log.String(), "S1 stoichio: 2")
}
