package sbml

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// ExternalCompartment is the automatic compartment of SBML documents. It
// is never declared, and species in it are expanded with the template.
const ExternalCompartment = "compartment"

type document struct {
	XMLName xml.Name `xml:"sbml"`
	Level   int      `xml:"level,attr"`
	Model   model    `xml:"model"`
}

type model struct {
	Functions    []function    `xml:"listOfFunctionDefinitions>functionDefinition"`
	Compartments []compartment `xml:"listOfCompartments>compartment"`
	Species      []species     `xml:"listOfSpecies>species"`
	Species1     []species     `xml:"listOfSpecies>specie"`
	Parameters   []parameter   `xml:"listOfParameters>parameter"`
	RateRules    []rateRule    `xml:"listOfRules>rateRule"`
	Reactions    []reaction    `xml:"listOfReactions>reaction"`
}

// allSpecies merges the level 1 and level 2 spellings of the element.
func (m *model) allSpecies() []species {
	return append(append([]species(nil), m.Species...), m.Species1...)
}

// named is embedded by elements identified by id (level 2) or name
// (level 1).
type named struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

func (n named) key() string {
	if n.ID != "" {
		return n.ID
	}
	return n.Name
}

type function struct {
	named
	Math *mathNode `xml:"math"`
}

type compartment struct {
	named
	Size   string `xml:"size,attr"`
	Volume string `xml:"volume,attr"`
}

func (c compartment) value() string {
	return firstOf(c.Size, c.Volume, "0.0")
}

type species struct {
	named
	Compartment          string `xml:"compartment,attr"`
	InitialAmount        string `xml:"initialAmount,attr"`
	InitialConcentration string `xml:"initialConcentration,attr"`
	BoundaryCondition    string `xml:"boundaryCondition,attr"`
}

func (s species) value() string {
	return firstOf(s.InitialAmount, s.InitialConcentration, "0.0")
}

func (s species) boundary() bool {
	return s.BoundaryCondition == "true"
}

type parameter struct {
	named
	Value string `xml:"value,attr"`
}

type rateRule struct {
	Variable string    `xml:"variable,attr"`
	Math     *mathNode `xml:"math"`
}

type reaction struct {
	named
	Reactants  []speciesRef `xml:"listOfReactants>speciesReference"`
	Reactants1 []speciesRef `xml:"listOfReactants>specieReference"`
	Products   []speciesRef `xml:"listOfProducts>speciesReference"`
	Products1  []speciesRef `xml:"listOfProducts>specieReference"`
	KineticLaw kineticLaw   `xml:"kineticLaw"`
}

type speciesRef struct {
	Species       string `xml:"species,attr"`
	Specie        string `xml:"specie,attr"`
	Stoichiometry string `xml:"stoichiometry,attr"`
}

func (r speciesRef) name() string {
	return firstOf(r.Species, r.Specie, "")
}

type kineticLaw struct {
	Formula    string      `xml:"formula,attr"`
	Parameters []parameter `xml:"listOfParameters>parameter"`
	Math       *mathNode   `xml:"math"`
}

// mathNode is any MathML element. Children keep document order, which the
// operands of <apply> depend on.
type mathNode struct {
	XMLName  xml.Name
	Children []mathNode `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n *mathNode) name() string {
	return n.XMLName.Local
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func decode(data []byte) (*document, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch doc.Level {
	case 0:
		return nil, fmt.Errorf("cannot read the sbml level")
	case 1, 2:
		return &doc, nil
	}
	return nil, fmt.Errorf("unknown sbml level %d", doc.Level)
}

var operators = map[string]string{
	"plus":   "+",
	"minus":  "-",
	"times":  "*",
	"divide": "/",
}

// macro is a function definition with bound variables. Calls to it are
// expanded in place.
type macro struct {
	params []string
	body   string
}

// flattener turns MathML into infix equation text.
type flattener struct {
	// ident maps a <ci> name to the model name.
	ident func(string) string
	// call expands a call of a function definition with arguments.
	call func(name string, args []string) (string, bool, error)
}

func (f *flattener) infix(n *mathNode) (string, error) {
	switch n.name() {
	case "math":
		if len(n.Children) != 1 {
			return "", fmt.Errorf("<math> must hold one expression")
		}
		return f.infix(&n.Children[0])
	case "ci":
		return f.ident(strings.TrimSpace(n.Text)), nil
	case "cn":
		text := strings.TrimSpace(n.Text)
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return "", fmt.Errorf("invalid number %q", text)
		}
		return text, nil
	case "apply":
		return f.apply(n)
	}
	return "", fmt.Errorf("unsupported MathML element <%s>", n.name())
}

func (f *flattener) apply(n *mathNode) (string, error) {
	if len(n.Children) == 0 {
		return "", fmt.Errorf("empty <apply>")
	}
	head := &n.Children[0]
	args := make([]string, 0, len(n.Children)-1)
	for i := range n.Children[1:] {
		s, err := f.infix(&n.Children[i+1])
		if err != nil {
			return "", err
		}
		args = append(args, s)
	}

	switch op := head.name(); op {
	case "power":
		if len(args) != 2 {
			return "", fmt.Errorf("<power> takes 2 operands, got %d", len(args))
		}
		return "pow(" + args[0] + "," + args[1] + ")", nil
	case "ci":
		name := strings.TrimSpace(head.Text)
		if f.call != nil {
			if s, ok, err := f.call(name, args); ok || err != nil {
				return s, err
			}
		}
		if len(args) == 0 {
			return f.ident(name), nil
		}
		return f.ident(name) + "(" + strings.Join(args, ",") + ")", nil
	default:
		sym, ok := operators[op]
		if !ok {
			return "", fmt.Errorf("unknown MathML operation '%s'", op)
		}
		if len(args) == 0 {
			return "", fmt.Errorf("<%s> without operands", op)
		}
		if len(args) == 1 && op == "minus" {
			return "(-" + args[0] + ")", nil
		}
		return "(" + strings.Join(args, sym) + ")", nil
	}
}

// lambda splits a function definition into its bound variables and body.
func lambda(m *mathNode) ([]string, *mathNode, error) {
	if m == nil || len(m.Children) != 1 || m.Children[0].name() != "lambda" {
		return nil, nil, fmt.Errorf("function definition without <lambda>")
	}
	var params []string
	var body *mathNode
	l := &m.Children[0]
	for i := range l.Children {
		c := &l.Children[i]
		if c.name() != "bvar" {
			body = c
			continue
		}
		if len(c.Children) != 1 || c.Children[0].name() != "ci" {
			return nil, nil, fmt.Errorf("<bvar> must hold one <ci>")
		}
		params = append(params, strings.TrimSpace(c.Children[0].Text))
	}
	if body == nil {
		return nil, nil, fmt.Errorf("function definition without body")
	}
	return params, body, nil
}
