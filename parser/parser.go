// Package parser drives the native model grammar. It reads statements from
// the lexer and hands every declaration and definition to the analyzer.
package parser

import (
	"strconv"
	"strings"

	"github.com/thiremani/simmod/analyzer"
	"github.com/thiremani/simmod/builtins"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

const (
	DefaultMaxName     = 80
	DefaultMaxEquation = 0x13FF
)

type Options struct {
	MaxName     int
	MaxEquation int
}

// Importer reads the documents named by the SBMLModels and PKTemplate
// directives into the model being parsed.
type Importer interface {
	LoadTemplate(file token.Token) error
	Import(files []token.Token) error
}

var declKinds = map[string]symbols.Kind{
	builtins.States:       symbols.State,
	builtins.Inputs:       symbols.Input,
	builtins.Outputs:      symbols.Output,
	builtins.Parameters:   symbols.Parameter,
	builtins.Compartments: symbols.Compartment,
}

type Parser struct {
	l    *lexer.Lexer
	a    *analyzer.Analyzer
	imp  Importer
	opts Options

	curToken  token.Token
	peekToken token.Token

	seen map[analyzer.Context]bool
	done bool
}

func New(l *lexer.Lexer, a *analyzer.Analyzer, opts Options) *Parser {
	if opts.MaxName <= 0 {
		opts.MaxName = DefaultMaxName
	}
	if opts.MaxEquation <= 0 {
		opts.MaxEquation = DefaultMaxEquation
	}
	p := &Parser{
		l:    l,
		a:    a,
		opts: opts,
		seen: make(map[analyzer.Context]bool),
	}

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// SetImporter enables the SBMLModels and PKTemplate directives.
func (p *Parser) SetImporter(imp Importer) {
	p.imp = imp
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t token.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t token.TokenType) bool {
	return p.peekToken.Type == t
}

// skip consumes the current token if it is t.
func (p *Parser) skip(t token.TokenType) {
	if p.curTokenIs(t) {
		p.nextToken()
	}
}

// expect consumes the current token, which must be t.
func (p *Parser) expect(t token.TokenType, what string) error {
	if !p.curTokenIs(t) {
		return p.fatal(p.curToken, token.Expected, what, p.curToken.String())
	}
	p.nextToken()
	return nil
}

func (p *Parser) report(tok token.Token, sev token.Severity, code token.Code, subject, found string) error {
	return p.a.Reporter().Report(token.NewError(tok, sev, code, subject, found))
}

func (p *Parser) fatal(tok token.Token, code token.Code, subject, found string) error {
	return p.report(tok, token.Fatal, code, subject, found)
}

// fail reports err, which the evaluator built, through the reporter.
func (p *Parser) fail(err error) error {
	if ce, ok := err.(*token.CompileError); ok {
		return p.a.Reporter().Report(ce)
	}
	return err
}

// Done reports whether the End keyword was read.
func (p *Parser) Done() bool {
	return p.done
}

// ParseModel reads statements until End or the end of input. It stops at
// the first fatal diagnostic and returns it.
func (p *Parser) ParseModel() error {
	for !p.curTokenIs(token.EOF) && !p.done {
		if err := p.parseStatement(); err != nil {
			return err
		}
	}
	if !p.done && p.a.Context() != analyzer.Global {
		return p.fatal(p.curToken, token.NoEnd, p.l.FileName, "")
	}
	return nil
}

func (p *Parser) parseStatement() error {
	tok := p.curToken
	switch tok.Type {
	case token.SEMICOLON:
		p.nextToken()
		return nil
	case token.RBRACE:
		return p.closeSection()
	case token.IDENT:
	default:
		return p.recover(tok, p.report(tok, token.Error, token.Unexpected, tok.String(), ""))
	}

	ctx := p.a.Context()
	if kind, ok := declKinds[tok.Literal]; ok {
		if ctx != analyzer.Global {
			return p.fatal(tok, token.BadContext, tok.Literal, "")
		}
		return p.parseDeclarations(kind)
	}
	if c, ok := analyzer.SectionFor(tok.Literal); ok {
		if ctx != analyzer.Global {
			return p.fatal(tok, token.BadContext, tok.Literal, "")
		}
		return p.openSection(c)
	}

	switch tok.Literal {
	case builtins.End:
		if ctx != analyzer.Global {
			return p.fatal(tok, token.Expected, "}", tok.Literal)
		}
		p.a.At(tok)
		p.a.Enter(analyzer.End)
		p.done = true
		return nil
	case builtins.SBMLModels, builtins.PKTemplate:
		if ctx != analyzer.Global {
			return p.fatal(tok, token.BadContext, tok.Literal, "")
		}
		return p.parseDirective()
	case builtins.Inline:
		if p.peekTokenIs(token.LPAREN) {
			return p.parseInline()
		}
	case builtins.Deriv:
		if p.peekTokenIs(token.LPAREN) {
			return p.parseDerivative()
		}
	}
	return p.parseAssignment()
}

// recover skips to the end of the statement after a non-fatal error. A
// closing brace is left for the caller.
func (p *Parser) recover(tok token.Token, err error) error {
	if err != nil {
		return err
	}
	if tok == p.curToken {
		p.nextToken()
	}
	for !p.curTokenIs(token.EOF) && !p.curTokenIs(token.RBRACE) {
		if p.curTokenIs(token.SEMICOLON) {
			p.nextToken()
			break
		}
		p.nextToken()
	}
	return nil
}

func (p *Parser) openSection(c analyzer.Context) error {
	tok := p.curToken
	if p.seen[c] {
		return p.fatal(tok, token.DupSect, tok.Literal, "")
	}
	p.seen[c] = true
	p.nextToken()
	p.skip(token.ASSIGN)
	if err := p.expect(token.LBRACE, "{"); err != nil {
		return err
	}
	p.a.At(tok)
	p.a.Enter(c)
	return nil
}

func (p *Parser) closeSection() error {
	tok := p.curToken
	if !p.a.Context().IsSection() {
		return p.recover(tok, p.report(tok, token.Error, token.Unexpected, tok.String(), ""))
	}
	p.nextToken()
	p.skip(token.SEMICOLON)
	p.a.At(tok)
	p.a.Enter(analyzer.Global)
	return nil
}

// parseDeclarations reads Kind = { a, b[lo-hi]; c }. Separators and the
// '=' are optional.
func (p *Parser) parseDeclarations(kind symbols.Kind) error {
	p.nextToken()
	p.skip(token.ASSIGN)
	if err := p.expect(token.LBRACE, "{"); err != nil {
		return err
	}
	for !p.curTokenIs(token.RBRACE) {
		tok := p.curToken
		switch tok.Type {
		case token.COMMA, token.SEMICOLON:
			p.nextToken()
			continue
		case token.IDENT:
		case token.EOF:
			return p.fatal(tok, token.Expected, "}", tok.String())
		default:
			return p.fatal(tok, token.Expected, "identifier", tok.String())
		}
		if err := p.checkName(tok); err != nil {
			return err
		}
		p.nextToken()

		names := []string{tok.Literal}
		if p.curTokenIs(token.LBRACK) {
			var err error
			if names, err = p.parseElements(tok); err != nil {
				return err
			}
		}
		p.a.At(tok)
		for _, name := range names {
			if err := p.a.Declare(name, kind); err != nil {
				return err
			}
		}
	}
	p.nextToken()
	p.skip(token.SEMICOLON)
	return nil
}

// parseDirective reads SBMLModels = { "a.xml", ... } or
// PKTemplate = { "pk.model" } and hands the files to the importer.
func (p *Parser) parseDirective() error {
	tok := p.curToken
	if p.imp == nil {
		return p.fatal(tok, token.BadContext, tok.Literal, "")
	}
	p.nextToken()
	p.skip(token.ASSIGN)
	if err := p.expect(token.LBRACE, "{"); err != nil {
		return err
	}
	var files []token.Token
	for !p.curTokenIs(token.RBRACE) {
		switch p.curToken.Type {
		case token.COMMA, token.SEMICOLON:
		case token.STRING, token.IDENT:
			files = append(files, p.curToken)
		default:
			return p.fatal(p.curToken, token.Expected, "file name", p.curToken.String())
		}
		p.nextToken()
	}
	p.nextToken()
	p.skip(token.SEMICOLON)

	if len(files) == 0 {
		return p.fatal(tok, token.Expected, "file name", "}")
	}
	p.a.At(tok)
	defer p.a.Enter(analyzer.Global)
	if tok.Literal == builtins.PKTemplate {
		if len(files) > 1 {
			return p.fatal(files[1], token.Unexpected, files[1].String(), "")
		}
		return p.imp.LoadTemplate(files[0])
	}
	return p.imp.Import(files)
}

// parseInline reads Inline(text). The text runs to the matching parenthesis
// and is kept verbatim.
func (p *Parser) parseInline() error {
	tok := p.curToken
	// The lexer sits just past '(', which is peekToken.
	raw, ok := p.l.ReadBalanced()
	if !ok {
		return p.fatal(tok, token.UnbalPar, "", "")
	}
	end := p.l.Line()
	p.peekToken = p.l.NextToken()
	p.nextToken()
	p.skip(token.SEMICOLON)

	p.a.AtSpan(tok, end)
	return p.a.Define(builtins.Inline, strings.TrimSpace(raw), analyzer.InlineCode)
}

// bounds is the element range lo to hi-1 of an array.
type bounds struct {
	lo, hi int64
}

// parseDerivative reads dt(x) = eqn; or dt(x[lo-hi]) = eqn; for an array of
// states.
func (p *Parser) parseDerivative() error {
	start := p.curToken
	if p.a.Context() != analyzer.Dynamics {
		return p.fatal(start, token.BadContext, builtins.Deriv, "")
	}
	p.nextToken()
	p.nextToken()
	nameTok := p.curToken
	if !p.curTokenIs(token.IDENT) {
		return p.fatal(nameTok, token.Expected, "state name", nameTok.String())
	}
	p.nextToken()

	var b *bounds
	if p.curTokenIs(token.LBRACK) {
		var err error
		if b, err = p.parseBounds(nameTok); err != nil {
			return err
		}
	}
	if err := p.expect(token.RPAREN, ")"); err != nil {
		return err
	}
	if err := p.expect(token.ASSIGN, "="); err != nil {
		return err
	}
	toks, end, err := p.collectEquation()
	if err != nil || toks == nil {
		return err
	}
	p.a.AtSpan(start, end.Line)
	return p.defineEach(nameTok, b, toks, analyzer.Deriv)
}

// parseAssignment reads name = eqn; or name[lo-hi] = eqn;.
func (p *Parser) parseAssignment() error {
	nameTok := p.curToken
	if err := p.checkName(nameTok); err != nil {
		return err
	}
	p.nextToken()

	var b *bounds
	if p.curTokenIs(token.LBRACK) {
		var err error
		if b, err = p.parseBounds(nameTok); err != nil {
			return err
		}
	}
	if !p.curTokenIs(token.ASSIGN) {
		return p.recover(p.curToken, p.report(p.curToken, token.Error, token.Expected, "=", p.curToken.String()))
	}
	p.nextToken()

	toks, end, err := p.collectEquation()
	if err != nil || toks == nil {
		return err
	}
	p.a.AtSpan(nameTok, end.Line)
	return p.defineEach(nameTok, b, toks, analyzer.Plain)
}

// defineEach defines the scalar nameTok, or when b is set every element of
// the array with j bound to the element index.
func (p *Parser) defineEach(nameTok token.Token, b *bounds, toks []token.Token, form analyzer.Form) error {
	define := func(name string, index *int64) error {
		if form == analyzer.Deriv && p.a.Table.Globals.KindOf(name) != symbols.State {
			return p.fatal(nameTok, token.BadState, name, "")
		}
		eqn, err := p.render(toks, index)
		if err != nil {
			return err
		}
		return p.a.Define(name, eqn, form)
	}

	if b == nil {
		return define(nameTok.Literal, nil)
	}
	for i := b.lo; i < b.hi; i++ {
		if err := define(ElementName(nameTok.Literal, i), &i); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) checkName(tok token.Token) error {
	if len(tok.Literal) > p.opts.MaxName {
		return p.fatal(tok, token.NameTooLong, tok.Literal, strconv.Itoa(p.opts.MaxName))
	}
	return nil
}

// ElementName is the scalar name of element i of array name.
func ElementName(name string, i int64) string {
	return name + "_" + strconv.FormatInt(i, 10)
}

// parseElements reads [bounds] after an array declaration and returns the
// element names.
func (p *Parser) parseElements(nameTok token.Token) ([]string, error) {
	b, err := p.parseBounds(nameTok)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, b.hi-b.lo)
	for i := b.lo; i < b.hi; i++ {
		names = append(names, ElementName(nameTok.Literal, i))
	}
	return names, nil
}

// parseBounds reads [lo-hi] or [n].
func (p *Parser) parseBounds(nameTok token.Token) (*bounds, error) {
	toks, err := p.collectBracket()
	if err != nil {
		return nil, err
	}
	lo, hi, err := EvalBounds(toks)
	if err != nil {
		return nil, p.fail(err)
	}
	if limit := p.a.MaxIndex(); hi-lo > int64(limit) {
		return nil, p.fatal(nameTok, token.TooManyVars, nameTok.Literal, strconv.Itoa(limit))
	}
	return &bounds{lo: lo, hi: hi}, nil
}

// collectBracket reads the tokens between '[' and its ']'. The current
// token is '[' on entry and the one after ']' on return.
func (p *Parser) collectBracket() ([]token.Token, error) {
	open := p.curToken
	p.nextToken()
	var toks []token.Token
	for !p.curTokenIs(token.RBRACK) {
		switch p.curToken.Type {
		case token.EOF, token.SEMICOLON, token.LBRACE, token.RBRACE, token.LBRACK:
			return nil, p.fatal(open, token.Expected, "]", p.curToken.String())
		}
		toks = append(toks, p.curToken)
		p.nextToken()
	}
	p.nextToken()
	return toks, nil
}

// collectEquation reads the tokens of an equation up to the ';' that ends
// it at parenthesis depth zero. The ';' is consumed and returned. A nil
// slice with a nil error means the statement was dropped after a
// non-fatal error.
func (p *Parser) collectEquation() ([]token.Token, token.Token, error) {
	start := p.curToken
	var toks []token.Token
	depth := 0
	size := 0
	for {
		tok := p.curToken
		switch tok.Type {
		case token.SEMICOLON:
			if depth > 0 {
				return nil, tok, p.fatal(start, token.UnbalPar, "", "")
			}
			p.nextToken()
			if len(toks) == 0 {
				return nil, tok, p.report(tok, token.Error, token.Expected, "equation", ";")
			}
			return toks, tok, nil
		case token.EOF:
			if depth > 0 {
				return nil, tok, p.fatal(start, token.UnbalPar, "", "")
			}
			return nil, tok, p.fatal(tok, token.Expected, ";", tok.String())
		case token.RBRACE, token.LBRACE:
			if depth > 0 {
				return nil, tok, p.fatal(start, token.UnbalPar, "", "")
			}
			return nil, tok, p.report(tok, token.Error, token.Expected, ";", tok.String())
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
			if depth < 0 {
				return nil, tok, p.fatal(start, token.UnbalPar, "", "")
			}
		}
		size += len(tok.String()) + 1
		if size > p.opts.MaxEquation {
			return nil, tok, p.fatal(start, token.EqnTooLong, "", strconv.Itoa(p.opts.MaxEquation))
		}
		toks = append(toks, tok)
		p.nextToken()
	}
}

// render rebuilds equation text from toks. Array references name[expr]
// become element names; inside an unrolled equation index binds j.
func (p *Parser) render(toks []token.Token, index *int64) (string, error) {
	var b strings.Builder
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		text := tok.String()
		switch {
		case tok.Type == token.IDENT && i+1 < len(toks) && toks[i+1].Type == token.LBRACK:
			end := closingBracket(toks, i+1)
			if end < 0 {
				return "", p.fatal(toks[i+1], token.Expected, "]", "")
			}
			v, err := EvalConst(toks[i+2:end], index)
			if err != nil {
				return "", p.fail(err)
			}
			text = ElementName(tok.Literal, v)
			i = end
		case tok.Type == token.IDENT && tok.Literal == IndexVar && index != nil:
			text = strconv.FormatInt(*index, 10)
		}
		if b.Len() > 0 && tok.Space {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	if b.Len() > p.opts.MaxEquation {
		return "", p.fatal(toks[0], token.EqnTooLong, "", strconv.Itoa(p.opts.MaxEquation))
	}
	return b.String(), nil
}

func closingBracket(toks []token.Token, open int) int {
	for i := open + 1; i < len(toks); i++ {
		switch toks[i].Type {
		case token.RBRACK:
			return i
		case token.LBRACK:
			return -1
		}
	}
	return -1
}
