package lexer

import (
	"strings"

	"github.com/thiremani/simmod/token"
)

type Lexer struct {
	FileName     string
	input        []rune
	position     int  // current position in input (points to current rune)
	readPosition int  // current reading position in input (after current rune)
	curr         rune // current rune under examination
	line         int
	column       int
	space        bool
}

// New lexes input. fileName only labels diagnostics and may be empty, as it
// is when an equation string is re-lexed on its own.
func New(fileName, input string) *Lexer {
	l := &Lexer{FileName: fileName, input: []rune(input), line: 1}
	l.readRune()
	return l
}

// Line is the line of the rune under examination.
func (l *Lexer) Line() int {
	return l.line
}

func (l *Lexer) NextToken() token.Token {
	l.space = false
	l.skipWhitespace()

	tok := token.Token{
		FileName: l.FileName,
		Line:     l.line,
		Column:   l.column,
		Space:    l.space,
	}

	if l.atEnd() {
		tok.Type = token.EOF
		return tok
	}
	switch l.curr {
	case '"':
		lit, ok := l.readString()
		tok.Literal = lit
		tok.Type = token.STRING
		if !ok {
			tok.Type = token.ILLEGAL
		}
		return tok
	case '.':
		if isDigit(l.peekRune()) {
			tok.Literal, tok.Type = l.readNumber()
			return tok
		}
	}

	if isLetter(l.curr) {
		tok.Literal = l.readIdentifier()
		tok.Type = token.IDENT
		return tok
	}
	if isDigit(l.curr) {
		tok.Literal, tok.Type = l.readNumber()
		return tok
	}

	tok.Type, tok.Literal = l.readPunct()
	return tok
}

// Tokens drains the lexer, EOF excluded.
func (l *Lexer) Tokens() []token.Token {
	var toks []token.Token
	for tok := l.NextToken(); tok.Type != token.EOF; tok = l.NextToken() {
		toks = append(toks, tok)
	}
	return toks
}

// ReadBalanced returns the raw text up to the parenthesis closing one that
// was already consumed, and consumes that closing parenthesis. ok is false
// when the input ends first.
func (l *Lexer) ReadBalanced() (text string, ok bool) {
	depth := 1
	start := l.position
	for !l.atEnd() {
		switch l.curr {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				text = string(l.input[start:l.position])
				l.readRune()
				return strings.TrimSpace(text), true
			}
		case '"':
			l.readString()
			continue
		}
		l.readRune()
	}
	return string(l.input[start:l.position]), false
}

var twoRunePunct = map[string]token.TokenType{
	"==": token.EQL,
	"!=": token.NEQ,
	"<=": token.LEQ,
	">=": token.GEQ,
	"&&": token.LAND,
	"||": token.LOR,
}

var oneRunePunct = map[rune]token.TokenType{
	'=': token.ASSIGN,
	'!': token.NOT,
	'+': token.ADD,
	'-': token.SUB,
	'*': token.MUL,
	'/': token.QUO,
	'%': token.REM,
	'^': token.XOR,
	'&': token.AND,
	'|': token.OR,
	'?': token.QUEST,
	':': token.COLON,
	'(': token.LPAREN,
	')': token.RPAREN,
	',': token.COMMA,
	'<': token.LSS,
	'>': token.GTR,
	'{': token.LBRACE,
	'}': token.RBRACE,
	'[': token.LBRACK,
	']': token.RBRACK,
	';': token.SEMICOLON,
	'.': token.PERIOD,
}

func (l *Lexer) readPunct() (token.TokenType, string) {
	lit := string([]rune{l.curr, l.peekRune()})
	if tt, ok := twoRunePunct[lit]; ok {
		l.readRune()
		l.readRune()
		return tt, lit
	}

	ch := l.curr
	l.readRune()
	if tt, ok := oneRunePunct[ch]; ok {
		return tt, string(ch)
	}
	return token.ILLEGAL, string(ch)
}

// skipWhitespace also skips '#' comments, which run to the end of the line.
func (l *Lexer) skipWhitespace() {
	for {
		switch l.curr {
		case ' ', '\t', '\n', '\r', '\f':
			l.space = true
			l.readRune()
		case '#':
			l.space = true
			for l.curr != '\n' && !l.atEnd() {
				l.readRune()
			}
		default:
			return
		}
	}
}

// readRune advances to the next rune. Past the end of input it stays put
// with curr set to 0; a NUL inside the input is an ordinary rune.
func (l *Lexer) readRune() {
	if l.readPosition > len(l.input) {
		return
	}
	if l.curr == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.curr = 0
	} else {
		l.curr = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

func (l *Lexer) peekRune() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.curr) || isDigit(l.curr) {
		l.readRune()
	}
	return string(l.input[position:l.position])
}

// readNumber reads digits with an optional fraction and exponent.
func (l *Lexer) readNumber() (string, token.TokenType) {
	position := l.position
	tt := token.INT
	for isDigit(l.curr) {
		l.readRune()
	}
	if l.curr == '.' {
		tt = token.FLOAT
		l.readRune()
		for isDigit(l.curr) {
			l.readRune()
		}
	}
	if l.curr == 'e' || l.curr == 'E' {
		next := l.peekRune()
		if isDigit(next) || ((next == '+' || next == '-') && l.readPosition+1 < len(l.input) && isDigit(l.input[l.readPosition+1])) {
			tt = token.FLOAT
			l.readRune()
			if l.curr == '+' || l.curr == '-' {
				l.readRune()
			}
			for isDigit(l.curr) {
				l.readRune()
			}
		}
	}
	return string(l.input[position:l.position]), tt
}

// readString reads a double-quoted string and returns its contents. ok is
// false when the line or input ends before the closing quote.
func (l *Lexer) readString() (string, bool) {
	l.readRune() // opening quote
	position := l.position
	for l.curr != '"' {
		if l.atEnd() || l.curr == '\n' {
			return string(l.input[position:l.position]), false
		}
		if l.curr == '\\' {
			l.readRune()
		}
		l.readRune()
	}
	lit := string(l.input[position:l.position])
	l.readRune() // closing quote
	return lit, true
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
