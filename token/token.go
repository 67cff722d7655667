package token

import (
	"fmt"
	"strconv"
)

type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	literal_beg
	// Identifiers + literals
	IDENT  // k1, Q_0, dt, ...
	INT    // 1343456
	FLOAT  // 123.45, 1e-3
	STRING // "abc"
	literal_end

	eqnpunct_beg
	// Operators allowed inside equations
	ASSIGN // =
	NOT    // !

	ADD // +
	SUB // -
	MUL // *
	QUO // /
	REM // %
	XOR // ^

	AND   // &
	OR    // |
	LAND  // &&
	LOR   // ||
	QUEST // ?
	COLON // :

	LPAREN // (
	RPAREN // )
	COMMA  // ,

	EQL // ==
	NEQ // !=
	LSS // <
	GTR // >
	LEQ // <=
	GEQ // >=
	eqnpunct_end

	punct_beg
	// Delimiters of the model grammar
	LBRACE    // {
	RBRACE    // }
	LBRACK    // [
	RBRACK    // ]
	SEMICOLON // ;
	PERIOD    // .
	punct_end
)

var tokens = [...]string{
	ILLEGAL: "ILLEGAL",
	EOF:     "EOF",

	IDENT:  "IDENT",
	INT:    "INT",
	FLOAT:  "FLOAT",
	STRING: "STRING",

	ASSIGN: "=",
	NOT:    "!",

	ADD: "+",
	SUB: "-",
	MUL: "*",
	QUO: "/",
	REM: "%",
	XOR: "^",

	AND:   "&",
	OR:    "|",
	LAND:  "&&",
	LOR:   "||",
	QUEST: "?",
	COLON: ":",

	LPAREN: "(",
	RPAREN: ")",
	COMMA:  ",",

	EQL: "==",
	NEQ: "!=",
	LSS: "<",
	GTR: ">",
	LEQ: "<=",
	GEQ: ">=",

	LBRACE:    "{",
	RBRACE:    "}",
	LBRACK:    "[",
	RBRACK:    "]",
	SEMICOLON: ";",
	PERIOD:    ".",
}

// Token is one lexical element. Space records whether whitespace preceded
// it, which lets equations be rebuilt from tokens with their spacing.
type Token struct {
	Type     TokenType
	Literal  string
	FileName string
	Line     int
	Column   int
	Space    bool
}

func (t Token) IsNumber() bool {
	return t.Type == INT || t.Type == FLOAT
}

// IsEquationPunct reports whether t may appear between the operands of an
// equation.
func (t Token) IsEquationPunct() bool {
	return eqnpunct_beg < t.Type && t.Type < eqnpunct_end
}

// Pos renders the location as file:line, or line N when the token did not
// come from a named source.
func (t Token) Pos() string {
	switch {
	case t.Line == 0:
		return t.FileName
	case t.FileName == "":
		return fmt.Sprintf("line %d", t.Line)
	}
	return fmt.Sprintf("%s:%d", t.FileName, t.Line)
}

func (t Token) String() string {
	if t.Type == STRING {
		return strconv.Quote(t.Literal)
	}
	if t.Literal != "" {
		return t.Literal
	}
	return t.Type.String()
}

func (tokenType TokenType) String() string {
	s := ""
	if 0 <= tokenType && tokenType < TokenType(len(tokens)) {
		s = tokens[tokenType]
	}

	if s == "" {
		s = "token(" + strconv.Itoa(int(tokenType)) + ")"
	}

	return s
}
