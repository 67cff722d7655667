package token

import "fmt"

type Severity int

const (
	Info Severity = iota
	Warning
	// Error does not stop the compilation, but the model is rejected once
	// the whole input has been read.
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "fatal"
}

// Code classifies a diagnostic independently of its wording.
type Code int

const (
	NoCode Code = iota
	Unexpected
	Expected
	LexExpected
	UnexpNumber
	OutOfMem
	FileNotFound
	CannotOpen

	BadContext
	DupDecl
	Redef
	EqnTooLong
	BadState
	Undefined
	NoDynEqn
	NoInpDef
	TooManyVars
	Positive
	NameTooLong
	UnbalPar
	NoOutputEqn
	DupSect
	NoEnd
)

// CompileError is a diagnostic tied to the token where it was detected.
type CompileError struct {
	Token    Token
	Severity Severity
	Code     Code
	Msg      string
}

// NewError formats the standard message for code. subject is the offending
// name; found, when set, is what was seen instead (Expected, LexExpected) or
// the numeric limit (TooManyVars, NameTooLong).
func NewError(tok Token, sev Severity, code Code, subject, found string) *CompileError {
	return &CompileError{Token: tok, Severity: sev, Code: code, Msg: Message(code, subject, found)}
}

func (e *CompileError) Error() string {
	if pos := e.Token.Pos(); pos != "" {
		return pos + ": " + e.Msg
	}
	return e.Msg
}

func Message(code Code, subject, found string) string {
	switch code {
	case Unexpected:
		return fmt.Sprintf("Unexpected symbol '%s' in input file.", subject)
	case Expected, LexExpected:
		if found != "" {
			return fmt.Sprintf("Expected <%s> before '%s'", subject, found)
		}
		return fmt.Sprintf("Expected <%s>", subject)
	case UnexpNumber:
		return fmt.Sprintf("Unexpected number %s in input file.", subject)
	case OutOfMem:
		return fmt.Sprintf("Out of memory in %s() !", subject)
	case FileNotFound:
		return fmt.Sprintf("File not found \"%s\".", subject)
	case CannotOpen:
		return fmt.Sprintf("Cannot open file \"%s\".", subject)
	case BadContext:
		return fmt.Sprintf("'%s' used in invalid context.", subject)
	case DupDecl:
		return fmt.Sprintf("Duplicate declaration of model variable '%s'.", subject)
	case Redef:
		return fmt.Sprintf("'%s' redefined.", subject)
	case EqnTooLong:
		return "Equation is too long.  Possibly missing terminator."
	case BadState:
		return fmt.Sprintf("Invalid state identifier '%s'.", subject)
	case Undefined:
		return fmt.Sprintf("Undefined identifier '%s'.", subject)
	case NoDynEqn:
		return fmt.Sprintf("State variable '%s' has no dynamics.", subject)
	case NoInpDef:
		return fmt.Sprintf("Input '%s' is not initialized.", subject)
	case TooManyVars:
		return fmt.Sprintf("Too many %s declarations. Limit is %s.", subject, found)
	case Positive:
		return fmt.Sprintf("Positive number expected for '%s'.", subject)
	case NameTooLong:
		return fmt.Sprintf("Name %s exceed %s characters.", subject, found)
	case UnbalPar:
		return "Unbalanced () or equation too long at this line or above."
	case NoOutputEqn:
		return fmt.Sprintf("Output variable '%s' is not computed anywhere.", subject)
	case DupSect:
		return fmt.Sprintf("Only one '%s' section is allowed.", subject)
	case NoEnd:
		return fmt.Sprintf("End keyword is missing in file %s.", subject)
	}
	return subject
}
