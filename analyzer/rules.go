package analyzer

import (
	"github.com/thiremani/simmod/builtins"
	"github.com/thiremani/simmod/dosing"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

// defineGlobal handles assignments outside any section. For States,
// Outputs and Inputs they are initial values.
func (a *Analyzer) defineGlobal(name, eqn string, form Form, rec *symbols.Record) error {
	tab := a.Table
	if form == InlineCode {
		a.insert(tab.Globals, builtins.Inline, symbols.Equation(eqn), symbols.Inline)
		return nil
	}

	switch kind := kindOf(rec); kind {
	case symbols.Null:
		if builtins.IsReserved(name) {
			return a.Report(token.Fatal, token.BadContext, name, "")
		}
		r := a.insert(tab.Globals, name, symbols.Equation(eqn), symbols.Parameter)
		r.Placeholder = true

	case symbols.Parameter:
		if rec.HasContent() {
			return a.redefined(name)
		}
		rec.SetContent(symbols.Equation(eqn))

	case symbols.Input:
		if rec.HasContent() {
			return a.redefined(name)
		}
		d, err := dosing.Parse(eqn, tab)
		if err != nil {
			return a.dosingError(err)
		}
		rec.SetContent(d)

	case symbols.State, symbols.Output:
		// The most recent record is the initializer once there is one.
		if rec.HasContent() {
			return a.redefined(name)
		}
		r := a.insert(tab.Globals, name, symbols.Equation(eqn), kind)
		r.Initializer = true

	default:
		return a.Report(token.Error, token.BadContext, name, "")
	}
	return nil
}

func (a *Analyzer) redefined(name string) error {
	return a.ReportMsg(token.Warning, token.Redef, token.Message(token.Redef, name, "")+" * Ignoring")
}

// defineDynamics handles the Dynamics section. Only derivatives of States,
// Outputs and local variables may be assigned.
func (a *Analyzer) defineDynamics(name, eqn string, form Form, rec *symbols.Record) error {
	tab := a.Table
	switch form {
	case InlineCode:
		a.insert(tab.Dynamics, builtins.Inline, symbols.Equation(eqn), symbols.Inline)
		return nil
	case Deriv:
		a.insert(tab.Dynamics, name, symbols.Equation(eqn), symbols.Derivative)
		return nil
	case Func:
		if rec != nil {
			return a.redefined(name)
		}
		a.insert(tab.Globals, name, symbols.Equation(eqn), symbols.Function)
		return nil
	}

	switch kind := kindOf(rec); kind {
	case symbols.Null:
		if builtins.IsReserved(name) {
			return a.Report(token.Fatal, token.BadContext, name, "")
		}
		a.insert(tab.Globals, name, nil, symbols.LocalDyn)
		a.insert(tab.Dynamics, name, symbols.Equation(eqn), symbols.LocalDyn)

	case symbols.LocalDyn, symbols.Output:
		a.insert(tab.Dynamics, name, symbols.Equation(eqn), kind)

	case symbols.State:
		if err := a.ReportMsg(token.Warning, token.NoCode, "Non-standard assignment in Dynamics section. Potential state discontinuity."); err != nil {
			return err
		}
		a.insert(tab.Dynamics, name, symbols.Equation(eqn), kind)

	case symbols.Input, symbols.Parameter:
		return a.ReportMsg(token.Fatal, token.BadContext,
			token.Message(token.BadContext, name, "")+" Inputs and parameters cannot be assigned in Dynamics.")

	default:
		return a.Report(token.Fatal, token.BadContext, name, "")
	}
	return nil
}

// defineSection handles Jacobian, Scale, Events and Roots. A name may have
// any number of local equations but only one equation of a global kind.
func (a *Analyzer) defineSection(name, eqn string, form Form, rec *symbols.Record) error {
	tab := a.Table
	stack := Stack(tab, a.ctx)
	local := a.ctx.LocalKind()

	if form == InlineCode {
		a.insert(stack, builtins.Inline, symbols.Equation(eqn), symbols.Inline)
		return nil
	}
	if form == Func {
		return a.Report(token.Fatal, token.BadContext, name, "")
	}

	kind := kindOf(rec)
	switch kind {
	case symbols.Null:
		if builtins.IsReserved(name) {
			return a.Report(token.Fatal, token.BadContext, name, "")
		}
		a.insert(tab.Globals, name, nil, local)
		kind = local
	case symbols.Input, symbols.Function, symbols.Inline:
		return a.Report(token.Fatal, token.BadContext, name, "")
	}

	if kind != local && stack.Lookup(name) != nil {
		return a.redefined(name)
	}
	a.insert(stack, name, symbols.Equation(eqn), kind)
	if a.ctx == Scale {
		a.ScaleEquations++
	}
	return nil
}

// defineCalcOutputs handles the CalcOutputs section, where only Outputs and
// local variables may be assigned. Redefinitions are allowed.
func (a *Analyzer) defineCalcOutputs(name, eqn string, form Form, rec *symbols.Record) error {
	tab := a.Table
	if form == InlineCode {
		a.insert(tab.CalcOutputs, builtins.Inline, symbols.Equation(eqn), symbols.Inline)
		return nil
	}

	kind := kindOf(rec)
	switch {
	case form == Func:
		return a.Report(token.Fatal, token.BadContext, name, "")
	case kind == symbols.Null:
		if builtins.IsReserved(name) {
			return a.Report(token.Fatal, token.BadContext, name, "")
		}
		a.insert(tab.Globals, name, nil, symbols.LocalCalcOut)
		kind = symbols.LocalCalcOut
	case kind != symbols.Output && kind != symbols.LocalCalcOut:
		return a.ReportMsg(token.Fatal, token.BadContext,
			token.Message(token.BadContext, name, "")+" Only outputs and local variables can be defined in CalcOutputs{} section.")
	}
	a.insert(tab.CalcOutputs, name, symbols.Equation(eqn), kind)
	return nil
}
