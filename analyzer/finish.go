package analyzer

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

// ErrRejected is returned by Finish when errors were reported earlier.
var ErrRejected = errors.New("model rejected")

// Finish runs the checks the code generator relies on and seals the table:
// every State has a derivative, every Output is computed somewhere, no kind
// overflows its array and every dosing dependency points at its final slot.
func (a *Analyzer) Finish() error {
	a.ctx = End
	tab := a.Table

	for _, r := range tab.Globals.Records() {
		if !r.HasSlot() {
			continue
		}
		a.tok = token.Token{FileName: a.tok.FileName, Line: r.Line}
		switch r.Kind {
		case symbols.State:
			if !hasEquation(tab.Dynamics, r.Name, symbols.Derivative) {
				return a.Report(token.Fatal, token.NoDynEqn, r.Name, "")
			}
		case symbols.Output:
			if tab.CalcOutputs.Lookup(r.Name) == nil && tab.Dynamics.Lookup(r.Name) == nil {
				return a.Report(token.Fatal, token.NoOutputEqn, r.Name, "")
			}
		case symbols.Input:
			if !r.HasContent() {
				if err := a.Report(token.Warning, token.NoInpDef, r.Name, ""); err != nil {
					return err
				}
			}
		}
	}

	for _, k := range symbols.SlotKinds {
		if n := tab.Count(k); n > a.opts.MaxIndex {
			return a.Report(token.Fatal, token.TooManyVars, k.String(), strconv.Itoa(a.opts.MaxIndex))
		}
	}

	if err := a.adjustHandles(); err != nil {
		return err
	}

	if n := a.rep.Errors(); n > 0 {
		return fmt.Errorf("%w: %d error(s)", ErrRejected, n)
	}
	tab.Seal()
	return nil
}

func hasEquation(s *symbols.Stack, name string, kind symbols.Kind) bool {
	for _, r := range s.Records() {
		if r.Name == name && r.Kind == kind {
			return true
		}
	}
	return false
}

// adjustHandles re-resolves the dependencies of every dosing record. A
// declaration that promoted an earlier parameter shifts the slots of the
// parameters after it, so handles predicted before the promotion may be
// stale.
func (a *Analyzer) adjustHandles() error {
	for _, r := range a.Table.Globals.Records() {
		d := r.Dosing()
		if d == nil {
			continue
		}
		for _, arg := range d.Args() {
			if !arg.IsDependency() {
				continue
			}
			h, ok := a.Table.ComputeHandle(arg.Param)
			if !ok {
				a.tok = token.Token{FileName: a.tok.FileName, Line: r.Line}
				return a.Report(token.Fatal, token.Undefined, arg.Param, "")
			}
			arg.Handle = h
		}
	}
	return nil
}
