/*
Copyright © 2022 Jeff Berkowitz (pdxjjb@gmail.com)

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package asm

import (
	"github.com/golang/glog"
)

// equDef is a pending or evaluated .equ.
type equDef struct {
	target *symbol
	terms  []Term
	line   int
}

func (a *Assembler) equ(line int, name string, terms []Term) error {
	sym := a.symbols.get(name, line)
	if sym.defined {
		return a.errorf(ErrRedefinition, line, ".equ %s: symbol is already defined", name)
	}
	if a.pending(sym) {
		return a.errorf(ErrRedefinition, line, ".equ %s: symbol already has a pending definition", name)
	}
	for _, t := range terms {
		if t.Symbol != "" {
			a.symbols.get(t.Symbol, line)
		}
	}
	def := &equDef{target: sym, terms: terms, line: line}
	ok, err := a.solve(def)
	if err != nil {
		return err
	}
	if !ok {
		glog.V(1).Infof("%s:%d: .equ %s deferred", a.source, line, name)
		a.tns = append(a.tns, def)
		return nil
	}
	return a.defined()
}

func (a *Assembler) pending(sym *symbol) bool {
	for _, def := range a.tns {
		if def.target == sym {
			return true
		}
	}
	return false
}

// defined retries the deferred .equ definitions after a new symbol
// has been defined, until a full sweep makes no progress.
func (a *Assembler) defined() error {
	for progress := true; progress && len(a.tns) > 0; {
		progress = false
		remaining := a.tns[:0]
		for _, def := range a.tns {
			ok, err := a.solve(def)
			if err != nil {
				return err
			}
			if ok {
				progress = true
			} else {
				remaining = append(remaining, def)
			}
		}
		a.tns = remaining
	}
	return nil
}

// origin returns the key a term is grouped by: the section a regular
// symbol lives in, the extern an extern-relative symbol is based on, the
// extern itself, or 0 for a constant.
func origin(sym *symbol) int {
	switch sym.kind {
	case KindRegular, KindSection:
		return sym.section
	case KindExtern:
		return sym.index
	case KindExternRelative:
		return sym.relativeTo
	}
	return 0
}

// solve evaluates def if every symbol it names is defined. It reports
// whether def was evaluated.
func (a *Assembler) solve(def *equDef) (bool, error) {
	if def.target.defined {
		return false, a.errorf(ErrRedefinition, def.line, ".equ %s: symbol is already defined", def.target.name)
	}
	var value int64
	coefficients := make(map[int]int)
	var order []int
	for _, t := range def.terms {
		sign := int64(1)
		if t.Neg {
			sign = -1
		}
		if t.Symbol == "" {
			value += sign * t.Literal
			continue
		}
		sym, _ := a.symbols.lookup(t.Symbol)
		if !sym.defined {
			return false, nil
		}
		value += sign * int64(int32(sym.value))
		if key := origin(sym); key != 0 {
			if _, seen := coefficients[key]; !seen {
				order = append(order, key)
			}
			coefficients[key] += int(sign)
		}
	}

	base := 0
	for _, key := range order {
		c := coefficients[key]
		if c == 0 {
			continue
		}
		if c != 1 || base != 0 {
			return false, a.errorf(ErrInvalidEqu, def.line,
				".equ %s: expression is not a constant or a single relocatable value", def.target.name)
		}
		base = key
	}

	sym := def.target
	switch {
	case base == 0:
		sym.kind = KindAbsolute
		sym.section = 0
	case a.symbols.at(base).kind == KindExtern:
		if sym.global {
			return false, a.errorf(ErrInvalidEqu, def.line,
				".equ %s: relative to extern %s and cannot be global", sym.name, a.symbols.at(base).name)
		}
		sym.kind = KindExternRelative
		sym.relativeTo = base
		sym.section = 0
	default:
		sym.kind = KindRegular
		sym.section = base
	}
	sym.value = uint32(value)
	sym.defined = true
	glog.V(1).Infof("%s:%d: .equ %s = %s 0x%X", a.source, def.line, sym.name, sym.kind, sym.value)
	return true, nil
}

// unresolved reports the deferred definitions left at .end. A symbol
// that nothing will ever define is reported as undefined; otherwise the
// definitions depend on each other.
func (a *Assembler) unresolved() error {
	if len(a.tns) == 0 {
		return nil
	}
	for _, def := range a.tns {
		for _, t := range def.terms {
			if t.Symbol == "" {
				continue
			}
			sym, _ := a.symbols.lookup(t.Symbol)
			if !sym.defined && !a.pending(sym) {
				return a.errorf(ErrUndefinedSymbol, def.line, ".equ %s: undefined symbol %s", def.target.name, t.Symbol)
			}
		}
	}
	def := a.tns[0]
	return a.errorf(ErrCyclicEqu, def.line, "cyclic dependency detected among .equ symbols (%s)", def.target.name)
}
