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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gmofishsauce/ss32/pkg/isa"
)

// parseState turns tokens into Items, one source line at a time.
type parseState struct {
	source string
	ls     *lexState
	items  []Item
}

type directiveFunc func(ps *parseState, line int) (Item, error)

var directives map[string]directiveFunc

func init() {
	directives = map[string]directiveFunc{
		".global":  parseGlobal,
		".extern":  parseExtern,
		".section": parseSection,
		".word":    parseWord,
		".skip":    parseSkip,
		".ascii":   parseAscii,
		".equ":     parseEqu,
		".end":     parseEnd,
	}
}

var mnemonics = map[string]Op{}

func init() {
	for i, name := range opNames {
		mnemonics[name] = Op(i)
	}
}

// Parse reads source text and returns its items in order. It stops at
// the first syntax error.
func Parse(source string, r io.Reader) ([]Item, error) {
	ps := &parseState{source: source, ls: newLexState(r)}
	for {
		tk := getToken(ps.ls)
		switch tk.kind() {
		case tkEOF:
			return ps.items, nil
		case tkNewline:
			continue
		case tkSymbol:
			if err := ps.statement(tk); err != nil {
				return nil, err
			}
		case tkError:
			return nil, ps.errorf(tk.line, "%s", tk.text())
		default:
			return nil, ps.errorf(tk.line, "unexpected %s at start of statement", tk.text())
		}
	}
}

func (ps *parseState) errorf(line int, format string, args ...interface{}) error {
	return &Error{
		Source: ps.source,
		Line:   line,
		Kind:   ErrSyntax,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// statement parses an optional label and the directive or instruction
// that follows it on the same line.
func (ps *parseState) statement(first *token) error {
	line := first.line
	if next := peekToken(ps.ls); next.is(tkOperator, ":") {
		getToken(ps.ls)
		ps.items = append(ps.items, &Label{Pos(line), first.text()})
		first = getToken(ps.ls)
		switch first.kind() {
		case tkNewline, tkEOF:
			return nil
		case tkSymbol:
		default:
			return ps.errorf(line, "unexpected %s after label", first.text())
		}
	}

	var it Item
	var err error
	if strings.HasPrefix(first.text(), ".") {
		fn, ok := directives[strings.ToLower(first.text())]
		if !ok {
			return ps.errorf(line, "unknown directive %s", first.text())
		}
		it, err = fn(ps, line)
	} else {
		op, ok := mnemonics[strings.ToLower(first.text())]
		if !ok {
			return ps.errorf(line, "unknown instruction %s", first.text())
		}
		it, err = parseInstruction(ps, line, op)
	}
	if err != nil {
		return err
	}
	ps.items = append(ps.items, it)
	return mustGetEndOfLine(ps)
}

func mustGetEndOfLine(ps *parseState) error {
	tk := getToken(ps.ls)
	if tk.kind() == tkNewline || tk.kind() == tkEOF {
		return nil
	}
	return ps.errorf(tk.line, "unexpected %s at end of statement", tk.text())
}

func mustGetSymbol(ps *parseState) (string, error) {
	tk := getToken(ps.ls)
	if tk.kind() != tkSymbol {
		return "", ps.errorf(tk.line, "expected symbol, found \"%s\"", tk.text())
	}
	return tk.text(), nil
}

func mustGetOperator(ps *parseState, op string) error {
	tk := getToken(ps.ls)
	if !tk.is(tkOperator, op) {
		return ps.errorf(tk.line, "expected %s, found \"%s\"", op, tk.text())
	}
	return nil
}

func parseNumber(ps *parseState, tk *token) (int64, error) {
	n, err := strconv.ParseInt(tk.text(), 0, 64)
	if err != nil {
		return 0, ps.errorf(tk.line, "invalid number %s", tk.text())
	}
	return n, nil
}

// mustGetNumber accepts an optionally negated number.
func mustGetNumber(ps *parseState) (int64, error) {
	tk := getToken(ps.ls)
	neg := false
	if tk.is(tkOperator, "-") {
		neg = true
		tk = getToken(ps.ls)
	}
	if tk.kind() != tkNumber {
		return 0, ps.errorf(tk.line, "expected number, found \"%s\"", tk.text())
	}
	n, err := parseNumber(ps, tk)
	if neg {
		n = -n
	}
	return n, err
}

func mustGetRegister(ps *parseState) (int, error) {
	tk := getToken(ps.ls)
	if tk.kind() != tkRegister {
		return 0, ps.errorf(tk.line, "expected register, found \"%s\"", tk.text())
	}
	r, ok := isa.LookupGPR(strings.ToLower(tk.text()))
	if !ok {
		return 0, ps.errorf(tk.line, "unknown register %%%s", tk.text())
	}
	return r, nil
}

func mustGetCsr(ps *parseState) (int, error) {
	tk := getToken(ps.ls)
	if tk.kind() != tkRegister {
		return 0, ps.errorf(tk.line, "expected control register, found \"%s\"", tk.text())
	}
	r, ok := isa.LookupCSR(strings.ToLower(tk.text()))
	if !ok {
		return 0, ps.errorf(tk.line, "unknown control register %%%s", tk.text())
	}
	return r, nil
}

// mustGetTerm reads a number or a symbol, optionally preceded by a sign.
func mustGetTerm(ps *parseState, neg bool) (Term, error) {
	tk := getToken(ps.ls)
	if tk.is(tkOperator, "-") {
		neg = !neg
		tk = getToken(ps.ls)
	} else if tk.is(tkOperator, "+") {
		tk = getToken(ps.ls)
	}
	switch tk.kind() {
	case tkSymbol:
		return Term{Neg: neg, Symbol: tk.text()}, nil
	case tkNumber:
		n, err := parseNumber(ps, tk)
		return Term{Neg: neg, Literal: n}, err
	}
	return Term{}, ps.errorf(tk.line, "expected number or symbol, found \"%s\"", tk.text())
}

func mustGetSymbolList(ps *parseState) ([]string, error) {
	var names []string
	for {
		name, err := mustGetSymbol(ps)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if !peekToken(ps.ls).is(tkOperator, ",") {
			return names, nil
		}
		getToken(ps.ls)
	}
}

// Directives

func parseGlobal(ps *parseState, line int) (Item, error) {
	names, err := mustGetSymbolList(ps)
	return &Global{Pos(line), names}, err
}

func parseExtern(ps *parseState, line int) (Item, error) {
	names, err := mustGetSymbolList(ps)
	return &Extern{Pos(line), names}, err
}

func parseSection(ps *parseState, line int) (Item, error) {
	name, err := mustGetSymbol(ps)
	return &Section{Pos(line), name}, err
}

func parseWord(ps *parseState, line int) (Item, error) {
	w := &Word{Pos: Pos(line)}
	for {
		t, err := mustGetTerm(ps, false)
		if err != nil {
			return nil, err
		}
		w.Values = append(w.Values, t)
		if !peekToken(ps.ls).is(tkOperator, ",") {
			return w, nil
		}
		getToken(ps.ls)
	}
}

func parseSkip(ps *parseState, line int) (Item, error) {
	n, err := mustGetNumber(ps)
	return &Skip{Pos(line), n}, err
}

func parseAscii(ps *parseState, line int) (Item, error) {
	tk := getToken(ps.ls)
	if tk.kind() != tkString {
		return nil, ps.errorf(tk.line, ".ascii: expected string, found \"%s\"", tk.text())
	}
	return &Ascii{Pos(line), tk.text()}, nil
}

// .equ name, term { (+|-) term }
func parseEqu(ps *parseState, line int) (Item, error) {
	name, err := mustGetSymbol(ps)
	if err != nil {
		return nil, err
	}
	if err := mustGetOperator(ps, ","); err != nil {
		return nil, err
	}
	e := &Equ{Pos: Pos(line), Name: name}
	t, err := mustGetTerm(ps, false)
	if err != nil {
		return nil, err
	}
	e.Terms = append(e.Terms, t)
	for {
		next := peekToken(ps.ls)
		if !next.is(tkOperator, "+") && !next.is(tkOperator, "-") {
			return e, nil
		}
		getToken(ps.ls)
		t, err := mustGetTerm(ps, next.text() == "-")
		if err != nil {
			return nil, err
		}
		e.Terms = append(e.Terms, t)
	}
}

func parseEnd(ps *parseState, line int) (Item, error) {
	return &End{Pos(line)}, nil
}

// Instructions

func parseInstruction(ps *parseState, line int, op Op) (Item, error) {
	pos := Pos(line)
	switch op {
	case Halt, Int, Iret, Ret:
		return &Simple{pos, op}, nil
	case Call, Jmp:
		target, err := mustGetTarget(ps)
		return &Jump{pos, op, target}, err
	case Beq, Bne, Bgt:
		r1, r2, err := mustGetRegisterPair(ps)
		if err != nil {
			return nil, err
		}
		if err := mustGetOperator(ps, ","); err != nil {
			return nil, err
		}
		target, err := mustGetTarget(ps)
		return &Branch{pos, op, r1, r2, target}, err
	case Push, Pop, Not:
		r, err := mustGetRegister(ps)
		return &OneReg{pos, op, r}, err
	case Ld:
		src, err := mustGetOperand(ps)
		if err != nil {
			return nil, err
		}
		if err := mustGetOperator(ps, ","); err != nil {
			return nil, err
		}
		dst, err := mustGetRegister(ps)
		return &Load{pos, src, dst}, err
	case St:
		src, err := mustGetRegister(ps)
		if err != nil {
			return nil, err
		}
		if err := mustGetOperator(ps, ","); err != nil {
			return nil, err
		}
		dst, err := mustGetOperand(ps)
		return &Store{pos, src, dst}, err
	case Csrrd:
		csr, err := mustGetCsr(ps)
		if err != nil {
			return nil, err
		}
		if err := mustGetOperator(ps, ","); err != nil {
			return nil, err
		}
		dst, err := mustGetRegister(ps)
		return &CsrRead{pos, csr, dst}, err
	case Csrwr:
		src, err := mustGetRegister(ps)
		if err != nil {
			return nil, err
		}
		if err := mustGetOperator(ps, ","); err != nil {
			return nil, err
		}
		csr, err := mustGetCsr(ps)
		return &CsrWrite{pos, src, csr}, err
	default:
		src, dst, err := mustGetRegisterPair(ps)
		return &TwoReg{pos, op, src, dst}, err
	}
}

func mustGetRegisterPair(ps *parseState) (int, int, error) {
	r1, err := mustGetRegister(ps)
	if err != nil {
		return 0, 0, err
	}
	if err := mustGetOperator(ps, ","); err != nil {
		return 0, 0, err
	}
	r2, err := mustGetRegister(ps)
	return r1, r2, err
}

// mustGetTarget reads the operand of a jump or branch.
func mustGetTarget(ps *parseState) (Operand, error) {
	t, err := mustGetTerm(ps, false)
	if err != nil {
		return nil, err
	}
	if t.Symbol != "" {
		if t.Neg {
			return nil, ps.errorf(ps.ls.line, "symbol %s cannot be negated", t.Symbol)
		}
		return &MemSym{t.Symbol}, nil
	}
	return &Mem{signed(t)}, nil
}

func signed(t Term) int64 {
	if t.Neg {
		return -t.Literal
	}
	return t.Literal
}

// mustGetOperand reads a data operand:
//
//	$lit $sym lit sym %r [%r] [%r + lit] [%r - lit] [%r + sym]
func mustGetOperand(ps *parseState) (Operand, error) {
	tk := getToken(ps.ls)
	switch {
	case tk.is(tkOperator, "$"):
		t, err := mustGetTerm(ps, false)
		if err != nil {
			return nil, err
		}
		if t.Symbol != "" {
			if t.Neg {
				return nil, ps.errorf(tk.line, "symbol %s cannot be negated", t.Symbol)
			}
			return &ImmSym{t.Symbol}, nil
		}
		return &Imm{signed(t)}, nil
	case tk.kind() == tkRegister:
		ungetToken(ps.ls, tk)
		r, err := mustGetRegister(ps)
		return &Reg{r}, err
	case tk.is(tkOperator, "["):
		r, err := mustGetRegister(ps)
		if err != nil {
			return nil, err
		}
		next := getToken(ps.ls)
		if next.is(tkOperator, "]") {
			return &RegInd{r}, nil
		}
		if !next.is(tkOperator, "+") && !next.is(tkOperator, "-") {
			return nil, ps.errorf(next.line, "expected ], + or -, found \"%s\"", next.text())
		}
		t, err := mustGetTerm(ps, next.text() == "-")
		if err != nil {
			return nil, err
		}
		if err := mustGetOperator(ps, "]"); err != nil {
			return nil, err
		}
		if t.Symbol != "" {
			if t.Neg {
				return nil, ps.errorf(tk.line, "symbol %s cannot be negated", t.Symbol)
			}
			return &RegSym{r, t.Symbol}, nil
		}
		return &RegLit{r, signed(t)}, nil
	default:
		ungetToken(ps.ls, tk)
		return mustGetTarget(ps)
	}
}
