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

// Package asm is the SS32 assembler.
//
// Translation is two-pass in the classic sense but reads its input only
// once. Pass 1 encodes each item as it arrives. Anything not yet known
// gets a placeholder and a forward reference or a literal pool entry.
// The .end directive resolves deferred .equ definitions, backpatches
// the forward references, appends each section's literal pools and
// builds the relocatable object.
package asm

import (
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/gmofishsauce/ss32/pkg/obj"
)

// Assembler holds all state of one assembly run.
type Assembler struct {
	source  string
	symbols *symbolTable
	current *symbol // active section, nil before the first .section
	tns     []*equDef
	ended   bool
	result  *obj.File
}

func New(source string) *Assembler {
	return &Assembler{
		source:  source,
		symbols: newSymbolTable(),
	}
}

// Assemble runs a complete stream of items.
func Assemble(source string, items []Item) (*obj.File, error) {
	a := New(source)
	for _, it := range items {
		if err := a.Process(it); err != nil {
			return nil, err
		}
	}
	return a.Object()
}

// AssembleSource parses and assembles source text.
func AssembleSource(source string, r io.Reader) (*obj.File, error) {
	items, err := Parse(source, r)
	if err != nil {
		return nil, err
	}
	return Assemble(source, items)
}

// Object returns the assembled object. It fails with ErrMissingEnd when
// no .end has been processed.
func (a *Assembler) Object() (*obj.File, error) {
	if !a.ended {
		return nil, a.errorf(ErrMissingEnd, 0, "missing .end directive")
	}
	return a.result, nil
}

// Process handles one item. Items after .end are ignored.
func (a *Assembler) Process(it Item) error {
	if a.ended {
		return nil
	}
	line := it.SourceLine()
	if glog.V(2) {
		glog.Infof("%s:%d: %T %+v", a.source, line, it, it)
	}
	switch it := it.(type) {
	case *Label:
		return a.label(line, it.Name)
	case *Global:
		return a.global(line, it.Names)
	case *Extern:
		return a.extern(line, it.Names)
	case *Section:
		return a.section(line, it.Name)
	case *Word:
		return a.word(line, it.Values)
	case *Skip:
		return a.skip(line, it.Size)
	case *Ascii:
		return a.ascii(line, it.Text)
	case *Equ:
		return a.equ(line, it.Name, it.Terms)
	case *End:
		return a.end(line)
	}
	return a.instruction(it)
}

func (a *Assembler) requireSection(line int, what string) (*section, error) {
	if a.current == nil {
		return nil, a.errorf(ErrOutsideSection, line, "%s outside of any section", what)
	}
	return a.current.sec, nil
}

// emit appends an instruction word to the active section.
func (a *Assembler) emit(w uint32) uint32 {
	return a.current.sec.appendWord(w)
}

func (a *Assembler) label(line int, name string) error {
	sec, err := a.requireSection(line, "label "+name)
	if err != nil {
		return err
	}
	sym := a.symbols.get(name, line)
	if sym.defined || a.pending(sym) {
		return a.errorf(ErrRedefinition, line, "symbol %s is already defined", name)
	}
	sym.kind = KindRegular
	sym.section = a.current.index
	sym.value = sec.lc()
	sym.defined = true
	return a.defined()
}

func (a *Assembler) section(line int, name string) error {
	sym := a.symbols.get(name, line)
	if sym.defined || a.pending(sym) {
		return a.errorf(ErrRedefinition, line, "section %s: symbol is already defined", name)
	}
	sym.kind = KindSection
	sym.section = sym.index
	sym.value = 0
	sym.defined = true
	sym.sec = &section{}
	a.current = sym
	glog.V(1).Infof("%s:%d: section %s", a.source, line, name)
	return a.defined()
}

func (a *Assembler) global(line int, names []string) error {
	for _, name := range names {
		sym := a.symbols.get(name, line)
		if sym.defined && sym.kind == KindExternRelative {
			return a.errorf(ErrInvalidEqu, line, "%s is relative to an extern and cannot be global", name)
		}
		sym.global = true
	}
	return nil
}

func (a *Assembler) extern(line int, names []string) error {
	for _, name := range names {
		sym := a.symbols.get(name, line)
		if sym.defined || a.pending(sym) {
			return a.errorf(ErrRedefinition, line, "%s is defined and cannot be extern", name)
		}
		sym.kind = KindExtern
		sym.global = true
		sym.defined = true
		sym.section = 0
		sym.value = 0
	}
	return a.defined()
}

func (a *Assembler) word(line int, values []Term) error {
	sec, err := a.requireSection(line, ".word")
	if err != nil {
		return err
	}
	for _, t := range values {
		if t.Symbol == "" {
			lit := t.Literal
			if t.Neg {
				lit = -lit
			}
			sec.appendWord(uint32(lit))
			continue
		}
		if t.Neg {
			return a.errorf(ErrSyntax, line, ".word: symbol %s cannot be negated", t.Symbol)
		}
		off := sec.appendWord(0)
		ref := forwardRef{section: a.current.index, offset: off, kind: refRegular, line: line}
		sym := a.symbols.get(t.Symbol, line)
		if sym.defined {
			a.patchRegular(sym, ref)
		} else {
			sym.refs = append(sym.refs, ref)
		}
	}
	return nil
}

func (a *Assembler) skip(line int, size int64) error {
	sec, err := a.requireSection(line, ".skip")
	if err != nil {
		return err
	}
	if size < 0 {
		return a.errorf(ErrSyntax, line, ".skip: negative size %d", size)
	}
	sec.appendBytes(make([]byte, size))
	return nil
}

func (a *Assembler) ascii(line int, text string) error {
	sec, err := a.requireSection(line, ".ascii")
	if err != nil {
		return err
	}
	b, err := unescape(text)
	if err != nil {
		return a.errorf(ErrSyntax, line, ".ascii: %s", err)
	}
	sec.appendBytes(b)
	return nil
}

var escapes = map[byte]byte{
	'n': '\n', 't': '\t', '0': 0, 'v': '\v', 'b': '\b', 'r': '\r',
	'f': '\f', 'a': '\a', '\'': '\'', '"': '"', '\\': '\\',
}

// unescape expands backslash escapes. No terminator is added.
func unescape(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i == len(s) {
			return nil, fmt.Errorf("trailing backslash")
		}
		e, ok := escapes[s[i]]
		if !ok {
			return nil, fmt.Errorf("unknown escape \\%c", s[i])
		}
		out = append(out, e)
	}
	return out, nil
}

// patchRegular resolves a whole-word reference to a defined symbol.
// Constants are written in place, everything else gets a relocation.
func (a *Assembler) patchRegular(sym *symbol, ref forwardRef) {
	sec := a.symbols.at(ref.section).sec
	if sym.kind == KindAbsolute {
		sec.patchWord(ref.offset, sym.value)
		return
	}
	target, addend := a.relocTarget(sym)
	sec.relocs = append(sec.relocs, reloc{offset: ref.offset, symbol: target, addend: addend})
}

// relocTarget picks the symbol a relocation names. Globals and externs
// relocate against themselves; locals against their section with the
// offset as addend; extern-relative symbols against their extern.
func (a *Assembler) relocTarget(sym *symbol) (int, int32) {
	switch {
	case sym.kind == KindExternRelative:
		return sym.relativeTo, int32(sym.value)
	case sym.global && sym.kind != KindSection:
		return sym.index, 0
	default:
		return sym.section, int32(sym.value)
	}
}
