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
	"github.com/gmofishsauce/ss32/pkg/isa"
)

type SymbolKind int

const (
	KindRegular        SymbolKind = iota // offset within a section
	KindSection                          // owns a section; section == index
	KindAbsolute                         // constant
	KindExtern                           // defined in another object
	KindExternRelative                   // .equ of an extern plus a constant
)

var kindNames = [...]string{"regular", "section", "absolute", "extern", "extern-relative"}

func (k SymbolKind) String() string {
	return kindNames[k]
}

// How a forward reference is patched once its symbol is known.
type refKind int

const (
	refRegular  refKind = iota // whole word, value or relocation
	refConstant                // 12-bit displacement, must be absolute
	refOperand                 // pool slot only, never rewritten
	refCall
	refJmp
	refBeq
	refBne
	refBgt
	refLd
	refSt
)

type forwardRef struct {
	section int // symbol index of the referencing section
	offset  uint32
	kind    refKind
	line    int

	// Registers of the referencing instruction, needed when it is
	// rewritten to its direct form: beq r1 r2, ld dst, st src.
	regA, regB int
}

type poolSite struct {
	offset uint32
	line   int
}

// pool maps a key to the instruction sites reading its slot. Keys stay
// in first-use order so pool layout is deterministic.
type pool struct {
	keys  []uint32
	sites map[uint32][]poolSite
}

func (p *pool) add(key uint32, site poolSite) {
	if p.sites == nil {
		p.sites = make(map[uint32][]poolSite)
	}
	if _, ok := p.sites[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.sites[key] = append(p.sites[key], site)
}

type reloc struct {
	offset uint32
	symbol int
	addend int32
}

// section is the state owned by a section symbol. The location counter
// is len(data).
type section struct {
	data        []byte
	relocs      []reloc
	literals    pool // keyed by value
	symLiterals pool // keyed by symbol index
}

func (s *section) lc() uint32 {
	return uint32(len(s.data))
}

func (s *section) appendWord(w uint32) uint32 {
	off := s.lc()
	var b [isa.WordSize]byte
	isa.PutWord(b[:], w)
	s.data = append(s.data, b[:]...)
	return off
}

func (s *section) appendBytes(b []byte) {
	s.data = append(s.data, b...)
}

func (s *section) patchWord(off, w uint32) {
	isa.PutWord(s.data[off:], w)
}

func (s *section) patchDisplacement(off uint32, v int64) error {
	return isa.PackDisp(s.data[off:], v)
}

type symbol struct {
	name       string
	index      int
	kind       SymbolKind
	global     bool
	defined    bool
	value      uint32
	section    int // owning section symbol; 0 when none
	relativeTo int // KindExternRelative: the extern
	line       int // first mention
	refs       []forwardRef
	sec        *section
}

func (s *symbol) isSection() bool {
	return s.kind == KindSection && s.section == s.index
}

// symbolTable keeps symbols in creation order behind a name index.
// Entry 0 is the null symbol and is never returned by lookup.
type symbolTable struct {
	indexes map[string]int
	entries []*symbol
}

func newSymbolTable() *symbolTable {
	return &symbolTable{
		indexes: make(map[string]int),
		entries: []*symbol{{}},
	}
}

func (st *symbolTable) lookup(name string) (*symbol, bool) {
	i, ok := st.indexes[name]
	if !ok {
		return nil, false
	}
	return st.entries[i], true
}

// get returns the symbol called name, creating it undefined when absent.
func (st *symbolTable) get(name string, line int) *symbol {
	if sym, ok := st.lookup(name); ok {
		return sym
	}
	sym := &symbol{name: name, index: len(st.entries), line: line}
	st.indexes[name] = sym.index
	st.entries = append(st.entries, sym)
	return sym
}

func (st *symbolTable) addForwardRef(name string, ref forwardRef) *symbol {
	sym := st.get(name, ref.line)
	sym.refs = append(sym.refs, ref)
	return sym
}

func (st *symbolTable) at(index int) *symbol {
	return st.entries[index]
}

// symbols returns every entry except the null symbol.
func (st *symbolTable) symbols() []*symbol {
	return st.entries[1:]
}

func (st *symbolTable) sections() []*symbol {
	var secs []*symbol
	for _, s := range st.symbols() {
		if s.isSection() {
			secs = append(secs, s)
		}
	}
	return secs
}
