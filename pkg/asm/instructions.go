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

	"github.com/gmofishsauce/ss32/pkg/isa"
)

var aluOpcodes = map[Op]int{
	Add: isa.OpAdd, Sub: isa.OpSub, Mul: isa.OpMul, Div: isa.OpDiv,
	And: isa.OpAnd, Or: isa.OpOr, Xor: isa.OpXor,
	Shl: isa.OpShl, Shr: isa.OpShr,
}

// flowForm describes an instruction whose operand is either a short
// literal encoded in place or a word read from a literal pool slot.
type flowForm struct {
	direct func(disp int32) uint32 // operand fits the displacement field
	pooled uint32                  // placeholder that reads a pool slot through pc
	kind   refKind
	regA   int
	regB   int
}

func jumpForm(op Op) flowForm {
	if op == Call {
		return flowForm{
			direct: func(d int32) uint32 { return isa.Encode(isa.OpCall, 0, 0, 0, d) },
			pooled: isa.Encode(isa.OpCallMem, isa.PC, 0, 0, 0),
			kind:   refCall,
		}
	}
	return flowForm{
		direct: func(d int32) uint32 { return isa.Encode(isa.OpJmp, 0, 0, 0, d) },
		pooled: isa.Encode(isa.OpJmpMem, isa.PC, 0, 0, 0),
		kind:   refJmp,
	}
}

var branchOps = map[Op]struct {
	direct, pooled int
	kind           refKind
}{
	Beq: {isa.OpBeq, isa.OpBeqMem, refBeq},
	Bne: {isa.OpBne, isa.OpBneMem, refBne},
	Bgt: {isa.OpBgt, isa.OpBgtMem, refBgt},
}

func branchForm(op Op, r1, r2 int) flowForm {
	b := branchOps[op]
	return flowForm{
		direct: func(d int32) uint32 { return isa.Encode(b.direct, 0, r1, r2, d) },
		pooled: isa.Encode(b.pooled, isa.PC, r1, r2, 0),
		kind:   b.kind,
		regA:   r1,
		regB:   r2,
	}
}

func loadImmForm(dst int) flowForm {
	return flowForm{
		direct: func(d int32) uint32 { return isa.Encode(isa.OpLoadImm, dst, 0, 0, d) },
		pooled: isa.Encode(isa.OpLoad, dst, isa.PC, 0, 0),
		kind:   refLd,
		regA:   dst,
	}
}

func storeMemForm(src int) flowForm {
	return flowForm{
		direct: func(d int32) uint32 { return isa.Encode(isa.OpStore, 0, 0, src, d) },
		pooled: isa.Encode(isa.OpStoreInd, isa.PC, 0, src, 0),
		kind:   refSt,
		regA:   src,
	}
}

// directWord is the pc-relative form a forward reference is rewritten
// to when its symbol turns out to be close by in the same section.
func directWord(ref forwardRef, disp int32) uint32 {
	switch ref.kind {
	case refCall:
		return isa.Encode(isa.OpCall, isa.PC, 0, 0, disp)
	case refJmp:
		return isa.Encode(isa.OpJmp, isa.PC, 0, 0, disp)
	case refBeq:
		return isa.Encode(isa.OpBeq, isa.PC, ref.regA, ref.regB, disp)
	case refBne:
		return isa.Encode(isa.OpBne, isa.PC, ref.regA, ref.regB, disp)
	case refBgt:
		return isa.Encode(isa.OpBgt, isa.PC, ref.regA, ref.regB, disp)
	case refLd:
		return isa.Encode(isa.OpLoadImm, ref.regA, isa.PC, 0, disp)
	case refSt:
		return isa.Encode(isa.OpStore, isa.PC, 0, ref.regA, disp)
	}
	panic(fmt.Sprintf("no direct form for reference kind %d", ref.kind))
}

func (a *Assembler) instruction(it Item) error {
	line := it.SourceLine()
	if _, err := a.requireSection(line, "instruction"); err != nil {
		return err
	}
	switch in := it.(type) {
	case *Simple:
		switch in.Op {
		case Halt:
			a.emit(isa.HaltWord)
		case Int:
			a.emit(isa.IntWord)
		case Ret:
			a.emit(isa.RetWord)
		case Iret:
			a.emit(isa.RetWord)
			a.emit(isa.IretStatusWord)
		default:
			return a.errorf(ErrSyntax, line, "%s takes operands", in.Op)
		}
	case *Jump:
		if !isTarget(in.Target) {
			return a.errorf(ErrInvalidAddressing, line, "%s: target must be a literal or a symbol", in.Op)
		}
		return a.flow(line, in.Op, jumpForm(in.Op), in.Target)
	case *Branch:
		if !isTarget(in.Target) {
			return a.errorf(ErrInvalidAddressing, line, "%s: target must be a literal or a symbol", in.Op)
		}
		return a.flow(line, in.Op, branchForm(in.Op, in.R1, in.R2), in.Target)
	case *OneReg:
		switch in.Op {
		case Push:
			a.emit(isa.Encode(isa.OpStorePush, isa.SP, 0, in.R, -isa.WordSize))
		case Pop:
			a.emit(isa.Encode(isa.OpLoadPop, in.R, isa.SP, 0, isa.WordSize))
		case Not:
			a.emit(isa.Encode(isa.OpNot, in.R, in.R, 0, 0))
		default:
			return a.errorf(ErrSyntax, line, "%s does not take one register", in.Op)
		}
	case *TwoReg:
		if in.Op == Xchg {
			a.emit(isa.Encode(isa.OpXchg, 0, in.Src, in.Dst, 0))
			return nil
		}
		oc, ok := aluOpcodes[in.Op]
		if !ok {
			return a.errorf(ErrSyntax, line, "%s does not take two registers", in.Op)
		}
		a.emit(isa.Encode(oc, in.Dst, in.Dst, in.Src, 0))
	case *Load:
		return a.load(line, in.Src, in.Dst)
	case *Store:
		return a.store(line, in.Src, in.Dst)
	case *CsrRead:
		a.emit(isa.Encode(isa.OpCsrRead, in.Dst, in.Csr, 0, 0))
	case *CsrWrite:
		a.emit(isa.Encode(isa.OpCsrWrite, in.Csr, in.Src, 0, 0))
	default:
		return a.errorf(ErrSyntax, line, "unexpected item %T", it)
	}
	return nil
}

func isTarget(op Operand) bool {
	switch op.(type) {
	case *Mem, *MemSym:
		return true
	}
	return false
}

// constant returns the value of name if it is a defined absolute symbol.
func (a *Assembler) constant(name string) (int64, bool) {
	sym, ok := a.symbols.lookup(name)
	if !ok || !sym.defined || sym.kind != KindAbsolute {
		return 0, false
	}
	return int64(int32(sym.value)), true
}

// flow encodes call, jmp, the branches, ld $x and st x.
func (a *Assembler) flow(line int, op Op, form flowForm, target Operand) error {
	var lit int64
	switch t := target.(type) {
	case *Mem:
		lit = t.Addr
	case *Imm:
		lit = t.Value
	case *MemSym:
		return a.flowSymbol(line, form, t.Name)
	case *ImmSym:
		return a.flowSymbol(line, form, t.Name)
	default:
		return a.errorf(ErrInvalidAddressing, line, "%s: invalid operand", op)
	}
	a.flowLiteral(line, form, lit)
	return nil
}

func (a *Assembler) flowLiteral(line int, form flowForm, lit int64) {
	if isa.FitsDisp(lit) {
		a.emit(form.direct(int32(lit)))
		return
	}
	off := a.emit(form.pooled)
	a.current.sec.literals.add(uint32(lit), poolSite{off, line})
}

func (a *Assembler) flowSymbol(line int, form flowForm, name string) error {
	if v, ok := a.constant(name); ok {
		a.flowLiteral(line, form, v)
		return nil
	}
	off := a.emit(form.pooled)
	ref := forwardRef{
		section: a.current.index,
		offset:  off,
		kind:    form.kind,
		line:    line,
		regA:    form.regA,
		regB:    form.regB,
	}
	sym := a.symbols.get(name, line)
	if sym.defined {
		a.resolveOperand(sym, ref)
		return nil
	}
	sym.refs = append(sym.refs, ref)
	return nil
}

// resolveOperand rewrites the instruction at ref to its direct form if
// sym lies within reach in the same section, and otherwise routes it
// through the section's symbol literal pool.
func (a *Assembler) resolveOperand(sym *symbol, ref forwardRef) {
	sec := a.symbols.at(ref.section).sec
	if ref.kind != refOperand && (sym.kind == KindRegular || sym.kind == KindSection) && sym.section == ref.section {
		disp := int64(sym.value) - int64(ref.offset+isa.WordSize)
		if isa.FitsDisp(disp) {
			sec.patchWord(ref.offset, directWord(ref, int32(disp)))
			return
		}
	}
	sec.symLiterals.add(uint32(sym.index), poolSite{ref.offset, ref.line})
}

// baseDisp encodes word with the displacement named by a symbol that
// must be a constant. Unknown symbols become CONSTANT references.
func (a *Assembler) baseDisp(line int, word uint32, name string) error {
	sym := a.symbols.get(name, line)
	if !sym.defined {
		off := a.emit(word)
		sym.refs = append(sym.refs, forwardRef{section: a.current.index, offset: off, kind: refConstant, line: line})
		return nil
	}
	if sym.kind != KindAbsolute {
		return a.errorf(ErrInvalidAddressing, line, "%s is not a constant and cannot be a displacement", name)
	}
	v := int64(int32(sym.value))
	if !isa.FitsDisp(v) {
		return a.errorf(ErrDisplacementOverflow, line, "%s = %d does not fit in 12 bits", name, v)
	}
	a.emit(word | uint32(v)&0xFFF)
	return nil
}

func (a *Assembler) regLit(line int, word uint32, disp int64) error {
	if !isa.FitsDisp(disp) {
		return a.errorf(ErrDisplacementOverflow, line, "displacement %d does not fit in 12 bits", disp)
	}
	a.emit(word | uint32(disp)&0xFFF)
	return nil
}

func (a *Assembler) load(line int, src Operand, dst int) error {
	switch op := src.(type) {
	case *Imm, *ImmSym:
		return a.flow(line, Ld, loadImmForm(dst), src)
	case *Mem:
		a.loadMem(line, dst, op.Addr)
	case *MemSym:
		if v, ok := a.constant(op.Name); ok {
			a.loadMem(line, dst, v)
			return nil
		}
		// ld x, %r is two words: fetch the address of x from the pool,
		// then load through it.
		off := a.emit(isa.Encode(isa.OpLoad, dst, isa.PC, 0, 0))
		a.emit(isa.Encode(isa.OpLoad, dst, dst, 0, 0))
		sym := a.symbols.get(op.Name, line)
		a.current.sec.symLiterals.add(uint32(sym.index), poolSite{off, line})
	case *Reg:
		a.emit(isa.Encode(isa.OpLoadImm, dst, op.R, 0, 0))
	case *RegInd:
		a.emit(isa.Encode(isa.OpLoad, dst, op.R, 0, 0))
	case *RegLit:
		return a.regLit(line, isa.Encode(isa.OpLoad, dst, op.R, 0, 0), op.Disp)
	case *RegSym:
		return a.baseDisp(line, isa.Encode(isa.OpLoad, dst, op.R, 0, 0), op.Name)
	default:
		return a.errorf(ErrInvalidAddressing, line, "ld: invalid operand")
	}
	return nil
}

func (a *Assembler) loadMem(line int, dst int, addr int64) {
	if isa.FitsDisp(addr) {
		a.emit(isa.Encode(isa.OpLoad, dst, 0, 0, int32(addr)))
		return
	}
	off := a.emit(isa.Encode(isa.OpLoad, dst, isa.PC, 0, 0))
	a.emit(isa.Encode(isa.OpLoad, dst, dst, 0, 0))
	a.current.sec.literals.add(uint32(addr), poolSite{off, line})
}

func (a *Assembler) store(line int, src int, dst Operand) error {
	switch op := dst.(type) {
	case *Imm, *ImmSym:
		return a.errorf(ErrInvalidAddressing, line, "store with immediate addressing")
	case *Mem, *MemSym:
		return a.flow(line, St, storeMemForm(src), dst)
	case *Reg:
		a.emit(isa.Encode(isa.OpLoadImm, op.R, src, 0, 0))
	case *RegInd:
		a.emit(isa.Encode(isa.OpStore, op.R, 0, src, 0))
	case *RegLit:
		return a.regLit(line, isa.Encode(isa.OpStore, op.R, 0, src, 0), op.Disp)
	case *RegSym:
		return a.baseDisp(line, isa.Encode(isa.OpStore, op.R, 0, src, 0), op.Name)
	default:
		return a.errorf(ErrInvalidAddressing, line, "st: invalid operand")
	}
	return nil
}
