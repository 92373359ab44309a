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

// The assembler consumes a stream of Items. Each variant carries only
// the fields its form uses. Pos is the source line.

type Item interface {
	SourceLine() int
	item()
}

type Pos int

func (p Pos) SourceLine() int { return int(p) }
func (Pos) item()             {}

// Mnemonics.
type Op int

const (
	Halt Op = iota
	Int
	Iret
	Call
	Ret
	Jmp
	Beq
	Bne
	Bgt
	Push
	Pop
	Xchg
	Add
	Sub
	Mul
	Div
	Not
	And
	Or
	Xor
	Shl
	Shr
	Ld
	St
	Csrrd
	Csrwr
)

var opNames = [...]string{
	"halt", "int", "iret", "call", "ret", "jmp", "beq", "bne", "bgt",
	"push", "pop", "xchg", "add", "sub", "mul", "div", "not", "and",
	"or", "xor", "shl", "shr", "ld", "st", "csrrd", "csrwr",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return "?"
}

// Operands. Branch and call targets use Mem and MemSym.

type Operand interface {
	operand()
}

type Imm struct{ Value int64 }        // $5
type ImmSym struct{ Name string }     // $x
type Mem struct{ Addr int64 }         // 5
type MemSym struct{ Name string }     // x
type Reg struct{ R int }              // %r1
type RegInd struct{ R int }           // [%r1]
type RegLit struct {                  // [%r1 + 5]
	R    int
	Disp int64
}
type RegSym struct { // [%r1 + x]
	R    int
	Name string
}

func (Imm) operand()    {}
func (ImmSym) operand() {}
func (Mem) operand()    {}
func (MemSym) operand() {}
func (Reg) operand()    {}
func (RegInd) operand() {}
func (RegLit) operand() {}
func (RegSym) operand() {}

// Instructions, by family.

type Label struct {
	Pos
	Name string
}

// Simple is halt, int, iret and ret.
type Simple struct {
	Pos
	Op Op
}

// Jump is call and jmp.
type Jump struct {
	Pos
	Op     Op
	Target Operand
}

// Branch is beq, bne and bgt.
type Branch struct {
	Pos
	Op     Op
	R1, R2 int
	Target Operand
}

// OneReg is push, pop and not.
type OneReg struct {
	Pos
	Op Op
	R  int
}

// TwoReg is xchg and the arithmetic, logic and shift instructions.
type TwoReg struct {
	Pos
	Op       Op
	Src, Dst int
}

type Load struct {
	Pos
	Src Operand
	Dst int
}

type Store struct {
	Pos
	Src int
	Dst Operand
}

type CsrRead struct {
	Pos
	Csr, Dst int
}

type CsrWrite struct {
	Pos
	Src, Csr int
}

// Directives.

type Global struct {
	Pos
	Names []string
}

type Extern struct {
	Pos
	Names []string
}

type Section struct {
	Pos
	Name string
}

// Term is one signed element of a .word list or .equ expression. An
// empty Symbol means the term is Literal.
type Term struct {
	Neg     bool
	Symbol  string
	Literal int64
}

type Word struct {
	Pos
	Values []Term
}

type Skip struct {
	Pos
	Size int64
}

// Ascii carries the text between the quotes with escapes unprocessed.
type Ascii struct {
	Pos
	Text string
}

type Equ struct {
	Pos
	Name  string
	Terms []Term
}

type End struct {
	Pos
}
