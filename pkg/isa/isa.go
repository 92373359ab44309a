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

// Package isa describes the instruction word of the SS32 processor.
//
// Every instruction is one little-endian 32-bit word laid out as
//
//	[opcode:8][regA:4][regB:4][regC:4][disp:12]
//
// with disp sign-extended from bit 11. The displacement occupies the low
// byte of the word and the low nibble of the second byte; PackDisp and
// UnpackDisp are the only code that should touch that split.
package isa

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

const WordSize = 4

const (
	DispMin = -2048
	DispMax = 2047
)

// General purpose registers with special roles.
const (
	SP = 14
	PC = 15
)

// Control and status registers.
const (
	Status  = 0
	Handler = 1
	Cause   = 2
)

// Opcodes. The names give the addressing form the target executes.
const (
	OpHalt = 0x00
	OpInt  = 0x10

	OpCall    = 0x20 // push pc; pc = gprA + gprB + D
	OpCallMem = 0x21 // push pc; pc = mem[gprA + gprB + D]

	OpJmp    = 0x30 // pc = gprA + D
	OpBeq    = 0x31 // if (gprB == gprC) pc = gprA + D
	OpBne    = 0x32
	OpBgt    = 0x33
	OpJmpMem = 0x38 // pc = mem[gprA + D]
	OpBeqMem = 0x39 // if (gprB == gprC) pc = mem[gprA + D]
	OpBneMem = 0x3A
	OpBgtMem = 0x3B

	OpXchg = 0x40

	OpAdd = 0x50
	OpSub = 0x51
	OpMul = 0x52
	OpDiv = 0x53

	OpNot = 0x60
	OpAnd = 0x61
	OpOr  = 0x62
	OpXor = 0x63

	OpShl = 0x70
	OpShr = 0x71

	OpStore      = 0x80 // mem[gprA + gprB + D] = gprC
	OpStorePush  = 0x81 // gprA = gprA + D; mem[gprA] = gprC
	OpStoreInd   = 0x82 // mem[mem[gprA + gprB + D]] = gprC
	OpCsrRead    = 0x90 // gprA = csrB
	OpLoadImm    = 0x91 // gprA = gprB + D
	OpLoad       = 0x92 // gprA = mem[gprB + gprC + D]
	OpLoadPop    = 0x93 // gprA = mem[gprB]; gprB = gprB + D
	OpCsrWrite   = 0x94 // csrA = gprB
	OpCsrLoadPop = 0x97 // csrA = mem[gprB]; gprB = gprB + D
)

// Fixed words.
const (
	HaltWord = 0x00000000
	IntWord  = 0x10000000
	RetWord  = 0x93FE0004

	// iret is "pop pc" followed by "pop status". The target executes
	// the pair as one instruction.
	IretStatusWord = 0x970E0004
)

// Encode packs the fields of an instruction word. Register fields are
// masked to four bits and disp to twelve.
func Encode(op, a, b, c int, disp int32) uint32 {
	return uint32(op&0xFF)<<24 |
		uint32(a&0xF)<<20 |
		uint32(b&0xF)<<16 |
		uint32(c&0xF)<<12 |
		uint32(disp)&0xFFF
}

// Fields splits a word into its parts. disp is sign-extended.
func Fields(w uint32) (op, a, b, c int, disp int32) {
	op = int(w >> 24)
	a = int(w>>20) & 0xF
	b = int(w>>16) & 0xF
	c = int(w>>12) & 0xF
	disp = int32(w<<20) >> 20
	return
}

func FitsDisp(v int64) bool {
	return v >= DispMin && v <= DispMax
}

// DispOverflowError reports a value that does not fit the 12-bit field.
type DispOverflowError int64

func (e DispOverflowError) Error() string {
	return fmt.Sprintf("displacement %d does not fit in 12 bits", int64(e))
}

// PackDisp stores v into the displacement field of the little-endian
// word at the start of word, leaving the regC nibble intact.
func PackDisp(word []byte, v int64) error {
	if !FitsDisp(v) {
		return DispOverflowError(v)
	}
	word[0] = byte(v)
	word[1] = word[1]&0xF0 | byte(v>>8)&0x0F
	return nil
}

// UnpackDisp is the inverse of PackDisp.
func UnpackDisp(word []byte) int32 {
	raw := int32(word[0]) | int32(word[1]&0x0F)<<8
	return raw << 20 >> 20
}

func PutWord(b []byte, w uint32) {
	binary.LittleEndian.PutUint32(b, w)
}

func Word(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

var gprNames = map[string]int{
	"sp": SP,
	"pc": PC,
}

var csrNames = map[string]int{
	"status":  Status,
	"handler": Handler,
	"cause":   Cause,
}

// LookupGPR maps r0..r15, sp and pc to a register number.
func LookupGPR(name string) (int, bool) {
	if n, ok := gprNames[name]; ok {
		return n, true
	}
	if strings.HasPrefix(name, "r") {
		n, err := strconv.Atoi(name[1:])
		if err == nil && n >= 0 && n <= 15 && strconv.Itoa(n) == name[1:] {
			return n, true
		}
	}
	return 0, false
}

func LookupCSR(name string) (int, bool) {
	n, ok := csrNames[name]
	return n, ok
}
