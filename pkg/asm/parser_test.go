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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) []Item {
	t.Helper()
	items, err := Parse(t.Name(), strings.NewReader(src))
	require.NoError(t, err)
	return items
}

func TestParseDirectives(t *testing.T) {
	items := parse(t, `
# comment line
.global a, b
.extern c
.section text
start: .word 1, -2, sym, -sym
	.skip 16
	.ASCII "hi\n"
.equ n, a - 4 + b
.end
`)
	assert.Equal(t, []Item{
		&Global{Pos(3), []string{"a", "b"}},
		&Extern{Pos(4), []string{"c"}},
		&Section{Pos(5), "text"},
		&Label{Pos(6), "start"},
		&Word{Pos(6), []Term{{Literal: 1}, {Neg: true, Literal: 2}, {Symbol: "sym"}, {Neg: true, Symbol: "sym"}}},
		&Skip{Pos(7), 16},
		&Ascii{Pos(8), `hi\n`},
		&Equ{Pos(9), "n", []Term{{Symbol: "a"}, {Neg: true, Literal: 4}, {Symbol: "b"}}},
		&End{Pos(10)},
	}, items)
}

func TestParseInstructions(t *testing.T) {
	items := parse(t, `
loop:
	halt
	JMP loop
	call 0x100
	bne %r1, %sp, loop
	push %pc
	add %r2, %r3
	ld $5, %r1
	ld $x, %r1
	ld 8, %r1
	ld x, %r1
	ld %r4, %r1
	ld [%r4], %r1
	ld [%r4 - 4], %r1
	st %r1, [%r4 + x]
	csrrd %status, %r1
	csrwr %r1, %cause
`)
	assert.Equal(t, []Item{
		&Label{Pos(2), "loop"},
		&Simple{Pos(3), Halt},
		&Jump{Pos(4), Jmp, &MemSym{"loop"}},
		&Jump{Pos(5), Call, &Mem{0x100}},
		&Branch{Pos(6), Bne, 1, 14, &MemSym{"loop"}},
		&OneReg{Pos(7), Push, 15},
		&TwoReg{Pos(8), Add, 2, 3},
		&Load{Pos(9), &Imm{5}, 1},
		&Load{Pos(10), &ImmSym{"x"}, 1},
		&Load{Pos(11), &Mem{8}, 1},
		&Load{Pos(12), &MemSym{"x"}, 1},
		&Load{Pos(13), &Reg{4}, 1},
		&Load{Pos(14), &RegInd{4}, 1},
		&Load{Pos(15), &RegLit{4, -4}, 1},
		&Store{Pos(16), 1, &RegSym{4, "x"}},
		&CsrRead{Pos(17), 0, 1},
		&CsrWrite{Pos(18), 1, 2},
	}, items)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		src  string
		line int
	}{
		{"\n.bogus\n", 2},
		{"frob %r1\n", 1},
		{"add %r1\n", 1},
		{"add %r1, %r16\n", 1},
		{"csrrd %r1, %r2\n", 1},
		{"ld [%r1 * 4], %r2\n", 1},
		{"ld $-x, %r2\n", 1},
		{"jmp -x\n", 1},
		{".word\n", 1},
		{".ascii \"open\n", 1},
		{".skip x\n", 1},
		{".equ n 5\n", 1},
		{"halt halt\n", 1},
		{"\n\n@\n", 3},
		{"ld $0xZZ, %r1\n", 1},
	}
	for _, c := range cases {
		_, err := Parse(t.Name(), strings.NewReader(c.src))
		assert.ErrorIs(t, err, ErrSyntax, c.src)
		var ae *Error
		if assert.ErrorAs(t, err, &ae, c.src) {
			assert.Equal(t, c.line, ae.Line, c.src)
			assert.Equal(t, t.Name(), ae.Source)
		}
	}
}
