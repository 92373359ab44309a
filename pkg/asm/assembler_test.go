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
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmofishsauce/ss32/pkg/obj"
)

func assemble(t *testing.T, src string) *obj.File {
	t.Helper()
	f, err := AssembleSource(t.Name(), strings.NewReader(src))
	require.NoError(t, err)
	return f
}

func assembleErr(t *testing.T, src string) error {
	t.Helper()
	_, err := AssembleSource(t.Name(), strings.NewReader(src))
	require.Error(t, err)
	return err
}

func words(t *testing.T, f *obj.File, section string) []uint32 {
	t.Helper()
	_, s := f.Lookup(section)
	require.NotNil(t, s, "section %s", section)
	require.Zero(t, len(s.Data)%4)
	var w []uint32
	for i := 0; i < len(s.Data); i += 4 {
		w = append(w, binary.LittleEndian.Uint32(s.Data[i:]))
	}
	return w
}

func relocs(t *testing.T, f *obj.File, section string) []obj.Reloc {
	t.Helper()
	idx, _ := f.Lookup(section)
	rela := f.RelaFor(idx)
	require.NotNil(t, rela)
	return rela.Relocs
}

func findSymbol(t *testing.T, f *obj.File, name string) (int, obj.Symbol) {
	t.Helper()
	for i, s := range f.Symbols {
		if s.Name == name {
			return i, s
		}
	}
	t.Fatalf("no symbol %s", name)
	return 0, obj.Symbol{}
}

func TestSimpleInstructions(t *testing.T) {
	f := assemble(t, `
.section text
	halt
	int
	iret
	ret
	push %r1
	pop %r2
	xchg %r1, %r2
	add %r3, %r4
	not %r5
	csrrd %cause, %r1
	csrwr %r2, %handler
	st %r1, %r2
	ld %r3, %sp
	ld [%r1], %r2
	st %r3, [%r4 - 8]
.end
`)
	assert.Equal(t, []uint32{
		0x00000000, 0x10000000,
		0x93FE0004, 0x970E0004,
		0x93FE0004,
		0x81E01FFC, 0x932E0004,
		0x40012000, 0x50443000, 0x60550000,
		0x90120000, 0x94120000,
		0x91210000, 0x91E30000,
		0x92210000, 0x80403FF8,
	}, words(t, f, "text"))
	assert.Empty(t, relocs(t, f, "text"))
}

func TestLiteralPoolDedup(t *testing.T) {
	f := assemble(t, `
.section text
	ld $0x1234, %r1
	ld $0x1234, %r2
	ld $5, %r3
	halt
.end
`)
	w := words(t, f, "text")
	assert.Equal(t, []uint32{0x921F000C, 0x922F0008, 0x91300005, 0, 0x1234}, w)
}

func TestLoadMemory(t *testing.T) {
	f := assemble(t, `
.section text
	ld 0x100, %r1
	ld 0x40000000, %r2
	st %r3, 0x7FF
	st %r4, 0x40000000
.end
`)
	// ld and st of the same large address share one pool slot
	assert.Equal(t, []uint32{
		0x92100100,
		0x922F000C, 0x92220000,
		0x800037FF,
		0x82F04000,
		0x40000000,
	}, words(t, f, "text"))
}

func TestBackpatchSameSection(t *testing.T) {
	f := assemble(t, `
.section text
	jmp target
	call target
	beq %r1, %r2, target
	ld $target, %r3
	st %r4, target
target:
	halt
	jmp target
.end
`)
	assert.Equal(t, []uint32{
		0x30F00010,
		0x20F0000C,
		0x31F12008,
		0x913F0004,
		0x80F04000,
		0x00000000,
		0x30F00FF8,
	}, words(t, f, "text"))
	assert.Empty(t, relocs(t, f, "text"))
}

func TestCrossSection(t *testing.T) {
	f := assemble(t, `
.section text
	jmp dataLabel
	ld dataLabel, %r1
	halt
.section data
	.word 7
dataLabel:
	.word dataLabel
.end
`)
	assert.Equal(t, []uint32{0x38F0000C, 0x921F0008, 0x92110000, 0, 0}, words(t, f, "text"))
	assert.Equal(t, []uint32{7, 0}, words(t, f, "data"))

	dataIdx, dataSym := findSymbol(t, f, "data")
	assert.True(t, dataSym.IsSection())
	assert.Equal(t, []obj.Reloc{{Offset: 16, Symbol: uint32(dataIdx), Type: obj.R32, Addend: 4}}, relocs(t, f, "text"))
	assert.Equal(t, []obj.Reloc{{Offset: 4, Symbol: uint32(dataIdx), Type: obj.R32, Addend: 4}}, relocs(t, f, "data"))

	_, label := findSymbol(t, f, "dataLabel")
	assert.Equal(t, uint32(4), label.Value)
	shndx, _ := f.Lookup("data")
	assert.Equal(t, shndx, label.Section)
	assert.False(t, label.IsGlobal())
}

func TestGlobalAndExtern(t *testing.T) {
	f := assemble(t, `
.global main, helper
.extern printf
.section text
main:
	call printf
	call helper
	ld $main, %r1
	.word printf
.end
`)
	assert.Equal(t, []uint32{0x21F0000C, 0x21F0000C, 0x911F0FF4, 0, 0, 0}, words(t, f, "text"))

	mainIdx, main := findSymbol(t, f, "main")
	assert.NotZero(t, mainIdx)
	assert.True(t, main.IsGlobal())
	textIdx, _ := f.Lookup("text")
	assert.Equal(t, textIdx, main.Section)

	helperIdx, helper := findSymbol(t, f, "helper")
	assert.True(t, helper.IsGlobal())
	assert.Equal(t, uint16(obj.ShnUndef), helper.Section)

	printfIdx, printf := findSymbol(t, f, "printf")
	assert.Equal(t, uint16(obj.ShnUndef), printf.Section)

	assert.Equal(t, []obj.Reloc{
		{Offset: 12, Symbol: uint32(printfIdx), Type: obj.R32},
		{Offset: 16, Symbol: uint32(printfIdx), Type: obj.R32},
		{Offset: 20, Symbol: uint32(helperIdx), Type: obj.R32},
	}, relocs(t, f, "text"))
}

func TestGlobalLabelRelocatesAgainstItself(t *testing.T) {
	f := assemble(t, `
.global there
.section data
	.word there
.section text
	halt
there:
	halt
.end
`)
	idx, _ := findSymbol(t, f, "there")
	assert.Equal(t, []obj.Reloc{{Offset: 0, Symbol: uint32(idx), Type: obj.R32}}, relocs(t, f, "data"))
}

func TestRegisterSymbolDisplacement(t *testing.T) {
	f := assemble(t, `
.equ off, -4
.section text
	st %r1, [%sp + off]
	ld [%r1 + later], %r2
.equ later, 8
.end
`)
	assert.Equal(t, []uint32{0x80E01FFC, 0x92210008}, words(t, f, "text"))
}

func TestAsciiSkipWord(t *testing.T) {
	f := assemble(t, `
.section data
	.ascii "a\n\"b"
	.skip 3
	.word -1, 0x10
.end
`)
	_, s := f.Lookup("data")
	assert.Equal(t, []byte{'a', '\n', '"', 'b', 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0x10, 0, 0, 0}, s.Data)
}

func TestDeterminism(t *testing.T) {
	src := `
.global main
.extern ext
.section text
main:
	ld $0x12345678, %r1
	call ext
	jmp far
	ld $0x12345678, %r2
	beq %r1, %r2, 0x5000
.section data
far:
	.word main, ext, far
.end
`
	first, err := assemble(t, src).Marshal()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := assemble(t, src).Marshal()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestItemsAfterEndIgnored(t *testing.T) {
	f, err := Assemble(t.Name(), []Item{
		&Section{Pos(1), "text"},
		&Simple{Pos(2), Halt},
		&End{Pos(3)},
		&Label{Pos(4), "text"},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, words(t, f, "text"))
}

func TestErrors(t *testing.T) {
	cases := []struct {
		src  string
		kind error
		line int
	}{
		{".section text\na:\na:\n.end\n", ErrRedefinition, 3},
		{".section text\n.section text\n.end\n", ErrRedefinition, 2},
		{"a:\n.end\n", ErrOutsideSection, 1},
		{"halt\n.end\n", ErrOutsideSection, 1},
		{".word 5\n.end\n", ErrOutsideSection, 1},
		{".section text\nst %r1, $5\n.end\n", ErrInvalidAddressing, 2},
		{".section text\nst %r1, $x\n.end\n", ErrInvalidAddressing, 2},
		{".section text\nld [%r1 + 4096], %r2\n.end\n", ErrDisplacementOverflow, 2},
		{".section text\nx: ld [%r1 + x], %r2\n.end\n", ErrInvalidAddressing, 2},
		{".section text\nld [%r1 + x], %r2\nx:\n.end\n", ErrInvalidAddressing, 2},
		{".section text\nld [%r1 + big], %r2\n.equ big, 5000\n.end\n", ErrDisplacementOverflow, 2},
		{".section text\nhalt\n", ErrMissingEnd, 0},
		{".section text\n\njmp nowhere\n.end\n", ErrUndefinedSymbol, 3},
		{".section text\nx:\n.extern x\n.end\n", ErrRedefinition, 3},
		{".equ c, 5\n.extern c\n.end\n", ErrRedefinition, 2},
		{".section text\n.equ a, b + 1\na: halt\nb: halt\n.end\n", ErrRedefinition, 3},
		{".equ text, b + 1\n.section text\nb: halt\n.end\n", ErrRedefinition, 2},
		{".equ a, b + 1\n.extern a\n.section text\nb: halt\n.end\n", ErrRedefinition, 2},
		{".section text\nld $0x12345, %r1\n.skip 4096\n.end\n", ErrDisplacementOverflow, 2},
		{".section text\ncall $5\n.end\n", ErrSyntax, 2},
		{".equ A, A + 1\n.end\n", ErrCyclicEqu, 1},
		{".equ A, B + 1\n.end\n", ErrUndefinedSymbol, 1},
		{".section text\na: b:\n", ErrSyntax, 2},
	}
	for _, c := range cases {
		err := assembleErr(t, c.src)
		assert.ErrorIs(t, err, c.kind, c.src)
		var ae *Error
		if assert.ErrorAs(t, err, &ae, c.src) {
			assert.Equal(t, c.line, ae.Line, c.src)
		}
	}
}

func TestJumpImmediateRejected(t *testing.T) {
	_, err := Assemble(t.Name(), []Item{
		&Section{Pos(1), "text"},
		&Jump{Pos(2), Call, &Imm{5}},
		&End{Pos(3)},
	})
	assert.ErrorIs(t, err, ErrInvalidAddressing)
}
