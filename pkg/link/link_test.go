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

package link

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmofishsauce/ss32/pkg/asm"
	"github.com/gmofishsauce/ss32/pkg/isa"
	"github.com/gmofishsauce/ss32/pkg/obj"
)

const mainSrc = `
.global main
.extern helper
.section text
main:
	call helper
	halt
.end
`

const helperSrc = `
.global helper
.section text
	halt
helper:
loc:
	ret
.section data
	.word loc
.end
`

func assemble(t *testing.T, name, src string) *obj.File {
	t.Helper()
	f, err := asm.AssembleSource(name, strings.NewReader(src))
	require.NoError(t, err)
	return f
}

func link(t *testing.T, opts Options, srcs ...string) (*obj.File, error) {
	t.Helper()
	l := New(opts)
	for i, src := range srcs {
		name := t.Name() + string(rune('a'+i))
		require.NoError(t, l.AddFile(name, assemble(t, name, src)))
	}
	return l.Link()
}

func words(t *testing.T, f *obj.File, name string) []uint32 {
	t.Helper()
	_, s := f.Lookup(name)
	require.NotNil(t, s, name)
	var w []uint32
	for i := 0; i+4 <= len(s.Data); i += 4 {
		w = append(w, isa.Word(s.Data[i:]))
	}
	return w
}

func symbol(t *testing.T, f *obj.File, name string) (int, obj.Symbol) {
	t.Helper()
	for i, s := range f.Symbols {
		if s.Name == name {
			return i, s
		}
	}
	t.Fatalf("no symbol %s", name)
	return 0, obj.Symbol{}
}

func TestPlacementMerge(t *testing.T) {
	f, err := link(t, Options{Places: map[string]uint32{"data": 0x4000, "bss": 0x10}},
		".section data\n.skip 16\n.end\n",
		".global second\n.section data\nsecond: .skip 32\n.section text\n.word 1\n.end\n")
	require.NoError(t, err)
	assert.Equal(t, uint16(obj.TypeExec), f.Type)
	assert.Equal(t, uint32(0), f.Entry)

	_, data := f.Lookup("data")
	require.NotNil(t, data)
	assert.Equal(t, uint32(0x4000), data.Addr)
	assert.Len(t, data.Data, 48)

	_, second := symbol(t, f, "second")
	assert.Equal(t, uint32(0x4010), second.Value)

	_, text := f.Lookup("text")
	require.NotNil(t, text)
	assert.Equal(t, uint32(0x4030), text.Addr)

	segs := f.LoadSegments()
	require.Len(t, segs, 2)
	assert.Equal(t, "data", segs[0].Name)
	assert.Equal(t, uint32(0x4030), segs[1].Addr)
}

func TestUnplacedStartAtZero(t *testing.T) {
	f, err := link(t, Options{},
		".section a\n.skip 8\n.section b\n.skip 4\n.end\n",
		".section c\n.word 1\n.section a\n.skip 4\n.end\n")
	require.NoError(t, err)
	addrs := map[string]uint32{}
	for _, s := range f.Sections {
		addrs[s.Name] = s.Addr
	}
	assert.Equal(t, map[string]uint32{"a": 0, "b": 12, "c": 16}, addrs)
}

func TestUnplacedFollowHighestPlaced(t *testing.T) {
	f, err := link(t, Options{Places: map[string]uint32{"lo": 0x100, "hi": 0x2000}},
		".section extra\n.skip 4\n.section hi\n.skip 8\n.section lo\n.skip 4\n.end\n")
	require.NoError(t, err)
	_, extra := f.Lookup("extra")
	assert.Equal(t, uint32(0x2008), extra.Addr)
}

func TestOverlap(t *testing.T) {
	_, err := link(t, Options{Places: map[string]uint32{"text": 0x1000, "data": 0x1100}},
		".section text\n.skip 0x200\n.section data\n.skip 0x100\n.end\n")
	assert.ErrorIs(t, err, ErrSectionOverlap)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "data", le.Subject)
}

func TestAdjacentPlacementsDoNotOverlap(t *testing.T) {
	_, err := link(t, Options{Places: map[string]uint32{"text": 0x1000, "data": 0x1200}},
		".section text\n.skip 0x200\n.section data\n.skip 4\n.end\n")
	assert.NoError(t, err)
}

func TestExecutable(t *testing.T) {
	f, err := link(t, Options{Places: map[string]uint32{"text": 0x1000}}, mainSrc, helperSrc)
	require.NoError(t, err)

	assert.Equal(t, []uint32{0x21F00004, 0, 0x1010, 0, isa.RetWord}, words(t, f, "text"))
	assert.Equal(t, []uint32{0x1010}, words(t, f, "data"))

	_, data := f.Lookup("data")
	assert.Equal(t, uint32(0x1014), data.Addr)

	_, main := symbol(t, f, "main")
	assert.Equal(t, uint32(0x1000), main.Value)
	_, helper := symbol(t, f, "helper")
	assert.Equal(t, uint32(0x1010), helper.Value)
	for _, s := range f.Symbols {
		assert.NotEqual(t, "loc", s.Name)
	}
	for _, s := range f.Sections {
		assert.NotEqual(t, uint32(obj.SecRela), s.Type)
	}

	b, err := f.Marshal()
	require.NoError(t, err)
	back, err := obj.Parse(b)
	require.NoError(t, err)
	assert.Equal(t, f.LoadSegments(), back.LoadSegments())
}

func TestRelocatable(t *testing.T) {
	f, err := link(t, Options{Relocatable: true, Places: map[string]uint32{"text": 0x1000}}, mainSrc, helperSrc)
	require.NoError(t, err)
	assert.Equal(t, uint16(obj.TypeRel), f.Type)

	textIdx, text := f.Lookup("text")
	dataIdx, data := f.Lookup("data")
	assert.Equal(t, uint32(0), text.Addr)
	assert.Equal(t, uint32(0), data.Addr)
	assert.Equal(t, []uint32{0x21F00004, 0, 0, 0, isa.RetWord}, words(t, f, "text"))
	assert.Equal(t, []uint32{0}, words(t, f, "data"))

	textSym, _ := symbol(t, f, "text")
	helperSym, helper := symbol(t, f, "helper")
	assert.Equal(t, uint32(16), helper.Value)
	assert.Equal(t, textIdx, helper.Section)
	assert.True(t, helper.IsGlobal())
	_, loc := symbol(t, f, "loc")
	assert.Equal(t, uint32(16), loc.Value)
	assert.Equal(t, textIdx, loc.Section)
	assert.False(t, loc.IsGlobal())

	assert.Equal(t, []obj.Reloc{{Offset: 8, Symbol: uint32(helperSym), Type: obj.R32}}, f.RelaFor(textIdx).Relocs)
	assert.Equal(t, []obj.Reloc{{Offset: 0, Symbol: uint32(textSym), Type: obj.R32, Addend: 16}}, f.RelaFor(dataIdx).Relocs)

	// Linking the result as an executable gives the same image as
	// linking the inputs directly.
	l := New(Options{Places: map[string]uint32{"text": 0x1000}})
	require.NoError(t, l.AddFile("combined", f))
	exec, err := l.Link()
	require.NoError(t, err)
	direct, err := link(t, Options{Places: map[string]uint32{"text": 0x1000}}, mainSrc, helperSrc)
	require.NoError(t, err)
	assert.Equal(t, direct.LoadSegments(), exec.LoadSegments())
}

func TestRelocatableKeepsUndefined(t *testing.T) {
	f, err := link(t, Options{Relocatable: true}, mainSrc)
	require.NoError(t, err)
	idx, helper := symbol(t, f, "helper")
	assert.Equal(t, uint16(obj.ShnUndef), helper.Section)
	assert.True(t, helper.IsGlobal())
	textIdx, _ := f.Lookup("text")
	assert.Equal(t, []obj.Reloc{{Offset: 8, Symbol: uint32(idx), Type: obj.R32}}, f.RelaFor(textIdx).Relocs)
}

func TestUndefinedSymbol(t *testing.T) {
	_, err := link(t, Options{}, mainSrc)
	assert.ErrorIs(t, err, ErrUndefinedSymbol)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "helper", le.Subject)
}

func TestMultipleDefinition(t *testing.T) {
	_, err := link(t, Options{}, mainSrc, helperSrc, ".global main\n.section other\nmain: halt\n.end\n")
	assert.ErrorIs(t, err, ErrMultipleDefinition)
}

func TestLocalsDoNotCollide(t *testing.T) {
	_, err := link(t, Options{},
		".section text\nx: halt\n.word x\n.end\n",
		".section text\nx: halt\n.word x\n.end\n")
	assert.NoError(t, err)
}

func TestRelocatableKeepsLocals(t *testing.T) {
	f, err := link(t, Options{Relocatable: true},
		".section text\nx: halt\n.word x\n.end\n",
		".section text\nx: halt\n.word x\n.end\n")
	require.NoError(t, err)
	textIdx, _ := f.Lookup("text")
	var values []uint32
	for _, s := range f.Symbols {
		if s.Name == "x" {
			assert.Equal(t, textIdx, s.Section)
			assert.False(t, s.IsGlobal())
			values = append(values, s.Value)
		}
	}
	assert.Equal(t, []uint32{0, 8}, values)
}

func TestBadInput(t *testing.T) {
	l := New(Options{})
	assert.ErrorIs(t, l.AddFile("exec", obj.New(obj.TypeExec)), ErrBadInput)
	assert.ErrorIs(t, l.AddFile("nil", nil), ErrBadInput)

	f := obj.New(obj.TypeRel)
	f.Sections = []*obj.Section{
		{Name: "text", Type: obj.SecProgbits, Data: make([]byte, 4)},
		{Name: ".rela.text", Type: obj.SecRela, Link: obj.SymtabIndex, Info: obj.FirstSection,
			Relocs: []obj.Reloc{{Offset: 2, Symbol: 0, Type: obj.R32}}},
	}
	require.NoError(t, l.AddFile("bad", f))
	_, err := l.Link()
	assert.ErrorIs(t, err, ErrBadInput)
}
