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

// Package obj reads and writes SS32 object files.
//
// The format is a reduced ELF32. All fields are little-endian. A file is
//
//	header | program headers (executables only) | section payloads | section headers
//
// The section header table always starts with a NULL entry, the symbol
// table and the string table, in that order. The sections described by
// File.Sections follow them. A section's header index is therefore its
// position in File.Sections plus FirstSection.
package obj

import "fmt"

// File types.
const (
	TypeRel  = 1
	TypeExec = 2
)

// Section types.
const (
	SecNull     = 0
	SecProgbits = 1
	SecSymtab   = 2
	SecStrtab   = 3
	SecRela     = 4
)

// Fixed section header indexes.
const (
	SymtabIndex  = 1
	StrtabIndex  = 2
	FirstSection = 3
)

// Symbol bindings and types.
const (
	BindLocal  = 0
	BindGlobal = 1

	SymNoType  = 0
	SymSection = 3
)

// Special section indexes carried by symbols.
const (
	ShnUndef = 0
	ShnAbs   = 0xFFF1
)

// R32 is the only relocation type: an absolute 32-bit word.
const R32 = 1

// ProgLoad is the only program header type.
const ProgLoad = 1

// Record sizes as written.
const (
	headerSize  = 16
	phdrSize    = 16
	shdrSize    = 28
	symbolSize  = 16
	relocSize   = 12
	maxSymIndex = 1<<24 - 1
)

// On-disk records. Field order is the byte order of the file.

type header struct {
	Entry  uint32
	Shoff  uint32
	Type   uint16
	Phnum  uint16
	Shnum  uint16
	Strndx uint16
}

type progHeader struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Size   uint32
}

type sectionHeader struct {
	Name   uint32
	Type   uint32
	Addr   uint32
	Offset uint32
	Size   uint32
	Link   uint32
	Info   uint32
}

type symbolRecord struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

type relocRecord struct {
	Offset uint32
	Info   uint32
	Addend int32
}

// In-memory model.

// File is a decoded object file. Symbols[0] is the null symbol.
type File struct {
	Type     uint16
	Entry    uint32
	Sections []*Section
	Symbols  []Symbol
}

// Section is a PROGBITS or RELA section. Data is used by PROGBITS and
// Relocs by RELA. For RELA, Link is the symbol table index and Info the
// header index of the patched section.
type Section struct {
	Name   string
	Type   uint32
	Addr   uint32
	Link   uint32
	Info   uint32
	Data   []byte
	Relocs []Reloc
}

type Symbol struct {
	Name    string
	Value   uint32
	Size    uint32
	Bind    uint8
	Kind    uint8
	Section uint16
}

type Reloc struct {
	Offset uint32
	Symbol uint32
	Type   uint8
	Addend int32
}

// Segment is a block of bytes to be placed at Addr by a loader.
type Segment struct {
	Name string
	Addr uint32
	Data []byte
}

func New(fileType uint16) *File {
	return &File{
		Type:    fileType,
		Symbols: []Symbol{{}},
	}
}

func (s *Section) Size() uint32 {
	if s.Type == SecRela {
		return uint32(len(s.Relocs) * relocSize)
	}
	return uint32(len(s.Data))
}

func (s *Symbol) IsSection() bool {
	return s.Kind == SymSection
}

func (s *Symbol) IsGlobal() bool {
	return s.Bind == BindGlobal
}

// HeaderIndex returns the section header index of Sections[i].
func HeaderIndex(i int) uint16 {
	return uint16(i + FirstSection)
}

// Section returns the section with the given header index, or nil.
func (f *File) Section(shndx uint16) *Section {
	i := int(shndx) - FirstSection
	if i < 0 || i >= len(f.Sections) {
		return nil
	}
	return f.Sections[i]
}

// Lookup finds a section by name and returns its header index.
func (f *File) Lookup(name string) (uint16, *Section) {
	for i, s := range f.Sections {
		if s.Name == name {
			return HeaderIndex(i), s
		}
	}
	return 0, nil
}

// RelaFor returns the relocation section that patches shndx, if any.
func (f *File) RelaFor(shndx uint16) *Section {
	for _, s := range f.Sections {
		if s.Type == SecRela && s.Info == uint32(shndx) {
			return s
		}
	}
	return nil
}

// LoadSegments returns the PROGBITS sections with a nonzero size in
// header table order.
func (f *File) LoadSegments() []Segment {
	var segs []Segment
	for _, s := range f.Sections {
		if s.Type == SecProgbits && len(s.Data) > 0 {
			segs = append(segs, Segment{s.Name, s.Addr, s.Data})
		}
	}
	return segs
}

func TypeName(t uint16) string {
	switch t {
	case TypeRel:
		return "REL"
	case TypeExec:
		return "EXEC"
	}
	return fmt.Sprintf("0x%X", t)
}

func SectionTypeName(t uint32) string {
	switch t {
	case SecNull:
		return "NULL"
	case SecProgbits:
		return "PROGBITS"
	case SecSymtab:
		return "SYMTAB"
	case SecStrtab:
		return "STRTAB"
	case SecRela:
		return "RELA"
	}
	return fmt.Sprintf("0x%X", t)
}

func symbolInfo(bind, kind uint8) uint8 {
	return bind<<4 | kind&0xF
}

func relocInfo(sym uint32, typ uint8) uint32 {
	return sym<<8 | uint32(typ)
}
