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

package obj

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// stringTable accumulates NUL terminated names. Offset 0 is the empty name.
type stringTable struct {
	buf     bytes.Buffer
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	st := &stringTable{offsets: make(map[string]uint32)}
	st.buf.WriteByte(0)
	st.offsets[""] = 0
	return st
}

func (st *stringTable) add(s string) uint32 {
	if off, ok := st.offsets[s]; ok {
		return off
	}
	off := uint32(st.buf.Len())
	st.buf.WriteString(s)
	st.buf.WriteByte(0)
	st.offsets[s] = off
	return off
}

// layout is the placement of every part of a file, computed before any
// bytes are written.
type layout struct {
	strings  *stringTable
	phdrs    []progHeader
	shdrs    []sectionHeader
	shoff    uint32
	fileSize uint32
}

func (f *File) validate() error {
	if f.Type != TypeRel && f.Type != TypeExec {
		return fmt.Errorf("invalid file type %d", f.Type)
	}
	if len(f.Symbols) == 0 {
		return fmt.Errorf("symbol table has no null entry")
	}
	if len(f.Symbols) > maxSymIndex {
		return fmt.Errorf("too many symbols (%d)", len(f.Symbols))
	}
	shnum := len(f.Sections) + FirstSection
	for i, sym := range f.Symbols {
		if sym.Section != ShnUndef && sym.Section != ShnAbs && int(sym.Section) >= shnum {
			return fmt.Errorf("symbol %d (%s): section index %d out of range", i, sym.Name, sym.Section)
		}
	}
	for _, s := range f.Sections {
		switch s.Type {
		case SecProgbits:
		case SecRela:
			for _, r := range s.Relocs {
				if int(r.Symbol) >= len(f.Symbols) {
					return fmt.Errorf("%s: relocation at 0x%X names symbol %d of %d",
						s.Name, r.Offset, r.Symbol, len(f.Symbols))
				}
			}
		default:
			return fmt.Errorf("section %s: unsupported type %s", s.Name, SectionTypeName(s.Type))
		}
	}
	return nil
}

func (f *File) layout() (*layout, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	lay := &layout{strings: newStringTable()}

	for _, sym := range f.Symbols {
		lay.strings.add(sym.Name)
	}
	symtabName := lay.strings.add(".symtab")
	strtabName := lay.strings.add(".strtab")
	names := make([]uint32, len(f.Sections))
	for i, s := range f.Sections {
		names[i] = lay.strings.add(s.Name)
	}

	nPhdr := 0
	if f.Type == TypeExec {
		for _, s := range f.Sections {
			if s.Type == SecProgbits {
				nPhdr++
			}
		}
	}

	off := uint32(headerSize + nPhdr*phdrSize)
	lay.shdrs = append(lay.shdrs, sectionHeader{})

	symtabSize := uint32(len(f.Symbols) * symbolSize)
	lay.shdrs = append(lay.shdrs, sectionHeader{
		Name: symtabName, Type: SecSymtab, Offset: off, Size: symtabSize, Link: StrtabIndex,
	})
	off += symtabSize

	strtabSize := uint32(lay.strings.buf.Len())
	lay.shdrs = append(lay.shdrs, sectionHeader{
		Name: strtabName, Type: SecStrtab, Offset: off, Size: strtabSize,
	})
	off += strtabSize

	for i, s := range f.Sections {
		sh := sectionHeader{
			Name:   names[i],
			Type:   s.Type,
			Addr:   s.Addr,
			Offset: off,
			Size:   s.Size(),
			Link:   s.Link,
			Info:   s.Info,
		}
		lay.shdrs = append(lay.shdrs, sh)
		if f.Type == TypeExec && s.Type == SecProgbits {
			lay.phdrs = append(lay.phdrs, progHeader{
				Type: ProgLoad, Offset: off, Vaddr: s.Addr, Size: sh.Size,
			})
		}
		off += sh.Size
	}
	lay.shoff = off
	lay.fileSize = off + uint32(len(lay.shdrs)*shdrSize)
	return lay, nil
}

// Marshal returns the file image.
func (f *File) Marshal() ([]byte, error) {
	lay, err := f.layout()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(int(lay.fileSize))

	// Writes to a bytes.Buffer cannot fail, so errors from binary.Write
	// below can only be programming errors in the record types.
	hdr := header{
		Entry:  f.Entry,
		Shoff:  lay.shoff,
		Type:   f.Type,
		Phnum:  uint16(len(lay.phdrs)),
		Shnum:  uint16(len(lay.shdrs)),
		Strndx: StrtabIndex,
	}
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if len(lay.phdrs) > 0 {
		if err := binary.Write(&buf, binary.LittleEndian, lay.phdrs); err != nil {
			return nil, err
		}
	}

	for _, sym := range f.Symbols {
		rec := symbolRecord{
			Name:  lay.strings.offsets[sym.Name],
			Value: sym.Value,
			Size:  sym.Size,
			Info:  symbolInfo(sym.Bind, sym.Kind),
			Shndx: sym.Section,
		}
		if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
			return nil, err
		}
	}
	buf.Write(lay.strings.buf.Bytes())

	for _, s := range f.Sections {
		if s.Type == SecProgbits {
			buf.Write(s.Data)
			continue
		}
		for _, r := range s.Relocs {
			rec := relocRecord{Offset: r.Offset, Info: relocInfo(r.Symbol, r.Type), Addend: r.Addend}
			if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
				return nil, err
			}
		}
	}

	if err := binary.Write(&buf, binary.LittleEndian, lay.shdrs); err != nil {
		return nil, err
	}
	if uint32(buf.Len()) != lay.fileSize {
		return nil, fmt.Errorf("internal error: wrote %d bytes, layout says %d", buf.Len(), lay.fileSize)
	}
	return buf.Bytes(), nil
}

func (f *File) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// WriteFile writes the file image to path. Nothing is created when the
// model is invalid.
func (f *File) WriteFile(path string) error {
	b, err := f.Marshal()
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	if _, err := w.Write(b); err != nil {
		out.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
