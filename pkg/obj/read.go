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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// FormatError describes malformed input.
type FormatError struct {
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("object format error at offset 0x%X: %s", e.Offset, e.Msg)
}

func formatError(off int64, format string, args ...interface{}) error {
	return &FormatError{off, fmt.Sprintf(format, args...)}
}

// ReadFile decodes the object file at path.
func ReadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Read decodes size bytes of r.
func Read(r io.ReaderAt, size int64) (*File, error) {
	b := make([]byte, size)
	if _, err := r.ReadAt(b, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return Parse(b)
}

// extent returns b[off:off+size] or a format error.
func extent(b []byte, off, size uint32, what string) ([]byte, error) {
	end := uint64(off) + uint64(size)
	if end > uint64(len(b)) {
		return nil, formatError(int64(off), "%s (%d bytes) extends past end of file", what, size)
	}
	return b[off:end], nil
}

func decode(b []byte, off uint32, size int, what string, data interface{}) error {
	raw, err := extent(b, off, uint32(size), what)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(raw), binary.LittleEndian, data)
}

func cstring(strtab []byte, off uint32) (string, error) {
	if int(off) >= len(strtab) {
		return "", formatError(0, "string offset %d outside string table", off)
	}
	end := bytes.IndexByte(strtab[off:], 0)
	if end < 0 {
		return "", formatError(0, "unterminated string at offset %d", off)
	}
	return string(strtab[off : int(off)+end]), nil
}

// Parse decodes a complete file image.
func Parse(b []byte) (*File, error) {
	var hdr header
	if err := decode(b, 0, headerSize, "header", &hdr); err != nil {
		return nil, err
	}
	if hdr.Type != TypeRel && hdr.Type != TypeExec {
		return nil, formatError(8, "unknown file type %d", hdr.Type)
	}
	if hdr.Shnum < FirstSection {
		return nil, formatError(12, "only %d section headers", hdr.Shnum)
	}
	if hdr.Strndx != StrtabIndex {
		return nil, formatError(14, "string table index %d, want %d", hdr.Strndx, StrtabIndex)
	}
	if _, err := extent(b, headerSize, uint32(hdr.Phnum)*phdrSize, "program headers"); err != nil {
		return nil, err
	}

	shdrs := make([]sectionHeader, hdr.Shnum)
	if err := decode(b, hdr.Shoff, len(shdrs)*shdrSize, "section headers", shdrs); err != nil {
		return nil, err
	}
	if shdrs[SymtabIndex].Type != SecSymtab {
		return nil, formatError(int64(hdr.Shoff), "section 1 is %s, want SYMTAB",
			SectionTypeName(shdrs[SymtabIndex].Type))
	}
	if shdrs[StrtabIndex].Type != SecStrtab {
		return nil, formatError(int64(hdr.Shoff), "section 2 is %s, want STRTAB",
			SectionTypeName(shdrs[StrtabIndex].Type))
	}

	strtab, err := extent(b, shdrs[StrtabIndex].Offset, shdrs[StrtabIndex].Size, "string table")
	if err != nil {
		return nil, err
	}

	f := &File{Type: hdr.Type, Entry: hdr.Entry}

	st := shdrs[SymtabIndex]
	if st.Size%symbolSize != 0 {
		return nil, formatError(int64(st.Offset), "symbol table size %d is not a multiple of %d", st.Size, symbolSize)
	}
	recs := make([]symbolRecord, st.Size/symbolSize)
	if err := decode(b, st.Offset, int(st.Size), "symbol table", recs); err != nil {
		return nil, err
	}
	f.Symbols = make([]Symbol, len(recs))
	for i, rec := range recs {
		name, err := cstring(strtab, rec.Name)
		if err != nil {
			return nil, err
		}
		if rec.Shndx != ShnUndef && rec.Shndx != ShnAbs && rec.Shndx >= hdr.Shnum {
			return nil, formatError(int64(st.Offset)+int64(i*symbolSize),
				"symbol %s: section index %d out of range", name, rec.Shndx)
		}
		f.Symbols[i] = Symbol{
			Name:    name,
			Value:   rec.Value,
			Size:    rec.Size,
			Bind:    rec.Info >> 4,
			Kind:    rec.Info & 0xF,
			Section: rec.Shndx,
		}
	}
	if len(f.Symbols) == 0 {
		return nil, formatError(int64(st.Offset), "symbol table has no null entry")
	}

	for _, sh := range shdrs[FirstSection:] {
		name, err := cstring(strtab, sh.Name)
		if err != nil {
			return nil, err
		}
		s := &Section{Name: name, Type: sh.Type, Addr: sh.Addr, Link: sh.Link, Info: sh.Info}
		payload, err := extent(b, sh.Offset, sh.Size, name)
		if err != nil {
			return nil, err
		}
		switch sh.Type {
		case SecProgbits:
			if len(payload) > 0 {
				s.Data = append([]byte(nil), payload...)
			}
		case SecRela:
			if sh.Size%relocSize != 0 {
				return nil, formatError(int64(sh.Offset), "%s: size %d is not a multiple of %d", name, sh.Size, relocSize)
			}
			raw := make([]relocRecord, sh.Size/relocSize)
			if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, raw); err != nil {
				return nil, err
			}
			for _, r := range raw {
				sym := r.Info >> 8
				if int(sym) >= len(f.Symbols) {
					return nil, formatError(int64(sh.Offset), "%s: relocation names symbol %d of %d",
						name, sym, len(f.Symbols))
				}
				s.Relocs = append(s.Relocs, Reloc{
					Offset: r.Offset,
					Symbol: sym,
					Type:   uint8(r.Info),
					Addend: r.Addend,
				})
			}
		default:
			return nil, formatError(int64(sh.Offset), "section %s: unsupported type %s", name, SectionTypeName(sh.Type))
		}
		f.Sections = append(f.Sections, s)
	}
	return f, nil
}
