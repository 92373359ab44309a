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
	"fmt"
	"io"
	"sort"
)

const bytesPerLine = 16

// Dump writes a readelf-style description of f to w.
func (f *File) Dump(w io.Writer) error {
	lay, err := f.layout()
	if err != nil {
		return err
	}
	out := bufio.NewWriter(w)

	fmt.Fprintf(out, "Type:    %s\n", TypeName(f.Type))
	fmt.Fprintf(out, "Entry:   0x%08X\n", f.Entry)
	fmt.Fprintf(out, "Shoff:   0x%X\n", lay.shoff)
	fmt.Fprintf(out, "Phnum:   %d\n", len(lay.phdrs))
	fmt.Fprintf(out, "Shnum:   %d\n", len(lay.shdrs))

	if len(lay.phdrs) > 0 {
		fmt.Fprintf(out, "\nProgram headers:\n")
		fmt.Fprintf(out, "  %-6s %-8s %-10s %-8s\n", "TYPE", "OFFSET", "VADDR", "SIZE")
		for _, ph := range lay.phdrs {
			fmt.Fprintf(out, "  %-6s %08X 0x%08X %08X\n", "LOAD", ph.Offset, ph.Vaddr, ph.Size)
		}
	}

	fmt.Fprintf(out, "\nSection headers:\n")
	fmt.Fprintf(out, "  [Nr] %-16s %-8s %-8s %-8s %-8s %4s %4s\n",
		"NAME", "TYPE", "ADDR", "OFFSET", "SIZE", "LINK", "INFO")
	for i, sh := range lay.shdrs {
		name := ""
		switch {
		case i == SymtabIndex:
			name = ".symtab"
		case i == StrtabIndex:
			name = ".strtab"
		case i >= FirstSection:
			name = f.Sections[i-FirstSection].Name
		}
		fmt.Fprintf(out, "  [%2d] %-16s %-8s %08X %08X %08X %4d %4d\n",
			i, name, SectionTypeName(sh.Type), sh.Addr, sh.Offset, sh.Size, sh.Link, sh.Info)
	}

	fmt.Fprintf(out, "\nSymbol table .symtab contains %d entries:\n", len(f.Symbols))
	fmt.Fprintf(out, "  %4s %-8s %-8s %-6s %s\n", "NUM", "VALUE", "TYPE", "BIND", "NDX  NAME")
	for i, sym := range f.Symbols {
		fmt.Fprintf(out, "  %4d %08X %-8s %-6s %-4s %s\n",
			i, sym.Value, kindName(sym.Kind), bindName(sym.Bind), shndxName(sym.Section), sym.Name)
	}

	for _, s := range f.Sections {
		if s.Type != SecRela || len(s.Relocs) == 0 {
			continue
		}
		fmt.Fprintf(out, "\nRelocation section %s contains %d entries:\n", s.Name, len(s.Relocs))
		fmt.Fprintf(out, "  %-8s %-5s %-16s %s\n", "OFFSET", "TYPE", "SYMBOL", "ADDEND")
		for _, r := range s.Relocs {
			fmt.Fprintf(out, "  %08X %-5s %-16s %d\n", r.Offset, "R_32", f.Symbols[r.Symbol].Name, r.Addend)
		}
	}

	for _, s := range f.Sections {
		if s.Type != SecProgbits {
			continue
		}
		fmt.Fprintf(out, "\nContents of section %s:\n", s.Name)
		dumpBytes(out, s.Addr, s.Data)
	}
	return out.Flush()
}

// dumpBytes prints 16 bytes per line, skipping lines that are all zero.
func dumpBytes(out io.Writer, base uint32, bytes []byte) {
	for m := 0; m < len(bytes); m += bytesPerLine {
		end := m + bytesPerLine
		if end > len(bytes) {
			end = len(bytes)
		}
		printThisLine := false
		for n := m; n < end; n++ {
			if bytes[n] != 0 {
				printThisLine = true
				break
			}
		}
		if !printThisLine {
			continue
		}
		fmt.Fprintf(out, "0x%08X ", base+uint32(m))
		for n := m; n < end; n++ {
			fmt.Fprintf(out, "%02X", bytes[n])
			if n != end-1 {
				fmt.Fprintf(out, " ")
			}
		}
		fmt.Fprintln(out)
	}
}

// WriteHexDump writes the memory image of f, eight bytes per line, each
// line prefixed with its address. Sections are emitted in address order
// and a line never spans an 8-byte boundary.
func (f *File) WriteHexDump(w io.Writer) error {
	segs := f.LoadSegments()
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Addr < segs[j].Addr })

	out := bufio.NewWriter(w)
	for _, seg := range segs {
		for i := 0; i < len(seg.Data); {
			addr := seg.Addr + uint32(i)
			n := 8 - int(addr%8)
			if i+n > len(seg.Data) {
				n = len(seg.Data) - i
			}
			fmt.Fprintf(out, "%08X:", addr)
			for _, b := range seg.Data[i : i+n] {
				fmt.Fprintf(out, " %02X", b)
			}
			fmt.Fprintln(out)
			i += n
		}
	}
	return out.Flush()
}

func kindName(k uint8) string {
	if k == SymSection {
		return "SECTION"
	}
	return "NOTYPE"
}

func bindName(b uint8) string {
	if b == BindGlobal {
		return "GLOBAL"
	}
	return "LOCAL"
}

func shndxName(n uint16) string {
	switch n {
	case ShnUndef:
		return "UND"
	case ShnAbs:
		return "ABS"
	}
	return fmt.Sprint(n)
}
