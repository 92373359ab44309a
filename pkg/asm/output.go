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
	"github.com/gmofishsauce/ss32/pkg/obj"
)

// object builds the relocatable object. Extern-relative symbols do not
// appear in it; their relocations already name the extern.
func (a *Assembler) object() (*obj.File, error) {
	f := obj.New(obj.TypeRel)

	shndx := make(map[int]uint16)
	relas := make(map[int]*obj.Section)
	for _, s := range a.symbols.sections() {
		idx := obj.HeaderIndex(len(f.Sections))
		shndx[s.index] = idx
		rela := &obj.Section{
			Name: ".rela." + s.name,
			Type: obj.SecRela,
			Link: obj.SymtabIndex,
			Info: uint32(idx),
		}
		relas[s.index] = rela
		f.Sections = append(f.Sections, &obj.Section{
			Name: s.name,
			Type: obj.SecProgbits,
			Data: s.sec.data,
		}, rela)
	}

	remap := make([]uint32, len(a.symbols.entries))
	for _, s := range a.symbols.symbols() {
		out := obj.Symbol{Name: s.name, Value: s.value}
		if s.global {
			out.Bind = obj.BindGlobal
		}
		switch s.kind {
		case KindExternRelative:
			continue
		case KindSection:
			out.Kind = obj.SymSection
			out.Bind = obj.BindLocal
			out.Section = shndx[s.index]
		case KindRegular:
			out.Section = shndx[s.section]
		case KindAbsolute:
			out.Section = obj.ShnAbs
		case KindExtern:
			out.Section = obj.ShnUndef
		}
		remap[s.index] = uint32(len(f.Symbols))
		f.Symbols = append(f.Symbols, out)
	}

	for _, s := range a.symbols.sections() {
		rela := relas[s.index]
		for _, r := range s.sec.relocs {
			rela.Relocs = append(rela.Relocs, obj.Reloc{
				Offset: r.offset,
				Symbol: remap[r.symbol],
				Type:   obj.R32,
				Addend: r.addend,
			})
		}
	}
	return f, nil
}
