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
	"github.com/golang/glog"

	"github.com/gmofishsauce/ss32/pkg/isa"
	"github.com/gmofishsauce/ss32/pkg/obj"
)

// relocate applies (EXEC) or rewrites (REL) every input relocation.
func (l *Linker) relocate() error {
	for _, in := range l.inputs {
		for _, rela := range in.file.Sections {
			if rela.Type != obj.SecRela || len(rela.Relocs) == 0 {
				continue
			}
			target := uint16(rela.Info)
			sec, ok := in.outputs[target]
			if !ok {
				return errorf(ErrBadInput, in.name, "%s patches section %d, which is not PROGBITS", rela.Name, target)
			}
			base := in.offsets[target]
			size := uint32(len(in.file.Section(target).Data))
			for _, r := range rela.Relocs {
				if err := l.reloc(in, sec, base, size, r); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (l *Linker) reloc(in *input, sec *outSection, base, size uint32, r obj.Reloc) error {
	if r.Type != obj.R32 {
		return errorf(ErrBadInput, in.name, "%s+0x%X: unknown relocation type %d", sec.name, r.Offset, r.Type)
	}
	if uint64(r.Offset)+isa.WordSize > uint64(size) {
		return errorf(ErrBadInput, in.name, "%s+0x%X: relocation outside section", sec.name, r.Offset)
	}
	if r.Symbol == 0 || int(r.Symbol) >= len(in.file.Symbols) {
		return errorf(ErrBadInput, in.name, "%s+0x%X: bad symbol index %d", sec.name, r.Offset, r.Symbol)
	}
	sym := in.file.Symbols[r.Symbol]
	name := sym.Name
	addend := r.Addend
	if sym.IsSection() {
		// The section symbol now stands for the whole merged section.
		target, ok := in.outputs[sym.Section]
		if !ok {
			return errorf(ErrBadInput, in.name, "section symbol %s: bad section index %d", sym.Name, sym.Section)
		}
		name = target.name
		addend += int32(in.offsets[sym.Section])
	}
	offset := base + r.Offset

	if l.opts.Relocatable {
		idx, _ := l.lookup(name, true)
		sec.rela.Relocs = append(sec.rela.Relocs, obj.Reloc{
			Offset: offset,
			Symbol: idx,
			Type:   r.Type,
			Addend: addend,
		})
		return nil
	}

	idx, ok := l.lookup(name, false)
	if !ok {
		return errorf(ErrUndefinedSymbol, name, "referenced from %s section %s", in.name, sec.name)
	}
	value := l.out.Symbols[idx].Value + uint32(addend)
	if glog.V(2) {
		glog.Infof("link: %s: patch %s+0x%X = 0x%08X (%s%+d)", in.name, sec.name, offset, value, name, addend)
	}
	isa.PutWord(sec.data[offset:], value)
	return nil
}
