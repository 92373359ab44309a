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
	"sort"

	"github.com/golang/glog"

	"github.com/gmofishsauce/ss32/pkg/obj"
)

// mapSections merges same-named PROGBITS sections in input order,
// assigns base addresses and creates the output sections and their
// section symbols.
func (l *Linker) mapSections() error {
	for _, in := range l.inputs {
		for i, s := range in.file.Sections {
			if s.Type != obj.SecProgbits {
				continue
			}
			sec, ok := l.byName[s.Name]
			if !ok {
				sec = &outSection{name: s.Name}
				l.byName[s.Name] = sec
				l.sections = append(l.sections, sec)
			}
			shndx := obj.HeaderIndex(i)
			in.outputs[shndx] = sec
			in.offsets[shndx] = sec.size()
			sec.data = append(sec.data, s.Data...)
			if uint64(len(sec.data)) > 1<<32-1 {
				return errorf(ErrBadInput, s.Name, "merged section too large")
			}
		}
	}

	if !l.opts.Relocatable {
		if err := l.place(); err != nil {
			return err
		}
	}

	for _, sec := range l.sections {
		sec.shndx = obj.HeaderIndex(len(l.out.Sections))
		l.out.Sections = append(l.out.Sections, &obj.Section{
			Name: sec.name,
			Type: obj.SecProgbits,
			Addr: sec.addr,
		})
		if l.opts.Relocatable {
			sec.rela = &obj.Section{
				Name: ".rela." + sec.name,
				Type: obj.SecRela,
				Link: obj.SymtabIndex,
				Info: uint32(sec.shndx),
			}
			l.out.Sections = append(l.out.Sections, sec.rela)
		}
		l.symbols[sec.name] = uint32(len(l.out.Symbols))
		l.out.Symbols = append(l.out.Symbols, obj.Symbol{
			Name:    sec.name,
			Value:   sec.addr,
			Kind:    obj.SymSection,
			Section: sec.shndx,
		})
		glog.V(1).Infof("link: section %s at 0x%08X size 0x%X", sec.name, sec.addr, sec.size())
	}
	return nil
}

// place assigns executable addresses. Placed sections keep their
// requested base and must not overlap. The rest follow the highest
// placed section in order of first appearance.
func (l *Linker) place() error {
	var placed []*outSection
	for _, sec := range l.sections {
		addr, ok := l.opts.Places[sec.name]
		if !ok || sec.size() == 0 {
			continue
		}
		sec.addr = addr
		sec.placed = true
		placed = append(placed, sec)
	}
	sort.SliceStable(placed, func(i, j int) bool {
		a, b := placed[i], placed[j]
		if a.addr != b.addr {
			return a.addr < b.addr
		}
		return a.size() < b.size()
	})

	var next uint64
	for i, sec := range placed {
		end := uint64(sec.addr) + uint64(sec.size())
		if end > 1<<32 {
			return errorf(ErrSectionOverlap, sec.name, "placed at 0x%08X, extends past the address space", sec.addr)
		}
		if i > 0 && uint64(sec.addr) < next {
			return errorf(ErrSectionOverlap, sec.name, "placed at 0x%08X, overlaps section %s",
				sec.addr, placed[i-1].name)
		}
		next = end
	}

	for _, sec := range l.sections {
		if sec.placed {
			continue
		}
		end := next + uint64(sec.size())
		if end > 1<<32 {
			return errorf(ErrSectionOverlap, sec.name, "does not fit after 0x%08X", next)
		}
		sec.addr = uint32(next)
		next = end
	}
	return nil
}
