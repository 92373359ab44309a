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

	"github.com/gmofishsauce/ss32/pkg/obj"
)

// updateSymbols copies every defined global into the output table with
// its final value. Relocatable output also keeps defined locals, rebased
// but never matched by name; relocations against local labels name their
// section symbol instead, so executables drop them.
func (l *Linker) updateSymbols() error {
	for _, in := range l.inputs {
		for i, s := range in.file.Symbols {
			if i == 0 || s.IsSection() || s.Section == obj.ShnUndef {
				continue
			}
			local := !s.IsGlobal()
			if local && !l.opts.Relocatable {
				continue
			}
			out := obj.Symbol{
				Name:  s.Name,
				Value: s.Value,
				Size:  s.Size,
				Bind:  s.Bind,
				Kind:  s.Kind,
			}
			if s.Section == obj.ShnAbs {
				out.Section = obj.ShnAbs
			} else {
				sec, ok := in.outputs[s.Section]
				if !ok {
					return errorf(ErrBadInput, in.name, "symbol %s: bad section index %d", s.Name, s.Section)
				}
				out.Value += sec.addr + in.offsets[s.Section]
				out.Section = sec.shndx
			}
			if local {
				l.out.Symbols = append(l.out.Symbols, out)
				continue
			}
			if _, dup := l.symbols[s.Name]; dup {
				return errorf(ErrMultipleDefinition, s.Name, "defined again in %s", in.name)
			}
			if glog.V(2) {
				glog.Infof("link: %s: %s = 0x%08X", in.name, s.Name, out.Value)
			}
			l.symbols[s.Name] = uint32(len(l.out.Symbols))
			l.out.Symbols = append(l.out.Symbols, out)
		}
	}
	return nil
}

// lookup returns the output index of name, adding a global undefined
// symbol for it when add is set.
func (l *Linker) lookup(name string, add bool) (uint32, bool) {
	if idx, ok := l.symbols[name]; ok {
		return idx, true
	}
	if !add {
		return 0, false
	}
	idx := uint32(len(l.out.Symbols))
	l.symbols[name] = idx
	l.out.Symbols = append(l.out.Symbols, obj.Symbol{
		Name:    name,
		Bind:    obj.BindGlobal,
		Section: obj.ShnUndef,
	})
	return idx, true
}
