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
	"github.com/golang/glog"

	"github.com/gmofishsauce/ss32/pkg/isa"
)

func (a *Assembler) end(line int) error {
	// Globals that were never defined here are resolved by the linker.
	for _, sym := range a.symbols.symbols() {
		if !sym.defined && sym.global && !a.pending(sym) {
			sym.kind = KindExtern
			sym.defined = true
		}
	}
	if err := a.defined(); err != nil {
		return err
	}
	if err := a.unresolved(); err != nil {
		return err
	}
	for _, sym := range a.symbols.symbols() {
		if !sym.defined {
			return a.errorf(ErrUndefinedSymbol, sym.line, "undefined symbol %s", sym.name)
		}
		if sym.global && sym.kind == KindExternRelative {
			return a.errorf(ErrInvalidEqu, sym.line, "%s is relative to an extern and cannot be global", sym.name)
		}
	}
	glog.V(1).Infof("%s:%d: pass 1 complete, %d symbols", a.source, line, len(a.symbols.entries)-1)

	if err := a.backpatch(); err != nil {
		return err
	}
	if err := a.emitPools(); err != nil {
		return err
	}
	f, err := a.object()
	if err != nil {
		return err
	}
	a.result = f
	a.ended = true
	return nil
}

// backpatch walks every symbol's forward references in order.
func (a *Assembler) backpatch() error {
	for _, sym := range a.symbols.symbols() {
		for _, ref := range sym.refs {
			if glog.V(2) {
				glog.Infof("%s:%d: backpatch %s at %s+0x%X", a.source, ref.line, sym.name,
					a.symbols.at(ref.section).name, ref.offset)
			}
			switch ref.kind {
			case refRegular:
				a.patchRegular(sym, ref)
			case refConstant:
				if sym.kind != KindAbsolute {
					return a.errorf(ErrInvalidAddressing, ref.line,
						"%s is not a constant and cannot be a displacement", sym.name)
				}
				v := int64(int32(sym.value))
				sec := a.symbols.at(ref.section).sec
				if err := sec.patchDisplacement(ref.offset, v); err != nil {
					return a.errorf(ErrDisplacementOverflow, ref.line, "%s = %d does not fit in 12 bits", sym.name, v)
				}
			default:
				a.resolveOperand(sym, ref)
			}
		}
		sym.refs = nil
	}
	return nil
}

// emitPools appends each section's literal pool and then its symbol
// literal pool, and points every site at its slot.
func (a *Assembler) emitPools() error {
	for _, s := range a.symbols.sections() {
		sec := s.sec
		for _, v := range sec.literals.keys {
			slot := sec.appendWord(v)
			if err := a.patchSites(s, slot, sec.literals.sites[v]); err != nil {
				return err
			}
		}
		for _, key := range sec.symLiterals.keys {
			sym := a.symbols.at(int(key))
			var slot uint32
			if sym.kind == KindAbsolute {
				slot = sec.appendWord(sym.value)
			} else {
				slot = sec.appendWord(0)
				target, addend := a.relocTarget(sym)
				sec.relocs = append(sec.relocs, reloc{offset: slot, symbol: target, addend: addend})
			}
			if err := a.patchSites(s, slot, sec.symLiterals.sites[key]); err != nil {
				return err
			}
		}
		glog.V(1).Infof("%s: section %s: %d literals, %d symbol literals, size 0x%X",
			a.source, s.name, len(sec.literals.keys), len(sec.symLiterals.keys), sec.lc())
	}
	return nil
}

func (a *Assembler) patchSites(s *symbol, slot uint32, sites []poolSite) error {
	for _, site := range sites {
		disp := int64(slot) - int64(site.offset+isa.WordSize)
		if err := s.sec.patchDisplacement(site.offset, disp); err != nil {
			return a.errorf(ErrDisplacementOverflow, site.line,
				"literal pool of section %s is out of reach (%d bytes)", s.name, disp)
		}
	}
	return nil
}
