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

// Package link combines relocatable objects into an executable or into
// a single larger relocatable object.
//
// Linking runs three phases over the inputs in the order they were
// added. Sections with equal names are merged and given addresses,
// global symbols are copied into one table, and every relocation is
// either applied (executable output) or rewritten against the merged
// sections (relocatable output).
package link

import (
	"github.com/golang/glog"

	"github.com/gmofishsauce/ss32/pkg/obj"
)

type Options struct {
	// Places maps section names to load addresses. Ignored for
	// relocatable output.
	Places map[string]uint32

	// Relocatable selects REL output instead of EXEC.
	Relocatable bool
}

// input is one object file and where each of its sections landed.
type input struct {
	name string
	file *obj.File

	// Keyed by input section header index.
	outputs map[uint16]*outSection
	offsets map[uint16]uint32
}

// outSection is a merged section of the output.
type outSection struct {
	name   string
	addr   uint32
	data   []byte
	placed bool
	shndx  uint16
	rela   *obj.Section
}

func (s *outSection) size() uint32 {
	return uint32(len(s.data))
}

type Linker struct {
	opts     Options
	inputs   []*input
	sections []*outSection
	byName   map[string]*outSection
	out      *obj.File
	symbols  map[string]uint32
}

func New(opts Options) *Linker {
	return &Linker{
		opts:    opts,
		byName:  make(map[string]*outSection),
		symbols: make(map[string]uint32),
	}
}

// AddFile queues a relocatable object. Files are linked in the order
// they are added.
func (l *Linker) AddFile(name string, f *obj.File) error {
	if f == nil || f.Type != obj.TypeRel {
		return errorf(ErrBadInput, name, "not a relocatable object")
	}
	if len(f.Symbols) == 0 {
		return errorf(ErrBadInput, name, "missing null symbol")
	}
	l.inputs = append(l.inputs, &input{
		name:    name,
		file:    f,
		outputs: make(map[uint16]*outSection),
		offsets: make(map[uint16]uint32),
	})
	glog.V(1).Infof("link: added %s: %d sections, %d symbols", name, len(f.Sections), len(f.Symbols)-1)
	return nil
}

// Link produces the output object. A Linker links once.
func (l *Linker) Link() (*obj.File, error) {
	if l.out != nil {
		return l.out, nil
	}
	typ := uint16(obj.TypeExec)
	if l.opts.Relocatable {
		typ = obj.TypeRel
	}
	l.out = obj.New(typ)

	if err := l.mapSections(); err != nil {
		l.out = nil
		return nil, err
	}
	if err := l.updateSymbols(); err != nil {
		l.out = nil
		return nil, err
	}
	if err := l.relocate(); err != nil {
		l.out = nil
		return nil, err
	}
	for _, s := range l.sections {
		sec := l.out.Section(s.shndx)
		sec.Data = s.data
		if s.rela != nil && len(s.rela.Relocs) == 0 {
			s.rela.Relocs = nil
		}
	}
	glog.V(1).Infof("link: %s output, %d sections, %d symbols",
		obj.TypeName(typ), len(l.sections), len(l.out.Symbols)-1)
	return l.out, nil
}
