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
	"errors"
	"fmt"
)

// Error kinds. Every *Error wraps exactly one of these, so callers can
// test with errors.Is.
var (
	ErrSyntax               = errors.New("syntax error")
	ErrUndefinedSymbol      = errors.New("undefined symbol")
	ErrRedefinition         = errors.New("symbol redefinition")
	ErrInvalidAddressing    = errors.New("invalid addressing")
	ErrDisplacementOverflow = errors.New("displacement overflow")
	ErrInvalidEqu           = errors.New("invalid .equ expression")
	ErrCyclicEqu            = errors.New("cyclic dependency among .equ symbols")
	ErrMissingEnd           = errors.New("missing .end directive")
	ErrOutsideSection       = errors.New("not in a section")
)

// Error is a fatal assembly error tagged with its source position.
type Error struct {
	Source string
	Line   int
	Kind   error
	Msg    string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func (a *Assembler) errorf(kind error, line int, format string, args ...interface{}) error {
	return &Error{
		Source: a.source,
		Line:   line,
		Kind:   kind,
		Msg:    fmt.Sprintf(format, args...),
	}
}
