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
	"errors"
	"fmt"
)

var (
	ErrUndefinedSymbol    = errors.New("undefined symbol")
	ErrMultipleDefinition = errors.New("multiple definition")
	ErrSectionOverlap     = errors.New("section overlap")
	ErrBadInput           = errors.New("bad input")
)

// Error names the input file, section or symbol it is about.
type Error struct {
	Kind    error
	Subject string
	Msg     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Subject, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func errorf(kind error, subject string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Subject: subject, Msg: fmt.Sprintf(format, args...)}
}
