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
	"bufio"
	"fmt"
	"io"
)

// Token kinds
const (
	tkError = iota
	tkSymbol
	tkNumber
	tkString
	tkRegister
	tkOperator
	tkNewline
	tkEOF
)

var kindToString = []string{
	"error",
	"symbol",
	"number",
	"string",
	"register",
	"operator",
	"newline",
	"EOF",
}

type token struct {
	tokenText string
	tokenKind int
	line      int
}

func (t *token) String() string {
	return fmt.Sprintf("{%s %s}", kindToString[t.tokenKind], t.tokenText)
}

func (t *token) text() string {
	return t.tokenText
}

func (t *token) kind() int {
	return t.tokenKind
}

func (t *token) is(kind int, text string) bool {
	return t.tokenKind == kind && t.tokenText == text
}

// lexState is the scanner over one source file.
type lexState struct {
	reader   *bufio.Reader
	line     int
	pushback *token
}

func newLexState(r io.Reader) *lexState {
	return &lexState{reader: bufio.NewReader(r), line: 1}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_' || b == '.'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// ungetToken pushes back one token. Only one token of pushback is
// supported.
func ungetToken(ls *lexState, tk *token) {
	ls.pushback = tk
}

func peekToken(ls *lexState) *token {
	tk := getToken(ls)
	ungetToken(ls, tk)
	return tk
}

// getToken returns the next token. Comments run from # to the end of
// the line and are returned as the newline that ends them.
func getToken(ls *lexState) *token {
	if tk := ls.pushback; tk != nil {
		ls.pushback = nil
		return tk
	}
	r := ls.reader
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			return &token{"", tkEOF, ls.line}
		}
		if err != nil {
			return &token{err.Error(), tkError, ls.line}
		}
		switch {
		case b == ' ' || b == '\t' || b == '\r':
			continue
		case b == '#':
			for b != '\n' {
				if b, err = r.ReadByte(); err != nil {
					return &token{"", tkEOF, ls.line}
				}
			}
			fallthrough
		case b == '\n':
			tk := &token{"\n", tkNewline, ls.line}
			ls.line++
			return tk
		case isLetter(b):
			return &token{string(b) + ls.accept(isIdentByte), tkSymbol, ls.line}
		case isDigit(b):
			return &token{string(b) + ls.accept(isIdentByte), tkNumber, ls.line}
		case b == '%':
			name := ls.accept(isIdentByte)
			if name == "" {
				return &token{"register name expected after %", tkError, ls.line}
			}
			return &token{name, tkRegister, ls.line}
		case b == '"':
			return ls.quoted()
		case b == ',' || b == ':' || b == '$' || b == '[' || b == ']' || b == '+' || b == '-':
			return &token{string(b), tkOperator, ls.line}
		default:
			return &token{fmt.Sprintf("character 0x%02X (%c) unexpected", b, b), tkError, ls.line}
		}
	}
}

func isIdentByte(b byte) bool {
	return isLetter(b) || isDigit(b)
}

func (ls *lexState) accept(ok func(byte) bool) string {
	var text []byte
	for {
		b, err := ls.reader.ReadByte()
		if err != nil {
			return string(text)
		}
		if !ok(b) {
			ls.reader.UnreadByte()
			return string(text)
		}
		text = append(text, b)
	}
}

// quoted reads the rest of a string literal. Escapes are kept as
// written; the directive that uses the string interprets them.
func (ls *lexState) quoted() *token {
	var text []byte
	for {
		b, err := ls.reader.ReadByte()
		if err != nil || b == '\n' {
			if err == nil {
				ls.reader.UnreadByte()
			}
			return &token{"unterminated string", tkError, ls.line}
		}
		if b == '"' {
			return &token{string(text), tkString, ls.line}
		}
		text = append(text, b)
		if b == '\\' {
			if b, err = ls.reader.ReadByte(); err == nil && b != '\n' {
				text = append(text, b)
			} else {
				if err == nil {
					ls.reader.UnreadByte()
				}
				return &token{"unterminated string", tkError, ls.line}
			}
		}
	}
}
