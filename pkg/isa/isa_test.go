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

package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, uint32(0x81E0FFFC), Encode(OpStorePush, SP, 0, 15, -4))
	assert.Equal(t, uint32(RetWord), Encode(OpLoadPop, PC, SP, 0, 4))
	assert.Equal(t, uint32(IretStatusWord), Encode(OpCsrLoadPop, Status, SP, 0, 4))
	assert.Equal(t, uint32(0x50112000), Encode(OpAdd, 1, 1, 2, 0))
}

func TestFields(t *testing.T) {
	op, a, b, c, d := Fields(Encode(OpBne, PC, 3, 4, -100))
	assert.Equal(t, OpBne, op)
	assert.Equal(t, PC, a)
	assert.Equal(t, 3, b)
	assert.Equal(t, 4, c)
	assert.Equal(t, int32(-100), d)
}

func TestDispRoundTrip(t *testing.T) {
	word := make([]byte, WordSize)
	for v := int64(DispMin); v <= DispMax; v++ {
		PutWord(word, Encode(OpStore, 1, 2, 0xA, 0))
		require.NoError(t, PackDisp(word, v))
		require.Equal(t, int32(v), UnpackDisp(word))
		// regC survives in the high nibble of byte 1
		require.Equal(t, byte(0xA0), word[1]&0xF0)
	}
}

func TestDispOverflow(t *testing.T) {
	word := make([]byte, WordSize)
	assert.Error(t, PackDisp(word, 2048))
	assert.Error(t, PackDisp(word, -2049))
	assert.False(t, FitsDisp(4096))
	assert.True(t, FitsDisp(-2048))
}

func TestRegisters(t *testing.T) {
	n, ok := LookupGPR("r12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)
	n, ok = LookupGPR("sp")
	assert.True(t, ok)
	assert.Equal(t, SP, n)
	_, ok = LookupGPR("r16")
	assert.False(t, ok)
	_, ok = LookupGPR("r01")
	assert.False(t, ok)
	n, ok = LookupCSR("cause")
	assert.True(t, ok)
	assert.Equal(t, Cause, n)
}
