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

package download

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

// Command bytes. The board acknowledges each command with its
// complement once it has received the command's fixed bytes.
const (
	CmdSync      = 0xEC
	CmdGetVer    = 0xED
	CmdSetAddr   = 0xEE // 4 address bytes LE
	CmdWritePage = 0xEF // count byte, then count data bytes
	CmdRun       = 0xF0 // 4 address bytes LE
)

const ProtocolVersion = 1

// MaxPage is the largest count a WritePage command can carry.
const MaxPage = 255

func Ack(cmd byte) byte {
	return ^cmd
}

var (
	responseDelay = 100 * time.Millisecond
	syncDelay     = time.Second
	syncTries     = 3
)

type UnexpectedResponseError struct {
	Command  byte
	Response byte
}

func (u *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("command 0x%X: unexpected response 0x%X", u.Command, u.Response)
}

// getSyncResponse slowly sends syncs until one is acknowledged, then
// consumes any late acks for the earlier ones.
func getSyncResponse(port Port) error {
	var err error
	nSent := 0
	for i := 0; i < syncTries; i++ {
		if i > 0 {
			time.Sleep(syncDelay)
		}
		err = doCommand(port, CmdSync)
		nSent++
		if err == nil {
			for nSent--; nSent > 0; nSent-- {
				readByte(port, responseDelay)
			}
			return nil
		}
		glog.Warningf("sync command failed: %s", err)
	}
	return fmt.Errorf("failed to synchronize: %w", err)
}

func checkProtocolVersion(port Port) error {
	b, err := doFixedCommand(port, []byte{CmdGetVer}, 1)
	if err != nil {
		return err
	}
	if b[0] != ProtocolVersion {
		return fmt.Errorf("protocol version mismatch: host 0x%02X, board 0x%02X",
			ProtocolVersion, b[0])
	}
	return nil
}

func doCommand(port Port, cmd byte) error {
	_, err := doFixedCommand(port, []byte{cmd}, 0)
	return err
}

func getAck(port Port, cmd byte) error {
	b, err := readByte(port, responseDelay)
	if err != nil {
		return err
	}
	if b != Ack(cmd) {
		return &UnexpectedResponseError{cmd, b}
	}
	return nil
}

// doFixedCommand sends a command byte and its fixed arguments, waits for
// the ack and then reads expected response bytes.
func doFixedCommand(port Port, fixed []byte, expected int) ([]byte, error) {
	if len(fixed) < 1 || len(fixed) > 8 {
		return nil, fmt.Errorf("invalid fixed command length %d", len(fixed))
	}
	if err := writeBytes(port, fixed); err != nil {
		return nil, err
	}
	if err := getAck(port, fixed[0]); err != nil {
		return nil, err
	}
	response := make([]byte, expected)
	for i := range response {
		b, err := readByte(port, responseDelay)
		if err != nil {
			return nil, err
		}
		response[i] = b
	}
	return response, nil
}

// doCountedSend sends a command whose last fixed byte is a count and,
// once it is acknowledged, the counted bytes. Counted bytes are not
// acknowledged.
func doCountedSend(port Port, fixed []byte, counted []byte) error {
	count := fixed[len(fixed)-1]
	if len(counted) != int(count) {
		return fmt.Errorf("counted send: have %d bytes for count %d", len(counted), count)
	}
	if _, err := doFixedCommand(port, fixed, 0); err != nil {
		return err
	}
	return writeBytes(port, counted)
}

func addressCommand(cmd byte, addr uint32) []byte {
	return []byte{cmd, byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24)}
}
