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
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// The board resets when the port opens and spends this long in its
// bootloader, which eats any bytes sent meanwhile.
const resetDelay = 3 * time.Second

// Port is the subset of serial.Port the downloader needs.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

type NoResponseError time.Duration

func (nre NoResponseError) Error() string {
	return fmt.Sprintf("read from board: no response after %v", time.Duration(nre))
}

// Open opens device at baud 8N1 and waits out the board reset.
func Open(device string, baud int) (serial.Port, error) {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	glog.Infof("serial port %s is open, delaying for board reset", device)
	time.Sleep(resetDelay)
	return port, nil
}

// readByte reads one byte or fails with NoResponseError after timeout.
func readByte(port Port, timeout time.Duration) (byte, error) {
	b := make([]byte, 1)
	var n int
	var err error

	if err := port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	// Retry on EINTR, which the Go runtime's signals cause regularly.
	for {
		n, err = port.Read(b)
		if !isRetryableSyscallError(err) {
			break
		}
	}
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, NoResponseError(timeout)
	}
	if glog.V(3) {
		glog.Infof("read 0x%02X", b[0])
	}
	return b[0], nil
}

func writeBytes(port Port, b []byte) error {
	if glog.V(3) {
		glog.Infof("write % X", b)
	}
	for len(b) > 0 {
		n, err := port.Write(b)
		b = b[n:]
		if isRetryableSyscallError(err) {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("write consumed 0 bytes")
		}
	}
	return nil
}

func isRetryableSyscallError(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
