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

// Package download ships an executable's loadable sections to a board
// over a serial line and optionally starts it.
package download

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/gmofishsauce/ss32/pkg/obj"
)

// Download writes every LOAD segment of f to the board attached to
// port. When start is not nil the board is then told to run from it.
func Download(ctx context.Context, port Port, f *obj.File, start *uint32) error {
	if f.Type != obj.TypeExec {
		return fmt.Errorf("download: not an executable (type %s)", obj.TypeName(f.Type))
	}
	if err := getSyncResponse(port); err != nil {
		return err
	}
	if err := checkProtocolVersion(port); err != nil {
		return err
	}
	glog.V(1).Info("protocol version OK")

	for _, seg := range f.LoadSegments() {
		if err := writeSegment(ctx, port, seg); err != nil {
			return fmt.Errorf("segment %s: %w", seg.Name, err)
		}
	}
	if start != nil {
		if _, err := doFixedCommand(port, addressCommand(CmdRun, *start), 0); err != nil {
			return err
		}
		glog.Infof("running from 0x%08X", *start)
	}
	return nil
}

func writeSegment(ctx context.Context, port Port, seg obj.Segment) error {
	glog.Infof("downloading %s: %d bytes at 0x%08X", seg.Name, len(seg.Data), seg.Addr)
	if _, err := doFixedCommand(port, addressCommand(CmdSetAddr, seg.Addr), 0); err != nil {
		return err
	}
	for off := 0; off < len(seg.Data); off += MaxPage {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := seg.Data[off:]
		if len(page) > MaxPage {
			page = page[:MaxPage]
		}
		if err := doCountedSend(port, []byte{CmdWritePage, byte(len(page))}, page); err != nil {
			return err
		}
		if glog.V(2) {
			glog.Infof("wrote page at 0x%08X", seg.Addr+uint32(off))
		}
	}
	return nil
}
