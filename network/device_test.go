/*
 * Maple - An OpenFlow Controller
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/superkkt/maple/openflow"
	"github.com/superkkt/maple/routing"
)

// replyBarriers acks every barrier request as soon as it is written,
// mimicking a healthy switch.
func replyBarriers(t *testing.T, device *Device, writer *fakeWriter, done <-chan struct{}) {
	t.Helper()

	go func() {
		acked := 0
		for {
			select {
			case <-done:
				return
			default:
			}
			for i := acked; i < writer.count(); i++ {
				if barrier, ok := writer.message(i).(*openflow.BarrierRequest); ok {
					device.notifyBarrier(barrier.TransactionID())
				}
				acked++
			}
			time.Sleep(time.Millisecond)
		}
	}()
}

func TestInstallFlowConfirmedByBarrier(t *testing.T) {
	writer := &fakeWriter{}
	device := newDevice(1, writer)

	done := make(chan struct{})
	defer close(done)
	replyBarriers(t, device, writer, done)

	src, _ := net.ParseMAC("00:00:00:00:00:01")
	dst, _ := net.ParseMAC("00:00:00:00:00:02")
	err := device.InstallFlow(context.Background(), routing.Flow{
		Cookie:      0xDEAD,
		SrcMAC:      src,
		DstMAC:      dst,
		OutPort:     3,
		Priority:    100,
		IdleTimeout: 60,
		HardTimeout: 300,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A flow-mod followed by its barrier.
	if writer.count() != 2 {
		t.Fatalf("expected 2 messages, got %v", writer.count())
	}
	if _, ok := writer.message(0).(*openflow.FlowMod); !ok {
		t.Fatalf("expected a flow-mod first, got %T", writer.message(0))
	}
	if _, ok := writer.message(1).(*openflow.BarrierRequest); !ok {
		t.Fatalf("expected a barrier request, got %T", writer.message(1))
	}
}

func TestInstallFlowTimesOutWithoutBarrierReply(t *testing.T) {
	writer := &fakeWriter{}
	device := newDevice(1, writer)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	src, _ := net.ParseMAC("00:00:00:00:00:01")
	dst, _ := net.ParseMAC("00:00:00:00:00:02")
	err := device.InstallFlow(ctx, routing.Flow{SrcMAC: src, DstMAC: dst, OutPort: 3})
	if err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRemoveFlowConfirmedByBarrier(t *testing.T) {
	writer := &fakeWriter{}
	device := newDevice(1, writer)

	done := make(chan struct{})
	defer close(done)
	replyBarriers(t, device, writer, done)

	if err := device.RemoveFlow(context.Background(), 0xBEEF); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := writer.message(0).(*openflow.FlowMod); !ok {
		t.Fatalf("expected a flow-mod, got %T", writer.message(0))
	}
}

func TestStaleBarrierReplyIgnored(t *testing.T) {
	device := newDevice(1, &fakeWriter{})
	// A reply for a transaction nobody waits on must not panic or block.
	device.notifyBarrier(12345)
}
