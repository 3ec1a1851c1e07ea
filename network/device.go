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
	"sync"

	"github.com/superkkt/maple/openflow"
	"github.com/superkkt/maple/openflow/trans"
	"github.com/superkkt/maple/routing"
)

// Device is a registered switch. It translates the controller's intents
// into OpenFlow messages on the switch connection, and confirms mutating
// commands with a barrier so a reported success means the switch really
// applied the rule.
type Device struct {
	dpid   uint64
	writer trans.Writer

	mu       sync.Mutex
	barriers map[uint32]chan struct{}
}

func newDevice(dpid uint64, writer trans.Writer) *Device {
	if writer == nil {
		panic("writer is nil")
	}

	return &Device{
		dpid:     dpid,
		writer:   writer,
		barriers: make(map[uint32]chan struct{}),
	}
}

func (r *Device) DPID() uint64 {
	return r.dpid
}

// InstallFlow installs a MAC-pair forwarding rule and waits for the
// switch's barrier confirmation.
func (r *Device) InstallFlow(ctx context.Context, flow routing.Flow) error {
	mod := openflow.NewFlowMod(openflow.FlowAdd)
	mod.SetCookie(flow.Cookie)
	mod.SetPriority(flow.Priority)
	mod.SetIdleTimeout(flow.IdleTimeout)
	mod.SetHardTimeout(flow.HardTimeout)
	mod.SetFlags(openflow.FlagSendFlowRemoved)

	match := openflow.NewMatch()
	match.SetEtherSrc(flow.SrcMAC)
	match.SetEtherDst(flow.DstMAC)
	mod.SetFlowMatch(match)
	mod.AddAction(openflow.NewOutputAction(flow.OutPort))

	if err := r.writer.Write(mod); err != nil {
		return err
	}

	return r.awaitBarrier(ctx)
}

// RemoveFlow deletes every rule carrying the cookie from all tables. The
// switch treats deleting a nonexistent rule as a success, which is exactly
// the idempotence the flow manager relies on.
func (r *Device) RemoveFlow(ctx context.Context, cookie uint64) error {
	mod := openflow.NewFlowMod(openflow.FlowDelete)
	mod.SetCookie(cookie)
	mod.SetCookieMask(0xFFFFFFFFFFFFFFFF)
	mod.SetTableID(openflow.TableAll)

	if err := r.writer.Write(mod); err != nil {
		return err
	}

	return r.awaitBarrier(ctx)
}

// InstallTableMiss installs the catch-all rule that punts unmatched
// frames to the controller, which is what makes host learning work.
func (r *Device) InstallTableMiss(ctx context.Context) error {
	mod := openflow.NewFlowMod(openflow.FlowAdd)
	// Priority zero with an empty match loses to everything else.
	mod.SetPriority(0)
	mod.SetFlowMatch(openflow.NewMatch())
	mod.AddAction(openflow.NewOutputAction(openflow.PortController))

	if err := r.writer.Write(mod); err != nil {
		return err
	}

	return r.awaitBarrier(ctx)
}

// RequestPortStats asks for port counters. The reply arrives
// asynchronously through the session's multipart handler.
func (r *Device) RequestPortStats(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.writer.Write(openflow.NewPortStatsRequest())
}

// RequestFlowStats asks for the counters of all flow entries.
func (r *Device) RequestFlowStats(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.writer.Write(openflow.NewFlowStatsRequest())
}

// RequestPortDesc asks for the switch's port descriptions.
func (r *Device) RequestPortDesc() error {
	return r.writer.Write(openflow.NewPortDescRequest())
}

// SendPacketOut emits a raw frame out of a specific port.
func (r *Device) SendPacketOut(port uint32, data []byte) error {
	msg := openflow.NewPacketOut()
	msg.AddAction(openflow.NewOutputAction(port))
	msg.SetData(data)

	return r.writer.Write(msg)
}

// Flood emits a frame out of every port except the one it came in on.
func (r *Device) Flood(inPort uint32, data []byte) error {
	msg := openflow.NewPacketOut()
	msg.SetInPort(inPort)
	msg.AddAction(openflow.NewOutputAction(openflow.PortFlood))
	msg.SetData(data)

	return r.writer.Write(msg)
}

// awaitBarrier sends a barrier request and blocks until the switch
// acknowledges it or the context expires. The barrier drains everything
// written before it, so its reply confirms the preceding flow-mod.
func (r *Device) awaitBarrier(ctx context.Context) error {
	barrier := openflow.NewBarrierRequest()
	xid := barrier.TransactionID()

	ch := make(chan struct{}, 1)
	r.mu.Lock()
	r.barriers[xid] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.barriers, xid)
		r.mu.Unlock()
	}()

	if err := r.writer.Write(barrier); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// notifyBarrier wakes the waiter of a barrier reply. Unmatched replies
// belong to waiters that already timed out and are dropped.
func (r *Device) notifyBarrier(xid uint32) {
	r.mu.Lock()
	ch, ok := r.barriers[xid]
	r.mu.Unlock()

	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
