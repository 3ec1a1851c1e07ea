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
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/superkkt/maple/openflow"
	"github.com/superkkt/maple/openflow/trans"
	"github.com/superkkt/maple/protocol"
	"github.com/superkkt/maple/topology"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

const (
	// Interval of periodic LLDP probing for link discovery.
	probeInterval = 15 * time.Second
	// Budget for the setup commands issued when a switch goes active.
	setupTimeout = 10 * time.Second
)

var (
	// Standard LLDP multicast address that 802.1D bridges do not forward.
	lldpMAC = net.HardwareAddr{0x01, 0x80, 0xC2, 0x00, 0x00, 0x0E}

	chassisPrefix = []byte("maple:")
)

// Lifecycle of a switch connection.
type phase int

const (
	disconnected phase = iota
	handshaking
	active
)

// session drives one switch connection from handshake to teardown. All
// its handler methods run on the transceiver's read loop; anything that
// has to wait for a reply of its own, like a barrier, runs elsewhere.
type session struct {
	controller *Controller
	trans      *trans.Transceiver
	// Parent context of the connection, for commands issued from
	// handlers.
	ctx         context.Context
	cancelProbe context.CancelFunc

	phase  phase
	device *Device
	dpid   uint64

	mu    sync.Mutex
	ports map[uint32]*openflow.Port
}

func newSession(controller *Controller, conn net.Conn) *session {
	r := &session{
		controller: controller,
		phase:      disconnected,
		ports:      make(map[uint32]*openflow.Port),
	}
	r.trans = trans.NewTransceiver(trans.NewStream(conn), r)

	return r
}

// Run blocks until the connection dies, then tears down everything this
// session contributed to the controller's state.
func (r *session) Run(ctx context.Context) {
	r.ctx = ctx
	r.phase = handshaking

	if err := r.trans.Run(ctx); err != nil {
		logger.Infof("switch connection closed: dpid=%v: %v", r.dpid, err)
	}
	r.cleanup()
}

func (r *session) cleanup() {
	r.trans.Close()
	if r.phase != active {
		r.phase = disconnected
		return
	}
	r.phase = disconnected

	if r.cancelProbe != nil {
		r.cancelProbe()
	}
	if !r.controller.unregister(r.device) {
		// A newer session took over this dpid; its state is not ours
		// to tear down.
		logger.Debugf("stale session for dpid=%v finished", r.dpid)
		return
	}
	// The cascade drops the switch's links and hosts; the flow manager
	// only marks its routes, because there is no switch left to talk to.
	r.controller.topo.SwitchDown(r.dpid)
	r.controller.routes.MarkOrphaned(r.dpid)
	r.controller.collector.Forget(r.dpid)
	logger.Infof("switch is disconnected: dpid=%v", r.dpid)
}

func (r *session) OnHello(w trans.Writer, msg *openflow.Hello) error {
	logger.Debugf("HELLO (v%v) received", msg.Version())

	if err := w.Write(openflow.NewHello()); err != nil {
		return err
	}
	config := openflow.NewSetConfig()
	config.SetFlags(openflow.FragNormal)
	// Table-miss packets reach us via packet-in; ask for whole frames so
	// host learning sees real addresses.
	config.SetMissSendLength(0xFFFF)
	if err := w.Write(config); err != nil {
		return err
	}

	return w.Write(openflow.NewFeaturesRequest())
}

func (r *session) OnFeaturesReply(w trans.Writer, msg *openflow.FeaturesReply) error {
	if msg.AuxID() != 0 {
		return errors.Errorf("auxiliary connection rejected: dpid=%v, aux=%v", msg.DPID(), msg.AuxID())
	}

	r.dpid = msg.DPID()
	r.device = newDevice(r.dpid, w)
	r.phase = active
	r.controller.register(r.device)
	r.controller.topo.SwitchUp(r.dpid)
	logger.Infof("switch is active: dpid=%v, buffers=%v, tables=%v", r.dpid, msg.NumBuffers(), msg.NumTables())

	// The table-miss install waits for a barrier reply that only this
	// goroutine can read, so it cannot run inline.
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, setupTimeout)
		defer cancel()
		if err := r.controller.routes.InstallTableMiss(ctx, r.dpid); err != nil {
			logger.Errorf("failed to install the table-miss rule: dpid=%v: %v", r.dpid, err)
		}
	}()

	probeCtx, cancel := context.WithCancel(r.ctx)
	r.cancelProbe = cancel
	go r.probeLoop(probeCtx)

	return r.device.RequestPortDesc()
}

func (r *session) OnPortStatus(w trans.Writer, msg *openflow.PortStatus) error {
	if r.phase != active {
		return nil
	}
	port := msg.Port()
	number := port.Number()
	if number > openflow.PortMax {
		return nil
	}

	down := msg.Reason() == openflow.PortDeleted || port.IsPortDown() || port.IsLinkDown()
	if down {
		r.mu.Lock()
		delete(r.ports, number)
		r.mu.Unlock()
		r.controller.topo.PortDown(r.dpid, number)
		return nil
	}

	r.mu.Lock()
	r.ports[number] = port
	r.mu.Unlock()
	r.controller.topo.PortUp(r.dpid, number)
	r.setCapacity(port)

	// Probe right away so the link shows up before the next sweep.
	if err := r.sendProbe(port); err != nil {
		logger.Errorf("failed to send an LLDP probe: dpid=%v, port=%v: %v", r.dpid, number, err)
	}

	return nil
}

func (r *session) OnPacketIn(w trans.Writer, msg *openflow.PacketIn) error {
	eth := new(protocol.Ethernet)
	if err := eth.UnmarshalBinary(msg.Data()); err != nil {
		logger.Debugf("dropping an undecodable packet-in: dpid=%v: %v", r.dpid, err)
		return nil
	}
	inPort := msg.InPort()

	if eth.Type == protocol.EtherTypeLLDP {
		return r.handleLLDP(inPort, eth.Payload)
	}
	if r.phase != active {
		return nil
	}

	snapshot := r.controller.topo.Snapshot()
	// Frames ingressing an inter-switch port belong to hosts attached
	// elsewhere; learning them here would bounce attachments around.
	if !snapshot.IsLinkPort(r.dpid, inPort) {
		r.controller.topo.HostSeen(eth.SrcMAC, r.dpid, inPort, senderIPv4(eth))
	}

	return r.forward(snapshot, eth, inPort, msg.Data())
}

// forward is the reactive fallback for traffic without an installed
// route: deliver directly when the destination hangs off this switch,
// flood otherwise.
func (r *session) forward(snapshot *topology.Snapshot, eth *protocol.Ethernet, inPort uint32, frame []byte) error {
	dst, ok := snapshot.Host(eth.DstMAC)
	if ok && dst.DPID == r.dpid {
		return r.device.SendPacketOut(dst.Port, frame)
	}

	return r.device.Flood(inPort, frame)
}

func (r *session) handleLLDP(inPort uint32, payload []byte) error {
	lldp := new(protocol.LLDP)
	if err := lldp.UnmarshalBinary(payload); err != nil {
		logger.Debugf("dropping an undecodable LLDP frame: dpid=%v: %v", r.dpid, err)
		return nil
	}
	if !bytes.HasPrefix(lldp.ChassisID.Data, chassisPrefix) {
		// Some other LLDP speaker on the segment; not our probe.
		return nil
	}

	srcDPID, err := strconv.ParseUint(string(lldp.ChassisID.Data[len(chassisPrefix):]), 16, 64)
	if err != nil {
		logger.Debugf("malformed chassis ID in an LLDP probe: %v", err)
		return nil
	}
	srcPort, err := strconv.ParseUint(string(lldp.PortID.Data), 16, 32)
	if err != nil {
		logger.Debugf("malformed port ID in an LLDP probe: %v", err)
		return nil
	}

	// The probe left srcDPID:srcPort and arrived here; that is one
	// direction of the link. The peer's probe discovers the other.
	r.controller.topo.LinkUp(
		topology.Endpoint{DPID: srcDPID, Port: uint32(srcPort)},
		topology.Endpoint{DPID: r.dpid, Port: inPort},
	)

	return nil
}

func (r *session) OnMultipartReply(w trans.Writer, msg *openflow.MultipartReply) error {
	switch msg.MultipartType() {
	case openflow.OFPMP_PORT_DESC:
		return r.handlePortDesc(msg.Ports())
	case openflow.OFPMP_PORT_STATS:
		stats := make([]openflow.PortStats, 0, len(msg.PortStats()))
		for _, v := range msg.PortStats() {
			stats = append(stats, *v)
		}
		r.controller.collector.OnPortStats(r.dpid, stats)
	case openflow.OFPMP_FLOW:
		stats := make([]openflow.FlowStats, 0, len(msg.FlowStats()))
		for _, v := range msg.FlowStats() {
			stats = append(stats, *v)
		}
		r.controller.collector.OnFlowStats(r.dpid, stats)
	default:
		logger.Debugf("ignoring a multipart reply: type=%v", msg.MultipartType())
	}

	return nil
}

func (r *session) handlePortDesc(ports []*openflow.Port) error {
	for _, port := range ports {
		number := port.Number()
		if number > openflow.PortMax {
			// The switch's internal port.
			continue
		}
		if port.IsPortDown() || port.IsLinkDown() {
			continue
		}

		r.mu.Lock()
		r.ports[number] = port
		r.mu.Unlock()
		r.controller.topo.PortUp(r.dpid, number)
		r.setCapacity(port)

		if err := r.sendProbe(port); err != nil {
			logger.Errorf("failed to send an LLDP probe: dpid=%v, port=%v: %v", r.dpid, number, err)
		}
	}

	return nil
}

func (r *session) setCapacity(port *openflow.Port) {
	if port.Speed() == 0 {
		return
	}
	// The advertised speed is in kbps.
	r.controller.collector.SetPortCapacity(r.dpid, port.Number(), float64(port.Speed())*125)
}

func (r *session) OnFlowRemoved(w trans.Writer, msg *openflow.FlowRemoved) error {
	logger.Debugf("flow removed: dpid=%v, cookie=%#x, reason=%v, packets=%v", r.dpid, msg.Cookie(), msg.Reason(), msg.PacketCount())
	return nil
}

func (r *session) OnError(w trans.Writer, msg *openflow.Error) error {
	logger.Errorf("error message from a switch: dpid=%v, class=%v, code=%v", r.dpid, msg.Class(), msg.Code())
	logger.Debugf("error message dump: %v", spew.Sdump(msg.Data()))
	return nil
}

func (r *session) OnBarrierReply(w trans.Writer, msg *openflow.BarrierReply) error {
	if r.device == nil {
		return nil
	}
	r.device.notifyBarrier(msg.TransactionID())
	return nil
}

// probeLoop periodically re-probes every known port. Links whose probes
// stop arriving are pruned when their ports or switches go down; the
// periodic probe exists to discover newly cabled links.
func (r *session) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			ports := make([]*openflow.Port, 0, len(r.ports))
			for _, port := range r.ports {
				ports = append(ports, port)
			}
			r.mu.Unlock()

			for _, port := range ports {
				if err := r.sendProbe(port); err != nil {
					logger.Errorf("failed to send an LLDP probe: dpid=%v, port=%v: %v", r.dpid, port.Number(), err)
				}
			}
		}
	}
}

// sendProbe emits the LLDP frame that identifies this switch and port to
// whatever is on the other end of the cable.
func (r *session) sendProbe(port *openflow.Port) error {
	lldp := &protocol.LLDP{
		ChassisID: protocol.LLDPChassisID{
			SubType: 7, // locally assigned
			Data:    []byte(fmt.Sprintf("%s%016x", chassisPrefix, r.dpid)),
		},
		PortID: protocol.LLDPPortID{
			SubType: 7,
			Data:    []byte(fmt.Sprintf("%08x", port.Number())),
		},
		TTL: 120,
	}
	payload, err := lldp.MarshalBinary()
	if err != nil {
		return err
	}

	eth := protocol.Ethernet{
		SrcMAC:  port.MAC(),
		DstMAC:  lldpMAC,
		Type:    protocol.EtherTypeLLDP,
		Payload: payload,
	}
	frame, err := eth.MarshalBinary()
	if err != nil {
		return err
	}

	return r.device.SendPacketOut(port.Number(), frame)
}

// senderIPv4 extracts the sender's IPv4 address from an IP or ARP
// payload, if present.
func senderIPv4(eth *protocol.Ethernet) net.IP {
	switch eth.Type {
	case protocol.EtherTypeIPv4:
		if len(eth.Payload) >= 20 {
			return net.IP(append([]byte{}, eth.Payload[12:16]...))
		}
	case protocol.EtherTypeARP:
		if len(eth.Payload) >= 28 {
			return net.IP(append([]byte{}, eth.Payload[14:18]...))
		}
	}

	return nil
}
