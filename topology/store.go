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

// Package topology owns the live view of the network: switches, inter-switch
// links, and learned host locations. All discovery events funnel into the
// Store, which publishes an immutable Snapshot that readers traverse without
// holding any lock.
package topology

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("topology")
)

// Endpoint is one end of a directed link.
type Endpoint struct {
	DPID uint64
	Port uint32
}

// Link is a directed edge between two switch ports. An undirected physical
// link is stored as two Link records, one per direction, because discovery
// can observe the directions independently.
type Link struct {
	SrcDPID uint64
	SrcPort uint32
	DstDPID uint64
	DstPort uint32
}

// Host is the attachment point where a MAC address was last seen ingressing.
// At most one attachment exists per MAC.
type Host struct {
	MAC      net.HardwareAddr
	DPID     uint64
	Port     uint32
	IP       net.IP
	LastSeen time.Time
}

type switchEntry struct {
	dpid  uint64
	ports map[uint32]bool
}

// Store is the single writer of the topology. Mutations are serialized by
// its mutex; every mutation rebuilds the snapshot before the lock is
// released so that a published snapshot is always internally consistent.
type Store struct {
	mu       sync.Mutex
	switches map[uint64]*switchEntry
	// Key is the source endpoint. A switch port belongs to at most one link.
	links map[Endpoint]Link
	// Key is the string form of the MAC address.
	hosts    map[string]Host
	snapshot atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	r := &Store{
		switches: make(map[uint64]*switchEntry),
		links:    make(map[Endpoint]Link),
		hosts:    make(map[string]Host),
	}
	r.snapshot.Store(r.buildSnapshot())

	return r
}

// SwitchUp registers a switch. Repeated up events for a known switch are
// no-ops.
func (r *Store) SwitchUp(dpid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.switches[dpid]; ok {
		return
	}
	r.switches[dpid] = &switchEntry{
		dpid:  dpid,
		ports: make(map[uint32]bool),
	}
	r.publish()
	logger.Infof("switch is up: dpid=%v", dpid)
}

// SwitchDown removes a switch, every link incident to it, and every host
// attached to it. Repeated down events are no-ops.
func (r *Store) SwitchDown(dpid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.switches[dpid]; !ok {
		return
	}
	delete(r.switches, dpid)
	for src, link := range r.links {
		if src.DPID == dpid || link.DstDPID == dpid {
			delete(r.links, src)
		}
	}
	for mac, host := range r.hosts {
		if host.DPID == dpid {
			delete(r.hosts, mac)
		}
	}
	r.publish()
	logger.Infof("switch is down: dpid=%v", dpid)
}

// PortUp marks a switch port as active. An unknown dpid is logged and
// ignored since disconnects can race with late port events.
func (r *Store) PortUp(dpid uint64, port uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sw, ok := r.switches[dpid]
	if !ok {
		logger.Warningf("port up on an unknown switch: dpid=%v, port=%v", dpid, port)
		return
	}
	sw.ports[port] = true
	r.publish()
}

// PortDown removes a port and prunes the link and the hosts behind it.
func (r *Store) PortDown(dpid uint64, port uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sw, ok := r.switches[dpid]
	if !ok {
		logger.Warningf("port down on an unknown switch: dpid=%v, port=%v", dpid, port)
		return
	}
	delete(sw.ports, port)

	// Both directions die with the physical port, including a link seen
	// in only one direction so far.
	for src, link := range r.links {
		if (src.DPID == dpid && src.Port == port) || (link.DstDPID == dpid && link.DstPort == port) {
			delete(r.links, src)
		}
	}
	for mac, host := range r.hosts {
		if host.DPID == dpid && host.Port == port {
			delete(r.hosts, mac)
		}
	}
	r.publish()
}

// LinkUp adds a directed link. Both endpoints have to reference known
// switches; otherwise the event is logged and dropped.
func (r *Store) LinkUp(src, dst Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.switches[src.DPID]; !ok {
		logger.Warningf("link up from an unknown switch: dpid=%v", src.DPID)
		return
	}
	if _, ok := r.switches[dst.DPID]; !ok {
		logger.Warningf("link up to an unknown switch: dpid=%v", dst.DPID)
		return
	}

	link := Link{SrcDPID: src.DPID, SrcPort: src.Port, DstDPID: dst.DPID, DstPort: dst.Port}
	if r.links[src] == link {
		// Periodic LLDP probes rediscover existing links.
		return
	}
	r.links[src] = link
	r.publish()
	logger.Infof("link is up: %v:%v -> %v:%v", src.DPID, src.Port, dst.DPID, dst.Port)
}

// LinkDown removes a directed link. Unknown links are ignored.
func (r *Store) LinkDown(src, dst Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[src]
	if !ok || link.DstDPID != dst.DPID || link.DstPort != dst.Port {
		return
	}
	delete(r.links, src)
	r.publish()
	logger.Infof("link is down: %v:%v -> %v:%v", src.DPID, src.Port, dst.DPID, dst.Port)
}

// HostSeen upserts the attachment point of a host. A MAC reappearing at a
// different switch or port replaces its previous attachment (host mobility).
// An unknown dpid is logged and ignored.
func (r *Store) HostSeen(mac net.HardwareAddr, dpid uint64, port uint32, ip net.IP) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.switches[dpid]; !ok {
		logger.Warningf("host %v seen on an unknown switch: dpid=%v", mac, dpid)
		return
	}

	key := mac.String()
	old, ok := r.hosts[key]
	host := Host{
		MAC:      append(net.HardwareAddr{}, mac...),
		DPID:     dpid,
		Port:     port,
		IP:       ip,
		LastSeen: time.Now(),
	}
	if ip == nil {
		// Keep the address learned earlier.
		host.IP = old.IP
	}
	r.hosts[key] = host
	r.publish()

	if ok && (old.DPID != dpid || old.Port != port) {
		logger.Infof("host %v moved: %v:%v -> %v:%v", mac, old.DPID, old.Port, dpid, port)
	}
}

// Snapshot returns the immutable topology view that was published by the
// most recent mutation.
func (r *Store) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Caller should hold the mutex.
func (r *Store) publish() {
	r.snapshot.Store(r.buildSnapshot())
}

// Caller should hold the mutex.
func (r *Store) buildSnapshot() *Snapshot {
	v := &Snapshot{
		hosts:    make(map[string]Host, len(r.hosts)),
		adjacent: make(map[uint64][]Link),
	}
	for dpid := range r.switches {
		v.nodes = append(v.nodes, dpid)
	}
	sortUint64(v.nodes)

	for _, link := range r.links {
		v.links = append(v.links, link)
		v.adjacent[link.SrcDPID] = append(v.adjacent[link.SrcDPID], link)
	}
	sortLinks(v.links)
	for _, links := range v.adjacent {
		sortLinks(links)
	}

	for mac, host := range r.hosts {
		v.hosts[mac] = host
	}

	return v
}
