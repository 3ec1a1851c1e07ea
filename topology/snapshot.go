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

package topology

import (
	"net"
	"sort"
)

// Snapshot is a point-in-time, immutable view of the topology. It is safe
// for concurrent use by any number of readers. Never modify its contents.
type Snapshot struct {
	nodes    []uint64
	links    []Link
	adjacent map[uint64][]Link
	hosts    map[string]Host
}

// Nodes returns the datapath IDs of all registered switches in ascending
// order.
func (r *Snapshot) Nodes() []uint64 {
	return r.nodes
}

// Links returns all directed links sorted by source and then destination
// endpoint.
func (r *Snapshot) Links() []Link {
	return r.links
}

// Hosts returns all learned hosts sorted by MAC address.
func (r *Snapshot) Hosts() []Host {
	v := make([]Host, 0, len(r.hosts))
	for _, host := range r.hosts {
		v = append(v, host)
	}
	sort.Slice(v, func(i, j int) bool {
		return v[i].MAC.String() < v[j].MAC.String()
	})

	return v
}

// Host returns the attachment point of a MAC address.
func (r *Snapshot) Host(mac net.HardwareAddr) (host Host, ok bool) {
	host, ok = r.hosts[mac.String()]
	return host, ok
}

// Link returns the directed link from src to dst, if any. When parallel
// links exist the one with the lowest source port wins, which keeps path
// materialization deterministic.
func (r *Snapshot) Link(src, dst uint64) (link Link, ok bool) {
	for _, v := range r.adjacent[src] {
		if v.DstDPID == dst {
			return v, true
		}
	}

	return Link{}, false
}

// IsLinkPort reports whether the port is an endpoint of a discovered
// inter-switch link. Frames ingressing such ports belong to remote hosts
// and must not be learned locally.
func (r *Snapshot) IsLinkPort(dpid uint64, port uint32) bool {
	for _, v := range r.adjacent[dpid] {
		if v.SrcPort == port {
			return true
		}
	}
	for _, v := range r.links {
		if v.DstDPID == dpid && v.DstPort == port {
			return true
		}
	}

	return false
}

// HasSwitch reports whether dpid is a registered switch.
func (r *Snapshot) HasSwitch(dpid uint64) bool {
	i := sort.Search(len(r.nodes), func(i int) bool { return r.nodes[i] >= dpid })
	return i < len(r.nodes) && r.nodes[i] == dpid
}

func sortUint64(v []uint64) {
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
}

func sortLinks(v []Link) {
	sort.Slice(v, func(i, j int) bool {
		a, b := v[i], v[j]
		if a.SrcDPID != b.SrcDPID {
			return a.SrcDPID < b.SrcDPID
		}
		if a.DstDPID != b.DstDPID {
			return a.DstDPID < b.DstDPID
		}
		return a.SrcPort < b.SrcPort
	})
}
