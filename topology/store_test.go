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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSwitchDownCascade(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.SwitchUp(2)
	s.SwitchUp(3)
	addLink(s, 1, 10, 2, 20)
	addLink(s, 2, 21, 3, 30)
	s.HostSeen(h1, 1, 1, nil)
	s.HostSeen(h2, 2, 2, nil)

	s.SwitchDown(2)
	// Repeated down events should be harmless.
	s.SwitchDown(2)

	v := s.Snapshot()
	if diff := cmp.Diff([]uint64{1, 3}, v.Nodes()); diff != "" {
		t.Fatalf("unexpected nodes (-want +got):\n%s", diff)
	}
	if len(v.Links()) != 0 {
		t.Fatalf("expected no link after cascade, got %v", v.Links())
	}
	if _, ok := v.Host(h2); ok {
		t.Fatal("host on the downed switch should be pruned")
	}
	if _, ok := v.Host(h1); !ok {
		t.Fatal("host on a live switch should survive")
	}
}

func TestPortDownPrunesLinkAndHosts(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.SwitchUp(2)
	s.PortUp(1, 10)
	addLink(s, 1, 10, 2, 20)
	s.HostSeen(h1, 1, 10, nil)

	s.PortDown(1, 10)

	v := s.Snapshot()
	if len(v.Links()) != 0 {
		t.Fatalf("expected both link directions removed, got %v", v.Links())
	}
	if _, ok := v.Host(h1); ok {
		t.Fatal("host behind the downed port should be pruned")
	}
}

func TestPortDownPrunesHalfDiscoveredLink(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.SwitchUp(2)
	s.PortUp(1, 10)
	// Only one direction has been discovered so far; the downed port is
	// its destination endpoint.
	s.LinkUp(Endpoint{DPID: 2, Port: 20}, Endpoint{DPID: 1, Port: 10})

	s.PortDown(1, 10)

	if v := s.Snapshot().Links(); len(v) != 0 {
		t.Fatalf("expected the link into the downed port removed, got %v", v)
	}
}

func TestHostMobility(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.SwitchUp(2)
	s.HostSeen(h1, 1, 1, net.ParseIP("10.0.0.1"))

	// The same MAC reappears elsewhere without an IP: the attachment
	// moves and the learned address sticks.
	s.HostSeen(h1, 2, 7, nil)

	host, ok := s.Snapshot().Host(h1)
	if !ok {
		t.Fatal("host not found")
	}
	if host.DPID != 2 || host.Port != 7 {
		t.Fatalf("expected attachment 2:7, got %v:%v", host.DPID, host.Port)
	}
	if !host.IP.Equal(net.ParseIP("10.0.0.1")) {
		t.Fatalf("expected retained IP, got %v", host.IP)
	}
}

func TestEventsOnUnknownSwitchIgnored(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)

	s.PortUp(9, 1)
	s.PortDown(9, 1)
	s.HostSeen(h1, 9, 1, nil)
	s.LinkUp(Endpoint{1, 10}, Endpoint{9, 90})
	s.LinkUp(Endpoint{9, 90}, Endpoint{1, 10})

	v := s.Snapshot()
	if diff := cmp.Diff([]uint64{1}, v.Nodes()); diff != "" {
		t.Fatalf("unexpected nodes (-want +got):\n%s", diff)
	}
	if len(v.Links()) != 0 || len(v.Hosts()) != 0 {
		t.Fatalf("events on an unknown switch must leave no trace: links=%v hosts=%v", v.Links(), v.Hosts())
	}
}

func TestSnapshotIsStable(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.SwitchUp(2)
	addLink(s, 1, 10, 2, 20)

	before := s.Snapshot()
	s.SwitchUp(3)

	// The previously published snapshot must not see the mutation.
	if diff := cmp.Diff([]uint64{1, 2}, before.Nodes()); diff != "" {
		t.Fatalf("published snapshot changed under a reader (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3}, s.Snapshot().Nodes()); diff != "" {
		t.Fatalf("unexpected nodes after mutation (-want +got):\n%s", diff)
	}
}

func TestLinkDown(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.SwitchUp(2)
	addLink(s, 1, 10, 2, 20)

	s.LinkDown(Endpoint{1, 10}, Endpoint{2, 20})

	links := s.Snapshot().Links()
	if len(links) != 1 {
		t.Fatalf("expected only the reverse direction to remain, got %v", links)
	}
	if links[0].SrcDPID != 2 {
		t.Fatalf("unexpected remaining link: %v", links[0])
	}
}
