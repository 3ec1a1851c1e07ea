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
	"github.com/pkg/errors"
)

func mac(s string) net.HardwareAddr {
	v, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return v
}

var (
	h1 = mac("00:00:00:00:00:01")
	h2 = mac("00:00:00:00:00:02")
)

// addLink wires both directions of a physical link.
func addLink(s *Store, aDPID uint64, aPort uint32, bDPID uint64, bPort uint32) {
	s.LinkUp(Endpoint{aDPID, aPort}, Endpoint{bDPID, bPort})
	s.LinkUp(Endpoint{bDPID, bPort}, Endpoint{aDPID, aPort})
}

func TestKShortestPathsLinear(t *testing.T) {
	// h1 - S1 - S3 - S2 - h2, only one simple path.
	s := NewStore()
	s.SwitchUp(1)
	s.SwitchUp(2)
	s.SwitchUp(3)
	addLink(s, 1, 10, 3, 30)
	addLink(s, 3, 31, 2, 20)
	s.HostSeen(h1, 1, 1, nil)
	s.HostSeen(h2, 2, 2, nil)

	paths, err := s.Snapshot().KShortestPaths(h1, h2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []Path{
		{
			DPIDs: []uint64{1, 3, 2},
			Hops:  []Hop{{1, 10}, {3, 31}, {2, 2}},
		},
	}
	if diff := cmp.Diff(expected, paths); diff != "" {
		t.Fatalf("unexpected paths (-want +got):\n%s", diff)
	}
}

func TestKShortestPathsParallel(t *testing.T) {
	// Diamond: S1 reaches S2 via S3 or via S4. Both paths have the same
	// hop count, so the ascending dpid sequence decides the order.
	s := NewStore()
	for _, dpid := range []uint64{1, 2, 3, 4} {
		s.SwitchUp(dpid)
	}
	addLink(s, 1, 10, 3, 30)
	addLink(s, 3, 31, 2, 20)
	addLink(s, 1, 11, 4, 40)
	addLink(s, 4, 41, 2, 21)
	s.HostSeen(h1, 1, 1, nil)
	s.HostSeen(h2, 2, 2, nil)

	paths, err := s.Snapshot().KShortestPaths(h1, h2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []Path{
		{
			DPIDs: []uint64{1, 3, 2},
			Hops:  []Hop{{1, 10}, {3, 31}, {2, 2}},
		},
		{
			DPIDs: []uint64{1, 4, 2},
			Hops:  []Hop{{1, 11}, {4, 41}, {2, 2}},
		},
	}
	if diff := cmp.Diff(expected, paths); diff != "" {
		t.Fatalf("unexpected paths (-want +got):\n%s", diff)
	}

	// k larger than the number of simple paths returns what exists.
	paths, err = s.Snapshot().KShortestPaths(h1, h2, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %v", len(paths))
	}
}

func TestKShortestPathsUnequalLength(t *testing.T) {
	// A direct link plus a two-hop detour. Shorter path comes first and
	// the detour is the second candidate.
	s := NewStore()
	for _, dpid := range []uint64{1, 2, 5} {
		s.SwitchUp(dpid)
	}
	addLink(s, 1, 10, 2, 20)
	addLink(s, 1, 11, 5, 50)
	addLink(s, 5, 51, 2, 21)
	s.HostSeen(h1, 1, 1, nil)
	s.HostSeen(h2, 2, 2, nil)

	paths, err := s.Snapshot().KShortestPaths(h1, h2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []Path{
		{
			DPIDs: []uint64{1, 2},
			Hops:  []Hop{{1, 10}, {2, 2}},
		},
		{
			DPIDs: []uint64{1, 5, 2},
			Hops:  []Hop{{1, 11}, {5, 51}, {2, 2}},
		},
	}
	if diff := cmp.Diff(expected, paths); diff != "" {
		t.Fatalf("unexpected paths (-want +got):\n%s", diff)
	}
}

func TestKShortestPathsSameSwitch(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.HostSeen(h1, 1, 1, nil)
	s.HostSeen(h2, 1, 2, nil)

	paths, err := s.Snapshot().KShortestPaths(h1, h2, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []Path{
		{
			DPIDs: []uint64{1},
			Hops:  []Hop{{1, 2}},
		},
	}
	if diff := cmp.Diff(expected, paths); diff != "" {
		t.Fatalf("unexpected paths (-want +got):\n%s", diff)
	}
}

func TestKShortestPathsDisconnected(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.SwitchUp(2)
	s.HostSeen(h1, 1, 1, nil)
	s.HostSeen(h2, 2, 2, nil)

	paths, err := s.Snapshot().KShortestPaths(h1, h2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("expected no path, got %v", paths)
	}
}

func TestKShortestPathsUnknownHost(t *testing.T) {
	s := NewStore()
	s.SwitchUp(1)
	s.HostSeen(h1, 1, 1, nil)

	if _, err := s.Snapshot().KShortestPaths(h1, h2, 1); errors.Cause(err) != ErrUnknownHost {
		t.Fatalf("expected ErrUnknownHost, got %v", err)
	}
	if _, err := s.Snapshot().KShortestPaths(h2, h1, 1); errors.Cause(err) != ErrUnknownHost {
		t.Fatalf("expected ErrUnknownHost, got %v", err)
	}
}
