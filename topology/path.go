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

	"github.com/pkg/errors"
)

var (
	// ErrUnknownHost means the host has never been observed by the
	// controller.
	ErrUnknownHost = errors.New("unknown host")
)

// Hop is the egress instruction at one switch on a path: frames for the
// path leave the switch through OutPort.
type Hop struct {
	DPID    uint64
	OutPort uint32
}

// Path is a loop-free switch-level route. DPIDs is the sequence of switch
// identifiers, and Hops carries one egress port per switch, the last hop
// being the destination host's attachment port.
type Path struct {
	DPIDs []uint64
	Hops  []Hop
}

// KShortestPaths computes up to k loop-free paths between two learned
// hosts, ordered by hop count and then by the ascending datapath ID
// sequence so that the result is deterministic for a given snapshot. A
// disconnected pair yields an empty slice, not an error.
func (r *Snapshot) KShortestPaths(src, dst net.HardwareAddr, k int) ([]Path, error) {
	if k < 1 {
		return nil, errors.New("k must be positive")
	}
	from, ok := r.Host(src)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHost, "src=%v", src)
	}
	to, ok := r.Host(dst)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHost, "dst=%v", dst)
	}

	if from.DPID == to.DPID {
		// Both hosts hang off the same switch. The only sensible path is
		// the direct one.
		return []Path{{
			DPIDs: []uint64{from.DPID},
			Hops:  []Hop{{DPID: to.DPID, OutPort: to.Port}},
		}}, nil
	}

	routes := r.yen(from.DPID, to.DPID, k)
	v := make([]Path, 0, len(routes))
	for _, dpids := range routes {
		path, ok := r.materialize(dpids, to.Port)
		if !ok {
			continue
		}
		v = append(v, path)
	}

	return v, nil
}

// materialize resolves a node sequence into egress ports. It fails when a
// consecutive pair has no link, which cannot happen for routes computed
// from the same snapshot.
func (r *Snapshot) materialize(dpids []uint64, hostPort uint32) (Path, bool) {
	hops := make([]Hop, 0, len(dpids))
	for i := 0; i < len(dpids)-1; i++ {
		link, ok := r.Link(dpids[i], dpids[i+1])
		if !ok {
			return Path{}, false
		}
		hops = append(hops, Hop{DPID: dpids[i], OutPort: link.SrcPort})
	}
	hops = append(hops, Hop{DPID: dpids[len(dpids)-1], OutPort: hostPort})

	return Path{DPIDs: dpids, Hops: hops}, true
}

type nodePair struct {
	src, dst uint64
}

// yen finds up to k shortest loop-free node sequences from src to dst,
// deviating from previously accepted routes one spur node at a time.
func (r *Snapshot) yen(src, dst uint64, k int) [][]uint64 {
	first := r.shortestPath(src, dst, nil, nil)
	if first == nil {
		return nil
	}

	accepted := [][]uint64{first}
	var candidates [][]uint64

	for len(accepted) < k {
		prev := accepted[len(accepted)-1]
		for i := 0; i < len(prev)-1; i++ {
			spur := prev[i]
			root := prev[:i+1]

			// Forbid the edges that previously accepted routes with the
			// same prefix take out of the spur node, forcing a deviation.
			bannedEdges := make(map[nodePair]bool)
			for _, route := range accepted {
				if len(route) > i && equalNodes(route[:i+1], root) {
					bannedEdges[nodePair{route[i], route[i+1]}] = true
					bannedEdges[nodePair{route[i+1], route[i]}] = true
				}
			}
			bannedNodes := make(map[uint64]bool)
			for _, dpid := range root[:len(root)-1] {
				bannedNodes[dpid] = true
			}

			tail := r.shortestPath(spur, dst, bannedEdges, bannedNodes)
			if tail == nil {
				continue
			}
			route := append(append([]uint64{}, root[:len(root)-1]...), tail...)
			if !containsRoute(accepted, route) && !containsRoute(candidates, route) {
				candidates = append(candidates, route)
			}
		}
		if len(candidates) == 0 {
			break
		}

		sort.Slice(candidates, func(i, j int) bool {
			return lessRoute(candidates[i], candidates[j])
		})
		accepted = append(accepted, candidates[0])
		candidates = candidates[1:]
	}

	return accepted
}

// shortestPath returns the hop-count shortest node sequence from src to
// dst, breaking ties toward the lexicographically smallest datapath ID
// sequence. It runs a reverse BFS from dst for distances and then walks
// forward greedily picking the smallest viable neighbor.
func (r *Snapshot) shortestPath(src, dst uint64, bannedEdges map[nodePair]bool, bannedNodes map[uint64]bool) []uint64 {
	if bannedNodes[src] || bannedNodes[dst] {
		return nil
	}

	dist := map[uint64]int{dst: 0}
	queue := []uint64{dst}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, link := range r.adjacent[cur] {
			// Links are symmetric in practice, so the reverse BFS follows
			// forward adjacency of the current node.
			next := link.DstDPID
			if bannedNodes[next] || bannedEdges[nodePair{next, cur}] {
				continue
			}
			if _, ok := dist[next]; ok {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	if _, ok := dist[src]; !ok {
		return nil
	}

	route := []uint64{src}
	cur := src
	for cur != dst {
		var next uint64
		found := false
		for _, link := range r.adjacent[cur] {
			n := link.DstDPID
			if bannedNodes[n] || bannedEdges[nodePair{cur, n}] {
				continue
			}
			d, ok := dist[n]
			if !ok || d != dist[cur]-1 {
				continue
			}
			if !found || n < next {
				next = n
				found = true
			}
		}
		if !found {
			// Asymmetric adjacency; give up rather than loop.
			return nil
		}
		route = append(route, next)
		cur = next
	}

	return route
}

func equalNodes(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lessRoute(a, b []uint64) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func containsRoute(routes [][]uint64, route []uint64) bool {
	for _, v := range routes {
		if equalNodes(v, route) {
			return true
		}
	}
	return false
}
