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

package routing

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/superkkt/maple/topology"

	"github.com/pkg/errors"
)

var (
	h1 = parseMAC("00:00:00:00:00:01")
	h2 = parseMAC("00:00:00:00:00:02")
)

func parseMAC(s string) net.HardwareAddr {
	v, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeDatapath struct {
	mu         sync.Mutex
	flows      map[uint64][]Flow
	installErr error
	tableMiss  int
}

func newFakeDatapath() *fakeDatapath {
	return &fakeDatapath{flows: make(map[uint64][]Flow)}
}

func (r *fakeDatapath) InstallFlow(ctx context.Context, flow Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.installErr != nil {
		return r.installErr
	}
	r.flows[flow.Cookie] = append(r.flows[flow.Cookie], flow)

	return nil
}

func (r *fakeDatapath) RemoveFlow(ctx context.Context, cookie uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, cookie)

	return nil
}

func (r *fakeDatapath) InstallTableMiss(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tableMiss++

	return nil
}

func (r *fakeDatapath) count(cookie uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.flows[cookie])
}

type fakePool struct {
	datapaths map[uint64]*fakeDatapath
}

func (r *fakePool) Datapath(dpid uint64) (Datapath, bool) {
	dp, ok := r.datapaths[dpid]
	return dp, ok
}

// linearFixture wires h1 - S1 - S3 - S2 - h2 and returns the manager, the
// per-switch fakes, and the single path between the hosts.
func linearFixture(t *testing.T) (*Manager, map[uint64]*fakeDatapath, topology.Path) {
	t.Helper()

	topo := topology.NewStore()
	topo.SwitchUp(1)
	topo.SwitchUp(2)
	topo.SwitchUp(3)
	topo.LinkUp(topology.Endpoint{DPID: 1, Port: 10}, topology.Endpoint{DPID: 3, Port: 30})
	topo.LinkUp(topology.Endpoint{DPID: 3, Port: 30}, topology.Endpoint{DPID: 1, Port: 10})
	topo.LinkUp(topology.Endpoint{DPID: 3, Port: 31}, topology.Endpoint{DPID: 2, Port: 20})
	topo.LinkUp(topology.Endpoint{DPID: 2, Port: 20}, topology.Endpoint{DPID: 3, Port: 31})
	topo.HostSeen(h1, 1, 1, nil)
	topo.HostSeen(h2, 2, 2, nil)

	pool := &fakePool{datapaths: map[uint64]*fakeDatapath{
		1: newFakeDatapath(),
		2: newFakeDatapath(),
		3: newFakeDatapath(),
	}}
	manager := NewManager(pool, topo, DefaultConfig())

	paths, err := topo.Snapshot().KShortestPaths(h1, h2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected one path, got %v", len(paths))
	}

	return manager, pool.datapaths, paths[0]
}

func TestInstallRouteBidirectional(t *testing.T) {
	manager, datapaths, path := linearFixture(t)

	flowID, err := manager.InstallRoute(context.Background(), h1, h2, path, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flowID != FlowID(RouteCookie(h1, h2, 0)) {
		t.Fatalf("unexpected flow ID: %v", flowID)
	}

	// Every switch on the path carries one rule per direction.
	cookie := RouteCookie(h1, h2, 0)
	for dpid, dp := range datapaths {
		if n := dp.count(cookie); n != 2 {
			t.Fatalf("dpid=%v: expected 2 rules, got %v", dpid, n)
		}
	}

	// The forward egress rule of the last switch points at the host port,
	// and the reverse one at the inter-switch link.
	for _, flow := range datapaths[2].flows[cookie] {
		if flow.DstMAC.String() == h2.String() && flow.OutPort != 2 {
			t.Fatalf("forward rule should egress to the host port, got %v", flow.OutPort)
		}
		if flow.DstMAC.String() == h1.String() && flow.OutPort != 20 {
			t.Fatalf("reverse rule should egress to the link port, got %v", flow.OutPort)
		}
	}
}

func TestInstallRouteIdempotent(t *testing.T) {
	manager, datapaths, path := linearFixture(t)

	first, err := manager.InstallRoute(context.Background(), h1, h2, path, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := manager.InstallRoute(context.Background(), h1, h2, path, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same flow ID, got %v and %v", first, second)
	}

	cookie := RouteCookie(h1, h2, 0)
	for dpid, dp := range datapaths {
		if n := dp.count(cookie); n != 2 {
			t.Fatalf("dpid=%v: re-install duplicated rules: %v", dpid, n)
		}
	}
}

func TestInstallRouteConflict(t *testing.T) {
	manager, _, path := linearFixture(t)

	if _, err := manager.InstallRoute(context.Background(), h1, h2, path, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same cookie tuple, different path contents.
	bogus := topology.Path{
		DPIDs: []uint64{1, 2},
		Hops:  []topology.Hop{{DPID: 1, OutPort: 99}, {DPID: 2, OutPort: 2}},
	}
	_, err := manager.InstallRoute(context.Background(), h1, h2, bogus, 0)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestInstallRouteRollback(t *testing.T) {
	manager, datapaths, path := linearFixture(t)

	// The middle switch of the forward leg rejects its flow-mod.
	datapaths[3].installErr = errors.New("switch said no")

	_, err := manager.InstallRoute(context.Background(), h1, h2, path, 0)
	var partial *PartialInstallError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialInstallError, got %v", err)
	}
	if partial.DPID != 3 {
		t.Fatalf("expected failure on dpid=3, got %v", partial.DPID)
	}

	cookie := RouteCookie(h1, h2, 0)
	for dpid, dp := range datapaths {
		if n := dp.count(cookie); n != 0 {
			t.Fatalf("dpid=%v: expected rollback to remove all rules, got %v", dpid, n)
		}
	}

	// The failed install must not leave a bookkeeping record behind.
	if routes := manager.Routes(); len(routes) != 0 {
		t.Fatalf("expected no active route, got %v", routes)
	}
}

func TestInstallRouteFirstHopFailure(t *testing.T) {
	manager, datapaths, path := linearFixture(t)

	datapaths[1].installErr = context.DeadlineExceeded

	_, err := manager.InstallRoute(context.Background(), h1, h2, path, 0)
	if err == nil {
		t.Fatal("expected an error")
	}
	var partial *PartialInstallError
	if errors.As(err, &partial) {
		t.Fatal("nothing was installed, so the failure must not be partial")
	}
	if errors.Cause(err) != context.DeadlineExceeded {
		t.Fatalf("expected the switch timeout as cause, got %v", errors.Cause(err))
	}
}

func TestDeleteRouteIdempotent(t *testing.T) {
	manager, datapaths, path := linearFixture(t)

	flowID, err := manager.InstallRoute(context.Background(), h1, h2, path, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := manager.DeleteRoute(context.Background(), flowID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cookie := RouteCookie(h1, h2, 0)
	for dpid, dp := range datapaths {
		if n := dp.count(cookie); n != 0 {
			t.Fatalf("dpid=%v: expected no rule after delete, got %v", dpid, n)
		}
	}

	// Deleting again, or deleting something never installed, succeeds.
	if err := manager.DeleteRoute(context.Background(), flowID); err != nil {
		t.Fatalf("repeated delete should succeed: %v", err)
	}
	if err := manager.DeleteRoute(context.Background(), FlowID(12345)); err != nil {
		t.Fatalf("deleting an unknown flow should succeed: %v", err)
	}

	if err := manager.DeleteRoute(context.Background(), "not-a-flow-id"); errors.Cause(err) != ErrInvalidFlowID {
		t.Fatalf("expected ErrInvalidFlowID, got %v", err)
	}
}

func TestSweepExpiredRoutes(t *testing.T) {
	manager, _, path := linearFixture(t)

	flowID, err := manager.InstallRoute(context.Background(), h1, h2, path, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cookie := RouteCookie(h1, h2, 0)

	// A fresh record survives the sweep.
	manager.sweep()
	if len(manager.Routes()) != 1 {
		t.Fatal("unexpired route should survive the sweep")
	}

	// Backdate the install past the hard timeout; the switches have
	// certainly expired the rules by now.
	manager.mu.Lock()
	manager.routes[cookie].Installed = time.Now().Add(-time.Duration(manager.config.HardTimeout+1) * time.Second)
	manager.mu.Unlock()

	manager.sweep()
	if v := manager.Routes(); len(v) != 0 {
		t.Fatalf("expected no route after the sweep, got %v", v)
	}
	if !manager.retired.Contains(cookie) {
		t.Fatal("swept cookie should land in the retired cache")
	}
	// Deleting the swept route stays a silent no-op.
	if err := manager.DeleteRoute(context.Background(), flowID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkOrphaned(t *testing.T) {
	manager, _, path := linearFixture(t)

	if _, err := manager.InstallRoute(context.Background(), h1, h2, path, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manager.MarkOrphaned(3)

	routes := manager.Routes()
	if len(routes) != 1 {
		t.Fatalf("expected one route, got %v", len(routes))
	}
	if !routes[0].Orphaned {
		t.Fatal("route traversing the dead switch should be orphaned")
	}
}

func TestInstallTableMiss(t *testing.T) {
	manager, datapaths, _ := linearFixture(t)

	if err := manager.InstallTableMiss(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if datapaths[1].tableMiss != 1 {
		t.Fatalf("expected one table-miss install, got %v", datapaths[1].tableMiss)
	}
	if err := manager.InstallTableMiss(context.Background(), 9); errors.Cause(err) != ErrUnknownSwitch {
		t.Fatalf("expected ErrUnknownSwitch, got %v", err)
	}
}

func TestRouteCookieDeterminism(t *testing.T) {
	if RouteCookie(h1, h2, 0) != RouteCookie(h1, h2, 0) {
		t.Fatal("cookie must be deterministic")
	}
	if RouteCookie(h1, h2, 0) == RouteCookie(h1, h2, 1) {
		t.Fatal("path ID must vary the cookie")
	}
	if RouteCookie(h1, h2, 0) == RouteCookie(h2, h1, 0) {
		t.Fatal("direction must vary the cookie")
	}
}
