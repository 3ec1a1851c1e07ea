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

package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/superkkt/maple/routing"
	"github.com/superkkt/maple/telemetry"
	"github.com/superkkt/maple/topology"

	"github.com/google/go-cmp/cmp"
)

type fakeDatapath struct {
	mu         sync.Mutex
	installed  int
	installErr error
}

func (r *fakeDatapath) InstallFlow(ctx context.Context, flow routing.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.installErr != nil {
		return r.installErr
	}
	r.installed++
	return nil
}

func (r *fakeDatapath) RemoveFlow(ctx context.Context, cookie uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed = 0
	return nil
}

func (r *fakeDatapath) InstallTableMiss(ctx context.Context) error {
	return nil
}

type fakePool struct {
	datapaths map[uint64]*fakeDatapath
}

func (r *fakePool) Datapath(dpid uint64) (routing.Datapath, bool) {
	dp, ok := r.datapaths[dpid]
	return dp, ok
}

func (r *fakePool) Pollers() map[uint64]telemetry.Poller {
	return nil
}

// fixture builds a gateway over a diamond topology: S1 reaches S2 via S3
// (path_id 0) or S4 (path_id 1), hosts h1 at S1:1 and h2 at S2:2.
type fixture struct {
	handler http.Handler
	topo    *topology.Store
	pool    *fakePool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	topo := topology.NewStore()
	pool := &fakePool{datapaths: make(map[uint64]*fakeDatapath)}
	for _, dpid := range []uint64{1, 2, 3, 4} {
		topo.SwitchUp(dpid)
		pool.datapaths[dpid] = &fakeDatapath{}
	}
	both := func(aDPID uint64, aPort uint32, bDPID uint64, bPort uint32) {
		topo.LinkUp(topology.Endpoint{DPID: aDPID, Port: aPort}, topology.Endpoint{DPID: bDPID, Port: bPort})
		topo.LinkUp(topology.Endpoint{DPID: bDPID, Port: bPort}, topology.Endpoint{DPID: aDPID, Port: aPort})
	}
	both(1, 10, 3, 30)
	both(3, 31, 2, 20)
	both(1, 11, 4, 40)
	both(4, 41, 2, 21)

	h1, _ := net.ParseMAC("00:00:00:00:00:01")
	h2, _ := net.ParseMAC("00:00:00:00:00:02")
	topo.HostSeen(h1, 1, 1, nil)
	topo.HostSeen(h2, 2, 2, nil)

	server := &Server{
		Topology: topo,
		Routes:   routing.NewManager(pool, topo, routing.DefaultConfig()),
		Stats:    telemetry.NewCollector(pool, telemetry.DefaultConfig()),
	}
	handler, err := server.Handler()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return &fixture{handler: handler, topo: topo, pool: pool}
}

func (r *fixture) do(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)

	payload := make(map[string]interface{})
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("undecodable response body %q: %v", rec.Body.String(), err)
		}
	}

	return rec.Code, payload
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/api/v1/health", "")
	if code != http.StatusOK {
		t.Fatalf("unexpected status: %v", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["last_stats_ts"] != float64(0) {
		t.Fatalf("expected zero last_stats_ts before any poll, got %v", body["last_stats_ts"])
	}
}

func TestListNodes(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/api/v1/topology/nodes", "")
	if code != http.StatusOK {
		t.Fatalf("unexpected status: %v", code)
	}
	expected := []interface{}{float64(1), float64(2), float64(3), float64(4)}
	if diff := cmp.Diff(expected, body["nodes"]); diff != "" {
		t.Fatalf("unexpected nodes (-want +got):\n%s", diff)
	}
}

func TestListLinksAndHosts(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/api/v1/topology/links", "")
	if code != http.StatusOK {
		t.Fatalf("unexpected status: %v", code)
	}
	if n := len(body["links"].([]interface{})); n != 8 {
		t.Fatalf("expected 8 directed links, got %v", n)
	}

	code, body = f.do(t, "GET", "/api/v1/hosts", "")
	if code != http.StatusOK {
		t.Fatalf("unexpected status: %v", code)
	}
	hosts := body["hosts"].([]interface{})
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %v", len(hosts))
	}
	first := hosts[0].(map[string]interface{})
	if first["mac"] != "00:00:00:00:00:01" || first["dpid"] != float64(1) {
		t.Fatalf("unexpected host payload: %v", first)
	}
}

func TestListPaths(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/api/v1/paths?src_mac=00:00:00:00:00:01&dst_mac=00:00:00:00:00:02&k=2", "")
	if code != http.StatusOK {
		t.Fatalf("unexpected status: %v", code)
	}
	paths := body["paths"].([]interface{})
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %v", len(paths))
	}
	first := paths[0].(map[string]interface{})
	if first["path_id"] != float64(0) {
		t.Fatalf("unexpected path_id: %v", first["path_id"])
	}
	expected := []interface{}{float64(1), float64(3), float64(2)}
	if diff := cmp.Diff(expected, first["dpids"]); diff != "" {
		t.Fatalf("unexpected first path (-want +got):\n%s", diff)
	}
}

func TestListPathsErrors(t *testing.T) {
	f := newFixture(t)

	if code, _ := f.do(t, "GET", "/api/v1/paths?src_mac=bogus&dst_mac=00:00:00:00:00:02", ""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed MAC, got %v", code)
	}
	if code, _ := f.do(t, "GET", "/api/v1/paths?src_mac=00:00:00:00:00:01&dst_mac=00:00:00:00:00:02&k=0", ""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for k=0, got %v", code)
	}
	if code, _ := f.do(t, "GET", "/api/v1/paths?src_mac=00:00:00:00:00:99&dst_mac=00:00:00:00:00:02", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown host, got %v", code)
	}
}

func TestInstallRouteAlongFirstPath(t *testing.T) {
	f := newFixture(t)

	body := `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02","path_id":0}`
	code, payload := f.do(t, "POST", "/api/v1/actions/route", body)
	if code != http.StatusOK {
		t.Fatalf("unexpected status: %v (%v)", code, payload)
	}
	flowID, ok := payload["flow_id"].(string)
	if !ok || len(flowID) != 16 {
		t.Fatalf("unexpected flow_id: %v", payload["flow_id"])
	}

	// path_id 0 goes through S3; S4 must stay untouched.
	for _, dpid := range []uint64{1, 2, 3} {
		if f.pool.datapaths[dpid].installed == 0 {
			t.Fatalf("expected rules on dpid=%v", dpid)
		}
	}
	if f.pool.datapaths[4].installed != 0 {
		t.Fatal("path_id 0 must not install rules on the alternate path")
	}

	// Removing it twice is fine.
	for i := 0; i < 2; i++ {
		if code, _ := f.do(t, "DELETE", "/api/v1/actions/route/"+flowID, ""); code != http.StatusOK {
			t.Fatalf("unexpected delete status: %v", code)
		}
	}
}

func TestInstallRouteErrors(t *testing.T) {
	f := newFixture(t)

	// Unknown path index.
	body := `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02","path_id":5}`
	if code, _ := f.do(t, "POST", "/api/v1/actions/route", body); code != http.StatusNotFound {
		t.Fatalf("expected 404 for a nonexistent path_id, got %v", code)
	}

	// Neither path_id nor hops.
	body = `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02"}`
	if code, _ := f.do(t, "POST", "/api/v1/actions/route", body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without path_id or hops, got %v", code)
	}

	// Explicit hops are validated against the live graph.
	hops := `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02",` +
		`"hops":[{"dpid":1,"out_port":11},{"dpid":4,"out_port":41},{"dpid":2,"out_port":2}]}`
	if code, _ := f.do(t, "POST", "/api/v1/actions/route", hops); code != http.StatusOK {
		t.Fatal("explicit-hops install failed")
	}
	bogus := `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02",` +
		`"hops":[{"dpid":1,"out_port":10},{"dpid":2,"out_port":2}]}`
	if code, _ := f.do(t, "POST", "/api/v1/actions/route", bogus); code != http.StatusNotFound {
		t.Fatal("hops without a backing link must be rejected")
	}

	// A malformed hop list is the caller's mistake, not missing topology.
	looping := `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02",` +
		`"hops":[{"dpid":1,"out_port":10},{"dpid":3,"out_port":30},{"dpid":1,"out_port":10}]}`
	if code, _ := f.do(t, "POST", "/api/v1/actions/route", looping); code != http.StatusBadRequest {
		t.Fatal("a repeated switch in the hops must be rejected as invalid")
	}
	wrongPort := `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02",` +
		`"hops":[{"dpid":1,"out_port":99},{"dpid":3,"out_port":31},{"dpid":2,"out_port":2}]}`
	if code, _ := f.do(t, "POST", "/api/v1/actions/route", wrongPort); code != http.StatusBadRequest {
		t.Fatal("an egress port off the link must be rejected as invalid")
	}
}

func TestInstallRouteConflictAfterTopologyChange(t *testing.T) {
	f := newFixture(t)

	body := `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02","path_id":0}`
	if code, _ := f.do(t, "POST", "/api/v1/actions/route", body); code != http.StatusOK {
		t.Fatal("install failed")
	}

	// The link S1-S3 dies, so path_id 0 now resolves through S4. The
	// cookie is unchanged but the path is not: that is a conflict.
	f.topo.LinkDown(topology.Endpoint{DPID: 1, Port: 10}, topology.Endpoint{DPID: 3, Port: 30})
	f.topo.LinkDown(topology.Endpoint{DPID: 3, Port: 30}, topology.Endpoint{DPID: 1, Port: 10})

	if code, _ := f.do(t, "POST", "/api/v1/actions/route", body); code != http.StatusConflict {
		t.Fatal("expected 409 when the same path_id resolves to a different path")
	}
}

func TestInstallRoutePartialFailure(t *testing.T) {
	f := newFixture(t)
	f.pool.datapaths[3].installErr = context.Canceled

	body := `{"src_mac":"00:00:00:00:00:01","dst_mac":"00:00:00:00:00:02","path_id":0}`
	code, payload := f.do(t, "POST", "/api/v1/actions/route", body)
	if code != http.StatusBadGateway {
		t.Fatalf("expected 502 for a mid-route failure, got %v (%v)", code, payload)
	}
	errBody := payload["error"].(map[string]interface{})
	if errBody["code"] != codePartialInstall {
		t.Fatalf("unexpected error code: %v", errBody["code"])
	}
	if errBody["dpid"] != float64(3) {
		t.Fatalf("expected the failed hop named, got %v", errBody["dpid"])
	}
}

func TestDeleteRouteInvalidID(t *testing.T) {
	f := newFixture(t)

	if code, _ := f.do(t, "DELETE", "/api/v1/actions/route/garbage", ""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid flow ID, got %v", code)
	}
}

func TestLinkMetricsNullBeforeSamples(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/api/v1/metrics/links", "")
	if code != http.StatusOK {
		t.Fatalf("unexpected status: %v", code)
	}
	links := body["links"].([]interface{})
	if len(links) != 8 {
		t.Fatalf("expected 8 links, got %v", len(links))
	}
	if links[0].(map[string]interface{})["utilization"] != nil {
		t.Fatal("utilization must be null before two samples exist")
	}
}

func TestOpenAPISchemaServed(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/openapi.yaml", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %v", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "openapi:") {
		t.Fatal("schema body looks wrong")
	}
}
