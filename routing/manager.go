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

// Package routing turns a selected path into per-switch forwarding rules
// and owns the bookkeeping of every route this controller installed.
package routing

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/superkkt/maple/topology"

	lru "github.com/hashicorp/golang-lru"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("routing")
)

const (
	// Number of recently removed routes remembered so that duplicate
	// delete requests can be answered without touching any switch.
	retiredCacheSize = 1024
)

// Flow is one forwarding rule: frames matching the MAC pair leave the
// switch through OutPort until a timeout expires the rule.
type Flow struct {
	Cookie      uint64
	SrcMAC      net.HardwareAddr
	DstMAC      net.HardwareAddr
	OutPort     uint32
	Priority    uint16
	IdleTimeout uint16
	HardTimeout uint16
}

// Datapath is the slice of a connected switch that this package needs.
type Datapath interface {
	InstallFlow(ctx context.Context, flow Flow) error
	// RemoveFlow deletes every rule tagged with the cookie. Removing a
	// rule that already expired is not an error.
	RemoveFlow(ctx context.Context, cookie uint64) error
	// InstallTableMiss installs the catch-all lowest-priority rule that
	// punts unmatched traffic to the controller.
	InstallTableMiss(ctx context.Context) error
}

// Pool resolves a datapath ID to its live connection.
type Pool interface {
	Datapath(dpid uint64) (Datapath, bool)
}

// Config is the rule shape applied to every installed route.
type Config struct {
	Priority    uint16
	IdleTimeout uint16
	HardTimeout uint16
	// HopTimeout bounds each individual switch command.
	HopTimeout time.Duration
	// GCInterval is how often expired bookkeeping entries are swept.
	GCInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Priority:    100,
		IdleTimeout: 60,
		HardTimeout: 300,
		HopTimeout:  5 * time.Second,
		GCInterval:  time.Minute,
	}
}

// Route is the bookkeeping record of one installed route.
type Route struct {
	FlowID    string
	Cookie    uint64
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	PathID    int
	DPIDs     []uint64
	Installed time.Time
	// Orphaned means at least one switch of the route disconnected after
	// the install. The rules died with the switch; only the record lingers
	// until the sweep.
	Orphaned bool
}

type Manager struct {
	pool   Pool
	topo   *topology.Store
	config Config

	mu     sync.Mutex
	routes map[uint64]*Route
	// Cookies of recently removed routes. Lets DeleteRoute stay quiet and
	// idempotent when a client retries a teardown.
	retired *lru.Cache
}

func NewManager(pool Pool, topo *topology.Store, config Config) *Manager {
	if pool == nil {
		panic("pool is nil")
	}
	if topo == nil {
		panic("topo is nil")
	}
	retired, err := lru.New(retiredCacheSize)
	if err != nil {
		panic(fmt.Sprintf("LRU cache: %v", err))
	}

	return &Manager{
		pool:    pool,
		topo:    topo,
		config:  config,
		routes:  make(map[uint64]*Route),
		retired: retired,
	}
}

// RouteCookie derives the deterministic cookie of a (src, dst, path ID)
// tuple. Re-issuing the same route always lands on the same cookie, which
// is what makes installs idempotent and deletes targetable.
func RouteCookie(src, dst net.HardwareAddr, pathID int) uint64 {
	sum := md5.Sum([]byte(fmt.Sprintf("%v->%v/%v", src, dst, pathID)))
	return binary.BigEndian.Uint64(sum[:8])
}

// FlowID renders a cookie as the external flow identifier.
func FlowID(cookie uint64) string {
	return fmt.Sprintf("%016x", cookie)
}

type hopRule struct {
	dpid uint64
	flow Flow
}

// InstallRoute installs forwarding rules along the path in both
// directions and returns the flow identifier. A repeated call for the same
// (src, dst, path ID) with an identical path is a no-op returning the same
// identifier; the same cookie with divergent parameters is a conflict.
//
// When a switch in the middle fails, the hops already installed are rolled
// back and a PartialInstallError names the failed switch. A failure on the
// very first hop leaves nothing behind and propagates as-is, so a timeout
// there surfaces as a timeout, not as a partial install.
func (r *Manager) InstallRoute(ctx context.Context, src, dst net.HardwareAddr, path topology.Path, pathID int) (flowID string, err error) {
	if len(path.DPIDs) == 0 || len(path.Hops) != len(path.DPIDs) {
		return "", errors.New("malformed path")
	}

	cookie := RouteCookie(src, dst, pathID)
	flowID = FlowID(cookie)

	route := &Route{
		FlowID:    flowID,
		Cookie:    cookie,
		SrcMAC:    src,
		DstMAC:    dst,
		PathID:    pathID,
		DPIDs:     append([]uint64{}, path.DPIDs...),
		Installed: time.Now(),
	}

	r.mu.Lock()
	if prev, ok := r.routes[cookie]; ok {
		r.mu.Unlock()
		if !sameRoute(prev, route) {
			return "", &ConflictError{FlowID: flowID}
		}
		// The switches refresh their idle timers as traffic flows; there
		// is nothing to re-install.
		logger.Debugf("route already installed: flow ID=%v", flowID)
		return flowID, nil
	}
	// Reserve the cookie before any switch I/O so a concurrent identical
	// request does not double-install.
	r.routes[cookie] = route
	r.mu.Unlock()

	defer func() {
		if err != nil {
			r.mu.Lock()
			delete(r.routes, cookie)
			r.mu.Unlock()
		}
	}()

	rules, err := r.buildRules(cookie, src, dst, path)
	if err != nil {
		return "", err
	}

	installed := 0
	for _, rule := range rules {
		if err := r.installRule(ctx, rule); err != nil {
			if installed == 0 {
				return "", errors.Wrapf(err, "installing flow on dpid=%v", rule.dpid)
			}
			rolledBack := r.rollback(rules[:installed], cookie)
			return "", &PartialInstallError{DPID: rule.dpid, RolledBack: rolledBack, Err: err}
		}
		installed++
	}
	logger.Infof("route installed: flow ID=%v, src=%v, dst=%v, path=%v", flowID, src, dst, path.DPIDs)

	return flowID, nil
}

// buildRules produces the forward rules straight from the path's hops and
// the reverse rules from the reversed switch sequence resolved against the
// current topology snapshot.
func (r *Manager) buildRules(cookie uint64, src, dst net.HardwareAddr, path topology.Path) ([]hopRule, error) {
	rules := make([]hopRule, 0, 2*len(path.Hops))
	for _, hop := range path.Hops {
		rules = append(rules, hopRule{
			dpid: hop.DPID,
			flow: r.flow(cookie, src, dst, hop.OutPort),
		})
	}

	reverse, err := r.reverseHops(path, src)
	if err != nil {
		return nil, err
	}
	for _, hop := range reverse {
		rules = append(rules, hopRule{
			dpid: hop.DPID,
			flow: r.flow(cookie, dst, src, hop.OutPort),
		})
	}

	return rules, nil
}

func (r *Manager) flow(cookie uint64, src, dst net.HardwareAddr, outPort uint32) Flow {
	return Flow{
		Cookie:      cookie,
		SrcMAC:      src,
		DstMAC:      dst,
		OutPort:     outPort,
		Priority:    r.config.Priority,
		IdleTimeout: r.config.IdleTimeout,
		HardTimeout: r.config.HardTimeout,
	}
}

// reverseHops walks the path backwards, resolving each egress port from
// the live snapshot. The topology can have changed since the path was
// computed, in which case the install fails as stale instead of building a
// one-way route.
func (r *Manager) reverseHops(path topology.Path, src net.HardwareAddr) ([]topology.Hop, error) {
	snapshot := r.topo.Snapshot()
	from, ok := snapshot.Host(src)
	if !ok {
		return nil, errors.Wrapf(ErrStalePath, "source host %v vanished", src)
	}

	dpids := path.DPIDs
	hops := make([]topology.Hop, 0, len(dpids))
	for i := len(dpids) - 1; i > 0; i-- {
		link, ok := snapshot.Link(dpids[i], dpids[i-1])
		if !ok {
			return nil, errors.Wrapf(ErrStalePath, "no reverse link %v -> %v", dpids[i], dpids[i-1])
		}
		hops = append(hops, topology.Hop{DPID: dpids[i], OutPort: link.SrcPort})
	}
	hops = append(hops, topology.Hop{DPID: from.DPID, OutPort: from.Port})

	return hops, nil
}

func (r *Manager) installRule(ctx context.Context, rule hopRule) error {
	dp, ok := r.pool.Datapath(rule.dpid)
	if !ok {
		return errors.Wrapf(ErrUnknownSwitch, "dpid=%v", rule.dpid)
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.HopTimeout)
	defer cancel()

	return dp.InstallFlow(ctx, rule.flow)
}

// rollback removes the rules installed before a mid-route failure. It is
// best effort: a switch that refuses the delete will expire the rule by
// idle timeout anyway.
func (r *Manager) rollback(rules []hopRule, cookie uint64) int {
	removed := make(map[uint64]bool)
	for _, rule := range rules {
		if removed[rule.dpid] {
			continue
		}
		removed[rule.dpid] = true

		dp, ok := r.pool.Datapath(rule.dpid)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.config.HopTimeout)
		if err := dp.RemoveFlow(ctx, cookie); err != nil {
			logger.Errorf("failed to roll back flow: dpid=%v, cookie=%#x: %v", rule.dpid, cookie, err)
		}
		cancel()
	}

	return len(removed)
}

// DeleteRoute tears down a route. Deleting an unknown or already removed
// flow identifier succeeds silently; teardown has to be safe to retry.
func (r *Manager) DeleteRoute(ctx context.Context, flowID string) error {
	cookie, err := parseFlowID(flowID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	route, ok := r.routes[cookie]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.routes, cookie)
	r.retired.Add(cookie, flowID)
	r.mu.Unlock()

	for _, dpid := range route.DPIDs {
		dp, ok := r.pool.Datapath(dpid)
		if !ok {
			// The switch is gone and its rules with it.
			continue
		}
		ctx, cancel := context.WithTimeout(ctx, r.config.HopTimeout)
		if err := dp.RemoveFlow(ctx, cookie); err != nil {
			logger.Errorf("failed to remove flow: dpid=%v, cookie=%#x: %v", dpid, cookie, err)
		}
		cancel()
	}
	logger.Infof("route removed: flow ID=%v", flowID)

	return nil
}

func parseFlowID(flowID string) (uint64, error) {
	v, err := hex.DecodeString(flowID)
	if err != nil || len(v) != 8 {
		return 0, errors.Wrapf(ErrInvalidFlowID, "%q", flowID)
	}
	return binary.BigEndian.Uint64(v), nil
}

// Routes returns the bookkeeping records of all active routes sorted by
// flow identifier.
func (r *Manager) Routes() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		clone := *route
		clone.DPIDs = append([]uint64{}, route.DPIDs...)
		v = append(v, clone)
	}
	sort.Slice(v, func(i, j int) bool { return v[i].FlowID < v[j].FlowID })

	return v
}

// MarkOrphaned flags every route that traverses a switch which just
// disconnected. The rules are not deleted: the switch is gone, and the
// surviving switches expire their rules by timeout. The sweep reclaims the
// records.
func (r *Manager) MarkOrphaned(dpid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, route := range r.routes {
		for _, v := range route.DPIDs {
			if v == dpid {
				route.Orphaned = true
				logger.Warningf("route orphaned by switch disconnect: flow ID=%v, dpid=%v", route.FlowID, dpid)
				break
			}
		}
	}
}

// InstallTableMiss installs the default table-miss rule on a switch. The
// event handler calls this when a switch becomes active.
func (r *Manager) InstallTableMiss(ctx context.Context, dpid uint64) error {
	dp, ok := r.pool.Datapath(dpid)
	if !ok {
		return errors.Wrapf(ErrUnknownSwitch, "dpid=%v", dpid)
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.HopTimeout)
	defer cancel()

	return dp.InstallTableMiss(ctx)
}

// Run sweeps bookkeeping entries whose rules the switches have certainly
// expired. It blocks until the context is canceled.
func (r *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Manager) sweep() {
	deadline := time.Duration(r.config.HardTimeout) * time.Second

	r.mu.Lock()
	defer r.mu.Unlock()

	for cookie, route := range r.routes {
		if time.Since(route.Installed) < deadline {
			continue
		}
		delete(r.routes, cookie)
		r.retired.Add(cookie, route.FlowID)
		logger.Debugf("swept expired route: flow ID=%v", route.FlowID)
	}
}

func sameRoute(a, b *Route) bool {
	if a.PathID != b.PathID || len(a.DPIDs) != len(b.DPIDs) {
		return false
	}
	if a.SrcMAC.String() != b.SrcMAC.String() || a.DstMAC.String() != b.DstMAC.String() {
		return false
	}
	for i := range a.DPIDs {
		if a.DPIDs[i] != b.DPIDs[i] {
			return false
		}
	}
	return true
}
