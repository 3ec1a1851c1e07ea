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

// Package network accepts switch connections and drives each one through
// its lifecycle: handshake, discovery, packet-in handling, teardown. It
// feeds the topology store with what it learns and hands the other
// components a per-switch command surface.
package network

import (
	"context"
	"net"
	"sync"

	"github.com/superkkt/maple/routing"
	"github.com/superkkt/maple/telemetry"
	"github.com/superkkt/maple/topology"

	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("network")
)

// Controller owns the pool of connected switches. It implements
// routing.Pool and telemetry.Pool over that pool.
type Controller struct {
	topo      *topology.Store
	routes    *routing.Manager
	collector *telemetry.Collector

	mu      sync.RWMutex
	devices map[uint64]*Device
}

func NewController(topo *topology.Store) *Controller {
	if topo == nil {
		panic("topo is nil")
	}

	return &Controller{
		topo:    topo,
		devices: make(map[uint64]*Device),
	}
}

// Bind wires the flow manager and the telemetry collector in after
// construction. Both take the controller as their switch pool, so neither
// can exist before it; call Bind exactly once before AddConnection.
func (r *Controller) Bind(routes *routing.Manager, collector *telemetry.Collector) {
	if routes == nil {
		panic("routes is nil")
	}
	if collector == nil {
		panic("collector is nil")
	}
	if r.routes != nil || r.collector != nil {
		panic("already bound")
	}
	r.routes = routes
	r.collector = collector
}

// AddConnection runs a new switch connection until it dies. It blocks, so
// callers run it in its own goroutine per connection.
func (r *Controller) AddConnection(ctx context.Context, conn net.Conn) {
	if r.routes == nil || r.collector == nil {
		panic("not bound")
	}

	logger.Infof("new switch connection from %v", conn.RemoteAddr())
	session := newSession(r, conn)
	session.Run(ctx)
}

// Datapath implements routing.Pool.
func (r *Controller) Datapath(dpid uint64) (routing.Datapath, bool) {
	device, ok := r.device(dpid)
	return device, ok
}

// Pollers implements telemetry.Pool.
func (r *Controller) Pollers() map[uint64]telemetry.Poller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v := make(map[uint64]telemetry.Poller, len(r.devices))
	for dpid, device := range r.devices {
		v[dpid] = device
	}

	return v
}

func (r *Controller) device(dpid uint64) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[dpid]
	return device, ok
}

// register adds a device to the pool. A reconnecting switch can race its
// own stale session; the newest connection wins.
func (r *Controller) register(device *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[device.DPID()]; ok {
		logger.Warningf("duplicate device registration: dpid=%v; replacing the stale one", device.DPID())
	}
	r.devices[device.DPID()] = device
}

// unregister removes a device and reports whether it was still the
// registered one. A false return means a newer session already replaced it.
func (r *Controller) unregister(device *Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.devices[device.DPID()] != device {
		return false
	}
	delete(r.devices, device.DPID())

	return true
}
