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

// Package telemetry polls every connected switch for port and flow
// counters on a fixed interval and serves the cached samples plus derived
// utilization to the REST layer and to Prometheus.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/superkkt/maple/openflow"

	lru "github.com/hashicorp/golang-lru"
	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	logger = logging.MustGetLogger("telemetry")
)

const (
	// Bounded history sizes. A sample cache miss only costs one extra
	// poll interval before utilization is defined again.
	portHistorySize = 4096
	flowCacheSize   = 8192
)

// Poll state of one switch.
type state int

const (
	// Unpolled means no stats have ever been requested from the switch.
	Unpolled state = iota
	// Polling means a request is in flight and no reply arrived yet.
	Polling
	// Sampled means at least one reply has been cached.
	Sampled
)

func (r state) String() string {
	switch r {
	case Unpolled:
		return "UNPOLLED"
	case Polling:
		return "POLLING"
	case Sampled:
		return "SAMPLED"
	default:
		return fmt.Sprintf("unknown state (%d)", r)
	}
}

// Poller is the stats-request side of a connected switch. Requests are
// asynchronous; the replies come back through OnPortStats and OnFlowStats.
type Poller interface {
	RequestPortStats(ctx context.Context) error
	RequestFlowStats(ctx context.Context) error
}

// Pool enumerates the currently connected switches.
type Pool interface {
	Pollers() map[uint64]Poller
}

type Config struct {
	// Interval between poll rounds.
	Interval time.Duration
	// Timeout bounds each per-switch request. A slow switch never delays
	// the others; its poll simply fails for this round.
	Timeout time.Duration
	// DefaultCapacity is the assumed port capacity in bytes per second
	// when the switch did not advertise a speed.
	DefaultCapacity float64
}

func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Timeout:  3 * time.Second,
		// 1 GbE.
		DefaultCapacity: 125_000_000,
	}
}

// PortSample is one timestamped reading of a port's counters.
type PortSample struct {
	DPID      uint64
	Port      uint32
	RxPackets uint64
	TxPackets uint64
	RxBytes   uint64
	TxBytes   uint64
	RxDropped uint64
	TxDropped uint64
	RxErrors  uint64
	TxErrors  uint64
	Timestamp time.Time
}

// FlowSample is one timestamped reading of a flow entry's counters.
type FlowSample struct {
	DPID        uint64
	Cookie      uint64
	TableID     uint8
	Priority    uint16
	DurationSec uint32
	PacketCount uint64
	ByteCount   uint64
	Timestamp   time.Time
}

type portKey struct {
	dpid uint64
	port uint32
}

// portHistory keeps the two most recent samples of one port so the
// collector can derive a rate of change.
type portHistory struct {
	prev   PortSample
	latest PortSample
	// capacity in bytes per second; zero means unknown.
	capacity float64
}

type switchState struct {
	state     state
	lastReply time.Time
}

type Collector struct {
	pool   Pool
	config Config

	mu       sync.Mutex
	switches map[uint64]*switchState
	ports    *lru.Cache
	flows    *lru.Cache

	utilizationGauge *prometheus.GaugeVec
	txBytesGauge     *prometheus.GaugeVec
	rxBytesGauge     *prometheus.GaugeVec
}

func NewCollector(pool Pool, config Config) *Collector {
	if pool == nil {
		panic("pool is nil")
	}
	ports, err := lru.New(portHistorySize)
	if err != nil {
		panic(fmt.Sprintf("LRU cache: %v", err))
	}
	flows, err := lru.New(flowCacheSize)
	if err != nil {
		panic(fmt.Sprintf("LRU cache: %v", err))
	}

	r := &Collector{
		pool:     pool,
		config:   config,
		switches: make(map[uint64]*switchState),
		ports:    ports,
		flows:    flows,
		utilizationGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "maple_port_utilization_ratio",
			Help: "Derived egress utilization of a switch port, 0 to 1.",
		}, []string{"dpid", "port"}),
		txBytesGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "maple_port_tx_bytes_total",
			Help: "Transmitted bytes counter of a switch port.",
		}, []string{"dpid", "port"}),
		rxBytesGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "maple_port_rx_bytes_total",
			Help: "Received bytes counter of a switch port.",
		}, []string{"dpid", "port"}),
	}

	return r
}

// Register registers the collector's metrics with a Prometheus registry.
func (r *Collector) Register(registry prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{r.utilizationGauge, r.txBytesGauge, r.rxBytesGauge} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Run polls all switches every interval until the context is canceled.
// Each switch is polled in its own goroutine carrying its own timeout.
func (r *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pollAll(ctx)
		}
	}
}

func (r *Collector) pollAll(ctx context.Context) {
	for dpid, poller := range r.pool.Pollers() {
		go r.poll(ctx, dpid, poller)
	}
}

func (r *Collector) poll(ctx context.Context, dpid uint64, poller Poller) {
	r.mu.Lock()
	sw, ok := r.switches[dpid]
	if !ok {
		sw = &switchState{state: Unpolled}
		r.switches[dpid] = sw
	}
	if sw.state == Polling && time.Since(sw.lastReply) > 2*r.config.Interval {
		logger.Warningf("switch is not answering stats requests: dpid=%v, last reply=%v", dpid, sw.lastReply)
	}
	sw.state = Polling
	r.mu.Unlock()

	// Stats requests are idempotent reads, so one retry is safe.
	if err := r.request(ctx, poller); err != nil {
		if err := r.request(ctx, poller); err != nil {
			// Keep the last-known-good samples; never zero them out.
			logger.Errorf("failed to request stats: dpid=%v: %v", dpid, err)
		}
	}
}

func (r *Collector) request(ctx context.Context, poller Poller) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	if err := poller.RequestPortStats(ctx); err != nil {
		return err
	}
	return poller.RequestFlowStats(ctx)
}

// OnPortStats caches a port-stats reply. The previous sample of each port
// is retained so Utilization can compute a delta.
func (r *Collector) OnPortStats(dpid uint64, stats []openflow.PortStats) {
	r.onPortStats(dpid, stats, time.Now())
}

func (r *Collector) onPortStats(dpid uint64, stats []openflow.PortStats, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range stats {
		if v.PortNo > openflow.PortMax {
			// Reserved logical ports carry no meaningful counters.
			continue
		}
		sample := PortSample{
			DPID:      dpid,
			Port:      v.PortNo,
			RxPackets: v.RxPackets,
			TxPackets: v.TxPackets,
			RxBytes:   v.RxBytes,
			TxBytes:   v.TxBytes,
			RxDropped: v.RxDropped,
			TxDropped: v.TxDropped,
			RxErrors:  v.RxErrors,
			TxErrors:  v.TxErrors,
			Timestamp: now,
		}

		key := portKey{dpid: dpid, port: v.PortNo}
		history := &portHistory{}
		if cached, ok := r.ports.Get(key); ok {
			history = cached.(*portHistory)
		}
		history.prev = history.latest
		history.latest = sample
		r.ports.Add(key, history)

		labels := prometheus.Labels{"dpid": fmt.Sprintf("%d", dpid), "port": fmt.Sprintf("%d", v.PortNo)}
		r.txBytesGauge.With(labels).Set(float64(sample.TxBytes))
		r.rxBytesGauge.With(labels).Set(float64(sample.RxBytes))
		if u := utilization(history, r.config.DefaultCapacity); !math.IsNaN(u) {
			r.utilizationGauge.With(labels).Set(u)
		}
	}
	r.markSampled(dpid, now)
}

// OnFlowStats caches a flow-stats reply.
func (r *Collector) OnFlowStats(dpid uint64, stats []openflow.FlowStats) {
	r.onFlowStats(dpid, stats, time.Now())
}

func (r *Collector) onFlowStats(dpid uint64, stats []openflow.FlowStats, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range stats {
		key := fmt.Sprintf("%d/%016x/%d", dpid, v.Cookie, v.Priority)
		r.flows.Add(key, FlowSample{
			DPID:        dpid,
			Cookie:      v.Cookie,
			TableID:     v.TableID,
			Priority:    v.Priority,
			DurationSec: v.DurationSec,
			PacketCount: v.PacketCount,
			ByteCount:   v.ByteCount,
			Timestamp:   now,
		})
	}
	r.markSampled(dpid, now)
}

// Caller should hold the mutex.
func (r *Collector) markSampled(dpid uint64, now time.Time) {
	sw, ok := r.switches[dpid]
	if !ok {
		sw = &switchState{}
		r.switches[dpid] = sw
	}
	sw.state = Sampled
	sw.lastReply = now
}

// SetPortCapacity records the advertised speed of a port in bytes per
// second. The event handler feeds this from port descriptions.
func (r *Collector) SetPortCapacity(dpid uint64, port uint32, bytesPerSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := portKey{dpid: dpid, port: port}
	history := &portHistory{}
	if cached, ok := r.ports.Get(key); ok {
		history = cached.(*portHistory)
	}
	history.capacity = bytesPerSecond
	r.ports.Add(key, history)
}

// Forget drops the poll state of a disconnected switch. The cached
// samples age out of the LRU on their own.
func (r *Collector) Forget(dpid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.switches, dpid)
}

// PortStats returns the latest cached sample of every known port, sorted
// by dpid and port.
func (r *Collector) PortStats() []PortSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]PortSample, 0, r.ports.Len())
	for _, key := range r.ports.Keys() {
		cached, ok := r.ports.Get(key)
		if !ok {
			continue
		}
		history := cached.(*portHistory)
		if history.latest.Timestamp.IsZero() {
			continue
		}
		v = append(v, history.latest)
	}
	sort.Slice(v, func(i, j int) bool {
		if v[i].DPID != v[j].DPID {
			return v[i].DPID < v[j].DPID
		}
		return v[i].Port < v[j].Port
	})

	return v
}

// FlowStats returns the latest cached sample of every known flow entry.
func (r *Collector) FlowStats() []FlowSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]FlowSample, 0, r.flows.Len())
	for _, key := range r.flows.Keys() {
		cached, ok := r.flows.Get(key)
		if !ok {
			continue
		}
		v = append(v, cached.(FlowSample))
	}
	sort.Slice(v, func(i, j int) bool {
		if v[i].DPID != v[j].DPID {
			return v[i].DPID < v[j].DPID
		}
		return v[i].Cookie < v[j].Cookie
	})

	return v
}

// Utilization derives the egress utilization of a port from its two most
// recent samples: (tx bytes delta / elapsed) / capacity, clamped to [0, 1].
// It returns NaN until two samples exist; zero would be a lie.
func (r *Collector) Utilization(dpid uint64, port uint32) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached, ok := r.ports.Get(portKey{dpid: dpid, port: port})
	if !ok {
		return math.NaN()
	}

	return utilization(cached.(*portHistory), r.config.DefaultCapacity)
}

func utilization(history *portHistory, defaultCapacity float64) float64 {
	if history.prev.Timestamp.IsZero() || history.latest.Timestamp.IsZero() {
		return math.NaN()
	}
	elapsed := history.latest.Timestamp.Sub(history.prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return math.NaN()
	}
	capacity := history.capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	// Counters are cumulative; a switch restart can make them go
	// backwards.
	if history.latest.TxBytes < history.prev.TxBytes {
		return math.NaN()
	}
	delta := float64(history.latest.TxBytes - history.prev.TxBytes)
	u := (delta / elapsed) / capacity
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}

	return u
}

// LastStatsTS returns the time of the most recent stats reply from any
// switch. The zero time means no switch ever replied.
func (r *Collector) LastStatsTS() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	var last time.Time
	for _, sw := range r.switches {
		if sw.lastReply.After(last) {
			last = sw.lastReply
		}
	}

	return last
}

// State returns the poll state of a switch.
func (r *Collector) State(dpid uint64) state {
	r.mu.Lock()
	defer r.mu.Unlock()

	sw, ok := r.switches[dpid]
	if !ok {
		return Unpolled
	}
	return sw.state
}
