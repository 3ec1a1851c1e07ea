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

// Package api is the REST gateway: validation and serialization only,
// every call a direct delegation to the owning component.
package api

import (
	"context"
	_ "embed"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/superkkt/maple/routing"
	"github.com/superkkt/maple/telemetry"
	"github.com/superkkt/maple/topology"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	logger = logging.MustGetLogger("api")
)

//go:embed openapi.yaml
var openapiSpec []byte

// Topology is the read surface the gateway needs from the topology store.
type Topology interface {
	Snapshot() *topology.Snapshot
}

// RouteManager is the surface of the flow manager.
type RouteManager interface {
	InstallRoute(ctx context.Context, src, dst net.HardwareAddr, path topology.Path, pathID int) (flowID string, err error)
	DeleteRoute(ctx context.Context, flowID string) error
	Routes() []routing.Route
}

// StatsProvider is the surface of the telemetry collector.
type StatsProvider interface {
	PortStats() []telemetry.PortSample
	FlowStats() []telemetry.FlowSample
	Utilization(dpid uint64, port uint32) float64
	LastStatsTS() time.Time
}

type Server struct {
	Port uint16
	TLS  struct {
		Cert string // Path for a TLS certification file.
		Key  string // Path for a TLS private key file.
	}
	Topology Topology
	Routes   RouteManager
	Stats    StatsProvider
	// Gatherer feeds /metrics; nil means the Prometheus default.
	Gatherer prometheus.Gatherer
}

func (r *Server) validate() error {
	if r.Topology == nil {
		return errors.New("nil topology")
	}
	if r.Routes == nil {
		return errors.New("nil route manager")
	}
	if r.Stats == nil {
		return errors.New("nil stats provider")
	}

	return nil
}

// Handler builds the full HTTP handler: the JSON API under /api/v1, the
// Prometheus exposition on /metrics, and the schema on /openapi.yaml.
func (r *Server) Handler() (http.Handler, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	api := rest.NewApi()
	// Middleware to set the CORS header; the RL agents run anywhere.
	api.Use(rest.MiddlewareSimple(func(handler rest.HandlerFunc) rest.HandlerFunc {
		return func(writer rest.ResponseWriter, request *rest.Request) {
			writer.Header().Set("Access-Control-Allow-Origin", "*")
			handler(writer, request)
		}
	}))
	router, err := rest.MakeRouter(
		rest.Get("/api/v1/health", r.health),
		rest.Get("/api/v1/stats/ports", r.listPortStats),
		rest.Get("/api/v1/stats/flows", r.listFlowStats),
		rest.Get("/api/v1/topology/nodes", r.listNodes),
		rest.Get("/api/v1/topology/links", r.listLinks),
		rest.Get("/api/v1/hosts", r.listHosts),
		rest.Get("/api/v1/paths", r.listPaths),
		rest.Get("/api/v1/metrics/links", r.listLinkMetrics),
		rest.Post("/api/v1/actions/route", r.installRoute),
		rest.Delete("/api/v1/actions/route/#flowID", r.deleteRoute),
		rest.Get("/api/v1/actions/list", r.listRoutes),
	)
	if err != nil {
		return nil, err
	}
	api.SetApp(router)

	gatherer := r.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", api.MakeHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(openapiSpec)
	})

	return mux, nil
}

// Serve listens on all interfaces until the listener fails.
func (r *Server) Serve() error {
	handler, err := r.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%v", r.Port)
	logger.Infof("REST API listening on %v", addr)
	if r.TLS.Cert != "" && r.TLS.Key != "" {
		return http.ListenAndServeTLS(addr, r.TLS.Cert, r.TLS.Key, handler)
	}

	return http.ListenAndServe(addr, handler)
}
