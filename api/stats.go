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
	"math"
	"time"

	"github.com/superkkt/maple/routing"

	"github.com/ant0ine/go-json-rest/rest"
)

func (r *Server) health(w rest.ResponseWriter, req *rest.Request) {
	w.WriteJson(&healthResponse{
		Status:      "ok",
		LastStatsTS: unixSeconds(r.Stats.LastStatsTS()),
	})
}

func (r *Server) listPortStats(w rest.ResponseWriter, req *rest.Request) {
	samples := r.Stats.PortStats()

	ports := make([]portStatPayload, 0, len(samples))
	for _, v := range samples {
		ports = append(ports, portStatPayload{
			DPID:      v.DPID,
			Port:      v.Port,
			RxPackets: v.RxPackets,
			TxPackets: v.TxPackets,
			RxBytes:   v.RxBytes,
			TxBytes:   v.TxBytes,
			RxDropped: v.RxDropped,
			TxDropped: v.TxDropped,
			RxErrors:  v.RxErrors,
			TxErrors:  v.TxErrors,
			Timestamp: unixSeconds(v.Timestamp),
		})
	}
	w.WriteJson(&portStatsResponse{Ports: ports})
}

func (r *Server) listFlowStats(w rest.ResponseWriter, req *rest.Request) {
	samples := r.Stats.FlowStats()

	flows := make([]flowStatPayload, 0, len(samples))
	for _, v := range samples {
		flows = append(flows, flowStatPayload{
			DPID:        v.DPID,
			FlowID:      routing.FlowID(v.Cookie),
			TableID:     v.TableID,
			Priority:    v.Priority,
			DurationSec: v.DurationSec,
			PacketCount: v.PacketCount,
			ByteCount:   v.ByteCount,
			Timestamp:   unixSeconds(v.Timestamp),
		})
	}
	w.WriteJson(&flowStatsResponse{Flows: flows})
}

// listLinkMetrics reports the derived utilization of every directed link,
// measured at the link's source port.
func (r *Server) listLinkMetrics(w rest.ResponseWriter, req *rest.Request) {
	snapshot := r.Topology.Snapshot()

	links := make([]linkMetricPayload, 0)
	for _, v := range snapshot.Links() {
		metric := linkMetricPayload{
			linkPayload: linkPayload{
				SrcDPID: v.SrcDPID,
				SrcPort: v.SrcPort,
				DstDPID: v.DstDPID,
				DstPort: v.DstPort,
			},
		}
		if u := r.Stats.Utilization(v.SrcDPID, v.SrcPort); !math.IsNaN(u) {
			metric.Utilization = &u
		}
		links = append(links, metric)
	}
	w.WriteJson(&linkMetricsResponse{Links: links})
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}
