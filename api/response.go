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
	"github.com/ant0ine/go-json-rest/rest"
)

// Machine-readable error codes of the REST surface.
const (
	codeInvalidArgument = "invalid_argument"
	codeNotFound        = "not_found"
	codeConflict        = "conflict"
	codePartialInstall  = "partial_install"
	codeUpstreamTimeout = "upstream_timeout"
	codeInternal        = "internal"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// DPID names the failed hop of a partial install.
	DPID uint64 `json:"dpid,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w rest.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	w.WriteJson(&errorResponse{Error: errorBody{Code: code, Message: message}})
}

type healthResponse struct {
	Status string `json:"status"`
	// Unix seconds of the most recent stats reply; zero when telemetry
	// has not delivered anything yet. Staleness here signals a telemetry
	// problem without failing the endpoint.
	LastStatsTS float64 `json:"last_stats_ts"`
}

type nodesResponse struct {
	Nodes []uint64 `json:"nodes"`
}

type linkPayload struct {
	SrcDPID uint64 `json:"src_dpid"`
	SrcPort uint32 `json:"src_port"`
	DstDPID uint64 `json:"dst_dpid"`
	DstPort uint32 `json:"dst_port"`
}

type linksResponse struct {
	Links []linkPayload `json:"links"`
}

type hostPayload struct {
	MAC  string `json:"mac"`
	DPID uint64 `json:"dpid"`
	Port uint32 `json:"port"`
	IPv4 string `json:"ipv4,omitempty"`
}

type hostsResponse struct {
	Hosts []hostPayload `json:"hosts"`
}

type hopPayload struct {
	DPID    uint64 `json:"dpid"`
	OutPort uint32 `json:"out_port"`
}

type pathPayload struct {
	PathID int          `json:"path_id"`
	DPIDs  []uint64     `json:"dpids"`
	Hops   []hopPayload `json:"hops"`
}

type pathsResponse struct {
	Paths []pathPayload `json:"paths"`
}

type portStatPayload struct {
	DPID      uint64  `json:"dpid"`
	Port      uint32  `json:"port"`
	RxPackets uint64  `json:"rx_packets"`
	TxPackets uint64  `json:"tx_packets"`
	RxBytes   uint64  `json:"rx_bytes"`
	TxBytes   uint64  `json:"tx_bytes"`
	RxDropped uint64  `json:"rx_dropped"`
	TxDropped uint64  `json:"tx_dropped"`
	RxErrors  uint64  `json:"rx_errors"`
	TxErrors  uint64  `json:"tx_errors"`
	Timestamp float64 `json:"timestamp"`
}

type portStatsResponse struct {
	Ports []portStatPayload `json:"ports"`
}

type flowStatPayload struct {
	DPID        uint64  `json:"dpid"`
	FlowID      string  `json:"flow_id"`
	TableID     uint8   `json:"table_id"`
	Priority    uint16  `json:"priority"`
	DurationSec uint32  `json:"duration_sec"`
	PacketCount uint64  `json:"packet_count"`
	ByteCount   uint64  `json:"byte_count"`
	Timestamp   float64 `json:"timestamp"`
}

type flowStatsResponse struct {
	Flows []flowStatPayload `json:"flows"`
}

type linkMetricPayload struct {
	linkPayload
	// Utilization is nil until two samples of the source port exist.
	Utilization *float64 `json:"utilization"`
}

type linkMetricsResponse struct {
	Links []linkMetricPayload `json:"links"`
}

type installRouteResponse struct {
	FlowID string `json:"flow_id"`
}

type routePayload struct {
	FlowID    string   `json:"flow_id"`
	SrcMAC    string   `json:"src_mac"`
	DstMAC    string   `json:"dst_mac"`
	PathID    int      `json:"path_id"`
	DPIDs     []uint64 `json:"dpids"`
	Installed float64  `json:"installed"`
	Orphaned  bool     `json:"orphaned"`
}

type routesResponse struct {
	Routes []routePayload `json:"routes"`
}
