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
	"net"
	"net/http"
	"strconv"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/pkg/errors"

	"github.com/superkkt/maple/topology"
)

const (
	// Upper bound of the k query parameter. More candidate paths than
	// this is a client mistake, not a use case.
	maxPathCount = 32
)

func (r *Server) listNodes(w rest.ResponseWriter, req *rest.Request) {
	snapshot := r.Topology.Snapshot()
	w.WriteJson(&nodesResponse{Nodes: snapshot.Nodes()})
}

func (r *Server) listLinks(w rest.ResponseWriter, req *rest.Request) {
	snapshot := r.Topology.Snapshot()

	links := make([]linkPayload, 0)
	for _, v := range snapshot.Links() {
		links = append(links, linkPayload{
			SrcDPID: v.SrcDPID,
			SrcPort: v.SrcPort,
			DstDPID: v.DstDPID,
			DstPort: v.DstPort,
		})
	}
	w.WriteJson(&linksResponse{Links: links})
}

func (r *Server) listHosts(w rest.ResponseWriter, req *rest.Request) {
	snapshot := r.Topology.Snapshot()

	hosts := make([]hostPayload, 0)
	for _, v := range snapshot.Hosts() {
		host := hostPayload{
			MAC:  v.MAC.String(),
			DPID: v.DPID,
			Port: v.Port,
		}
		if v.IP != nil {
			host.IPv4 = v.IP.String()
		}
		hosts = append(hosts, host)
	}
	w.WriteJson(&hostsResponse{Hosts: hosts})
}

type pathsParam struct {
	srcMAC net.HardwareAddr
	dstMAC net.HardwareAddr
	k      int
}

func parsePathsParam(req *rest.Request) (*pathsParam, error) {
	query := req.URL.Query()

	src, err := net.ParseMAC(query.Get("src_mac"))
	if err != nil {
		return nil, errors.Errorf("invalid src_mac: %q", query.Get("src_mac"))
	}
	dst, err := net.ParseMAC(query.Get("dst_mac"))
	if err != nil {
		return nil, errors.Errorf("invalid dst_mac: %q", query.Get("dst_mac"))
	}

	k := 1
	if s := query.Get("k"); s != "" {
		k, err = strconv.Atoi(s)
		if err != nil || k < 1 || k > maxPathCount {
			return nil, errors.Errorf("invalid k: %q (1..%v)", s, maxPathCount)
		}
	}

	return &pathsParam{srcMAC: src, dstMAC: dst, k: k}, nil
}

func (r *Server) listPaths(w rest.ResponseWriter, req *rest.Request) {
	p, err := parsePathsParam(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}

	snapshot := r.Topology.Snapshot()
	paths, err := snapshot.KShortestPaths(p.srcMAC, p.dstMAC, p.k)
	if err != nil {
		if errors.Cause(err) == topology.ErrUnknownHost {
			writeError(w, http.StatusNotFound, codeNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}

	// A disconnected pair is an empty list, not an error.
	v := make([]pathPayload, 0, len(paths))
	for i, path := range paths {
		v = append(v, pathPayload{
			PathID: i,
			DPIDs:  path.DPIDs,
			Hops:   hopPayloads(path.Hops),
		})
	}
	w.WriteJson(&pathsResponse{Paths: v})
}

func hopPayloads(hops []topology.Hop) []hopPayload {
	v := make([]hopPayload, 0, len(hops))
	for _, hop := range hops {
		v = append(v, hopPayload{DPID: hop.DPID, OutPort: hop.OutPort})
	}

	return v
}
