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

	"github.com/superkkt/maple/routing"
	"github.com/superkkt/maple/topology"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

// Path ID recorded for routes installed from explicit hops instead of a
// computed path, so their cookies never collide with enumerated paths.
const explicitPathID = -1

// errBadHops marks an explicit hop list that is malformed in itself, as
// opposed to one referencing topology that does not exist.
var errBadHops = errors.New("malformed hops")

type installRouteParam struct {
	SrcMAC net.HardwareAddr
	DstMAC net.HardwareAddr
	PathID int
	Hops   []topology.Hop
}

func (r *installRouteParam) UnmarshalJSON(data []byte) error {
	v := struct {
		SrcMAC string `json:"src_mac"`
		DstMAC string `json:"dst_mac"`
		PathID *int   `json:"path_id"`
		Hops   []struct {
			DPID    uint64 `json:"dpid"`
			OutPort uint32 `json:"out_port"`
		} `json:"hops"`
	}{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	src, err := net.ParseMAC(v.SrcMAC)
	if err != nil {
		return errors.Errorf("invalid src_mac: %q", v.SrcMAC)
	}
	dst, err := net.ParseMAC(v.DstMAC)
	if err != nil {
		return errors.Errorf("invalid dst_mac: %q", v.DstMAC)
	}
	r.SrcMAC = src
	r.DstMAC = dst

	switch {
	case len(v.Hops) > 0:
		if v.PathID != nil {
			return errors.New("path_id and hops are mutually exclusive")
		}
		r.PathID = explicitPathID
		for _, hop := range v.Hops {
			r.Hops = append(r.Hops, topology.Hop{DPID: hop.DPID, OutPort: hop.OutPort})
		}
	case v.PathID != nil:
		if *v.PathID < 0 || *v.PathID >= maxPathCount {
			return errors.Errorf("invalid path_id: %v (0..%v)", *v.PathID, maxPathCount-1)
		}
		r.PathID = *v.PathID
	default:
		return errors.New("either path_id or hops is required")
	}

	return nil
}

func (r *Server) installRoute(w rest.ResponseWriter, req *rest.Request) {
	p := new(installRouteParam)
	if err := req.DecodeJsonPayload(p); err != nil {
		logger.Warningf("failed to decode params: %v", err)
		writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}
	logger.Debugf("installRoute request from %v: %v", req.RemoteAddr, spew.Sdump(p))

	path, err := r.resolvePath(p)
	if err != nil {
		if errors.Cause(err) == errBadHops {
			writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
		return
	}

	flowID, err := r.Routes.InstallRoute(req.Request.Context(), p.SrcMAC, p.DstMAC, path, p.PathID)
	if err != nil {
		r.writeInstallError(w, err)
		return
	}

	w.WriteJson(&installRouteResponse{FlowID: flowID})
}

// resolvePath turns the request into a concrete path: either the n-th
// deterministic candidate of the path engine, or the caller's explicit
// hops validated against the live graph.
func (r *Server) resolvePath(p *installRouteParam) (topology.Path, error) {
	snapshot := r.Topology.Snapshot()

	if p.PathID == explicitPathID {
		return explicitPath(snapshot, p.Hops)
	}

	// The candidate list is deterministic and prefix-stable, so asking
	// for path_id+1 paths always reproduces what GET /paths showed.
	paths, err := snapshot.KShortestPaths(p.SrcMAC, p.DstMAC, p.PathID+1)
	if err != nil {
		return topology.Path{}, err
	}
	if p.PathID >= len(paths) {
		return topology.Path{}, errors.Errorf("no path with path_id=%v between %v and %v", p.PathID, p.SrcMAC, p.DstMAC)
	}

	return paths[p.PathID], nil
}

// explicitPath validates caller-provided hops: every consecutive pair has
// to be a real link, and no switch may repeat.
func explicitPath(snapshot *topology.Snapshot, hops []topology.Hop) (topology.Path, error) {
	seen := make(map[uint64]bool)
	dpids := make([]uint64, 0, len(hops))
	for _, hop := range hops {
		if !snapshot.HasSwitch(hop.DPID) {
			return topology.Path{}, errors.Errorf("unknown switch: dpid=%v", hop.DPID)
		}
		if seen[hop.DPID] {
			return topology.Path{}, errors.Wrapf(errBadHops, "looping path: dpid=%v repeats", hop.DPID)
		}
		seen[hop.DPID] = true
		dpids = append(dpids, hop.DPID)
	}
	for i := 0; i < len(dpids)-1; i++ {
		link, ok := snapshot.Link(dpids[i], dpids[i+1])
		if !ok {
			return topology.Path{}, errors.Errorf("no link between dpid=%v and dpid=%v", dpids[i], dpids[i+1])
		}
		if link.SrcPort != hops[i].OutPort {
			return topology.Path{}, errors.Wrapf(errBadHops, "hop dpid=%v egresses port %v, but the link uses port %v", dpids[i], hops[i].OutPort, link.SrcPort)
		}
	}

	return topology.Path{DPIDs: dpids, Hops: hops}, nil
}

func (r *Server) writeInstallError(w rest.ResponseWriter, err error) {
	var conflict *routing.ConflictError
	var partial *routing.PartialInstallError

	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.As(err, &partial):
		w.WriteHeader(http.StatusBadGateway)
		w.WriteJson(&errorResponse{Error: errorBody{
			Code:    codePartialInstall,
			Message: err.Error(),
			DPID:    partial.DPID,
		}})
	case errors.Cause(err) == context.DeadlineExceeded:
		writeError(w, http.StatusGatewayTimeout, codeUpstreamTimeout, err.Error())
	case errors.Cause(err) == routing.ErrUnknownSwitch, errors.Cause(err) == routing.ErrStalePath:
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

func (r *Server) deleteRoute(w rest.ResponseWriter, req *rest.Request) {
	flowID := req.PathParam("flowID")

	if err := r.Routes.DeleteRoute(req.Request.Context(), flowID); err != nil {
		if errors.Cause(err) == routing.ErrInvalidFlowID {
			writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}

	w.WriteJson(&struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

func (r *Server) listRoutes(w rest.ResponseWriter, req *rest.Request) {
	routes := r.Routes.Routes()

	v := make([]routePayload, 0, len(routes))
	for _, route := range routes {
		v = append(v, routePayload{
			FlowID:    route.FlowID,
			SrcMAC:    route.SrcMAC.String(),
			DstMAC:    route.DstMAC.String(),
			PathID:    route.PathID,
			DPIDs:     route.DPIDs,
			Installed: unixSeconds(route.Installed),
			Orphaned:  route.Orphaned,
		})
	}
	w.WriteJson(&routesResponse{Routes: v})
}
