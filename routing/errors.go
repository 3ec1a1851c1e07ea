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
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownSwitch means a path references a switch that is not
	// connected to the controller.
	ErrUnknownSwitch = errors.New("unknown switch")
	// ErrInvalidFlowID means the flow identifier is not a value this
	// manager could have issued.
	ErrInvalidFlowID = errors.New("invalid flow ID")
	// ErrStalePath means the path no longer matches the live topology,
	// e.g. a reverse link disappeared between computation and install.
	ErrStalePath = errors.New("stale path")
)

// ConflictError means the cookie derived from (src, dst, path ID) is
// already bound to a route with different parameters.
type ConflictError struct {
	FlowID string
}

func (r *ConflictError) Error() string {
	return fmt.Sprintf("route already installed with different parameters: flow ID=%v", r.FlowID)
}

// PartialInstallError means a switch in the middle of a route rejected or
// timed out its flow modification after earlier hops had already been
// installed. The earlier hops have been rolled back by the time this error
// is returned.
type PartialInstallError struct {
	// DPID identifies the switch whose install failed.
	DPID uint64
	// RolledBack is the number of hops that were removed again.
	RolledBack int
	Err        error
}

func (r *PartialInstallError) Error() string {
	return fmt.Sprintf("partial route install: dpid=%v failed after %v hops, rolled back: %v", r.DPID, r.RolledBack, r.Err)
}

// Cause implements the pkg/errors causer so callers can reach the
// underlying switch error, e.g. a deadline exceeded.
func (r *PartialInstallError) Cause() error {
	return r.Err
}

func (r *PartialInstallError) Unwrap() error {
	return r.Err
}
