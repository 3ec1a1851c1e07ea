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

package openflow

import (
	"encoding/binary"
)

const (
	// OFPIT_APPLY_ACTIONS
	instructionTypeApplyActions uint16 = 4
)

// marshalApplyActions wraps actions into an apply-actions instruction, which
// is the only instruction type this controller installs.
func marshalApplyActions(actions []*Action) ([]byte, error) {
	body, err := marshalActions(actions)
	if err != nil {
		return nil, err
	}

	v := make([]byte, 8+len(body))
	binary.BigEndian.PutUint16(v[0:2], instructionTypeApplyActions)
	binary.BigEndian.PutUint16(v[2:4], uint16(len(v)))
	// v[4:8] is padding
	copy(v[8:], body)

	return v, nil
}
