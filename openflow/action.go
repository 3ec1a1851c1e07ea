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
	// OFPAT_OUTPUT
	actionTypeOutput uint16 = 0
	// OFPCML_NO_BUFFER: send the whole packet to the controller.
	lengthNoBuffer uint16 = 0xFFFF
)

// Action is an output action that forwards a packet out of a port.
type Action struct {
	outPort uint32
}

func NewOutputAction(port uint32) *Action {
	return &Action{
		outPort: port,
	}
}

func (r *Action) OutPort() uint32 {
	return r.outPort
}

func (r *Action) MarshalBinary() ([]byte, error) {
	v := make([]byte, 16)
	binary.BigEndian.PutUint16(v[0:2], actionTypeOutput)
	binary.BigEndian.PutUint16(v[2:4], 16)
	binary.BigEndian.PutUint32(v[4:8], r.outPort)
	binary.BigEndian.PutUint16(v[8:10], lengthNoBuffer)
	// v[10:16] is padding

	return v, nil
}

func marshalActions(actions []*Action) ([]byte, error) {
	v := make([]byte, 0)
	for _, a := range actions {
		action, err := a.MarshalBinary()
		if err != nil {
			return nil, err
		}
		v = append(v, action...)
	}

	return v, nil
}
