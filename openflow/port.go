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
	"bytes"
	"encoding/binary"
	"net"
)

// Port is an ofp_port description.
type Port struct {
	number uint32
	mac    net.HardwareAddr
	name   string
	config uint32
	state  uint32
	// Current port speed in kbps, zero if the switch does not report it.
	currSpeed uint32
}

func (r *Port) Number() uint32 {
	return r.number
}

func (r *Port) MAC() net.HardwareAddr {
	return r.mac
}

func (r *Port) Name() string {
	return r.name
}

// IsPortDown returns whether the port is administratively down.
func (r *Port) IsPortDown() bool {
	return r.config&0x1 == 0x1 // OFPPC_PORT_DOWN
}

// IsLinkDown returns whether the physical link is down.
func (r *Port) IsLinkDown() bool {
	return r.state&0x1 == 0x1 // OFPPS_LINK_DOWN
}

func (r *Port) Speed() uint32 {
	return r.currSpeed
}

// UnmarshalBinary parses a 64-byte ofp_port structure.
func (r *Port) UnmarshalBinary(data []byte) error {
	if len(data) < 64 {
		return ErrInvalidPacketLength
	}

	r.number = binary.BigEndian.Uint32(data[0:4])
	// data[4:8] is padding
	r.mac = append(net.HardwareAddr{}, data[8:14]...)
	// data[14:16] is padding
	r.name = string(bytes.TrimRight(data[16:32], "\x00"))
	r.config = binary.BigEndian.Uint32(data[32:36])
	r.state = binary.BigEndian.Uint32(data[36:40])
	// data[40:56]: curr, advertised, supported, peer features
	r.currSpeed = binary.BigEndian.Uint32(data[56:60])

	return nil
}
