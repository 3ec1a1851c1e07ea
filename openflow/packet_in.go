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

type PacketIn struct {
	Message
	bufferID uint32
	totalLen uint16
	reason   uint8
	tableID  uint8
	cookie   uint64
	match    *Match
	data     []byte
}

func (r *PacketIn) BufferID() uint32 {
	return r.bufferID
}

func (r *PacketIn) Reason() uint8 {
	return r.reason
}

func (r *PacketIn) TableID() uint8 {
	return r.tableID
}

func (r *PacketIn) Cookie() uint64 {
	return r.cookie
}

// InPort returns the ingress port number carried in the packet-in match.
func (r *PacketIn) InPort() uint32 {
	if r.match == nil {
		return 0
	}
	wildcard, port := r.match.InPort()
	if wildcard {
		return 0
	}

	return port
}

func (r *PacketIn) Data() []byte {
	return r.data
}

func (r *PacketIn) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < 16 {
		return ErrInvalidPacketLength
	}
	r.bufferID = binary.BigEndian.Uint32(payload[0:4])
	r.totalLen = binary.BigEndian.Uint16(payload[4:6])
	r.reason = payload[6]
	r.tableID = payload[7]
	r.cookie = binary.BigEndian.Uint64(payload[8:16])

	r.match = NewMatch()
	if err := r.match.UnmarshalBinary(payload[16:]); err != nil {
		return err
	}
	// The packet payload follows the match and a 2-byte pad.
	offset := 16 + r.match.Size() + 2
	if offset > len(payload) {
		return ErrInvalidPacketLength
	}
	r.data = payload[offset:]

	return nil
}
