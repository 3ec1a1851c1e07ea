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
	// OFPP_CONTROLLER as the ingress port of a packet generated by us.
	inPortController uint32 = 0xFFFFFFFD
)

type PacketOut struct {
	Message
	inPort  uint32
	actions []*Action
	data    []byte
}

func NewPacketOut() *PacketOut {
	return &PacketOut{
		Message: NewMessage(OFPT_PACKET_OUT, NextXID()),
		inPort:  inPortController,
	}
}

// SetInPort sets the ingress port of a forwarded packet. The default value,
// used for packets originated by the controller itself, is OFPP_CONTROLLER.
func (r *PacketOut) SetInPort(port uint32) {
	r.inPort = port
}

func (r *PacketOut) AddAction(action *Action) {
	if action == nil {
		panic("action is nil")
	}
	r.actions = append(r.actions, action)
}

func (r *PacketOut) SetData(data []byte) {
	r.data = data
}

func (r *PacketOut) MarshalBinary() ([]byte, error) {
	actions, err := marshalActions(r.actions)
	if err != nil {
		return nil, err
	}

	v := make([]byte, 16, 16+len(actions)+len(r.data))
	binary.BigEndian.PutUint32(v[0:4], NoBuffer)
	binary.BigEndian.PutUint32(v[4:8], r.inPort)
	binary.BigEndian.PutUint16(v[8:10], uint16(len(actions)))
	// v[10:16] is padding
	v = append(v, actions...)
	v = append(v, r.data...)
	r.SetPayload(v)

	return r.Message.MarshalBinary()
}
