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

// Message is a base structure of all the OpenFlow messages. It marshals and
// unmarshals the common ofp_header and carries the message body as a payload.
type Message struct {
	version uint8
	msgType uint8
	xid     uint32
	payload []byte
}

func NewMessage(msgType uint8, xid uint32) Message {
	return Message{
		version: Version,
		msgType: msgType,
		xid:     xid,
	}
}

func (r Message) Version() uint8 {
	return r.version
}

func (r Message) Type() uint8 {
	return r.msgType
}

func (r Message) TransactionID() uint32 {
	return r.xid
}

func (r *Message) SetPayload(payload []byte) {
	r.payload = payload
}

func (r Message) Payload() []byte {
	return r.payload
}

func (r Message) MarshalBinary() ([]byte, error) {
	length := 8 + len(r.payload)
	v := make([]byte, length)
	v[0] = r.version
	v[1] = r.msgType
	binary.BigEndian.PutUint16(v[2:4], uint16(length))
	binary.BigEndian.PutUint32(v[4:8], r.xid)
	copy(v[8:], r.payload)

	return v, nil
}

func (r *Message) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return ErrInvalidPacketLength
	}

	length := binary.BigEndian.Uint16(data[2:4])
	if int(length) > len(data) || length < 8 {
		return ErrInvalidPacketLength
	}
	r.version = data[0]
	r.msgType = data[1]
	r.xid = binary.BigEndian.Uint32(data[4:8])
	r.payload = data[8:length]

	return nil
}
