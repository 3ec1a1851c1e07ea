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

package protocol

import (
	"encoding/binary"
	"errors"
)

// LLDP TLV types from IEEE 802.1AB.
const (
	lldpTLVEnd       = 0
	lldpTLVChassisID = 1
	lldpTLVPortID    = 2
	lldpTLVTTL       = 3
)

type LLDPChassisID struct {
	SubType uint8
	Data    []byte
}

type LLDPPortID struct {
	SubType uint8
	Data    []byte
}

// LLDP carries the three mandatory LLDPDU TLVs. Optional TLVs are ignored.
type LLDP struct {
	ChassisID LLDPChassisID
	PortID    LLDPPortID
	TTL       uint16
}

func marshalTLV(tlvType uint16, body []byte) ([]byte, error) {
	if len(body) > 0x1FF {
		return nil, errors.New("too long TLV body")
	}

	v := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(v[0:2], tlvType<<9|uint16(len(body)&0x1FF))
	copy(v[2:], body)

	return v, nil
}

func (r *LLDP) MarshalBinary() ([]byte, error) {
	if r.ChassisID.Data == nil {
		return nil, errors.New("nil chassis ID")
	}
	if r.PortID.Data == nil {
		return nil, errors.New("nil port ID")
	}

	v := make([]byte, 0)
	chassis, err := marshalTLV(lldpTLVChassisID, append([]byte{r.ChassisID.SubType}, r.ChassisID.Data...))
	if err != nil {
		return nil, err
	}
	v = append(v, chassis...)

	port, err := marshalTLV(lldpTLVPortID, append([]byte{r.PortID.SubType}, r.PortID.Data...))
	if err != nil {
		return nil, err
	}
	v = append(v, port...)

	ttl := make([]byte, 2)
	binary.BigEndian.PutUint16(ttl, r.TTL)
	t, err := marshalTLV(lldpTLVTTL, ttl)
	if err != nil {
		return nil, err
	}
	v = append(v, t...)

	// End of LLDPDU TLV.
	return append(v, 0, 0), nil
}

func unmarshalTLV(data []byte) (tlvType uint16, body []byte, n int, err error) {
	if len(data) < 2 {
		return 0, nil, 0, errors.New("invalid TLV length")
	}

	header := binary.BigEndian.Uint16(data[0:2])
	tlvType = header >> 9 & 0x7F
	length := int(header & 0x1FF)
	if len(data) < 2+length {
		return 0, nil, 0, errors.New("invalid TLV length")
	}

	return tlvType, data[2 : 2+length], 2 + length, nil
}

// UnmarshalBinary expects the three mandatory TLVs in their standard order:
// chassis ID, port ID, and then TTL (IEEE 802.1AB-2009, 8.2).
func (r *LLDP) UnmarshalBinary(data []byte) error {
	tlvType, body, n, err := unmarshalTLV(data)
	if err != nil {
		return err
	}
	if tlvType != lldpTLVChassisID || len(body) < 1 {
		return errors.New("missing chassis ID TLV")
	}
	r.ChassisID = LLDPChassisID{SubType: body[0], Data: body[1:]}
	data = data[n:]

	tlvType, body, n, err = unmarshalTLV(data)
	if err != nil {
		return err
	}
	if tlvType != lldpTLVPortID || len(body) < 1 {
		return errors.New("missing port ID TLV")
	}
	r.PortID = LLDPPortID{SubType: body[0], Data: body[1:]}
	data = data[n:]

	tlvType, body, _, err = unmarshalTLV(data)
	if err != nil {
		return err
	}
	if tlvType != lldpTLVTTL || len(body) < 2 {
		return errors.New("missing TTL TLV")
	}
	r.TTL = binary.BigEndian.Uint16(body[0:2])

	return nil
}
