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
	"fmt"
	"net"
)

const (
	// OFPMT_OXM
	matchTypeOXM uint16 = 1
	// OFPXMC_OPENFLOW_BASIC
	oxmClassBasic uint16 = 0x8000
)

// OXM field codes of the basic class.
const (
	OXMInPort    uint8 = 0
	OXMEtherDst  uint8 = 3
	OXMEtherSrc  uint8 = 4
	OXMEtherType uint8 = 5
)

// Match is an OXM flow match. A new match is all-wildcarded, and only the
// fields this controller actually matches on are supported. Unknown OXM
// fields are skipped during unmarshaling.
type Match struct {
	inPort    *uint32
	etherSrc  net.HardwareAddr
	etherDst  net.HardwareAddr
	etherType *uint16
	// Wire length including padding, set by UnmarshalBinary.
	size int
}

func NewMatch() *Match {
	return &Match{}
}

func (r *Match) SetInPort(port uint32) {
	v := port
	r.inPort = &v
}

func (r *Match) InPort() (wildcard bool, port uint32) {
	if r.inPort == nil {
		return true, 0
	}
	return false, *r.inPort
}

func (r *Match) SetEtherSrc(mac net.HardwareAddr) {
	r.etherSrc = append(net.HardwareAddr{}, mac...)
}

func (r *Match) EtherSrc() (wildcard bool, mac net.HardwareAddr) {
	if r.etherSrc == nil {
		return true, nil
	}
	return false, r.etherSrc
}

func (r *Match) SetEtherDst(mac net.HardwareAddr) {
	r.etherDst = append(net.HardwareAddr{}, mac...)
}

func (r *Match) EtherDst() (wildcard bool, mac net.HardwareAddr) {
	if r.etherDst == nil {
		return true, nil
	}
	return false, r.etherDst
}

func (r *Match) SetEtherType(etherType uint16) {
	v := etherType
	r.etherType = &v
}

func (r *Match) EtherType() (wildcard bool, etherType uint16) {
	if r.etherType == nil {
		return true, 0
	}
	return false, *r.etherType
}

// Size returns the number of wire bytes, including padding, that the last
// call to UnmarshalBinary consumed.
func (r *Match) Size() int {
	return r.size
}

func (r *Match) String() string {
	v := "match("
	if r.inPort != nil {
		v += fmt.Sprintf("in_port=%v,", *r.inPort)
	}
	if r.etherSrc != nil {
		v += fmt.Sprintf("eth_src=%v,", r.etherSrc)
	}
	if r.etherDst != nil {
		v += fmt.Sprintf("eth_dst=%v,", r.etherDst)
	}
	if r.etherType != nil {
		v += fmt.Sprintf("eth_type=0x%04x,", *r.etherType)
	}

	return v + ")"
}

func oxmHeader(field uint8, length uint8) []byte {
	v := make([]byte, 4)
	binary.BigEndian.PutUint16(v[0:2], oxmClassBasic)
	v[2] = field << 1 // no mask
	v[3] = length

	return v
}

func (r *Match) MarshalBinary() ([]byte, error) {
	oxm := make([]byte, 0)
	if r.inPort != nil {
		v := oxmHeader(OXMInPort, 4)
		port := make([]byte, 4)
		binary.BigEndian.PutUint32(port, *r.inPort)
		oxm = append(oxm, v...)
		oxm = append(oxm, port...)
	}
	if r.etherDst != nil {
		oxm = append(oxm, oxmHeader(OXMEtherDst, 6)...)
		oxm = append(oxm, r.etherDst...)
	}
	if r.etherSrc != nil {
		oxm = append(oxm, oxmHeader(OXMEtherSrc, 6)...)
		oxm = append(oxm, r.etherSrc...)
	}
	if r.etherType != nil {
		v := oxmHeader(OXMEtherType, 2)
		etherType := make([]byte, 2)
		binary.BigEndian.PutUint16(etherType, *r.etherType)
		oxm = append(oxm, v...)
		oxm = append(oxm, etherType...)
	}

	// length excludes the trailing padding
	length := 4 + len(oxm)
	v := make([]byte, length)
	binary.BigEndian.PutUint16(v[0:2], matchTypeOXM)
	binary.BigEndian.PutUint16(v[2:4], uint16(length))
	copy(v[4:], oxm)
	// Pad to a multiple of 8 bytes.
	if rem := length % 8; rem != 0 {
		v = append(v, make([]byte, 8-rem)...)
	}

	return v, nil
}

func (r *Match) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return ErrInvalidPacketLength
	}
	if binary.BigEndian.Uint16(data[0:2]) != matchTypeOXM {
		return fmt.Errorf("unsupported match type: %v", binary.BigEndian.Uint16(data[0:2]))
	}

	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < 4 || length > len(data) {
		return ErrInvalidPacketLength
	}
	padded := length
	if rem := length % 8; rem != 0 {
		padded += 8 - rem
	}
	r.size = padded

	payload := data[4:length]
	for len(payload) >= 4 {
		class := binary.BigEndian.Uint16(payload[0:2])
		field := payload[2] >> 1
		hasMask := payload[2]&0x1 == 0x1
		oxmLength := int(payload[3])
		if len(payload) < 4+oxmLength {
			return ErrInvalidPacketLength
		}
		value := payload[4 : 4+oxmLength]

		// Skip the fields we do not match on.
		if class == oxmClassBasic && !hasMask {
			switch field {
			case OXMInPort:
				if oxmLength == 4 {
					r.SetInPort(binary.BigEndian.Uint32(value))
				}
			case OXMEtherDst:
				if oxmLength == 6 {
					r.SetEtherDst(net.HardwareAddr(value))
				}
			case OXMEtherSrc:
				if oxmLength == 6 {
					r.SetEtherSrc(net.HardwareAddr(value))
				}
			case OXMEtherType:
				if oxmLength == 2 {
					r.SetEtherType(binary.BigEndian.Uint16(value))
				}
			}
		}
		payload = payload[4+oxmLength:]
	}

	return nil
}
