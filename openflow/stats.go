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

func marshalMultipartRequest(xid uint32, mpType uint16, body []byte) ([]byte, error) {
	msg := NewMessage(OFPT_MULTIPART_REQUEST, xid)
	v := make([]byte, 8+len(body))
	binary.BigEndian.PutUint16(v[0:2], mpType)
	// v[2:4] flags, v[4:8] padding
	copy(v[8:], body)
	msg.SetPayload(v)

	return msg.MarshalBinary()
}

// PortStatsRequest queries the counters of all ports of a switch.
type PortStatsRequest struct {
	Message
}

func NewPortStatsRequest() *PortStatsRequest {
	return &PortStatsRequest{
		Message: NewMessage(OFPT_MULTIPART_REQUEST, NextXID()),
	}
}

func (r *PortStatsRequest) MarshalBinary() ([]byte, error) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint32(body[0:4], PortAny)

	return marshalMultipartRequest(r.TransactionID(), OFPMP_PORT_STATS, body)
}

// FlowStatsRequest queries all flow entries of all tables of a switch.
type FlowStatsRequest struct {
	Message
}

func NewFlowStatsRequest() *FlowStatsRequest {
	return &FlowStatsRequest{
		Message: NewMessage(OFPT_MULTIPART_REQUEST, NextXID()),
	}
}

func (r *FlowStatsRequest) MarshalBinary() ([]byte, error) {
	match, err := NewMatch().MarshalBinary()
	if err != nil {
		return nil, err
	}

	body := make([]byte, 32)
	body[0] = TableAll
	// body[1:4] is padding
	binary.BigEndian.PutUint32(body[4:8], PortAny)
	binary.BigEndian.PutUint32(body[8:12], GroupAny)
	// body[12:16] padding, body[16:32] cookie and mask (zero = any)
	body = append(body, match...)

	return marshalMultipartRequest(r.TransactionID(), OFPMP_FLOW, body)
}

// PortDescRequest queries the port descriptions of a switch.
type PortDescRequest struct {
	Message
}

func NewPortDescRequest() *PortDescRequest {
	return &PortDescRequest{
		Message: NewMessage(OFPT_MULTIPART_REQUEST, NextXID()),
	}
}

func (r *PortDescRequest) MarshalBinary() ([]byte, error) {
	return marshalMultipartRequest(r.TransactionID(), OFPMP_PORT_DESC, nil)
}

// PortStats is a single ofp_port_stats record.
type PortStats struct {
	PortNo    uint32
	RxPackets uint64
	TxPackets uint64
	RxBytes   uint64
	TxBytes   uint64
	RxDropped uint64
	TxDropped uint64
	RxErrors  uint64
	TxErrors  uint64
	// Time the port has been alive in seconds.
	DurationSec uint32
}

// FlowStats is a single ofp_flow_stats record.
type FlowStats struct {
	TableID     uint8
	DurationSec uint32
	Priority    uint16
	IdleTimeout uint16
	HardTimeout uint16
	Cookie      uint64
	PacketCount uint64
	ByteCount   uint64
	Match       *Match
}

// MultipartReply is a decoded OFPT_MULTIPART_REPLY message. Only one of the
// record slices is populated, depending on the multipart type.
type MultipartReply struct {
	Message
	mpType    uint16
	ports     []*Port
	portStats []*PortStats
	flowStats []*FlowStats
}

func (r *MultipartReply) MultipartType() uint16 {
	return r.mpType
}

func (r *MultipartReply) Ports() []*Port {
	return r.ports
}

func (r *MultipartReply) PortStats() []*PortStats {
	return r.portStats
}

func (r *MultipartReply) FlowStats() []*FlowStats {
	return r.flowStats
}

func (r *MultipartReply) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < 8 {
		return ErrInvalidPacketLength
	}
	r.mpType = binary.BigEndian.Uint16(payload[0:2])
	body := payload[8:]

	switch r.mpType {
	case OFPMP_PORT_DESC:
		return r.unmarshalPortDesc(body)
	case OFPMP_PORT_STATS:
		return r.unmarshalPortStats(body)
	case OFPMP_FLOW:
		return r.unmarshalFlowStats(body)
	default:
		// This controller never asks for other multipart types.
		return nil
	}
}

func (r *MultipartReply) unmarshalPortDesc(body []byte) error {
	for len(body) >= 64 {
		port := new(Port)
		if err := port.UnmarshalBinary(body[:64]); err != nil {
			return err
		}
		r.ports = append(r.ports, port)
		body = body[64:]
	}

	return nil
}

func (r *MultipartReply) unmarshalPortStats(body []byte) error {
	// ofp_port_stats is 112 bytes long.
	for len(body) >= 112 {
		v := &PortStats{
			PortNo:      binary.BigEndian.Uint32(body[0:4]),
			RxPackets:   binary.BigEndian.Uint64(body[8:16]),
			TxPackets:   binary.BigEndian.Uint64(body[16:24]),
			RxBytes:     binary.BigEndian.Uint64(body[24:32]),
			TxBytes:     binary.BigEndian.Uint64(body[32:40]),
			RxDropped:   binary.BigEndian.Uint64(body[40:48]),
			TxDropped:   binary.BigEndian.Uint64(body[48:56]),
			RxErrors:    binary.BigEndian.Uint64(body[56:64]),
			TxErrors:    binary.BigEndian.Uint64(body[64:72]),
			DurationSec: binary.BigEndian.Uint32(body[104:108]),
		}
		r.portStats = append(r.portStats, v)
		body = body[112:]
	}

	return nil
}

func (r *MultipartReply) unmarshalFlowStats(body []byte) error {
	for len(body) >= 56 {
		length := int(binary.BigEndian.Uint16(body[0:2]))
		if length < 56 || length > len(body) {
			return ErrInvalidPacketLength
		}

		v := &FlowStats{
			TableID:     body[2],
			DurationSec: binary.BigEndian.Uint32(body[4:8]),
			Priority:    binary.BigEndian.Uint16(body[12:14]),
			IdleTimeout: binary.BigEndian.Uint16(body[14:16]),
			HardTimeout: binary.BigEndian.Uint16(body[16:18]),
			Cookie:      binary.BigEndian.Uint64(body[24:32]),
			PacketCount: binary.BigEndian.Uint64(body[32:40]),
			ByteCount:   binary.BigEndian.Uint64(body[40:48]),
			Match:       NewMatch(),
		}
		if err := v.Match.UnmarshalBinary(body[48:length]); err != nil {
			return err
		}
		r.flowStats = append(r.flowStats, v)
		body = body[length:]
	}

	return nil
}
