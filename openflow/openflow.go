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

// Package openflow implements the subset of the OpenFlow 1.3 wire protocol
// that this controller speaks: handshake, keepalive, flow modification,
// packet I/O, port status, and the port/flow statistics multiparts.
package openflow

import (
	"errors"
	"sync/atomic"
)

// Version is the only protocol version we negotiate.
const Version uint8 = 0x04 // OpenFlow 1.3

// Message types.
const (
	OFPT_HELLO            uint8 = 0
	OFPT_ERROR            uint8 = 1
	OFPT_ECHO_REQUEST     uint8 = 2
	OFPT_ECHO_REPLY       uint8 = 3
	OFPT_FEATURES_REQUEST uint8 = 5
	OFPT_FEATURES_REPLY   uint8 = 6
	OFPT_SET_CONFIG       uint8 = 9
	OFPT_PACKET_IN        uint8 = 10
	OFPT_FLOW_REMOVED     uint8 = 11
	OFPT_PORT_STATUS      uint8 = 12
	OFPT_PACKET_OUT       uint8 = 13
	OFPT_FLOW_MOD         uint8 = 14
	OFPT_MULTIPART_REQUEST uint8 = 18
	OFPT_MULTIPART_REPLY   uint8 = 19
	OFPT_BARRIER_REQUEST  uint8 = 20
	OFPT_BARRIER_REPLY    uint8 = 21
)

// Multipart types.
const (
	OFPMP_FLOW       uint16 = 1
	OFPMP_PORT_STATS uint16 = 4
	OFPMP_PORT_DESC  uint16 = 13
)

// Reserved port numbers.
const (
	// Maximum number of a physical switch port.
	PortMax uint32 = 0xFFFFFF00
	// Send the packet out all ports except the ingress one.
	PortFlood uint32 = 0xFFFFFFFB
	// Forward the packet to the controller.
	PortController uint32 = 0xFFFFFFFD
	// Wildcard port used only for flow delete and stats requests.
	PortAny uint32 = 0xFFFFFFFF
)

// Flow mod commands.
const (
	FlowAdd    uint8 = 0
	FlowDelete uint8 = 3
)

// Flow mod flags.
const (
	// Ask the switch to send a FLOW_REMOVED message when the flow expires.
	FlagSendFlowRemoved uint16 = 1 << 0
	// Reject an overlapping flow entry instead of silently replacing it.
	FlagCheckOverlap uint16 = 1 << 1
)

const (
	// No buffered packet is associated with the message.
	NoBuffer uint32 = 0xFFFFFFFF
	// Wildcard table ID used only for flow delete.
	TableAll uint8 = 0xFF
	// Wildcard group number.
	GroupAny uint32 = 0xFFFFFFFF
)

var (
	ErrInvalidPacketLength = errors.New("invalid packet length")
	ErrUnsupportedVersion  = errors.New("unsupported protocol version")
	ErrUnsupportedMessage  = errors.New("unsupported message type")
)

var xid uint32

// NextXID returns a transaction ID that is unique within this process.
func NextXID() uint32 {
	return atomic.AddUint32(&xid, 1)
}
