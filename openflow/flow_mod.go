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

type FlowMod struct {
	Message
	command     uint8
	cookie      uint64
	cookieMask  uint64
	tableID     uint8
	idleTimeout uint16
	hardTimeout uint16
	priority    uint16
	outPort     uint32
	outGroup    uint32
	flags       uint16
	match       *Match
	actions     []*Action
}

func NewFlowMod(command uint8) *FlowMod {
	return &FlowMod{
		Message:  NewMessage(OFPT_FLOW_MOD, NextXID()),
		command:  command,
		match:    NewMatch(),
		outPort:  PortAny,
		outGroup: GroupAny,
	}
}

func (r *FlowMod) Cookie() uint64 {
	return r.cookie
}

func (r *FlowMod) SetCookie(cookie uint64) {
	r.cookie = cookie
}

func (r *FlowMod) SetCookieMask(mask uint64) {
	r.cookieMask = mask
}

func (r *FlowMod) SetTableID(id uint8) {
	r.tableID = id
}

func (r *FlowMod) SetIdleTimeout(timeout uint16) {
	r.idleTimeout = timeout
}

func (r *FlowMod) SetHardTimeout(timeout uint16) {
	r.hardTimeout = timeout
}

func (r *FlowMod) SetPriority(priority uint16) {
	r.priority = priority
}

// SetOutPort restricts a flow delete to entries that forward out of port.
func (r *FlowMod) SetOutPort(port uint32) {
	r.outPort = port
}

func (r *FlowMod) SetFlags(flags uint16) {
	r.flags = flags
}

func (r *FlowMod) SetFlowMatch(match *Match) {
	if match == nil {
		panic("flow match is nil")
	}
	r.match = match
}

func (r *FlowMod) AddAction(action *Action) {
	if action == nil {
		panic("action is nil")
	}
	r.actions = append(r.actions, action)
}

func (r *FlowMod) MarshalBinary() ([]byte, error) {
	v := make([]byte, 40)
	binary.BigEndian.PutUint64(v[0:8], r.cookie)
	binary.BigEndian.PutUint64(v[8:16], r.cookieMask)
	v[16] = r.tableID
	v[17] = r.command
	binary.BigEndian.PutUint16(v[18:20], r.idleTimeout)
	binary.BigEndian.PutUint16(v[20:22], r.hardTimeout)
	binary.BigEndian.PutUint16(v[22:24], r.priority)
	binary.BigEndian.PutUint32(v[24:28], NoBuffer)
	binary.BigEndian.PutUint32(v[28:32], r.outPort)
	binary.BigEndian.PutUint32(v[32:36], r.outGroup)
	binary.BigEndian.PutUint16(v[36:38], r.flags)
	// v[38:40] is padding

	match, err := r.match.MarshalBinary()
	if err != nil {
		return nil, err
	}
	v = append(v, match...)

	if len(r.actions) > 0 {
		inst, err := marshalApplyActions(r.actions)
		if err != nil {
			return nil, err
		}
		v = append(v, inst...)
	}
	r.SetPayload(v)

	return r.Message.MarshalBinary()
}
