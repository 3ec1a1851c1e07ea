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

type FeaturesRequest struct {
	Message
}

func NewFeaturesRequest() *FeaturesRequest {
	return &FeaturesRequest{
		Message: NewMessage(OFPT_FEATURES_REQUEST, NextXID()),
	}
}

type FeaturesReply struct {
	Message
	dpid       uint64
	numBuffers uint32
	numTables  uint8
	auxID      uint8
}

func (r *FeaturesReply) DPID() uint64 {
	return r.dpid
}

func (r *FeaturesReply) NumBuffers() uint32 {
	return r.numBuffers
}

func (r *FeaturesReply) NumTables() uint8 {
	return r.numTables
}

// AuxID is zero on the main connection of a switch.
func (r *FeaturesReply) AuxID() uint8 {
	return r.auxID
}

func (r *FeaturesReply) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < 24 {
		return ErrInvalidPacketLength
	}
	r.dpid = binary.BigEndian.Uint64(payload[0:8])
	r.numBuffers = binary.BigEndian.Uint32(payload[8:12])
	r.numTables = payload[12]
	r.auxID = payload[13]

	return nil
}
