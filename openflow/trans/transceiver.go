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

package trans

import (
	"context"
	"encoding"
	"encoding/binary"
	"sync"
	"time"

	"github.com/superkkt/maple/openflow"

	"github.com/pkg/errors"
)

const (
	// Allowed idle time before we send an echo request to a switch (in seconds).
	maxIdleTime = 30
	// I/O timeouts in seconds. These should be shorter than maxIdleTime.
	readTimeout  = 1
	writeTimeout = readTimeout * 2
)

type Writer interface {
	Write(msg encoding.BinaryMarshaler) error
}

// Handler receives the decoded messages of a switch connection.
type Handler interface {
	OnHello(Writer, *openflow.Hello) error
	OnError(Writer, *openflow.Error) error
	OnFeaturesReply(Writer, *openflow.FeaturesReply) error
	OnPortStatus(Writer, *openflow.PortStatus) error
	OnFlowRemoved(Writer, *openflow.FlowRemoved) error
	OnPacketIn(Writer, *openflow.PacketIn) error
	OnMultipartReply(Writer, *openflow.MultipartReply) error
	OnBarrierReply(Writer, *openflow.BarrierReply) error
}

// Transceiver reads OpenFlow messages from a switch connection, keeps the
// connection alive with echo requests, and dispatches decoded messages to
// its handler. It only speaks OpenFlow 1.3.
type Transceiver struct {
	stream    *Stream
	observer  Handler
	writeLock sync.Mutex
	// Last time we received anything from the switch.
	timestamp   time.Time
	latency     time.Duration
	pingCounter uint
	negotiated  bool
	closed      bool
}

func NewTransceiver(stream *Stream, handler Handler) *Transceiver {
	if stream == nil {
		panic("stream is nil")
	}
	if handler == nil {
		panic("handler is nil")
	}

	return &Transceiver{
		stream:   stream,
		observer: handler,
	}
}

// Latency returns the network latency measured by the last echo exchange.
func (r *Transceiver) Latency() time.Duration {
	return r.latency
}

func (r *Transceiver) negotiate(packet []byte) error {
	// The first message should be HELLO.
	if packet[1] != openflow.OFPT_HELLO {
		return errors.New("negotiation error: missing HELLO message")
	}
	// The switch has to support at least OpenFlow 1.3.
	if packet[0] < openflow.Version {
		return openflow.ErrUnsupportedVersion
	}
	r.negotiated = true

	return nil
}

func isTimeout(err error) bool {
	type Timeout interface {
		Timeout() bool
	}

	if v, ok := errors.Cause(err).(Timeout); ok {
		return v.Timeout()
	}

	return false
}

func (r *Transceiver) ping() error {
	if time.Now().Before(r.timestamp.Add(maxIdleTime * time.Second)) {
		return nil
	}

	if r.pingCounter > 2 {
		return errors.New("device does not respond to our echo request")
	}
	echo := openflow.NewEchoRequest()
	// The current timestamp piggybacks on the echo to measure latency.
	timestamp, err := time.Now().GobEncode()
	if err != nil {
		return err
	}
	echo.SetData(timestamp)
	if err := r.Write(echo); err != nil {
		return errors.Wrap(err, "failed to send ECHO_REQUEST message")
	}
	r.pingCounter++

	return nil
}

func (r *Transceiver) Run(ctx context.Context) error {
	r.stream.SetReadTimeout(readTimeout * time.Second)
	r.stream.SetWriteTimeout(writeTimeout * time.Second)

	packet, err := r.readPacket()
	if err != nil {
		return err
	}
	if err := r.negotiate(packet); err != nil {
		return err
	}

	// Infinite loop
	for {
		if err := r.dispatch(packet); err != nil {
			return err
		}
		r.timestamp = time.Now()
		r.pingCounter = 0

	retry:
		// Check shutdown signal
		select {
		case <-ctx.Done():
			return errors.New("closed by the context done signal")
		default:
		}

		packet, err = r.readPacket()
		if err == nil {
			continue
		}
		// Socket read timeouts are expected on an idle connection.
		if !isTimeout(err) {
			return err
		}
		if err := r.ping(); err != nil {
			return err
		}
		goto retry
	}
}

func (r *Transceiver) readPacket() ([]byte, error) {
	header, err := r.stream.Peek(8) // peek ofp_header
	if err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(header[2:4])
	if length < 8 {
		return nil, openflow.ErrInvalidPacketLength
	}

	return r.stream.ReadN(int(length))
}

func (r *Transceiver) Write(msg encoding.BinaryMarshaler) error {
	packet, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	// Writes from the message loop and from northbound callers interleave.
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.stream.Write(packet); err != nil {
		return err
	}

	return nil
}

func (r *Transceiver) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	return r.stream.Close()
}

func (r *Transceiver) dispatch(packet []byte) error {
	if packet[0] != openflow.Version {
		return openflow.ErrUnsupportedVersion
	}

	switch packet[1] {
	case openflow.OFPT_HELLO:
		v := new(openflow.Hello)
		if err := v.UnmarshalBinary(packet); err != nil {
			return err
		}
		return r.observer.OnHello(r, v)
	case openflow.OFPT_ERROR:
		v := new(openflow.Error)
		if err := v.UnmarshalBinary(packet); err != nil {
			return err
		}
		return r.observer.OnError(r, v)
	case openflow.OFPT_ECHO_REQUEST:
		return r.handleEchoRequest(packet)
	case openflow.OFPT_ECHO_REPLY:
		return r.handleEchoReply(packet)
	case openflow.OFPT_FEATURES_REPLY:
		v := new(openflow.FeaturesReply)
		if err := v.UnmarshalBinary(packet); err != nil {
			return err
		}
		return r.observer.OnFeaturesReply(r, v)
	case openflow.OFPT_PORT_STATUS:
		v := new(openflow.PortStatus)
		if err := v.UnmarshalBinary(packet); err != nil {
			return err
		}
		return r.observer.OnPortStatus(r, v)
	case openflow.OFPT_FLOW_REMOVED:
		v := new(openflow.FlowRemoved)
		if err := v.UnmarshalBinary(packet); err != nil {
			return err
		}
		return r.observer.OnFlowRemoved(r, v)
	case openflow.OFPT_PACKET_IN:
		v := new(openflow.PacketIn)
		if err := v.UnmarshalBinary(packet); err != nil {
			return err
		}
		return r.observer.OnPacketIn(r, v)
	case openflow.OFPT_MULTIPART_REPLY:
		v := new(openflow.MultipartReply)
		if err := v.UnmarshalBinary(packet); err != nil {
			return err
		}
		return r.observer.OnMultipartReply(r, v)
	case openflow.OFPT_BARRIER_REPLY:
		v := new(openflow.BarrierReply)
		if err := v.UnmarshalBinary(packet); err != nil {
			return err
		}
		return r.observer.OnBarrierReply(r, v)
	default:
		// Silently drop the messages we are not interested in.
		return nil
	}
}

func (r *Transceiver) handleEchoRequest(packet []byte) error {
	v := new(openflow.EchoRequest)
	if err := v.UnmarshalBinary(packet); err != nil {
		return err
	}

	reply := openflow.NewEchoReply(v.TransactionID())
	reply.SetData(v.Data())

	return r.Write(reply)
}

func (r *Transceiver) handleEchoReply(packet []byte) error {
	v := new(openflow.EchoReply)
	if err := v.UnmarshalBinary(packet); err != nil {
		return err
	}

	data := v.Data()
	if len(data) > 0 {
		var timestamp time.Time
		if err := timestamp.GobDecode(data); err == nil {
			r.latency = time.Since(timestamp)
		}
	}
	r.pingCounter = 0

	return nil
}
