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
	"bufio"
	"io"
	"time"
)

// Stream is a buffered I/O channel with optional read and write deadlines.
type Stream struct {
	channel      io.ReadWriteCloser
	reader       *bufio.Reader
	readTimeout  time.Duration
	writeTimeout time.Duration
}

type Deadline interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

func NewStream(channel io.ReadWriteCloser) *Stream {
	return &Stream{
		channel: channel,
		reader:  bufio.NewReaderSize(channel, 0xFFFF),
	}
}

// SetReadTimeout sets the read timeout of the underlying channel if the
// channel implements the Deadline interface.
func (r *Stream) SetReadTimeout(t time.Duration) {
	r.readTimeout = t
}

// SetWriteTimeout sets the write timeout of the underlying channel if the
// channel implements the Deadline interface.
func (r *Stream) SetWriteTimeout(t time.Duration) {
	r.writeTimeout = t
}

func (r *Stream) armReadDeadline() func() {
	d, ok := r.channel.(Deadline)
	if !ok || r.readTimeout == 0 {
		return func() {}
	}
	d.SetReadDeadline(time.Now().Add(r.readTimeout))

	return func() { d.SetReadDeadline(time.Time{}) }
}

// Peek returns the next n bytes without advancing the reader.
func (r *Stream) Peek(n int) (p []byte, err error) {
	disarm := r.armReadDeadline()
	defer disarm()

	return r.reader.Peek(n)
}

// ReadN reads exactly n bytes. It returns a non-nil error and consumes
// nothing when fewer than n bytes are buffered in the socket.
func (r *Stream) ReadN(n int) (p []byte, err error) {
	disarm := r.armReadDeadline()
	defer disarm()

	if _, err := r.reader.Peek(n); err != nil {
		return nil, err
	}
	p = make([]byte, n)
	if _, err := io.ReadFull(r.reader, p); err != nil {
		return nil, err
	}

	return p, nil
}

func (r *Stream) Write(p []byte) (n int, err error) {
	if r.writeTimeout > 0 {
		if d, ok := r.channel.(Deadline); ok {
			d.SetWriteDeadline(time.Now().Add(r.writeTimeout))
			defer d.SetWriteDeadline(time.Time{})
		}
	}

	return r.channel.Write(p)
}

func (r *Stream) Close() error {
	return r.channel.Close()
}
