// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialbridge implements the control port over a UART bridge
// MCU.
//
// Some bring-up rigs put a small MCU between the host and the codec; the
// host speaks a framed protocol over the serial line and the MCU proxies
// register traffic to the codec's bus. Frames follow the Klipper MCU
// convention:
//
//	[len][seq][payload...][crc16 hi][crc16 lo][0x7E]
//
// len counts the whole frame, seq is 0x10|n with a 4-bit sequence
// number echoed by the MCU, and the CRC-16 covers everything before the
// trailer. The payload is one operation: register read/write, bulk
// read/write, codec reset pulse, or ping. Bulk transfers longer than a
// frame are split across frames relying on the codec's auto-increment
// addressing. There are no retries at this layer: a damaged or
// out-of-sequence response is an error and retry policy stays with the
// caller.
package serialbridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/koffes/sdk-mcu-drivers/bsp"
)

const (
	frameOverhead = 5    // len, seq, crc16, sync
	frameMax      = 64   // largest frame the MCU accepts
	syncByte      = 0x7E
	seqBase       = 0x10
	seqMask       = 0x0F

	opPing      = 0x01
	opWriteReg  = 0x02
	opReadReg   = 0x03
	opWriteBulk = 0x04
	opReadBulk  = 0x05
	opReset     = 0x06

	// maxChunk is the largest bulk payload per frame: 64 byte frame,
	// minus overhead, opcode and register, rounded down to a word.
	maxChunk = 52
)

// ErrTimeout is returned when the MCU stops answering.
var ErrTimeout = errors.New("serialbridge: timeout waiting for bridge")

// crc16 is the CRC-16/CCITT variant used by Klipper MCUs.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// Opts configures the serial link.
type Opts struct {
	// Baud is the line rate.
	Baud int
	// ReadTimeout bounds how long a response may take.
	ReadTimeout time.Duration
}

// DefaultOpts matches the stock bridge firmware.
var DefaultOpts = Opts{Baud: 250000, ReadTimeout: time.Second}

// Open opens the bridge on the named serial port.
func Open(name string, opts *Opts) (*Bridge, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: opts.Baud, ReadTimeout: opts.ReadTimeout})
	if err != nil {
		return nil, fmt.Errorf("serialbridge: %w", err)
	}
	return newBridge(p, name), nil
}

func newBridge(rw io.ReadWriteCloser, name string) *Bridge {
	return &Bridge{rw: rw, name: name}
}

// Bridge is a control port over one serial bridge MCU.
//
// Bridge is not safe for concurrent use.
type Bridge struct {
	rw   io.ReadWriteCloser
	name string
	seq  byte
	buf  [frameMax]byte
}

func (b *Bridge) String() string {
	return b.name
}

// Close closes the serial port.
func (b *Bridge) Close() error {
	return b.rw.Close()
}

// Ping verifies the link and the bridge firmware are alive.
func (b *Bridge) Ping() error {
	_, err := b.roundTrip(opPing, nil, 0)
	return err
}

// ResetDevice pulses the codec's reset line.
func (b *Bridge) ResetDevice() error {
	_, err := b.roundTrip(opReset, nil, 0)
	return err
}

// ReadReg implements bsp.Port.
func (b *Bridge) ReadReg(reg uint32) (uint32, error) {
	var req [4]byte
	binary.BigEndian.PutUint32(req[:], reg)
	rsp, err := b.roundTrip(opReadReg, req[:], 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(rsp), nil
}

// WriteReg implements bsp.Port.
func (b *Bridge) WriteReg(reg, val uint32) error {
	var req [8]byte
	binary.BigEndian.PutUint32(req[:4], reg)
	binary.BigEndian.PutUint32(req[4:], val)
	_, err := b.roundTrip(opWriteReg, req[:], 0)
	return err
}

// ReadBulk implements bsp.Port.
func (b *Bridge) ReadBulk(reg uint32, p []byte) error {
	if len(p)%4 != 0 {
		return errors.New("serialbridge: bulk read length must be a multiple of 4")
	}
	for pos := 0; pos < len(p); pos += maxChunk {
		n := len(p) - pos
		if n > maxChunk {
			n = maxChunk
		}
		var req [5]byte
		binary.BigEndian.PutUint32(req[:4], reg+uint32(pos))
		req[4] = byte(n)
		rsp, err := b.roundTrip(opReadBulk, req[:], n)
		if err != nil {
			return err
		}
		copy(p[pos:], rsp)
	}
	return nil
}

// WriteBulk implements bsp.Port.
func (b *Bridge) WriteBulk(reg uint32, p []byte) error {
	if len(p)%4 != 0 {
		return errors.New("serialbridge: bulk write length must be a multiple of 4")
	}
	for pos := 0; pos < len(p); pos += maxChunk {
		n := len(p) - pos
		if n > maxChunk {
			n = maxChunk
		}
		req := make([]byte, 4+n)
		binary.BigEndian.PutUint32(req[:4], reg+uint32(pos))
		copy(req[4:], p[pos:pos+n])
		if _, err := b.roundTrip(opWriteBulk, req, 0); err != nil {
			return err
		}
	}
	return nil
}

// roundTrip sends one operation frame and returns the response payload
// after the echoed opcode and status byte. wantLen is the expected
// payload length, 0 for status-only responses.
func (b *Bridge) roundTrip(op byte, req []byte, wantLen int) ([]byte, error) {
	if len(req)+1+frameOverhead > frameMax {
		return nil, fmt.Errorf("serialbridge: request op %#02x too large", op)
	}
	seq := seqBase | (b.seq & seqMask)
	total := len(req) + 1 + frameOverhead
	f := b.buf[:0]
	f = append(f, byte(total), seq, op)
	f = append(f, req...)
	crc := crc16(f)
	f = append(f, byte(crc>>8), byte(crc), syncByte)
	if _, err := b.rw.Write(f); err != nil {
		return nil, fmt.Errorf("serialbridge: %w", err)
	}
	rsp, err := b.readFrame(seq)
	if err != nil {
		return nil, err
	}
	if len(rsp) < 2 || rsp[0] != op {
		return nil, fmt.Errorf("serialbridge: mismatched response to op %#02x", op)
	}
	if rsp[1] != 0 {
		return nil, fmt.Errorf("serialbridge: op %#02x failed on bridge (status %d)", op, rsp[1])
	}
	if len(rsp)-2 != wantLen {
		return nil, fmt.Errorf("serialbridge: op %#02x returned %d bytes, want %d", op, len(rsp)-2, wantLen)
	}
	b.seq++
	return rsp[2:], nil
}

// readFrame reads one response frame and validates length, sequence
// echo, CRC and trailer.
func (b *Bridge) readFrame(seq byte) ([]byte, error) {
	hdr := b.buf[:2]
	if err := b.readFull(hdr); err != nil {
		return nil, err
	}
	total := int(hdr[0])
	if total < frameOverhead || total > frameMax {
		return nil, fmt.Errorf("serialbridge: bad frame length %d", total)
	}
	if hdr[1] != seq {
		return nil, fmt.Errorf("serialbridge: sequence slip: sent %#02x, got %#02x", seq, hdr[1])
	}
	rest := b.buf[2:total]
	if err := b.readFull(rest); err != nil {
		return nil, err
	}
	if b.buf[total-1] != syncByte {
		return nil, errors.New("serialbridge: missing frame trailer")
	}
	want := uint16(b.buf[total-3])<<8 | uint16(b.buf[total-2])
	if got := crc16(b.buf[:total-3]); got != want {
		return nil, fmt.Errorf("serialbridge: crc mismatch: %#04x != %#04x", got, want)
	}
	return b.buf[2 : total-3], nil
}

// readFull fills p, treating an idle line (zero-byte reads after the
// port's timeout) as ErrTimeout.
func (b *Bridge) readFull(p []byte) error {
	pos := 0
	for pos < len(p) {
		n, err := b.rw.Read(p[pos:])
		if err != nil {
			return fmt.Errorf("serialbridge: %w", err)
		}
		if n == 0 {
			return ErrTimeout
		}
		pos += n
	}
	return nil
}

var _ bsp.PortCloser = &Bridge{}
