// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2cport implements the control port over an I²C bus.
//
// Cirrus codecs use 32-bit register addressing over I²C: a write
// transaction carries the register address MSB-first followed by data
// bytes, a read issues the address then a repeated-start read. Any
// periph.io i2c.Bus works, including the bridge buses registered by
// usbbridge.
package i2cport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/physic"

	"github.com/koffes/sdk-mcu-drivers/bsp"
)

// Opts configures the port.
type Opts struct {
	// Addr is the device's I²C address.
	Addr uint16
	// Speed, if set, reconfigures the bus clock before first use.
	Speed physic.Frequency
}

// DefaultOpts matches a CS40L25 strapped to its default address.
var DefaultOpts = Opts{Addr: 0x40}

// New returns a control port reaching the device at opts.Addr on bus b.
func New(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Addr == 0 || opts.Addr > 0x3FF {
		return nil, fmt.Errorf("i2cport: invalid device address %#x", opts.Addr)
	}
	if opts.Speed != 0 {
		if err := b.SetSpeed(opts.Speed); err != nil {
			return nil, err
		}
	}
	return &Dev{c: i2c.Dev{Bus: b, Addr: opts.Addr}}, nil
}

// Dev is a control port over one I²C device.
//
// Dev reuses an internal buffer for bulk writes and is not safe for
// concurrent use.
type Dev struct {
	c   i2c.Dev
	buf []byte
}

func (d *Dev) String() string {
	return d.c.String()
}

// ReadReg implements bsp.Port.
func (d *Dev) ReadReg(reg uint32) (uint32, error) {
	var buf [4]byte
	if err := d.ReadBulk(reg, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteReg implements bsp.Port.
func (d *Dev) WriteReg(reg, val uint32) error {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], reg)
	binary.BigEndian.PutUint32(buf[4:], val)
	return d.c.Tx(buf[:], nil)
}

// ReadBulk implements bsp.Port.
//
// The read is a single transaction: address write, then a repeated-start
// read of len(p) bytes.
func (d *Dev) ReadBulk(reg uint32, p []byte) error {
	if len(p)%4 != 0 {
		return errors.New("i2cport: bulk read length must be a multiple of 4")
	}
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], reg)
	return d.c.Tx(a[:], p)
}

// WriteBulk implements bsp.Port.
//
// The register address and payload go out in one transaction so the
// device sees an uninterrupted auto-incrementing burst.
func (d *Dev) WriteBulk(reg uint32, p []byte) error {
	if len(p)%4 != 0 {
		return errors.New("i2cport: bulk write length must be a multiple of 4")
	}
	need := 4 + len(p)
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	d.buf = d.buf[:need]
	binary.BigEndian.PutUint32(d.buf[:4], reg)
	copy(d.buf[4:], p)
	return d.c.Tx(d.buf, nil)
}

var _ bsp.Port = &Dev{}
