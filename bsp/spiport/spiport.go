// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package spiport implements the control port over a SPI bus.
//
// Cirrus codecs frame SPI as full 32-bit words: an address word with the
// read flag in bit 31, one zero padding word for bus turnaround, then
// data words. Everything is MSB-first, mode 0, 8 bits per word.
package spiport

import (
	"encoding/binary"
	"errors"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"

	"github.com/koffes/sdk-mcu-drivers/bsp"
)

// readFlag marks the address word of a read transaction.
const readFlag = 0x80000000

// Opts configures the port.
type Opts struct {
	// Speed is the bus clock. Cirrus parts accept up to 12.5MHz for
	// register access.
	Speed physic.Frequency
	// Mode is the SPI mode, normally spi.Mode0.
	Mode spi.Mode
}

// DefaultOpts is a safe configuration for bring-up wiring.
var DefaultOpts = Opts{Speed: 4 * physic.MegaHertz, Mode: spi.Mode0}

// New connects to the device on SPI port p.
func New(p spi.Port, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Speed == 0 {
		return nil, errors.New("spiport: speed is required")
	}
	c, err := p.Connect(opts.Speed, opts.Mode, 8)
	if err != nil {
		return nil, err
	}
	return &Dev{c: c}, nil
}

// Dev is a control port over one SPI device.
//
// Dev reuses internal transfer buffers and is not safe for concurrent
// use.
type Dev struct {
	c  spi.Conn
	tx []byte
	rx []byte
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
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], val)
	return d.WriteBulk(reg, buf[:])
}

// ReadBulk implements bsp.Port.
func (d *Dev) ReadBulk(reg uint32, p []byte) error {
	if len(p)%4 != 0 {
		return errors.New("spiport: bulk read length must be a multiple of 4")
	}
	n := 8 + len(p)
	d.grow(n)
	binary.BigEndian.PutUint32(d.tx[:4], reg|readFlag)
	for i := 4; i < n; i++ {
		d.tx[i] = 0
	}
	if err := d.c.Tx(d.tx[:n], d.rx[:n]); err != nil {
		return err
	}
	copy(p, d.rx[8:n])
	return nil
}

// WriteBulk implements bsp.Port.
func (d *Dev) WriteBulk(reg uint32, p []byte) error {
	if len(p)%4 != 0 {
		return errors.New("spiport: bulk write length must be a multiple of 4")
	}
	n := 8 + len(p)
	d.grow(n)
	binary.BigEndian.PutUint32(d.tx[:4], reg&^uint32(readFlag))
	for i := 4; i < 8; i++ {
		d.tx[i] = 0
	}
	copy(d.tx[8:n], p)
	return d.c.Tx(d.tx[:n], nil)
}

func (d *Dev) grow(n int) {
	if cap(d.tx) < n {
		d.tx = make([]byte, n)
		d.rx = make([]byte, n)
	}
	d.tx = d.tx[:cap(d.tx)]
	d.rx = d.rx[:cap(d.rx)]
}

var _ bsp.Port = &Dev{}
