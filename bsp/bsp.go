// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bsp defines the control port used to reach a device's register
// file.
//
// Cirrus smart codecs expose one 32-bit register space over I²C or SPI;
// the same space is also reachable through USB or UART bridge MCUs on
// bring-up rigs. Port abstracts the four primitives every transport must
// provide so that drivers and the firmware loader run unchanged over any
// of them. Register addresses and values travel MSB-first on the wire;
// bulk payloads are raw firmware bytes written to consecutive addresses.
//
// The subpackages provide concrete ports: i2cport and spiport over
// periph.io buses, usbbridge over a USB HID-class bridge, serialbridge
// over a framed UART protocol, tinyport to adapt TinyGo-style buses, and
// bsptest for in-memory test doubles.
package bsp

import (
	"fmt"
	"io"
	"time"
)

// Port moves 32-bit register reads and writes to a device.
//
// Implementations do not retry and do not lock: callers own transaction
// ordering. ReadBulk and WriteBulk transfer len(p) bytes starting at reg;
// p must be a multiple of 4 bytes long.
type Port interface {
	// ReadReg reads one 32-bit register.
	ReadReg(reg uint32) (uint32, error)
	// WriteReg writes one 32-bit register.
	WriteReg(reg, val uint32) error
	// ReadBulk reads len(p) bytes starting at reg.
	ReadBulk(reg uint32, p []byte) error
	// WriteBulk writes len(p) bytes starting at reg.
	WriteBulk(reg uint32, p []byte) error
}

// PortCloser is a Port that owns its transport and must be closed after
// use.
type PortCloser interface {
	io.Closer
	Port
}

// Update reads reg, clears mask, sets val and writes the result back.
//
// val must be pre-shifted to its field position.
func Update(p Port, reg, mask, val uint32) error {
	v, err := p.ReadReg(reg)
	if err != nil {
		return err
	}
	n := v&^mask | val&mask
	if n == v {
		return nil
	}
	return p.WriteReg(reg, n)
}

// Poll reads reg until value&mask == want, waiting interval between
// attempts. It fails after tries attempts.
func Poll(p Port, reg, mask, want uint32, tries int, interval time.Duration) error {
	var v uint32
	for i := 0; i < tries; i++ {
		if i != 0 {
			time.Sleep(interval)
		}
		var err error
		if v, err = p.ReadReg(reg); err != nil {
			return err
		}
		if v&mask == want {
			return nil
		}
	}
	return fmt.Errorf("bsp: register %#08x stuck at %#08x, want %#08x (mask %#08x)", reg, v, want, mask)
}
