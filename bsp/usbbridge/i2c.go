// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// The MCP2221A I²C engine handles framing; this file maps periph's bus
// semantics onto its command set. A write-then-read transaction uses a
// no-stop write followed by a repeated-start read, so register reads are
// a single bus transaction as the codecs require.

package usbbridge

import (
	"fmt"

	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/physic"
)

type i2cBus struct {
	b *Bridge
}

// Close aborts any transfer in flight. The bridge stays open.
func (d *i2cBus) Close() error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	return d.b.cancel()
}

// Duplex implements conn.Conn.
func (d *i2cBus) Duplex() conn.Duplex {
	return conn.Half
}

func (d *i2cBus) String() string {
	return d.b.name
}

// SetSpeed implements i2c.Bus.
func (d *i2cBus) SetSpeed(f physic.Frequency) error {
	if f > 400*physic.KiloHertz {
		return fmt.Errorf("usbbridge: invalid speed %s; maximum supported clock is 400kHz", f)
	}
	if f < 47*physic.KiloHertz {
		return fmt.Errorf("usbbridge: invalid speed %s; minimum supported clock is 47kHz; did you forget to multiply by physic.KiloHertz?", f)
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	return d.b.setSpeed(uint32(f / physic.Hertz))
}

// Tx implements i2c.Bus.
func (d *i2cBus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("usbbridge: invalid address %#x; 10-bit addressing is not supported", addr)
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	switch {
	case len(w) != 0 && len(r) != 0:
		if err := d.b.i2cWrite(cmdI2CWriteNoStop, addr, w); err != nil {
			return err
		}
		return d.b.i2cRead(cmdI2CReadRep, addr, r)
	case len(w) != 0:
		return d.b.i2cWrite(cmdI2CWrite, addr, w)
	case len(r) != 0:
		return d.b.i2cRead(cmdI2CRead, addr, r)
	}
	return nil
}

var _ i2c.BusCloser = &i2cBus{}
