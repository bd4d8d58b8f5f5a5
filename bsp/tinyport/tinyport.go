// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tinyport bridges a TinyGo I²C bus into the periph.io world.
//
// TinyGo's machine.I2C satisfies the tinygo.org/x/drivers I2C interface,
// whose Tx signature matches periph's i2c.Bus. Wrapping it lets i2cport
// and the device drivers run unmodified on a microcontroller build.
package tinyport

import (
	"errors"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/physic"
	"tinygo.org/x/drivers"
)

// New wraps b as a periph i2c.Bus.
func New(b drivers.I2C) *Bus {
	return &Bus{b: b}
}

// Bus is a periph i2c.Bus over a TinyGo bus.
type Bus struct {
	b drivers.I2C
}

func (b *Bus) String() string {
	return "tinygo-i2c"
}

// Tx implements i2c.Bus.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return b.b.Tx(addr, w, r)
}

// SetSpeed implements i2c.Bus.
//
// The clock is fixed by machine.I2C.Configure; there is no portable way
// to change it afterwards.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	return errors.New("tinyport: bus speed is fixed at machine configuration time")
}

var _ i2c.Bus = &Bus{}
