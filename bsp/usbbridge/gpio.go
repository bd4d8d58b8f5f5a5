// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// GP0-GP3 as periph GPIOs. The pins must be strapped to GPIO mode in the
// bridge's flash configuration; pins assigned to alternate functions
// report an error on access.

package usbbridge

import (
	"errors"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/physic"
)

// Pin is one of the bridge's GP pins.
type Pin struct {
	n   string
	num int
	b   *Bridge
}

// String implements conn.Resource.
func (p *Pin) String() string {
	return p.n
}

// Halt implements conn.Resource.
func (p *Pin) Halt() error {
	return nil
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return p.n
}

// Number implements pin.Pin.
func (p *Pin) Number() int {
	return p.num
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	level, input, err := p.b.gpioGet(p.num)
	if err != nil {
		return "N/A"
	}
	s := "Out/"
	if input {
		s = "In/"
	}
	if level {
		return s + "High"
	}
	return s + "Low"
}

// In implements gpio.PinIn.
func (p *Pin) In(pull gpio.Pull, e gpio.Edge) error {
	if e != gpio.NoEdge {
		// Edge reporting needs the interrupt-on-change alternate mode,
		// which steals the pin from GPIO use.
		return errors.New("usbbridge: edge triggering is not supported")
	}
	if pull != gpio.Float && pull != gpio.PullNoChange {
		return errors.New("usbbridge: pull is not supported")
	}
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return p.b.gpioIn(p.num)
}

// Read implements gpio.PinIn.
func (p *Pin) Read() gpio.Level {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	level, _, err := p.b.gpioGet(p.num)
	if err != nil {
		return gpio.Low
	}
	return gpio.Level(level)
}

// WaitForEdge implements gpio.PinIn.
func (p *Pin) WaitForEdge(t time.Duration) bool {
	return false
}

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull {
	return gpio.Float
}

// Pull implements gpio.PinIn.
func (p *Pin) Pull() gpio.Pull {
	return gpio.Float
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return p.b.gpioOut(p.num, bool(l))
}

// PWM implements gpio.PinOut.
func (p *Pin) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("usbbridge: not implemented")
}

var _ gpio.PinIO = &Pin{}
