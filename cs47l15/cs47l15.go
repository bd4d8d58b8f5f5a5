// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cs47l15 controls a Cirrus Logic CS47L15 smart codec.
//
// The device carries an ADSP2 coprocessor that is programmed at runtime
// by streaming a fw_img firmware image into its memory windows. BootDSP
// loads such an image, StartDSP and StopDSP hand the core to and back
// from the loaded firmware.
//
// Dev (and the fwimg session inside it) is not safe for concurrent use;
// callers serialize access per device.
package cs47l15

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/physic"

	"github.com/koffes/sdk-mcu-drivers/bsp"
	"github.com/koffes/sdk-mcu-drivers/fwimg"
)

// ErrNoFirmware is returned by operations that need a booted DSP before
// BootDSP has succeeded.
var ErrNoFirmware = errors.New("cs47l15: dsp firmware not loaded")

// Opts holds the configuration for the device.
type Opts struct {
	// Reset, if set, is the line wired to the device's /RESET pin.
	// Without it Reset falls back to the soft reset register.
	Reset gpio.PinIO
	// ChunkSize is the firmware streaming window. 0 means
	// fwimg.DefaultChunkSize.
	ChunkSize int
	// OnProgress, if set, is called after each firmware block lands
	// during BootDSP.
	OnProgress func(fwimg.Progress)
}

// DefaultOpts is the recommended default configuration.
var DefaultOpts = Opts{ChunkSize: fwimg.DefaultChunkSize}

// New returns a CS47L15 driver on the given control port.
func New(p bsp.Port, opts *Opts) (*Dev, error) {
	if p == nil {
		return nil, errors.New("cs47l15: no control port")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("cs47l15: invalid chunk size %d", opts.ChunkSize)
	}
	d := &Dev{p: p, opts: *opts}
	if d.opts.ChunkSize == 0 {
		d.opts.ChunkSize = fwimg.DefaultChunkSize
	}
	return d, nil
}

// Dev is a handle to one CS47L15.
type Dev struct {
	p    bsp.Port
	opts Opts
	sess fwimg.Session
	fw   *fwimg.Info
	rev  uint32
}

func (d *Dev) String() string {
	return "cs47l15"
}

// Reset resets the device, through the reset line when one is
// configured and through the soft reset register otherwise, then
// verifies its identity.
//
// Any loaded DSP firmware is forgotten.
func (d *Dev) Reset() error {
	d.fw = nil
	if pin := d.opts.Reset; pin != nil {
		if err := pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("cs47l15: driving reset low: %w", err)
		}
		time.Sleep(tRLPW)
		if err := pin.Out(gpio.High); err != nil {
			return fmt.Errorf("cs47l15: releasing reset: %w", err)
		}
	} else {
		if err := d.p.WriteReg(swResetReg, 0); err != nil {
			return fmt.Errorf("cs47l15: soft reset: %w", err)
		}
	}
	time.Sleep(tIRS)
	v, err := d.p.ReadReg(swResetReg)
	if err != nil {
		return fmt.Errorf("cs47l15: reading the device id: %w", err)
	}
	if v != devID {
		return fmt.Errorf("cs47l15: unexpected device id %#x, want %#x", v, devID)
	}
	if d.rev, err = d.p.ReadReg(hwRevReg); err != nil {
		return fmt.Errorf("cs47l15: reading the chip revision: %w", err)
	}
	return nil
}

// SetSysClock configures and enables SYSCLK at the given rate. A zero
// frequency disables the clock.
func (d *Dev) SetSysClock(f physic.Frequency) error {
	if f == 0 {
		return bsp.Update(d.p, sysclkReg, sysclkEnaBit, 0)
	}
	for _, r := range sysClockRates {
		if r.f == f {
			v := sysclkEnaBit | r.sel<<sysclkFreqShift
			return bsp.Update(d.p, sysclkReg, sysclkEnaBit|sysclkFreqMask, v)
		}
	}
	return fmt.Errorf("cs47l15: unsupported system clock %s", f)
}

var sysClockRates = []struct {
	f   physic.Frequency
	sel uint32
}{
	{6144 * physic.KiloHertz, 0},
	{12288 * physic.KiloHertz, 1},
	{24576 * physic.KiloHertz, 2},
	{49152 * physic.KiloHertz, 3},
	{98304 * physic.KiloHertz, 4},
}

// Halt implements conn.Resource. It stops the DSP core and gates the
// system clock.
func (d *Dev) Halt() error {
	d.fw = nil
	if err := d.p.WriteReg(dsp1CtlReg, 0); err != nil {
		return err
	}
	return bsp.Update(d.p, sysclkReg, sysclkEnaBit, 0)
}

// Firmware describes the booted DSP firmware, or nil before BootDSP.
func (d *Dev) Firmware() *fwimg.Info {
	return d.fw
}

// BootDSP loads a fw_img firmware image into the ADSP2 core.
//
// The core is halted and its memories enabled first; the previously
// loaded firmware is forgotten whether or not the new image takes. On
// success the core is left stopped, ready for StartDSP.
func (d *Dev) BootDSP(img []byte) error {
	if len(img) == 0 {
		return errors.New("cs47l15: empty firmware image")
	}
	d.fw = nil
	if err := d.p.WriteReg(dsp1CtlReg, memEnaBit); err != nil {
		return fmt.Errorf("cs47l15: enabling DSP memory: %w", err)
	}
	if err := bsp.Poll(d.p, dsp1StatusReg, ramRdyBit, ramRdyBit, memTries, memInterval); err != nil {
		return fmt.Errorf("cs47l15: DSP memory never came ready: %w", err)
	}
	info, err := d.sess.Load(d, bytes.NewReader(img), &fwimg.LoadOpts{
		ChunkSize: d.opts.ChunkSize,
		Progress:  d.opts.OnProgress,
	})
	if err != nil {
		return err
	}
	a, ok := info.Symbol(SymDSPState)
	if !ok {
		return errors.New("cs47l15: image lacks the firmware state control")
	}
	if _, err := dspReg(a); err != nil {
		return err
	}
	d.fw = info
	return nil
}

var _ fwimg.BlockWriter = &Dev{}
var _ conn.Resource = &Dev{}
