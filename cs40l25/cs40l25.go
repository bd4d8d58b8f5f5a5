// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cs40l25 controls a Cirrus Logic CS40L25 haptics amplifier.
//
// The chip drives an LRA or voice-coil actuator from waveforms rendered
// by an on-die HALO DSP. Out of reset only a small ROM block is alive;
// Boot streams a fw_img firmware image into the DSP memories, after
// which playback, calibration and event reporting run through controls
// resolved from the image's symbol table.
//
// The device is reached through any bsp.Port. Methods are not safe for
// concurrent use: callers serialize access per device. The interrupt
// watcher started by WatchInterrupts only services event registers and
// may run alongside trigger calls, but must be stopped around Boot and
// the power transitions.
package cs40l25

import (
	"bytes"
	"errors"
	"fmt"

	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/gpio"

	"github.com/koffes/sdk-mcu-drivers/bsp"
	"github.com/koffes/sdk-mcu-drivers/fwimg"
)

// ErrNoFirmware is returned by operations that need a booted firmware
// when none is loaded.
var ErrNoFirmware = errors.New("cs40l25: firmware not loaded")

// Opts holds the device configuration.
//
// The firmware images are fw_img byte streams, typically loaded with
// fwimg/fwfile. They are not copied; the caller must not mutate them
// while the device is in use.
type Opts struct {
	// Firmware is the runtime haptics image Boot(false) loads.
	Firmware []byte
	// CalFirmware is the calibration image Boot(true) loads.
	CalFirmware []byte
	// Reset is the active-low reset line, if one is wired. Without it
	// Reset only verifies the device is up.
	Reset gpio.PinIO
	// ChunkSize is the boot window size in bytes. Defaults to
	// fwimg.DefaultChunkSize.
	ChunkSize int
	// OnEvent, when set, receives events decoded by Process.
	OnEvent func(Event)
	// OnProgress, when set, observes every block write during Boot.
	OnProgress func(fwimg.Progress)
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{ChunkSize: fwimg.DefaultChunkSize}

// New returns a device driven through port p.
//
// The device is not touched; call Reset and Boot to bring it up.
func New(p bsp.Port, opts *Opts) (*Dev, error) {
	if p == nil {
		return nil, errors.New("cs40l25: nil control port")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("cs40l25: invalid chunk size %d", opts.ChunkSize)
	}
	d := &Dev{p: p, opts: *opts}
	if d.opts.ChunkSize == 0 {
		d.opts.ChunkSize = fwimg.DefaultChunkSize
	}
	return d, nil
}

// Dev is a handle to one CS40L25.
type Dev struct {
	p    bsp.Port
	opts Opts
	sess fwimg.Session

	// fw is the booted firmware metadata, nil whenever the DSP contents
	// are unknown or invalid.
	fw *fwimg.Info
	// baseline is the last observed heartbeat count.
	baseline uint32
	rev      uint32
}

func (d *Dev) String() string {
	return "cs40l25"
}

// Halt implements conn.Resource. It stops playback and the DSP core;
// the device needs a new Boot before further use.
func (d *Dev) Halt() error {
	d.fw = nil
	d.baseline = 0
	if err := d.p.WriteReg(dspCoreCtlReg, 0); err != nil {
		return err
	}
	return bsp.Update(d.p, pwrCtrl1Reg, globalEnBit, 0)
}

// WriteBlock implements fwimg.BlockWriter. Boot uses it to place image
// blocks; it is exported so external boot orchestration can reuse the
// device as a block sink.
func (d *Dev) WriteBlock(addr uint32, p []byte) error {
	return d.p.WriteBulk(addr, p)
}

// Boot loads a firmware image into the DSP, the calibration image when
// cal is set.
//
// Whatever firmware was running is invalidated up front: the core is
// halted and the driver forgets its symbol table, so a failed boot never
// leaves stale firmware state behind. On success the image metadata is
// retained for symbol access and the liveness baseline is zeroed. The
// core stays halted until PowerUp.
func (d *Dev) Boot(cal bool) error {
	img := d.opts.Firmware
	if cal {
		img = d.opts.CalFirmware
	}
	if len(img) == 0 {
		return errors.New("cs40l25: no firmware image configured")
	}

	d.fw = nil
	d.baseline = 0
	if err := d.p.WriteReg(dspCoreCtlReg, 0); err != nil {
		return fmt.Errorf("cs40l25: halting DSP core: %w", err)
	}

	info, err := d.sess.Load(d, bytes.NewReader(img), &fwimg.LoadOpts{
		ChunkSize: d.opts.ChunkSize,
		Progress:  d.opts.OnProgress,
	})
	if err != nil {
		return err
	}
	if _, ok := info.Symbol(SymHaloHeartbeat); !ok {
		return errors.New("cs40l25: image lacks the heartbeat control")
	}
	d.fw = info
	return nil
}

// Firmware returns the booted image metadata, or nil before a
// successful Boot.
func (d *Dev) Firmware() *fwimg.Info {
	return d.fw
}

// SymbolAddress resolves a firmware control to its device address.
func (d *Dev) SymbolAddress(id uint32) (uint32, bool) {
	if d.fw == nil {
		return 0, false
	}
	return d.fw.Symbol(id)
}

func (d *Dev) symAddr(id uint32) (uint32, error) {
	if d.fw == nil {
		return 0, ErrNoFirmware
	}
	addr, ok := d.fw.Symbol(id)
	if !ok {
		return 0, fmt.Errorf("cs40l25: firmware %#x has no control %#x", d.fw.FirmwareID, id)
	}
	return addr, nil
}

func (d *Dev) symRead(id uint32) (uint32, error) {
	addr, err := d.symAddr(id)
	if err != nil {
		return 0, err
	}
	return d.p.ReadReg(addr)
}

func (d *Dev) symWrite(id, val uint32) error {
	addr, err := d.symAddr(id)
	if err != nil {
		return err
	}
	return d.p.WriteReg(addr, val)
}

var _ fwimg.BlockWriter = &Dev{}
var _ conn.Resource = &Dev{}
