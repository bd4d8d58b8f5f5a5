// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs47l15

import (
	"fmt"

	"github.com/koffes/sdk-mcu-drivers/bsp"
)

// dspReg maps a core-relative firmware address onto the register map.
func dspReg(addr uint32) (uint32, error) {
	off := addr & memOffsetMask
	var base, span uint32
	switch addr & memRegionMask {
	case memPM:
		base, span = dsp1PMBase, dsp1PMSpan
	case memXM:
		base, span = dsp1XMBase, dsp1XMSpan
	case memYM:
		base, span = dsp1YMBase, dsp1YMSpan
	case memZM:
		base, span = dsp1ZMBase, dsp1ZMSpan
	default:
		return 0, fmt.Errorf("cs47l15: address %#08x outside the DSP memory map", addr)
	}
	if off >= span {
		return 0, fmt.Errorf("cs47l15: address %#08x past the end of its memory region", addr)
	}
	return base + off, nil
}

// WriteBlock implements fwimg.BlockWriter. Block addresses are
// core-relative and remapped through the DSP memory windows.
func (d *Dev) WriteBlock(addr uint32, p []byte) error {
	reg, err := dspReg(addr)
	if err != nil {
		return err
	}
	if len(p) != 0 {
		if _, err := dspReg(addr + uint32(len(p)) - 1); err != nil {
			return fmt.Errorf("cs47l15: block of %d bytes at %#08x overruns its memory region", len(p), addr)
		}
	}
	return d.p.WriteBulk(reg, p)
}

// SymbolAddress returns the register address of a firmware control, or
// false if no firmware is booted, the control is absent from its symbol
// table, or it falls outside the DSP memory map.
func (d *Dev) SymbolAddress(id uint32) (uint32, bool) {
	if d.fw == nil {
		return 0, false
	}
	a, ok := d.fw.Symbol(id)
	if !ok {
		return 0, false
	}
	reg, err := dspReg(a)
	if err != nil {
		return 0, false
	}
	return reg, true
}

func (d *Dev) symReg(id uint32) (uint32, error) {
	if d.fw == nil {
		return 0, ErrNoFirmware
	}
	a, ok := d.fw.Symbol(id)
	if !ok {
		return 0, fmt.Errorf("cs47l15: firmware %#x has no control %#x", d.fw.FirmwareID, id)
	}
	return dspReg(a)
}

// StartDSP starts the ADSP2 core and waits for the loaded firmware to
// report itself running.
func (d *Dev) StartDSP() error {
	state, err := d.symReg(SymDSPState)
	if err != nil {
		return err
	}
	if err := d.p.WriteReg(dsp1CtlReg, memEnaBit|sysEnaBit|coreEnaBit); err != nil {
		return fmt.Errorf("cs47l15: enabling the DSP core: %w", err)
	}
	if err := bsp.Update(d.p, dsp1CtlReg, startBit, startBit); err != nil {
		return fmt.Errorf("cs47l15: starting the DSP core: %w", err)
	}
	if err := bsp.Poll(d.p, state, ^uint32(0), dspStateRunning, stateTries, stateInterval); err != nil {
		return fmt.Errorf("cs47l15: DSP firmware did not start: %w", err)
	}
	return nil
}

// StopDSP asks the firmware to park, waits for it to go idle, then
// stops the core. The memories stay enabled so StartDSP can run the
// loaded firmware again.
func (d *Dev) StopDSP() error {
	ctl, err := d.symReg(SymDSPControl)
	if err != nil {
		return err
	}
	state, err := d.symReg(SymDSPState)
	if err != nil {
		return err
	}
	if err := d.p.WriteReg(ctl, dspCmdPause); err != nil {
		return fmt.Errorf("cs47l15: requesting pause: %w", err)
	}
	if err := bsp.Poll(d.p, state, ^uint32(0), dspStateIdle, stateTries, stateInterval); err != nil {
		return fmt.Errorf("cs47l15: DSP did not go idle: %w", err)
	}
	if err := d.p.WriteReg(ctl, dspCmdNone); err != nil {
		return err
	}
	return d.p.WriteReg(dsp1CtlReg, memEnaBit)
}
