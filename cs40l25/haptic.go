// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs40l25

import (
	"errors"
	"fmt"

	"github.com/koffes/sdk-mcu-drivers/bsp"
)

// TriggerHaptic plays the indexed wavetable entry. Index 0 stops a
// running waveform.
//
// Without booted firmware the ROM basic-haptics block is triggered
// instead, which plays the fixed power-on buzz regardless of index.
func (d *Dev) TriggerHaptic(index uint8) error {
	if d.fw == nil {
		return d.p.WriteReg(bhmBuzzReg, buzzTrigger)
	}
	// Duration first: writing the trigger mailbox starts playback.
	if err := d.p.WriteReg(mboxDurationReg, 0); err != nil {
		return err
	}
	return d.p.WriteReg(mboxTriggerReg, uint32(index))
}

// ButtonMap routes one GPIO button to wavetable entries.
type ButtonMap struct {
	// Enable arms the button.
	Enable bool
	// Press and Release are the wavetable indexes played on each edge.
	Press, Release uint8
}

// TriggerPreset is a GPIO trigger configuration.
type TriggerPreset struct {
	// Gain attenuates control-port triggered playback, GPIOGain the
	// GPIO triggered one. Attenuation steps, 0 is full scale.
	Gain     uint16
	GPIOGain uint16
	// GPIOEnable turns GPIO triggering on.
	GPIOEnable bool
	Buttons    [4]ButtonMap
}

// TriggerPresets are the built-in GPIO trigger configurations applied by
// SetTriggerPreset: 0 disables GPIO triggering, 1 arms button 1 with the
// standard press and release waveforms.
var TriggerPresets = []TriggerPreset{
	{
		Buttons: [4]ButtonMap{{Press: 3, Release: 4}},
	},
	{
		GPIOEnable: true,
		Buttons:    [4]ButtonMap{{Enable: true, Press: 3, Release: 4}},
	},
}

// SetTriggerPreset applies TriggerPresets[i] to the firmware. An
// out-of-range index is rejected before any device access.
func (d *Dev) SetTriggerPreset(i int) error {
	if i < 0 || i >= len(TriggerPresets) {
		return fmt.Errorf("cs40l25: trigger preset %d out of range, have %d", i, len(TriggerPresets))
	}
	if d.fw == nil {
		return ErrNoFirmware
	}
	p := &TriggerPresets[i]

	en := uint32(0)
	if p.GPIOEnable {
		en = 1
	}
	if err := d.symWrite(SymGPIOEnable, en); err != nil {
		return err
	}
	var detect uint32
	for n, b := range p.Buttons {
		if b.Enable {
			detect |= 1 << uint(n)
		}
	}
	if err := d.symWrite(SymButtonDetect, detect); err != nil {
		return err
	}
	if err := d.symWrite(SymGainControl, uint32(p.GPIOGain)<<16|uint32(p.Gain)); err != nil {
		return err
	}
	press, err := d.symAddr(SymButtonPressIndex)
	if err != nil {
		return err
	}
	release, err := d.symAddr(SymButtonReleaseIndex)
	if err != nil {
		return err
	}
	for n, b := range p.Buttons {
		if err := d.p.WriteReg(press+4*uint32(n), uint32(b.Press)); err != nil {
			return err
		}
		if err := d.p.WriteReg(release+4*uint32(n), uint32(b.Release)); err != nil {
			return err
		}
	}
	return nil
}

// EnableHapticProcessing switches the firmware's feedback algorithms on
// or off: closed-loop active braking (CLAB) and dynamic F0 tracking,
// whichever the booted image carries. Enabling also programs the
// braking loop's default peak target.
func (d *Dev) EnableHapticProcessing(on bool) error {
	if d.fw == nil {
		return ErrNoFirmware
	}
	clab := d.fw.HasAlgorithm(AlgClab)
	dynF0 := d.fw.HasAlgorithm(AlgDynamicF0)
	if !clab && !dynF0 {
		return errors.New("cs40l25: firmware carries neither the CLAB nor the dynamic F0 algorithm")
	}
	en := uint32(0)
	if on {
		en = 1
	}
	if clab {
		if err := d.symWrite(SymClabEnabled, en); err != nil {
			return err
		}
		if on {
			if err := d.symWrite(SymClabPeakAmplitude, clabDefaultPeak); err != nil {
				return err
			}
		}
	}
	if dynF0 {
		if err := d.symWrite(SymDynamicF0Enabled, en); err != nil {
			return err
		}
	}
	return nil
}

// Heartbeat reads the firmware liveness counter. Before a boot the ROM
// counter is read instead. The value becomes the new liveness baseline.
func (d *Dev) Heartbeat() (uint32, error) {
	v, err := d.readHeartbeat()
	if err != nil {
		return 0, err
	}
	d.baseline = v
	return v, nil
}

// HasProcessed reports whether the DSP has made progress since the last
// heartbeat observation. A counter stuck at zero or at its previous
// value means the firmware is not running.
func (d *Dev) HasProcessed() (bool, error) {
	v, err := d.readHeartbeat()
	if err != nil {
		return false, err
	}
	alive := v != 0 && v != d.baseline
	d.baseline = v
	return alive, nil
}

func (d *Dev) readHeartbeat() (uint32, error) {
	if d.fw == nil {
		return d.p.ReadReg(bhmHeartbeatReg)
	}
	return d.symRead(SymHaloHeartbeat)
}

// StartStream routes the serial audio port straight to the actuator:
// the PLL locks to the port bit clock and the DAC input switches from
// the DSP to the receive channel.
func (d *Dev) StartStream() error {
	if d.fw == nil {
		return ErrNoFirmware
	}
	if err := bsp.Update(d.p, refclkReg, refclkSelMask, refclkBCLK); err != nil {
		return err
	}
	if err := bsp.Update(d.p, dacSrcReg, dacSrcMask, srcASPRX1); err != nil {
		return err
	}
	return bsp.Update(d.p, pwrCtrl1Reg, globalEnBit, globalEnBit)
}

// StopStream reverts StartStream: DSP playback into the DAC, PLL back
// on the crystal.
func (d *Dev) StopStream() error {
	if d.fw == nil {
		return ErrNoFirmware
	}
	if err := bsp.Update(d.p, dacSrcReg, dacSrcMask, srcDSP1TX1); err != nil {
		return err
	}
	return bsp.Update(d.p, refclkReg, refclkSelMask, refclkMCLK)
}
