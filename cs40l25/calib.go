// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs40l25

import (
	"errors"
	"time"
)

// Calibration is the actuator characterization measured by the
// calibration firmware. The raw values are firmware fixed-point:
// F0 is Q10.14 hertz, ReDC and Q are Q7.17.
type Calibration struct {
	F0   uint32
	ReDC uint32
	Q    uint32
}

// F0Hz returns the resonant frequency in hertz.
func (c Calibration) F0Hz() float64 {
	return float64(c.F0) / (1 << 14)
}

// ReDCOhms returns the coil DC resistance in ohms.
func (c Calibration) ReDCOhms() float64 {
	return float64(c.ReDC) / (1 << 17)
}

// QFactor returns the resonance quality factor.
func (c Calibration) QFactor() float64 {
	return float64(c.Q) / (1 << 17)
}

// Calibrate runs the calibration firmware's characterization sweep and
// returns the measured values. The calibration image must be booted and
// powered up; the sweep drives the actuator and takes on the order of a
// second.
func (d *Dev) Calibrate() (Calibration, error) {
	var c Calibration
	if d.fw == nil {
		return c, ErrNoFirmware
	}
	if err := d.symWrite(SymCalEnable, 1); err != nil {
		return c, err
	}
	// The F0 control stays zero until the sweep converges.
	var f0 uint32
	for i := 0; i < calTries; i++ {
		if i != 0 {
			time.Sleep(calInterval)
		}
		v, err := d.symRead(SymCalF0)
		if err != nil {
			return c, err
		}
		if v != 0 {
			f0 = v
			break
		}
	}
	if f0 == 0 {
		return c, errors.New("cs40l25: calibration did not converge")
	}
	redc, err := d.symRead(SymCalReDC)
	if err != nil {
		return c, err
	}
	q, err := d.symRead(SymCalQ)
	if err != nil {
		return c, err
	}
	if err := d.symWrite(SymCalEnable, 0); err != nil {
		return c, err
	}
	return Calibration{F0: f0, ReDC: redc, Q: q}, nil
}

// SetCalibration programs stored calibration values into a booted
// runtime firmware, typically values a previous Calibrate measured.
func (d *Dev) SetCalibration(c Calibration) error {
	if d.fw == nil {
		return ErrNoFirmware
	}
	if err := d.symWrite(SymF0Stored, c.F0); err != nil {
		return err
	}
	if err := d.symWrite(SymReDCStored, c.ReDC); err != nil {
		return err
	}
	return d.symWrite(SymQStored, c.Q)
}

// F0Entry is one dynamic F0 measurement: the resonant frequency
// observed while playing one wavetable entry. F0 is in eighths of a
// hertz, ReDC is the compensated coil resistance in Q7.17 ohms.
type F0Entry struct {
	Index uint16
	F0    uint16
	ReDC  uint32
}

// Hz returns the measured frequency in hertz.
func (e F0Entry) Hz() float64 {
	return float64(e.F0) / 8
}

// DynamicF0 reads the head of the dynamic F0 table together with the
// compensated ReDC. The tracking algorithm fills the table while
// waveforms play; until then there is nothing to read.
func (d *Dev) DynamicF0() (F0Entry, error) {
	var e F0Entry
	if d.fw == nil {
		return e, ErrNoFirmware
	}
	if !d.fw.HasAlgorithm(AlgDynamicF0) {
		return e, errors.New("cs40l25: firmware lacks the dynamic F0 algorithm")
	}
	w, err := d.symRead(SymDynamicF0Table)
	if err != nil {
		return e, err
	}
	if w == dynF0Empty {
		return e, errors.New("cs40l25: no dynamic F0 measured yet")
	}
	e.Index = uint16(w >> 13 & 0x3FF)
	e.F0 = uint16(w & 0x1FFF)
	redc, err := d.symRead(SymDynamicReDC)
	if err != nil {
		return e, err
	}
	e.ReDC = redc
	return e, nil
}
