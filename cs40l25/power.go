// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs40l25

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"

	"github.com/koffes/sdk-mcu-drivers/bsp"
)

// Reset brings the device to its power-on state and verifies its
// identity.
//
// With a reset line configured the line is pulsed low; otherwise the
// device is assumed to have been released externally and Reset only
// waits for it. Any booted firmware is forgotten: the DSP memories do
// not survive a reset.
func (d *Dev) Reset() error {
	if p := d.opts.Reset; p != nil {
		if err := p.Out(gpio.Low); err != nil {
			return err
		}
		time.Sleep(tRLPW)
		if err := p.Out(gpio.High); err != nil {
			return err
		}
		time.Sleep(tIRS)
	}
	d.fw = nil
	d.baseline = 0

	if err := bsp.Poll(d.p, irq1Eint4Reg, bootDoneBit, bootDoneBit, bootTries, bootInterval); err != nil {
		return fmt.Errorf("cs40l25: device did not come out of reset: %w", err)
	}
	if err := d.p.WriteReg(irq1Eint4Reg, bootDoneBit); err != nil {
		return err
	}
	id, err := d.p.ReadReg(devidReg)
	if err != nil {
		return err
	}
	if id != devID {
		return fmt.Errorf("cs40l25: unexpected device id %#x, want %#x", id, devID)
	}
	rev, err := d.p.ReadReg(revidReg)
	if err != nil {
		return err
	}
	switch rev {
	case revB0, revB1:
	default:
		return fmt.Errorf("cs40l25: unsupported chip revision %#x", rev)
	}
	d.rev = rev
	return nil
}

// PowerUp starts the booted firmware: it enables the output path,
// releases the DSP core and waits for the firmware to report itself
// running, then forbids hibernation while the host holds the device.
func (d *Dev) PowerUp() error {
	if d.fw == nil {
		return ErrNoFirmware
	}
	if err := bsp.Update(d.p, pwrCtrl1Reg, globalEnBit, globalEnBit); err != nil {
		return err
	}
	if err := d.p.WriteReg(dspCoreCtlReg, coreResetBit|coreEnBit); err != nil {
		return err
	}
	addr, err := d.symAddr(SymHaloState)
	if err != nil {
		return err
	}
	if err := bsp.Poll(d.p, addr, ^uint32(0), haloStateRunning, stateTries, stateInterval); err != nil {
		return fmt.Errorf("cs40l25: firmware did not start: %w", err)
	}
	if err := d.powerCmd(powerPrevent); err != nil {
		return err
	}
	d.baseline = 0
	return nil
}

// PowerDown stops the firmware and the output path. The firmware stays
// loaded; PowerUp restarts it.
func (d *Dev) PowerDown() error {
	if d.fw == nil {
		return ErrNoFirmware
	}
	if err := d.powerCmd(powerStandby); err != nil {
		return err
	}
	if err := d.p.WriteReg(dspCoreCtlReg, 0); err != nil {
		return err
	}
	return bsp.Update(d.p, pwrCtrl1Reg, globalEnBit, 0)
}

// Hibernate asks the firmware to enter its low-power state. The control
// port may stop responding until Wake.
func (d *Dev) Hibernate() error {
	if d.fw == nil {
		return ErrNoFirmware
	}
	return d.powerCmd(powerHibernate)
}

// Wake brings the device back from hibernation.
//
// A hibernating device can NAK the first control port accesses, so the
// wake command is retried before giving up. The identity register is
// read back to confirm the part is responsive again.
func (d *Dev) Wake() error {
	if d.fw == nil {
		return ErrNoFirmware
	}
	var err error
	for i := 0; i < wakeTries; i++ {
		if i != 0 {
			time.Sleep(wakeInterval)
		}
		if err = d.p.WriteReg(mboxPowerReg, powerWakeup); err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("cs40l25: wake command not accepted: %w", err)
	}
	if err := bsp.Poll(d.p, mboxPowerReg, ^uint32(0), powerNone, ackTries, ackInterval); err != nil {
		return fmt.Errorf("cs40l25: wake not acknowledged: %w", err)
	}
	id, err := d.p.ReadReg(devidReg)
	if err != nil {
		return err
	}
	if id != devID {
		return fmt.Errorf("cs40l25: woke to unexpected device id %#x", id)
	}
	return nil
}

// powerCmd posts a power mailbox command and waits for the firmware to
// clear it.
func (d *Dev) powerCmd(cmd uint32) error {
	if err := d.p.WriteReg(mboxPowerReg, cmd); err != nil {
		return err
	}
	if err := bsp.Poll(d.p, mboxPowerReg, ^uint32(0), powerNone, ackTries, ackInterval); err != nil {
		return fmt.Errorf("cs40l25: power command %#x not acknowledged: %w", cmd, err)
	}
	return nil
}
