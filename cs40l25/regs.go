// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs40l25

import "time"

// Chip identity.
const (
	devID = 0x40A25A // DEVID register value
	revB0 = 0xB0
	revB1 = 0xB1
)

// Register file. Addresses are 32-bit; the DSP memory regions are mapped
// into the same space.
const (
	devidReg = 0x00000000
	revidReg = 0x00000004

	// Block enables. globalEnBit gates the analog output path.
	pwrCtrl1Reg = 0x00002014
	globalEnBit = 0x00000001

	// PLL reference clock input select.
	refclkReg     = 0x00002C04
	refclkSelMask = 0x00000007
	refclkBCLK    = 0x00000000 // serial port bit clock
	refclkMCLK    = 0x00000003 // 32.768kHz crystal input

	// DAC PCM input router.
	dacSrcReg  = 0x00004C00
	dacSrcMask = 0x0000007F
	srcASPRX1  = 0x00000008 // serial port receive channel 1
	srcDSP1TX1 = 0x00000032 // DSP output (wavetable playback)

	// Interrupt controller. EINT registers latch until written back
	// (write one to clear).
	irq1StatusReg = 0x00010004
	irqPendingBit = 0x00000001
	irq1Eint1Reg  = 0x00010010
	irq1Eint4Reg  = 0x0001001C
	bootDoneBit   = 0x00000002 // in EINT_4
	ampShortBit   = 0x80000000 // in EINT_1
	overtempBit   = 0x40000000 // in EINT_1

	// Host-to-firmware mailboxes. The firmware clears a mailbox once it
	// has consumed the command.
	mboxTriggerReg  = 0x00013020 // waveform index, write starts playback
	mboxDurationReg = 0x00013024 // playback duration in ms, 0 plays to completion
	mboxPowerReg    = 0x0001302C // power state commands, see powerNone et al.

	// DSP core control, mapped into the XM region.
	dspCoreCtlReg = 0x02BC1000
	coreEnBit     = 0x00000001
	coreResetBit  = 0x00000200

	// ROM basic-haptics controls, available before any firmware is
	// loaded.
	bhmBuzzReg      = 0x02800224
	bhmHeartbeatReg = 0x02800228
	buzzTrigger     = 0x00000001
)

// Power mailbox commands.
const (
	powerNone      = 0 // written back by the firmware as acknowledgment
	powerHibernate = 1
	powerWakeup    = 2
	powerPrevent   = 3 // forbid hibernation while the host is active
	powerStandby   = 4
)

// Firmware control identifiers, assigned by the image packaging tool. An
// image's symbol table maps these to the device addresses the controls
// live at once the firmware is running.
const (
	SymHaloState     = 0x01
	SymHaloHeartbeat = 0x02

	// Event controls, parked at eventNone between interrupts.
	SymGPIO1Event           = 0x03
	SymGPIO2Event           = 0x04
	SymGPIO3Event           = 0x05
	SymGPIO4Event           = 0x06
	SymGPIOPlaybackEvent    = 0x07
	SymTriggerPlaybackEvent = 0x08
	SymRXReadyEvent         = 0x09
	SymHardwareEvent        = 0x0A

	// GPIO trigger configuration.
	SymGPIOEnable         = 0x0B
	SymButtonDetect       = 0x0C
	SymGainControl        = 0x0D
	SymButtonPressIndex   = 0x0E // four-entry array
	SymButtonReleaseIndex = 0x0F // four-entry array

	// Stored calibration, runtime firmware.
	SymF0Stored   = 0x10
	SymReDCStored = 0x11
	SymQStored    = 0x12

	// CLAB (closed-loop active braking) algorithm.
	SymClabEnabled       = 0x13
	SymClabPeakAmplitude = 0x14

	// Dynamic F0 tracking algorithm.
	SymDynamicF0Enabled = 0x15
	SymDynamicF0Table   = 0x16
	SymDynamicReDC      = 0x17

	// Calibration firmware.
	SymCalEnable = 0x18
	SymCalF0     = 0x19
	SymCalReDC   = 0x1A
	SymCalQ      = 0x1B
)

// Algorithm identifiers found in an image's algorithm list.
const (
	AlgClab      = 0x0113DA
	AlgDynamicF0 = 0x0113E2
)

const (
	haloStateRunning = 2

	// eventNone parks a consumed event control; any other value is a
	// pending event code.
	eventNone = 0xFFFFFF

	// clabDefaultPeak is the half-scale Q1.23 peak target the braking
	// loop regulates to.
	clabDefaultPeak = 0x400000

	// dynF0Empty marks an unused dynamic F0 table slot.
	dynF0Empty = 0x7FFFFF
)

// Timing.
const (
	tRLPW = 2 * time.Millisecond // reset low pulse width
	tIRS  = 1 * time.Millisecond // reset release to control port ready

	bootTries    = 25
	bootInterval = time.Millisecond

	ackTries    = 30
	ackInterval = time.Millisecond

	stateTries    = 40
	stateInterval = 5 * time.Millisecond

	wakeTries    = 10
	wakeInterval = 5 * time.Millisecond

	calTries    = 40
	calInterval = 50 * time.Millisecond

	watchTick = 100 * time.Millisecond
)
