// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs47l15

import "time"

// Chip identity.
const (
	swResetReg = 0x00000000 // any write resets, reads as the device id
	hwRevReg   = 0x00000001

	devID = 0x6370
)

// System clocking.
const (
	sysclkReg = 0x00000101

	sysclkEnaBit    = 0x0040
	sysclkFreqMask  = 0x0700
	sysclkFreqShift = 8
)

// ADSP2 core control. The core's program and data memories surface in
// the register map at fixed windows below DSP1_CONFIG.
const (
	dsp1CtlReg    = 0x000FFE00
	dsp1StatusReg = 0x000FFE04

	startBit   = 0x0001
	coreEnaBit = 0x0002
	sysEnaBit  = 0x0004
	memEnaBit  = 0x0010

	ramRdyBit = 0x0001

	dsp1PMBase = 0x00080000
	dsp1XMBase = 0x000A0000
	dsp1YMBase = 0x000C0000
	dsp1ZMBase = 0x000E0000

	dsp1PMSpan = 0x00020000
	dsp1XMSpan = 0x00020000
	dsp1YMSpan = 0x00020000
	dsp1ZMSpan = 0x0001FE00
)

// Firmware image addressing: the top byte of a block or symbol address
// selects the DSP memory region, the low 24 bits are the byte offset
// inside it.
const (
	memPM = 0x01000000
	memXM = 0x02000000
	memYM = 0x03000000
	memZM = 0x04000000

	memRegionMask = 0xFF000000
	memOffsetMask = 0x00FFFFFF
)

// Firmware controls, resolved through the image's symbol table.
const (
	// SymDSPState is written by the firmware: its scheduler state.
	SymDSPState = 0x01
	// SymDSPControl is written by the host to request a state change.
	SymDSPControl = 0x02
)

// SymDSPState values.
const (
	dspStateIdle    = 1
	dspStateRunning = 2
)

// SymDSPControl commands.
const (
	dspCmdNone  = 0
	dspCmdPause = 1
)

// Timing.
const (
	tRLPW = 2 * time.Millisecond // reset line low pulse width
	tIRS  = 3 * time.Millisecond // reset release to bus ready

	memTries    = 10
	memInterval = time.Millisecond

	stateTries    = 40
	stateInterval = 5 * time.Millisecond
)
