// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bsptest implements control ports for testing drivers without
// hardware.
//
// Mem is a register file in a map: reads can be scripted per register to
// emulate status bits changing over time, writes are logged in order so a
// test can assert the exact sequence a driver emitted.
package bsptest

import (
	"encoding/binary"
	"fmt"

	"github.com/koffes/sdk-mcu-drivers/bsp"
)

// Write is one logged WriteReg.
type Write struct {
	Reg uint32
	Val uint32
}

// BulkWrite is one logged WriteBulk. Data is a copy of the payload.
type BulkWrite struct {
	Reg  uint32
	Data []byte
}

// Mem is a Port backed by an in-memory register file.
//
// The zero value is an empty register space ready for use. Reads consult
// Script first, then Regs, then default to zero. Every write lands in
// Regs and is appended to Writes or Bulk. Bulk transfers marshal 32-bit
// words MSB-first, matching the wire order of the real transports.
type Mem struct {
	// Regs is the register file.
	Regs map[uint32]uint32
	// Script holds canned read values, consumed front to back before
	// Regs is consulted. Emulates volatile status registers.
	Script map[uint32][]uint32
	// Fail makes any access to a register fail with the given error.
	Fail map[uint32]error
	// Writes logs WriteReg calls in order.
	Writes []Write
	// Bulk logs WriteBulk calls in order.
	Bulk []BulkWrite
	// Reads counts ReadReg calls per register.
	Reads map[uint32]int
}

// ReadReg implements bsp.Port.
func (m *Mem) ReadReg(reg uint32) (uint32, error) {
	if err := m.Fail[reg]; err != nil {
		return 0, err
	}
	if m.Reads == nil {
		m.Reads = map[uint32]int{}
	}
	m.Reads[reg]++
	if s := m.Script[reg]; len(s) != 0 {
		v := s[0]
		if len(s) == 1 {
			delete(m.Script, reg)
		} else {
			m.Script[reg] = s[1:]
		}
		return v, nil
	}
	return m.Regs[reg], nil
}

// WriteReg implements bsp.Port.
func (m *Mem) WriteReg(reg, val uint32) error {
	if err := m.Fail[reg]; err != nil {
		return err
	}
	if m.Regs == nil {
		m.Regs = map[uint32]uint32{}
	}
	m.Regs[reg] = val
	m.Writes = append(m.Writes, Write{reg, val})
	return nil
}

// ReadBulk implements bsp.Port.
func (m *Mem) ReadBulk(reg uint32, p []byte) error {
	if err := m.Fail[reg]; err != nil {
		return err
	}
	if len(p)%4 != 0 {
		return fmt.Errorf("bsptest: bulk read of %d bytes is not word aligned", len(p))
	}
	for i := 0; i < len(p); i += 4 {
		v, err := m.ReadReg(reg + uint32(i))
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint32(p[i:], v)
	}
	return nil
}

// WriteBulk implements bsp.Port.
func (m *Mem) WriteBulk(reg uint32, p []byte) error {
	if err := m.Fail[reg]; err != nil {
		return err
	}
	if len(p)%4 != 0 {
		return fmt.Errorf("bsptest: bulk write of %d bytes is not word aligned", len(p))
	}
	if m.Regs == nil {
		m.Regs = map[uint32]uint32{}
	}
	for i := 0; i < len(p); i += 4 {
		m.Regs[reg+uint32(i)] = binary.BigEndian.Uint32(p[i:])
	}
	m.Bulk = append(m.Bulk, BulkWrite{reg, append([]byte(nil), p...)})
	return nil
}

// LastWrite returns the most recent WriteReg to reg, or (0, false).
func (m *Mem) LastWrite(reg uint32) (uint32, bool) {
	for i := len(m.Writes) - 1; i >= 0; i-- {
		if m.Writes[i].Reg == reg {
			return m.Writes[i].Val, true
		}
	}
	return 0, false
}

// Op is one operation seen by Record.
type Op struct {
	// Kind is "readreg", "writereg", "readbulk" or "writebulk".
	Kind string
	Reg  uint32
	// Val is the register value for readreg and writereg.
	Val uint32
	// Len is the payload length for bulk operations.
	Len int
}

// Record wraps a Port and logs every operation in order.
type Record struct {
	// Port is the wrapped port. If nil, reads return zero and writes are
	// discarded.
	Port bsp.Port
	// Ops is the log.
	Ops []Op
}

// ReadReg implements bsp.Port.
func (r *Record) ReadReg(reg uint32) (uint32, error) {
	var v uint32
	var err error
	if r.Port != nil {
		v, err = r.Port.ReadReg(reg)
	}
	r.Ops = append(r.Ops, Op{Kind: "readreg", Reg: reg, Val: v})
	return v, err
}

// WriteReg implements bsp.Port.
func (r *Record) WriteReg(reg, val uint32) error {
	r.Ops = append(r.Ops, Op{Kind: "writereg", Reg: reg, Val: val})
	if r.Port == nil {
		return nil
	}
	return r.Port.WriteReg(reg, val)
}

// ReadBulk implements bsp.Port.
func (r *Record) ReadBulk(reg uint32, p []byte) error {
	r.Ops = append(r.Ops, Op{Kind: "readbulk", Reg: reg, Len: len(p)})
	if r.Port == nil {
		return nil
	}
	return r.Port.ReadBulk(reg, p)
}

// WriteBulk implements bsp.Port.
func (r *Record) WriteBulk(reg uint32, p []byte) error {
	r.Ops = append(r.Ops, Op{Kind: "writebulk", Reg: reg, Len: len(p)})
	if r.Port == nil {
		return nil
	}
	return r.Port.WriteBulk(reg, p)
}

var _ bsp.Port = &Mem{}
var _ bsp.Port = &Record{}
