// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serialbridge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestRegReadWrite(t *testing.T) {
	f := newFakeMCU()
	b := newBridge(f, "fake")
	if err := b.WriteReg(0x02800020, 0xCAFEF00D); err != nil {
		t.Fatal(err)
	}
	if f.regs[0x02800020] != 0xCAFEF00D {
		t.Fatalf("register = %#x", f.regs[0x02800020])
	}
	v, err := b.ReadReg(0x02800020)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xCAFEF00D {
		t.Fatalf("read %#x", v)
	}
	if f.frames != 2 {
		t.Fatalf("frames = %d, want 2", f.frames)
	}
}

func TestBulkSplit(t *testing.T) {
	f := newFakeMCU()
	b := newBridge(f, "fake")
	payload := make([]byte, 120)
	for i := range payload {
		payload[i] = byte(i * 3)
	}
	if err := b.WriteBulk(0x02BC1000, payload); err != nil {
		t.Fatal(err)
	}
	// 120 bytes over 52-byte chunks: three frames.
	if f.frames != 3 {
		t.Fatalf("frames = %d, want 3", f.frames)
	}
	got := make([]byte, 120)
	if err := b.ReadBulk(0x02BC1000, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read back %x", got[:8])
	}
	if f.frames != 6 {
		t.Fatalf("frames = %d, want 6", f.frames)
	}
}

func TestPingReset(t *testing.T) {
	f := newFakeMCU()
	b := newBridge(f, "fake")
	if err := b.Ping(); err != nil {
		t.Fatal(err)
	}
	if err := b.ResetDevice(); err != nil {
		t.Fatal(err)
	}
	if f.pings != 1 || f.resets != 1 {
		t.Fatalf("pings=%d resets=%d", f.pings, f.resets)
	}
}

func TestCRCMismatch(t *testing.T) {
	f := newFakeMCU()
	f.corruptCRC = true
	b := newBridge(f, "fake")
	_, err := b.ReadReg(0x10)
	if err == nil || !strings.Contains(err.Error(), "crc mismatch") {
		t.Fatalf("err = %v", err)
	}
}

func TestSequenceSlip(t *testing.T) {
	f := newFakeMCU()
	f.wrongSeq = true
	b := newBridge(f, "fake")
	_, err := b.ReadReg(0x10)
	if err == nil || !strings.Contains(err.Error(), "sequence slip") {
		t.Fatalf("err = %v", err)
	}
}

func TestBridgeStatus(t *testing.T) {
	f := newFakeMCU()
	f.failOp = opWriteReg
	b := newBridge(f, "fake")
	err := b.WriteReg(0x10, 1)
	if err == nil || !strings.Contains(err.Error(), "failed on bridge") {
		t.Fatalf("err = %v", err)
	}
}

func TestTimeout(t *testing.T) {
	b := newBridge(&idleLine{}, "fake")
	if err := b.Ping(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v", err)
	}
}

func TestAlignment(t *testing.T) {
	b := newBridge(newFakeMCU(), "fake")
	if err := b.WriteBulk(0, make([]byte, 10)); err == nil {
		t.Fatal("unaligned write accepted")
	}
	if err := b.ReadBulk(0, make([]byte, 7)); err == nil {
		t.Fatal("unaligned read accepted")
	}
}

func TestCRC16(t *testing.T) {
	if got := crc16(nil); got != 0xFFFF {
		t.Fatalf("crc16(nil) = %#04x", got)
	}
	if crc16([]byte{1, 2, 3}) == crc16([]byte{1, 2, 4}) {
		t.Fatal("crc collision on near inputs")
	}
}

// idleLine emulates a serial port whose read timeout keeps expiring.
type idleLine struct{}

func (*idleLine) Read(p []byte) (int, error)  { return 0, nil }
func (*idleLine) Write(p []byte) (int, error) { return len(p), nil }
func (*idleLine) Close() error                { return nil }

// fakeMCU implements the bridge firmware side of the framed protocol,
// with a 32-bit register file behind it.
type fakeMCU struct {
	regs       map[uint32]uint32
	out        bytes.Buffer
	frames     int
	pings      int
	resets     int
	corruptCRC bool
	wrongSeq   bool
	failOp     byte
}

func newFakeMCU() *fakeMCU {
	return &fakeMCU{regs: map[uint32]uint32{}}
}

func (f *fakeMCU) Close() error { return nil }

func (f *fakeMCU) Read(p []byte) (int, error) {
	return f.out.Read(p)
}

func (f *fakeMCU) Write(frame []byte) (int, error) {
	f.frames++
	total := int(frame[0])
	if total != len(frame) || frame[total-1] != syncByte {
		return 0, errors.New("fake: bad frame")
	}
	want := uint16(frame[total-3])<<8 | uint16(frame[total-2])
	if crc16(frame[:total-3]) != want {
		return 0, errors.New("fake: bad crc")
	}
	seq := frame[1]
	op := frame[2]
	req := frame[3 : total-3]
	status := byte(0)
	var data []byte
	switch {
	case op == f.failOp && op != 0:
		status = 1
	case op == opPing:
		f.pings++
	case op == opReset:
		f.resets++
	case op == opWriteReg:
		f.regs[binary.BigEndian.Uint32(req[:4])] = binary.BigEndian.Uint32(req[4:])
	case op == opReadReg:
		data = make([]byte, 4)
		binary.BigEndian.PutUint32(data, f.regs[binary.BigEndian.Uint32(req)])
	case op == opWriteBulk:
		reg := binary.BigEndian.Uint32(req[:4])
		for i := 4; i+4 <= len(req); i += 4 {
			f.regs[reg+uint32(i-4)] = binary.BigEndian.Uint32(req[i:])
		}
	case op == opReadBulk:
		reg := binary.BigEndian.Uint32(req[:4])
		n := int(req[4])
		data = make([]byte, n)
		for i := 0; i+4 <= n; i += 4 {
			binary.BigEndian.PutUint32(data[i:], f.regs[reg+uint32(i)])
		}
	default:
		status = 2
	}
	if f.wrongSeq {
		seq++
	}
	f.respond(seq, op, status, data)
	return len(frame), nil
}

func (f *fakeMCU) respond(seq, op, status byte, data []byte) {
	rsp := []byte{byte(len(data) + 2 + frameOverhead), seq, op, status}
	rsp = append(rsp, data...)
	crc := crc16(rsp)
	if f.corruptCRC {
		crc ^= 0x5555
	}
	rsp = append(rsp, byte(crc>>8), byte(crc), syncByte)
	f.out.Write(rsp)
}
