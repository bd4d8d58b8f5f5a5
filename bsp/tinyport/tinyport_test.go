// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tinyport

import (
	"bytes"
	"testing"

	"periph.io/x/periph/conn/physic"

	"github.com/koffes/sdk-mcu-drivers/bsp/i2cport"
)

// fakeI2C records transactions like a machine.I2C would see them.
type fakeI2C struct {
	addr uint16
	w    []byte
	r    []byte
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	f.addr = addr
	f.w = append([]byte(nil), w...)
	copy(r, f.r)
	return nil
}

func (f *fakeI2C) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return f.Tx(uint16(addr), []byte{reg}, buf)
}

func (f *fakeI2C) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return f.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func TestTx(t *testing.T) {
	f := &fakeI2C{r: []byte{0xAB, 0xCD}}
	b := New(f)
	r := make([]byte, 2)
	if err := b.Tx(0x40, []byte{1, 2}, r); err != nil {
		t.Fatal(err)
	}
	if f.addr != 0x40 || !bytes.Equal(f.w, []byte{1, 2}) {
		t.Fatalf("bus saw addr %#x w %x", f.addr, f.w)
	}
	if !bytes.Equal(r, []byte{0xAB, 0xCD}) {
		t.Fatalf("read %x", r)
	}
}

func TestSetSpeed(t *testing.T) {
	if err := New(&fakeI2C{}).SetSpeed(physic.MegaHertz); err == nil {
		t.Fatal("expected SetSpeed to be rejected")
	}
}

// The point of the adapter: i2cport speaks to a TinyGo bus unchanged.
func TestPortOverTinyBus(t *testing.T) {
	f := &fakeI2C{}
	d, err := i2cport.New(New(f), &i2cport.Opts{Addr: 0x40})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteReg(0x02800020, 0x11223344); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x02, 0x80, 0x00, 0x20, 0x11, 0x22, 0x33, 0x44}
	if f.addr != 0x40 || !bytes.Equal(f.w, want) {
		t.Fatalf("bus saw addr %#x w %x, want %x", f.addr, f.w, want)
	}
}
