// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package usbbridge drives the Microchip MCP2221A USB bridge found on the
// codec evaluation boards.
//
// The bridge exposes one I²C master and four GPIO pins through 64-byte
// command messages on a pair of interrupt endpoints. This package talks
// libusb via gousb instead of going through the HID layer, so it works
// the same on Linux, macOS and Windows; the kernel HID driver is detached
// automatically while the device is open.
//
// A periph.io driver registers every attached bridge on host.Init: the
// I²C bus lands in i2creg under the bridge name and the GP0-GP3 pins in
// gpioreg, so `i2creg.Open("mcp2221a-1-4")` or gpio lookups work like any
// host bus. The reset and interrupt lines of a codec wire to the GP pins.
package usbbridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"periph.io/x/periph/conn/i2c"
)

// DefaultVID and DefaultPID identify a stock MCP2221A.
const (
	DefaultVID = 0x04D8
	DefaultPID = 0x00DD
)

// clkHz is the bridge's internal clock, the base of the I²C divider.
const clkHz = 12000000

const (
	msgLen   = 64
	i2cChunk = 60

	cmdStatus         = 0x10
	cmdI2CReadGetData = 0x40
	cmdGPIOSet        = 0x50
	cmdGPIOGet        = 0x51
	cmdReset          = 0x70
	cmdI2CWrite       = 0x90
	cmdI2CRead        = 0x91
	cmdI2CWriteNoStop = 0x94
	cmdI2CReadRep     = 0x93

	// Internal I²C engine states reported in status and data responses.
	stateIdle          = 0x00
	stateAddrNACK      = 0x25
	stateWritingNoStop = 0x45
	stateDataNotReady  = 0x7F

	ioRetries  = 25
	retryDelay = 300 * time.Microsecond
)

// Opts selects which bridge to open.
type Opts struct {
	// VID and PID select the USB device.
	VID, PID uint16
	// Index picks among identical bridges, in bus enumeration order.
	Index int
}

// DefaultOpts matches the first stock MCP2221A on the bus.
var DefaultOpts = Opts{VID: DefaultVID, PID: DefaultPID}

// Open opens a single bridge.
//
// Most users instead rely on the periph.io driver: after host.Init the
// attached bridges are already open and registered, see All.
func Open(opts *Opts) (*Bridge, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	ctx := gousb.NewContext()
	b, err := openOn(ctx, opts)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	b.t.(*usbTransport).ctx = ctx
	return b, nil
}

// openOn opens the opts.Index-th matching device on ctx. The transport
// does not own ctx.
func openOn(ctx *gousb.Context, opts *Opts) (*Bridge, error) {
	devs, err := ctx.OpenDevices(func(dd *gousb.DeviceDesc) bool {
		return dd.Vendor == gousb.ID(opts.VID) && dd.Product == gousb.ID(opts.PID)
	})
	if opts.Index >= len(devs) {
		for _, d := range devs {
			d.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("usbbridge: %w", err)
		}
		return nil, fmt.Errorf("usbbridge: device index %d out of range; found %d bridges", opts.Index, len(devs))
	}
	for i, d := range devs {
		if i != opts.Index {
			d.Close()
		}
	}
	return setup(devs[opts.Index])
}

// setup claims the device's default interface and wraps it as a Bridge.
func setup(d *gousb.Device) (*Bridge, error) {
	if err := d.SetAutoDetach(true); err != nil {
		d.Close()
		return nil, fmt.Errorf("usbbridge: detach kernel driver: %w", err)
	}
	intf, done, err := d.DefaultInterface()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("usbbridge: claim interface: %w", err)
	}
	var in *gousb.InEndpoint
	var out *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if in == nil {
				in, err = intf.InEndpoint(ep.Number)
			}
		case gousb.EndpointDirectionOut:
			if out == nil {
				out, err = intf.OutEndpoint(ep.Number)
			}
		}
		if err != nil {
			break
		}
	}
	if err == nil && (in == nil || out == nil) {
		err = errors.New("usbbridge: no interrupt endpoint pair")
	}
	if err != nil {
		done()
		d.Close()
		return nil, err
	}
	name := fmt.Sprintf("mcp2221a-%d-%d", d.Desc.Bus, d.Desc.Address)
	b := newBridge(&usbTransport{d: d, done: done, in: in, out: out}, name)
	// One status round trip up front: catches a wedged bridge at open
	// time instead of on the first transfer.
	if _, err := b.status(); err != nil {
		b.t.close()
		return nil, err
	}
	return b, nil
}

// transport moves one 64-byte command message and its response.
type transport interface {
	// exchange sends msg and returns the response. A reset command has
	// no response and returns nil.
	exchange(msg []byte) ([]byte, error)
	close() error
}

type usbTransport struct {
	ctx  *gousb.Context // owned context, nil for shared
	d    *gousb.Device
	done func()
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
	buf  [msgLen]byte
}

func (u *usbTransport) exchange(msg []byte) ([]byte, error) {
	if _, err := u.out.Write(msg); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	if msg[0] == cmdReset {
		return nil, nil
	}
	n, err := u.in.Read(u.buf[:])
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if n < msgLen {
		return nil, fmt.Errorf("short read (%d of %d bytes)", n, msgLen)
	}
	return u.buf[:], nil
}

func (u *usbTransport) close() error {
	u.done()
	err := u.d.Close()
	if u.ctx != nil {
		if err2 := u.ctx.Close(); err == nil {
			err = err2
		}
	}
	return err
}

// Bridge is one open MCP2221A.
//
// Public methods are safe for concurrent use; the bridge serializes the
// underlying message exchanges.
type Bridge struct {
	GP0 *Pin
	GP1 *Pin
	GP2 *Pin
	GP3 *Pin

	name string
	mu   sync.Mutex
	t    transport
}

func newBridge(t transport, name string) *Bridge {
	b := &Bridge{name: name, t: t}
	b.GP0 = &Pin{n: name + ".GP0", num: 0, b: b}
	b.GP1 = &Pin{n: name + ".GP1", num: 1, b: b}
	b.GP2 = &Pin{n: name + ".GP2", num: 2, b: b}
	b.GP3 = &Pin{n: name + ".GP3", num: 3, b: b}
	return b
}

// String implements conn.Resource.
func (b *Bridge) String() string {
	return b.name
}

// Halt implements conn.Resource. It aborts any I²C transfer in flight.
func (b *Bridge) Halt() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel()
}

// Close releases the USB device.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.t.close()
}

// I2C returns the bridge's I²C bus.
//
// Closing the bus aborts any transfer in flight but keeps the bridge
// open.
func (b *Bridge) I2C() (i2c.BusCloser, error) {
	return &i2cBus{b: b}, nil
}

// Reset reboots the bridge MCU. The USB device re-enumerates, so the
// Bridge is unusable afterwards and must be reopened.
func (b *Bridge) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var msg [msgLen]byte
	msg[1] = 0xAB
	msg[2] = 0xCD
	msg[3] = 0xEF
	if _, err := b.send(cmdReset, &msg); err != nil {
		return err
	}
	return b.t.close()
}

// send issues one command. Returns the raw response so callers can
// inspect engine state even when the command failed. mu must be held.
func (b *Bridge) send(cmd byte, msg *[msgLen]byte) ([]byte, error) {
	msg[0] = cmd
	rsp, err := b.t.exchange(msg[:])
	if err != nil {
		return nil, fmt.Errorf("usbbridge: %w", err)
	}
	if cmd == cmdReset {
		return nil, nil
	}
	if rsp[0] != cmd || rsp[1] != 0 {
		return rsp, fmt.Errorf("usbbridge: command %#02x refused", cmd)
	}
	return rsp, nil
}

// status returns the I²C engine state byte. mu must be held.
func (b *Bridge) status() (byte, error) {
	var msg [msgLen]byte
	rsp, err := b.send(cmdStatus, &msg)
	if err != nil {
		return 0, err
	}
	return rsp[8], nil
}

// cancel aborts the I²C transfer in flight, if any. mu must be held.
func (b *Bridge) cancel() error {
	var msg [msgLen]byte
	msg[2] = 0x10
	rsp, err := b.send(cmdStatus, &msg)
	if err != nil {
		return err
	}
	if rsp[2] == 0x10 {
		// A transfer was aborted mid-flight; the engine needs a moment.
		time.Sleep(retryDelay)
	}
	return nil
}

// setSpeed programs the I²C clock divider. mu must be held.
func (b *Bridge) setSpeed(baud uint32) error {
	var msg [msgLen]byte
	msg[3] = 0x20
	msg[4] = byte(clkHz/baud - 3)
	rsp, err := b.send(cmdStatus, &msg)
	if err != nil {
		return err
	}
	if rsp[3] == 0x21 {
		return errors.New("usbbridge: cannot change speed, transfer in progress")
	}
	return nil
}

// i2cWrite streams p to addr in 60-byte frames. cmd picks whether a stop
// condition ends the transfer. mu must be held.
func (b *Bridge) i2cWrite(cmd byte, addr uint16, p []byte) error {
	pos := 0
	for {
		sz := len(p) - pos
		if sz > i2cChunk {
			sz = i2cChunk
		}
		var msg [msgLen]byte
		msg[1] = byte(len(p))
		msg[2] = byte(len(p) >> 8)
		msg[3] = byte(addr << 1)
		copy(msg[4:], p[pos:pos+sz])
		if err := b.sendI2C(cmd, &msg, addr); err != nil {
			return err
		}
		pos += sz
		if pos >= len(p) {
			break
		}
	}
	want := byte(stateIdle)
	if cmd == cmdI2CWriteNoStop {
		want = stateWritingNoStop
	}
	return b.waitState(want, addr)
}

// sendI2C issues one I²C command frame, retrying while the engine is
// still draining the previous frame. mu must be held.
func (b *Bridge) sendI2C(cmd byte, msg *[msgLen]byte, addr uint16) error {
	for retry := 0; ; retry++ {
		rsp, err := b.send(cmd, msg)
		if err == nil {
			return nil
		}
		if rsp != nil && rsp[2] == stateAddrNACK {
			return fmt.Errorf("usbbridge: NACK from address %#02x", addr)
		}
		if rsp == nil || retry >= ioRetries {
			return err
		}
		time.Sleep(retryDelay)
	}
}

// waitState polls until the engine reaches want. mu must be held.
func (b *Bridge) waitState(want byte, addr uint16) error {
	for retry := 0; retry < ioRetries; retry++ {
		state, err := b.status()
		if err != nil {
			return err
		}
		if state == want {
			return nil
		}
		if state == stateAddrNACK {
			return fmt.Errorf("usbbridge: NACK from address %#02x", addr)
		}
		time.Sleep(retryDelay)
	}
	return errors.New("usbbridge: transfer did not complete")
}

// i2cRead fills p from addr. cmd picks plain start or repeated start.
// mu must be held.
func (b *Bridge) i2cRead(cmd byte, addr uint16, p []byte) error {
	var msg [msgLen]byte
	msg[1] = byte(len(p))
	msg[2] = byte(len(p) >> 8)
	msg[3] = byte(addr<<1) | 1
	if err := b.sendI2C(cmd, &msg, addr); err != nil {
		return err
	}
	pos := 0
	for pos < len(p) {
		n, err := b.readChunk(p[pos:], addr)
		if err != nil {
			return err
		}
		pos += n
	}
	return nil
}

// readChunk drains one 60-byte data frame from the engine. mu must be
// held.
func (b *Bridge) readChunk(p []byte, addr uint16) (int, error) {
	for retry := 0; retry < ioRetries; retry++ {
		var msg [msgLen]byte
		rsp, err := b.send(cmdI2CReadGetData, &msg)
		if err != nil {
			if rsp != nil && rsp[2] == stateAddrNACK {
				return 0, fmt.Errorf("usbbridge: NACK from address %#02x", addr)
			}
			return 0, err
		}
		if rsp[3] == stateDataNotReady {
			time.Sleep(retryDelay)
			continue
		}
		n := int(rsp[3])
		if n > i2cChunk || n > len(p) {
			return 0, fmt.Errorf("usbbridge: bogus data count %d", n)
		}
		if n == 0 {
			time.Sleep(retryDelay)
			continue
		}
		copy(p[:n], rsp[4:4+n])
		return n, nil
	}
	return 0, errors.New("usbbridge: read data never became ready")
}

// gpioOut drives pin n as an output at level high. mu must be held.
func (b *Bridge) gpioOut(n int, high bool) error {
	var msg [msgLen]byte
	i := 2 + 4*n
	msg[i] = 1
	if high {
		msg[i+1] = 1
	}
	msg[i+2] = 1
	msg[i+3] = 0
	_, err := b.send(cmdGPIOSet, &msg)
	return err
}

// gpioIn switches pin n to an input. mu must be held.
func (b *Bridge) gpioIn(n int) error {
	var msg [msgLen]byte
	i := 2 + 4*n
	msg[i+2] = 1
	msg[i+3] = 1
	_, err := b.send(cmdGPIOSet, &msg)
	return err
}

// gpioGet returns pin n's level and direction (true = input). mu must be
// held.
func (b *Bridge) gpioGet(n int) (bool, bool, error) {
	var msg [msgLen]byte
	rsp, err := b.send(cmdGPIOGet, &msg)
	if err != nil {
		return false, false, err
	}
	i := 2 + 2*n
	if rsp[i] == 0xEE {
		return false, false, fmt.Errorf("usbbridge: GP%d is not in GPIO mode", n)
	}
	return rsp[i] != 0, rsp[i+1] != 0, nil
}
