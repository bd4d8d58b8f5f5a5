// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package usbbridge

import (
	"errors"
	"sync"

	"github.com/google/gousb"
	"periph.io/x/periph"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/pin"
	"periph.io/x/periph/conn/pin/pinreg"
)

// All returns the bridges opened during host.Init, in bus enumeration
// order.
func All() []*Bridge {
	mu.Lock()
	defer mu.Unlock()
	out := make([]*Bridge, len(all))
	copy(out, all)
	return out
}

//

var (
	mu  sync.Mutex
	all []*Bridge

	// usbCtx lives for the process; the bridges found at init share it.
	usbCtx *gousb.Context
)

// registerBridge publishes b's I²C bus and pins in the periph registries.
func registerBridge(b *Bridge) error {
	if err := i2creg.Register(b.name, nil, -1, func() (i2c.BusCloser, error) {
		return b.I2C()
	}); err != nil {
		return err
	}
	hdr := [][]pin.Pin{{b.GP0}, {b.GP1}, {b.GP2}, {b.GP3}}
	if err := pinreg.Register(b.name, hdr); err != nil {
		return err
	}
	for _, p := range []*Pin{b.GP0, b.GP1, b.GP2, b.GP3} {
		if err := gpioreg.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// driver implements periph.Driver.
type driver struct {
}

func (d *driver) String() string {
	return "usbbridge"
}

func (d *driver) Prerequisites() []string {
	return nil
}

func (d *driver) Init() (bool, error) {
	mu.Lock()
	defer mu.Unlock()
	usbCtx = gousb.NewContext()
	devs, err := usbCtx.OpenDevices(func(dd *gousb.DeviceDesc) bool {
		return dd.Vendor == gousb.ID(DefaultOpts.VID) && dd.Product == gousb.ID(DefaultOpts.PID)
	})
	if len(devs) == 0 {
		if err != nil {
			return false, err
		}
		return false, errors.New("usbbridge: no bridge found")
	}
	for _, dev := range devs {
		b, err1 := setup(dev)
		if err1 != nil {
			// A half-broken bridge should not stop the others.
			err = err1
			continue
		}
		all = append(all, b)
		if err2 := registerBridge(b); err2 != nil {
			return true, err2
		}
	}
	return true, err
}

func init() {
	periph.MustRegister(&driver{})
}

var _ periph.Driver = &driver{}
