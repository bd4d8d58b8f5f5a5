// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs47l15_test

import (
	"fmt"
	"log"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"github.com/koffes/sdk-mcu-drivers/bsp/spiport"
	"github.com/koffes/sdk-mcu-drivers/cs47l15"
	"github.com/koffes/sdk-mcu-drivers/fwimg/fwfile"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	img, err := fwfile.ReadFile("cs47l15_dsp1.fw_img")
	if err != nil {
		log.Fatal(err)
	}

	// Use spireg SPI port registry to find the first available SPI port.
	p, err := spireg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	port, err := spiport.New(p, nil)
	if err != nil {
		log.Fatal(err)
	}
	d, err := cs47l15.New(port, nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		log.Fatal(err)
	}
	if err := d.SetSysClock(24576 * physic.KiloHertz); err != nil {
		log.Fatal(err)
	}
	if err := d.BootDSP(img); err != nil {
		log.Fatal(err)
	}
	if err := d.StartDSP(); err != nil {
		log.Fatal(err)
	}
	fmt.Println(d.Firmware())
}
