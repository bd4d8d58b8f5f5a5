// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// cs40l25-boot boots firmware on a CS40L25 haptics amp and optionally
// characterizes the actuator or plays a waveform.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"github.com/koffes/sdk-mcu-drivers/bsp"
	"github.com/koffes/sdk-mcu-drivers/bsp/i2cport"
	"github.com/koffes/sdk-mcu-drivers/bsp/serialbridge"
	_ "github.com/koffes/sdk-mcu-drivers/bsp/usbbridge"
	"github.com/koffes/sdk-mcu-drivers/cs40l25"
	"github.com/koffes/sdk-mcu-drivers/fwimg"
	"github.com/koffes/sdk-mcu-drivers/fwimg/fwfile"
)

func mainImpl() error {
	busName := flag.String("bus", "", "I²C bus to use, by name (default: first available)")
	addr := flag.Uint("addr", 0x40, "I²C device address")
	serialDev := flag.String("serial", "", "serial bridge port to use instead of I²C")
	resetName := flag.String("reset", "", "GPIO pin wired to /RESET, by name")
	fwPath := flag.String("fw", "", "runtime firmware image")
	calPath := flag.String("cal", "", "calibration firmware image")
	calBoot := flag.Bool("calboot", false, "boot the calibration image and stop")
	calibrate := flag.Bool("calibrate", false, "characterize the actuator, then boot the runtime firmware with the results")
	trigger := flag.Int("trigger", -1, "wavetable index to play once booted")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}
	if (*calBoot || *calibrate) && *calPath == "" {
		return errors.New("a calibration image is required, pass -cal")
	}
	if !*calBoot && *fwPath == "" {
		return errors.New("a runtime firmware image is required, pass -fw")
	}
	if *trigger > 255 {
		return fmt.Errorf("wavetable index %d out of range", *trigger)
	}

	var fw, cal []byte
	var err error
	if *fwPath != "" {
		if fw, err = fwfile.ReadFile(*fwPath); err != nil {
			return err
		}
	}
	if *calPath != "" {
		if cal, err = fwfile.ReadFile(*calPath); err != nil {
			return err
		}
	}

	if _, err = host.Init(); err != nil {
		return err
	}

	var port bsp.Port
	var rst gpio.PinIO
	if *serialDev != "" {
		if *resetName != "" {
			return errors.New("-reset selects a local GPIO, the serial bridge drives its own reset line")
		}
		br, err := serialbridge.Open(*serialDev, nil)
		if err != nil {
			return err
		}
		defer br.Close()
		if err := br.Ping(); err != nil {
			return err
		}
		if err := br.ResetDevice(); err != nil {
			return err
		}
		port = br
	} else {
		b, err := i2creg.Open(*busName)
		if err != nil {
			return err
		}
		defer b.Close()
		if port, err = i2cport.New(b, &i2cport.Opts{Addr: uint16(*addr)}); err != nil {
			return err
		}
		if *resetName != "" {
			if rst = gpioreg.ByName(*resetName); rst == nil {
				return fmt.Errorf("no GPIO pin %q", *resetName)
			}
		}
	}

	d, err := cs40l25.New(port, &cs40l25.Opts{
		Firmware:    fw,
		CalFirmware: cal,
		Reset:       rst,
		OnProgress: func(p fwimg.Progress) {
			log.Printf("block %d/%d, %d bytes written", p.Blocks, p.TotalBlocks, p.Written)
		},
	})
	if err != nil {
		return err
	}
	if rst != nil || *serialDev != "" {
		// The reset latched BOOT_DONE, so attach cleanly.
		if err := d.Reset(); err != nil {
			return err
		}
	}

	if *calibrate {
		if err := bootAndStart(d, true); err != nil {
			return err
		}
		c, err := d.Calibrate()
		if err != nil {
			return err
		}
		fmt.Printf("f0: %.2f Hz, redc: %.3f ohm, q: %.2f\n", c.F0Hz(), c.ReDCOhms(), c.QFactor())
		if err := d.PowerDown(); err != nil {
			return err
		}
		if err := bootAndStart(d, false); err != nil {
			return err
		}
		if err := d.SetCalibration(c); err != nil {
			return err
		}
	} else {
		if err := bootAndStart(d, *calBoot); err != nil {
			return err
		}
	}
	fmt.Println(d.Firmware())

	if *trigger >= 0 {
		if err := d.TriggerHaptic(uint8(*trigger)); err != nil {
			return err
		}
		fmt.Printf("triggered wavetable index %d\n", *trigger)
	}
	return nil
}

func bootAndStart(d *cs40l25.Dev, cal bool) error {
	if err := d.Boot(cal); err != nil {
		return err
	}
	return d.PowerUp()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "cs40l25-boot: %s.\n", err)
		os.Exit(1)
	}
}
