// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// hapticmon watches a CS40L25 and renders its liveness and playback
// activity as a terminal level strip.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"time"

	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"github.com/koffes/sdk-mcu-drivers/bsp"
	"github.com/koffes/sdk-mcu-drivers/bsp/i2cport"
	"github.com/koffes/sdk-mcu-drivers/bsp/serialbridge"
	_ "github.com/koffes/sdk-mcu-drivers/bsp/usbbridge"
	"github.com/koffes/sdk-mcu-drivers/cs40l25"
	"github.com/koffes/sdk-mcu-drivers/fwimg/fwfile"
	"github.com/koffes/sdk-mcu-drivers/meter"
)

func mainImpl() error {
	busName := flag.String("bus", "", "I²C bus to use, by name (default: first available)")
	addr := flag.Uint("addr", 0x40, "I²C device address")
	serialDev := flag.String("serial", "", "serial bridge port to use instead of I²C")
	fwPath := flag.String("fw", "", "runtime firmware image")
	hz := flag.Int("hz", 10, "sample rate")
	cells := flag.Int("cells", 20, "meter width in cells")
	verbose := flag.Bool("v", false, "verbose mode; logs every firmware event")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}
	if *fwPath == "" {
		return errors.New("a runtime firmware image is required, pass -fw")
	}
	if *hz < 1 || *hz > 1000 {
		return fmt.Errorf("unreasonable sample rate %d", *hz)
	}

	img, err := fwfile.ReadFile(*fwPath)
	if err != nil {
		return err
	}

	if _, err = host.Init(); err != nil {
		return err
	}

	var port bsp.Port
	if *serialDev != "" {
		br, err := serialbridge.Open(*serialDev, nil)
		if err != nil {
			return err
		}
		defer br.Close()
		if err := br.Ping(); err != nil {
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
	}

	// Playback and GPIO events spike the strip, liveness keeps it at
	// mid scale, a dead or hibernating firmware lets it drain.
	activity := 0.0
	d, err := cs40l25.New(port, &cs40l25.Opts{
		Firmware: img,
		OnEvent: func(e cs40l25.Event) {
			log.Printf("event: %s", e)
			activity = 1
		},
	})
	if err != nil {
		return err
	}
	if err := d.Boot(false); err != nil {
		return err
	}
	if err := d.PowerUp(); err != nil {
		return err
	}

	m := meter.New(*cells)
	defer m.Halt()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	t := time.NewTicker(time.Second / time.Duration(*hz))
	defer t.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-t.C:
		}
		if err := d.Process(); err != nil {
			return err
		}
		alive, err := d.HasProcessed()
		if err != nil {
			return err
		}
		activity *= 0.85
		if alive && activity < 0.6 {
			activity = 0.6
		}
		if err := m.Level(activity); err != nil {
			return err
		}
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "hapticmon: %s.\n", err)
		os.Exit(1)
	}
}
