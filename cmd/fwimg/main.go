// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// fwimg prints out information about a fw_img firmware image file.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/koffes/sdk-mcu-drivers/fwimg"
	"github.com/koffes/sdk-mcu-drivers/fwimg/fwfile"
)

// blockMap collects the data block layout instead of programming a
// device.
type blockMap struct {
	addrs []uint32
	sizes []int
}

func (b *blockMap) WriteBlock(addr uint32, p []byte) error {
	b.addrs = append(b.addrs, addr)
	b.sizes = append(b.sizes, len(p))
	return nil
}

func mainImpl() error {
	verbose := flag.Bool("v", false, "verbose mode; also lists the symbol table")
	sum := flag.Bool("sum", false, "only verify the image checksum")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)
	if flag.NArg() != 1 {
		return errors.New("specify one image file, try -help")
	}

	name := flag.Arg(0)
	data, err := fwfile.ReadFile(name)
	if err != nil {
		return err
	}
	log.Printf("%s: %d bytes decoded", name, len(data))

	var bm blockMap
	info, err := fwimg.Load(&bm, bytes.NewReader(data), nil)
	if err != nil {
		return err
	}
	if *sum {
		fmt.Printf("%s: checksum OK\n", name)
		return nil
	}

	fmt.Printf("%s: %s\n", name, info)
	fmt.Printf("  Format revision:   %d\n", info.Revision)
	fmt.Printf("  Firmware id:       %#x\n", info.FirmwareID)
	fmt.Printf("  Firmware revision: %#x\n", info.FirmwareRevision)
	if info.Revision >= 2 {
		fmt.Printf("  Image version:     %#x\n", info.ImageVersion)
		fmt.Printf("  Max block size:    %d\n", info.MaxBlockSize)
	}
	fmt.Printf("  Symbols:           %d\n", info.SymbolCount)
	fmt.Printf("  Algorithms:        %d\n", info.AlgorithmCount)
	for _, id := range info.AlgorithmIDs {
		fmt.Printf("    algorithm %#06x\n", id)
	}
	fmt.Printf("  Data blocks:       %d\n", info.DataBlocks)
	for i, a := range bm.addrs {
		fmt.Printf("    block %2d: %5d bytes at %#08x\n", i, bm.sizes[i], a)
	}
	if *verbose {
		for _, s := range info.Symbols {
			fmt.Printf("  symbol %#06x at %#08x\n", s.ID, s.Addr)
		}
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "fwimg: %s.\n", err)
		os.Exit(1)
	}
}
