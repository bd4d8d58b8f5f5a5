// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package meter implements a 1D level meter that renders to a terminal
// using ANSI color codes.
//
// Useful while bringing up a haptic device without LEDs or a scope:
// point it at a heartbeat or playback counter and watch it move.
package meter

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/periph/conn"
)

// Dev is a level meter that draws to the console.
type Dev struct {
	w     io.Writer
	cells int
	buf   bytes.Buffer
}

// New returns a Dev drawing a strip of cells to stdout.
func New(cells int) *Dev {
	return NewWriter(colorable.NewColorableStdout(), cells)
}

// NewWriter returns a Dev drawing to w, which must interpret ANSI
// escape codes. Strips shorter than one cell are rounded up.
func NewWriter(w io.Writer, cells int) *Dev {
	if cells < 1 {
		cells = 1
	}
	return &Dev{w: w, cells: cells}
}

func (d *Dev) String() string {
	return "Meter"
}

// Halt implements conn.Resource.
//
// It moves past the strip and restores the terminal colors.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Level redraws the strip in place with the fraction v of its cells
// lit. v must be in [0, 1].
func (d *Dev) Level(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("meter: level %v out of range", v)
	}
	lit := int(v*float64(d.cells) + 0.5)
	// This code is designed to minimize the amount of memory allocated
	// per refresh.
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < d.cells; i++ {
		c := dark
		if i < lit {
			c = rampColor(i, d.cells)
		}
		_, _ = io.WriteString(&d.buf, ansi256.Default.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, err := d.buf.WriteTo(d.w)
	return err
}

// dark is an unlit cell.
var dark = color.NRGBA{R: 0x28, G: 0x28, B: 0x28, A: 255}

// rampColor colors cell i of n: green over most of the strip, amber
// approaching the top, red at the top.
func rampColor(i, n int) color.NRGBA {
	switch f := (float64(i) + 0.5) / float64(n); {
	case f < 0.6:
		return color.NRGBA{R: 0x00, G: 0xC8, B: 0x00, A: 255}
	case f < 0.85:
		return color.NRGBA{R: 0xE6, G: 0xA0, B: 0x00, A: 255}
	default:
		return color.NRGBA{R: 0xDC, G: 0x00, B: 0x00, A: 255}
	}
}

var _ conn.Resource = &Dev{}
var _ fmt.Stringer = &Dev{}
