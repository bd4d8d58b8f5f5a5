// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs40l25

import (
	"errors"
	"fmt"

	"periph.io/x/periph/conn/gpio"
)

// EventSource identifies what raised an event.
type EventSource int

// Event sources. The GPIO and playback sources come from firmware event
// controls, AmpShort and Overtemp from the chip's error latches.
const (
	EventGPIO1 EventSource = iota
	EventGPIO2
	EventGPIO3
	EventGPIO4
	EventGPIOPlayback
	EventTriggerPlayback
	EventRXReady
	EventHardware
	EventAmpShort
	EventOvertemp
)

func (s EventSource) String() string {
	switch s {
	case EventGPIO1:
		return "gpio1"
	case EventGPIO2:
		return "gpio2"
	case EventGPIO3:
		return "gpio3"
	case EventGPIO4:
		return "gpio4"
	case EventGPIOPlayback:
		return "gpio-playback"
	case EventTriggerPlayback:
		return "trigger-playback"
	case EventRXReady:
		return "rx-ready"
	case EventHardware:
		return "hardware"
	case EventAmpShort:
		return "amp-short"
	case EventOvertemp:
		return "overtemp"
	default:
		return fmt.Sprintf("EventSource(%d)", int(s))
	}
}

// Event is one decoded device event. Value is the raw event code.
type Event struct {
	Source EventSource
	Value  uint32
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%#x)", e.Source, e.Value)
}

var eventSyms = []struct {
	id  uint32
	src EventSource
}{
	{SymGPIO1Event, EventGPIO1},
	{SymGPIO2Event, EventGPIO2},
	{SymGPIO3Event, EventGPIO3},
	{SymGPIO4Event, EventGPIO4},
	{SymGPIOPlaybackEvent, EventGPIOPlayback},
	{SymTriggerPlaybackEvent, EventTriggerPlayback},
	{SymRXReadyEvent, EventRXReady},
	{SymHardwareEvent, EventHardware},
}

// Process services a pending interrupt: it clears the chip's error
// latches, collects pending firmware event controls and parks them back
// at their idle value. Decoded events go to Opts.OnEvent. With nothing
// pending Process returns without touching event state.
func (d *Dev) Process() error {
	st, err := d.p.ReadReg(irq1StatusReg)
	if err != nil {
		return err
	}
	if st&irqPendingBit == 0 {
		return nil
	}
	eint, err := d.p.ReadReg(irq1Eint1Reg)
	if err != nil {
		return err
	}
	if eint != 0 {
		if err := d.p.WriteReg(irq1Eint1Reg, eint); err != nil {
			return err
		}
		if eint&ampShortBit != 0 {
			d.emit(Event{Source: EventAmpShort, Value: eint})
		}
		if eint&overtempBit != 0 {
			d.emit(Event{Source: EventOvertemp, Value: eint})
		}
	}
	if d.fw == nil {
		return nil
	}
	for _, es := range eventSyms {
		addr, ok := d.fw.Symbol(es.id)
		if !ok {
			continue
		}
		v, err := d.p.ReadReg(addr)
		if err != nil {
			return err
		}
		if v == 0 || v == eventNone {
			continue
		}
		if err := d.p.WriteReg(addr, eventNone); err != nil {
			return err
		}
		d.emit(Event{Source: es.src, Value: v})
	}
	return nil
}

func (d *Dev) emit(ev Event) {
	if d.opts.OnEvent != nil {
		d.opts.OnEvent(ev)
	}
}

// WatchInterrupts services the interrupt line from a goroutine: pin is
// configured for falling edges (the line is active low) and Process
// runs after each one.
//
// The returned stop function ends the watch, waits for the goroutine
// and reports the Process failure that may already have ended it. Call
// it exactly once.
func (d *Dev) WatchInterrupts(pin gpio.PinIO) (func() error, error) {
	if pin == nil {
		return nil, errors.New("cs40l25: nil interrupt pin")
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		for {
			select {
			case <-stop:
				done <- nil
				return
			default:
			}
			if !pin.WaitForEdge(watchTick) {
				continue
			}
			if err := d.Process(); err != nil {
				done <- err
				return
			}
		}
	}()
	return func() error {
		close(stop)
		return <-done
	}, nil
}
