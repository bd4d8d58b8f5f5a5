// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cs40l25

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpiotest"

	"github.com/koffes/sdk-mcu-drivers/bsp/bsptest"
)

func TestTriggerHaptic(t *testing.T) {
	mem := &bsptest.Mem{}
	d := newDev(t, mem, nil)
	// Before boot the ROM buzz generator plays.
	if err := d.TriggerHaptic(2); err != nil {
		t.Fatal(err)
	}
	if v, ok := mem.LastWrite(bhmBuzzReg); !ok || v != buzzTrigger {
		t.Fatal("ROM buzz not triggered")
	}
	boot(t, d)
	n := len(mem.Writes)
	if err := d.TriggerHaptic(4); err != nil {
		t.Fatal(err)
	}
	want := []bsptest.Write{
		{Reg: mboxDurationReg, Val: 0},
		{Reg: mboxTriggerReg, Val: 4},
	}
	if got := mem.Writes[n:]; !reflect.DeepEqual(got, want) {
		t.Fatalf("writes %+v, want %+v", got, want)
	}
}

func TestSetTriggerPreset(t *testing.T) {
	mem := &bsptest.Mem{}
	d := newDev(t, mem, nil)
	if err := d.SetTriggerPreset(1); !errors.Is(err, ErrNoFirmware) {
		t.Fatalf("SetTriggerPreset() = %v", err)
	}
	boot(t, d)
	n := len(mem.Writes)
	if err := d.SetTriggerPreset(-1); err == nil {
		t.Fatal("negative preset accepted")
	}
	if err := d.SetTriggerPreset(len(TriggerPresets)); err == nil {
		t.Fatal("out of range preset accepted")
	}
	if len(mem.Writes) != n {
		t.Fatal("rejected preset still touched the device")
	}

	if err := d.SetTriggerPreset(1); err != nil {
		t.Fatal(err)
	}
	en, _ := d.SymbolAddress(SymGPIOEnable)
	det, _ := d.SymbolAddress(SymButtonDetect)
	press, _ := d.SymbolAddress(SymButtonPressIndex)
	release, _ := d.SymbolAddress(SymButtonReleaseIndex)
	for _, c := range []struct{ reg, val uint32 }{
		{en, 1},
		{det, 1},
		{press, 3},
		{press + 4, 0},
		{press + 8, 0},
		{press + 12, 0},
		{release, 4},
		{release + 4, 0},
	} {
		if v, ok := mem.LastWrite(c.reg); !ok || v != c.val {
			t.Fatalf("control %#x = %#x (%t), want %#x", c.reg, v, ok, c.val)
		}
	}

	if err := d.SetTriggerPreset(0); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.LastWrite(en); v != 0 {
		t.Fatal("preset 0 left GPIO triggering enabled")
	}
	if v, _ := mem.LastWrite(det); v != 0 {
		t.Fatal("preset 0 left button detection enabled")
	}
}

func TestEnableHapticProcessing(t *testing.T) {
	mem := &bsptest.Mem{}
	d := newDev(t, mem, nil)
	boot(t, d)
	clabEn, _ := d.SymbolAddress(SymClabEnabled)
	peak, _ := d.SymbolAddress(SymClabPeakAmplitude)
	dynEn, _ := d.SymbolAddress(SymDynamicF0Enabled)
	if err := d.EnableHapticProcessing(true); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.LastWrite(clabEn); v != 1 {
		t.Fatal("CLAB not enabled")
	}
	if v, ok := mem.LastWrite(peak); !ok || v != clabDefaultPeak {
		t.Fatalf("CLAB peak %#x, want %#x", v, uint32(clabDefaultPeak))
	}
	if v, _ := mem.LastWrite(dynEn); v != 1 {
		t.Fatal("dynamic F0 tracking not enabled")
	}

	if err := d.EnableHapticProcessing(false); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.LastWrite(clabEn); v != 0 {
		t.Fatal("CLAB still enabled")
	}
	if v, _ := mem.LastWrite(dynEn); v != 0 {
		t.Fatal("dynamic F0 tracking still enabled")
	}
	peaks := 0
	for _, w := range mem.Writes {
		if w.Reg == peak {
			peaks++
		}
	}
	if peaks != 1 {
		t.Fatalf("peak amplitude written %d times, want 1", peaks)
	}

	// The calibration firmware carries no haptics algorithms.
	d = newDev(t, &bsptest.Mem{}, nil)
	if err := d.Boot(true); err != nil {
		t.Fatal(err)
	}
	if err := d.EnableHapticProcessing(true); err == nil {
		t.Fatal("enabled processing without the algorithms")
	}
}

func TestHeartbeatROM(t *testing.T) {
	mem := &bsptest.Mem{Regs: map[uint32]uint32{bhmHeartbeatReg: 3}}
	d := newDev(t, mem, nil)
	v, err := d.Heartbeat()
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Fatalf("heartbeat %d, want 3", v)
	}
	if ok, err := d.HasProcessed(); err != nil || ok {
		t.Fatalf("HasProcessed() = %t, %v on a stalled counter", ok, err)
	}
	mem.Regs[bhmHeartbeatReg] = 7
	if ok, err := d.HasProcessed(); err != nil || !ok {
		t.Fatalf("HasProcessed() = %t, %v on a running counter", ok, err)
	}
}

func TestHeartbeatFirmware(t *testing.T) {
	mem := &bsptest.Mem{}
	d := newDev(t, mem, nil)
	boot(t, d)
	hb, _ := d.SymbolAddress(SymHaloHeartbeat)
	mem.Script = map[uint32][]uint32{hb: {5, 5, 9}}
	v, err := d.Heartbeat()
	if err != nil {
		t.Fatal(err)
	}
	if v != 5 {
		t.Fatalf("heartbeat %d, want 5", v)
	}
	if ok, _ := d.HasProcessed(); ok {
		t.Fatal("stalled counter reported as processing")
	}
	if ok, _ := d.HasProcessed(); !ok {
		t.Fatal("running counter reported as stalled")
	}
}

func TestStream(t *testing.T) {
	// Power-on routing: PLL on MCLK, DAC fed by the DSP.
	mem := &bsptest.Mem{Regs: map[uint32]uint32{
		refclkReg: refclkMCLK,
		dacSrcReg: srcDSP1TX1,
	}}
	d := newDev(t, mem, nil)
	if err := d.StartStream(); !errors.Is(err, ErrNoFirmware) {
		t.Fatalf("StartStream() = %v", err)
	}
	boot(t, d)
	if err := d.StartStream(); err != nil {
		t.Fatal(err)
	}
	if v := mem.Regs[refclkReg]; v != refclkBCLK {
		t.Fatalf("PLL refclk %#x, want the bit clock", v)
	}
	if v := mem.Regs[dacSrcReg]; v != srcASPRX1 {
		t.Fatalf("DAC source %#x, want the serial port", v)
	}
	if v := mem.Regs[pwrCtrl1Reg]; v&globalEnBit == 0 {
		t.Fatal("output path not enabled")
	}
	if err := d.StopStream(); err != nil {
		t.Fatal(err)
	}
	if v := mem.Regs[dacSrcReg]; v != srcDSP1TX1 {
		t.Fatalf("DAC source %#x, want the DSP", v)
	}
	if v := mem.Regs[refclkReg]; v != refclkMCLK {
		t.Fatalf("PLL refclk %#x, want the master clock", v)
	}
}

func TestCalibrate(t *testing.T) {
	mem := &bsptest.Mem{}
	d := newDev(t, mem, nil)
	if _, err := d.Calibrate(); !errors.Is(err, ErrNoFirmware) {
		t.Fatalf("Calibrate() = %v", err)
	}
	if err := d.Boot(true); err != nil {
		t.Fatal(err)
	}
	calEn, _ := d.SymbolAddress(SymCalEnable)
	f0, _ := d.SymbolAddress(SymCalF0)
	redc, _ := d.SymbolAddress(SymCalReDC)
	q, _ := d.SymbolAddress(SymCalQ)
	mem.Script = map[uint32][]uint32{f0: {0, 0x28F5C2}} // converges on the second poll
	mem.Regs[redc] = 0x0E1000
	mem.Regs[q] = 0x1A0000
	c, err := d.Calibrate()
	if err != nil {
		t.Fatal(err)
	}
	if c.F0 != 0x28F5C2 || c.ReDC != 0x0E1000 || c.Q != 0x1A0000 {
		t.Fatalf("calibration %+v", c)
	}
	if hz := c.F0Hz(); hz < 163.8 || hz > 163.9 {
		t.Fatalf("F0 %v Hz, want about 163.84", hz)
	}
	if ohms := c.ReDCOhms(); ohms < 7.0 || ohms > 7.1 {
		t.Fatalf("ReDC %v ohms, want about 7.03", ohms)
	}
	var enables []uint32
	for _, w := range mem.Writes {
		if w.Reg == calEn {
			enables = append(enables, w.Val)
		}
	}
	if !reflect.DeepEqual(enables, []uint32{1, 0}) {
		t.Fatalf("calibration enable writes %v, want [1 0]", enables)
	}

	// The runtime firmware has no calibration controls.
	d = newDev(t, &bsptest.Mem{}, nil)
	boot(t, d)
	if _, err := d.Calibrate(); err == nil {
		t.Fatal("calibrated on the runtime firmware")
	}
}

func TestCalibrateTimeout(t *testing.T) {
	mem := &bsptest.Mem{}
	d := newDev(t, mem, nil)
	if err := d.Boot(true); err != nil {
		t.Fatal(err)
	}
	// F0 stays zero: the tone sweep never converges.
	if _, err := d.Calibrate(); err == nil {
		t.Fatal("calibration converged on a dead control")
	}
}

func TestSetCalibration(t *testing.T) {
	mem := &bsptest.Mem{}
	d := newDev(t, mem, nil)
	if err := d.SetCalibration(Calibration{}); !errors.Is(err, ErrNoFirmware) {
		t.Fatalf("SetCalibration() = %v", err)
	}
	boot(t, d)
	c := Calibration{F0: 0x28F5C2, ReDC: 0x0E1000, Q: 0x1A0000}
	if err := d.SetCalibration(c); err != nil {
		t.Fatal(err)
	}
	f0, _ := d.SymbolAddress(SymF0Stored)
	redc, _ := d.SymbolAddress(SymReDCStored)
	q, _ := d.SymbolAddress(SymQStored)
	if mem.Regs[f0] != c.F0 || mem.Regs[redc] != c.ReDC || mem.Regs[q] != c.Q {
		t.Fatalf("stored %#x %#x %#x", mem.Regs[f0], mem.Regs[redc], mem.Regs[q])
	}
}

func TestDynamicF0(t *testing.T) {
	mem := &bsptest.Mem{}
	d := newDev(t, mem, nil)
	boot(t, d)
	tbl, _ := d.SymbolAddress(SymDynamicF0Table)
	redc, _ := d.SymbolAddress(SymDynamicReDC)
	mem.Script = map[uint32][]uint32{tbl: {dynF0Empty, 2<<13 | 1310}}
	if _, err := d.DynamicF0(); err == nil {
		t.Fatal("empty table produced a measurement")
	}
	mem.Regs[redc] = 0x0E2000
	e, err := d.DynamicF0()
	if err != nil {
		t.Fatal(err)
	}
	if e.Index != 2 || e.F0 != 1310 || e.ReDC != 0x0E2000 {
		t.Fatalf("entry %+v", e)
	}
	if hz := e.Hz(); hz != 163.75 {
		t.Fatalf("F0 %v Hz, want 163.75", hz)
	}

	// The calibration firmware does not track F0.
	d = newDev(t, &bsptest.Mem{}, nil)
	if err := d.Boot(true); err != nil {
		t.Fatal(err)
	}
	if _, err := d.DynamicF0(); err == nil {
		t.Fatal("measured F0 without the tracking algorithm")
	}
}

func TestProcess(t *testing.T) {
	var events []Event
	mem := &bsptest.Mem{}
	d := newDev(t, mem, &Opts{OnEvent: func(e Event) { events = append(events, e) }})
	boot(t, d)
	g1, _ := d.SymbolAddress(SymGPIO1Event)
	tp, _ := d.SymbolAddress(SymTriggerPlaybackEvent)

	// Nothing pending: nothing else is read.
	if err := d.Process(); err != nil {
		t.Fatal(err)
	}
	if mem.Reads[irq1Eint1Reg] != 0 {
		t.Fatal("latches read with no interrupt pending")
	}
	if len(events) != 0 {
		t.Fatalf("phantom events %v", events)
	}

	mem.Script = map[uint32][]uint32{
		irq1StatusReg: {irqPendingBit},
		g1:            {1},
		tp:            {2},
	}
	if err := d.Process(); err != nil {
		t.Fatal(err)
	}
	want := []Event{
		{Source: EventGPIO1, Value: 1},
		{Source: EventTriggerPlayback, Value: 2},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events %v, want %v", events, want)
	}
	if mem.Regs[g1] != eventNone {
		t.Fatal("GPIO1 event control not parked")
	}
	if mem.Regs[tp] != eventNone {
		t.Fatal("trigger playback event control not parked")
	}
}

func TestProcessErrorLatch(t *testing.T) {
	var events []Event
	mem := &bsptest.Mem{Script: map[uint32][]uint32{
		irq1StatusReg: {irqPendingBit},
		irq1Eint1Reg:  {ampShortBit | overtempBit},
	}}
	// No firmware loaded: the hardware latches are serviced on
	// their own.
	d := newDev(t, mem, &Opts{OnEvent: func(e Event) { events = append(events, e) }})
	if err := d.Process(); err != nil {
		t.Fatal(err)
	}
	if v, ok := mem.LastWrite(irq1Eint1Reg); !ok || v != ampShortBit|overtempBit {
		t.Fatal("error latches not cleared")
	}
	want := []Event{
		{Source: EventAmpShort, Value: ampShortBit | overtempBit},
		{Source: EventOvertemp, Value: ampShortBit | overtempBit},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events %v, want %v", events, want)
	}
}

func TestWatchInterrupts(t *testing.T) {
	evc := make(chan Event, 4)
	mem := &bsptest.Mem{}
	d := newDev(t, mem, &Opts{OnEvent: func(e Event) { evc <- e }})
	boot(t, d)
	g1, _ := d.SymbolAddress(SymGPIO1Event)
	mem.Script = map[uint32][]uint32{
		irq1StatusReg: {irqPendingBit},
		g1:            {1},
	}

	pin := &gpiotest.Pin{N: "INT", Num: 3, EdgesChan: make(chan gpio.Level)}
	stop, err := d.WatchInterrupts(pin)
	if err != nil {
		t.Fatal(err)
	}
	pin.EdgesChan <- gpio.Low
	select {
	case e := <-evc:
		if e.Source != EventGPIO1 {
			t.Fatalf("event %v, want gpio1", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event from the watcher")
	}
	if err := stop(); err != nil {
		t.Fatal(err)
	}
}

func TestWatchInterruptsError(t *testing.T) {
	if _, err := (&Dev{}).WatchInterrupts(nil); err == nil {
		t.Fatal("nil pin accepted")
	}

	errPort := errors.New("port gone")
	mem := &bsptest.Mem{Fail: map[uint32]error{irq1StatusReg: errPort}}
	d := newDev(t, mem, nil)
	pin := &gpiotest.Pin{N: "INT", Num: 3, EdgesChan: make(chan gpio.Level)}
	stop, err := d.WatchInterrupts(pin)
	if err != nil {
		t.Fatal(err)
	}
	// The channel is unbuffered: the watcher holds the edge once
	// this send returns.
	pin.EdgesChan <- gpio.Low
	if err := stop(); !errors.Is(err, errPort) {
		t.Fatalf("stop() = %v, want the port failure", err)
	}
}
