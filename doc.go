// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mcudrivers is for documentation only. Explains how to setup
// libusb.
//
// The bsp/usbbridge package talks to USB protocol bridges through
// libusb, which cgo links against. Everything else in this repository
// builds without cgo.
//
// Debian
//
// This includes Raspbian and Ubuntu.
//
// You need libusb-1.0 and pkg-config, run:
//
//  sudo apt install libusb-1.0-0-dev pkg-config
//
// MacOS
//
// You can install libusb via Homebrew (https://brew.sh). First install
// Homebrew.
//
// Either follow the official instructions at https://brew.sh to install
// system wide, or install without root into your home directory and add
// its bin directory to your PATH.
//
// Then install libusb:
//
//  brew install libusb pkg-config
//
// Linux permissions
//
// Without a udev rule, opening the bridge needs root on most Linux
// systems. Create /etc/udev/rules.d/70-mcp2221a.rules containing:
//
//  SUBSYSTEM=="usb", ATTRS{idVendor}=="04d8", ATTRS{idProduct}=="00dd", MODE="0666"
//
// then replug the device.
package mcudrivers
