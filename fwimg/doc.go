// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fwimg parses and assembles fw_img firmware images for the HALO
// and ADSP2 coprocessors embedded in Cirrus Logic codec devices.
//
// A fw_img file carries everything a device needs to boot a coprocessor:
// program and data blocks tagged with their target addresses, a symbol
// table mapping firmware control identifiers to device addresses, and the
// list of algorithm ids present in the build.
//
// Format
//
// All fields are little-endian 32-bit words.
//
//  Preheader:  magic 0x54B998FF, format revision (1 or 2)
//  Header:     image size, symbol count, algorithm count, firmware id,
//              firmware revision, data block count
//              (revision ≥2 adds: maximum block size, image version)
//  Symbols:    (symbol id, device address) per entry
//  Algorithms: one id per entry
//  Blocks:     device address, payload length, payload, zero-padded to a
//              word boundary
//  Footer:     magic 0x936BE2A6, CRC-32 (IEEE) of all preceding bytes
//
// Revision 1 images are written with blocks of at most 4140 bytes; revision
// ≥2 images declare their own maximum in the header.
//
// Streaming
//
// Images can be larger than the memory available to the caller, so Session
// parses incrementally: the caller hands it one bounded window of image
// bytes at a time and calls Process until the window is drained. Any field
// or payload may straddle a window boundary; the parse result is identical
// no matter how the image is split.
//
// Session.Load drives the whole sequence from an io.Reader and forwards
// each assembled block to a BlockWriter, which is how the device packages
// in this module boot their coprocessors.
package fwimg
