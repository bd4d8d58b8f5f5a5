// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fwimg

import (
	"encoding/binary"
	"fmt"
)

// SymbolEntry maps a firmware control identifier to a device address.
// Symbol ids are assigned by the firmware build; the addresses are where
// the corresponding controls live once the image is running.
type SymbolEntry struct {
	ID   uint32
	Addr uint32
}

// Info is the metadata accumulated while parsing an image: header fields,
// symbol table and algorithm-id list. Device drivers retain it after a
// successful boot for runtime symbol access.
type Info struct {
	// Revision is the image format revision from the preheader.
	Revision uint32
	// Size is the total image size in bytes, preheader through footer.
	Size uint32
	// SymbolCount and AlgorithmCount are the header-declared entry counts.
	SymbolCount    uint32
	AlgorithmCount uint32
	// FirmwareID and FirmwareRevision identify the firmware build.
	FirmwareID       uint32
	FirmwareRevision uint32
	// DataBlocks is the number of blocks in the image.
	DataBlocks uint32
	// MaxBlockSize is the largest block payload the image may carry. For
	// revision 1 images it is the fixed format maximum.
	MaxBlockSize uint32
	// ImageVersion is only present in revision ≥2 images.
	ImageVersion uint32

	Symbols      []SymbolEntry
	AlgorithmIDs []uint32
}

// Symbol returns the device address of the given symbol id.
func (i *Info) Symbol(id uint32) (uint32, bool) {
	for _, s := range i.Symbols {
		if s.ID == id {
			return s.Addr, true
		}
	}
	return 0, false
}

// HasAlgorithm reports whether the firmware build contains the algorithm.
func (i *Info) HasAlgorithm(id uint32) bool {
	for _, a := range i.AlgorithmIDs {
		if a == id {
			return true
		}
	}
	return false
}

func (i *Info) String() string {
	return fmt.Sprintf("fw_img v%d id=%#x rev=%#x (%d symbols, %d algorithms, %d blocks)",
		i.Revision, i.FirmwareID, i.FirmwareRevision, len(i.Symbols), len(i.AlgorithmIDs), i.DataBlocks)
}

// ImageSize reads the declared total size out of a raw image blob without
// parsing it, the way boot code sizes its read loop before streaming. The
// blob must start with a valid preheader.
func ImageSize(data []byte) (uint32, error) {
	if len(data) < preheaderLen+4 {
		return 0, ErrTruncated
	}
	if binary.LittleEndian.Uint32(data) != Magic1 {
		return 0, ErrBadMagic
	}
	return binary.LittleEndian.Uint32(data[preheaderLen:]), nil
}
