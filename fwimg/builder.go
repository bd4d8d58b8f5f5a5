// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fwimg

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Builder assembles a valid image from parts. It is the producing side of
// the format, used by packing tools and tests; Session parses its output
// back.
type Builder struct {
	// Revision selects the format revision; defaults to RevisionV2 when 0.
	Revision uint32
	// FirmwareID and FirmwareRevision identify the firmware build.
	FirmwareID       uint32
	FirmwareRevision uint32
	// ImageVersion is emitted for revision ≥2 images.
	ImageVersion uint32
	// MaxBlockSize overrides the declared block capacity for revision ≥2
	// images. When 0 the largest added block is declared.
	MaxBlockSize uint32

	syms   []SymbolEntry
	algs   []uint32
	blocks []builderBlock
}

type builderBlock struct {
	addr uint32
	data []byte
}

// AddSymbol appends a symbol table entry.
func (b *Builder) AddSymbol(id, addr uint32) {
	b.syms = append(b.syms, SymbolEntry{ID: id, Addr: addr})
}

// AddAlgorithm appends an algorithm id.
func (b *Builder) AddAlgorithm(id uint32) {
	b.algs = append(b.algs, id)
}

// AddBlock appends a data block targeting the given device address. The
// payload is copied.
func (b *Builder) AddBlock(addr uint32, data []byte) {
	b.blocks = append(b.blocks, builderBlock{addr: addr, data: append([]byte(nil), data...)})
}

// Bytes emits the image: preheader, header, symbol table, algorithm ids,
// padded blocks, and a footer carrying the CRC-32 of everything before it.
func (b *Builder) Bytes() ([]byte, error) {
	rev := b.Revision
	if rev == 0 {
		rev = RevisionV2
	}
	if rev < RevisionV1 || rev > maxRevision {
		return nil, fmt.Errorf("%w %d", ErrUnsupportedRevision, rev)
	}

	maxBlock := uint32(MaxBlockSizeV1)
	if rev >= RevisionV2 {
		maxBlock = b.MaxBlockSize
		if maxBlock == 0 {
			for _, blk := range b.blocks {
				if uint32(len(blk.data)) > maxBlock {
					maxBlock = uint32(len(blk.data))
				}
			}
			if maxBlock == 0 {
				maxBlock = 4
			}
		}
	}
	size := uint64(preheaderLen + headerLenV1)
	if rev >= RevisionV2 {
		size = preheaderLen + headerLenV2
	}
	size += 8*uint64(len(b.syms)) + 4*uint64(len(b.algs)) + footerLen
	for i, blk := range b.blocks {
		if len(blk.data) == 0 {
			return nil, fmt.Errorf("fwimg: block %d is empty", i)
		}
		if uint32(len(blk.data)) > maxBlock {
			return nil, fmt.Errorf("fwimg: block %d is %d bytes, format allows %d", i, len(blk.data), maxBlock)
		}
		size += 8 + uint64(len(blk.data)) + uint64(pad4(len(blk.data)))
	}
	if size > 0xFFFFFFFF {
		return nil, fmt.Errorf("fwimg: image of %d bytes exceeds the format limit", size)
	}

	out := make([]byte, 0, size)
	out = word(out, Magic1)
	out = word(out, rev)
	out = word(out, uint32(size))
	out = word(out, uint32(len(b.syms)))
	out = word(out, uint32(len(b.algs)))
	out = word(out, b.FirmwareID)
	out = word(out, b.FirmwareRevision)
	out = word(out, uint32(len(b.blocks)))
	if rev >= RevisionV2 {
		out = word(out, maxBlock)
		out = word(out, b.ImageVersion)
	}
	for _, s := range b.syms {
		out = word(out, s.ID)
		out = word(out, s.Addr)
	}
	for _, a := range b.algs {
		out = word(out, a)
	}
	for _, blk := range b.blocks {
		out = word(out, blk.addr)
		out = word(out, uint32(len(blk.data)))
		out = append(out, blk.data...)
		for i := 0; i < pad4(len(blk.data)); i++ {
			out = append(out, 0)
		}
	}
	crc := crc32.ChecksumIEEE(out)
	out = word(out, Magic2)
	out = word(out, crc)
	return out, nil
}

func word(dst []byte, w uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], w)
	return append(dst, buf[:]...)
}

func pad4(n int) int {
	return (4 - n%4) % 4
}
