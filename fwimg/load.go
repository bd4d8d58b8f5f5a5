// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fwimg

import (
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the window size Load reads per fetch when LoadOpts
// does not override it. It matches the staging buffer the reference boot
// sequences use.
const DefaultChunkSize = 1024

// BlockWriter receives assembled blocks during a boot. Device drivers
// implement it by issuing the payload to the device control port at the
// given address. A write failure aborts the boot; retries, if any, belong
// to the transport underneath.
type BlockWriter interface {
	WriteBlock(addr uint32, p []byte) error
}

// Progress reports boot progress after each block write.
type Progress struct {
	// Blocks is the number of blocks written so far, TotalBlocks the
	// header-declared count.
	Blocks      int
	TotalBlocks int
	// Written is the payload byte count written so far.
	Written int64
}

// LoadOpts adjusts a Load call. The zero value (or nil) selects defaults.
type LoadOpts struct {
	// ChunkSize is the window size per fetch. Defaults to DefaultChunkSize.
	ChunkSize int
	// Progress, when set, observes every block write.
	Progress func(Progress)
}

// Load streams an image from r with a fresh Session. See Session.Load.
func Load(dst BlockWriter, r io.Reader, opts *LoadOpts) (*Info, error) {
	var s Session
	return s.Load(dst, r, opts)
}

// Load boots one image: it resets the Session, pulls fixed-size chunks
// from r, parses them, and hands every assembled block to dst. The final
// chunk shrinks to the image remainder; a chunk may yield several blocks
// and a block may span several chunks.
//
// On success Load returns the image Info snapshot. Any parse error, read
// error or block write failure aborts the load; an image that ends before
// its declared content (a final block shorter than its declared length
// included) fails with ErrTruncated. Load stops reading once the image
// footer is verified.
func (s *Session) Load(dst BlockWriter, r io.Reader, opts *LoadOpts) (*Info, error) {
	if dst == nil {
		return nil, errors.New("fwimg: nil block writer")
	}
	if r == nil {
		return nil, errors.New("fwimg: nil image reader")
	}
	chunk := DefaultChunkSize
	var progress func(Progress)
	if opts != nil {
		if opts.ChunkSize > 0 {
			chunk = opts.ChunkSize
		}
		progress = opts.Progress
	}

	s.Reset()
	if cap(s.winBuf) < chunk {
		s.winBuf = make([]byte, chunk)
	}
	buf := s.winBuf[:chunk]

	blocks := 0
	var written int64
	for !s.Done() {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			s.SetWindow(buf[:n])
			for {
				res, perr := s.Process()
				if perr != nil {
					return nil, perr
				}
				if res != DataReady {
					break
				}
				addr, p := s.Block()
				if werr := dst.WriteBlock(addr, p); werr != nil {
					return nil, fmt.Errorf("fwimg: write block %d at %#08x: %w", blocks+1, addr, werr)
				}
				blocks++
				written += int64(len(p))
				if progress != nil {
					progress(Progress{Blocks: blocks, TotalBlocks: int(s.info.DataBlocks), Written: written})
				}
			}
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("fwimg: read image: %w", err)
		}
	}
	if !s.Done() {
		return nil, ErrTruncated
	}
	return s.Info(), nil
}
