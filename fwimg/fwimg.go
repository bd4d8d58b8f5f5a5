// Copyright 2020 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fwimg

import (
	"errors"
	"fmt"
	"hash/crc32"
)

// Magic words bracketing every image.
const (
	Magic1 = 0x54B998FF
	Magic2 = 0x936BE2A6
)

// Format revisions understood by this package.
const (
	RevisionV1 = 1
	RevisionV2 = 2

	maxRevision = RevisionV2
)

// MaxBlockSizeV1 is the fixed block payload capacity of revision 1 images.
// Revision ≥2 images declare their own maximum in the header.
const MaxBlockSizeV1 = 4140

const (
	preheaderLen = 8
	headerLenV1  = 24
	headerLenV2  = 32
	footerLen    = 8
)

var (
	// ErrBadMagic means the stream does not start with a fw_img preheader.
	ErrBadMagic = errors.New("fwimg: bad image magic")
	// ErrUnsupportedRevision means the preheader declares a format revision
	// this package does not understand.
	ErrUnsupportedRevision = errors.New("fwimg: unsupported format revision")
	// ErrBadChecksum means the footer CRC does not match the image bytes.
	ErrBadChecksum = errors.New("fwimg: image checksum mismatch")
	// ErrTruncated means the stream ended before the image completed.
	ErrTruncated = errors.New("fwimg: truncated image")
)

// Result is the outcome of one Process call.
type Result int

const (
	// NoData means the current window is fully consumed and no block is
	// pending; supply the next window with SetWindow before calling again.
	NoData Result = iota
	// DataReady means a block has been assembled; consume it via Block
	// before calling Process again.
	DataReady
)

func (r Result) String() string {
	switch r {
	case NoData:
		return "no-data"
	case DataReady:
		return "data-ready"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

type parseState uint8

const (
	statePreheader parseState = iota
	stateHeader
	stateSymbols
	stateAlgIDs
	stateBlockHeader
	stateBlockData
	stateBlockPad
	stateFooter
	stateDone
	stateFailed
)

// Session is the incremental parse state for one image.
//
// The zero value is ready for use. A Session may be reused for any number
// of images; Reset (or Load, which calls it) releases the previous image's
// accumulation while recycling buffer capacity, so repeated boots do not
// grow memory.
//
// A Session must not be used concurrently. A parse error is sticky: once
// Process fails, the Session reports the same error until Reset.
type Session struct {
	state parseState
	err   error

	win []byte
	off int

	consumed uint32
	crc      uint32

	// 32-bit field accumulator; fields may straddle window boundaries.
	acc  uint32
	accN uint8

	// Header word collection.
	hdrN uint8
	hdr  [8]uint32

	// Two-word records (symbol entries, block headers).
	pend     uint32
	havePend bool

	info Info
	syms []SymbolEntry
	algs []uint32

	// Block in flight. scratch is allocated once the header is known and
	// reused for every block of the image.
	scratch    []byte
	blockAddr  uint32
	blockLen   uint32
	blockFill  uint32
	padLeft    uint32
	blocksDone uint32
	lastAddr   uint32
	lastLen    uint32

	// Chunk buffer used by Load, recycled across boots.
	winBuf []byte
}

// Reset discards all parse state and releases the previous image's symbol
// table, algorithm list and block scratch. Buffer capacity is kept for
// reuse by the next image.
func (s *Session) Reset() {
	s.state = statePreheader
	s.err = nil
	s.win = nil
	s.off = 0
	s.consumed = 0
	s.crc = 0
	s.acc = 0
	s.accN = 0
	s.hdrN = 0
	s.havePend = false
	s.info = Info{}
	s.syms = s.syms[:0]
	s.algs = s.algs[:0]
	s.blockAddr = 0
	s.blockLen = 0
	s.blockFill = 0
	s.padLeft = 0
	s.blocksDone = 0
	s.lastAddr = 0
	s.lastLen = 0
}

// SetWindow hands the parser the next contiguous window of image bytes.
// Any unconsumed bytes of the previous window are abandoned, so callers
// should only swap windows after Process returned NoData.
func (s *Session) SetWindow(p []byte) {
	s.win = p
	s.off = 0
}

// Done reports whether the image parsed to completion, footer included.
func (s *Session) Done() bool {
	return s.state == stateDone
}

// Block returns the most recently assembled block. The payload aliases the
// Session's scratch buffer and is only valid until the next Process call.
func (s *Session) Block() (addr uint32, payload []byte) {
	return s.lastAddr, s.scratch[:s.lastLen]
}

// Info returns a snapshot of everything parsed so far. The symbol table and
// algorithm list are fresh copies, safe to retain across a later Reset or
// reuse of the Session. The snapshot is complete once Done reports true.
func (s *Session) Info() *Info {
	out := s.info
	out.Symbols = append([]SymbolEntry(nil), s.syms...)
	out.AlgorithmIDs = append([]uint32(nil), s.algs...)
	return &out
}

// Process advances parsing by at most one unit.
//
// DataReady means a block is assembled and must be consumed via Block
// before the next call. NoData means the window is drained with no block
// pending, or the image is already done. A non-nil error means the image
// is malformed; the error is unrecoverable and sticky for this Session.
func (s *Session) Process() (Result, error) {
	if s.err != nil {
		return NoData, s.err
	}
	for {
		switch s.state {
		case statePreheader:
			w, ok := s.takeWord()
			if !ok {
				return NoData, nil
			}
			if s.hdrN == 0 {
				if w != Magic1 {
					return s.fail(ErrBadMagic)
				}
				s.hdrN++
				continue
			}
			if w < RevisionV1 || w > maxRevision {
				return s.fail(fmt.Errorf("%w %d", ErrUnsupportedRevision, w))
			}
			s.info.Revision = w
			s.hdrN = 0
			s.state = stateHeader

		case stateHeader:
			n := uint8(6)
			if s.info.Revision >= RevisionV2 {
				n = 8
			}
			w, ok := s.takeWord()
			if !ok {
				return NoData, nil
			}
			s.hdr[s.hdrN] = w
			if s.hdrN++; s.hdrN < n {
				continue
			}
			if err := s.finishHeader(); err != nil {
				return s.fail(err)
			}

		case stateSymbols:
			if uint32(len(s.syms)) == s.info.SymbolCount {
				s.state = stateAlgIDs
				continue
			}
			w, ok := s.takeWord()
			if !ok {
				return NoData, nil
			}
			if !s.havePend {
				s.pend = w
				s.havePend = true
				continue
			}
			s.syms = append(s.syms, SymbolEntry{ID: s.pend, Addr: w})
			s.havePend = false

		case stateAlgIDs:
			if uint32(len(s.algs)) == s.info.AlgorithmCount {
				s.state = stateBlockHeader
				continue
			}
			w, ok := s.takeWord()
			if !ok {
				return NoData, nil
			}
			s.algs = append(s.algs, w)

		case stateBlockHeader:
			if s.blocksDone == s.info.DataBlocks {
				s.state = stateFooter
				continue
			}
			w, ok := s.takeWord()
			if !ok {
				return NoData, nil
			}
			if !s.havePend {
				s.pend = w
				s.havePend = true
				continue
			}
			s.havePend = false
			if err := s.startBlock(s.pend, w); err != nil {
				return s.fail(err)
			}

		case stateBlockData:
			n := copy(s.scratch[s.blockFill:s.blockLen], s.win[s.off:])
			if n > 0 {
				s.crc = crc32.Update(s.crc, crc32.IEEETable, s.win[s.off:s.off+n])
				s.off += n
				s.consumed += uint32(n)
				s.blockFill += uint32(n)
			}
			if s.blockFill < s.blockLen {
				return NoData, nil
			}
			s.blocksDone++
			s.lastAddr = s.blockAddr
			s.lastLen = s.blockLen
			s.state = stateBlockPad
			return DataReady, nil

		case stateBlockPad:
			if s.padLeft > 0 {
				n := uint32(len(s.win) - s.off)
				if n > s.padLeft {
					n = s.padLeft
				}
				if n > 0 {
					s.crc = crc32.Update(s.crc, crc32.IEEETable, s.win[s.off:s.off+int(n)])
					s.off += int(n)
					s.consumed += n
					s.padLeft -= n
				}
				if s.padLeft > 0 {
					return NoData, nil
				}
			}
			s.state = stateBlockHeader

		case stateFooter:
			w, ok := s.takeWord()
			if !ok {
				return NoData, nil
			}
			if s.hdrN == 0 {
				if w != Magic2 {
					return s.fail(fmt.Errorf("fwimg: bad footer magic %#08x", w))
				}
				s.hdrN++
				continue
			}
			if w != s.crc {
				return s.fail(fmt.Errorf("%w: footer %#08x, computed %#08x", ErrBadChecksum, w, s.crc))
			}
			if s.consumed != s.info.Size {
				return s.fail(fmt.Errorf("fwimg: image is %d bytes, header declared %d", s.consumed, s.info.Size))
			}
			s.state = stateDone

		case stateDone:
			return NoData, nil

		default:
			return NoData, s.err
		}
	}
}

// finishHeader validates the collected header words and allocates the
// symbol table, algorithm list and block scratch. Nothing is allocated for
// an image that fails validation.
func (s *Session) finishHeader() error {
	s.hdrN = 0
	s.info.Size = s.hdr[0]
	s.info.SymbolCount = s.hdr[1]
	s.info.AlgorithmCount = s.hdr[2]
	s.info.FirmwareID = s.hdr[3]
	s.info.FirmwareRevision = s.hdr[4]
	s.info.DataBlocks = s.hdr[5]
	if s.info.Revision >= RevisionV2 {
		s.info.MaxBlockSize = s.hdr[6]
		s.info.ImageVersion = s.hdr[7]
	} else {
		s.info.MaxBlockSize = MaxBlockSizeV1
	}

	hdrLen := uint64(preheaderLen + headerLenV1)
	if s.info.Revision >= RevisionV2 {
		hdrLen = preheaderLen + headerLenV2
	}
	need := hdrLen +
		8*uint64(s.info.SymbolCount) +
		4*uint64(s.info.AlgorithmCount) +
		8*uint64(s.info.DataBlocks) +
		footerLen
	if uint64(s.info.Size) < need {
		return fmt.Errorf("fwimg: header inconsistent: %d byte image cannot hold %d symbols, %d algorithms, %d blocks",
			s.info.Size, s.info.SymbolCount, s.info.AlgorithmCount, s.info.DataBlocks)
	}
	if s.info.MaxBlockSize == 0 || uint64(s.info.MaxBlockSize) > uint64(s.info.Size) {
		return fmt.Errorf("fwimg: bad maximum block size %d", s.info.MaxBlockSize)
	}

	if cap(s.syms) < int(s.info.SymbolCount) {
		s.syms = make([]SymbolEntry, 0, s.info.SymbolCount)
	}
	if cap(s.algs) < int(s.info.AlgorithmCount) {
		s.algs = make([]uint32, 0, s.info.AlgorithmCount)
	}
	if uint32(cap(s.scratch)) < s.info.MaxBlockSize {
		s.scratch = make([]byte, s.info.MaxBlockSize)
	} else {
		s.scratch = s.scratch[:s.info.MaxBlockSize]
	}
	s.state = stateSymbols
	return nil
}

func (s *Session) startBlock(addr, length uint32) error {
	if length == 0 {
		return fmt.Errorf("fwimg: zero-length block at %#08x", addr)
	}
	if length > uint32(len(s.scratch)) {
		return fmt.Errorf("fwimg: block of %d bytes at %#08x exceeds the %d byte maximum", length, addr, len(s.scratch))
	}
	pad := (4 - length%4) % 4
	if uint64(s.consumed)+uint64(length)+uint64(pad)+footerLen > uint64(s.info.Size) {
		return fmt.Errorf("fwimg: block of %d bytes at %#08x overruns the %d byte image", length, addr, s.info.Size)
	}
	s.blockAddr = addr
	s.blockLen = length
	s.blockFill = 0
	s.padLeft = pad
	s.state = stateBlockData
	return nil
}

func (s *Session) fail(err error) (Result, error) {
	s.state = stateFailed
	s.err = err
	return NoData, err
}

// takeWord assembles the next little-endian word, carrying partial bytes
// across windows.
func (s *Session) takeWord() (uint32, bool) {
	for s.accN < 4 {
		if s.off >= len(s.win) {
			return 0, false
		}
		b := s.win[s.off]
		s.off++
		s.consumed++
		if s.state != stateFooter {
			s.crcByte(b)
		}
		s.acc |= uint32(b) << (8 * s.accN)
		s.accN++
	}
	w := s.acc
	s.acc = 0
	s.accN = 0
	return w, true
}

func (s *Session) crcByte(b byte) {
	buf := [1]byte{b}
	s.crc = crc32.Update(s.crc, crc32.IEEETable, buf[:])
}
