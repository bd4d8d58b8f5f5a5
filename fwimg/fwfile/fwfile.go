// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fwfile reads fw_img firmware files from disk.
//
// Release artifacts ship compressed to keep flash/update payloads small;
// the encoding varies between build pipelines. Decode sniffs the codec
// from the file magic, decompresses, and validates that the result is a
// fw_img blob whose declared size matches the decoded length, so a
// corrupted or mislabeled file is rejected before it reaches a device.
//
// Supported encodings: gzip, zstd, lz4, xz, bzip2, and uncompressed.
package fwfile

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/koffes/sdk-mcu-drivers/fwimg"
)

// ErrUnknownEncoding is returned by Encode for a codec name this package
// does not implement.
var ErrUnknownEncoding = errors.New("fwfile: unknown encoding")

// Encoding names accepted by Encode and returned by Detect.
const (
	None  = "none"
	Gzip  = "gzip"
	Zstd  = "zstd"
	LZ4   = "lz4"
	XZ    = "xz"
	Bzip2 = "bzip2"
)

// Detect sniffs the compression codec from the leading file magic. A bare
// fw_img blob and anything unrecognized report None.
func Detect(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0x1F && data[1] == 0x8B:
		return Gzip
	case len(data) >= 4 && data[0] == 0x28 && data[1] == 0xB5 && data[2] == 0x2F && data[3] == 0xFD:
		return Zstd
	case len(data) >= 4 && data[0] == 0x04 && data[1] == 0x22 && data[2] == 0x4D && data[3] == 0x18:
		return LZ4
	case len(data) >= 6 && data[0] == 0xFD && data[1] == '7' && data[2] == 'z' && data[3] == 'X' && data[4] == 'Z' && data[5] == 0x00:
		return XZ
	case len(data) >= 3 && data[0] == 'B' && data[1] == 'Z' && data[2] == 'h':
		return Bzip2
	default:
		return None
	}
}

// Decode returns the raw image carried by a firmware file, decompressing
// as needed. The result must be a fw_img blob whose declared size equals
// the decoded length.
func Decode(data []byte) ([]byte, error) {
	codec := Detect(data)
	raw, err := expand(data, codec)
	if err != nil {
		return nil, fmt.Errorf("fwfile: decode %s: %w", codec, err)
	}
	size, err := fwimg.ImageSize(raw)
	if err != nil {
		return nil, fmt.Errorf("fwfile: not a fw_img file: %w", err)
	}
	if int(size) != len(raw) {
		return nil, fmt.Errorf("fwfile: image declares %d bytes, file holds %d", size, len(raw))
	}
	return raw, nil
}

// ReadFile reads and decodes a firmware file.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

// Encode compresses a raw image with the named codec for distribution.
func Encode(data []byte, codec string) ([]byte, error) {
	if codec == None || codec == "" {
		return append([]byte(nil), data...), nil
	}
	var buf bytes.Buffer
	w, err := compressor(&buf, codec)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("fwfile: encode %s: %w", codec, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("fwfile: encode %s: %w", codec, err)
	}
	return buf.Bytes(), nil
}

func expand(data []byte, codec string) ([]byte, error) {
	switch codec {
	case None:
		return data, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case Zstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case LZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	case XZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	case Bzip2:
		r, err := bzip2.NewReader(bytes.NewReader(data), &bzip2.ReaderConfig{})
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, ErrUnknownEncoding
	}
}

func compressor(buf *bytes.Buffer, codec string) (io.WriteCloser, error) {
	switch codec {
	case Gzip:
		return gzip.NewWriter(buf), nil
	case Zstd:
		return zstd.NewWriter(buf)
	case LZ4:
		return lz4.NewWriter(buf), nil
	case XZ:
		return xz.NewWriter(buf)
	case Bzip2:
		return bzip2.NewWriter(buf, &bzip2.WriterConfig{})
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEncoding, codec)
	}
}
