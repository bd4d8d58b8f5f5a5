// Copyright 2021 The MCU Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fwfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/koffes/sdk-mcu-drivers/fwimg"
)

func TestRoundTrip(t *testing.T) {
	raw := testImage(t)
	for _, codec := range []string{None, Gzip, Zstd, LZ4, XZ, Bzip2} {
		enc, err := Encode(raw, codec)
		if err != nil {
			t.Fatalf("%s: encode: %v", codec, err)
		}
		if got := Detect(enc); got != codec {
			t.Fatalf("%s: detected as %s", codec, got)
		}
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("%s: decode: %v", codec, err)
		}
		if !bytes.Equal(dec, raw) {
			t.Fatalf("%s: round trip mismatch", codec)
		}
	}
}

func TestDetectRaw(t *testing.T) {
	if got := Detect(testImage(t)); got != None {
		t.Fatalf("raw image detected as %s", got)
	}
	if got := Detect(nil); got != None {
		t.Fatalf("empty input detected as %s", got)
	}
}

func TestDecodeNotAnImage(t *testing.T) {
	if _, err := Decode([]byte("hello, world: definitely not firmware")); err == nil {
		t.Fatal("expected error for junk input")
	}
	// Valid gzip stream whose payload is not a fw_img blob.
	enc, err := Encode([]byte("payload without a magic word"), Gzip)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(enc); !errors.Is(err, fwimg.ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	raw := testImage(t)
	grown := append(append([]byte(nil), raw...), 0x00)
	if _, err := Decode(grown); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestDecodeCorruptStream(t *testing.T) {
	enc, err := Encode(testImage(t), Gzip)
	if err != nil {
		t.Fatal(err)
	}
	enc[len(enc)/2] ^= 0xFF
	if _, err := Decode(enc); err == nil {
		t.Fatal("expected error for corrupt stream")
	}
}

func TestEncodeUnknown(t *testing.T) {
	if _, err := Encode([]byte{1}, "lzma"); !errors.Is(err, ErrUnknownEncoding) {
		t.Fatalf("expected ErrUnknownEncoding, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	raw := testImage(t)
	enc, err := Encode(raw, Zstd)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "fw.img.zst")
	if err := os.WriteFile(path, enc, 0o600); err != nil {
		t.Fatal(err)
	}
	dec, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, raw) {
		t.Fatal("file round trip mismatch")
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "absent.img")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func testImage(t *testing.T) []byte {
	t.Helper()
	b := fwimg.Builder{FirmwareID: 0x1400D6, FirmwareRevision: 0x70226}
	b.AddSymbol(1, 0x02800050)
	b.AddAlgorithm(0xB102)
	blk := make([]byte, 700)
	for i := range blk {
		blk[i] = byte(i * 7)
	}
	b.AddBlock(0x02800000, blk)
	img, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return img
}
