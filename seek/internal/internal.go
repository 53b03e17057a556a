// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package internal holds the wire geometry of the Seek Compact.
package internal

import "encoding/binary"

// Native sensor geometry, including the non-image rows and columns.
const (
	Rows = 156
	Cols = 208

	// Words is the number of 16 bits words in one frame.
	Words = Rows * Cols // 32448
	// ChunkBytes is the size of one bulk read.
	ChunkBytes = 16224
	// Chunks is the number of bulk reads per frame.
	Chunks = 4
	// FrameBytes is the size of one raw frame.
	FrameBytes = Chunks * ChunkBytes // 64896

	// TypeWord is the index of the word identifying the frame type.
	TypeWord = 10
)

// Frame types as reported at TypeWord.
const (
	TypeCalibration uint16 = 1
	TypeData        uint16 = 3
)

// Word returns the i-th little endian word of raw.
func Word(raw []byte, i int) uint16 {
	return binary.LittleEndian.Uint16(raw[2*i:])
}

// PutWord encodes v as the i-th little endian word of raw.
func PutWord(raw []byte, i int, v uint16) {
	binary.LittleEndian.PutUint16(raw[2*i:], v)
}

// Uint32 encodes v as little endian, the way the start transfer request
// expects its word count.
func Uint32(v uint32) []byte {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, v)
	return p
}
