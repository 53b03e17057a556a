// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package seek

import (
	"image"
	"time"
)

// Channel describes the data product of the camera.
type Channel struct {
	Name  string
	Unit  string
	Shape [2]int // rows, cols
}

// Frame is a corrected Seek frame in counts.
//
// Values are signed since the calibration frame is subtracted. Pixel (x, y) is
// at Pix[y*Stride+x].
type Frame struct {
	Pix    []int32
	Stride int
	Rect   image.Rectangle
}

// NewFrame returns a zeroed frame of size r.
func NewFrame(r image.Rectangle) *Frame {
	return &Frame{Pix: make([]int32, r.Dx()*r.Dy()), Stride: r.Dx(), Rect: r}
}

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return f.Rect
}

// Channel returns the description of the frame as the "img" channel.
func (f *Frame) Channel() Channel {
	return Channel{Name: "img", Unit: "counts", Shape: [2]int{f.Rect.Dy(), f.Rect.Dx()}}
}

// Int32At returns the value at (x, y).
func (f *Frame) Int32At(x, y int) int32 {
	if !(image.Point{x, y}.In(f.Rect)) {
		return 0
	}
	return f.Pix[f.offset(x, y)]
}

// SetInt32 sets the value at (x, y).
func (f *Frame) SetInt32(x, y int, v int32) {
	if !(image.Point{x, y}.In(f.Rect)) {
		return
	}
	f.Pix[f.offset(x, y)] = v
}

// Row returns row y as a slice sharing the frame memory.
func (f *Frame) Row(y int) []int32 {
	i := f.offset(f.Rect.Min.X, y)
	return f.Pix[i : i+f.Rect.Dx()]
}

// Rows returns a copy of the frame as rows of columns.
func (f *Frame) Rows() [][]int32 {
	out := make([][]int32, f.Rect.Dy())
	for y := range out {
		out[y] = append([]int32(nil), f.Row(f.Rect.Min.Y+y)...)
	}
	return out
}

// FlipH reverses the column order in place.
func (f *Frame) FlipH() {
	for y := f.Rect.Min.Y; y < f.Rect.Max.Y; y++ {
		row := f.Row(y)
		for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
			row[i], row[j] = row[j], row[i]
		}
	}
}

// Equal returns true if both frames have the same bounds and values.
func (f *Frame) Equal(r *Frame) bool {
	if f.Rect != r.Rect {
		return false
	}
	for y := f.Rect.Min.Y; y < f.Rect.Max.Y; y++ {
		a, b := f.Row(y), r.Row(y)
		for x := range a {
			if a[x] != b[x] {
				return false
			}
		}
	}
	return true
}

func (f *Frame) offset(x, y int) int {
	return (y-f.Rect.Min.Y)*f.Stride + (x - f.Rect.Min.X)
}

// Measurement is a completed measurement.
type Measurement struct {
	ID    uint64 // Starts at 1, incremented at each successful measurement.
	Time  time.Time
	Frame *Frame
}
