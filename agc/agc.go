// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package agc converts corrected Seek frames into images that can be
// displayed or saved.
package agc

import (
	"errors"
	"image"
	"math"

	"github.com/maruel/go-seek/seek"
)

// Min returns the lowest value in f.
func Min(f *seek.Frame) int32 {
	out := int32(math.MaxInt32)
	for _, v := range f.Pix {
		if v < out {
			out = v
		}
	}
	return out
}

// Max returns the highest value in f.
func Max(f *seek.Frame) int32 {
	out := int32(math.MinInt32)
	for _, v := range f.Pix {
		if v > out {
			out = v
		}
	}
	return out
}

// Linear reduces the dynamic range of f down to 8 bits linearly, without
// gamma.
func Linear(f *seek.Frame) *image.Gray {
	r := f.Bounds()
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	floor := Min(f)
	delta := int64(Max(f)) - int64(floor)
	if delta == 0 {
		return dst
	}
	for y := 0; y < r.Dy(); y++ {
		row := f.Row(r.Min.Y + y)
		for x, v := range row {
			dst.Pix[y*dst.Stride+x] = uint8((int64(v) - int64(floor)) * 255 / delta)
		}
	}
	return dst
}

// Gray16 offsets f so its lowest value is 0 and saturates at 65535.
//
// Unlike Linear, one count stays one grey level.
func Gray16(f *seek.Frame) *image.Gray16 {
	r := f.Bounds()
	dst := image.NewGray16(image.Rect(0, 0, r.Dx(), r.Dy()))
	floor := int64(Min(f))
	for y := 0; y < r.Dy(); y++ {
		row := f.Row(r.Min.Y + y)
		for x, v := range row {
			d := int64(v) - floor
			if d > 0xFFFF {
				d = 0xFFFF
			}
			i := y*dst.Stride + 2*x
			dst.Pix[i] = uint8(d >> 8)
			dst.Pix[i+1] = uint8(d)
		}
	}
	return dst
}

// Rotate returns src rotated counter clockwise by angle degrees.
//
// angle must be 0, 90, 180 or 270.
func Rotate(src *image.Gray, angle int) (*image.Gray, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var dst *image.Gray
	var at func(x, y int) (int, int)
	switch angle {
	case 0:
		return src, nil
	case 90:
		dst = image.NewGray(image.Rect(0, 0, h, w))
		at = func(x, y int) (int, int) { return y, w - 1 - x }
	case 180:
		dst = image.NewGray(image.Rect(0, 0, w, h))
		at = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 270:
		dst = image.NewGray(image.Rect(0, 0, h, w))
		at = func(x, y int) (int, int) { return h - 1 - y, x }
	default:
		return nil, errors.New("agc: rotation must be 0, 90, 180 or 270")
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := at(x, y)
			dst.Pix[dy*dst.Stride+dx] = src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)]
		}
	}
	return dst, nil
}
