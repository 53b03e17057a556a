// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package agc

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-seek/seek"
)

func TestMinMax(t *testing.T) {
	f := frame(3, 1, -5, 10, 2)
	if m := Min(f); m != -5 {
		t.Fatal(m)
	}
	if m := Max(f); m != 10 {
		t.Fatal(m)
	}
}

func TestLinear(t *testing.T) {
	img := Linear(frame(3, 1, -5, 10, 2))
	if diff := cmp.Diff([]uint8{0, 255, 119}, img.Pix); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// Flat frames don't divide by zero.
	img = Linear(frame(2, 1, 7, 7))
	if diff := cmp.Diff([]uint8{0, 0}, img.Pix); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestGray16(t *testing.T) {
	img := Gray16(frame(3, 1, -5, 10, 70000))
	if diff := cmp.Diff([]uint8{0, 0, 0, 15, 0xFF, 0xFF}, img.Pix); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestRotate(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(src.Pix, []uint8{
		1, 2, 3,
		4, 5, 6,
	})
	data := []struct {
		angle int
		w, h  int
		want  []uint8
	}{
		{0, 3, 2, []uint8{1, 2, 3, 4, 5, 6}},
		{90, 2, 3, []uint8{3, 6, 2, 5, 1, 4}},
		{180, 3, 2, []uint8{6, 5, 4, 3, 2, 1}},
		{270, 2, 3, []uint8{4, 1, 5, 2, 6, 3}},
	}
	for _, line := range data {
		dst, err := Rotate(src, line.angle)
		if err != nil {
			t.Fatal(err)
		}
		if b := dst.Bounds(); b.Dx() != line.w || b.Dy() != line.h {
			t.Fatalf("%d: %s", line.angle, b)
		}
		if diff := cmp.Diff(line.want, dst.Pix); diff != "" {
			t.Fatalf("%d (-want +got):\n%s", line.angle, diff)
		}
	}
	if _, err := Rotate(src, 45); err == nil {
		t.Fatal("expected failure")
	}
}

func frame(w, h int, v ...int32) *seek.Frame {
	f := seek.NewFrame(image.Rect(0, 0, w, h))
	copy(f.Pix, v)
	return f
}
