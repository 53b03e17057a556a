// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package seek

import (
	"errors"
	"image"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-seek/seek/internal"
)

func TestProcess_calibration(t *testing.T) {
	p := NewProcessor(DefaultWindow)
	raw := randomFrame(internal.TypeCalibration, 1000, 1100, 1)
	f, err := p.Process(raw)
	if f != nil || err != nil {
		t.Fatal(f, err)
	}
	if !p.HasCalibration() {
		t.Fatal("expected calibration")
	}
	if diff := cmp.Diff(trimmed(raw, DefaultWindow), p.Calibration()); diff != "" {
		t.Fatalf("calibration (-want +got):\n%s", diff)
	}
	// The type word is the only dead pixel.
	if diff := cmp.Diff([]image.Point{{X: 10, Y: 0}}, p.DeadPixels()); diff != "" {
		t.Fatalf("dead pixels (-want +got):\n%s", diff)
	}
}

func TestProcess_data(t *testing.T) {
	p := NewProcessor(DefaultWindow)
	calib := randomFrame(internal.TypeCalibration, 1000, 1100, 1)
	data := randomFrame(internal.TypeData, 900, 1400, 2)
	if f, err := p.Process(calib); f != nil || err != nil {
		t.Fatal(f, err)
	}
	f, err := p.Process(data)
	if err != nil {
		t.Fatal(err)
	}
	w, h := DefaultWindow.Dx(), DefaultWindow.Dy()
	if f.Bounds() != image.Rect(0, 0, w, h) {
		t.Fatal(f.Bounds())
	}
	if c := f.Channel(); c.Name != "img" || c.Unit != "counts" || c.Shape != [2]int{155, 206} {
		t.Fatalf("%+v", c)
	}
	c, d := trimmed(calib, DefaultWindow), trimmed(data, DefaultWindow)
	sub := make([][]int32, h)
	for y := range sub {
		sub[y] = make([]int32, w)
		for x := range sub[y] {
			sub[y][x] = int32(d[y*w+x]) - int32(c[y*w+x])
		}
	}
	repaired := map[image.Point]bool{{X: 10, Y: 0}: true, {X: 1, Y: 0}: true, {X: 40, Y: 0}: true}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			got := f.Int32At(w-1-x, y)
			want := sub[y][x]
			if repaired[image.Point{x, y}] {
				// The three repaired pixels are far enough apart to not see
				// each other.
				want = naiveMedian(sub, x, y)
			}
			if got != want {
				t.Fatalf("(%d, %d): got %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestProcess_noCalibration(t *testing.T) {
	p := NewProcessor(DefaultWindow)
	if _, err := p.Process(randomFrame(internal.TypeData, 0, 100, 1)); !errors.Is(err, ErrNoCalibration) {
		t.Fatal(err)
	}
}

func TestProcess_deadPixelsOnce(t *testing.T) {
	p := NewProcessor(DefaultWindow)
	c1 := uniform(internal.TypeCalibration, 1000)
	internal.PutWord(c1, 7*internal.Cols+5, 10)
	c2 := uniform(internal.TypeCalibration, 1000)
	internal.PutWord(c2, 9*internal.Cols+9, 10)
	if _, err := p.Process(c1); err != nil {
		t.Fatal(err)
	}
	want := []image.Point{{X: 10, Y: 0}, {X: 5, Y: 7}}
	if diff := cmp.Diff(want, p.DeadPixels()); diff != "" {
		t.Fatalf("dead pixels (-want +got):\n%s", diff)
	}
	if _, err := p.Process(c2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, p.DeadPixels()); diff != "" {
		t.Fatalf("dead pixels recomputed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(trimmed(c2, DefaultWindow), p.Calibration()); diff != "" {
		t.Fatalf("calibration not updated (-want +got):\n%s", diff)
	}
}

func TestProcess_idempotent(t *testing.T) {
	p := NewProcessor(DefaultWindow)
	c := randomFrame(internal.TypeCalibration, 1000, 1100, 3)
	internal.PutWord(c, 77*internal.Cols+33, 5)
	d := randomFrame(internal.TypeData, 900, 1400, 4)
	if _, err := p.Process(c); err != nil {
		t.Fatal(err)
	}
	f1, err := p.Process(d)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := p.Process(d)
	if err != nil {
		t.Fatal(err)
	}
	if !f1.Equal(f2) {
		t.Fatal("same input, different output")
	}
	if &f1.Pix[0] == &f2.Pix[0] {
		t.Fatal("frames share memory")
	}
}

func TestProcess_zeroCalibration(t *testing.T) {
	// Skip row 0, which holds the type word, to get a zero mean.
	p := NewProcessor(image.Rect(0, 1, 206, 156))
	if _, err := p.Process(uniform(internal.TypeCalibration, 0)); err != nil {
		t.Fatal(err)
	}
	if d := p.DeadPixels(); len(d) != 0 {
		t.Fatalf("%d dead pixels", len(d))
	}
	for _, v := range p.Calibration() {
		if v != 0 {
			t.Fatal(v)
		}
	}

	// With the default window the type word is the only non zero value, so
	// every other pixel is below 0.3 times the mean.
	p = NewProcessor(DefaultWindow)
	if _, err := p.Process(uniform(internal.TypeCalibration, 0)); err != nil {
		t.Fatal(err)
	}
	if d := p.DeadPixels(); len(d) != 206*155-1 {
		t.Fatalf("%d dead pixels", len(d))
	}
}

func TestProcess_other(t *testing.T) {
	p := NewProcessor(DefaultWindow)
	f, err := p.Process(uniform(7, 1000))
	if f != nil || err != nil {
		t.Fatal(f, err)
	}
	if p.HasCalibration() || p.Calibration() != nil || p.DeadPixels() != nil {
		t.Fatal("state mutated")
	}
}

func TestProcess_length(t *testing.T) {
	p := NewProcessor(DefaultWindow)
	if _, err := p.Process(make([]byte, 100)); !errors.Is(err, ErrCorrection) {
		t.Fatal(err)
	}
	if _, err := p.Process(nil); !errors.Is(err, ErrCorrection) {
		t.Fatal(err)
	}
}

func TestNewProcessor_window(t *testing.T) {
	data := []image.Rectangle{{}, image.Rect(0, 0, 300, 10), image.Rect(-1, 0, 10, 10)}
	for _, w := range data {
		if got := NewProcessor(w).Window(); got != DefaultWindow {
			t.Fatalf("%s: %s", w, got)
		}
	}
	w := image.Rect(2, 3, 50, 60)
	p := NewProcessor(w)
	if p.Window() != w || p.Bounds() != image.Rect(0, 0, 48, 57) {
		t.Fatal(p.Window(), p.Bounds())
	}
}

func TestKindOf(t *testing.T) {
	data := []struct {
		raw  []byte
		want Kind
	}{
		{uniform(1, 0), Calibration},
		{uniform(3, 0), Data},
		{uniform(7, 0), 7},
		{make([]byte, 21), 0},
	}
	for i, line := range data {
		if got := KindOf(line.raw); got != line.want {
			t.Fatalf("#%d: %s != %s", i, got, line.want)
		}
	}
	if s := Kind(7).String(); s != "Kind(7)" {
		t.Fatal(s)
	}
}

func TestMedianAt(t *testing.T) {
	f := NewFrame(image.Rect(0, 0, 4, 3))
	copy(f.Pix, []int32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	})
	data := []struct {
		pt   image.Point
		want int32
	}{
		{image.Point{0, 0}, 3}, // 1 2 5 6
		{image.Point{1, 1}, 6},
		{image.Point{0, 1}, 5}, // 1 2 5 6 9 10
		{image.Point{3, 2}, 9}, // 7 8 11 12
		{image.Point{3, 0}, 5}, // 3 4 7 8
	}
	for _, line := range data {
		if got := medianAt(f, line.pt); got != line.want {
			t.Fatalf("%s: %d != %d", line.pt, got, line.want)
		}
	}
	n := NewFrame(image.Rect(0, 0, 2, 1))
	copy(n.Pix, []int32{-4, -3})
	// -3.5 truncated toward zero.
	if got := medianAt(n, image.Point{}); got != -3 {
		t.Fatal(got)
	}
}

func TestDeadPixels(t *testing.T) {
	calib := []uint16{
		100, 100, 100,
		100, 29, 100,
		30, 100, 0,
	}
	// Mean is 73.2, threshold 21.96.
	want := []image.Point{{X: 2, Y: 2}}
	if diff := cmp.Diff(want, deadPixels(calib, 3)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if d := deadPixels(make([]uint16, 9), 3); len(d) != 0 {
		t.Fatal(d)
	}
	if d := deadPixels(nil, 3); d != nil {
		t.Fatal(d)
	}
}

func TestFrame_flipH(t *testing.T) {
	f := NewFrame(image.Rect(0, 0, 3, 2))
	copy(f.Pix, []int32{1, 2, 3, 4, 5, 6})
	orig := append([]int32(nil), f.Pix...)
	f.FlipH()
	if diff := cmp.Diff([]int32{3, 2, 1, 6, 5, 4}, f.Pix); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	f.FlipH()
	if diff := cmp.Diff(orig, f.Pix); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int32{{1, 2, 3}, {4, 5, 6}}, f.Rows()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestFrame_bounds(t *testing.T) {
	f := NewFrame(image.Rect(0, 0, 2, 2))
	f.SetInt32(1, 1, 42)
	f.SetInt32(5, 5, 1)
	if f.Int32At(1, 1) != 42 || f.Int32At(-1, 0) != 0 || f.Int32At(5, 5) != 0 {
		t.Fatal(f.Pix)
	}
}

//

// randomFrame returns a raw frame of type typ with words in [lo, hi).
func randomFrame(typ uint16, lo, hi int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	raw := make([]byte, internal.FrameBytes)
	for i := 0; i < internal.Words; i++ {
		internal.PutWord(raw, i, uint16(lo+r.Intn(hi-lo)))
	}
	internal.PutWord(raw, internal.TypeWord, typ)
	return raw
}

func trimmed(raw []byte, w image.Rectangle) []uint16 {
	var out []uint16
	for y := w.Min.Y; y < w.Max.Y; y++ {
		for x := w.Min.X; x < w.Max.X; x++ {
			out = append(out, internal.Word(raw, y*internal.Cols+x))
		}
	}
	return out
}

func naiveMedian(img [][]int32, x, y int) int32 {
	var v []int32
	for j := y - 1; j <= y+1; j++ {
		for i := x - 1; i <= x+1; i++ {
			if j >= 0 && j < len(img) && i >= 0 && i < len(img[j]) {
				v = append(v, img[j][i])
			}
		}
	}
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	if len(v)%2 == 1 {
		return v[len(v)/2]
	}
	return (v[len(v)/2-1] + v[len(v)/2]) / 2
}
