// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package seek

import (
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/maruel/go-seek/seek/internal"
	"gonum.org/v1/gonum/stat"
)

// Kind is the type of a raw frame, as announced in its header word.
type Kind uint16

// Known kinds. Anything else is an incomplete frame.
const (
	Calibration Kind = Kind(internal.TypeCalibration)
	Data        Kind = Kind(internal.TypeData)
)

func (k Kind) String() string {
	switch k {
	case Calibration:
		return "Calibration"
	case Data:
		return "Data"
	default:
		return fmt.Sprintf("Kind(%d)", uint16(k))
	}
}

// KindOf returns the kind of the raw frame. It returns 0 if raw is too short
// to contain the header word.
func KindOf(raw []byte) Kind {
	if len(raw) < 2*(internal.TypeWord+1) {
		return 0
	}
	return Kind(internal.Word(raw, internal.TypeWord))
}

// Native is the rectangle of the native sensor geometry, including the rows
// and columns that do not carry image data.
var Native = image.Rect(0, 0, internal.Cols, internal.Rows)

// DefaultWindow is the part of the native frame used for the Compact: the
// last row and the last two columns are dropped.
//
// It includes the type word at (10, 0), which is always flagged as a dead
// pixel by a calibration frame and repaired.
var DefaultWindow = image.Rect(0, 0, internal.Cols-2, internal.Rows-1)

// deadThreshold is the fraction of the calibration mean below which a pixel
// is considered dead.
const deadThreshold = 0.3

// legacyFixes are pixels always repaired with their neighborhood median, in
// addition to the detected dead pixels. Coordinates are in the trimmed frame
// before the horizontal flip.
var legacyFixes = []image.Point{{X: 1, Y: 0}, {X: 40, Y: 0}}

// Processor classifies raw frames and corrects data frames.
//
// It keeps the last calibration frame and the dead pixel set found in the
// first calibration frame it saw.
type Processor struct {
	window image.Rectangle

	mu       sync.Mutex
	calib    []uint16
	dead     []image.Point
	deadDone bool
}

// NewProcessor returns a Processor extracting window out of each raw frame.
//
// window must be non empty and fit in Native; DefaultWindow is used otherwise.
func NewProcessor(window image.Rectangle) *Processor {
	if window.Empty() || !window.In(Native) {
		window = DefaultWindow
	}
	return &Processor{window: window}
}

// Window returns the trim window, in native coordinates.
func (p *Processor) Window() image.Rectangle {
	return p.window
}

// Bounds returns the bounds of the corrected frames.
func (p *Processor) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.window.Dx(), p.window.Dy())
}

// Process classifies raw and returns the corrected frame if raw is a data
// frame.
//
// A nil Frame with a nil error means raw didn't carry a data frame, either
// because it was a calibration frame or because it was incomplete. Another
// frame must be acquired.
func (p *Processor) Process(raw []byte) (*Frame, error) {
	if len(raw) != internal.FrameBytes {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrCorrection, len(raw), internal.FrameBytes)
	}
	switch KindOf(raw) {
	case Calibration:
		p.calibrate(p.trim(raw))
		return nil, nil
	case Data:
		return p.correct(p.trim(raw))
	default:
		return nil, nil
	}
}

// HasCalibration returns true once a calibration frame was processed.
func (p *Processor) HasCalibration() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calib != nil
}

// Calibration returns a copy of the current calibration image, in row major
// order. It returns nil before the first calibration frame.
func (p *Processor) Calibration() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calib)
}

// DeadPixels returns a copy of the dead pixel set. X is the column and Y the
// row in the trimmed frame, before the horizontal flip.
func (p *Processor) DeadPixels() []image.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.dead)
}

// Private details.

// trim materializes the window out of the raw frame.
func (p *Processor) trim(raw []byte) []uint16 {
	out := make([]uint16, 0, p.window.Dx()*p.window.Dy())
	for y := p.window.Min.Y; y < p.window.Max.Y; y++ {
		base := y * internal.Cols
		for x := p.window.Min.X; x < p.window.Max.X; x++ {
			out = append(out, internal.Word(raw, base+x))
		}
	}
	return out
}

func (p *Processor) calibrate(img []uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calib = img
	// The dead pixel set is only computed from the first calibration frame.
	if !p.deadDone {
		p.dead = deadPixels(img, p.window.Dx())
		p.deadDone = true
	}
}

func (p *Processor) correct(img []uint16) (*Frame, error) {
	p.mu.Lock()
	calib, dead := p.calib, p.dead
	p.mu.Unlock()
	if calib == nil {
		return nil, ErrNoCalibration
	}
	if len(calib) != len(img) {
		return nil, fmt.Errorf("%w: calibration has %d pixels, frame has %d", ErrCorrection, len(calib), len(img))
	}
	f := NewFrame(p.Bounds())
	for i, v := range img {
		f.Pix[i] = int32(v) - int32(calib[i])
	}
	for _, pt := range dead {
		if !pt.In(f.Rect) {
			return nil, fmt.Errorf("%w: dead pixel %s out of %s", ErrCorrection, pt, f.Rect)
		}
		f.Pix[f.offset(pt.X, pt.Y)] = medianAt(f, pt)
	}
	for _, pt := range legacyFixes {
		if !pt.In(f.Rect) {
			return nil, fmt.Errorf("%w: fixed pixel %s out of %s", ErrCorrection, pt, f.Rect)
		}
		f.Pix[f.offset(pt.X, pt.Y)] = medianAt(f, pt)
	}
	f.FlipH()
	return f, nil
}

// deadPixels returns the pixels of the calibration image strictly below
// deadThreshold times the mean, in row major order.
func deadPixels(calib []uint16, width int) []image.Point {
	if len(calib) == 0 || width <= 0 {
		return nil
	}
	v := make([]float64, len(calib))
	for i, c := range calib {
		v[i] = float64(c)
	}
	threshold := deadThreshold * stat.Mean(v, nil)
	var out []image.Point
	for i, c := range v {
		if c < threshold {
			out = append(out, image.Point{X: i % width, Y: i / width})
		}
	}
	return out
}

// medianAt returns the median of the 3x3 neighborhood of pt clamped to the
// frame bounds, the pixel itself included.
//
// With an even number of values, the two middle values are averaged and the
// result truncated toward zero.
func medianAt(f *Frame, pt image.Point) int32 {
	r := image.Rect(pt.X-1, pt.Y-1, pt.X+2, pt.Y+2).Intersect(f.Rect)
	var buf [9]int32
	v := buf[:0]
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v = append(v, f.Pix[f.offset(x, y)])
		}
	}
	slices.Sort(v)
	n := len(v)
	if n&1 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
