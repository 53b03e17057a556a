// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package seektest implements a fake Seek Compact to test without hardware.
package seektest

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/maruel/go-seek/seek"
	"github.com/maruel/go-seek/seek/internal"
)

// Control is one control transfer received by Fake.
type Control struct {
	RequestType uint8
	Request     seek.Request
	Data        []byte // Copy of the data sent; nil for IN requests.
}

// Fake is a fake camera implementing seek.Transport.
//
// The first frame after the camera starts running is a calibration frame,
// then one calibration frame is sent every CalibrationEvery frames.
type Fake struct {
	// CalibrationEvery is the calibration frame period. Defaults to 10 if 0.
	CalibrationEvery int
	// FrameDelay is slept at each start transfer request to simulate the
	// frame rate.
	FrameDelay time.Duration
	// Dead lists pixels, in native coordinates, that barely respond.
	Dead []image.Point
	// FailStart and FailBulk are the number of upcoming start transfer
	// requests and bulk reads to fail.
	FailStart int
	FailBulk  int
	// Asleep makes the target platform request fail until the camera is put
	// to sleep, like a camera left running by a killed process.
	Asleep bool

	mu       sync.Mutex
	controls []Control
	resets   int
	closed   bool
	running  bool
	frames   int
	pending  []byte
	base     []uint16
	noise    *noise
}

// New returns a fake camera with two dead pixels.
func New() *Fake {
	return &Fake{Dead: []image.Point{{X: 50, Y: 60}, {X: 120, Y: 30}}}
}

// Control implements seek.Transport.
func (f *Fake) Control(rType, request uint8, value, index uint16, data []byte) (int, error) {
	f.mu.Lock()
	c := Control{RequestType: rType, Request: seek.Request(request)}
	if rType&0x80 == 0 {
		c.Data = append([]byte{}, data...)
	}
	f.controls = append(f.controls, c)
	if f.closed {
		f.mu.Unlock()
		return 0, errClosed
	}
	switch c.Request {
	case seek.TargetPlatform:
		if f.Asleep {
			f.mu.Unlock()
			return 0, errors.New("seektest: pipe error")
		}
	case seek.SetOperationMode:
		f.running = len(data) == 2 && data[0] == 1
		if !f.running {
			f.Asleep = false
		}
	case seek.GetFirmwareInfo:
		copy(data, []byte{0x01, 0x02, 0x03, 0x04})
	case seek.ReadChipID:
		copy(data, []byte("SEEKTESTCHIP"))
	case seek.StartGetImageTransfer:
		if !f.running {
			f.mu.Unlock()
			return 0, errors.New("seektest: camera not running")
		}
		if f.FailStart > 0 {
			f.FailStart--
			f.mu.Unlock()
			return 0, errors.New("seektest: start transfer timeout")
		}
		f.pending = f.render()
		delay := f.FrameDelay
		f.mu.Unlock()
		time.Sleep(delay)
		return len(data), nil
	}
	f.mu.Unlock()
	return len(data), nil
}

// ReadBulk implements seek.Transport.
func (f *Fake) ReadBulk(ctx context.Context, b []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errClosed
	}
	if f.FailBulk > 0 {
		f.FailBulk--
		f.pending = nil
		return 0, errors.New("seektest: bulk timeout")
	}
	if len(f.pending) == 0 {
		return 0, errors.New("seektest: no transfer pending")
	}
	n := copy(b, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// Reset implements seek.Transport.
func (f *Fake) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.running = false
	f.pending = nil
	return nil
}

// Close implements seek.Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	f.closed = true
	return nil
}

// Frames returns the number of frames sent.
func (f *Fake) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

// Requests returns the requests received, in order.
func (f *Fake) Requests() []seek.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]seek.Request, len(f.controls))
	for i := range f.controls {
		out[i] = f.controls[i].Request
	}
	return out
}

// Controls returns a copy of the control transfers received, in order.
func (f *Fake) Controls() []Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Control(nil), f.controls...)
}

// Resets returns the number of device resets.
func (f *Fake) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// Closed returns true once Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// CalibrationFrame returns a raw calibration frame where every word is v,
// except the type word.
func CalibrationFrame(v uint16) []byte {
	return Uniform(internal.TypeCalibration, v)
}

// DataFrame returns a raw data frame where every word is v, except the type
// word.
func DataFrame(v uint16) []byte {
	return Uniform(internal.TypeData, v)
}

// Uniform returns a raw frame of type t where every other word is v.
func Uniform(t, v uint16) []byte {
	raw := make([]byte, internal.FrameBytes)
	for i := 0; i < internal.Words; i++ {
		internal.PutWord(raw, i, v)
	}
	internal.PutWord(raw, internal.TypeWord, t)
	return raw
}

// Set sets the word at native coordinates (x, y) of raw.
func Set(raw []byte, x, y int, v uint16) {
	internal.PutWord(raw, y*internal.Cols+x, v)
}

// Private details.

var errClosed = errors.New("seektest: closed")

// Counts around which the sensor idles.
const (
	idle        = 5000
	sceneRange  = 400
	deadCounts  = 100
	readoutBias = 30
)

// render returns the next frame. f.mu must be held.
func (f *Fake) render() []byte {
	if f.noise == nil {
		f.noise = makeNoise()
		f.base = make([]uint16, internal.Words)
		for i := range f.base {
			f.base[i] = uint16(idle + f.noise.rand.Intn(readoutBias))
		}
		for _, p := range f.Dead {
			f.base[p.Y*internal.Cols+p.X] = deadCounts
		}
	}
	every := f.CalibrationEvery
	if every <= 0 {
		every = 10
	}
	raw := make([]byte, internal.FrameBytes)
	if f.frames%every == 0 {
		for i, v := range f.base {
			internal.PutWord(raw, i, v)
		}
		internal.PutWord(raw, internal.TypeWord, internal.TypeCalibration)
	} else {
		f.noise.update()
		for y := 0; y < internal.Rows; y++ {
			for x := 0; x < internal.Cols; x++ {
				i := y*internal.Cols + x
				internal.PutWord(raw, i, f.base[i]+f.noise.at(x, y))
			}
		}
		internal.PutWord(raw, internal.TypeWord, internal.TypeData)
	}
	f.frames++
	return raw
}

type blob struct {
	intensity float64
	x         float64
	y         float64
}

// noise is a few warm blobs drifting around.
type noise struct {
	rand  *rand.Rand
	blobs []blob
}

func makeNoise() *noise {
	n := &noise{rand: rand.New(rand.NewSource(0))}
	n.blobs = make([]blob, 6)
	for i := range n.blobs {
		n.blobs[i].intensity = 200 + n.rand.Float64()*200
		n.blobs[i].x = n.rand.Float64() * internal.Cols
		n.blobs[i].y = n.rand.Float64() * internal.Rows
	}
	return n
}

func (n *noise) update() {
	for i := range n.blobs {
		n.blobs[i].intensity += n.rand.NormFloat64()
		n.blobs[i].x += n.rand.NormFloat64() * 0.5
		n.blobs[i].y += n.rand.NormFloat64() * 0.5
	}
}

// at returns the scene counts at (x, y), in [0, sceneRange].
func (n *noise) at(x, y int) uint16 {
	v := 0.
	for _, b := range n.blobs {
		dx, dy := b.x-float64(x), b.y-float64(y)
		v += b.intensity * 100 / (100 + dx*dx + dy*dy)
	}
	if v > sceneRange {
		v = sceneRange
	}
	if v < 0 {
		v = 0
	}
	return uint16(v)
}

var _ seek.Transport = &Fake{}
