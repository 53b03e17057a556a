// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package seektest

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-seek/seek"
)

func TestFake(t *testing.T) {
	f := New()
	f.CalibrationEvery = 3
	d, err := seek.New(f, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 4; i++ {
		m, err := d.Measure(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if m.ID != uint64(i) {
			t.Fatal(m.ID)
		}
		for _, v := range m.Frame.Pix {
			if v < 0 || v > sceneRange {
				t.Fatalf("unexpected value %d", v)
			}
		}
	}
	// 6 frames: C D D C D D.
	if n := f.Frames(); n != 6 {
		t.Fatal(n)
	}
	s := d.Stats()
	if s.CalibrationFrames != 2 || s.DataFrames != 4 || s.Measurements != 4 {
		t.Fatalf("%+v", s)
	}
	want := []image.Point{{X: 10, Y: 0}, {X: 120, Y: 30}, {X: 50, Y: 60}}
	if diff := cmp.Diff(want, d.Processor().DeadPixels()); diff != "" {
		t.Fatalf("dead pixels (-want +got):\n%s", diff)
	}
	d.Shutdown()
	if !f.Closed() || f.Resets() != 1 {
		t.Fatal("expected closed and reset")
	}
	r := f.Requests()
	if r[len(r)-1] != seek.SetOperationMode {
		t.Fatal(r[len(r)-1])
	}
}

func TestFake_asleep(t *testing.T) {
	f := New()
	f.Asleep = true
	if _, err := seek.New(f, nil, nil); err != nil {
		t.Fatal(err)
	}
	want := []seek.Request{
		seek.TargetPlatform,
		seek.SetOperationMode,
		seek.SetOperationMode,
		seek.SetOperationMode,
		seek.TargetPlatform,
	}
	if diff := cmp.Diff(want, f.Requests()[:5]); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestFake_retry(t *testing.T) {
	f := New()
	f.FailStart = 2
	f.FailBulk = 1
	d, err := seek.New(f, nil, &seek.Opts{RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Measure(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := d.Stats()
	if s.ControlFails != 2 || s.BulkFails != 1 || s.Measurements != 1 {
		t.Fatalf("%+v", s)
	}
}

func TestFake_cancel(t *testing.T) {
	f := New()
	f.FrameDelay = 10 * time.Millisecond
	d, err := seek.New(f, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	go d.Shutdown()
	for {
		// Either the measurement completes before Shutdown() or it is
		// canceled; it must not hang.
		if _, err := d.Measure(context.Background()); err != nil {
			return
		}
	}
}

func TestFake_accessors(t *testing.T) {
	f := New()
	f.FrameDelay = time.Millisecond
	d, err := seek.New(f, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error)
	go func() {
		for i := 0; i < 3; i++ {
			if _, err := d.Measure(context.Background()); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	// Reading the state while the camera is in use is safe.
	for running := true; running; {
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
			running = false
		default:
			_ = f.Controls()
			_ = f.Resets()
			_ = f.Closed()
		}
	}
	c := f.Controls()
	want := Control{RequestType: 0x41, Request: seek.TargetPlatform, Data: []byte{0x01}}
	if diff := cmp.Diff(want, c[0]); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// The returned slice is a copy.
	c[0].Request = seek.ReadChipID
	if r := f.Controls()[0].Request; r != seek.TargetPlatform {
		t.Fatal(r)
	}
	if f.Resets() != 0 || f.Closed() {
		t.Fatal("unexpected reset or close")
	}
	d.Shutdown()
	if f.Resets() != 1 || !f.Closed() {
		t.Fatal("expected reset and close")
	}
}

func TestFrames(t *testing.T) {
	raw := CalibrationFrame(7)
	Set(raw, 3, 2, 9)
	if k := seek.KindOf(raw); k != seek.Calibration {
		t.Fatal(k)
	}
	if k := seek.KindOf(DataFrame(7)); k != seek.Data {
		t.Fatal(k)
	}
	p := seek.NewProcessor(seek.DefaultWindow)
	if _, err := p.Process(raw); err != nil {
		t.Fatal(err)
	}
	if v := p.Calibration()[2*206+3]; v != 9 {
		t.Fatal(v)
	}
}
