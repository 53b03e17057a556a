// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/go-seek/seek"
)

// failureDelay is waited after a failed measurement.
const failureDelay = time.Second

// measurer runs measurements on request, or back to back when continuous.
type measurer struct {
	dev        *seek.Dev
	continuous bool
	trigger    chan struct{}
	failures   atomic.Int64

	mu        sync.Mutex
	queued    bool   // A trigger was sent and not yet consumed.
	busy      bool
	base      uint64 // Last ID when the in-flight measurement started.
	listeners []func(m *seek.Measurement)
}

func newMeasurer(dev *seek.Dev, continuous bool) *measurer {
	return &measurer{dev: dev, continuous: continuous, trigger: make(chan struct{}, 1)}
}

// Trigger requests a measurement and returns the ID it will get.
//
// A request made while a measurement is in flight gets the following one.
// Requests made before a queued measurement starts are coalesced into it and
// share its ID. The ID is a prediction; it is off when a measurement fails.
func (m *measurer) Trigger() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.queued {
		m.queued = true
		select {
		case m.trigger <- struct{}{}:
		default:
		}
	}
	if m.busy {
		return m.base + 2
	}
	return m.lastID() + 1
}

// Busy returns true while a measurement is in flight.
func (m *measurer) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Failures returns the number of failed measurements.
func (m *measurer) Failures() int64 {
	return m.failures.Load()
}

// OnMeasurement registers f to be called after each successful measurement.
func (m *measurer) OnMeasurement(f func(m *seek.Measurement)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, f)
}

// run measures until ctx is done.
func (m *measurer) run(ctx context.Context) {
	for {
		if !m.continuous {
			select {
			case <-ctx.Done():
				return
			case <-m.trigger:
			}
		}
		m.setBusy(true)
		start := time.Now()
		meas, err := m.dev.Measure(ctx)
		m.setBusy(false)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.failures.Add(1)
			log.Printf("measurement failed: %s", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(failureDelay):
			}
			continue
		}
		log.Printf("measurement %d in %s", meas.ID, time.Since(start).Round(time.Millisecond))
		m.mu.Lock()
		l := m.listeners
		m.mu.Unlock()
		for _, f := range l {
			f(meas)
		}
	}
}

func (m *measurer) setBusy(b bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b {
		m.queued = false
	}
	m.busy = b
	m.base = m.lastID()
}

func (m *measurer) lastID() uint64 {
	if last := m.dev.Last(); last != nil {
		return last.ID
	}
	return 0
}
