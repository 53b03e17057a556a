// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package seek takes thermal frames from a Seek Thermal Compact or CompactXR
// connected over USB.
//
// The camera is driven with vendor control requests on the control endpoint
// and sends its frames as four bulk transfers on endpoint 0x81. It regularly
// closes its shutter and sends a calibration frame instead of a data frame;
// the calibration frame is subtracted from the following data frames.
//
// The CompactPRO (product 0x0011) uses a different geometry and is not
// supported.
//
// References:
// Reverse engineered protocol:
//   https://github.com/lod/seek-thermal-documentation
//   https://github.com/maartenvds/libseek-thermal
//
// yaqd daemon this driver is compatible with:
//   https://github.com/yaq-project/yaqd-seek
package seek

import (
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/go-seek/seek/internal"
	"periph.io/x/periph/conn"
)

// Transport is the USB session with the camera. It is implemented by USB for
// real hardware and by seektest.Fake.
type Transport interface {
	io.Closer
	// Control does a control transfer on the default endpoint. data is sent
	// or filled depending on the direction bit of rType.
	Control(rType, request uint8, value, index uint16, data []byte) (int, error)
	// ReadBulk reads from the bulk IN endpoint. It must return when ctx is
	// done.
	ReadBulk(ctx context.Context, b []byte) (int, error)
	// Reset resets the USB device.
	Reset() error
}

// Opts holds the configuration of the driver. The zero value is valid.
type Opts struct {
	// Window is the part of the native frame to keep. Defaults to
	// DefaultWindow.
	Window image.Rectangle
	// StartAttempts is the number of attempts to acquire one raw frame, each
	// attempt being a start transfer request followed by the bulk reads.
	// Defaults to 100.
	StartAttempts int
	// RetryDelay is the delay after a failed bulk read. Defaults to 100ms.
	RetryDelay time.Duration
	// ReadTimeout bounds each bulk read. Defaults to 1s.
	ReadTimeout time.Duration
	// MeasureAttempts is the number of failed acquisitions tolerated by
	// Measure. 0 means no limit; Measure then only returns on success,
	// processing error or cancellation.
	MeasureAttempts int
}

// Info is what the camera reported during initialization.
type Info struct {
	Firmware        []byte
	ChipID          []byte
	FactorySettings [][]byte
}

// Stats is the acquisition counters.
type Stats struct {
	LastFail          error
	Frames            int // Raw frames read successfully.
	CalibrationFrames int
	DataFrames        int
	OtherFrames       int // Frames with an unknown type word.
	ControlFails      int // Failed start transfer requests.
	BulkFails         int // Failed bulk reads.
	ProcessFails      int // Frames that couldn't be corrected.
	Measurements      int
}

// Dev controls a Seek Compact.
//
// All USB transfers are serialized. Last() and Stats() are safe to call
// concurrently with an in-flight Measure().
type Dev struct {
	p       *Processor
	opts    Opts
	sleep   func(ctx context.Context, d time.Duration) error
	closing context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex // Serializes transport use.
	t      Transport
	info   Info
	lastID uint64

	last atomic.Pointer[Measurement]

	statsMu sync.Mutex
	stats   Stats
}

// New initializes the camera behind t and returns a running device.
//
// p holds the calibration state shared across frames; a new Processor using
// opts.Window is created if p is nil. On failure t is not closed.
func New(t Transport, p *Processor, opts *Opts) (*Dev, error) {
	d := &Dev{t: t, sleep: sleep}
	if opts != nil {
		d.opts = *opts
	}
	if d.opts.StartAttempts <= 0 {
		d.opts.StartAttempts = 100
	}
	if d.opts.RetryDelay <= 0 {
		d.opts.RetryDelay = 100 * time.Millisecond
	}
	if d.opts.ReadTimeout <= 0 {
		d.opts.ReadTimeout = time.Second
	}
	if p == nil {
		p = NewProcessor(d.opts.Window)
	}
	d.p = p
	if err := d.init(); err != nil {
		return nil, err
	}
	d.closing, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("SeekCompact{%s}", hex.EncodeToString(d.info.ChipID))
}

// Halt puts the camera to sleep.
//
// The camera must be initialized again with New before the next measurement.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return io.ErrClosedPipe
	}
	_, err := d.control(&sleepStep)
	return err
}

// Shutdown cancels any pending measurement, puts the camera to sleep and
// resets it. Errors are logged, not returned.
func (d *Dev) Shutdown() {
	d.cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return
	}
	if _, err := d.control(&sleepStep); err != nil {
		log.Printf("seek: shutdown: %s", err)
	}
	if err := d.t.Reset(); err != nil {
		log.Printf("seek: shutdown: reset: %s", err)
	}
	if err := d.t.Close(); err != nil {
		log.Printf("seek: shutdown: close: %s", err)
	}
	d.t = nil
}

// Info returns what the camera reported during initialization.
func (d *Dev) Info() Info {
	return d.info
}

// Processor returns the frame processor holding the calibration state.
func (d *Dev) Processor() *Processor {
	return d.p
}

// Bounds returns the bounds of the measured frames.
func (d *Dev) Bounds() image.Rectangle {
	return d.p.Bounds()
}

// Stats returns a snapshot of the counters.
func (d *Dev) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Last returns the last completed measurement, or nil if none completed yet.
// It never blocks.
func (d *Dev) Last() *Measurement {
	return d.last.Load()
}

// Measure acquires raw frames until a data frame is corrected.
//
// Transfer errors are logged and retried. Calibration frames update the
// calibration state and are skipped. Processing errors are returned as is and
// leave Last() unchanged.
func (d *Dev) Measure(ctx context.Context) (*Measurement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return nil, io.ErrClosedPipe
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(d.closing, cancel)()

	failures := 0
	for {
		raw, err := d.acquire(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			failures++
			if d.opts.MeasureAttempts > 0 && failures >= d.opts.MeasureAttempts {
				return nil, err
			}
			log.Printf("seek: %s", err)
			continue
		}
		kind := KindOf(raw)
		f, err := d.p.Process(raw)
		d.countFrame(kind, err)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		d.lastID++
		m := &Measurement{ID: d.lastID, Time: time.Now().UTC(), Frame: f}
		d.last.Store(m)
		return m, nil
	}
}

// AcquireFrame requests one raw frame and returns it unprocessed.
func (d *Dev) AcquireFrame(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return nil, io.ErrClosedPipe
	}
	return d.acquire(ctx)
}

// Private details.

// maxBackoff caps the delay between failed start transfer requests.
const maxBackoff = 100 * time.Millisecond

func (d *Dev) init() error {
	if _, err := d.control(&platformStep); err != nil {
		// The camera is likely still running from a previous session.
		log.Printf("seek: %s; putting the camera to sleep", err)
		for i := range recoverySteps {
			if _, err := d.control(&recoverySteps[i]); err != nil {
				log.Printf("seek: %s", err)
			}
		}
		if _, err := d.control(&platformStep); err != nil {
			return fmt.Errorf("%w: %w", ErrProtocolInit, err)
		}
	}
	for i := range initSteps {
		s := &initSteps[i]
		b, err := d.control(s)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProtocolInit, err)
		}
		switch s.Request {
		case GetFirmwareInfo:
			d.info.Firmware = b
		case ReadChipID:
			d.info.ChipID = b
		case GetFactorySettings:
			d.info.FactorySettings = append(d.info.FactorySettings, b)
		}
	}
	return nil
}

// acquire implements AcquireFrame. d.mu must be held.
func (d *Dev) acquire(ctx context.Context) ([]byte, error) {
	backoff := time.Millisecond
	var lastErr error
	for attempt := 0; attempt < d.opts.StartAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := d.control(&startStep); err != nil {
			d.fail(func(s *Stats) { s.ControlFails++ }, err)
			lastErr = err
			if err := d.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		raw, err := d.readFrame(ctx)
		if err != nil {
			d.fail(func(s *Stats) { s.BulkFails++ }, err)
			log.Printf("seek: %s", err)
			lastErr = err
			// Do not hammer a busy device.
			if err := d.sleep(ctx, d.opts.RetryDelay); err != nil {
				return nil, err
			}
			continue
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrTransfer, d.opts.StartAttempts, lastErr)
}

// readFrame does the bulk reads of one frame.
func (d *Dev) readFrame(ctx context.Context) ([]byte, error) {
	raw := make([]byte, internal.FrameBytes)
	for i := 0; i < internal.Chunks; i++ {
		chunk := raw[i*internal.ChunkBytes : (i+1)*internal.ChunkBytes]
		rctx, cancel := context.WithTimeout(ctx, d.opts.ReadTimeout)
		n, err := d.t.ReadBulk(rctx, chunk)
		cancel()
		if err == nil && n != len(chunk) {
			err = io.ErrShortBuffer
		}
		if err != nil {
			return nil, fmt.Errorf("bulk read %d/%d: %w", i+1, internal.Chunks, err)
		}
	}
	return raw, nil
}

// control runs one protocol step and returns the data read, if any.
func (d *Dev) control(s *Step) ([]byte, error) {
	b := s.Data
	if s.In() {
		b = make([]byte, s.Len)
	}
	n, err := d.t.Control(s.RequestType(), uint8(s.Request), 0, 0, b)
	if err != nil {
		return nil, fmt.Errorf("%s (%s): %w", s.Name, s.Request, err)
	}
	if s.In() {
		// Some firmwares send shorter factory settings.
		return b[:n], nil
	}
	if n != len(b) {
		return nil, fmt.Errorf("%s (%s): sent %d bytes, expected %d", s.Name, s.Request, n, len(b))
	}
	return nil, nil
}

func (d *Dev) fail(f func(s *Stats), err error) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	f(&d.stats)
	d.stats.LastFail = err
}

func (d *Dev) countFrame(k Kind, err error) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	d.stats.Frames++
	switch k {
	case Calibration:
		d.stats.CalibrationFrames++
	case Data:
		d.stats.DataFrames++
	default:
		d.stats.OtherFrames++
	}
	if err != nil {
		d.stats.ProcessFails++
		d.stats.LastFail = err
	} else if k == Data {
		d.stats.Measurements++
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ conn.Resource = &Dev{}
