// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// seek-grab captures a single image.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"time"

	"github.com/maruel/go-seek/agc"
	"github.com/maruel/go-seek/seek"
	"github.com/maruel/go-seek/seek/seektest"
	"github.com/maruel/interrupt"
)

func mainImpl() error {
	useAGC := flag.Bool("agc", false, "Save a 8 bit PNG instead of the default 16 bits")
	rotate := flag.Int("rotate", 0, "counter clockwise rotation of the 8 bit PNG: 0, 90, 180 or 270")
	fake := flag.Bool("fake", false, "use a fake camera")
	meta := flag.Bool("meta", false, "print metadata")
	timeout := flag.Duration("timeout", 10*time.Second, "give up after this delay")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 1 {
		return errors.New("supply path to PNG to save")
	}

	interrupt.HandleCtrlC()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	go func() {
		select {
		case <-interrupt.Channel:
			cancel()
		case <-ctx.Done():
		}
	}()

	var dev *seek.Dev
	var err error
	if *fake {
		dev, err = seek.New(seektest.New(), nil, nil)
	} else {
		dev, err = seek.Open(nil)
	}
	if err != nil {
		return fmt.Errorf("%s\nIf testing without hardware, use -fake to simulate a camera", err)
	}
	defer dev.Shutdown()

	m, err := dev.Measure(ctx)
	if err != nil {
		return err
	}
	if *meta {
		s := dev.Stats()
		info := dev.Info()
		fmt.Printf("Device:            %s\n", dev)
		fmt.Printf("Firmware:          %x\n", info.Firmware)
		fmt.Printf("Time:              %s\n", m.Time)
		fmt.Printf("Frames:            %d (%d calibration)\n", s.Frames, s.CalibrationFrames)
		fmt.Printf("Dead pixels:       %d\n", len(dev.Processor().DeadPixels()))
		fmt.Printf("Range:             [%d, %d]\n", agc.Min(m.Frame), agc.Max(m.Frame))
	}
	var img image.Image = agc.Gray16(m.Frame)
	if *useAGC {
		if img, err = agc.Rotate(agc.Linear(m.Frame), *rotate); err != nil {
			return err
		}
	}
	f, err := os.Create(flag.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nseek-grab: %s.\n", err)
		os.Exit(1)
	}
}
