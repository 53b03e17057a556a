// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// seek-query initializes the camera and prints what it reports about itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/maruel/go-seek/seek"
)

func mainImpl() error {
	raw := flag.Bool("raw", false, "also acquire one raw frame and print its type")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	dev, err := seek.Open(nil)
	if err != nil {
		return err
	}
	defer dev.Shutdown()
	info := dev.Info()
	fmt.Printf("Device:              %s\n", dev)
	fmt.Printf("Firmware:            %x\n", info.Firmware)
	fmt.Printf("ChipID:              %x\n", info.ChipID)
	for i, s := range info.FactorySettings {
		fmt.Printf("FactorySettings[%d]:  %x\n", i, s)
	}
	fmt.Printf("Window:              %s\n", dev.Processor().Window())
	if *raw {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b, err := dev.AcquireFrame(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Frame:               %s, %d bytes\n", seek.KindOf(b), len(b))
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nseek-query: %s.\n", err)
		os.Exit(1)
	}
}
