// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// seekd serves measurements from a Seek Compact over HTTP and optionally
// publishes them to a MQTT broker.
//
// It exits when its executable or its config file is modified, so it is
// restarted by its supervisor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/go-seek/seek"
	"github.com/maruel/go-seek/seek/seektest"
	"github.com/maruel/interrupt"
)

func mainImpl() error {
	cpuprofile := flag.String("cpuprofile", "", "dump CPU profile in file")
	configPath := flag.String("config", defaultConfigPath(), "path to the JSON config file")
	port := flag.Int("port", 0, "http port to listen on; overrides the config")
	continuous := flag.Bool("continuous", false, "measure continuously instead of on request")
	fake := flag.Bool("fake", false, "use a fake camera")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *continuous {
		cfg.Continuous = true
	}

	interrupt.HandleCtrlC()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-interrupt.Channel
		cancel()
	}()

	var dev *seek.Dev
	if *fake {
		f := seektest.New()
		// Roughly the camera frame rate.
		f.FrameDelay = 110 * time.Millisecond
		dev, err = seek.New(f, nil, nil)
	} else {
		dev, err = seek.Open(nil)
	}
	if err != nil {
		return err
	}
	defer dev.Shutdown()

	session := uuid.New().String()
	m := newMeasurer(dev, cfg.Continuous)
	var pub *Publisher
	if cfg.MQTT.Broker != "" {
		if pub, err = newPublisher(&cfg.MQTT, session); err != nil {
			return err
		}
		defer pub.Close()
		m.OnMeasurement(pub.Publish)
	}
	s := newWebServer(ctx, session, m, pub)
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http: %s", err)
		}
	}()
	defer srv.Close()
	fmt.Printf("%s session %s listening on %d\n", dev, session, cfg.Port)

	go m.run(ctx)
	go func() {
		exe, err := os.Executable()
		if err != nil {
			log.Printf("watch: %s", err)
			return
		}
		if err := watchFiles(ctx, exe, *configPath); err != nil {
			log.Printf("watch: %s", err)
		}
		if ctx.Err() == nil {
			fmt.Printf("\nFile modified, exiting.\n")
			interrupt.Set()
		}
	}()

	for !interrupt.IsSet() {
		st := dev.Stats()
		fmt.Printf("\r%d measurements %d frames %d calib %d other %d ctrl fail %d bulk fail %d failed", st.Measurements, st.Frames, st.CalibrationFrames, st.OtherFrames, st.ControlFails, st.BulkFails, m.Failures())
		if pub != nil {
			ps := pub.Stats()
			fmt.Printf(" %d sent %d unsent", ps.Sent, ps.Failed)
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
	fmt.Print("\n")
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nseekd: %s.\n", err)
		os.Exit(1)
	}
}
