// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package seek

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USB identifiers of the Seek Compact and CompactXR.
const (
	VendorID  gousb.ID = 0x289D
	ProductID gousb.ID = 0x0010
)

// bulkEndpoint is endpoint 0x81, IN #1.
const bulkEndpoint = 1

// USB is the Transport to a camera connected over USB.
type USB struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
}

// OpenUSB opens the first camera matching vid and pid.
//
// Use VendorID and ProductID for a Compact.
func OpenUSB(vid, pid gousb.ID) (*USB, error) {
	u := &USB{ctx: gousb.NewContext()}
	dev, err := u.ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		u.Close()
		return nil, fmt.Errorf("seek: %w", err)
	}
	if dev == nil {
		u.Close()
		return nil, fmt.Errorf("%w: %s:%s", ErrDeviceNotFound, vid, pid)
	}
	u.dev = dev
	u.dev.ControlTimeout = time.Second
	if err := u.dev.SetAutoDetach(true); err != nil {
		u.Close()
		return nil, fmt.Errorf("seek: %w", err)
	}
	num, err := u.dev.ActiveConfigNum()
	if err != nil || num == 0 {
		num = 1
	}
	if u.cfg, err = u.dev.Config(num); err != nil {
		u.Close()
		return nil, fmt.Errorf("seek: config %d: %w", num, err)
	}
	if u.intf, err = u.cfg.Interface(0, 0); err != nil {
		u.Close()
		return nil, fmt.Errorf("seek: interface: %w", err)
	}
	hasOut := false
	for _, ep := range u.intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionOut {
			hasOut = true
			break
		}
	}
	if !hasOut {
		u.Close()
		return nil, ErrEndpointNotFound
	}
	if u.in, err = u.intf.InEndpoint(bulkEndpoint); err != nil {
		u.Close()
		return nil, fmt.Errorf("%w: %w", ErrEndpointNotFound, err)
	}
	return u, nil
}

// Open opens the first Seek Compact and initializes it.
func Open(opts *Opts) (*Dev, error) {
	u, err := OpenUSB(VendorID, ProductID)
	if err != nil {
		return nil, err
	}
	d, err := New(u, nil, opts)
	if err != nil {
		u.Close()
		return nil, err
	}
	return d, nil
}

func (u *USB) String() string {
	if u.dev == nil {
		return "USB{closed}"
	}
	return u.dev.String()
}

// Control implements Transport.
func (u *USB) Control(rType, request uint8, value, index uint16, data []byte) (int, error) {
	return u.dev.Control(rType, request, value, index, data)
}

// ReadBulk implements Transport.
func (u *USB) ReadBulk(ctx context.Context, b []byte) (int, error) {
	return u.in.ReadContext(ctx, b)
}

// Reset implements Transport.
func (u *USB) Reset() error {
	return u.dev.Reset()
}

// Close releases the interface, the configuration and the device.
func (u *USB) Close() error {
	var err error
	if u.intf != nil {
		u.intf.Close()
		u.intf = nil
	}
	if u.cfg != nil {
		if err2 := u.cfg.Close(); err == nil {
			err = err2
		}
		u.cfg = nil
	}
	if u.dev != nil {
		if err2 := u.dev.Close(); err == nil {
			err = err2
		}
		u.dev = nil
	}
	if u.ctx != nil {
		if err2 := u.ctx.Close(); err == nil {
			err = err2
		}
		u.ctx = nil
	}
	return err
}

var _ Transport = &USB{}
