// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package seek

import "errors"

var (
	// ErrDeviceNotFound is returned by Open when no camera is connected.
	ErrDeviceNotFound = errors.New("seek: device not found")
	// ErrEndpointNotFound is returned by Open when the interface has no OUT
	// endpoint.
	ErrEndpointNotFound = errors.New("seek: endpoint not found")
	// ErrProtocolInit is returned when the camera refused the initialization
	// sequence, even after the recovery attempt.
	ErrProtocolInit = errors.New("seek: protocol initialization failed")
	// ErrTransfer is returned when a frame could not be acquired within the
	// retry budget.
	ErrTransfer = errors.New("seek: transfer failed")
	// ErrNoCalibration is returned when a data frame arrives before any
	// calibration frame.
	ErrNoCalibration = errors.New("seek: no calibration available")
	// ErrCorrection is returned when a frame cannot be corrected.
	ErrCorrection = errors.New("seek: correction failed")
)
