// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package seek

import (
	"fmt"

	"github.com/maruel/go-seek/seek/internal"
)

// Request is a vendor specific control request understood by the camera.
type Request uint8

// All the requests used by the driver.
const (
	ReadChipID                 Request = 54 // 0x36 IN  12 bytes
	SetOperationMode           Request = 60 // 0x3C OUT 2 bytes
	GetOperationMode           Request = 61 // 0x3D IN  2 bytes
	SetImageProcessingMode     Request = 62 // 0x3E OUT 2 bytes
	GetFirmwareInfo            Request = 78 // 0x4E IN  4 bytes
	StartGetImageTransfer      Request = 83 // 0x53 OUT 4 bytes
	TargetPlatform             Request = 84 // 0x54 OUT 1 byte
	SetFactorySettingsFeatures Request = 86 // 0x56 OUT 6 bytes
	GetFactorySettings         Request = 88 // 0x58 IN  variable
)

func (r Request) String() string {
	switch r {
	case ReadChipID:
		return "ReadChipID"
	case SetOperationMode:
		return "SetOperationMode"
	case GetOperationMode:
		return "GetOperationMode"
	case SetImageProcessingMode:
		return "SetImageProcessingMode"
	case GetFirmwareInfo:
		return "GetFirmwareInfo"
	case StartGetImageTransfer:
		return "StartGetImageTransfer"
	case TargetPlatform:
		return "TargetPlatform"
	case SetFactorySettingsFeatures:
		return "SetFactorySettingsFeatures"
	case GetFactorySettings:
		return "GetFactorySettings"
	default:
		return fmt.Sprintf("Request(%d)", uint8(r))
	}
}

// bmRequestType values: vendor, interface recipient.
const (
	requestOut uint8 = 0x41
	requestIn  uint8 = 0xC1
)

// Step is one control transfer of the protocol.
//
// Out steps send Data. In steps read Len bytes.
type Step struct {
	Name    string
	Request Request
	Data    []byte
	Len     int
}

// In returns true if the step reads from the device.
func (s *Step) In() bool {
	return s.Data == nil
}

// RequestType returns the bmRequestType to use.
func (s *Step) RequestType() uint8 {
	if s.In() {
		return requestIn
	}
	return requestOut
}

func out(name string, r Request, data ...byte) Step {
	return Step{Name: name, Request: r, Data: data}
}

func in(name string, r Request, l int) Step {
	return Step{Name: name, Request: r, Len: l}
}

// Operation modes.
var (
	modeSleep = []byte{0x00, 0x00}
	modeRun   = []byte{0x01, 0x00}
)

var (
	platformStep = out("target platform", TargetPlatform, 0x01)

	// recoverySteps puts a device left running by a previous session back to
	// sleep.
	recoverySteps = []Step{
		out("sleep", SetOperationMode, modeSleep...),
		out("sleep", SetOperationMode, modeSleep...),
		out("sleep", SetOperationMode, modeSleep...),
	}

	// initSteps is run after the platform declaration succeeded. Responses of
	// the In steps are kept in Info.
	//
	// The factory settings and operation mode reads follow the session setup
	// of libseek-thermal and pyseek.
	initSteps = []Step{
		out("idle", SetOperationMode, modeSleep...),
		in("firmware info", GetFirmwareInfo, 4),
		in("chip id", ReadChipID, 12),
		out("factory settings features #1", SetFactorySettingsFeatures, 0x20, 0x00, 0x30, 0x00, 0x00, 0x00),
		in("factory settings #1", GetFactorySettings, 64),
		out("factory settings features #2", SetFactorySettingsFeatures, 0x20, 0x00, 0x50, 0x00, 0x00, 0x00),
		in("factory settings #2", GetFactorySettings, 64),
		out("factory settings features #3", SetFactorySettingsFeatures, 0x0C, 0x00, 0x70, 0x00, 0x00, 0x00),
		in("factory settings #3", GetFactorySettings, 24),
		out("factory settings features #4", SetFactorySettingsFeatures, 0x06, 0x00, 0x08, 0x00, 0x00, 0x00),
		in("factory settings #4", GetFactorySettings, 12),
		out("image processing mode", SetImageProcessingMode, 0x08, 0x00),
		in("operation mode", GetOperationMode, 2),
		out("image processing mode", SetImageProcessingMode, 0x08, 0x00),
		out("run", SetOperationMode, modeRun...),
		in("operation mode", GetOperationMode, 2),
	}

	sleepStep = out("sleep", SetOperationMode, modeSleep...)

	startStep = Step{Name: "start transfer", Request: StartGetImageTransfer, Data: internal.Uint32(internal.Words)}
)
