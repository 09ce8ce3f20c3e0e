// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sen5x

import (
	"strconv"
	"strings"
)

// Status is the SEN5x device status register.
type Status uint32

const (
	// FanSpeedWarning is set when the fan speed is off by more than 10% for
	// several consecutive measurements. Cleared automatically once the speed
	// recovers.
	FanSpeedWarning Status = 1 << 21
	// FanCleaning is set while the fan cleaning procedure runs.
	FanCleaning Status = 1 << 19
	// GasSensorError reports a VOC or NOx sensor communication error.
	GasSensorError Status = 1 << 7
	// RHTError reports a humidity and temperature sensor communication error.
	RHTError Status = 1 << 6
	// LaserFailure reports a laser current out of range.
	LaserFailure Status = 1 << 5
	// FanFailure reports a fan that is blocked or broken.
	FanFailure Status = 1 << 4
)

var statusNames = []struct {
	s    Status
	name string
}{
	{FanSpeedWarning, "fan speed warning"},
	{FanCleaning, "fan cleaning"},
	{GasSensorError, "gas sensor error"},
	{RHTError, "rht error"},
	{LaserFailure, "laser failure"},
	{FanFailure, "fan failure"},
}

// Errors masks the flags reporting a hardware failure.
const Errors = GasSensorError | RHTError | LaserFailure | FanFailure

func (s Status) String() string {
	if s == 0 {
		return "ok"
	}
	var out []string
	rest := s
	for _, n := range statusNames {
		if s&n.s != 0 {
			out = append(out, n.name)
			rest &^= n.s
		}
	}
	if rest != 0 {
		out = append(out, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(out, "|")
}
