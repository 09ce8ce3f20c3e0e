// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"time"

	"github.com/GermanBionicSystems/sensirion/frame"
)

// Device is a sensor at a fixed address on a Bus.
type Device struct {
	Bus  Bus
	Addr uint16
	// Sleep replaces time.Sleep for command execution delays when set. Tests
	// use it to run without waiting.
	Sleep func(time.Duration)
}

// NewDevice returns a Device for the sensor at addr.
func NewDevice(b Bus, addr uint16) *Device {
	return &Device{Bus: b, Addr: addr}
}

// Wait pauses for delay using d.Sleep.
func (d *Device) Wait(delay time.Duration) {
	if delay <= 0 {
		return
	}
	if d.Sleep != nil {
		d.Sleep(delay)
		return
	}
	time.Sleep(delay)
}

// Send writes cmd with the optional parameter words and waits for the
// command execution time.
func (d *Device) Send(cmd *frame.Command, params ...uint16) error {
	if err := d.Bus.Write(d.Addr, cmd.Encode(params...)); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	d.Wait(cmd.Delay)
	return nil
}

// Query sends cmd, waits, then reads and validates cmd.Words data words.
func (d *Device) Query(cmd *frame.Command, params ...uint16) ([]uint16, error) {
	if err := d.Send(cmd, params...); err != nil {
		return nil, err
	}
	if cmd.Words == 0 {
		return nil, nil
	}
	r, err := d.Bus.Read(d.Addr, cmd.ResponseSize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return cmd.Decode(r)
}

// Measure runs Query and converts the words with cmd.Fields.
func (d *Device) Measure(cmd *frame.Command) (frame.Record, error) {
	words, err := d.Query(cmd)
	if err != nil {
		return nil, err
	}
	return frame.Convert(words, cmd.Fields)
}

// Fetch reads words data words without sending a command first, as done by
// sensors that stream measurements after a start command.
func (d *Device) Fetch(words int) ([]uint16, error) {
	r, err := d.Bus.Read(d.Addr, words*frame.WordSize)
	if err != nil {
		return nil, err
	}
	return frame.DecodeResponse(r, words)
}
