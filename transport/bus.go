// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/sensirion/frame"
)

// Bus is the minimal transport a sensor needs. Implementations report
// failures as *frame.BusError.
type Bus interface {
	Write(addr uint16, w []byte) error
	Read(addr uint16, n int) ([]byte, error)
}

// I2C adapts a periph i2c.Bus to Bus. Writes and reads are separate
// transfers, since Sensirion sensors need the command execution time between
// them.
type I2C struct {
	b i2c.Bus
}

// NewI2C returns a Bus issuing transfers on b.
func NewI2C(b i2c.Bus) *I2C {
	return &I2C{b: b}
}

func (t *I2C) Write(addr uint16, w []byte) error {
	if err := t.b.Tx(addr, w, nil); err != nil {
		return &frame.BusError{Op: "write", Addr: addr, Err: err}
	}
	return nil
}

func (t *I2C) Read(addr uint16, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := t.b.Tx(addr, nil, r); err != nil {
		return nil, &frame.BusError{Op: "read", Addr: addr, Err: err}
	}
	return r, nil
}

func (t *I2C) String() string {
	return t.b.String()
}

var _ Bus = &I2C{}
