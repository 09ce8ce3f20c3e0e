// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Opener acquires a bus handle.
type Opener func() (i2c.BusCloser, error)

// Use acquires a bus with open, runs fn with it and closes the bus whatever
// fn returns. A close failure is joined to the result of fn.
func Use(ctx context.Context, open Opener, fn func(ctx context.Context, b i2c.Bus) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := open()
	if err != nil {
		return fmt.Errorf("transport: open bus: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("transport: close bus: %w", cerr))
		}
	}()
	return fn(ctx, b)
}

// WithBus initializes the host drivers, opens the I2C bus called name ("" is
// the first bus found) and runs fn as Use does.
func WithBus(ctx context.Context, name string, fn func(ctx context.Context, b i2c.Bus) error) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("transport: host init: %w", err)
	}
	return Use(ctx, func() (i2c.BusCloser, error) { return i2creg.Open(name) }, fn)
}
