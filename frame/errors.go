// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frame

import (
	"errors"
	"fmt"
)

// ChecksumError is returned when the CRC byte of a data word does not match
// the CRC calculated over its payload. The whole response is discarded.
type ChecksumError struct {
	// Index of the first data word that failed validation.
	Index int
	// Got is the checksum byte received from the sensor.
	Got byte
	// Want is the checksum calculated over the payload.
	Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("frame: word %d crc 0x%02x, expected 0x%02x", e.Index, e.Got, e.Want)
}

// LengthError is returned when a response buffer does not hold exactly the
// expected number of data words. It usually means the command table is wrong,
// so retrying will not help.
type LengthError struct {
	Got  int
	Want int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("frame: response is %d bytes, expected %d", e.Got, e.Want)
}

// BusError wraps a failure reported by the bus transport, e.g. a NACK.
type BusError struct {
	// Op is "write" or "read".
	Op   string
	Addr uint16
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("frame: %s 0x%02x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the whole transaction can succeed after
// err. Bus and checksum failures are transient; anything else, including
// length errors, is not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var be *BusError
	if errors.As(err, &be) {
		return true
	}
	var ce *ChecksumError
	return errors.As(err, &ce)
}
