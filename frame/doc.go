// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package frame implements the word oriented I2C framing used by Sensirion
// sensors.
//
// Every command starts with a 16 bit big-endian command word. Parameters and
// responses are transferred as data words: two payload bytes followed by a
// CRC-8 of those two bytes. Commands are described by a Command table entry
// holding the opcode, the number of words the sensor returns, the execution
// time, and the Field transforms that turn each returned word into a physical
// value.
//
// All functions in this package are pure. They do not perform I/O and never
// retry; failures are reported as *ChecksumError or *LengthError and recovery
// is left to the caller.
package frame
