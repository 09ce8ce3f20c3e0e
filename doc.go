// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensirion is a container for the Sensirion I2C frame codec and
// sensor drivers.
//
// Package frame holds the wire format shared by the sensors: 16 bit command
// words, and data words each followed by a CRC-8. Package transport moves
// frames over an I2C bus with scoped bus acquisition and a retry policy.
// Packages ld20, scd4x, sen5x and sgp30 are the device drivers, and
// cmd/sensirion a command line tool using them.
package sensirion
