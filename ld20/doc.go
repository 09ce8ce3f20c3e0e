// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ld20 provides a driver for the Sensirion LD20 single-use liquid
// flow sensor.
//
// After the start command the sensor measures continuously and every read
// returns the latest flow, temperature and signaling flags. The first valid
// result is available 12ms after the start command; allow an additional
// 150ms warm up for the specified accuracy.
//
// # Datasheet
//
// https://sensirion.com/media/documents/F3A7F2E3/63D3D5C2/Sensirion_Datasheet_Liquid_Flow_Sensor_LD20-2600B.pdf
package ld20
