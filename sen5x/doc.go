// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sen5x provides a driver for the Sensirion SEN5x environmental
// sensor node (SEN50, SEN54, SEN55).
//
// Depending on the variant the module measures particulate matter (PM1.0,
// PM2.5, PM4.0, PM10), relative humidity and temperature, and the VOC and NOx
// indices. It can run all channels, or only the humidity, temperature and gas
// channels with the particle sensor and fan switched off.
//
// Values the variant does not provide, or that are not ready yet, are
// reported as NaN, or as zero for Temperature and Humidity.
//
// # Datasheet
//
// https://sensirion.com/media/documents/6791EFA0/62A1F68F/Sensirion_Datasheet_Environmental_Node_SEN5x.pdf
package sen5x
