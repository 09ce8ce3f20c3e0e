// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package scd4x provides a driver for the Sensirion SCD4x CO2 sensors.
// The scd4x family provide a compact sensor that can be used to measure
// Temperature, Humidity, and CO2 concentration.
//
// Measurements are decoded with the frame package transforms: CO2 in ppm
// without scaling, T = -45 + 175*count/65536 °C and RH = 100*count/65536 %.
// Every response word is CRC checked; a reading with a corrupt word is
// rejected as a whole.
//
// Refer to the datasheet for more information.
//
// https://sensirion.com/media/documents/48C4B7FB/66E05452/CD_DS_SCD4x_Datasheet_D1.pdf
package scd4x
