// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frame

import (
	"fmt"
	"math"
	"slices"
)

// Field describes how a 16 bit payload word maps to a physical value:
//
//	value = Offset + Gain*raw/Divisor
//
// where raw is first reinterpreted as two's complement when Signed is set.
// A zero Gain or Divisor is treated as 1.
type Field struct {
	Name    string
	Unit    string
	Signed  bool
	Offset  float64
	Gain    float64
	Divisor float64
	// Invalid lists raw values the sensor uses to flag that the quantity is
	// not available. They decode to NaN.
	Invalid []uint16
}

// Int16 reinterprets raw as a 16 bit two's complement value.
func Int16(raw uint16) int {
	if raw >= 1<<15 {
		return int(raw) - 1<<16
	}
	return int(raw)
}

func (f Field) scale() (gain, divisor float64) {
	gain, divisor = f.Gain, f.Divisor
	if gain == 0 {
		gain = 1
	}
	if divisor == 0 {
		divisor = 1
	}
	return gain, divisor
}

// Decode converts a validated payload word.
func (f Field) Decode(raw uint16) float64 {
	if slices.Contains(f.Invalid, raw) {
		return math.NaN()
	}
	v := float64(raw)
	if f.Signed {
		v = float64(Int16(raw))
	}
	gain, divisor := f.scale()
	return f.Offset + gain*v/divisor
}

// Encode is the inverse of Decode, used to write parameters. The value is
// rounded to the nearest count and must fit the field's 16 bit range.
func (f Field) Encode(v float64) (uint16, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("frame: %s: invalid value %v", f.Name, v)
	}
	gain, divisor := f.scale()
	count := math.Round((v - f.Offset) * divisor / gain)
	lo, hi := 0.0, float64(math.MaxUint16)
	if f.Signed {
		lo, hi = math.MinInt16, math.MaxInt16
	}
	if count < lo || count > hi {
		return 0, fmt.Errorf("frame: %s: %g%s out of range", f.Name, v, f.Unit)
	}
	if f.Signed {
		return uint16(int16(count)), nil
	}
	return uint16(count), nil
}

// WithInvalid returns a copy of f that decodes the raw values in invalid to
// NaN.
func (f Field) WithInvalid(invalid ...uint16) Field {
	f.Invalid = append(slices.Clip(f.Invalid), invalid...)
	return f
}

// Transforms used by the supported sensors.
var (
	// LD20 liquid flow, ml/h.
	FlowLD20 = Field{Name: "flow", Unit: "ml/h", Signed: true, Divisor: 1200}
	// LD20 media temperature.
	TemperatureLD20 = Field{Name: "temperature", Unit: "°C", Divisor: 200}

	// SCD4x CO2 concentration. No scaling.
	CO2 = Field{Name: "co2", Unit: "ppm"}
	// SCD4x temperature.
	TemperatureSCD4x = Field{Name: "temperature", Unit: "°C", Offset: -45, Gain: 175, Divisor: 65536}
	// SCD4x relative humidity.
	HumiditySCD4x = Field{Name: "humidity", Unit: "%RH", Gain: 100, Divisor: 65536}

	// SEN5x VOC and NOx indices.
	VOCIndex = Field{Name: "voc", Divisor: 10}
	NOxIndex = Field{Name: "nox", Divisor: 10}
	// SEN5x ambient temperature.
	TemperatureSEN5x = Field{Name: "temperature", Unit: "°C", Signed: true, Divisor: 200}
	// SEN5x ambient relative humidity.
	HumiditySEN5x = Field{Name: "humidity", Unit: "%RH", Divisor: 100}

	// SEN5x temperature compensation parameters.
	CompensationOffset       = Field{Name: "offset", Unit: "°C", Signed: true, Divisor: 200}
	CompensationSlope        = Field{Name: "slope", Divisor: 10000}
	CompensationTimeConstant = Field{Name: "time constant", Unit: "s"}
)

// MassConcentration returns the transform of a SEN5x particulate matter
// channel such as "pm2.5", in µg/m³.
//
// The datasheet documents these words as unsigned and that is the
// recommended setting. signed decodes them as two's complement instead, which
// is what some host code does when the sensor runs in gas-only mode.
func MassConcentration(name string, signed bool) Field {
	return Field{Name: name, Unit: "µg/m³", Signed: signed, Divisor: 10}
}
