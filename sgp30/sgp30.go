// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sgp30 provides a driver for the Sensirion SGP30 gas sensor, which
// reports an equivalent CO2 and a total VOC concentration.
//
// The sensor runs a dynamic baseline compensation that needs a measurement
// every second. NewI2C starts a goroutine doing so and AirQuality returns the
// latest values. With New the caller calls Measure itself. For the first 15s
// after start the sensor reports 400ppm and 0ppb.
//
// # Datasheet
//
// https://sensirion.com/media/documents/984E0DD5/61644B8B/Sensirion_Gas_Sensors_Datasheet_SGP30.pdf
package sgp30

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/sensirion/frame"
	"github.com/GermanBionicSystems/sensirion/transport"
)

// DefaultAddress is the only address of the SGP30.
const DefaultAddress uint16 = 0x58

var cmdInitAirQuality = frame.Command{Name: "iaq init", Op: 0x2003, Delay: 10 * time.Millisecond}

var cmdMeasureAirQuality = frame.Command{
	Name:  "measure iaq",
	Op:    0x2008,
	Words: 2,
	Delay: 12 * time.Millisecond,
	Fields: []frame.Field{
		{Name: "co2eq", Unit: "ppm"},
		{Name: "tvoc", Unit: "ppb"},
	},
}

var cmdGetIAQBaseline = frame.Command{Name: "get iaq baseline", Op: 0x2015, Words: 2, Delay: 10 * time.Millisecond}

var cmdSetIAQBaseline = frame.Command{Name: "set iaq baseline", Op: 0x201e, Delay: 10 * time.Millisecond}

var cmdSetHumidity = frame.Command{Name: "set absolute humidity", Op: 0x2061, Delay: 10 * time.Millisecond}

var cmdMeasureTest = frame.Command{Name: "measure test", Op: 0x2032, Words: 1, Delay: 220 * time.Millisecond}

var cmdGetFeatureSet = frame.Command{Name: "get feature set version", Op: 0x202f, Words: 1, Delay: 10 * time.Millisecond}

var cmdMeasureRawSignals = frame.Command{Name: "measure raw signals", Op: 0x2050, Words: 2, Delay: 25 * time.Millisecond}

var cmdGetTVOCBaseline = frame.Command{Name: "get tvoc inceptive baseline", Op: 0x20b3, Words: 1, Delay: 10 * time.Millisecond}

var cmdSetTVOCBaseline = frame.Command{Name: "set tvoc baseline", Op: 0x2077, Delay: 10 * time.Millisecond}

// measureTestOK is the measure test result of a working chip.
const measureTestOK uint16 = 0xd400

// humidity is sent as 8.8 fixed point g/m³.
var humidityField = frame.Field{Name: "absolute humidity", Unit: "g/m³", Divisor: 256}

// CO2 represents the current carbon dioxide value in ppm
type CO2 uint16

func (c CO2) String() string {
	return strconv.Itoa(int(c)) + "ppm"
}

// TVOC represents the current total volatile organic compounds value in ppb
type TVOC uint16

func (t TVOC) String() string {
	return strconv.Itoa(int(t)) + "ppb"
}

// Env represents measurements from an environmental sensor.
type Env struct {
	CO2  CO2
	TVOC TVOC
}

func (e Env) String() string {
	return "CO2eq: " + e.CO2.String() + " TVOC: " + e.TVOC.String()
}

// Baseline is the state of the compensation algorithm. Save it every hour and
// restore it after a restart to skip the 12h calibration phase.
type Baseline struct {
	CO2  uint16
	TVOC uint16
}

// RawSignals are the H2 and ethanol sensor ticks.
type RawSignals struct {
	H2      uint16
	Ethanol uint16
}

// Dev is a handle to an initialized SGP30 device.
type Dev struct {
	d  *transport.Device
	mu sync.Mutex
	// latest measurement and the error of the latest attempt
	env    Env
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// New sends the init command to the SGP30 and returns it without starting the
// background measurement. The caller then has to call Measure every second.
func New(b i2c.Bus) (*Dev, error) {
	d := newDev(b)
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewI2C returns an object that communicates over I2C to the SGP30 and starts
// measuring every second until ctx is done or Halt is called.
func NewI2C(ctx context.Context, b i2c.Bus) (*Dev, error) {
	d := newDev(b)
	if err := d.start(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func newDev(b i2c.Bus) *Dev {
	return &Dev{
		d:   transport.NewDevice(transport.NewI2C(b), DefaultAddress),
		env: Env{CO2: 400},
	}
}

func (d *Dev) init() error {
	return d.send(&cmdInitAirQuality)
}

func (d *Dev) start(ctx context.Context) error {
	if err := d.init(); err != nil {
		return err
	}
	// The first measure has to follow the init command.
	_, _ = d.Measure()

	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx)
	return nil
}

func (d *Dev) run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = d.Measure()
		case <-ctx.Done():
			return
		}
	}
}

// Measure reads CO2eq and TVOC from the sensor. On success the values also
// become the ones AirQuality returns; on failure AirQuality reports the
// error until the next successful measurement.
func (d *Dev) Measure() (Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, err := d.d.Measure(&cmdMeasureAirQuality)
	if err != nil {
		d.err = fmt.Errorf("sgp30: %w", err)
		return d.env, d.err
	}
	d.err = nil
	d.env = Env{CO2: CO2(rec[0].Raw), TVOC: TVOC(rec[1].Raw)}
	return d.env, nil
}

// AirQuality returns the latest measurement. The error is the one of the most
// recent measurement attempt, in which case Env holds the last good values.
func (d *Dev) AirQuality() (Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.env, d.err
}

func (d *Dev) query(cmd *frame.Command) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.d.Query(cmd)
	if err != nil {
		return nil, fmt.Errorf("sgp30: %w", err)
	}
	return words, nil
}

func (d *Dev) send(cmd *frame.Command, params ...uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Send(cmd, params...); err != nil {
		return fmt.Errorf("sgp30: %w", err)
	}
	return nil
}

// Baseline returns the current compensation baseline.
func (d *Dev) Baseline() (Baseline, error) {
	words, err := d.query(&cmdGetIAQBaseline)
	if err != nil {
		return Baseline{}, err
	}
	return Baseline{CO2: words[0], TVOC: words[1]}, nil
}

// SetBaseline restores a baseline saved with Baseline.
func (d *Dev) SetBaseline(b Baseline) error {
	// The set command takes the words in reverse order.
	return d.send(&cmdSetIAQBaseline, b.TVOC, b.CO2)
}

// TVOCInceptiveBaseline returns the TVOC baseline the sensor was calibrated
// with in the factory.
func (d *Dev) TVOCInceptiveBaseline() (uint16, error) {
	words, err := d.query(&cmdGetTVOCBaseline)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// SetTVOCBaseline sets the TVOC baseline only, typically to the inceptive
// baseline when no saved baseline younger than a week is available.
func (d *Dev) SetTVOCBaseline(b uint16) error {
	return d.send(&cmdSetTVOCBaseline, b)
}

// AbsoluteHumidity returns the absolute humidity in g/m³ for the given
// temperature and relative humidity, as needed by SetHumidity.
func AbsoluteHumidity(t physic.Temperature, rh physic.RelativeHumidity) float64 {
	c := t.Celsius()
	p := float64(rh) / float64(physic.PercentRH)
	return 216.7 * (p / 100 * 6.112 * math.Exp(17.62*c/(243.12+c)) / (273.15 + c))
}

// ErrHumidityRange is returned by SetHumidity for values outside 0 to
// 255.996 g/m³.
var ErrHumidityRange = errors.New("sgp30: absolute humidity out of range")

// SetHumidity enables humidity compensation with an absolute humidity in
// g/m³. 0 disables it.
func (d *Dev) SetHumidity(gramsPerCubicMeter float64) error {
	v, err := humidityField.Encode(gramsPerCubicMeter)
	if err != nil {
		return errors.Join(ErrHumidityRange, err)
	}
	return d.send(&cmdSetHumidity, v)
}

// SelfTest runs the on-chip self test. It must not be run while the
// measurement is initialized, and requires a new init afterwards, so it is
// meant for production testing.
func (d *Dev) SelfTest() error {
	words, err := d.query(&cmdMeasureTest)
	if err != nil {
		return err
	}
	if words[0] != measureTestOK {
		return fmt.Errorf("sgp30: self test returned 0x%04x, expected 0x%04x", words[0], measureTestOK)
	}
	return nil
}

// FeatureSet returns the product type (0 for SGP30) and the feature set
// version.
func (d *Dev) FeatureSet() (productType uint8, version uint8, err error) {
	words, err := d.query(&cmdGetFeatureSet)
	if err != nil {
		return 0, 0, err
	}
	return uint8(words[0] >> 12), uint8(words[0]), nil
}

// RawSignals reads the raw H2 and ethanol signals.
func (d *Dev) RawSignals() (RawSignals, error) {
	words, err := d.query(&cmdMeasureRawSignals)
	if err != nil {
		return RawSignals{}, err
	}
	return RawSignals{H2: words[0], Ethanol: words[1]}, nil
}

// Halt stops the measurement goroutine. Implements conn.Resource.
func (d *Dev) Halt() error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	<-d.done
	return nil
}

func (d *Dev) String() string {
	return "sgp30"
}

var _ conn.Resource = &Dev{}
