// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ld20

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/sensirion/frame"
	"github.com/GermanBionicSystems/sensirion/transport"
)

// DefaultAddress is the only address the LD20 responds to.
const DefaultAddress uint16 = 0x08

const warmUp = 150 * time.Millisecond

var cmdStartMeasurement = frame.Command{
	Name:  "start continuous measurement",
	Op:    0x3608,
	Delay: 12 * time.Millisecond,
}

var cmdStopMeasurement = frame.Command{
	Name:  "stop continuous measurement",
	Op:    0x3ff9,
	Delay: time.Millisecond,
}

// The product identifier is read in two steps.
var cmdPrepareProductID = frame.Command{
	Name: "prepare product identifier",
	Op:   0x367c,
}

var cmdReadProductID = frame.Command{
	Name:  "read product identifier",
	Op:    0xe102,
	Words: 6,
}

// The measurement stream: flow, temperature, signaling flags.
var measurementFields = []frame.Field{frame.FlowLD20, frame.TemperatureLD20}

const measurementWords = 3

// FlowRate is a liquid flow in millilitres per hour.
type FlowRate float64

func (f FlowRate) String() string {
	return strconv.FormatFloat(float64(f), 'f', 3, 64) + "ml/h"
}

// Flags are the signaling flags sent with every measurement.
type Flags uint16

const (
	// Air bubble detected in the flow channel.
	FlagAirInLine Flags = 1 << 0
	// Flow exceeds the specified range.
	FlagHighFlow Flags = 1 << 1
	// Exponential smoothing of the flow signal is active.
	FlagSmoothing Flags = 1 << 5
)

// Env is one LD20 reading.
type Env struct {
	Flow        FlowRate
	Temperature physic.Temperature
	Flags       Flags
}

func (e *Env) String() string {
	s := fmt.Sprintf("Flow: %s Temperature: %s", e.Flow, e.Temperature)
	if e.Flags&FlagAirInLine != 0 {
		s += " air-in-line"
	}
	if e.Flags&FlagHighFlow != 0 {
		s += " high-flow"
	}
	return s
}

// ProductInfo identifies a sensor.
type ProductInfo struct {
	ProductNumber uint32
	SerialNumber  uint64
}

// Dev represents an LD20 sensor.
type Dev struct {
	d       *transport.Device
	mu      sync.Mutex
	sensing bool
}

// New returns a device for the sensor at addr. Use DefaultAddress. The
// measurement is started by the first call to Sense, or by Start.
func New(b i2c.Bus, addr uint16) (*Dev, error) {
	return &Dev{d: transport.NewDevice(transport.NewI2C(b), addr)}, nil
}

// Start begins continuous measurement and waits for the warm up period.
func (d *Dev) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.start()
}

func (d *Dev) start() error {
	if d.sensing {
		return nil
	}
	if err := d.d.Send(&cmdStartMeasurement); err != nil {
		return fmt.Errorf("ld20: %w", err)
	}
	d.sensing = true
	d.d.Wait(warmUp)
	return nil
}

// Sense reads the latest measurement, starting continuous measurement if
// required.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.start(); err != nil {
		return err
	}
	words, err := d.d.Fetch(measurementWords)
	if err != nil {
		return fmt.Errorf("ld20: read measurement: %w", err)
	}
	rec, err := frame.Convert(words, measurementFields)
	if err != nil {
		return fmt.Errorf("ld20: %w", err)
	}
	e.Flow = FlowRate(rec[0].Value)
	e.Temperature = physic.ZeroCelsius + physic.Temperature(rec[1].Value*float64(physic.Celsius))
	e.Flags = Flags(words[2])
	return nil
}

// Halt stops continuous measurement. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halt()
}

func (d *Dev) halt() error {
	if !d.sensing {
		return nil
	}
	if err := d.d.Send(&cmdStopMeasurement); err != nil {
		return fmt.Errorf("ld20: %w", err)
	}
	d.sensing = false
	return nil
}

// ProductInfo reads the product number and serial number. The sensor only
// answers while idle, so a running measurement is stopped first.
func (d *Dev) ProductInfo() (ProductInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.halt(); err != nil {
		return ProductInfo{}, err
	}
	if err := d.d.Send(&cmdPrepareProductID); err != nil {
		return ProductInfo{}, fmt.Errorf("ld20: %w", err)
	}
	words, err := d.d.Query(&cmdReadProductID)
	if err != nil {
		return ProductInfo{}, fmt.Errorf("ld20: %w", err)
	}
	return ProductInfo{
		ProductNumber: uint32(words[0])<<16 | uint32(words[1]),
		SerialNumber:  uint64(words[2])<<48 | uint64(words[3])<<32 | uint64(words[4])<<16 | uint64(words[5]),
	}, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("ld20: 0x%02x", d.d.Addr)
}

var _ conn.Resource = &Dev{}
