// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sen5x

import (
	"bytes"
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

// DefaultAddress is the only address the SEN5x responds to.
const DefaultAddress uint16 = 0x69

// Mode is the measurement mode.
type Mode int

const (
	// ModeIdle is the state after power up or Halt.
	ModeIdle Mode = iota
	// ModeMeasurement runs all channels.
	ModeMeasurement
	// ModeRHTGas runs humidity, temperature, VOC and NOx only. The particle
	// sensor and fan are off and the PM values read as unavailable.
	ModeRHTGas
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeMeasurement:
		return "measurement"
	case ModeRHTGas:
		return "rht/gas-only"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// A new measurement is available every second.
const samplePeriod = time.Second

// Raw values signaling "no data".
const (
	unknownUnsigned uint16 = 0xffff
	unknownSigned   uint16 = 0x7fff
)

var cmdStartMeasurement = frame.Command{Name: "start measurement", Op: 0x0021, Delay: 50 * time.Millisecond}

var cmdStartRHTGas = frame.Command{Name: "start measurement rht/gas only", Op: 0x0037, Delay: 50 * time.Millisecond}

var cmdStopMeasurement = frame.Command{Name: "stop measurement", Op: 0x0104, Delay: 200 * time.Millisecond}

var cmdReadDataReady = frame.Command{Name: "read data-ready flag", Op: 0x0202, Words: 1, Delay: 20 * time.Millisecond}

var cmdReadRawValues = frame.Command{
	Name:  "read measured raw values",
	Op:    0x03d2,
	Words: 4,
	Delay: 20 * time.Millisecond,
	Fields: []frame.Field{
		frame.HumiditySEN5x.WithInvalid(unknownSigned),
		frame.TemperatureSEN5x.WithInvalid(unknownSigned),
		{Name: "voc raw", Unit: "ticks"},
		{Name: "nox raw", Unit: "ticks"},
	},
}

var cmdGetTemperatureCompensation = frame.Command{
	Name:   "get temperature compensation parameters",
	Op:     0x60b2,
	Words:  3,
	Delay:  20 * time.Millisecond,
	Fields: []frame.Field{frame.CompensationOffset, frame.CompensationSlope, frame.CompensationTimeConstant},
}

var cmdSetTemperatureCompensation = frame.Command{Name: "set temperature compensation parameters", Op: 0x60b2, Delay: 20 * time.Millisecond}

var cmdGetAutoCleaningInterval = frame.Command{Name: "get auto cleaning interval", Op: 0x8004, Words: 2, Delay: 20 * time.Millisecond}

var cmdSetAutoCleaningInterval = frame.Command{Name: "set auto cleaning interval", Op: 0x8004, Delay: 20 * time.Millisecond}

var cmdStartFanCleaning = frame.Command{Name: "start fan cleaning", Op: 0x5607, Delay: 20 * time.Millisecond}

var cmdReadProductName = frame.Command{Name: "read product name", Op: 0xd014, Words: 16, Delay: 50 * time.Millisecond}

var cmdReadSerialNumber = frame.Command{Name: "read serial number", Op: 0xd033, Words: 16, Delay: 50 * time.Millisecond}

var cmdReadDeviceStatus = frame.Command{Name: "read device status", Op: 0xd206, Words: 2, Delay: 20 * time.Millisecond}

var cmdClearDeviceStatus = frame.Command{Name: "clear device status", Op: 0xd210, Delay: 20 * time.Millisecond}

var cmdReset = frame.Command{Name: "device reset", Op: 0xd304, Delay: 100 * time.Millisecond}

// measuredValues returns the read measured values command for opts. Response
// order: pm1.0, pm2.5, pm4.0, pm10, humidity, temperature, VOC, NOx.
func measuredValues(opts *Opts) frame.Command {
	unknownPM := unknownUnsigned
	if opts.SignedMassConcentration {
		unknownPM = unknownSigned
	}
	pm := func(name string) frame.Field {
		return frame.MassConcentration(name, opts.SignedMassConcentration).WithInvalid(unknownPM)
	}
	return frame.Command{
		Name:  "read measured values",
		Op:    0x03c4,
		Words: 8,
		Delay: 20 * time.Millisecond,
		Fields: []frame.Field{
			pm("pm1.0"),
			pm("pm2.5"),
			pm("pm4.0"),
			pm("pm10"),
			frame.HumiditySEN5x.WithInvalid(unknownSigned),
			frame.TemperatureSEN5x.WithInvalid(unknownSigned),
			frame.VOCIndex.WithInvalid(unknownSigned),
			frame.NOxIndex.WithInvalid(unknownSigned),
		},
	}
}

// Opts holds decoding options.
type Opts struct {
	// SignedMassConcentration decodes the particulate matter words as two's
	// complement. The datasheet specifies them as unsigned, which is the
	// default. With this set, 0x7fff instead of 0xffff flags unavailable.
	SignedMassConcentration bool
}

// DefaultOpts decodes every field as the datasheet specifies.
var DefaultOpts = Opts{}

// MassConcentration is a particulate matter concentration in µg/m³.
type MassConcentration float64

func (m MassConcentration) String() string {
	return strconv.FormatFloat(float64(m), 'f', 1, 64) + "µg/m³"
}

// Index is a VOC or NOx index. The VOC index is 100 and the NOx index is 1
// under average conditions.
type Index float64

func (i Index) String() string {
	return strconv.FormatFloat(float64(i), 'f', 0, 64)
}

// Env is one SEN5x reading.
type Env struct {
	physic.Env
	PM1  MassConcentration
	PM25 MassConcentration
	PM4  MassConcentration
	PM10 MassConcentration
	VOC  Index
	NOx  Index
}

func (e *Env) String() string {
	return fmt.Sprintf("PM1.0: %s PM2.5: %s PM4.0: %s PM10: %s VOC: %s NOx: %s Temperature: %s Humidity: %s",
		e.PM1, e.PM25, e.PM4, e.PM10, e.VOC, e.NOx, e.Temperature, e.Humidity)
}

// RawEnv holds the uncompensated humidity and temperature, and the raw gas
// sensor signals.
type RawEnv struct {
	Humidity    physic.RelativeHumidity
	Temperature physic.Temperature
	// VOC and NOx are raw sensor ticks, proportional to the logarithm of the
	// sensor resistance.
	VOC uint16
	NOx uint16
}

func (r *RawEnv) String() string {
	return fmt.Sprintf("Humidity: %s Temperature: %s VOC: %d NOx: %d", r.Humidity, r.Temperature, r.VOC, r.NOx)
}

// TemperatureCompensation describes how the sensor corrects the temperature
// reading for self heating of the host device:
//
//	T = T_measured - (Offset + Slope*T_measured), filtered with TimeConstant
type TemperatureCompensation struct {
	Offset physic.Temperature
	Slope  float64
	// TimeConstant 0 applies the compensation immediately.
	TimeConstant time.Duration
}

// Dev represents a SEN5x sensor.
type Dev struct {
	d          *transport.Device
	mu         sync.Mutex
	mode       Mode
	readValues frame.Command
}

// New returns a device for the sensor at addr. opts may be nil to use
// DefaultOpts. The sensor is left idle.
func New(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	return &Dev{
		d:          transport.NewDevice(transport.NewI2C(b), addr),
		readValues: measuredValues(opts),
	}, nil
}

func (d *Dev) send(cmd *frame.Command, params ...uint16) error {
	if err := d.d.Send(cmd, params...); err != nil {
		return fmt.Errorf("sen5x: %w", err)
	}
	return nil
}

func (d *Dev) query(cmd *frame.Command) ([]uint16, error) {
	words, err := d.d.Query(cmd)
	if err != nil {
		return nil, fmt.Errorf("sen5x: %w", err)
	}
	return words, nil
}

// Start starts measuring in mode. The sensor can switch between
// ModeMeasurement and ModeRHTGas without stopping. The first result is
// available after about one second.
func (d *Dev) Start(mode Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.start(mode)
}

func (d *Dev) start(mode Mode) error {
	if mode == d.mode {
		return nil
	}
	var err error
	switch mode {
	case ModeMeasurement:
		err = d.send(&cmdStartMeasurement)
	case ModeRHTGas:
		err = d.send(&cmdStartRHTGas)
	case ModeIdle:
		return d.halt()
	default:
		return fmt.Errorf("sen5x: invalid mode %s", mode)
	}
	if err == nil {
		d.mode = mode
	}
	return err
}

// Mode returns the measurement mode the driver last set.
func (d *Dev) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Halt stops the measurement. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halt()
}

func (d *Dev) halt() error {
	if d.mode == ModeIdle {
		return nil
	}
	if err := d.send(&cmdStopMeasurement); err != nil {
		return err
	}
	d.mode = ModeIdle
	return nil
}

// startIfIdle starts ModeMeasurement and waits for the first result if the
// sensor was idle.
func (d *Dev) startIfIdle() error {
	if d.mode != ModeIdle {
		return nil
	}
	if err := d.start(ModeMeasurement); err != nil {
		return err
	}
	d.d.Wait(samplePeriod)
	return nil
}

// DataReady reports whether a new measurement is available since the last
// read.
func (d *Dev) DataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.query(&cmdReadDataReady)
	if err != nil {
		return false, err
	}
	// The flag is the low byte.
	return words[0]&0xff != 0, nil
}

func toTemperature(celsius float64) physic.Temperature {
	if math.IsNaN(celsius) {
		return 0
	}
	return physic.ZeroCelsius + physic.Temperature(celsius*float64(physic.Celsius))
}

func toHumidity(percent float64) physic.RelativeHumidity {
	if math.IsNaN(percent) {
		return 0
	}
	return physic.RelativeHumidity(percent * float64(physic.PercentRH))
}

// Sense reads the latest measured values. If the sensor is idle, it is
// started in ModeMeasurement first. The reading is only updated when every
// word of the response is valid.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.startIfIdle(); err != nil {
		return err
	}
	rec, err := d.d.Measure(&d.readValues)
	if err != nil {
		return fmt.Errorf("sen5x: %w", err)
	}
	e.PM1 = MassConcentration(rec[0].Value)
	e.PM25 = MassConcentration(rec[1].Value)
	e.PM4 = MassConcentration(rec[2].Value)
	e.PM10 = MassConcentration(rec[3].Value)
	e.Humidity = toHumidity(rec[4].Value)
	e.Temperature = toTemperature(rec[5].Value)
	e.Pressure = 0
	e.VOC = Index(rec[6].Value)
	e.NOx = Index(rec[7].Value)
	return nil
}

// SenseRaw reads the raw humidity, temperature and gas signals. If the sensor
// is idle, it is started in ModeMeasurement first.
func (d *Dev) SenseRaw(r *RawEnv) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.startIfIdle(); err != nil {
		return err
	}
	rec, err := d.d.Measure(&cmdReadRawValues)
	if err != nil {
		return fmt.Errorf("sen5x: %w", err)
	}
	r.Humidity = toHumidity(rec[0].Value)
	r.Temperature = toTemperature(rec[1].Value)
	r.VOC = rec[2].Raw
	r.NOx = rec[3].Raw
	return nil
}

// Precision returns the resolution of the readings.
func (d *Dev) Precision(e *Env) {
	e.Temperature = physic.Kelvin / 200
	e.Humidity = physic.PercentRH / 100
	e.Pressure = 0
	e.PM1, e.PM25, e.PM4, e.PM10 = 0.1, 0.1, 0.1, 0.1
	e.VOC, e.NOx = 0.1, 0.1
}

// TemperatureCompensation reads the temperature compensation parameters.
func (d *Dev) TemperatureCompensation() (TemperatureCompensation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, err := d.d.Measure(&cmdGetTemperatureCompensation)
	if err != nil {
		return TemperatureCompensation{}, fmt.Errorf("sen5x: %w", err)
	}
	return TemperatureCompensation{
		Offset:       physic.Temperature(rec[0].Value * float64(physic.Kelvin)),
		Slope:        rec[1].Value,
		TimeConstant: time.Duration(rec[2].Raw) * time.Second,
	}, nil
}

// SetTemperatureCompensation writes the temperature compensation parameters.
// They are volatile and lost on reset or power cycle. Offset resolution is
// 5mK, slope resolution 0.0001 and time constant resolution 1s.
func (d *Dev) SetTemperatureCompensation(tc TemperatureCompensation) error {
	offset, err := frame.CompensationOffset.Encode(float64(tc.Offset) / float64(physic.Kelvin))
	if err != nil {
		return fmt.Errorf("sen5x: %w", err)
	}
	slope, err := frame.CompensationSlope.Encode(tc.Slope)
	if err != nil {
		return fmt.Errorf("sen5x: %w", err)
	}
	if tc.TimeConstant%time.Second != 0 {
		return fmt.Errorf("sen5x: time constant %s is not a whole number of seconds", tc.TimeConstant)
	}
	seconds, err := frame.CompensationTimeConstant.Encode(tc.TimeConstant.Seconds())
	if err != nil {
		return fmt.Errorf("sen5x: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send(&cmdSetTemperatureCompensation, offset, slope, seconds)
}

// AutoCleaningInterval returns the period of the automatic fan cleaning. 0
// means disabled.
func (d *Dev) AutoCleaningInterval() (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.query(&cmdGetAutoCleaningInterval)
	if err != nil {
		return 0, err
	}
	return time.Duration(uint32(words[0])<<16|uint32(words[1])) * time.Second, nil
}

// SetAutoCleaningInterval sets the period of the automatic fan cleaning. 0
// disables it. The value is stored in non-volatile memory.
func (d *Dev) SetAutoCleaningInterval(interval time.Duration) error {
	if interval < 0 || interval%time.Second != 0 || interval/time.Second > math.MaxUint32 {
		return fmt.Errorf("sen5x: invalid auto cleaning interval %s", interval)
	}
	s := uint32(interval / time.Second)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send(&cmdSetAutoCleaningInterval, uint16(s>>16), uint16(s))
}

// ErrNotMeasuring is returned by commands that need a running measurement
// with the fan enabled.
var ErrNotMeasuring = errors.New("sen5x: command requires measurement mode")

// StartFanCleaning runs the fan at maximum speed for 10 seconds. PM values
// are not updated during cleaning.
func (d *Dev) StartFanCleaning() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != ModeMeasurement {
		return ErrNotMeasuring
	}
	return d.send(&cmdStartFanCleaning)
}

func (d *Dev) readString(cmd *frame.Command) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.query(cmd)
	if err != nil {
		return "", err
	}
	b := make([]byte, 0, len(words)*2)
	for _, w := range words {
		b = append(b, byte(w>>8), byte(w))
	}
	if ix := bytes.IndexByte(b, 0); ix >= 0 {
		b = b[:ix]
	}
	return string(b), nil
}

// ProductName returns the product name, e.g. "SEN55".
func (d *Dev) ProductName() (string, error) {
	return d.readString(&cmdReadProductName)
}

// SerialNumber returns the serial number as printed on the device.
func (d *Dev) SerialNumber() (string, error) {
	return d.readString(&cmdReadSerialNumber)
}

// Status reads the device status register. The flags are latched until
// ClearStatus or a reset.
func (d *Dev) Status() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.query(&cmdReadDeviceStatus)
	if err != nil {
		return 0, err
	}
	return Status(uint32(words[0])<<16 | uint32(words[1])), nil
}

// ClearStatus clears the device status register.
func (d *Dev) ClearStatus() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send(&cmdClearDeviceStatus)
}

// Reset performs a soft reset. The sensor returns to idle and volatile
// settings are lost.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.send(&cmdReset); err != nil {
		return err
	}
	d.mode = ModeIdle
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("sen5x: 0x%02x", d.d.Addr)
}

var _ conn.Resource = &Dev{}
