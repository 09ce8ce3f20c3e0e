// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/sensirion/frame"
	"github.com/GermanBionicSystems/sensirion/transport"
)

// PPM=Parts Per Million. Units of measure for CO2 concentration.
type PPM int

// Sensor Variant type
type Variant int

const (
	SCD40 Variant = iota
	SCD41
)

// Type of reset to perform.
type ResetMode int

const (
	ResetFactory ResetMode = iota
	// Reset to last values stored in EEPROM
	ResetEEPROM
)

const (
	// These devices only support this i2c address.
	SensorAddress uint16 = 0x62

	// Readings are produced every 5 seconds in periodic mode.
	samplePeriod  = 5 * time.Second
	dataReadyMask = uint16(1<<11 - 1)
	// Polls of the data ready status before Sense gives up.
	dataReadyPolls = 6
)

// command is a table entry; whileSensing is true if the command is permitted
// while the sensor is running periodic measurement.
type command struct {
	frame.Command
	whileSensing bool
}

// The various implemented commands. Delays are the datasheet execution
// times.

var cmdStartMeasurement = command{
	Command: frame.Command{Name: "start periodic measurement", Op: 0x21b1},
}

var cmdReadMeasurement = command{
	Command: frame.Command{
		Name:   "read measurement",
		Op:     0xec05,
		Words:  3,
		Delay:  time.Millisecond,
		Fields: []frame.Field{frame.CO2, frame.TemperatureSCD4x, frame.HumiditySCD4x},
	},
	whileSensing: true,
}

var cmdStopMeasurement = command{
	Command:      frame.Command{Name: "stop periodic measurement", Op: 0x3f86, Delay: 500 * time.Millisecond},
	whileSensing: true,
}

var cmdGetTemperatureOffset = command{
	Command: frame.Command{Name: "get temperature offset", Op: 0x2318, Words: 1, Delay: time.Millisecond},
}

var cmdSetTemperatureOffset = command{
	Command: frame.Command{Name: "set temperature offset", Op: 0x241d, Delay: time.Millisecond},
}

var cmdGetSensorAltitude = command{
	Command: frame.Command{Name: "get sensor altitude", Op: 0x2322, Words: 1, Delay: time.Millisecond},
}

var cmdSetSensorAltitude = command{
	Command: frame.Command{Name: "set sensor altitude", Op: 0x2427, Delay: time.Millisecond},
}

var cmdGetAmbientPressure = command{
	Command:      frame.Command{Name: "get ambient pressure", Op: 0xe000, Words: 1, Delay: time.Millisecond},
	whileSensing: true,
}

var cmdSetAmbientPressure = command{
	Command:      frame.Command{Name: "set ambient pressure", Op: 0xe000, Delay: time.Millisecond},
	whileSensing: true,
}

var cmdSetASCEnabled = command{
	Command: frame.Command{Name: "set automatic self calibration enabled", Op: 0x2416, Delay: time.Millisecond},
}

var cmdGetASCEnabled = command{
	Command: frame.Command{Name: "get automatic self calibration enabled", Op: 0x2313, Words: 1, Delay: time.Millisecond},
}

var cmdGetASCTarget = command{
	Command: frame.Command{Name: "get automatic self calibration target", Op: 0x233f, Words: 1, Delay: time.Millisecond},
}

var cmdSetASCTarget = command{
	Command: frame.Command{Name: "set automatic self calibration target", Op: 0x243a, Delay: time.Millisecond},
}

var cmdGetDataReadyStatus = command{
	Command:      frame.Command{Name: "get data ready status", Op: 0xe4b8, Words: 1, Delay: time.Millisecond},
	whileSensing: true,
}

var cmdPersistSettings = command{
	Command: frame.Command{Name: "persist settings", Op: 0x3615, Delay: 800 * time.Millisecond},
}

var cmdGetSerialNumber = command{
	Command: frame.Command{Name: "get serial number", Op: 0x3682, Words: 3, Delay: time.Millisecond},
}

var cmdPerformFactoryReset = command{
	Command: frame.Command{Name: "perform factory reset", Op: 0x3632, Delay: 1200 * time.Millisecond},
}

var cmdReinit = command{
	Command: frame.Command{Name: "reinit", Op: 0x3646, Delay: 30 * time.Millisecond},
}

var cmdGetSensorVariant = command{
	Command: frame.Command{Name: "get sensor variant", Op: 0x202f, Words: 1, Delay: time.Millisecond},
}

var cmdGetASCInitialPeriod = command{
	Command: frame.Command{Name: "get automatic self calibration initial period", Op: 0x2340, Words: 1, Delay: time.Millisecond},
}

var cmdSetASCInitialPeriod = command{
	Command: frame.Command{Name: "set automatic self calibration initial period", Op: 0x2445, Delay: time.Millisecond},
}

var cmdGetASCStandardPeriod = command{
	Command: frame.Command{Name: "get automatic self calibration standard period", Op: 0x234b, Words: 1, Delay: time.Millisecond},
}

var cmdSetASCStandardPeriod = command{
	Command: frame.Command{Name: "set automatic self calibration standard period", Op: 0x244e, Delay: time.Millisecond},
}

var cmdWakeUp = command{
	Command: frame.Command{Name: "wake up", Op: 0x36f6, Delay: 30 * time.Millisecond},
}

// Temperature offset register. Unlike the measured temperature it has no
// offset term.
var temperatureOffsetField = frame.Field{Name: "temperature offset", Unit: "°C", Gain: 175, Divisor: 65536}

// DevConfig is the current running configuration of the device. Values prefixed
// with ASC refer to Auto-Self-Calibration. Use Dev.GetConfiguration() to read
// the value, and Dev.SetConfiguration() to apply changes.
//
// Refer to the datasheet for more information on settings.
type DevConfig struct {
	// Ambient pressure value. Used to adjust operation of sensor.
	AmbientPressure physic.Pressure
	// Automatic-Self-Calibration enabled. True or false.
	ASCEnabled bool
	// Refer to datasheet for usage. Must be a multiple of 4 hours.
	ASCInitialPeriod time.Duration
	// Refer to datasheet for usage. Must be a multiple of 4 hours.
	ASCStandardPeriod time.Duration
	// Target CO2 concentration for automatic self calibration. To obtain the
	// current value, visit:
	//
	// https://www.co2.earth/daily-co2
	ASCTarget PPM
	// Sensor altitude in metres. Alternative method to adjust ambient pressure
	// for sensor correction.
	SensorAltitude physic.Distance
	// The 48 bit unique serial number of the device. Read-Only
	SerialNumber int64
	// Offset temperature subtracted from the reading. Refer to the datasheet
	// for usage.
	TemperatureOffset physic.Temperature
	// The Type of sensor. SCD40 or SCD41. Read-Only
	SensorType Variant
}

// Dev represents an SCD4x device.
type Dev struct {
	d *transport.Device
	// channel to halt SenseContinuous
	chHalt chan struct{}
	mu     sync.Mutex
	// True if the device is in continuous sense mode.
	sensing bool
}

func (ppm PPM) String() string {
	return fmt.Sprintf("%d PPM", int(ppm))
}

// The sensor reading. Returns CO2 PPM, Temperature, and Humidity.
type Env struct {
	physic.Env
	CO2 PPM
}

// Return the sensor readings in string format.
func (e *Env) String() string {
	return fmt.Sprintf("Temperature: %s Humidity: %s CO2: %s", e.Temperature.String(), e.Humidity.String(), e.CO2.String())
}

// NewI2C creates a new SCD4x sensor using the supplied bus and address and
// starts periodic measurement. The constant value SensorAddress should be
// supplied as the value for addr.
func NewI2C(b i2c.Bus, addr uint16) (*Dev, error) {
	d := &Dev{d: transport.NewDevice(transport.NewI2C(b), addr)}
	return d, d.start()
}

// GetConfiguration returns a structure containing all of the scd4x configuration
// variables. You can then alter settings and call SetConfiguration with it.
//
// To examine the device use:
//
//	cfg, _ :=dev.GetConfiguration()
//	fmt.Printf("Configuration=%#v\n", cfg)
func (d *Dev) GetConfiguration() (*DevConfig, error) {

	cfg := &DevConfig{}
	var words []uint16
	var err error

	if words, err = d.sendCommand(&cmdGetAmbientPressure); err != nil {
		return nil, err
	}
	cfg.AmbientPressure = physic.Pascal * 100 * physic.Pressure(words[0])

	if words, err = d.sendCommand(&cmdGetASCEnabled); err != nil {
		return nil, err
	}
	cfg.ASCEnabled = words[0] != 0

	if words, err = d.sendCommand(&cmdGetASCInitialPeriod); err != nil {
		return nil, err
	}
	cfg.ASCInitialPeriod = time.Hour * time.Duration(words[0])

	if words, err = d.sendCommand(&cmdGetASCStandardPeriod); err != nil {
		return nil, err
	}
	cfg.ASCStandardPeriod = time.Hour * time.Duration(words[0])

	if words, err = d.sendCommand(&cmdGetASCTarget); err != nil {
		return nil, err
	}
	cfg.ASCTarget = PPM(words[0])

	if words, err = d.sendCommand(&cmdGetSerialNumber); err != nil {
		return nil, err
	}
	cfg.SerialNumber = int64(words[0])<<32 | int64(words[1])<<16 | int64(words[2])

	if words, err = d.sendCommand(&cmdGetSensorVariant); err != nil {
		return nil, err
	}
	if (words[0]>>11)&0x07 == 0 {
		cfg.SensorType = SCD40
	} else {
		cfg.SensorType = SCD41
	}

	if words, err = d.sendCommand(&cmdGetSensorAltitude); err != nil {
		return nil, err
	}
	cfg.SensorAltitude = physic.Distance(words[0]) * physic.Metre

	if words, err = d.sendCommand(&cmdGetTemperatureOffset); err != nil {
		return nil, err
	}
	cfg.TemperatureOffset = countToOffset(words[0])

	return cfg, nil
}

// SetConfiguration alters the configuration of the sensor. Note that this call
// does not persist the settings to EEPROM. You need to call Persist() to
// commit the writes to EEPROM. If you do not persist changes, then those settings
// will be lost when the unit is power-cycled.
func (d *Dev) SetConfiguration(newCfg *DevConfig) error {

	_ = d.Halt()
	d.mu.Lock()
	defer d.mu.Unlock()

	currentConfig, err := d.GetConfiguration()
	if err != nil {
		return fmt.Errorf("scd4x GetConfiguration(): %w", err)
	}

	set := func(cmd *command, w uint16) error {
		_, err := d.sendCommand(cmd, w)
		return err
	}

	if currentConfig.AmbientPressure != newCfg.AmbientPressure {
		if err := set(&cmdSetAmbientPressure, uint16(newCfg.AmbientPressure/(100*physic.Pascal))); err != nil {
			return err
		}
	}

	if currentConfig.ASCEnabled != newCfg.ASCEnabled {
		var w uint16
		if newCfg.ASCEnabled {
			w = 1
		}
		if err := set(&cmdSetASCEnabled, w); err != nil {
			return err
		}
	}

	if currentConfig.ASCInitialPeriod != newCfg.ASCInitialPeriod {
		hours := newCfg.ASCInitialPeriod / time.Hour
		if newCfg.ASCInitialPeriod%time.Hour != 0 || hours%4 != 0 {
			return fmt.Errorf("scd4x: invalid initial period %s. must be a multiple of 4 hours", newCfg.ASCInitialPeriod)
		}
		if err := set(&cmdSetASCInitialPeriod, uint16(hours)); err != nil {
			return err
		}
	}

	if currentConfig.ASCStandardPeriod != newCfg.ASCStandardPeriod {
		hours := newCfg.ASCStandardPeriod / time.Hour
		if newCfg.ASCStandardPeriod%time.Hour != 0 || hours%4 != 0 {
			return fmt.Errorf("scd4x: invalid standard period %s. must be a multiple of 4 hours", newCfg.ASCStandardPeriod)
		}
		if err := set(&cmdSetASCStandardPeriod, uint16(hours)); err != nil {
			return err
		}
	}

	if currentConfig.ASCTarget != newCfg.ASCTarget {
		if err := set(&cmdSetASCTarget, uint16(newCfg.ASCTarget)); err != nil {
			return err
		}
	}

	if currentConfig.SensorAltitude != newCfg.SensorAltitude {
		if err := set(&cmdSetSensorAltitude, uint16(newCfg.SensorAltitude/physic.Metre)); err != nil {
			return err
		}
	}

	if currentConfig.TemperatureOffset != newCfg.TemperatureOffset {
		w, err := temperatureOffsetField.Encode(float64(newCfg.TemperatureOffset) / float64(physic.Kelvin))
		if err != nil {
			return fmt.Errorf("scd4x: %w", err)
		}
		if err := set(&cmdSetTemperatureOffset, w); err != nil {
			return err
		}
	}

	return nil
}

// Halt stops continuous sensing if enabled, and if a SenseContinuous operation
// is in progress, it too is halted.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halt()
}

func (d *Dev) halt() error {
	if d.chHalt != nil {
		close(d.chHalt)
		d.chHalt = nil
	}
	if !d.sensing {
		return nil
	}
	if _, err := d.sendCommand(&cmdStopMeasurement); err != nil {
		return err
	}
	d.sensing = false
	return nil
}

// Persist writes the current running configuration to the sensor EEPROM for
// use on the next power-up.
func (d *Dev) Persist() error {
	_, err := d.sendCommand(&cmdPersistSettings)
	return err
}

// Reset performs either a factory reset, or a re-load of settings from EEPROM
// depending on the value of mode. During development, it was noticed that
// ResetFactory DOES NOT reset AmbientPressure to 0.
func (d *Dev) Reset(mode ResetMode) error {
	var err error
	switch mode {
	case ResetFactory:
		_, err = d.sendCommand(&cmdPerformFactoryReset)
	case ResetEEPROM:
		_, err = d.sendCommand(&cmdReinit)
	default:
		err = fmt.Errorf("scd4x: invalid reset mode 0x%x", mode)
	}
	return err
}

// All commands to read or write to the sensor go through this function.
func (d *Dev) sendCommand(cmd *command, writeData ...uint16) ([]uint16, error) {
	if d.sensing && !cmd.whileSensing {
		// We're in sense mode and this command isn't compatible. Stop sensing.
		if _, err := d.sendCommand(&cmdStopMeasurement); err != nil {
			return nil, err
		}
		d.sensing = false
	}
	words, err := d.d.Query(&cmd.Command, writeData...)
	if err != nil {
		return nil, fmt.Errorf("scd4x: %w", err)
	}
	return words, nil
}

// start continuous sensing.
func (d *Dev) start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startLocked()
}

func (d *Dev) startLocked() error {
	if d.sensing {
		return nil
	}

	if _, err := d.sendCommand(&cmdWakeUp); err != nil {
		// If an SCD4x is in measurement mode, then any non-measurement mode
		// command will return an error. In that case, send a stop measurement
		// command and carry on.
		_, _ = d.sendCommand(&cmdStopMeasurement)
	}

	_, err := d.sendCommand(&cmdStartMeasurement)
	if err == nil {
		d.sensing = true
	}
	return err
}

// countToOffset converts the temperature offset register.
func countToOffset(count uint16) physic.Temperature {
	return physic.Temperature(temperatureOffsetField.Decode(count) * float64(physic.Kelvin))
}

// countToTemp converts a device count to Temperature
func countToTemp(count uint16) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(frame.TemperatureSCD4x.Decode(count)*float64(physic.Celsius))
}

func countToHumidity(count uint16) physic.RelativeHumidity {
	return physic.RelativeHumidity(frame.HumiditySCD4x.Decode(count) * float64(physic.PercentRH))
}

// Sense returns readings (Temperature, Humidity, and CO2 concentration in PPM)
// from the device. Note that in normal acquisition mode, the minimum reading
// period is 5 seconds. If you call this function more frequently than this,
// it will block until data is ready.
func (d *Dev) Sense(env *Env) error {
	return d.sense(env, true)
}

// errHalted is returned to a SenseContinuous tick racing with Halt.
var errHalted = errors.New("scd4x: halted")

// sense reads a measurement, starting periodic measurement first if
// autoStart is set.
func (d *Dev) sense(env *Env, autoStart bool) error {
	env.Temperature = 0
	env.Humidity = 0
	env.CO2 = 0
	env.Pressure = 0

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.sensing {
		if !autoStart {
			return errHalted
		}
		if err := d.startLocked(); err != nil {
			return err
		}
		d.d.Wait(samplePeriod)
	}

	// The last failed poll is reported if the data never gets ready.
	var pollErr error
	ready := false
	for range dataReadyPolls {
		words, err := d.sendCommand(&cmdGetDataReadyStatus)
		if err != nil {
			pollErr = err
		} else if words[0]&dataReadyMask > 0 {
			ready = true
			break
		}
		d.d.Wait(time.Second)
	}
	if !ready {
		if pollErr != nil {
			return fmt.Errorf("scd4x: data not ready: %w", pollErr)
		}
		return errors.New("scd4x: timeout waiting for data ready status")
	}
	words, err := d.sendCommand(&cmdReadMeasurement)
	if err != nil {
		return err
	}
	env.CO2 = PPM(words[0])
	env.Temperature = countToTemp(words[1])
	env.Humidity = countToHumidity(words[2])
	return nil
}

// SenseContinuous continuously reads the sensor on the specified duration, and
// writes readings to the returned channel. The sense time for the scd4x device
// is 5 seconds in normal acquisition mode. If you specify a shorter period than
// that, the routine will spin until the device indicates a reading is ready. To
// terminate a continuous sense, call Halt().
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	if d.chHalt != nil {
		d.mu.Unlock()
		return nil, errors.New("scd4x: SenseContinuous() running already")
	}
	chHalt := make(chan struct{})
	d.chHalt = chHalt
	d.mu.Unlock()

	if err := d.start(); err != nil {
		d.mu.Lock()
		d.chHalt = nil
		d.mu.Unlock()
		return nil, err
	}
	channelSize := 16
	channel := make(chan Env, channelSize)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(channel)

		for {
			select {
			case <-chHalt:
				return
			case <-ticker.C:
				// do the reading and write to the channel. A tick racing
				// with Halt must not restart the measurement.
				e := Env{}
				err := d.sense(&e, false)
				if err == nil && len(channel) < channelSize {
					channel <- e
				}
			}
		}
	}()
	return channel, nil
}

// Precision returns the sensor's resolution, or minimum value between steps the
// device can make. The specified precision is 1 PPM for CO2, 175/65536 °C for
// temperature and 100/65536 %rH for humidity.
func (d *Dev) Precision(env *Env) {
	env.Temperature = physic.Temperature(175.0 / 65536 * float64(physic.Kelvin))
	env.Pressure = 0
	env.Humidity = physic.RelativeHumidity(100.0 / 65536 * float64(physic.PercentRH))
	env.CO2 = 1
}

func (d *Dev) String() string {
	return fmt.Sprintf("scd4x: 0x%02x", d.d.Addr)
}

var _ conn.Resource = &Dev{}
