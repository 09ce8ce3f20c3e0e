// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sgp30

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/sensirion/frame"
)

var (
	initIO    = i2ctest.IO{Addr: DefaultAddress, W: []byte{0x20, 0x03}}
	measureIO = i2ctest.IO{Addr: DefaultAddress, W: []byte{0x20, 0x08}}
)

func getDev(t *testing.T, ops []i2ctest.IO) (*Dev, *i2ctest.Playback) {
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	d := newDev(pb)
	d.d.Sleep = func(time.Duration) {}
	return d, pb
}

func TestStart(t *testing.T) {
	d, pb := getDev(t, []i2ctest.IO{
		initIO,
		measureIO,
		{Addr: DefaultAddress, R: []byte{0x01, 0xc2, 0x50, 0x00, 0x2a, 0xdc}},
	})
	if err := d.start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	env, err := d.AirQuality()
	if err != nil {
		t.Fatal(err)
	}
	if env.CO2 != 450 || env.TVOC != 42 {
		t.Errorf("got %s expected 450ppm 42ppb", env)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestMeasureChecksumError(t *testing.T) {
	d, _ := getDev(t, []i2ctest.IO{
		measureIO,
		{Addr: DefaultAddress, R: []byte{0x01, 0xc2, 0x50, 0x00, 0x2a, 0xdd}},
	})
	if _, err := d.Measure(); err == nil {
		t.Fatal("expected measure to fail")
	}
	env, err := d.AirQuality()
	var ce *frame.ChecksumError
	if !errors.As(err, &ce) || ce.Index != 1 {
		t.Fatalf("expected checksum error on word 1, got %v", err)
	}
	if env.CO2 != 400 || env.TVOC != 0 {
		t.Errorf("got %s, expected the initial values", env)
	}
}

func TestBaseline(t *testing.T) {
	d, pb := getDev(t, []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{0x20, 0x15}},
		{Addr: DefaultAddress, R: []byte{0x8a, 0x5c, 0x4f, 0x8f, 0x1e, 0x67}},
		{Addr: DefaultAddress, W: []byte{0x20, 0x1e, 0x8f, 0x1e, 0x67, 0x8a, 0x5c, 0x4f}},
		{Addr: DefaultAddress, W: []byte{0x20, 0xb3}},
		{Addr: DefaultAddress, R: []byte{0x9a, 0xbc, 0xe0}},
		{Addr: DefaultAddress, W: []byte{0x20, 0x77, 0x9a, 0xbc, 0xe0}},
	})
	defer pb.Close()

	b, err := d.Baseline()
	if err != nil {
		t.Fatal(err)
	}
	if b.CO2 != 0x8a5c || b.TVOC != 0x8f1e {
		t.Errorf("got %+v", b)
	}
	if err := d.SetBaseline(b); err != nil {
		t.Fatal(err)
	}
	tvoc, err := d.TVOCInceptiveBaseline()
	if err != nil {
		t.Fatal(err)
	}
	if tvoc != 0x9abc {
		t.Errorf("tvoc baseline 0x%04x", tvoc)
	}
	if err := d.SetTVOCBaseline(tvoc); err != nil {
		t.Fatal(err)
	}
}

func TestHumidity(t *testing.T) {
	ah := AbsoluteHumidity(physic.ZeroCelsius+25*physic.Celsius, 50*physic.PercentRH)
	if math.Abs(ah-11.4839) > 1e-3 {
		t.Errorf("absolute humidity %g expected 11.4839", ah)
	}

	d, pb := getDev(t, []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{0x20, 0x61, 0x0b, 0x80, 0xe1}},
	})
	defer pb.Close()
	if err := d.SetHumidity(11.5); err != nil {
		t.Fatal(err)
	}
	for _, v := range []float64{-1, 256, math.NaN()} {
		if err := d.SetHumidity(v); !errors.Is(err, ErrHumidityRange) {
			t.Errorf("%g: expected ErrHumidityRange, got %v", v, err)
		}
	}
}

func TestSelfTestFeatureSetRaw(t *testing.T) {
	d, pb := getDev(t, []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{0x20, 0x32}},
		{Addr: DefaultAddress, R: []byte{0xd4, 0x00, 0xc6}},
		{Addr: DefaultAddress, W: []byte{0x20, 0x32}},
		{Addr: DefaultAddress, R: []byte{0x00, 0x00, 0x81}},
		{Addr: DefaultAddress, W: []byte{0x20, 0x2f}},
		{Addr: DefaultAddress, R: []byte{0x00, 0x20, 0x07}},
		{Addr: DefaultAddress, W: []byte{0x20, 0x50}},
		{Addr: DefaultAddress, R: []byte{0x3a, 0x98, 0x5d, 0x4e, 0x20, 0xe3}},
	})
	defer pb.Close()

	if err := d.SelfTest(); err != nil {
		t.Fatal(err)
	}
	if err := d.SelfTest(); err == nil {
		t.Error("expected self test failure")
	}
	pt, v, err := d.FeatureSet()
	if err != nil {
		t.Fatal(err)
	}
	if pt != 0 || v != 0x20 {
		t.Errorf("product type %d version 0x%02x", pt, v)
	}
	r, err := d.RawSignals()
	if err != nil {
		t.Fatal(err)
	}
	if r.H2 != 15000 || r.Ethanol != 20000 {
		t.Errorf("got %+v", r)
	}
}

func TestHaltNotStarted(t *testing.T) {
	d, _ := getDev(t, nil)
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if d.String() != "sgp30" {
		t.Errorf("got %q", d.String())
	}
}

func TestNewAndMeasure(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		initIO,
		measureIO,
		{Addr: DefaultAddress, R: []byte{0x01, 0x90, 0x4c, 0x00, 0x00, 0x81}},
		measureIO,
		{Addr: DefaultAddress, R: []byte{0x01, 0xc2, 0x50, 0x00, 0x2a, 0xdc}},
	}, DontPanic: true}
	d, err := New(pb)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []Env{{CO2: 400}, {CO2: 450, TVOC: 42}} {
		env, err := d.Measure()
		if err != nil {
			t.Fatal(err)
		}
		if env != want {
			t.Errorf("got %s expected %s", env, want)
		}
	}
	if got, _ := d.AirQuality(); got.CO2 != 450 {
		t.Errorf("AirQuality=%s not updated by Measure", got)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}
