// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/GermanBionicSystems/sensirion/frame"
	"github.com/GermanBionicSystems/sensirion/transport"
)

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	if a.logOut == nil {
		a.logOut = io.Discard
	}
	if a.sleep == nil {
		a.sleep = func(context.Context, time.Duration) bool { return true }
	}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func playbackOpener(ops []i2ctest.IO) transport.Opener {
	return func() (i2c.BusCloser, error) {
		return &i2ctest.Playback{Ops: ops, DontPanic: true}, nil
	}
}

func TestCodecCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"checksum", []string{"checksum", "beef", "0x0000"}, "0xbeef 0x92\n0x0000 0x81\n"},
		{"encode", []string{"encode", "0x3608"}, "36 08\n"},
		{"encode params", []string{"encode", "60b2", "fc18", "0064", "0258"}, "60 b2 fc 18 d7 00 64 fe 02 58 9f\n"},
		{"decode", []string{"decode", "--words", "2", "00 0a 5a ff f6 24"}, "0 0x000a 10 10\n1 0xfff6 65526 -10\n"},
		{"decode inferred", []string{"decode", "0x000a5a"}, "0 0x000a 10 10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, &app{}, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestCodecErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"checksum no args", []string{"checksum"}, "requires at least 1 arg"},
		{"checksum bad word", []string{"checksum", "12345"}, "invalid word"},
		{"decode bad crc", []string{"decode", "00 0a 5b"}, "word 0 crc 0x5b"},
		{"decode bad length", []string{"decode", "--words", "2", "00 0a 5a"}, "expected 6"},
		{"decode bad hex", []string{"decode", "0g"}, "invalid bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, &app{}, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	a := &app{}
	if _, err := run(t, a, "--attempts", "5", "--backoff", "1s", "--bus", "I2C1", "checksum", "0"); err != nil {
		t.Fatal(err)
	}
	if a.policy.MaxAttempts != 5 || a.policy.Backoff != time.Second || a.cfg.Bus != "I2C1" {
		t.Errorf("policy=%+v bus=%q", a.policy, a.cfg.Bus)
	}
	if _, err := run(t, &app{}, "--log-format", "xml", "checksum", "0"); err == nil {
		t.Error("expected error for invalid log format")
	}
}

func TestSEN5xStatus(t *testing.T) {
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: 0x69, W: []byte{0xd2, 0x06}},
		{Addr: 0x69, R: []byte{0x00, 0x20, 0x07, 0x00, 0x10, 0xc2}},
	})}
	got, err := run(t, a, "sen5x", "status")
	if err != nil {
		t.Fatal(err)
	}
	if want := "0x00200010 fan speed warning|fan failure\n"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSEN5xReadRetries(t *testing.T) {
	good := []byte{
		0x00, 0x0a, 0x5a, 0x00, 0x14, 0x06, 0x00, 0x19, 0x4a, 0x00, 0x1e, 0xdd,
		0x11, 0x94, 0xe6, 0x13, 0x88, 0x01, 0x03, 0xe8, 0xd4, 0x00, 0x0a, 0x5a,
	}
	bad := append([]byte(nil), good...)
	bad[2] = 0x5b
	var logs bytes.Buffer
	a := &app{
		logOut: &logs,
		open: playbackOpener([]i2ctest.IO{
			{Addr: 0x69, W: []byte{0x00, 0x21}},
			{Addr: 0x69, W: []byte{0x03, 0xc4}},
			{Addr: 0x69, R: bad},
			{Addr: 0x69, W: []byte{0x03, 0xc4}},
			{Addr: 0x69, R: good},
			{Addr: 0x69, W: []byte{0x01, 0x04}},
		}),
	}
	got, err := run(t, a, "--backoff", "0s", "sen5x", "read", "-n", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "PM1.0: 1.0µg/m³ PM2.5: 2.0µg/m³") {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(logs.String(), "retrying") {
		t.Errorf("retry not logged: %q", logs.String())
	}
}

func TestSEN5xInvalidMode(t *testing.T) {
	a := &app{open: playbackOpener(nil)}
	if _, err := run(t, a, "sen5x", "read", "--mode", "dust"); err == nil || !strings.Contains(err.Error(), "invalid mode") {
		t.Errorf("got %v", err)
	}
}

func TestLoop(t *testing.T) {
	a := &app{
		log:    zap.NewNop(),
		policy: transport.NoRetry,
		sleep:  func(context.Context, time.Duration) bool { return true },
	}
	calls := 0
	err := a.loop(context.Background(), "test", &loopFlags{count: 3}, func() error {
		calls++
		return &frame.ChecksumError{Index: 0}
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("calls=%d expected 3", calls)
	}

	calls = 0
	err = a.loop(context.Background(), "test", &loopFlags{count: 3}, func() error {
		calls++
		return &frame.LengthError{Got: 3, Want: 24}
	})
	var le *frame.LengthError
	if !errors.As(err, &le) || calls != 1 {
		t.Errorf("err=%v calls=%d, expected length error after one call", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.sleep = nil
	calls = 0
	if err := a.loop(ctx, "test", &loopFlags{count: 0, interval: time.Hour}, func() error { calls++; return nil }); err != nil || calls != 0 {
		t.Errorf("err=%v calls=%d after cancel", err, calls)
	}
}

func TestLD20Read(t *testing.T) {
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: 0x08, W: []byte{0x36, 0x08}},
		{Addr: 0x08, R: []byte{0xff, 0x38, 0x7c, 0x11, 0xf8, 0x20, 0x00, 0x01, 0xb0}},
		{Addr: 0x08, W: []byte{0x3f, 0xf9}},
	})}
	got, err := run(t, a, "ld20", "-n", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "Flow: -0.167ml/h Temperature: ") || !strings.HasSuffix(got, " air-in-line\n") {
		t.Errorf("got %q", got)
	}
}

func TestLD20Info(t *testing.T) {
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: 0x08, W: []byte{0x36, 0x7c}},
		{Addr: 0x08, W: []byte{0xe1, 0x02}},
		{Addr: 0x08, R: []byte{
			0x07, 0x03, 0x7c, 0x02, 0x01, 0x69, 0x00, 0x00, 0x81,
			0x00, 0x01, 0xb0, 0x23, 0x45, 0xb8, 0x67, 0x89, 0x88,
		}},
	})}
	got, err := run(t, a, "ld20", "--info")
	if err != nil {
		t.Fatal(err)
	}
	if want := "product 0x07030201 serial 0x0000000123456789\n"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestSCD4xSettings(t *testing.T) {
	const addr = 0x62
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: addr, W: []byte{0x36, 0xf6}},
		{Addr: addr, W: []byte{0x21, 0xb1}},
		// Ambient pressure is readable while measuring; the next query
		// stops the measurement first.
		{Addr: addr, W: []byte{0xe0, 0x00}},
		{Addr: addr, R: []byte{0x00, 0x05, 0x74}},
		{Addr: addr, W: []byte{0x3f, 0x86}},
		{Addr: addr, W: []byte{0x23, 0x13}},
		{Addr: addr, R: []byte{0x00, 0x01, 0xb0}},
		{Addr: addr, W: []byte{0x23, 0x40}},
		{Addr: addr, R: []byte{0x00, 0x2c, 0x7a}},
		{Addr: addr, W: []byte{0x23, 0x4b}},
		{Addr: addr, R: []byte{0x00, 0x9c, 0xc5}},
		{Addr: addr, W: []byte{0x23, 0x3f}},
		{Addr: addr, R: []byte{0x01, 0x90, 0x4c}},
		{Addr: addr, W: []byte{0x36, 0x82}},
		{Addr: addr, R: []byte{0x73, 0xb1, 0x19, 0xeb, 0x07, 0x7a, 0x3b, 0x0c, 0x54}},
		{Addr: addr, W: []byte{0x20, 0x2f}},
		{Addr: addr, R: []byte{0x04, 0x41, 0x0e}},
		{Addr: addr, W: []byte{0x23, 0x22}},
		{Addr: addr, R: []byte{0x00, 0x00, 0x81}},
		{Addr: addr, W: []byte{0x23, 0x18}},
		{Addr: addr, R: []byte{0x05, 0xda, 0x29}},
	})}
	got, err := run(t, a, "scd4x", "--settings")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ASCEnabled:true", "ASCTarget:400 PPM", "SerialNumber:"} {
		if !strings.Contains(got, want) {
			t.Errorf("%q missing from %q", want, got)
		}
	}
}

func TestSGP30Humidity(t *testing.T) {
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: 0x58, W: []byte{0x20, 0x03}},
		{Addr: 0x58, W: []byte{0x20, 0x61, 0x0b, 0x80, 0xe1}},
		{Addr: 0x58, W: []byte{0x20, 0x08}},
		{Addr: 0x58, R: []byte{0x01, 0xc2, 0x50, 0x00, 0x2a, 0xdc}},
		{Addr: 0x58, W: []byte{0x20, 0x15}},
		{Addr: 0x58, R: []byte{0x8a, 0x5c, 0x4f, 0x8f, 0x1e, 0x67}},
	})}
	got, err := run(t, a, "sgp30", "--humidity", "11.5", "-n", "1")
	if err != nil {
		t.Fatal(err)
	}
	if want := "CO2eq: 450ppm TVOC: 42ppb\n"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestSGP30MeasureRetries(t *testing.T) {
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: 0x58, W: []byte{0x20, 0x03}},
		{Addr: 0x58, W: []byte{0x20, 0x08}},
		{Addr: 0x58, R: []byte{0x01, 0xc2, 0x51, 0x00, 0x2a, 0xdc}},
		// The retry resends the measure command.
		{Addr: 0x58, W: []byte{0x20, 0x08}},
		{Addr: 0x58, R: []byte{0x01, 0xc2, 0x50, 0x00, 0x2a, 0xdc}},
		{Addr: 0x58, W: []byte{0x20, 0x15}},
		{Addr: 0x58, R: []byte{0x8a, 0x5c, 0x4f, 0x8f, 0x1e, 0x67}},
	})}
	got, err := run(t, a, "--backoff", "0s", "sgp30", "-n", "1")
	if err != nil {
		t.Fatal(err)
	}
	if want := "CO2eq: 450ppm TVOC: 42ppb\n"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestSEN5xCompensation(t *testing.T) {
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: 0x69, W: []byte{0x60, 0xb2, 0xfc, 0x18, 0xd7, 0x00, 0x64, 0xfe, 0x02, 0x58, 0x9f}},
		{Addr: 0x69, W: []byte{0x60, 0xb2}},
		{Addr: 0x69, R: []byte{0xfc, 0x18, 0xd7, 0x00, 0x64, 0xfe, 0x02, 0x58, 0x9f}},
	})}
	got, err := run(t, a, "sen5x", "compensation", "--offset=-5", "--slope", "0.01", "--time-constant", "10m")
	if err != nil {
		t.Fatal(err)
	}
	if want := "offset -5.000°C slope 0.0100 time constant 10m0s\n"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

// sen5xString encodes s as 16 data words padded with zeros.
func sen5xString(s string) []byte {
	b := make([]byte, 32)
	copy(b, s)
	out := make([]byte, 0, 48)
	for i := 0; i < len(b); i += 2 {
		out = append(out, b[i], b[i+1], frame.Checksum(b[i:i+2]))
	}
	return out
}

func TestSEN5xInfo(t *testing.T) {
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: 0x69, W: []byte{0xd0, 0x14}},
		{Addr: 0x69, R: sen5xString("SEN55")},
		{Addr: 0x69, W: []byte{0xd0, 0x33}},
		{Addr: 0x69, R: sen5xString("1234ABCD")},
	})}
	got, err := run(t, a, "sen5x", "info")
	if err != nil {
		t.Fatal(err)
	}
	if want := "SEN55 1234ABCD\n"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestSEN5xClean(t *testing.T) {
	var waited time.Duration
	a := &app{
		open: playbackOpener([]i2ctest.IO{
			{Addr: 0x69, W: []byte{0x00, 0x21}},
			{Addr: 0x69, W: []byte{0x56, 0x07}},
			{Addr: 0x69, W: []byte{0x01, 0x04}},
		}),
		sleep: func(_ context.Context, d time.Duration) bool {
			waited += d
			return true
		},
	}
	if _, err := run(t, a, "sen5x", "clean"); err != nil {
		t.Fatal(err)
	}
	if waited != 10*time.Second {
		t.Errorf("waited %s, expected the 10s cleaning", waited)
	}
}

func TestSEN5xAutoCleaningInterval(t *testing.T) {
	a := &app{open: playbackOpener([]i2ctest.IO{
		{Addr: 0x69, W: []byte{0x80, 0x04, 0x00, 0x02, 0xe3, 0xa3, 0x00, 0x53}},
		{Addr: 0x69, W: []byte{0x80, 0x04}},
		{Addr: 0x69, R: []byte{0x00, 0x02, 0xe3, 0xa3, 0x00, 0x53}},
	})}
	got, err := run(t, a, "sen5x", "clean", "--auto-interval", "48h")
	if err != nil {
		t.Fatal(err)
	}
	if want := "auto cleaning interval 48h0m0s\n"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
