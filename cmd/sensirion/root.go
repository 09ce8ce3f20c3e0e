// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/sensirion/frame"
	"github.com/GermanBionicSystems/sensirion/internal/config"
	"github.com/GermanBionicSystems/sensirion/internal/logging"
	"github.com/GermanBionicSystems/sensirion/transport"
)

type rootFlags struct {
	configPath string
	bus        string
	attempts   int
	backoff    time.Duration
	logLevel   string
	logFormat  string
	logFile    string
}

// app is the state shared by the subcommands once the configuration is
// loaded.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	policy transport.Policy
	// logOut receives the log when set, os.Stderr otherwise.
	logOut io.Writer
	// open replaces the host I2C registry when set.
	open transport.Opener
	// sleep replaces the timer between measurements when set, so tests
	// run the loop without waiting. It returns false once ctx is done.
	sleep func(ctx context.Context, d time.Duration) bool
}

func newRootCmd(a *app) *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "sensirion",
		Short: "Sensirion I2C sensor tool",
		Long: `sensirion reads Sensirion sensors over I2C (LD20, SCD4x, SEN5x, SGP30) and
encodes, decodes and checksums their data frames.

Every data word on the wire is two big-endian bytes followed by a CRC-8
(polynomial 0x31, init 0xff). The checksum, encode and decode commands need
no hardware.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&flags.bus, "bus", "", "I2C bus name (default first bus)")
	pf.IntVar(&flags.attempts, "attempts", 0, "Attempts per measurement (default from config, 3)")
	pf.DurationVar(&flags.backoff, "backoff", 0, "Pause between attempts (default from config, 20ms)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: console or json")
	pf.StringVar(&flags.logFile, "log-file", "", "Also log to this rotated file")

	cmd.AddCommand(newChecksumCmd())
	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newLD20Cmd(a))
	cmd.AddCommand(newSCD4xCmd(a))
	cmd.AddCommand(newSEN5xCmd(a))
	cmd.AddCommand(newSGP30Cmd(a))
	return cmd
}

// setup loads the configuration, applies the flags set on the command line
// and builds the logger and retry policy.
func (a *app) setup(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("bus") {
		cfg.Bus = flags.bus
	}
	if f.Changed("attempts") {
		cfg.Retry.MaxAttempts = flags.attempts
	}
	if f.Changed("backoff") {
		cfg.Retry.Backoff = flags.backoff
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if f.Changed("log-format") {
		cfg.Logging.Format = flags.logFormat
	}
	if f.Changed("log-file") {
		cfg.Logging.File.Filename = flags.logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	out := a.logOut
	if out == nil {
		out = os.Stderr
	}
	a.log = logging.New(cfg.Logging, out)
	a.policy = cfg.Policy(func(attempt int, err error) {
		a.log.Warn("retrying", zap.Int("attempt", attempt), zap.Error(err))
	})
	return nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// withBus runs fn with the configured bus and releases it afterwards.
func (a *app) withBus(ctx context.Context, fn func(ctx context.Context, b i2c.Bus) error) error {
	a.log.Debug("opening bus", zap.String("bus", a.cfg.Bus))
	if a.open != nil {
		return transport.Use(ctx, a.open, fn)
	}
	return transport.WithBus(ctx, a.cfg.Bus, fn)
}

type loopFlags struct {
	count    int
	interval time.Duration
}

func addLoopFlags(cmd *cobra.Command, flags *loopFlags) {
	cmd.Flags().IntVarP(&flags.count, "count", "n", 10, "Number of measurements, 0 runs until interrupted")
	cmd.Flags().DurationVarP(&flags.interval, "interval", "i", time.Second, "Time between measurements")
}

func (a *app) wait(ctx context.Context, d time.Duration) bool {
	if a.sleep != nil {
		return a.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// loop waits flags.interval then runs measure under the retry policy,
// flags.count times. A failed measurement is logged and the loop goes on,
// except for length errors which mean the wrong device answered.
func (a *app) loop(ctx context.Context, sensor string, flags *loopFlags, measure func() error) error {
	log := a.log.With(zap.String("sensor", sensor))
	failures := 0
	for i := 0; flags.count <= 0 || i < flags.count; i++ {
		if !a.wait(ctx, flags.interval) {
			break
		}
		err := a.policy.Do(ctx, measure)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		var le *frame.LengthError
		if errors.As(err, &le) {
			return err
		}
		failures++
		log.Error("measurement failed", zap.Int("index", i), zap.Error(err))
	}
	if failures > 0 {
		log.Info("done", zap.Int("failures", failures))
	}
	return nil
}
