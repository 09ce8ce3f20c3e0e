// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/sensirion/sen5x"
)

type sen5xFlags struct {
	mode      string
	signedPM  bool
	clear     bool
	offset    float64
	slope     float64
	timeConst time.Duration
}

func (f *sen5xFlags) parseMode() (sen5x.Mode, error) {
	switch f.mode {
	case "pm", "":
		return sen5x.ModeMeasurement, nil
	case "gas":
		return sen5x.ModeRHTGas, nil
	default:
		return sen5x.ModeIdle, fmt.Errorf("invalid mode %q: expected pm or gas", f.mode)
	}
}

func newSEN5xCmd(a *app) *cobra.Command {
	flags := &sen5xFlags{}
	cmd := &cobra.Command{
		Use:   "sen5x",
		Short: "Read the SEN5x particulate matter, VOC and NOx sensor",
	}
	cmd.PersistentFlags().StringVarP(&flags.mode, "mode", "m", "pm", "Measurement mode: pm (all channels) or gas (humidity, temperature, VOC, NOx)")
	cmd.PersistentFlags().BoolVar(&flags.signedPM, "signed-pm", false, "Decode mass concentrations as signed (default from config)")

	cmd.AddCommand(newSEN5xReadCmd(a, flags))
	cmd.AddCommand(newSEN5xRawCmd(a, flags))
	cmd.AddCommand(newSEN5xStatusCmd(a, flags))
	cmd.AddCommand(newSEN5xCompensationCmd(a, flags))
	cmd.AddCommand(newSEN5xInfoCmd(a, flags))
	cmd.AddCommand(newSEN5xCleanCmd(a, flags))
	return cmd
}

// withSEN5x opens the bus and runs fn with a SEN5x device, halting it on
// return.
func (a *app) withSEN5x(cmd *cobra.Command, flags *sen5xFlags, fn func(ctx context.Context, dev *sen5x.Dev) error) error {
	opts := sen5x.Opts{SignedMassConcentration: a.cfg.SEN5x.SignedMassConcentration}
	if cmd.Flags().Changed("signed-pm") {
		opts.SignedMassConcentration = flags.signedPM
	}
	return a.withBus(cmd.Context(), func(ctx context.Context, b i2c.Bus) error {
		dev, err := sen5x.New(b, sen5x.DefaultAddress, &opts)
		if err != nil {
			return err
		}
		defer func() {
			if err := dev.Halt(); err != nil {
				a.log.Warn("halt failed", zap.Error(err))
			}
		}()
		return fn(ctx, dev)
	})
}

// measureSEN5x starts the sensor in the selected mode and loops over fn.
func (a *app) measureSEN5x(cmd *cobra.Command, flags *sen5xFlags, loop *loopFlags, fn func(dev *sen5x.Dev) error) error {
	mode, err := flags.parseMode()
	if err != nil {
		return err
	}
	return a.withSEN5x(cmd, flags, func(ctx context.Context, dev *sen5x.Dev) error {
		if err := a.policy.Do(ctx, func() error { return dev.Start(mode) }); err != nil {
			return err
		}
		a.log.Info("measuring", zap.Stringer("mode", mode))
		return a.loop(ctx, dev.String(), loop, func() error { return fn(dev) })
	})
}

func newSEN5xReadCmd(a *app, flags *sen5xFlags) *cobra.Command {
	loop := &loopFlags{}
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print the measured values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.measureSEN5x(cmd, flags, loop, func(dev *sen5x.Dev) error {
				e := sen5x.Env{}
				if err := dev.Sense(&e); err != nil {
					return err
				}
				fmt.Fprintln(out, e.String())
				return nil
			})
		},
	}
	addLoopFlags(cmd, loop)
	return cmd
}

func newSEN5xRawCmd(a *app, flags *sen5xFlags) *cobra.Command {
	loop := &loopFlags{}
	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Print the raw humidity, temperature and gas signals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.measureSEN5x(cmd, flags, loop, func(dev *sen5x.Dev) error {
				r := sen5x.RawEnv{}
				if err := dev.SenseRaw(&r); err != nil {
					return err
				}
				fmt.Fprintln(out, r.String())
				return nil
			})
		},
	}
	addLoopFlags(cmd, loop)
	return cmd
}

func newSEN5xStatusCmd(a *app, flags *sen5xFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the device status register",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSEN5x(cmd, flags, func(ctx context.Context, dev *sen5x.Dev) error {
				var s sen5x.Status
				err := a.policy.Do(ctx, func() (err error) {
					s, err = dev.Status()
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "0x%08x %s\n", uint32(s), s)
				if s&sen5x.Errors != 0 {
					a.log.Warn("device reports errors", zap.Stringer("status", s&sen5x.Errors))
				}
				if flags.clear {
					return a.policy.Do(ctx, dev.ClearStatus)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&flags.clear, "clear", false, "Clear the status register after reading it")
	return cmd
}

func newSEN5xCompensationCmd(a *app, flags *sen5xFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compensation",
		Short: "Get or set the temperature compensation parameters",
		Long: `Without flags, prints the temperature compensation parameters. With any of
--offset, --slope or --time-constant, writes them; the flags not given are
written as 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			set := f.Changed("offset") || f.Changed("slope") || f.Changed("time-constant")
			return a.withSEN5x(cmd, flags, func(ctx context.Context, dev *sen5x.Dev) error {
				if set {
					tc := sen5x.TemperatureCompensation{
						Offset:       physic.Temperature(flags.offset * float64(physic.Kelvin)),
						Slope:        flags.slope,
						TimeConstant: flags.timeConst,
					}
					if err := a.policy.Do(ctx, func() error { return dev.SetTemperatureCompensation(tc) }); err != nil {
						return err
					}
				}
				var tc sen5x.TemperatureCompensation
				err := a.policy.Do(ctx, func() (err error) {
					tc, err = dev.TemperatureCompensation()
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "offset %.3f°C slope %.4f time constant %s\n",
					float64(tc.Offset)/float64(physic.Kelvin), tc.Slope, tc.TimeConstant)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&flags.offset, "offset", 0, "Temperature offset in °C, resolution 0.005")
	cmd.Flags().Float64Var(&flags.slope, "slope", 0, "Normalized temperature slope, resolution 0.0001")
	cmd.Flags().DurationVar(&flags.timeConst, "time-constant", 0, "Time constant, whole seconds")
	return cmd
}

func newSEN5xInfoCmd(a *app, flags *sen5xFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the product name and serial number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSEN5x(cmd, flags, func(ctx context.Context, dev *sen5x.Dev) error {
				var name, serial string
				err := a.policy.Do(ctx, func() (err error) {
					if name, err = dev.ProductName(); err != nil {
						return err
					}
					serial, err = dev.SerialNumber()
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, serial)
				return nil
			})
		},
	}
}

func newSEN5xCleanCmd(a *app, flags *sen5xFlags) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Run the fan cleaning, or set the automatic cleaning interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSEN5x(cmd, flags, func(ctx context.Context, dev *sen5x.Dev) error {
				if cmd.Flags().Changed("auto-interval") {
					if err := a.policy.Do(ctx, func() error { return dev.SetAutoCleaningInterval(interval) }); err != nil {
						return err
					}
					got, err := dev.AutoCleaningInterval()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "auto cleaning interval %s\n", got)
					return nil
				}
				if err := a.policy.Do(ctx, func() error { return dev.Start(sen5x.ModeMeasurement) }); err != nil {
					return err
				}
				if err := dev.StartFanCleaning(); err != nil {
					return err
				}
				a.log.Info("fan cleaning started")
				// PM values are frozen for the 10s of cleaning.
				a.wait(ctx, 10*time.Second)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "auto-interval", 0, "Set the automatic cleaning interval instead, 0 disables")
	return cmd
}
