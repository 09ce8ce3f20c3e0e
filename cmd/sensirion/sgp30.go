// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/sensirion/sgp30"
)

func newSGP30Cmd(a *app) *cobra.Command {
	flags := &loopFlags{}
	var humidity float64
	cmd := &cobra.Command{
		Use:   "sgp30",
		Short: "Read the SGP30 CO2eq and TVOC sensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBus(cmd.Context(), func(ctx context.Context, b i2c.Bus) error {
				// The loop drives the measurement, which keeps the
				// compensation running at the default 1s interval.
				dev, err := sgp30.New(b)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("humidity") {
					if err := a.policy.Do(ctx, func() error { return dev.SetHumidity(humidity) }); err != nil {
						return err
					}
				}
				out := cmd.OutOrStdout()
				err = a.loop(ctx, dev.String(), flags, func() error {
					env, err := dev.Measure()
					if err != nil {
						return err
					}
					fmt.Fprintln(out, env.String())
					return nil
				})
				if bl, berr := dev.Baseline(); berr == nil {
					a.log.Info("baseline", zap.Uint16("co2eq", bl.CO2), zap.Uint16("tvoc", bl.TVOC))
				}
				return err
			})
		},
	}
	addLoopFlags(cmd, flags)
	cmd.Flags().Float64Var(&humidity, "humidity", 0, "Absolute humidity in g/m³ for compensation")
	return cmd
}
