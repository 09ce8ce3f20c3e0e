// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/sensirion/scd4x"
)

func newSCD4xCmd(a *app) *cobra.Command {
	flags := &loopFlags{}
	var settings bool
	cmd := &cobra.Command{
		Use:   "scd4x",
		Short: "Read the SCD4x CO2 sensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBus(cmd.Context(), func(ctx context.Context, b i2c.Bus) error {
				dev, err := scd4x.NewI2C(b, scd4x.SensorAddress)
				if err != nil {
					return err
				}
				defer dev.Halt()
				out := cmd.OutOrStdout()
				if settings {
					cfg, err := dev.GetConfiguration()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%+v\n", *cfg)
					return nil
				}
				return a.loop(ctx, dev.String(), flags, func() error {
					e := scd4x.Env{}
					if err := dev.Sense(&e); err != nil {
						return err
					}
					fmt.Fprintln(out, e.String())
					return nil
				})
			})
		},
	}
	addLoopFlags(cmd, flags)
	cmd.Flags().BoolVar(&settings, "settings", false, "Print the sensor configuration and exit")
	return cmd
}
