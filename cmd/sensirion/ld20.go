// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/sensirion/ld20"
)

func newLD20Cmd(a *app) *cobra.Command {
	flags := &loopFlags{}
	var info bool
	cmd := &cobra.Command{
		Use:   "ld20",
		Short: "Read the LD20 liquid flow sensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBus(cmd.Context(), func(ctx context.Context, b i2c.Bus) error {
				dev, err := ld20.New(b, ld20.DefaultAddress)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if info {
					var pi ld20.ProductInfo
					err := a.policy.Do(ctx, func() (err error) {
						pi, err = dev.ProductInfo()
						return err
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "product 0x%08x serial 0x%016x\n", pi.ProductNumber, pi.SerialNumber)
					return nil
				}
				defer dev.Halt()
				if err := dev.Start(); err != nil {
					return err
				}
				return a.loop(ctx, dev.String(), flags, func() error {
					e := ld20.Env{}
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
	cmd.Flags().BoolVar(&info, "info", false, "Print the product number and serial number and exit")
	return cmd
}
