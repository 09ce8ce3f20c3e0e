// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GermanBionicSystems/sensirion/frame"
)

// parseWord parses a 16 bit hexadecimal word, with or without 0x prefix.
func parseWord(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid word %q: expected 1 to 4 hex digits", s)
	}
	return uint16(v), nil
}

// parseBytes concatenates hexadecimal byte strings such as "00 0a 5a",
// "0x000a5a" or "00:0a:5a".
func parseBytes(args []string) ([]byte, error) {
	var out []byte
	for _, arg := range args {
		for _, s := range strings.FieldsFunc(arg, func(r rune) bool { return r == ' ' || r == ':' || r == ',' }) {
			s = strings.TrimPrefix(strings.ToLower(s), "0x")
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("invalid bytes %q: %w", s, err)
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

func newChecksumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checksum <word>...",
		Short: "Print the CRC-8 of 16 bit words",
		Example: `  sensirion checksum beef
  0xbeef 0x92`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				w, err := parseWord(arg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "0x%04x 0x%02x\n", w, frame.Checksum([]byte{byte(w >> 8), byte(w)}))
			}
			return nil
		},
	}
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <opcode> [word...]",
		Short: "Print the bytes written for a command and its parameters",
		Example: `  sensirion encode 60b2 fc18 0064 0258
  60 b2 fc 18 d7 00 64 fe 02 58 9f`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words := make([]uint16, len(args))
			for i, arg := range args {
				w, err := parseWord(arg)
				if err != nil {
					return err
				}
				words[i] = w
			}
			fmt.Fprintf(cmd.OutOrStdout(), "% x\n", frame.EncodeCommand(frame.CommandWord(words[0]), words[1:]...))
			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	var words int
	cmd := &cobra.Command{
		Use:   "decode --words N <bytes>...",
		Short: "Validate a response and print its data words",
		Long: `Decode validates the checksum of every 3 byte group of a response and
prints the payload of each word as hexadecimal, unsigned and signed.`,
		Example: `  sensirion decode --words 2 "00 0a 5a ff f6 24"
  0 0x000a 10 10
  1 0xfff6 65526 -10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseBytes(args)
			if err != nil {
				return err
			}
			n := words
			if !cmd.Flags().Changed("words") {
				n = len(raw) / frame.WordSize
			}
			payloads, err := frame.DecodeResponse(raw, n)
			if err != nil {
				return err
			}
			for i, w := range payloads {
				fmt.Fprintf(cmd.OutOrStdout(), "%d 0x%04x %d %d\n", i, w, w, frame.Int16(w))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&words, "words", "w", 0, "Expected number of data words (default len/3)")
	return cmd
}
