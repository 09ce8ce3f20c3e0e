// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frame

import (
	"fmt"
	"time"
)

// WordSize is the number of bytes in a data word: two payload bytes and the
// CRC.
const WordSize = 3

// CommandWord is the 16 bit opcode sent to the sensor, most significant byte
// first.
type CommandWord uint16

// Bytes returns the big-endian encoding of the command word.
func (c CommandWord) Bytes() []byte {
	return []byte{byte(c >> 8), byte(c)}
}

func (c CommandWord) String() string {
	return fmt.Sprintf("0x%04x", uint16(c))
}

// EncodeCommand returns the bytes to write for opcode op. Each parameter is
// appended as two big-endian bytes followed by their checksum.
func EncodeCommand(op CommandWord, params ...uint16) []byte {
	w := make([]byte, 2, 2+len(params)*WordSize)
	w[0] = byte(op >> 8)
	w[1] = byte(op)
	return AppendWords(w, params...)
}

// AppendWords appends the data word encoding of words to dst.
func AppendWords(dst []byte, words ...uint16) []byte {
	for _, val := range words {
		dst = append(dst, byte(val>>8), byte(val), wordChecksum(val))
	}
	return dst
}

// DecodeResponse validates raw as a sequence of words data words and returns
// their payloads. raw must be exactly words*WordSize bytes long. The first
// word with a bad checksum aborts decoding; no payloads are returned in that
// case.
func DecodeResponse(raw []byte, words int) ([]uint16, error) {
	if words < 0 || len(raw) != words*WordSize {
		return nil, &LengthError{Got: len(raw), Want: words * WordSize}
	}
	result := make([]uint16, words)
	for ix := range result {
		group := raw[ix*WordSize : ix*WordSize+WordSize]
		if crc := Checksum(group[:2]); group[2] != crc {
			return nil, &ChecksumError{Index: ix, Got: group[2], Want: crc}
		}
		result[ix] = uint16(group[0])<<8 | uint16(group[1])
	}
	return result, nil
}

// Command describes one sensor operation.
type Command struct {
	// Name used in error messages.
	Name string
	Op   CommandWord
	// Words is the number of data words returned by the sensor. 0 for
	// commands without a response.
	Words int
	// Delay is the execution time the sensor needs before it accepts the
	// next transfer.
	Delay time.Duration
	// Fields, when present, describe how each returned word is converted. It
	// may be shorter than Words; trailing words are then left undecoded.
	Fields []Field
}

// ResponseSize is the number of bytes to read after the command.
func (c *Command) ResponseSize() int {
	return c.Words * WordSize
}

// Encode returns the bytes to write for c with the optional parameters.
func (c *Command) Encode(params ...uint16) []byte {
	return EncodeCommand(c.Op, params...)
}

// Decode validates a response to c and returns the payload words.
func (c *Command) Decode(raw []byte) ([]uint16, error) {
	words, err := DecodeResponse(raw, c.Words)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	return words, nil
}

// Measure validates a response to c and converts it using c.Fields.
func (c *Command) Measure(raw []byte) (Record, error) {
	words, err := c.Decode(raw)
	if err != nil {
		return nil, err
	}
	return Convert(words, c.Fields)
}

func (c *Command) String() string {
	if c.Name == "" {
		return "cmd " + c.Op.String()
	}
	return c.Name + " " + c.Op.String()
}

// Measurement is one decoded value.
type Measurement struct {
	Name  string
	Unit  string
	Raw   uint16
	Value float64
}

func (m Measurement) String() string {
	if m.Unit == "" {
		return fmt.Sprintf("%s=%g", m.Name, m.Value)
	}
	return fmt.Sprintf("%s=%g%s", m.Name, m.Value, m.Unit)
}

// Record is the set of measurements decoded from a single response, in
// response order.
type Record []Measurement

// Lookup returns the measurement called name.
func (r Record) Lookup(name string) (Measurement, bool) {
	for _, m := range r {
		if m.Name == name {
			return m, true
		}
	}
	return Measurement{}, false
}

// Convert applies fields to the validated payload words. It fails when there
// are more fields than words.
func Convert(words []uint16, fields []Field) (Record, error) {
	if len(fields) > len(words) {
		return nil, fmt.Errorf("frame: %d fields for %d words", len(fields), len(words))
	}
	r := make(Record, len(fields))
	for ix, f := range fields {
		r[ix] = Measurement{Name: f.Name, Unit: f.Unit, Raw: words[ix], Value: f.Decode(words[ix])}
	}
	return r, nil
}
