// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frame

const (
	crcPolynomial byte = 0x31
	crcInit       byte = 0xff
)

// Checksum calculates the CRC-8 Sensirion sensors append to each data word.
// Polynomial 0x31 (x^8 + x^5 + x^4 + 1), initial value 0xff, no reflection and
// no final XOR.
func Checksum(data []byte) byte {
	crc := crcInit
	for _, val := range data {
		crc ^= val
		for range 8 {
			if crc&0x80 == 0 {
				crc <<= 1
			} else {
				crc = (crc << 1) ^ crcPolynomial
			}
		}
	}
	return crc
}

// wordChecksum returns the checksum of the big-endian encoding of w.
func wordChecksum(w uint16) byte {
	return Checksum([]byte{byte(w >> 8), byte(w)})
}
