// Copyright 2014 Zefir Kurtisi <zefir.kurtisi@gmail.com>
// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package boardsel

import "github.com/bitmine-a1/a1drv/conn/i2c"

// CCDMuxAddr is the I²C address of the CCD board's TCA9535 mux.
const CCDMuxAddr = 0x27

// ccdTempAddrs are the per-chain thermistor addresses on a CCD backplane,
// one dedicated sensor per chain (no sharing).
var ccdTempAddrs = []uint16{0x48, 0x49, 0x4a, 0x4b, 0x4c}

// NewCCD opens a CCD board selector: up to 5 boards, one chain each, no
// trimpot wiper.
func NewCCD(bus i2c.BusCloser) (Selector, error) {
	return newSelector(bus, CCDMuxAddr, layout{
		name:      "CCD",
		numChains: 5,
		tempAddrs: ccdTempAddrs,
		hasWiper:  false,
	})
}
