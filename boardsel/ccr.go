// Copyright 2014 Zefir Kurtisi <zefir.kurtisi@gmail.com>
// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package boardsel

import "github.com/bitmine-a1/a1drv/conn/i2c"

// CCRMuxAddr is the I²C address of the CCR board's TCA9535 mux. CCR shares
// the CCB register protocol and board shape (4 boards x 2 chains) but is a
// distinct physical backplane, kept as its own constructor so the chain
// detection probe order (§6: CCD, CCB, CCR, single) can distinguish them.
const CCRMuxAddr = 0x27

var ccrTempAddrs = []uint16{0x48, 0x49, 0x4a, 0x4b}

// NewCCR opens a CCR board selector: 4 boards x 2 chains, shared
// sensor-per-pair, trimpot wiper present.
func NewCCR(bus i2c.BusCloser) (Selector, error) {
	return newSelector(bus, CCRMuxAddr, layout{
		name:                "CCR",
		numChains:           8,
		tempAddrs:           ccrTempAddrs,
		sharedSensorPerPair: true,
		hasWiper:            true,
	})
}
