// Copyright 2014 Zefir Kurtisi <zefir.kurtisi@gmail.com>
// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package boardsel

import "github.com/bitmine-a1/a1drv/conn/i2c"

// CCBMuxAddr is the I²C address of the CCB board's TCA9535 mux, per
// A1-board-selector-CCB.c's U1_tca9535 = i2c_slave_open(I2C_BUS, 0x27).
const CCBMuxAddr = 0x27

// ccbTempAddrs are the per-board-pair thermistor addresses on a CCB
// backplane: 4 boards x 2 chains, sensor shared across each board's pair.
var ccbTempAddrs = []uint16{0x48, 0x49, 0x4a, 0x4b}

// NewCCB opens a CCB board selector: 4 boards x 2 chains, shared
// sensor-per-pair, trimpot wiper present.
func NewCCB(bus i2c.BusCloser) (Selector, error) {
	return newSelector(bus, CCBMuxAddr, layout{
		name:                "CCB",
		numChains:           8,
		tempAddrs:           ccbTempAddrs,
		sharedSensorPerPair: true,
		hasWiper:            true,
	})
}
