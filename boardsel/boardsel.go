// Copyright 2014 Zefir Kurtisi <zefir.kurtisi@gmail.com>
// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package boardsel implements the board-selector hardware abstraction that
// multiplexes a single SPI master across several A1 chains: which chain's
// chip-select is live, which chain's reset line is asserted, and which
// thermistor is readable. Three concrete backends (CCD, CCB, CCR) ride on a
// common TCA9535 I²C GPIO-expander register protocol, differing only in
// board layout; Single is a no-op for bring-up against one chain wired
// directly to the host with no selector hardware at all.
package boardsel

import "time"

// Default reset pulse timing, shared by all TCA9535-backed selectors.
const (
	ResetLowTime = 200 * time.Millisecond
	ResetHiTime  = 200 * time.Millisecond
)

// Selector is the contract the chain driver consumes to multiplex boards.
//
// Exactly one chain may hold a Selector at a time: Select acquires an
// internal mutex that Release drops. Lock order throughout the driver is
// always Select -> (chain work) -> Release; see the chain package for the
// matching chain.mu discipline.
type Selector interface {
	// Select makes chainID's SPI and temperature sensor live, blocking until
	// any other chain's hold is released.
	Select(chainID int) error
	// Release drops the hold acquired by Select.
	Release()
	// Reset pulses the reset line for chainID alone. Must be called while
	// holding Select(chainID).
	Reset(chainID int) error
	// ResetAll pulses the reset line for every chain. It takes the same
	// mutex as Select, so it waits for any current Select hold to be
	// released and must not be called while holding one.
	ResetAll() error
	// Temp reads the thermistor associated with chainID. If the reading
	// cannot be obtained or validated, the last good reading for that sensor
	// is returned instead; ok is false only when there is no such reading.
	Temp(chainID int) (celsius int, ok bool)
	// SetWiper applies a one-shot trimpot wiper setting for the given board.
	// CCD and Single treat this as a no-op.
	SetWiper(board int, value byte) error
	// NumChains reports how many chain slots this selector exposes.
	NumChains() int
	// Close releases the underlying I²C handle.
	Close() error
}
