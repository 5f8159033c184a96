// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package boardsel

import (
	"errors"
	"testing"

	"github.com/bitmine-a1/a1drv/conn/i2c"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus implements i2c.Bus/i2c.BusCloser over an in-memory map of
// address -> next byte to return on read, so the selector logic can be
// exercised without real I²C hardware.
type fakeBus struct {
	reads map[uint16]byte
	fail  map[uint16]bool
}

func (f *fakeBus) String() string { return "fakeBus" }
func (f *fakeBus) Speed(hz int64) error { return nil }
func (f *fakeBus) Close() error { return nil }
func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	if f.fail[addr] {
		return errors.New("fake i2c failure")
	}
	if len(r) > 0 {
		r[0] = f.reads[addr]
	}
	return nil
}

func newTestSelector(t *testing.T) (*selector, *fakeBus) {
	bus := &fakeBus{reads: map[uint16]byte{}, fail: map[uint16]bool{}}
	s, err := newSelector(bus, CCBMuxAddr, layout{
		name:                "test",
		numChains:           8,
		tempAddrs:           ccbTempAddrs,
		sharedSensorPerPair: true,
		hasWiper:            true,
	})
	require.NoError(t, err)
	return s, bus
}

func TestTempQuirkBit7Set(t *testing.T) {
	s, bus := newTestSelector(t)
	bus.reads[ccbTempAddrs[0]] = 0x91 // bit 7 spuriously set, corrects to 0x11 = 17C
	c, ok := s.Temp(0)
	assert.True(t, ok)
	assert.Equal(t, 17, c)
}

func TestTempInvalidAboveHundredReturnsCached(t *testing.T) {
	s, bus := newTestSelector(t)
	bus.reads[ccbTempAddrs[0]] = 42
	c, ok := s.Temp(0)
	require.True(t, ok)
	require.Equal(t, 42, c)

	// Next reading is corrected to >100 (e.g. raw 0xf5 -> 0x75 = 117), which
	// is invalid; the selector should fall back to the cached value.
	bus.reads[ccbTempAddrs[0]] = 0xf5
	c, ok = s.Temp(0)
	assert.True(t, ok)
	assert.Equal(t, 42, c)
}

func TestTempSharedAcrossPair(t *testing.T) {
	s, bus := newTestSelector(t)
	bus.reads[ccbTempAddrs[0]] = 33
	// Chain 1 (odd) shares chain 0's sensor.
	c, ok := s.Temp(1)
	assert.True(t, ok)
	assert.Equal(t, 33, c)
}

func TestSelectReleaseMutualExclusion(t *testing.T) {
	s, _ := newTestSelector(t)
	require.NoError(t, s.Select(2))
	assert.Equal(t, byte(1<<2), s.chainMask)
	s.Release()
	require.NoError(t, s.Select(3))
	s.Release()
}
