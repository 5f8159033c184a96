// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadNonceUptickOverThreshold(t *testing.T) {
	cfg := TunerConfig{LowerClkKhz: 400000, UpperClkKhz: 1100000, LowerRatioPm: 3, UpperRatioPm: 20, Enabled: true}
	now := time.Now()
	c := NewChip(1, 32)
	ResetWindow(c, now, 800000)

	for i := 0; i < 95; i++ {
		OnGoodNonce(c)
	}
	var newClk int
	var change bool
	for i := 0; i < 5; i++ {
		newClk, change = OnBadNonce(c, cfg, now)
	}
	require.True(t, change, "5th bad nonce should push ratio over the threshold")
	assert.Equal(t, 800000-ClockStepKhz, newClk)

	CommitClockChange(c, now, newClk)
	assert.Equal(t, 800000, c.Prev.SysClkKhz)
	assert.Less(t, c.Cur.SysClkKhz, c.Prev.SysClkKhz)
}

func TestAutoTunerNeverExceedsBounds(t *testing.T) {
	cfg := TunerConfig{LowerClkKhz: 400000, UpperClkKhz: 1100000, LowerRatioPm: 3, UpperRatioPm: 20, Enabled: true}
	now := time.Now()
	c := NewChip(1, 32)
	ResetWindow(c, now, 1099000)
	c.Prev.SysClkKhz = 1099000
	c.Cur.End = now.Add(-time.Second) // force window-end path
	for i := 0; i < MinNumNonces; i++ {
		OnGoodNonce(c)
	}
	newClk, change := OnWindowEnd(c, cfg, now)
	if change {
		assert.LessOrEqual(t, newClk, cfg.UpperClkKhz)
	}
}

func TestAutoTunerDisabled(t *testing.T) {
	cfg := TunerConfig{LowerClkKhz: 400000, UpperClkKhz: 1100000, LowerRatioPm: 3, UpperRatioPm: 20, Enabled: false}
	now := time.Now()
	c := NewChip(1, 32)
	ResetWindow(c, now, 800000)
	for i := 0; i < 50; i++ {
		OnBadNonce(c, cfg, now)
	}
	_, change := OnBadNonce(c, cfg, now)
	assert.False(t, change, "disabled tuner must never change the clock")
}
