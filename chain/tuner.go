// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import "time"

// NonceIntervalN is the number of nonce ranges a window is sized to sample
// before its natural expiry.
const NonceIntervalN = 200

// MinNumNonces is the minimum sample size (ok+nok) before a ratio is
// considered meaningful.
const MinNumNonces = 30

// ClockStepKhz is the step size for both up- and down-tune clock changes.
const ClockStepKhz = 4000

// TunerConfig holds the auto-tuner's operating bounds, sourced from Config.
type TunerConfig struct {
	LowerClkKhz  int
	UpperClkKhz  int
	LowerRatioPm int
	UpperRatioPm int
	Enabled      bool
}

// noncesPerSec estimates the expected nonce-range completion rate for a chip
// at the given core count and clock, used to size the sampling window so it
// scales inversely with expected throughput.
func noncesPerSec(numCores, sysClkKhz int) float64 {
	return float64(numCores*sysClkKhz) / 4294967.296
}

// ResetWindow starts a fresh sampling window for chip at sysClkKhz.
func ResetWindow(c *Chip, now time.Time, sysClkKhz int) {
	c.Cur = AutotuneWindow{Start: now, SysClkKhz: sysClkKhz}
	rate := noncesPerSec(c.NumCores, sysClkKhz)
	if rate <= 0 {
		c.Cur.End = now
		return
	}
	c.Cur.End = now.Add(time.Duration(float64(NonceIntervalN) * 1000 / rate * float64(time.Millisecond)))
}

// ratioPermille computes the permille-bad ratio for a sample, and whether the
// sample is large enough (>= MinNumNonces) to be meaningful.
func ratioPermille(ok, nok int) (pm int, meaningful bool) {
	all := ok + nok
	if all < MinNumNonces {
		return -1, false
	}
	return (1000*nok + all/2) / all, true
}

// Ratio returns the current window's permille-bad ratio, or -1 if the
// sample is too small to be meaningful yet.
func (c *Chip) Ratio() int {
	pm, ok := ratioPermille(c.Cur.SharesOK, c.Cur.SharesNOK)
	if !ok {
		return -1
	}
	return pm
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OnBadNonce is evaluated once per bad nonce observed on chip. It returns a
// target clock and true if a down-tune should be performed; the caller is
// responsible for applying it (RESET, flush, re-PLL) and then calling
// CommitClockChange. If no change is warranted, change is false: below 5
// bad nonces in the window it keeps accumulating, otherwise OnBadNonce
// resets the window itself.
func OnBadNonce(c *Chip, cfg TunerConfig, now time.Time) (newClkKhz int, change bool) {
	c.Cur.SharesNOK++
	if !cfg.Enabled {
		return 0, false
	}
	if c.Cur.SharesNOK < 5 {
		return 0, false
	}
	pm := c.Ratio()
	if pm > cfg.UpperRatioPm && c.Cur.SysClkKhz > cfg.LowerClkKhz {
		target := clamp(c.Cur.SysClkKhz-ClockStepKhz, cfg.LowerClkKhz, cfg.UpperClkKhz)
		return target, true
	}
	ResetWindow(c, now, c.Cur.SysClkKhz)
	return 0, false
}

// OnGoodNonce records a good nonce against the current window.
func OnGoodNonce(c *Chip) {
	c.Cur.SharesOK++
}

// OnWindowEnd is evaluated once a window's natural end time is reached. It
// only ever proposes an up-tune, and only if the clock was not already
// reduced by a prior down-tune this window (sys_clk >= prev.sys_clk, i.e. no
// proven regression since the last successful change).
func OnWindowEnd(c *Chip, cfg TunerConfig, now time.Time) (newClkKhz int, change bool) {
	if !cfg.Enabled || now.Before(c.Cur.End) {
		return 0, false
	}
	if c.Cur.SysClkKhz < c.Prev.SysClkKhz {
		ResetWindow(c, now, c.Cur.SysClkKhz)
		return 0, false
	}
	pm := c.Ratio()
	if pm >= 0 && pm < cfg.LowerRatioPm {
		target := clamp(c.Cur.SysClkKhz+ClockStepKhz, cfg.LowerClkKhz, cfg.UpperClkKhz)
		return target, true
	}
	ResetWindow(c, now, c.Cur.SysClkKhz)
	return 0, false
}

// CommitClockChange rolls the window state forward after a successful clock
// change: the current window becomes Prev, and a fresh Cur window starts at
// the new clock.
func CommitClockChange(c *Chip, now time.Time, newClkKhz int) {
	c.Prev = c.Cur
	ResetWindow(c, now, newClkKhz)
}
