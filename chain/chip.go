// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package chain implements chip and chain lifecycle, the per-chip job
// scheduler and nonce pump, the windowed auto-tuner, and the host-framework
// contract (scanwork/queue_full/flush_work) that ties them together.
package chain

import "time"

// Status is a chip's place in the Active -> Cooling -> Disabled state
// machine (see CooldownDuration and FailThreshold).
type Status int

const (
	// Active participates in scheduling and nonce accounting.
	Active Status = iota
	// Cooling is a transient fault state; the chip is retried after
	// CooldownDuration.
	Cooling
	// Disabled is terminal for the session: the chip is permanently skipped.
	Disabled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Cooling:
		return "cooling"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

const (
	// CooldownDuration is how long a chip stays in Cooling before a
	// READ_REG retry is attempted.
	CooldownDuration = 30 * time.Second
	// FailThreshold bounds the consecutive READ_REG failures while Cooling:
	// a chip becomes Disabled once its FailCount exceeds this value.
	FailThreshold = 3
)

// AutotuneWindow is one sampling window of the auto-tuner's good/bad nonce
// ratio tracking.
type AutotuneWindow struct {
	SharesOK  int
	SharesNOK int
	Start     time.Time
	End       time.Time
	SysClkKhz int
}

// Chip is one A1 die in a chain.
type Chip struct {
	// ChipID is the 1-based position in the chain; 1 is closest to the host.
	ChipID int
	// NumCores is the active hash core count reported by READ_REG during
	// BIST.
	NumCores int

	// Work is the four-slot ring mirroring the chip's hardware job FIFO.
	// LastQueuedID in [0,3] is the next slot to fill (mod 4).
	Work         [4]*Work
	LastQueuedID int

	Status        Status
	CooldownBegin time.Time
	FailCount     int

	HWErrors        int
	Stales          int
	NoncesFound     int
	NonceRangesDone int

	Cur  AutotuneWindow
	Prev AutotuneWindow
}

// NewChip returns a freshly detected, active chip with the given core count.
func NewChip(chipID, numCores int) *Chip {
	return &Chip{ChipID: chipID, NumCores: numCores, Status: Active}
}

// BeginCooldown transitions an Active chip to Cooling after a SPI fault.
func (c *Chip) BeginCooldown(now time.Time) {
	c.Status = Cooling
	c.CooldownBegin = now
}

// TryRecover runs the Cooling -> {Active, Cooling, Disabled} transition.
// readRegOK reports whether a READ_REG retry succeeded. It returns the
// number of cores to subtract from the chain total if the chip just became
// Disabled (otherwise 0).
func (c *Chip) TryRecover(now time.Time, readRegOK bool) (coresLost int) {
	if c.Status != Cooling {
		return 0
	}
	if now.Before(c.CooldownBegin.Add(CooldownDuration)) {
		return 0
	}
	if readRegOK {
		c.Status = Active
		c.FailCount = 0
		return 0
	}
	c.FailCount++
	c.CooldownBegin = now
	if c.FailCount > FailThreshold {
		c.Status = Disabled
		return c.NumCores
	}
	return 0
}

// NextSlot returns the slot index WriteJob should fill next and the job id
// (1..4) it goes out on the wire as.
func (c *Chip) NextSlot() (slot int, jobID byte) {
	slot = c.LastQueuedID
	jobID = byte(slot + 1)
	return slot, jobID
}

// AdvanceSlot stores w into the next slot and advances LastQueuedID.
func (c *Chip) AdvanceSlot(w *Work) {
	c.Work[c.LastQueuedID] = w
	c.LastQueuedID = (c.LastQueuedID + 1) % 4
}

// InFlight counts the non-nil work slots.
func (c *Chip) InFlight() int {
	n := 0
	for _, w := range c.Work {
		if w != nil {
			n++
		}
	}
	return n
}
