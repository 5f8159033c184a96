// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitmine-a1/a1drv/boardsel"
	"github.com/bitmine-a1/a1drv/conn/physic"
	"github.com/bitmine-a1/a1drv/conn/spi"
	"github.com/bitmine-a1/a1drv/protocol"
	"github.com/charmbracelet/log"
)

// IdleSleep is how long ScanWork sleeps between passes when there was
// nothing to do.
const IdleSleep = 120 * time.Millisecond

// TempThrottleSleep is how long ScanWork sleeps when the chain is over its
// configured cutoff temperature.
const TempThrottleSleep = 5 * time.Second

// Chain is one detected board/chip-select, owning its chips, work queue and
// SPI scratch buffers. Exactly one goroutine should call its exported
// methods at a time; the lock order is selector Select, then mu, released
// in reverse.
type Chain struct {
	ChainID int

	sel     boardsel.Selector
	framer  *protocol.Framer
	port    spi.PortCloser
	fw      Framework
	log     *log.Logger
	cfg     *Config
	tunerCfg TunerConfig
	cutoffTemp int

	// statSink receives one formatted line (see FormatTuneLine) per clock
	// change, if a stats file was configured. Nil is a valid "no sink".
	statSink func(string)

	mu sync.Mutex

	chips          []*Chip
	NumChips       int
	NumActiveChips int
	NumCores       int

	workQueue []*Work

	SysClkKhz  int
	SpiClkKhz  int
	Temp       int
	lastTemp   time.Time

	// nonceRangesProcessed is a signed accumulator: completed ranges add 1,
	// invalid nonces subtract the work's device difficulty. It is reported
	// to the framework left-shifted by 32, clipped to 0 when negative.
	nonceRangesProcessed int64
}

// QueueFull implements the §4.6 backpressure contract: it pulls one work
// item from the framework per call until the queue holds 2x the active chip
// count, then reports full. If the framework has no work available it is
// also treated as full (backoff).
func (c *Chain) QueueFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	capacity := 2 * c.NumActiveChips
	if len(c.workQueue) >= capacity {
		return true
	}
	w, ok := c.fw.NextWork()
	if !ok {
		return true
	}
	c.workQueue = append(c.workQueue, w)
	return len(c.workQueue) >= capacity
}

// FlushWork is a cooperative cancel: it issues RESET(0xE5) broadcast to stop
// on-chip hashing, completes every in-flight slot back to the framework, and
// drops the queue. It is best-effort: failures are logged, never returned.
func (c *Chain) FlushWork() {
	if err := c.sel.Select(c.ChainID); err != nil {
		c.log.Warn("flush: select failed", "chain", c.ChainID, "err", err)
		return
	}
	defer c.sel.Release()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.framer.Reset(0, protocol.ResetAbort, true); err != nil {
		c.log.Warn("flush: reset broadcast failed", "chain", c.ChainID, "err", err)
	}
	for _, chip := range c.chips {
		for i, w := range chip.Work {
			if w != nil {
				c.fw.WorkCompleted(w)
				chip.Work[i] = nil
			}
		}
	}
	c.workQueue = nil
}

// StatlinePrefix formats " {chain}:{active_chips}/{num_cores} {temp}".
func (c *Chain) StatlinePrefix() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf(" %d:%d/%d %d", c.ChainID, c.NumActiveChips, c.NumCores, c.Temp)
}

// ScanWork acquires the board selector, updates temperature, drains nonces,
// advances each chip's job queue, checks re-enable candidates, releases the
// selector, and returns a "hashes done" figure for the framework's
// accounting. It returns 0 without error if ctx is cancelled mid-pass.
func (c *Chain) ScanWork(ctx context.Context) (int64, error) {
	if err := c.sel.Select(c.ChainID); err != nil {
		return 0, fmt.Errorf("chain %d: select: %w", c.ChainID, err)
	}

	c.mu.Lock()

	// The SPI master context may be shared with other chains multiplexed by
	// the same selector; re-assert this chain's configured speed now that it
	// alone is live on the bus.
	if err := c.port.LimitSpeed(physic.Frequency(c.SpiClkKhz) * physic.KiloHertz); err != nil {
		c.log.Warn("scanwork: set speed failed", "chain", c.ChainID, "err", err)
	}

	if t, ok := c.sel.Temp(c.ChainID); ok {
		c.Temp = t
		c.lastTemp = time.Now()
	}
	if c.cutoffTemp > 0 && c.Temp >= c.cutoffTemp {
		// Release the selector and mutex before sleeping: both are shared
		// with every other chain on this board, and must not be held across
		// the throttle sleep (see driver-SPI-bitmine-A1.c's done: path).
		c.mu.Unlock()
		c.sel.Release()
		time.Sleep(TempThrottleSleep)
		return 0, nil
	}

	didWork := c.drainNonces(ctx)
	c.checkCooldowns()
	c.checkWindowEnds()
	loaded := c.loadChips(ctx)

	done := c.nonceRangesProcessed
	if done < 0 {
		done = 0
	}

	c.mu.Unlock()
	c.sel.Release()

	if ctx.Err() != nil {
		return 0, nil
	}
	if !didWork && !loaded {
		time.Sleep(IdleSleep)
	}

	return done << 32, nil
}

// checkCooldowns advances every Cooling chip's recovery state machine by
// issuing a READ_REG probe.
func (c *Chain) checkCooldowns() {
	now := time.Now()
	for _, chip := range c.chips {
		if chip.Status != Cooling {
			continue
		}
		if now.Before(chip.CooldownBegin.Add(CooldownDuration)) {
			continue
		}
		_, err := c.framer.ReadRegister(byte(chip.ChipID))
		lost := chip.TryRecover(now, err == nil)
		c.NumCores -= lost
	}
}

// disableChip transitions chip to Cooling (first fault) per §4.5.
func (c *Chain) disableChip(chip *Chip) {
	if chip.Status == Disabled {
		return
	}
	if chip.Status == Active {
		chip.BeginCooldown(time.Now())
		c.log.Warn("chip cooldown", "chain", c.ChainID, "chip", chip.ChipID)
	}
}
