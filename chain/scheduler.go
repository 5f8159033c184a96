// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"context"

	"github.com/bitmine-a1/a1drv/protocol"
)

// loadChips runs one scheduler pass per §4.6: for each active chip from
// NumActiveChips down to 1, READ_REG, interpret the queue state, and load
// zero, one or two work items into free hardware FIFO slots. Returns true if
// any slot was loaded.
func (c *Chain) loadChips(ctx context.Context) bool {
	loaded := false
	for i := c.NumActiveChips; i >= 1; i-- {
		select {
		case <-ctx.Done():
			return loaded
		default:
		}
		chip := c.chips[i-1]
		if chip.Status != Active {
			continue
		}

		reg, err := c.framer.ReadRegister(byte(chip.ChipID))
		if err != nil {
			c.disableChip(chip)
			continue
		}

		switch qstate := reg.QueueState; qstate {
		case 3:
			// FIFO full, nothing to do this pass.
		case 2:
			c.log.Warn("invalid queue state", "chain", c.ChainID, "chip", chip.ChipID)
		case 0:
			// A failed load puts the chip into cooldown; stop loading it.
			if c.loadOneSlot(chip) {
				loaded = true
				c.loadOneSlot(chip)
			}
		case 1:
			if c.loadOneSlot(chip) {
				loaded = true
			}
		}

		if reg.QueueBuf != 0 {
			_, jobID := chip.NextSlot()
			if jobID == reg.QueueBuf&0x0f || jobID == (reg.QueueBuf>>4)&0x0f {
				c.log.Warn("job id overlap", "chain", c.ChainID, "chip", chip.ChipID, "job_id", jobID)
			}
		}
	}
	return loaded
}

// loadOneSlot dequeues one work item (if any) and writes it into chip's next
// hardware FIFO slot, completing any work the slot previously held.
func (c *Chain) loadOneSlot(chip *Chip) bool {
	if len(c.workQueue) == 0 {
		return false
	}
	w := c.workQueue[0]
	c.workQueue = c.workQueue[1:]

	slot, jobID := chip.NextSlot()
	if existing := chip.Work[slot]; existing != nil {
		c.fw.WorkCompleted(existing)
		chip.NonceRangesDone++
		c.nonceRangesProcessed++
	}

	job := protocol.BuildJob(jobID, byte(chip.ChipID), w.Midstate, w.DataTail, c.overrideDiff(w))
	if err := c.framer.WriteJob(byte(chip.ChipID), job); err != nil {
		c.fw.WorkCompleted(w)
		c.disableChip(chip)
		return false
	}

	chip.AdvanceSlot(w)
	return true
}

// overrideDiff resolves the effective target difficulty for a work item per
// §6: 0 uses the pool difficulty carried on the work item itself, -1 forces
// diff-1, and a positive value clamps to that difficulty.
func (c *Chain) overrideDiff(w *Work) int {
	switch {
	case c.cfg.OverrideDiff == 0:
		return w.DeviceDiff
	case c.cfg.OverrideDiff < 0:
		return 1
	default:
		return c.cfg.OverrideDiff
	}
}
