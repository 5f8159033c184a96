// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"context"
	"time"

	"github.com/bitmine-a1/a1drv/pll"
	"github.com/bitmine-a1/a1drv/protocol"
)

// drainNonces implements the §4.7 nonce-drain loop: poll READ_RESULT_BCAST
// until the output queue reports empty, validating and submitting each
// result, and driving the auto-tuner and its clock-change procedure. It
// returns true if at least one nonce was processed.
func (c *Chain) drainNonces(ctx context.Context) bool {
	did := false
	for {
		select {
		case <-ctx.Done():
			return did
		default:
		}

		res, err := c.framer.ReadResultBcast()
		if err != nil {
			return did
		}
		if res == nil {
			return did
		}
		did = true

		// 1 <= chip_id <= num_active_chips, 1 <= job_id <= 4, each checked
		// as an || across its two bounds (see DESIGN.md): an out-of-range
		// chip_id is discarded, an out-of-range job_id also flushes the bus.
		if res.ChipID < 1 || int(res.ChipID) > c.NumActiveChips {
			continue
		}
		if res.JobID < 1 || res.JobID > 4 {
			if err := c.framer.Flush(); err != nil {
				c.log.Warn("nonce drain: flush failed", "chain", c.ChainID, "err", err)
			}
			continue
		}

		chip := c.chips[res.ChipID-1]
		slot := int(res.JobID - 1)
		w := chip.Work[slot]
		if w == nil {
			chip.Stales++
			continue
		}

		chip.NoncesFound++
		ok := c.fw.SubmitNonce(w, res.Nonce)
		if ok {
			OnGoodNonce(chip)
			continue
		}

		c.nonceRangesProcessed -= int64(w.DeviceDiff)
		newClk, change := OnBadNonce(chip, c.tunerCfg, time.Now())
		if change {
			c.retune(chip, newClk)
		}
	}
}

// checkWindowEnds evaluates the §4.8 up-tune path for every active chip
// whose sampling window has reached its natural end.
func (c *Chain) checkWindowEnds() {
	now := time.Now()
	for _, chip := range c.chips {
		if chip.Status != Active {
			continue
		}
		if newClk, change := OnWindowEnd(chip, c.tunerCfg, now); change {
			c.retune(chip, newClk)
		}
	}
}

// retune applies the §4.8 clock-change procedure to chip: RESET(0xE5) to
// abort in-flight jobs while preserving PLL, flush all four work slots back
// to the framework, re-synthesize and write the PLL for newClkKhz. Any
// failure is treated as a persistent chip fault.
func (c *Chain) retune(chip *Chip, newClkKhz int) {
	oldClk := chip.Cur.SysClkKhz

	if err := c.framer.Reset(byte(chip.ChipID), protocol.ResetAbort, true); err != nil {
		c.disableChip(chip)
		return
	}
	for i, w := range chip.Work {
		if w != nil {
			c.fw.WorkCompleted(w)
			chip.Work[i] = nil
		}
	}

	params := pll.Synthesize(c.cfg.RefClkKhz, newClkKhz)
	reg := pll.Encode(params)
	if err := c.framer.WriteRegister(byte(chip.ChipID), reg); err != nil {
		c.disableChip(chip)
		return
	}
	if err := pll.VerifyLock(context.Background(), c.framer, byte(chip.ChipID), reg, 25, 40*time.Millisecond); err != nil {
		c.disableChip(chip)
		return
	}

	ratio := chip.Ratio()
	now := time.Now()
	actualKhz := params.ActualKhz(c.cfg.RefClkKhz)
	CommitClockChange(chip, now, actualKhz)
	if c.statSink != nil {
		c.statSink(FormatTuneLine(now, c.ChainID, chip.ChipID, oldClk, actualKhz, ratio))
	}
}
