// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/bitmine-a1/a1drv/boardsel"
	"github.com/bitmine-a1/a1drv/conn/physic"
	"github.com/bitmine-a1/a1drv/conn/spi"
	"github.com/bitmine-a1/a1drv/pll"
	"github.com/bitmine-a1/a1drv/protocol"
	"github.com/charmbracelet/log"
)

// bringUpSpiKhz is the conservative SPI master clock used for chain
// detection and BIST, before the configured operating speed is known to be
// safe.
const bringUpSpiKhz = 100

// conservativePLL is the broadcast PLL register written before detection:
// ~200 MHz at a 16 MHz reference, per §4.4 step 1.
var conservativePLL = protocol.RegPayload{0x82, 0x19, 0x21, 0x84, 0, 0}

// Core-count classification thresholds and their re-plan targets, per §4.4
// step 8.
const (
	brokenCoreThreshold = 26
	weakCoreThreshold   = 30
	brokenReplanKhz     = 400000
	weakReplanKhz       = 600000
)

// lockPolls and lockInterval bound the §4.3 PLL lock verification.
const (
	lockPolls    = 25
	lockInterval = 40 * time.Millisecond
)

// boardConfig resolves the per-board overrides for boardIdx, falling back to
// the chain-wide defaults when no per-board array was supplied.
type boardConfig struct {
	sysClkKhz   int
	spiClkKhz   int
	chipBitmask uint64
}

func resolveBoardConfig(cfg *Config, boardIdx int) boardConfig {
	bc := boardConfig{sysClkKhz: cfg.SysClkKhz, spiClkKhz: cfg.SpiClkKhz}
	if boardIdx < len(cfg.PerBoardSysClkKhz) {
		bc.sysClkKhz = cfg.PerBoardSysClkKhz[boardIdx]
	}
	if boardIdx < len(cfg.PerBoardSpiClkKhz) {
		bc.spiClkKhz = cfg.PerBoardSpiClkKhz[boardIdx]
	}
	if boardIdx < len(cfg.PerBoardChipBitmask) {
		bc.chipBitmask = cfg.PerBoardChipBitmask[boardIdx]
	}
	return bc
}

// enumerateChain runs detection and BIST for one board-selector chain slot.
// It returns (nil, nil), rather than an error, when the chain is masked out
// by cfg.BoardMask or when nothing responds on the bus — both are expected,
// non-exceptional outcomes of probing hardware that may not be populated.
// This resolves the source's init_A1_chain bool-from-pointer ambiguity (see
// DESIGN.md) with an idiomatic (*Chain, error) where nil,nil means "no chain
// here", distinct from a real error.
func enumerateChain(ctx context.Context, chainID int, sel boardsel.Selector, port spi.PortCloser, conn spi.Conn, cfg *Config, fw Framework, logger *log.Logger) (*Chain, error) {
	if cfg.BoardMask&(1<<uint(chainID)) != 0 {
		return nil, nil
	}
	bc := resolveBoardConfig(cfg, chainID)

	if err := sel.Select(chainID); err != nil {
		return nil, fmt.Errorf("chain %d: select: %w", chainID, err)
	}
	defer sel.Release()

	if err := sel.Reset(chainID); err != nil {
		return nil, fmt.Errorf("chain %d: hardware reset: %w", chainID, err)
	}
	if err := port.LimitSpeed(physic.Frequency(bringUpSpiKhz) * physic.KiloHertz); err != nil {
		return nil, fmt.Errorf("chain %d: bring-up speed: %w", chainID, err)
	}

	framer := protocol.NewFramer(conn)

	numChips, err := framer.DetectChainLength()
	if err != nil {
		return nil, fmt.Errorf("chain %d: detect: %w", chainID, err)
	}
	if numChips == 0 {
		return nil, nil
	}
	if cfg.OverrideChipNum > 0 && cfg.OverrideChipNum < numChips {
		numChips = cfg.OverrideChipNum
	}
	framer.SetNumChips(numChips)

	if err := framer.WriteRegister(0, conservativePLL); err != nil {
		return nil, fmt.Errorf("chain %d: conservative PLL: %w", chainID, err)
	}
	if err := framer.BistStart(); err != nil {
		return nil, fmt.Errorf("chain %d: BIST_START: %w", chainID, err)
	}

	params := pll.Synthesize(cfg.RefClkKhz, bc.sysClkKhz)
	reg := pll.Encode(params)
	if err := framer.WriteRegister(0, reg); err != nil {
		return nil, fmt.Errorf("chain %d: target PLL: %w", chainID, err)
	}

	if err := port.LimitSpeed(physic.Frequency(bc.spiClkKhz) * physic.KiloHertz); err != nil {
		return nil, fmt.Errorf("chain %d: operating speed: %w", chainID, err)
	}

	if err := pll.VerifyLockAll(ctx, framer, numChips, reg, lockPolls, lockInterval); err != nil {
		return nil, fmt.Errorf("chain %d: PLL lock: %w", chainID, err)
	}

	if err := framer.BistFix(); err != nil {
		return nil, fmt.Errorf("chain %d: BIST_FIX: %w", chainID, err)
	}

	chips := make([]*Chip, numChips)
	numCores := 0
	sysClkKhz := params.ActualKhz(cfg.RefClkKhz)
	for i := 1; i <= numChips; i++ {
		if bc.chipBitmask&(1<<uint(i-1)) != 0 {
			chips[i-1] = &Chip{ChipID: i, Status: Disabled}
			continue
		}

		res, err := framer.ReadRegister(byte(i))
		if err != nil {
			chips[i-1] = &Chip{ChipID: i, Status: Disabled}
			continue
		}
		cores := int(res.NumCores)

		chip := NewChip(i, cores)
		switch {
		case cores < brokenCoreThreshold:
			if err := replan(ctx, framer, cfg.RefClkKhz, byte(i), brokenReplanKhz); err != nil {
				logger.Warn("chain enumerate: broken chip re-plan failed", "chain", chainID, "chip", i, "err", err)
			}
			chip.Status = Disabled
		case cores < weakCoreThreshold:
			if err := replan(ctx, framer, cfg.RefClkKhz, byte(i), weakReplanKhz); err != nil {
				logger.Warn("chain enumerate: weak chip re-plan failed", "chain", chainID, "chip", i, "err", err)
				chip.Status = Disabled
			}
		}
		if chip.Status != Disabled {
			numCores += cores
		}
		chips[i-1] = chip
	}

	c := &Chain{
		ChainID:        chainID,
		sel:            sel,
		framer:         framer,
		port:           port,
		fw:             fw,
		log:            logger,
		cfg:            cfg,
		tunerCfg:       TunerConfig{LowerClkKhz: cfg.LowerClkKhz, UpperClkKhz: cfg.UpperClkKhz, LowerRatioPm: cfg.LowerRatioPm, UpperRatioPm: cfg.UpperRatioPm, Enabled: cfg.EnableAutoTune},
		cutoffTemp:     0,
		chips:          chips,
		NumChips:       numChips,
		NumActiveChips: numChips,
		NumCores:       numCores,
		SysClkKhz:      sysClkKhz,
		SpiClkKhz:      bc.spiClkKhz,
	}
	for _, chip := range chips {
		ResetWindow(chip, time.Now(), sysClkKhz)
	}

	if cfg.Wiper != 0 {
		if err := sel.SetWiper(chainID, cfg.Wiper); err != nil {
			logger.Warn("chain enumerate: set wiper failed", "chain", chainID, "err", err)
		}
	}

	return c, nil
}

// replan re-synthesizes and writes the PLL for a single chip that was
// classified BROKEN or WEAK during BIST, verifying lock before returning.
func replan(ctx context.Context, framer *protocol.Framer, refKhz int, chipID byte, targetKhz int) error {
	params := pll.Synthesize(refKhz, targetKhz)
	reg := pll.Encode(params)
	if err := framer.WriteRegister(chipID, reg); err != nil {
		return err
	}
	return pll.VerifyLock(ctx, framer, chipID, reg, lockPolls, lockInterval)
}
