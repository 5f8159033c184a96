// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"context"
	"io"
	"testing"

	"github.com/bitmine-a1/a1drv/pll"
	"github.com/bitmine-a1/a1drv/protocol"
	"github.com/bitmine-a1/a1drv/conn/spi"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnumConn models just enough A1 register state to drive enumerateChain
// end to end: DetectChainLength's raw reset-echo scan (identified by its
// distinctively large transfer size), WRITE_REG storing the last register
// written per chip (0 is broadcast, applied to every chip), READ_REG
// echoing that register back locked with a configurable core count, and a
// generic opcode-echo ack for every other broadcast command.
type fakeEnumConn struct {
	numChipsDetected int
	regs             map[byte]protocol.RegPayload
	coresByChip      map[byte]byte
}

func (f *fakeEnumConn) regFor(chipID byte) protocol.RegPayload {
	if r, ok := f.regs[chipID]; ok {
		return r
	}
	return f.regs[0]
}

func (f *fakeEnumConn) Tx(w, r []byte) error {
	n := len(r)
	if n > 100 {
		// DetectChainLength's single oversized raw transfer.
		if f.numChipsDetected > 0 {
			off := 6 + 2*(f.numChipsDetected-1)
			if off+1 < n {
				r[off] = byte(protocol.Reset)
				r[off+1] = 0
			}
		}
		return nil
	}

	switch w[0] & 0x0f {
	case byte(protocol.WriteReg) & 0x0f:
		chipID := w[1]
		var reg protocol.RegPayload
		copy(reg[:], w[2:8])
		if f.regs == nil {
			f.regs = map[byte]protocol.RegPayload{}
		}
		f.regs[chipID] = reg
		if n >= 2 {
			copy(r[n-2:], w[:2])
		}
	case byte(protocol.ReadReg) & 0x0f:
		chipID := w[1]
		reg := f.regFor(chipID)
		cores := f.coresByChip[chipID]
		resp := []byte{byte(protocol.ReadRegResp), chipID, reg[0], reg[1], 0, 0, 1, cores}
		if n >= len(resp) {
			copy(r[n-len(resp):], resp)
		}
	default:
		if n >= 2 {
			copy(r[n-2:], w[:2])
		}
	}
	return nil
}

func (f *fakeEnumConn) TxPackets(p []spi.Packet) error { return nil }

func baseTestConfig() *Config {
	return &Config{
		RefClkKhz:  16000,
		SysClkKhz:  800000,
		SpiClkKhz:  4000,
		LowerClkKhz: 200000,
		UpperClkKhz: 900000,
	}
}

// TestEnumerateWeakChipReplannedButActive covers a chip reporting
// num_cores=28 (below weakCoreThreshold, at or above brokenCoreThreshold):
// it must stay Active and have its PLL re-planned to weakReplanKhz.
func TestEnumerateWeakChipReplannedButActive(t *testing.T) {
	conn := &fakeEnumConn{
		numChipsDetected: 1,
		coresByChip:      map[byte]byte{1: 28},
	}
	sel := &fakeSelector{}
	cfg := baseTestConfig()
	logger := log.New(io.Discard)

	c, err := enumerateChain(context.Background(), 0, sel, fakePort{}, conn, cfg, &fakeFramework{}, logger)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Len(t, c.chips, 1)

	chip := c.chips[0]
	assert.Equal(t, Active, chip.Status)
	assert.Equal(t, 28, c.NumCores)

	gotReg := conn.regs[1]
	wantReg := pll.Encode(pll.Synthesize(cfg.RefClkKhz, weakReplanKhz))
	assert.Equal(t, wantReg[0], gotReg[0])
	assert.Equal(t, wantReg[1], gotReg[1])
}

// TestEnumerateBrokenChipDisabled covers a chip reporting num_cores below
// brokenCoreThreshold: it must be classified Disabled and excluded from the
// chain's active core count.
func TestEnumerateBrokenChipDisabled(t *testing.T) {
	conn := &fakeEnumConn{
		numChipsDetected: 1,
		coresByChip:      map[byte]byte{1: 10},
	}
	sel := &fakeSelector{}
	cfg := baseTestConfig()
	logger := log.New(io.Discard)

	c, err := enumerateChain(context.Background(), 0, sel, fakePort{}, conn, cfg, &fakeFramework{}, logger)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Len(t, c.chips, 1)

	assert.Equal(t, Disabled, c.chips[0].Status)
	assert.Equal(t, 0, c.NumCores)
}

// TestEnumerateNoChainReturnsNilNil covers the masked/unpopulated-chain case:
// enumerateChain must report (nil, nil), not an error.
func TestEnumerateNoChainReturnsNilNil(t *testing.T) {
	conn := &fakeEnumConn{numChipsDetected: 0}
	sel := &fakeSelector{}
	cfg := baseTestConfig()
	logger := log.New(io.Discard)

	c, err := enumerateChain(context.Background(), 0, sel, fakePort{}, conn, cfg, &fakeFramework{}, logger)
	assert.NoError(t, err)
	assert.Nil(t, c)
}
