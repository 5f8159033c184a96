// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pll synthesizes the A1 chip's PLL register values for a target
// system clock and verifies that the chip has locked onto them.
package pll

import (
	"context"
	"fmt"
	"time"

	"github.com/bitmine-a1/a1drv/protocol"
)

// Params is a synthesized PLL configuration.
type Params struct {
	PreDiv  int // [1,31]
	PostDiv int // [1,3]
	FBDiv   int // [1,511]
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Synthesize derives (pre_div, post_div, fb_div) such that
// sys = (ref * fb_div) / (pre_div * 2^(post_div-1)), for the given reference
// and target system clocks, both in kHz.
func Synthesize(refKhz, sysKhz int) Params {
	g := gcd(refKhz, sysKhz)
	fbDiv := sysKhz / g
	n := refKhz / g

	if fbDiv > 511 {
		f := fbDiv / n
		var m int
		switch {
		case f < 32:
			m = 16
		case f < 64:
			m = 8
		case f < 128:
			m = 4
		default:
			m = 1
		}
		// The source's "(256<2)?2:1" branch is unreachable dead code (256<2
		// is always false) and is intentionally not encoded here.
		fbDiv = m * fbDiv / n
		n = m
	}

	var postDiv int
	switch {
	case n&3 == 0:
		postDiv = 3
	case n&1 == 0:
		postDiv = 2
	default:
		postDiv = 1
	}

	preDiv := n / (1 << uint(postDiv-1))
	if preDiv > 31 {
		fbDiv = 31 * fbDiv / preDiv
		preDiv = 31
	}
	if preDiv < 1 {
		preDiv = 1
	}
	if fbDiv < 1 {
		fbDiv = 1
	}
	if fbDiv > 511 {
		fbDiv = 511
	}

	return Params{PreDiv: preDiv, PostDiv: postDiv, FBDiv: fbDiv}
}

// ActualKhz returns the system clock this Params configuration actually
// produces given a reference clock, in kHz.
func (p Params) ActualKhz(refKhz int) int {
	return (refKhz * p.FBDiv) / (p.PreDiv * (1 << uint(p.PostDiv-1)))
}

// Encode packs Params into the 6-byte register block. The remaining four
// bytes are the fixed 0x21 0x84 0x00 0x00 tail; the PLL lock bit is read back
// in byte 4 bit 0, not written here.
func Encode(p Params) protocol.RegPayload {
	var reg protocol.RegPayload
	reg[0] = byte(p.PostDiv<<6) | byte(p.PreDiv<<1) | byte(p.FBDiv>>8)
	reg[1] = byte(p.FBDiv & 0xff)
	reg[2] = 0x21
	reg[3] = 0x84
	reg[4] = 0x00
	reg[5] = 0x00
	return reg
}

// Decode unpacks the first two bytes of a PLL register block back into
// Params. It is the round-trip inverse of Encode for the first two bytes.
func Decode(b0, b1 byte) Params {
	return Params{
		PostDiv: int(b0 >> 6),
		PreDiv:  int((b0 >> 1) & 0x1f),
		FBDiv:   (int(b0&1) << 8) | int(b1),
	}
}

// framer is the subset of protocol.Framer that VerifyLock and VerifyLockAll
// need; satisfied by *protocol.Framer.
type framer interface {
	ReadRegister(chipID byte) (*protocol.ReadRegResult, error)
}

// VerifyLock polls READ_REG on chipID up to maxPolls times, sleeping
// pollInterval between attempts, until the PLL lock bit is set and the
// readback of the first two register bytes matches what was written.
func VerifyLock(ctx context.Context, f framer, chipID byte, written protocol.RegPayload, maxPolls int, pollInterval time.Duration) error {
	for i := 0; i < maxPolls; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		res, err := f.ReadRegister(chipID)
		if err == nil && res.Payload.Lock() && res.Payload[0] == written[0] && res.Payload[1] == written[1] {
			return nil
		}
		if i < maxPolls-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
	return fmt.Errorf("pll: chip %d did not lock within %d polls", chipID, maxPolls)
}

// VerifyLockAll verifies PLL lock on every chip in [1, numActiveChips], each
// chip exactly once. The source's check_chip_pll_lock bug re-verified the
// outer loop's chip_id on every iteration instead of each chip's own id;
// this verifies each chip once, per the spec's correctness-over-bug-fidelity
// instruction.
func VerifyLockAll(ctx context.Context, f framer, numActiveChips int, written protocol.RegPayload, maxPolls int, pollInterval time.Duration) error {
	for chip := 1; chip <= numActiveChips; chip++ {
		if err := VerifyLock(ctx, f, byte(chip), written, maxPolls, pollInterval); err != nil {
			return err
		}
	}
	return nil
}
