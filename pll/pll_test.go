// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pll

import (
	"context"
	"testing"
	"time"

	"github.com/bitmine-a1/a1drv/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize16to800Mhz(t *testing.T) {
	p := Synthesize(16000, 800000)
	assert.Equal(t, 50, p.FBDiv)
	assert.Equal(t, 1, p.PreDiv)
	assert.Equal(t, 1, p.PostDiv)
	assert.Equal(t, 800000, p.ActualKhz(16000))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for preDiv := 1; preDiv <= 31; preDiv++ {
		for postDiv := 1; postDiv <= 3; postDiv++ {
			for fbDiv := 1; fbDiv <= 511; fbDiv += 17 {
				p := Params{PreDiv: preDiv, PostDiv: postDiv, FBDiv: fbDiv}
				reg := Encode(p)
				got := Decode(reg[0], reg[1])
				assert.Equal(t, p, got)
			}
		}
	}
}

func TestEncodeFixedTail(t *testing.T) {
	reg := Encode(Params{PreDiv: 1, PostDiv: 1, FBDiv: 50})
	assert.Equal(t, byte(0x21), reg[2])
	assert.Equal(t, byte(0x84), reg[3])
	assert.Equal(t, byte(0x00), reg[4])
	assert.Equal(t, byte(0x00), reg[5])
}

func TestSynthesizeMonotonicity(t *testing.T) {
	refs := []int{16000, 25000}
	targets := []int{200000, 400000, 600000, 800000, 1000000}
	for _, ref := range refs {
		for _, target := range targets {
			p := Synthesize(ref, target)
			actual := p.ActualKhz(ref)
			diff := target - actual
			if diff < 0 {
				diff = -diff
			}
			maxErr := ref / (2 * p.PreDiv * (1 << uint(p.PostDiv-1)))
			assert.LessOrEqual(t, diff, maxErr, "ref=%d target=%d", ref, target)
		}
	}
}

type fakeFramer struct {
	lockOnPoll int
	reads      int
	payload    protocol.RegPayload
}

func (f *fakeFramer) ReadRegister(chipID byte) (*protocol.ReadRegResult, error) {
	f.reads++
	payload := f.payload
	if f.reads < f.lockOnPoll {
		payload[4] = 0 // not yet locked
	}
	return &protocol.ReadRegResult{Chip: chipID, Payload: payload}, nil
}

func TestVerifyLockFirstPoll(t *testing.T) {
	written := protocol.RegPayload{0x42, 0x32, 0x21, 0x84, 0x01, 0x00}
	f := &fakeFramer{lockOnPoll: 1, payload: written}
	err := VerifyLock(context.Background(), f, 1, written, 25, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, f.reads)
}

func TestVerifyLockAllEachChipOnce(t *testing.T) {
	written := protocol.RegPayload{0x42, 0x32, 0x21, 0x84, 0x01, 0x00}
	f := &fakeFramer{lockOnPoll: 1, payload: written}
	err := VerifyLockAll(context.Background(), f, 4, written, 25, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, f.reads, "each of the 4 chips verified exactly once")
}
