// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPollLen(t *testing.T) {
	// Targeted poll = r + 4c - 2.
	assert.Equal(t, 6+4*3-2, pollLen(6, 3, 8))
	// Broadcast poll = r + 4n.
	assert.Equal(t, 6+4*4, pollLen(6, 0, 4))
	// Broadcast, chain length unknown: assume 8 chips.
	assert.Equal(t, 6+4*8, pollLen(6, 0, 0))
}

func TestTargetForDifficulty1(t *testing.T) {
	got := targetForDifficulty(1)
	assert.Equal(t, [4]byte{0xff, 0xff, 0x00, 0x1d}, got)
}

func TestTargetForDifficulty256(t *testing.T) {
	d1 := targetForDifficulty(1)
	d256 := targetForDifficulty(256)
	assert.Equal(t, d1[3]-1, d256[3], "exponent should decrease by one")
	mantissa := uint64(d256[0]) | uint64(d256[1])<<8 | uint64(d256[2])<<16
	assert.GreaterOrEqual(t, mantissa, uint64(0x8000))
	assert.Less(t, mantissa, uint64(0x800000))
}

func TestBuildJobLayout(t *testing.T) {
	var midstate [32]byte
	for i := range midstate {
		midstate[i] = byte(i + 1)
	}
	var wdata [12]byte
	for i := range wdata {
		wdata[i] = byte(0x80 + i)
	}
	job := BuildJob(2, 5, midstate, wdata, 0)

	assert.Equal(t, byte(0x27), job[0], "job_id nibble 2 | WRITE_JOB opcode")
	assert.Equal(t, byte(5), job[1])
	// First midstate dword byte-reversed.
	assert.Equal(t, []byte{4, 3, 2, 1}, job[2:6])
	// Start nonce is zero.
	assert.Equal(t, []byte{0, 0, 0, 0}, job[46:50])
	// Default target is diff-1.
	assert.Equal(t, []byte{0xff, 0xff, 0x00, 0x1d}, job[50:54])
	// End nonce is ffffffff.
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, job[54:58])
}

func TestBuildJobOverrideDiff(t *testing.T) {
	var midstate [32]byte
	var wdata [12]byte
	job := BuildJob(1, 1, midstate, wdata, 256)
	assert.NotEqual(t, []byte{0xff, 0xff, 0x00, 0x1d}, job[50:54])
}

type fakeConn struct {
	tx        func(w, r []byte) error
	lastWrite []byte
}

func (f *fakeConn) Tx(w, r []byte) error {
	f.lastWrite = append([]byte(nil), w...)
	return f.tx(w, r)
}

// TestTransactRawAckOffsetTargeted pins transactRaw's poll/ack-offset
// arithmetic against the ground-truth formula (A1-layer-SPI.c's exec_cmd):
// poll length is computed from the bare resp_len, and ack_len is tx_len plus
// resp_len, not header+resp_len.
func TestTransactRawAckOffsetTargeted(t *testing.T) {
	fc := &fakeConn{tx: func(w, r []byte) error { return nil }}
	f := NewFramer(fc)
	ack, err := f.transactRaw(byte(ReadReg), 5, nil, 6)
	assert.NoError(t, err)
	// txLen = header(2) + payload(0) = 2
	// poll = resp_len(6) + 4*chip_id(5) - 2 = 24
	// total = 26; ack_len = tx_len(2) + resp_len(6) = 8; start = 26-8 = 4*5-2.
	assert.Equal(t, 26, len(fc.lastWrite))
	assert.Equal(t, 8, len(ack))
}

// TestTransactRawAckOffsetWriteJob covers the 56-byte WRITE_JOB payload case,
// where the header-only ack_len formula and the correct tx_len-based one
// diverge sharply.
func TestTransactRawAckOffsetWriteJob(t *testing.T) {
	fc := &fakeConn{tx: func(w, r []byte) error { return nil }}
	f := NewFramer(fc)
	ack, err := f.transactRaw(0x27, 3, make([]byte, 56), 0)
	assert.NoError(t, err)
	// txLen = header(2) + payload(56) = 58
	// poll = resp_len(0) + 4*chip_id(3) - 2 = 10
	// total = 68; ack_len = tx_len(58) + resp_len(0) = 58; start = 68-58 = 4*3-2.
	assert.Equal(t, 68, len(fc.lastWrite))
	assert.Equal(t, 58, len(ack))
}

func TestFramerReadRegister(t *testing.T) {
	fc := &fakeConn{tx: func(w, r []byte) error {
		// Echo back a READ_REG_RESP for chip 3 at the tail of the buffer.
		n := len(r)
		resp := []byte{byte(ReadRegResp), 3, 1, 2, 3, 4, 5, 30}
		copy(r[n-len(resp):], resp)
		return nil
	}}
	f := NewFramer(fc)
	got, err := f.ReadRegister(3)
	assert.NoError(t, err)
	assert.Equal(t, byte(30), got.NumCores)
	assert.Equal(t, byte(3), got.Chip)
}

func TestDetectChainLengthFourChips(t *testing.T) {
	// RESET ACK echoed at the 6th 2-byte word beyond the initial 6-byte
	// transfer => num_chips == 4, per the spec's Testable Property #1.
	fc := &fakeConn{tx: func(w, r []byte) error {
		off := 6 + 2*(6-1)
		r[off] = byte(Reset)
		r[off+1] = 0
		return nil
	}}
	f := NewFramer(fc)
	n, err := f.DetectChainLength()
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDetectChainLengthNoChain(t *testing.T) {
	fc := &fakeConn{tx: func(w, r []byte) error {
		return nil
	}}
	f := NewFramer(fc)
	n, err := f.DetectChainLength()
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFramerReadResultBcastEmpty(t *testing.T) {
	fc := &fakeConn{tx: func(w, r []byte) error {
		return nil // all zero, no result tag present
	}}
	f := NewFramer(fc)
	res, err := f.ReadResultBcast()
	assert.NoError(t, err)
	assert.Nil(t, res)
}
