// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"sync"

	"github.com/bitmine-a1/a1drv/conn/physic"
	"github.com/bitmine-a1/a1drv/conn/spi"
	"github.com/bitmine-a1/a1drv/protocol"
)

// fakeConn is a conn.Conn that answers READ_REG with a fixed queue state and
// core count, and echoes every other command's opcode/chip-id byte back as
// its ack, which satisfies WriteJob/Reset/WriteRegister/BistStart/BistFix's
// ack checks without modelling the A1's actual register state.
type fakeConn struct {
	qstate byte
	qbuf   byte
	cores  byte
}

func (f *fakeConn) Tx(w, r []byte) error {
	n := len(r)
	if n == 0 {
		return nil
	}
	if w[0]&0x0f == byte(protocol.ReadReg)&0x0f {
		resp := []byte{byte(protocol.ReadRegResp), w[1], 0, 0, 0, f.qstate, f.qbuf, f.cores}
		if n >= len(resp) {
			copy(r[n-len(resp):], resp)
		}
		return nil
	}
	if n >= 2 {
		copy(r[n-2:], w[:2])
	}
	return nil
}

// fakeSelector is a no-op boardsel.Selector recording Select/Release calls
// and reporting a configurable, fixed temperature.
type fakeSelector struct {
	numChains int
	temp      int
	tempOK    bool

	mu           sync.Mutex
	selected     []int
	releaseCount int
}

func (f *fakeSelector) Select(chainID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, chainID)
	return nil
}
func (f *fakeSelector) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCount++
}
func (f *fakeSelector) Reset(chainID int) error            { return nil }
func (f *fakeSelector) ResetAll() error                    { return nil }
func (f *fakeSelector) Temp(chainID int) (int, bool)       { return f.temp, f.tempOK }
func (f *fakeSelector) SetWiper(board int, value byte) error { return nil }
func (f *fakeSelector) NumChains() int {
	if f.numChains == 0 {
		return 1
	}
	return f.numChains
}
func (f *fakeSelector) Close() error { return nil }

func (f *fakeSelector) releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releaseCount
}

// fakeFramework is an in-memory chain.Framework: NextWork hands out a fixed
// number of items then reports exhausted, SubmitNonce always accepts, and
// WorkCompleted just counts.
type fakeFramework struct {
	remaining int
	completed []*Work
	submitted []*Work
}

func (f *fakeFramework) NextWork() (*Work, bool) {
	if f.remaining <= 0 {
		return nil, false
	}
	f.remaining--
	return &Work{DeviceDiff: 1}, true
}

func (f *fakeFramework) SubmitNonce(w *Work, nonce uint32) bool {
	f.submitted = append(f.submitted, w)
	return true
}

func (f *fakeFramework) WorkCompleted(w *Work) {
	f.completed = append(f.completed, w)
}

// fakePort is a no-op spi.PortCloser: Connect/LimitSpeed/Close all succeed
// without touching any real hardware.
type fakePort struct{}

func (fakePort) Connect(maxHz physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	return nil, nil
}
func (fakePort) LimitSpeed(maxHz physic.Frequency) error { return nil }
func (fakePort) Close() error                            { return nil }
