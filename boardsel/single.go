// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package boardsel

import (
	"errors"
	"sync"
)

// Single is a no-op Selector for a lone chain wired directly to the host
// with no I²C board-selector hardware in the path: Select/Release only
// enforce the one-chain-at-a-time contract, Reset/Temp/SetWiper are
// reported as unsupported or no-ops.
type Single struct {
	mu sync.Mutex
}

// NewSingle returns a Selector for exactly one directly-wired chain.
func NewSingle() *Single {
	return &Single{}
}

func (s *Single) NumChains() int { return 1 }

func (s *Single) Select(chainID int) error {
	if chainID != 0 {
		return errChainOutOfRange
	}
	s.mu.Lock()
	return nil
}

func (s *Single) Release() {
	s.mu.Unlock()
}

func (s *Single) Reset(chainID int) error {
	// No reset line to drive without selector hardware; the chip layer's own
	// RESET command over SPI covers this case.
	return nil
}

func (s *Single) ResetAll() error {
	return nil
}

func (s *Single) Temp(chainID int) (int, bool) {
	return 0, false
}

func (s *Single) SetWiper(board int, value byte) error {
	return nil
}

func (s *Single) Close() error {
	return nil
}

var errChainOutOfRange = errors.New("boardsel: single selector only has chain 0")
