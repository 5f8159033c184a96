// Copyright 2014 Zefir Kurtisi <zefir.kurtisi@gmail.com>
// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package boardsel

import (
	"fmt"
	"time"

	"github.com/bitmine-a1/a1drv/conn/i2c"
)

// TCA9535 register addresses (input/output port 0 and 1, configuration
// port 0 and 1). Polarity-inversion registers 0x04/0x05 are unused here.
const (
	regInputPort0  = 0x00
	regInputPort1  = 0x01
	regOutputPort0 = 0x02
	regOutputPort1 = 0x03
	regConfigPort0 = 0x06
	regConfigPort1 = 0x07
)

// tca9535 is the minimal register-level driver for the TCA9535 8+8-bit I²C
// GPIO expander used by all three board-selector backends: port 0 drives
// per-chain reset lines, port 1 drives per-chain select (chip-enable) lines.
type tca9535 struct {
	dev i2c.Dev
}

func newTCA9535(bus i2c.Bus, addr uint16) *tca9535 {
	return &tca9535{dev: i2c.Dev{Bus: bus, Addr: addr}}
}

func (t *tca9535) writeReg(reg, value byte) error {
	if err := t.dev.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("boardsel: tca9535 write reg 0x%02x: %w", reg, err)
	}
	return nil
}

func (t *tca9535) readReg(reg byte) (byte, error) {
	var v [1]byte
	if err := t.dev.Tx([]byte{reg}, v[:]); err != nil {
		return 0, fmt.Errorf("boardsel: tca9535 read reg 0x%02x: %w", reg, err)
	}
	return v[0], nil
}

// init configures port 0 and port 1 as all-outputs, with port 1 (select
// lines) idling at 0xff (all chains deselected) and port 0 (reset lines)
// idling at 0x00 (no chain held in reset).
func (t *tca9535) init() error {
	if err := t.writeReg(regConfigPort1, 0x00); err != nil {
		return err
	}
	if err := t.writeReg(regOutputPort1, 0xff); err != nil {
		return err
	}
	if err := t.writeReg(regConfigPort0, 0x00); err != nil {
		return err
	}
	return t.writeReg(regOutputPort0, 0x00)
}

// selectMask writes the select-line mask to output port 1.
func (t *tca9535) selectMask(mask byte) error {
	return t.writeReg(regOutputPort1, mask)
}

// pulseReset asserts the given reset mask on output port 0, holds it for
// ResetLowTime, then deasserts and waits ResetHiTime.
func (t *tca9535) pulseReset(mask byte) error {
	if err := t.writeReg(regOutputPort0, mask); err != nil {
		return err
	}
	time.Sleep(ResetLowTime)
	if err := t.writeReg(regOutputPort0, 0x00); err != nil {
		return err
	}
	time.Sleep(ResetHiTime)
	return nil
}
