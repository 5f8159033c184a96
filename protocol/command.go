// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package protocol implements the A1 chip SPI command framing protocol: a
// chain-length-aware framer that assembles command bytes, clocks out the
// right number of idle poll words for the acknowledgement to propagate back
// along the daisy chain, and extracts the resulting ACK or result frame.
package protocol

import "fmt"

// Opcode is an A1 command byte.
type Opcode byte

// Command bytes understood by the A1 chip.
const (
	BistStart    Opcode = 0x01
	BistFix      Opcode = 0x03
	Reset        Opcode = 0x04
	WriteJob     Opcode = 0x07
	ReadResult   Opcode = 0x08
	WriteReg     Opcode = 0x09
	ReadReg      Opcode = 0x0a
	ReadRegResp  Opcode = 0x1a
)

func (o Opcode) String() string {
	switch o {
	case BistStart:
		return "BIST_START"
	case BistFix:
		return "BIST_FIX"
	case Reset:
		return "RESET"
	case WriteJob:
		return "WRITE_JOB"
	case ReadResult:
		return "READ_RESULT"
	case WriteReg:
		return "WRITE_REG"
	case ReadReg:
		return "READ_REG"
	case ReadRegResp:
		return "READ_REG_RESP"
	default:
		return fmt.Sprintf("Opcode(0x%02x)", byte(o))
	}
}

// ResetAbort is the RESET strategy byte meaning "abort in-flight jobs but
// preserve the PLL configuration".
const ResetAbort = 0xe5

// MaxChainLength is the longest chain the framer is sized for: it bounds the
// scratch buffers and the chain-length detection scan. Broadcast polls before
// detection use assumedChipsUnknown instead.
const MaxChainLength = 64

// assumedChipsUnknown is the chip count assumed for a broadcast command when
// the framer does not yet know the chain length.
const assumedChipsUnknown = 8

// RegPayload is the fixed 6-byte register block carried by WRITE_REG/READ_REG.
type RegPayload [6]byte

// Lock reports whether the PLL-lock bit (bit 0 of byte 4) is set.
func (r RegPayload) Lock() bool {
	return r[4]&1 == 1
}

// ReadRegResult is the decoded body of a READ_REG response.
type ReadRegResult struct {
	Chip      byte
	Payload   RegPayload
	QueueState byte // rx[5] & 3
	QueueBuf  byte // rx[6]
	NumCores  byte // rx[7]
}
