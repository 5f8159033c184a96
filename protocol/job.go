// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package protocol

import "encoding/binary"

// JobLen is the wire size of a WRITE_JOB payload.
const JobLen = 58

// defaultTargetDiff1 is the difficulty-1 compact target, ff ff 00 1d.
var defaultTargetDiff1 = [4]byte{0xff, 0xff, 0x00, 0x1d}

// swap32 byte-reverses a 4-byte word in place.
func swap32(b []byte) {
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
}

// BuildJob assembles the 58-byte WRITE_JOB payload for one job.
//
// midstate is the 32-byte precomputed SHA-256 state; wdata is the 12-byte
// block-header tail. overrideDiff selects the target written at [50:54]:
// 0 means "use diff-1" (ffff001d), a positive value selects a target for
// that difficulty, computed by TargetForDifficulty.
func BuildJob(jobID, chipID byte, midstate [32]byte, wdata [12]byte, overrideDiff int) [58]byte {
	var job [58]byte
	job[0] = (jobID << 4) | byte(WriteJob)
	job[1] = chipID

	// [2:34]: midstate, each of the 8 dwords byte-reversed, dword order
	// preserved (a per-dword bswap, not a reversal of the whole 32 bytes).
	copy(job[2:34], midstate[:])
	for i := 2; i < 34; i += 4 {
		swap32(job[i : i+4])
	}

	// [34:46]: wdata tail, each 4-byte word byte-reversed.
	copy(job[34:46], wdata[:])
	for i := 34; i < 46; i += 4 {
		swap32(job[i : i+4])
	}

	// [46:50]: start nonce, zero.

	// [50:54]: target. Lands at byte offset 50 exactly because job[34:46] is
	// 12 bytes of wdata (34+16=50 when expressed as the original C's
	// uint32-pointer arithmetic over p1 = &job[34]); here written directly by
	// slice offset instead of reproducing that pointer arithmetic.
	target := defaultTargetDiff1
	if overrideDiff != 0 {
		target = targetForDifficulty(overrideDiff)
	}
	copy(job[50:54], target[:])

	// [54:58]: end nonce, ffffffff.
	binary.BigEndian.PutUint32(job[54:58], 0xffffffff)

	return job
}

// targetForDifficulty returns the compact ("nBits") target for a pool
// difficulty, following the same mantissa/exponent shape as the difficulty-1
// target: for diff=1 it returns ff ff 00 1d; for diff=256 the exponent byte
// decreases by one while the mantissa stays in [0x8000, 0x800000).
//
// The diff-1 target is mantissa=0xffff at exponent=0x1d. Dividing by diff
// shrinks the mantissa; the loop restores precision (multiplying by 256 and
// decrementing the exponent) until the mantissa is back above 0x8000.
func targetForDifficulty(diff int) [4]byte {
	if diff < 1 {
		diff = 1
	}
	const (
		mantissa1 = uint64(0xffff)
		exponent1 = byte(0x1d)
	)
	d := uint64(diff)
	k := byte(0)
	var scaled uint64
	for {
		scaled = (mantissa1 << (8 * k)) / d
		if scaled >= 0x8000 || exponent1 <= 3+k {
			break
		}
		k++
	}
	exponent := exponent1 - k

	return [4]byte{
		byte(scaled),
		byte(scaled >> 8),
		byte(scaled >> 16),
		exponent,
	}
}

// TargetForDifficulty exports targetForDifficulty for use by the auto-tuner
// and tests without re-deriving the bit-shifting policy.
func TargetForDifficulty(diff int) [4]byte {
	return targetForDifficulty(diff)
}
