// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

// Work is an opaque unit of mining work: midstate plus the last 12 bytes of
// the block header and a target difficulty. It is owned by the chain's work
// queue from enqueue until it is either assigned to a chip slot (ownership
// transfers to the slot) or completed back to the Framework.
type Work struct {
	Midstate   [32]byte
	DataTail   [12]byte // work.data[64:76] in the original header layout
	DeviceDiff int
}

// Framework is the host mining framework contract: work supply, nonce
// validation against the current target, and share accounting. A real host
// implements this; the package's own tests use an in-memory fake.
type Framework interface {
	// NextWork returns the next work item to assign to a chip slot, or false
	// if none is currently available.
	NextWork() (*Work, bool)
	// SubmitNonce reports a nonce found for w and returns whether it was a
	// valid share (good) or not (bad).
	SubmitNonce(w *Work, nonce uint32) (ok bool)
	// WorkCompleted is called when a work item's range has been fully
	// searched (its slot is being reused or the chip is flushed) without
	// necessarily yielding a valid nonce.
	WorkCompleted(w *Work)
}
