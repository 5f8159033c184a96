// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"context"
	"io"
	"testing"

	"github.com/bitmine-a1/a1drv/protocol"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFourDeepJobFill covers an empty chip reporting qstate=0: the scheduler
// must dequeue two work items, issue two WRITE_JOBs, and land them in slots
// 0 and 1 with last_queued_id advancing to 2.
func TestFourDeepJobFill(t *testing.T) {
	conn := &fakeConn{qstate: 0, cores: 32}
	chip := NewChip(1, 32)

	c := &Chain{
		ChainID:        0,
		sel:            &fakeSelector{},
		framer:         protocol.NewFramer(conn),
		fw:             &fakeFramework{remaining: 2},
		log:            log.New(io.Discard),
		cfg:            &Config{},
		chips:          []*Chip{chip},
		NumActiveChips: 1,
		workQueue: []*Work{
			{DeviceDiff: 1},
			{DeviceDiff: 1},
		},
	}

	loaded := c.loadChips(context.Background())
	require.True(t, loaded)
	assert.Equal(t, 2, chip.LastQueuedID)
	assert.NotNil(t, chip.Work[0])
	assert.NotNil(t, chip.Work[1])
	assert.Nil(t, chip.Work[2])
	assert.Empty(t, c.workQueue)
}

// TestQueueFullSkipsLoad covers qstate=3 (FIFO full): no work is dequeued and
// no slot changes.
func TestQueueFullSkipsLoad(t *testing.T) {
	conn := &fakeConn{qstate: 3, cores: 32}
	chip := NewChip(1, 32)

	c := &Chain{
		ChainID:        0,
		sel:            &fakeSelector{},
		framer:         protocol.NewFramer(conn),
		fw:             &fakeFramework{remaining: 2},
		log:            log.New(io.Discard),
		cfg:            &Config{},
		chips:          []*Chip{chip},
		NumActiveChips: 1,
		workQueue:      []*Work{{DeviceDiff: 1}},
	}

	loaded := c.loadChips(context.Background())
	assert.False(t, loaded)
	assert.Equal(t, 0, chip.LastQueuedID)
	assert.Len(t, c.workQueue, 1)
}
