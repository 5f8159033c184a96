// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// a1smoketest brings up every detected A1 chain, drives scanwork in a loop
// against an in-memory work source, and prints a statline per chain — a
// hardware bring-up aid, not a mining client.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bitmine-a1/a1drv/chain"
	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

// fakeFramework is an in-memory chain.Framework that hands out synthetic
// work and accepts nonces by a coarse low-byte threshold, for exercising
// scanwork/BIST without a real mining pool connection.
type fakeFramework struct {
	mu        sync.Mutex
	submitted int
	good      int
}

func (f *fakeFramework) NextWork() (*chain.Work, bool) {
	w := &chain.Work{}
	if _, err := rand.Read(w.Midstate[:]); err != nil {
		return nil, false
	}
	if _, err := rand.Read(w.DataTail[:]); err != nil {
		return nil, false
	}
	w.DeviceDiff = 1
	return w, true
}

func (f *fakeFramework) SubmitNonce(w *chain.Work, nonce uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
	// Smoke testing has no real target to check against; accept nonces whose
	// low byte clears a coarse threshold so the statline shows a realistic
	// mix of good/bad without a real SHA-256 double-hash check.
	good := nonce&0xff < 0xf0
	if good {
		f.good++
	}
	return good
}

func (f *fakeFramework) WorkCompleted(w *chain.Work) {}

func main() {
	var (
		options  = pflag.String("options", "", "colon-separated A1 options string (ref:sys:spi:chipnum:wiper:diff:mask[...])")
		config   = pflag.String("config", "", "YAML config file overlay")
		hotplug  = pflag.Bool("hotplug", false, "hotplug flag passed to Detect (Detect always performs a full probe)")
		logLevel = pflag.String("log-level", "info", "log level: debug, info, warn, error")
		duration = pflag.Duration("duration", 0, "exit after this long (0 runs until interrupted)")
	)
	pflag.Parse()

	logger := log.New(os.Stderr)
	switch *logLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	cfg, err := chain.Load(*options, *config)
	if err != nil {
		logger.Fatal("config", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()
	if *duration > 0 {
		go func() {
			select {
			case <-time.After(*duration):
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	fw := &fakeFramework{}
	driver := chain.NewDriver(cfg, fw, logger)
	defer driver.Shutdown()

	chains, err := driver.Detect(ctx, *hotplug)
	if err != nil {
		logger.Fatal("detect", "err", err)
	}
	if len(chains) == 0 {
		logger.Warn("no chains detected")
		return
	}
	logger.Info("detected chains", "count", len(chains))

	var wg sync.WaitGroup
	for _, c := range chains {
		wg.Add(1)
		go func(c *chain.Chain) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if !c.QueueFull() {
					continue
				}
				if _, err := c.ScanWork(ctx); err != nil {
					logger.Warn("scanwork", "err", err)
					return
				}
			}
		}(c)
	}

	statTicker := time.NewTicker(2 * time.Second)
	defer statTicker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-statTicker.C:
			var line string
			for _, c := range chains {
				line += c.StatlinePrefix()
			}
			fmt.Println(line)
		}
	}

	for _, c := range chains {
		c.FlushWork()
	}
	wg.Wait()
}
