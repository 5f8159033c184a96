// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"context"
	"fmt"
	"os"

	"github.com/bitmine-a1/a1drv/boardsel"
	"github.com/bitmine-a1/a1drv/conn/i2c"
	"github.com/bitmine-a1/a1drv/conn/physic"
	"github.com/bitmine-a1/a1drv/conn/spi"
	"github.com/bitmine-a1/a1drv/host/sysfs"
	"github.com/charmbracelet/log"
)

// spiMasterCount is the number of independent SPI chip-select lines the host
// exposes to the board selector, per §5 ("up to two SPI master contexts").
const spiMasterCount = 2

// Driver owns the process-wide hardware handles (board selector, SPI master
// contexts, stats sink) and the detected chains built from them. It replaces
// the source's file-scope board_selector/spi0/spi1/stats_file globals with a
// single value constructed once and threaded through every operation (§9).
type Driver struct {
	cfg    *Config
	fw     Framework
	log    *log.Logger
	sel    boardsel.Selector
	ports  []spi.PortCloser
	conns  []spi.Conn
	chains []*Chain

	statsFile *os.File
}

// NewDriver constructs a Driver from a validated Config and the host
// framework it will report into.
func NewDriver(cfg *Config, fw Framework, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{cfg: cfg, fw: fw, log: logger}
}

// openSelector probes board-selector backplanes in the §6 order CCD, CCB,
// CCR, falling back to Single when no I²C mux answers — mirroring the
// "first that succeeds wins" hotplug-absent probe order.
func openSelector() (boardsel.Selector, error) {
	bus, err := i2c.New(-1)
	if err != nil {
		return boardsel.NewSingle(), nil
	}
	if sel, err := boardsel.NewCCD(bus); err == nil {
		return sel, nil
	}
	bus, err = i2c.New(-1)
	if err != nil {
		return boardsel.NewSingle(), nil
	}
	if sel, err := boardsel.NewCCB(bus); err == nil {
		return sel, nil
	}
	bus, err = i2c.New(-1)
	if err != nil {
		return boardsel.NewSingle(), nil
	}
	if sel, err := boardsel.NewCCR(bus); err == nil {
		return sel, nil
	}
	return boardsel.NewSingle(), nil
}

// openPorts opens the host's SPI master contexts at the conservative
// bring-up speed and connects each once, per host/sysfs.NewSPI's
// call-Connect-exactly-once contract; subsequent speed changes during BIST
// and operation go through PortCloser.LimitSpeed.
func openPorts() ([]spi.PortCloser, []spi.Conn, error) {
	var ports []spi.PortCloser
	var conns []spi.Conn
	for cs := 0; cs < spiMasterCount; cs++ {
		p, err := sysfs.NewSPI(0, cs)
		if err != nil {
			break
		}
		c, err := p.Connect(physic.Frequency(bringUpSpiKhz)*physic.KiloHertz, spi.Mode1, 8)
		if err != nil {
			p.Close()
			break
		}
		ports = append(ports, p)
		conns = append(conns, c)
	}
	if len(ports) == 0 {
		return nil, nil, fmt.Errorf("chain: driver: no SPI master contexts available")
	}
	return ports, conns, nil
}

// Detect probes for board-selector hardware and SPI masters, then
// enumerates every chain slot the selector exposes (skipping those masked
// out by cfg.BoardMask or unpopulated). hotplug is accepted for interface
// symmetry with a future incremental-rescan mode; the present
// implementation always performs a full probe.
func (d *Driver) Detect(ctx context.Context, hotplug bool) ([]*Chain, error) {
	sel, err := openSelector()
	if err != nil {
		return nil, fmt.Errorf("chain: driver: open selector: %w", err)
	}
	ports, conns, err := openPorts()
	if err != nil {
		sel.Close()
		return nil, err
	}

	if d.cfg.StatsFile != "" {
		f, err := os.OpenFile(d.cfg.StatsFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			d.log.Warn("chain: driver: stats file open failed", "path", d.cfg.StatsFile, "err", err)
		} else {
			d.statsFile = f
		}
	}
	if d.cfg.ChipConfigFile != "" {
		if _, err := os.Stat(d.cfg.ChipConfigFile); err != nil {
			d.log.Warn("chain: driver: chip config file not found", "path", d.cfg.ChipConfigFile, "err", err)
		}
	}

	d.sel = sel
	d.ports = ports
	d.conns = conns

	var chains []*Chain
	for chainID := 0; chainID < sel.NumChains(); chainID++ {
		port := ports[chainID%len(ports)]
		conn := conns[chainID%len(conns)]
		c, err := enumerateChain(ctx, chainID, sel, port, conn, d.cfg, d.fw, d.log)
		if err != nil {
			d.log.Warn("chain: driver: enumerate failed", "chain", chainID, "err", err)
			continue
		}
		if c == nil {
			continue
		}
		c.statSink = d.WriteStatLine
		chains = append(chains, c)
	}

	d.chains = chains
	return chains, nil
}

// Shutdown releases every resource opened by Detect: the stats file, the
// board selector and its I²C handle, and the SPI master contexts.
func (d *Driver) Shutdown() {
	if d.statsFile != nil {
		if err := d.statsFile.Close(); err != nil {
			d.log.Warn("chain: driver: stats file close failed", "err", err)
		}
		d.statsFile = nil
	}
	if d.sel != nil {
		if err := d.sel.Close(); err != nil {
			d.log.Warn("chain: driver: selector close failed", "err", err)
		}
		d.sel = nil
	}
	for _, p := range d.ports {
		if err := p.Close(); err != nil {
			d.log.Warn("chain: driver: SPI close failed", "err", err)
		}
	}
	d.ports = nil
	d.conns = nil
}

// WriteStatLine appends one tuning-event line to the stats file, if
// configured. Best-effort: failures are logged, never returned, matching the
// rest of the package's never-fail-on-diagnostics policy.
func (d *Driver) WriteStatLine(line string) {
	if d.statsFile == nil {
		return
	}
	if _, err := d.statsFile.WriteString(line + "\n"); err != nil {
		d.log.Warn("chain: driver: stats write failed", "err", err)
	}
}
