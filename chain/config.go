// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxBoards bounds the per-board arrays in the options string.
const MaxBoards = 16

// Config is the fully validated driver configuration, built from the
// colon/dash options string (§6) optionally layered over a YAML file.
type Config struct {
	RefClkKhz       int
	SysClkKhz       int
	SpiClkKhz       int
	OverrideChipNum int
	Wiper           byte
	OverrideDiff    int
	BoardMask       uint32

	PerBoardSysClkKhz   []int
	PerBoardWiper       []byte
	PerBoardChipBitmask []uint64
	PerBoardSpiClkKhz   []int

	LowerClkKhz  int
	UpperClkKhz  int
	LowerRatioPm int
	UpperRatioPm int
	EnableAutoTune bool

	StatsFile      string
	ChipConfigFile string
}

// defaultConfig returns the documented defaults: ref=16MHz, sys=800MHz,
// spi=2MHz, lower_clk=400MHz, upper_clk=1.1GHz, lower_ratio=3‰,
// upper_ratio=20‰.
func defaultConfig() Config {
	return Config{
		RefClkKhz:      16000,
		SysClkKhz:      800000,
		SpiClkKhz:      2000,
		LowerClkKhz:    400000,
		UpperClkKhz:    1100000,
		LowerRatioPm:   3,
		UpperRatioPm:   20,
		EnableAutoTune: true,
	}
}

// fileConfig mirrors Config for YAML decoding, using pointers so the loader
// can tell an explicitly-set zero value apart from "not present in the file".
type fileConfig struct {
	RefClkKhz       *int    `yaml:"ref_clk_khz"`
	SysClkKhz       *int    `yaml:"sys_clk_khz"`
	SpiClkKhz       *int    `yaml:"spi_clk_khz"`
	OverrideChipNum *int    `yaml:"override_chip_num"`
	Wiper           *int    `yaml:"wiper"`
	OverrideDiff    *int    `yaml:"override_diff"`
	BoardMaskHex    *string `yaml:"board_mask_hex"`
	LowerClkKhz     *int    `yaml:"lower_clk_khz"`
	UpperClkKhz     *int    `yaml:"upper_clk_khz"`
	LowerRatioPm    *int    `yaml:"lower_ratio_pm"`
	UpperRatioPm    *int    `yaml:"upper_ratio_pm"`
	EnableAutoTune  *bool   `yaml:"enable_auto_tune"`
	StatsFile       *string `yaml:"stats_file"`
	ChipConfigFile  *string `yaml:"chip_config_file"`
}

// Load merges a YAML config file (if path is non-empty) with the
// colon-separated options string (if non-empty), options-string values
// always winning a field it explicitly sets, then validates the result.
func Load(options, yamlPath string) (*Config, error) {
	cfg := defaultConfig()

	if yamlPath != "" {
		b, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("chain: config: reading %s: %w", yamlPath, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("chain: config: parsing %s: %w", yamlPath, err)
		}
		applyFileConfig(&cfg, &fc)
	}

	if options != "" {
		if err := applyOptionsString(&cfg, options); err != nil {
			return nil, fmt.Errorf("chain: config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.RefClkKhz != nil {
		cfg.RefClkKhz = *fc.RefClkKhz
	}
	if fc.SysClkKhz != nil {
		cfg.SysClkKhz = *fc.SysClkKhz
	}
	if fc.SpiClkKhz != nil {
		cfg.SpiClkKhz = *fc.SpiClkKhz
	}
	if fc.OverrideChipNum != nil {
		cfg.OverrideChipNum = *fc.OverrideChipNum
	}
	if fc.Wiper != nil {
		cfg.Wiper = byte(*fc.Wiper)
	}
	if fc.OverrideDiff != nil {
		cfg.OverrideDiff = *fc.OverrideDiff
	}
	if fc.BoardMaskHex != nil {
		if v, err := strconv.ParseUint(*fc.BoardMaskHex, 16, 32); err == nil {
			cfg.BoardMask = uint32(v)
		}
	}
	if fc.LowerClkKhz != nil {
		cfg.LowerClkKhz = *fc.LowerClkKhz
	}
	if fc.UpperClkKhz != nil {
		cfg.UpperClkKhz = *fc.UpperClkKhz
	}
	if fc.LowerRatioPm != nil {
		cfg.LowerRatioPm = *fc.LowerRatioPm
	}
	if fc.UpperRatioPm != nil {
		cfg.UpperRatioPm = *fc.UpperRatioPm
	}
	if fc.EnableAutoTune != nil {
		cfg.EnableAutoTune = *fc.EnableAutoTune
	}
	if fc.StatsFile != nil {
		cfg.StatsFile = *fc.StatsFile
	}
	if fc.ChipConfigFile != nil {
		cfg.ChipConfigFile = *fc.ChipConfigFile
	}
}

// applyOptionsString parses "ref:sys:spi:chipnum:wiper:diff:mask[:perboard-sys:perboard-wiper:perboard-bitmask:perboard-spi]"
// where each optional perboard-* field is itself a dash-separated list, e.g.
// "800000-750000-700000". Within a given list, missing entries inherit the
// last explicitly given value out to MaxBoards slots. An omitted per-board
// field leaves that array nil, so the chain-wide value applies to every board.
func applyOptionsString(cfg *Config, options string) error {
	fields := strings.Split(options, ":")
	if len(fields) < 7 {
		return fmt.Errorf("options string %q: need at least 7 colon-separated fields, got %d", options, len(fields))
	}

	get := func(i int) (int, error) {
		return strconv.Atoi(fields[i])
	}
	var err error
	if cfg.RefClkKhz, err = get(0); err != nil {
		return fmt.Errorf("ref_clk_khz: %w", err)
	}
	if cfg.SysClkKhz, err = get(1); err != nil {
		return fmt.Errorf("sys_clk_khz: %w", err)
	}
	if cfg.SpiClkKhz, err = get(2); err != nil {
		return fmt.Errorf("spi_clk_khz: %w", err)
	}
	if cfg.OverrideChipNum, err = get(3); err != nil {
		return fmt.Errorf("override_chip_num: %w", err)
	}
	wiper, err := get(4)
	if err != nil {
		return fmt.Errorf("wiper: %w", err)
	}
	cfg.Wiper = byte(wiper)
	if cfg.OverrideDiff, err = get(5); err != nil {
		return fmt.Errorf("override_diff: %w", err)
	}
	mask, err := strconv.ParseUint(fields[6], 16, 32)
	if err != nil {
		return fmt.Errorf("board_mask_hex: %w", err)
	}
	cfg.BoardMask = uint32(mask)

	if len(fields) > 7 {
		cfg.PerBoardSysClkKhz, err = parseIntArray(fields[7])
		if err != nil {
			return fmt.Errorf("per-board sys_clk_khz: %w", err)
		}
	}
	if len(fields) > 8 {
		cfg.PerBoardWiper, err = parseByteArray(fields[8])
		if err != nil {
			return fmt.Errorf("per-board wiper: %w", err)
		}
	}
	if len(fields) > 9 {
		cfg.PerBoardChipBitmask, err = parseHexArray(fields[9])
		if err != nil {
			return fmt.Errorf("per-board chip_bitmask: %w", err)
		}
	}
	if len(fields) > 10 {
		cfg.PerBoardSpiClkKhz, err = parseIntArray(fields[10])
		if err != nil {
			return fmt.Errorf("per-board spi_clk_khz: %w", err)
		}
	}
	return nil
}

func parseIntArray(s string) ([]int, error) {
	parts := strings.Split(s, "-")
	out := make([]int, MaxBoards)
	last := 0
	for i := range out {
		if i < len(parts) {
			v, err := strconv.Atoi(parts[i])
			if err != nil {
				return nil, err
			}
			last = v
		}
		out[i] = last
	}
	return out, nil
}

func parseByteArray(s string) ([]byte, error) {
	parts := strings.Split(s, "-")
	out := make([]byte, MaxBoards)
	var last byte
	for i := range out {
		if i < len(parts) {
			v, err := strconv.ParseUint(parts[i], 16, 8)
			if err != nil {
				return nil, err
			}
			last = byte(v)
		}
		out[i] = last
	}
	return out, nil
}

func parseHexArray(s string) ([]uint64, error) {
	parts := strings.Split(s, "-")
	out := make([]uint64, MaxBoards)
	var last uint64
	for i := range out {
		if i < len(parts) {
			v, err := strconv.ParseUint(parts[i], 16, 64)
			if err != nil {
				return nil, err
			}
			last = v
		}
		out[i] = last
	}
	return out, nil
}

// validate enforces the configuration-fault policy: sys_clk must be at
// least 100 MHz; invalid options are fatal at startup.
func (c *Config) validate() error {
	if c.SysClkKhz < 100000 {
		return fmt.Errorf("chain: config: sys_clk_khz %d below minimum 100000", c.SysClkKhz)
	}
	return nil
}
