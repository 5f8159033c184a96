// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"time"
)

// FormatTuneLine renders one §6 stats-file line for a tuning event: one line
// per clock change, timestamped, identifying the chain and chip and the
// before/after clock and the ratio that triggered it.
func FormatTuneLine(now time.Time, chainID, chipID, oldClkKhz, newClkKhz, ratioPm int) string {
	return fmt.Sprintf("%s chain=%d chip=%d old_clk=%d new_clk=%d ratio_pm=%d",
		now.Format(time.RFC3339), chainID, chipID, oldClkKhz, newClkKhz, ratioPm)
}
