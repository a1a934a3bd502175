//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ohlcv

import (
	"fmt"
	"time"
)

// timeframeDurations maps the supported bar intervals to their length.
var timeframeDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// TimeframeDuration returns the interval length for a timeframe label.
func TimeframeDuration(timeframe string) (time.Duration, error) {
	d, ok := timeframeDurations[timeframe]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe: %s", timeframe)
	}
	return d, nil
}

// Timeframes returns the supported timeframe labels.
func Timeframes() []string {
	return []string{"1m", "5m", "15m", "1h", "4h", "1d"}
}
