package main

import (
	"regexp"
	"time"
)

// Rounds are keyed by UTC calendar date. The key is recomputed on every
// call so a date rollover is observed by the next processed event rather
// than a timer.
var roundKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}

// activeRoundKey returns the round governing all mutation and validation:
// the pinned --date override if set, else today's UTC date.
func activeRoundKey(cfg *Config) string {
	if cfg.dailyDate != "" {
		return cfg.dailyDate
	}
	return todayUTC()
}

// requestedRoundKey resolves a client-supplied date hint for read-only
// snapshots. Anything that isn't an exact YYYY-MM-DD falls back to the
// active round. Never used for mutation.
func requestedRoundKey(cfg *Config, hint string) string {
	if roundKeyPattern.MatchString(hint) {
		return hint
	}
	return activeRoundKey(cfg)
}
