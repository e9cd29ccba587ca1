// Package analytics turns raw per-day habit completion records into streaks,
// completion aggregates, calendar heatmaps, weekday insights and leaderboard scores.
//
// Every function here is pure: it performs no I/O, reads no clock and keeps no
// shared state, so callers may invoke it concurrently and repeat it freely.
// All dates are bucketed by calendar day; time-of-day is discarded before any
// comparison.
package analytics
