// Package stats keeps the kernel's aggregated activity counters: context
// switches, timer ticks and task lifecycle transitions. Components report
// increments through Delta; observers read consistent snapshots.
package stats
