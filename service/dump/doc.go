// Package dump renders the kernel's memory and task state as text.
//
// A Dump captures the frame bitmap as used/free ranges, every present page
// mapping and the task table. Two dumps can be compared with Diff, which
// produces a unified diff, and a dump can be exported to any afs URL with
// Save.
package dump
