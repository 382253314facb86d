// Package storage is the local persistence layer.
//
// It keeps:
//   - a transition journal (every schedule, unschedule and delete attempt with its outcome)
//   - collection snapshots per scope, used to show the last known state when the remote is down
//
// Drivers: "diskv" (files under a base directory) and "sqlite" (single database file).
package storage
