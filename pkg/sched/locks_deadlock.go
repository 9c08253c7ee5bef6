//go:build deadlock

package sched

import "github.com/sasha-s/go-deadlock"

// mutex asserts lock ordering at runtime: acquiring bucketsMu while holding
// heapMu is reported as a potential deadlock.
type mutex = deadlock.Mutex
