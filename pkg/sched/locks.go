//go:build !deadlock

package sched

import "sync"

// mutex is the scheduler lock type. The deadlock build tag swaps in a
// lock-order checking implementation.
type mutex = sync.Mutex
