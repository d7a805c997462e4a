//go:build !wasm

package internal

import (
	"github.com/petermattis/goid"
)

// GoroutineLocal reports whether each goroutine gets its own Tracker slot.
const GoroutineLocal = true

func getGID() int64 {
	return goid.Get()
}
