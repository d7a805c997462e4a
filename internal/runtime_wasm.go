//go:build wasm

package internal

// wasm runs every goroutine on a single thread and goid has no support for
// it, so all goroutines share one slot. Callers running tracked work on more
// than one goroutine at a time would overwrite each other.
const GoroutineLocal = false

func getGID() int64 {
	return 0
}
