// Package safego launches fire-and-forget goroutines with panic recovery, so
// a panic in background work (audit shipping, archive writes, retention
// sweeps) is logged instead of killing the process or silently dying.
package safego

import "log/slog"

// Go runs fn in a new goroutine, recovering and logging any panic.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
