// Package safego launches background goroutines that recover their own panics.
package safego

import "log/slog"

// Go runs fn in a new goroutine, logging any panic instead of letting it
// crash the process. Every long-lived goroutine in medgate (emitter workers,
// the reconciler loop, stream fan-out) is started through here; a silently
// dead worker is easier to spot in the logs than in a core dump.
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
