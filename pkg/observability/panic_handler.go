package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers a panic in a background goroutine and logs it with
// its stack. It must be called directly by defer:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "defaults watcher")
//	    ...
//	}()
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": where,
		}).Error("PANIC recovered")
	}
}
