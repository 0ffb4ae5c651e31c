// Package shutdown stops the process on a signal and bounds how long it
// waits for its goroutines.
package shutdown

import (
	"os"
	"os/signal"
	"time"
)

// Notify relays the platform's stop signals to ch.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, stopSignals...)
}

// Wait blocks until every channel is closed or timeout elapses, and reports
// whether all of them finished. Anything still running is abandoned.
func Wait(timeout time.Duration, done ...<-chan struct{}) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for _, ch := range done {
		select {
		case <-ch:
		case <-deadline.C:
			return false
		}
	}
	return true
}
