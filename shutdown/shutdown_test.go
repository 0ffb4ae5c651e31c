package shutdown

import (
	"testing"
	"time"
)

func closed() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func TestWait(t *testing.T) {
	if !Wait(time.Second) {
		t.Error("no channels should finish immediately")
	}
	if !Wait(time.Second, closed(), closed()) {
		t.Error("closed channels reported unfinished")
	}

	late := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(late)
	}()
	if !Wait(5*time.Second, closed(), late) {
		t.Error("late channel not awaited")
	}

	start := time.Now()
	if Wait(50*time.Millisecond, closed(), make(chan struct{})) {
		t.Error("stuck channel reported finished")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Wait overran its timeout")
	}
}
