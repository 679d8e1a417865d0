package files

import (
	"context"
	"testing"
	"time"
)

func TestRunSweepers_StopsOnCancel(t *testing.T) {
	caches := NewCaches(time.Minute, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		caches.RunSweepers(ctx, time.Millisecond)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweepers did not stop after cancel")
	}
}
