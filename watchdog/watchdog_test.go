package watchdog

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"greenos/controller/logging"
)

func TestHeartbeatStavesOffRestart(t *testing.T) {
	var restarts atomic.Int32
	s := New(3*time.Second, func() { restarts.Add(1) }, logging.Discard())
	s.Start()
	defer s.Stop()

	done := time.After(4 * time.Second)
	beat := time.NewTicker(500 * time.Millisecond)
	defer beat.Stop()
	for {
		select {
		case <-beat.C:
			s.Heartbeat()
		case <-done:
			assert.Zero(t, restarts.Load(), "fed watchdog must not fire")
			return
		}
	}
}

func TestSilenceTriggersRestart(t *testing.T) {
	fired := make(chan struct{})
	s := New(2*time.Second, func() { close(fired) }, logging.Discard())
	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog never fired on a silent loop")
	}
}
