// Package watchdog is the last-resort liveness supervisor. It knows
// nothing about why the loop stalled; it only measures silence and pulls
// the cord.
//
// The check runs on its own goroutine with its own clock, so unlike a
// purely cooperative software watchdog it does catch a stalled control
// loop. What it cannot catch is the whole process being frozen; a
// hardware watchdog remains the stronger guarantee where the board offers
// one.
package watchdog

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Supervisor forces a restart when the heartbeat goes quiet.
type Supervisor struct {
	timeout time.Duration
	restart func()
	log     *slog.Logger

	last atomic.Int64
	stop chan struct{}
}

// New builds a supervisor. restart runs at most once, on the supervisor
// goroutine; it must not depend on the control loop making progress.
func New(timeout time.Duration, restart func(), log *slog.Logger) *Supervisor {
	s := &Supervisor{
		timeout: timeout,
		restart: restart,
		log:     log,
		stop:    make(chan struct{}),
	}
	s.Heartbeat()
	return s
}

// Heartbeat records that the loop is alive. Safe to call from any
// goroutine.
func (s *Supervisor) Heartbeat() {
	s.last.Store(time.Now().UnixNano())
}

// Start launches the background check.
func (s *Supervisor) Start() {
	go s.run()
}

func (s *Supervisor) run() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-tick.C:
			elapsed := time.Since(time.Unix(0, s.last.Load()))
			if elapsed > s.timeout {
				s.log.Error("control loop stalled, forcing restart",
					"silent_for", elapsed, "timeout", s.timeout)
				s.restart()
				return
			}
		}
	}
}

// Stop disarms the supervisor (used on clean shutdown).
func (s *Supervisor) Stop() {
	close(s.stop)
}
