package dispatch

import (
	"context"
	"time"
)

// Start launches the completion-poll loop. The first poll runs immediately,
// then once per poll interval until Stop is called or ctx is cancelled.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(loopCtx, m.done)
}

// Stop cancels the poll loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.loopMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	m.PollForCompletion(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Debug("completion poller shutting down")
			return
		case <-timer.C:
			m.PollForCompletion(ctx)
			timer.Reset(interval)
		}
	}
}
