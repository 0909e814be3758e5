package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Watchdog periodically reconciles every tracked outlet's persisted status
// against its live connection and nudges dead sessions back up.
type Watchdog struct {
	log      *zap.Logger
	manager  *Manager
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewWatchdog(log *zap.Logger, manager *Manager, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watchdog{
		log:      log,
		manager:  manager,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Watchdog) Start() {
	go w.run()
}

func (w *Watchdog) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watchdog) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Watchdog) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()
	for _, id := range w.manager.reg.OutletIDs() {
		if w.manager.reg.Blocked(id) || w.manager.reg.Connecting(id) {
			continue
		}
		if _, err := w.manager.GetStatus(ctx, id, true); err != nil {
			w.log.Warn("watchdog reconcile failed", zap.String("outlet_id", id), zap.Error(err))
		}
	}
}
