package worker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper drops expired entries and reports how many it removed. Len
// reports how many remain.
type Sweeper interface {
	Sweep() int
	Len() int
}

// Janitor periodically sweeps expired sessions out of a process-local store.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewJanitor(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (j *Janitor) Start() {
	go j.loop()
	j.logger.Info("session janitor started", zap.Duration("interval", j.interval))
}

// Stop ends the loop and waits for an in-progress sweep to finish. Safe to
// call more than once.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	<-j.done
}

func (j *Janitor) loop() {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			if n := j.sweeper.Sweep(); n > 0 {
				j.logger.Debug("expired sessions swept",
					zap.Int("count", n),
					zap.Int("remaining", j.sweeper.Len()),
				)
			}
		}
	}
}
