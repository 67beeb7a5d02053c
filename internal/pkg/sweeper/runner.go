package sweeper

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/habitflow/habitflow/internal/pkg/env"
)

// Runner drives the sweeper on a fixed interval.
type Runner struct {
	sweeper *Sweeper
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewRunner(s *Sweeper) *Runner {
	return &Runner{sweeper: s, stopCh: make(chan struct{})}
}

// Start launches the periodic sweep. The interval comes from
// SWEEP_INTERVAL_MINUTES, default 5.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	interval := 5 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("SWEEP_INTERVAL_MINUTES", "")); err == nil && v > 0 {
		interval = time.Duration(v) * time.Minute
	}

	r.stopCh = make(chan struct{})
	r.running = true
	r.ticker = time.NewTicker(interval)
	log.Infof("[Sweeper] Starting (interval: %s)", interval)

	r.wg.Add(1)
	go r.loop()
}

// Stop halts the periodic sweep and waits for an in-flight run.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	log.Info("[Sweeper] Stopping...")
	r.ticker.Stop()
	close(r.stopCh)
	r.running = false
	r.wg.Wait()
	log.Info("[Sweeper] Stopped")
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C:
			if _, err := r.sweeper.Sweep(time.Now()); err != nil {
				log.Errorf("[Sweeper] Sweep error: %v", err)
			}
		}
	}
}

// IsRunning reports whether the runner is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
