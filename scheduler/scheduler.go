package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownTask is returned by RunNow for unregistered names.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the scheduler stops.
type TaskFn func(ctx context.Context) error

// TaskInfo is a snapshot of a ticker task's history.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	LastError string        `json:"last_error,omitempty"`
}

// Observer is told about every ticker task run.
type Observer interface {
	ObserveTask(name string, err error, d time.Duration)
}

// Scheduler manages periodic and delayed tasks.
type Scheduler struct {
	mu       sync.Mutex
	tickers  map[string]*tickerEntry
	timers   map[string]*time.Timer
	observer Observer
	logger   *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

type tickerEntry struct {
	name     string
	interval time.Duration
	fn       TaskFn
	ticker   *time.Ticker
	stopCh   chan struct{}
	// running keeps a tick and a manual run from overlapping.
	running sync.Mutex

	statMu   sync.Mutex
	runs     int64
	failures int64
	lastRun  time.Time
	lastErr  string
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		timers:  make(map[string]*time.Timer),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetObserver attaches o to all ticker runs. Call it before adding tasks.
func (s *Scheduler) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced. A non-positive
// interval disables the task.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	if interval <= 0 {
		s.logger.Info("scheduler task disabled", zap.String("name", name))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		name:     name,
		interval: interval,
		fn:       fn,
		ticker:   time.NewTicker(interval),
		stopCh:   make(chan struct{}),
	}
	s.tickers[name] = entry

	go func() {
		defer entry.ticker.Stop()
		for {
			select {
			case <-entry.ticker.C:
				// Skip the tick if the previous run is still going.
				if entry.running.TryLock() {
					s.run(entry)
					entry.running.Unlock()
				}
			case <-entry.stopCh:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// RunNow runs a registered ticker task immediately and returns its error.
// It waits for an in-flight run of the same task to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	entry, ok := s.tickers[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	entry.running.Lock()
	defer entry.running.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	return s.exec(runCtx, entry)
}

func (s *Scheduler) run(entry *tickerEntry) {
	_ = s.exec(s.ctx, entry)
}

func (s *Scheduler) exec(ctx context.Context, entry *tickerEntry) (err error) {
	s.mu.Lock()
	obs := s.observer
	s.mu.Unlock()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", entry.name),
				zap.Any("recover", r))
			err = fmt.Errorf("task %s panicked: %v", entry.name, r)
		}
		entry.record(err)
		if obs != nil {
			obs.ObserveTask(entry.name, err, time.Since(start))
		}
	}()
	err = entry.fn(ctx)
	if err != nil {
		s.logger.Warn("scheduler task failed", zap.String("task", entry.name), zap.Error(err))
	}
	return err
}

func (e *tickerEntry) record(err error) {
	e.statMu.Lock()
	defer e.statMu.Unlock()
	e.runs++
	e.lastRun = time.Now()
	e.lastErr = ""
	if err != nil {
		e.failures++
		e.lastErr = err.Error()
	}
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	s.timers[name] = time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("delay task panicked",
					zap.String("task", name), zap.Any("recover", r))
			}
			s.mu.Lock()
			delete(s.timers, name)
			s.mu.Unlock()
		}()
		if s.ctx.Err() != nil {
			return
		}
		if err := fn(s.ctx); err != nil {
			s.logger.Warn("delay task failed", zap.String("task", name), zap.Error(err))
		}
	})
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop stops all tasks and cancels the context of running ones.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
}

// ListTickers returns the names of all registered ticker tasks, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Tasks returns a snapshot of every ticker task, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	entries := make([]*tickerEntry, 0, len(s.tickers))
	for _, e := range s.tickers {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		e.statMu.Lock()
		out = append(out, TaskInfo{
			Name:      e.name,
			Interval:  e.interval,
			Runs:      e.runs,
			Failures:  e.failures,
			LastRun:   e.lastRun,
			LastError: e.lastErr,
		})
		e.statMu.Unlock()
	}
	slices.SortFunc(out, func(a, b TaskInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
