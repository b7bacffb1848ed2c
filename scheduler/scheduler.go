package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// Scheduler runs maintenance jobs: fixed-interval tickers, one-shot delays
// and five-field cron specs.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	timers  map[string]*time.Timer
	crons   map[string]cron.EntryID
	cron    *cron.Cron
	logger  *zap.Logger
	stopCh  chan struct{}
	started bool
}

type tickerEntry struct {
	ticker *time.Ticker
	stopCh chan struct{}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, zap.Any("kv", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, zap.Error(err), zap.Any("kv", kv))
}

// New creates a Scheduler. Cron jobs only fire after Start.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{l: logger}
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		timers:  make(map[string]*time.Timer),
		crons:   make(map[string]cron.EntryID),
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

func (s *Scheduler) guard(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name), zap.Any("recover", r))
		}
	}()
	fn()
}

// AddTicker registers a task to run on a fixed interval, replacing any task
// with the same name.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
	}
	s.tickers[name] = entry

	go func() {
		defer entry.ticker.Stop()
		for {
			select {
			case <-entry.ticker.C:
				s.guard(name, fn)
			case <-entry.stopCh:
				return
			case <-s.stopCh:
				return
			}
		}
	}()
	s.logger.Info("scheduler ticker registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddCron registers fn under a standard five-field cron spec such as
// "0 4 * * *". An existing job with the same name is replaced.
func (s *Scheduler) AddCron(name, spec string, fn TaskFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.guard(name, fn) })
	if err != nil {
		return fmt.Errorf("scheduler: cron %q: %w", name, err)
	}
	if old, ok := s.crons[name]; ok {
		s.cron.Remove(old)
	}
	s.crons[name] = id
	s.logger.Info("scheduler cron registered", zap.String("name", name), zap.String("spec", spec))
	return nil
}

// NextRun reports when the named cron job fires next. ok is false for
// unknown names or before Start.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.crons[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer func() {
			s.mu.Lock()
			if s.timers[name] == t {
				delete(s.timers, name)
			}
			s.mu.Unlock()
		}()
		s.guard(name, fn)
	})
	s.timers[name] = t
}

// Remove stops and removes a ticker, delay or cron task by name.
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
	if id, ok := s.crons[name]; ok {
		s.cron.Remove(id)
		delete(s.crons, name)
	}
}

// Start begins firing cron jobs. Tickers and delays run from registration.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop stops all tasks and waits for running cron jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		return
	default:
		close(s.stopCh)
	}
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// List returns the sorted names of all registered ticker and cron tasks.
func (s *Scheduler) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers)+len(s.crons))
	for name := range s.tickers {
		names = append(names, name)
	}
	for name := range s.crons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
