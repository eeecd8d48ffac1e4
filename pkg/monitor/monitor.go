// Package monitor runs the periodic watch loop: scan watched paths, diff
// against stored snapshots, persist significant changes, and fan them out
// to subscribers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/detector"
	"github.com/shareguard/shareguard/pkg/notify"
	"github.com/shareguard/shareguard/pkg/scanner"
	"github.com/shareguard/shareguard/pkg/store"
)

// Defaults for the loop cadence and retention.
const (
	DefaultCheckInterval = 60 * time.Second
	DefaultBackoff       = 60 * time.Second
	DefaultReapRetention = 48 * time.Hour
	DefaultStopGrace     = 10 * time.Second
)

// ErrAlreadyRunning is returned by Start while a loop is active.
var ErrAlreadyRunning = errors.New("monitor: already running")

// Config tunes the monitor loop.
type Config struct {
	// CheckInterval is the sleep between cycles.
	CheckInterval time.Duration

	// Backoff is the sleep after a cycle-level failure.
	Backoff time.Duration

	// ReapRetention bounds how long snapshots survive without refresh.
	ReapRetention time.Duration

	// CacheTTL is the staleness cutoff passed to the reaper.
	CacheTTL time.Duration

	// StopGrace bounds how long Stop waits for the loop to exit.
	StopGrace time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.ReapRetention <= 0 {
		c.ReapRetention = DefaultReapRetention
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = store.DefaultTTL
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
}

// Status is the externally visible loop state.
type Status struct {
	Active       bool     `json:"active"`
	WatchedPaths []string `json:"watched_paths"`
	QueueDepth   int      `json:"queue_depth"`
	Connections  int      `json:"connections"`
}

// Monitor owns the watch set and the loop goroutine.
type Monitor struct {
	scanner *scanner.Scanner
	store   *store.Store
	notify  *notify.Service
	config  Config

	mu      sync.Mutex
	watch   map[string]struct{}
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a Monitor. The notification service may be nil; change
// records are still persisted.
func New(sc *scanner.Scanner, st *store.Store, ns *notify.Service, cfg Config) *Monitor {
	cfg.ApplyDefaults()
	return &Monitor{
		scanner: sc,
		store:   st,
		notify:  ns,
		config:  cfg,
		watch:   make(map[string]struct{}),
	}
}

// Start adds paths to the watch set and launches the loop if it is not
// already running.
func (m *Monitor) Start(paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range paths {
		m.watch[p] = struct{}{}
	}
	if m.running {
		return ErrAlreadyRunning
	}

	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.stop, m.done)

	logger.Info("monitor started", logger.KeyTotalPaths, len(m.watch))
	return nil
}

// Stop signals the loop and waits for it to exit, bounded by the stop
// grace on top of the caller's context.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)

	grace := time.NewTimer(m.config.StopGrace)
	defer grace.Stop()
	select {
	case <-done:
		logger.Info("monitor stopped")
		return nil
	case <-grace.C:
		return fmt.Errorf("monitor: loop did not stop within %s", m.config.StopGrace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add watches one more path, taking effect on the next cycle.
func (m *Monitor) Add(path string) {
	m.mu.Lock()
	m.watch[path] = struct{}{}
	m.mu.Unlock()
}

// Remove drops a path from the watch set.
func (m *Monitor) Remove(path string) {
	m.mu.Lock()
	delete(m.watch, path)
	m.mu.Unlock()
}

// Status reports current loop state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	paths := make([]string, 0, len(m.watch))
	for p := range m.watch {
		paths = append(paths, p)
	}
	active := m.running
	m.mu.Unlock()
	sort.Strings(paths)

	s := Status{Active: active, WatchedPaths: paths}
	if m.notify != nil {
		s.QueueDepth = m.notify.QueueDepth()
		s.Connections = m.notify.ConnectionCount()
	}
	return s
}

// loop runs cycles until the stop channel closes. A cycle failure backs
// off instead of killing the loop.
func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		sleep := m.config.CheckInterval
		if err := m.runCycle(stop); err != nil {
			logger.Error("monitor cycle failed", logger.Err(err))
			sleep = m.config.Backoff
		}

		timer := time.NewTimer(sleep)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runCycle executes one pass over the watch set, then reaps expired
// store entries.
func (m *Monitor) runCycle(stop <-chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor: cycle panic: %v", r)
		}
	}()

	cycleID := uuid.New().String()
	ctx := logger.WithContext(context.Background(),
		logger.NewScanContext(cycleID, "monitor"))
	start := time.Now()

	m.mu.Lock()
	paths := make([]string, 0, len(m.watch))
	for p := range m.watch {
		paths = append(paths, p)
	}
	m.mu.Unlock()
	sort.Strings(paths)

	var pathErrors int
	for _, path := range paths {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := m.processPath(ctx, path); err != nil {
			pathErrors++
			logger.WarnCtx(ctx, "monitor: path check failed",
				logger.Path(path), logger.Err(err))
		}
	}

	now := time.Now().UTC()
	reaped, reapErr := m.store.Reap(ctx,
		now.Add(-m.config.ReapRetention), now.Add(-m.config.CacheTTL))
	if reapErr != nil {
		logger.WarnCtx(ctx, "monitor: reap failed", logger.Err(reapErr))
	}

	logger.InfoCtx(ctx, "monitor cycle complete",
		logger.KeyTotalPaths, len(paths),
		"path_errors", pathErrors,
		"reaped", reaped,
		logger.KeyDurationMs, logger.Duration(start))
	return nil
}

// processPath scans one path and handles whatever changed since the
// stored snapshot.
func (m *Monitor) processPath(ctx context.Context, path string) error {
	snap, scanErr := m.scanner.Scan(ctx, path)
	if scanErr != nil {
		if scanErr.Kind == scanner.ErrKindNotFound {
			// Path vanished; keep watching in case it comes back.
			logger.DebugCtx(ctx, "monitor: watched path missing", logger.Path(path))
			return nil
		}
		return scanErr
	}

	var mtime *time.Time
	if t, err := m.scanner.ModTime(ctx, path); err == nil {
		mtime = &t
	}

	entry, err := m.store.GetEntry(ctx, path)
	if errors.Is(err, store.ErrEntryNotFound) {
		// First sighting establishes the baseline.
		return m.store.PutEntry(ctx, snap, mtime)
	}
	if err != nil {
		return err
	}

	cs := detector.Diff(entry.Snapshot, snap)
	if !cs.Significant() {
		return nil
	}

	severity := cs.Severity()
	logger.InfoCtx(ctx, "permission change detected",
		logger.Path(path),
		logger.Severity(string(severity)),
		logger.KeyChecksum, snap.Checksum)

	if err := m.store.PutEntry(ctx, snap, mtime); err != nil {
		return err
	}
	if _, err := m.store.MarkStale(ctx, path); err != nil {
		return err
	}

	records := changeRecords(cs, severity)
	for _, rec := range records {
		if err := m.store.AddChange(ctx, rec); err != nil {
			return err
		}
	}

	if m.notify != nil && len(records) > 0 {
		m.notify.Publish(changeEnvelope(cs, records[0], severity))
	}
	return nil
}
