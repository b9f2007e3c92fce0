// Package worldfeed drip-feeds pre-authored content into the network. Items
// come from a JSONL file; the scheduler publishes the first item as soon as
// it starts and the rest on a fixed interval until the source is drained.
package worldfeed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/agokrani/moltbook-api/internal/domain"
	"github.com/agokrani/moltbook-api/internal/metrics"
	"github.com/agokrani/moltbook-api/internal/platform/correlation"
)

// Scheduler states.
const (
	StateIdle    = "idle"
	StateLoaded  = "loaded"
	StateRunning = "running"
	StateStopped = "stopped"
	StateDrained = "drained"
)

// PublishFunc turns a world item into a live post. A failed publish drops
// the item; the scheduler moves on to the next one.
type PublishFunc func(ctx context.Context, item domain.WorldItem) error

// Scheduler walks a loaded item list on a fixed interval. It keeps its
// position across Stop/Start so a restarted feed resumes where it left off
// within this process.
type Scheduler struct {
	publish  PublishFunc
	clock    clockwork.Clock
	interval time.Duration

	mu        sync.Mutex
	items     []domain.WorldItem
	published int
	state     string
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a Scheduler in the idle state.
func NewScheduler(publish PublishFunc, clock clockwork.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{
		publish:  publish,
		clock:    clock,
		interval: interval,
		state:    StateIdle,
	}
}

// Load reads the JSONL source file. Malformed lines are skipped with a
// warning; a missing or unreadable file is an error because a world-mode
// deployment cannot run without its content.
func (s *Scheduler) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open world source: %w", err)
	}
	defer file.Close()

	var items []domain.WorldItem
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var item domain.WorldItem
		if err := json.Unmarshal(line, &item); err != nil || item.Title == "" {
			metrics.WorldItemsSkippedTotal.Inc()
			slog.Warn("Skipping malformed world source line", "path", path, "line", lineNo)
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read world source: %w", err)
	}

	s.mu.Lock()
	s.items = items
	s.published = 0
	s.state = StateLoaded
	s.mu.Unlock()

	slog.Info("World source loaded", "path", path, "items", len(items))
	return nil
}

// Start publishes the next item synchronously and then continues on the
// ticker. Returns an error if the scheduler is already running or has
// nothing left to publish.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	switch {
	case s.state == StateRunning:
		s.mu.Unlock()
		return fmt.Errorf("world feed already running")
	case s.state == StateIdle:
		s.mu.Unlock()
		return fmt.Errorf("world feed has no source loaded")
	case s.published >= len(s.items):
		s.state = StateDrained
		s.mu.Unlock()
		return fmt.Errorf("world feed is drained")
	}
	s.state = StateRunning
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	// First item goes out before the caller gets control back.
	s.publishNext()

	if s.drainedNow() {
		return nil
	}

	s.wg.Add(1)
	go s.run(stopCh)
	return nil
}

func (s *Scheduler) run(stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.publishNext()
			if s.drainedNow() {
				return
			}
		case <-stopCh:
			return
		}
	}
}

func (s *Scheduler) publishNext() {
	s.mu.Lock()
	if s.published >= len(s.items) {
		s.mu.Unlock()
		return
	}
	item := s.items[s.published]
	s.published++
	s.mu.Unlock()

	ctx := correlation.NewContext(context.Background())
	if err := s.publish(ctx, item); err != nil {
		metrics.WorldItemsDroppedTotal.Inc()
		slog.ErrorContext(ctx, "World item publish failed, dropping", "title", item.Title, "error", err)
		return
	}

	metrics.WorldItemsPublishedTotal.Inc()
	slog.InfoContext(ctx, "World item published", "title", item.Title)
}

// drainedNow flips the state once the last item has been consumed.
func (s *Scheduler) drainedNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published >= len(s.items) {
		s.state = StateDrained
		return true
	}
	return false
}

// Stop halts the ticker loop and waits for it to exit. Items already
// published stay published; the remainder waits for the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Status reports the scheduler's current position.
func (s *Scheduler) Status() domain.WorldFeedStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.WorldFeedStatus{
		State:     s.state,
		Running:   s.state == StateRunning,
		Published: s.published,
		Remaining: len(s.items) - s.published,
		Total:     len(s.items),
		Interval:  s.interval,
	}
}
