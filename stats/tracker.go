package stats

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yourusername/atomcache/internal/intern"
	"github.com/yourusername/atomcache/logging"
)

// Source is anything that can report table statistics.
type Source interface {
	Stats() intern.Stats
}

// Options configures a Tracker. A nil Logger disables periodic logging and
// a non-positive Interval defaults to two seconds.
type Options struct {
	Logger   *logging.Logger
	Interval time.Duration
	Table    Source
}

// Tracker counts workload operations and periodically logs them together
// with the table's own counters.
type Tracker struct {
	ops      atomic.Int64
	static   atomic.Int64
	releases atomic.Int64

	mu    sync.RWMutex
	start time.Time

	table    Source
	logger   *logging.Logger
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// Snapshot is a point-in-time view of a tracker and its table.
type Snapshot struct {
	Ops      int64
	Static   int64
	Releases int64
	Duration time.Duration
	Table    intern.Stats
}

// NewTracker returns a tracker that has not started its clock yet.
func NewTracker(opts Options) *Tracker {
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Tracker{
		table:    opts.Table,
		logger:   opts.Logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start records the start time and, when a logger is set, logs a snapshot
// every interval until ctxDone closes or Stop is called.
func (t *Tracker) Start(ctxDone <-chan struct{}) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.start = time.Now()
	t.mu.Unlock()

	if t.logger == nil {
		return
	}

	t.ticker = time.NewTicker(t.interval)
	go func() {
		for {
			select {
			case <-t.ticker.C:
				t.logSnapshot(false)
			case <-ctxDone:
				return
			case <-t.done:
				return
			}
		}
	}()
}

// Stop halts periodic logging, logs a final summary and returns it.
func (t *Tracker) Stop() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.stopOnce.Do(func() {
		close(t.done)
		if t.ticker != nil {
			t.ticker.Stop()
		}
		t.logSnapshot(true)
	})
	return t.Snapshot()
}

// RecordNew counts one atom creation; static reports whether it came from
// the static vocabulary.
func (t *Tracker) RecordNew(static bool) {
	if t == nil {
		return
	}
	t.ops.Add(1)
	if static {
		t.static.Add(1)
	}
}

func (t *Tracker) RecordRelease() {
	if t == nil {
		return
	}
	t.releases.Add(1)
}

func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	start := t.start
	t.mu.RUnlock()

	s := Snapshot{
		Ops:      t.ops.Load(),
		Static:   t.static.Load(),
		Releases: t.releases.Load(),
	}
	if !start.IsZero() {
		s.Duration = time.Since(start)
	}
	if t.table != nil {
		s.Table = t.table.Stats()
	}
	return s
}

// OpsPerSecond returns the observed throughput.
func (s Snapshot) OpsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Ops) / s.Duration.Seconds()
}

func (t *Tracker) logSnapshot(final bool) {
	if t == nil || t.logger == nil {
		return
	}
	snapshot := t.Snapshot()
	if final {
		t.logger.Infof("Run statistics: %s", Render(snapshot))
		return
	}
	t.logger.Infof("Stats update: %s", Render(snapshot))
}

// Render formats a snapshot as a single human readable line.
func Render(s Snapshot) string {
	parts := []string{
		fmt.Sprintf("ops=%s", humanize.Comma(s.Ops)),
		fmt.Sprintf("rate=%s/s", humanize.CommafWithDigits(s.OpsPerSecond(), 0)),
		fmt.Sprintf("static=%s", humanize.Comma(s.Static)),
		fmt.Sprintf("releases=%s", humanize.Comma(s.Releases)),
		fmt.Sprintf("duration=%s", s.Duration.Truncate(time.Millisecond)),
	}
	if s.Table.Buckets > 0 {
		parts = append(parts, RenderTable(s.Table))
	}
	return strings.Join(parts, " | ")
}

// RenderTable formats table statistics.
func RenderTable(s intern.Stats) string {
	return fmt.Sprintf("entries=%s (%s) hit_rate=%.1f%% resurrections=%s removes=%s max_bucket=%d/%d",
		humanize.Comma(int64(s.Entries)),
		humanize.IBytes(uint64(max(s.Bytes, 0))),
		s.HitRate()*100,
		humanize.Comma(int64(s.Resurrections)),
		humanize.Comma(int64(s.Removes)),
		s.MaxBucketLen,
		s.Buckets,
	)
}
