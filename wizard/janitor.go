package wizard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	stepflow "github.com/goliatone/go-stepflow"
)

const (
	// DefaultJanitorSchedule runs the janitor hourly.
	DefaultJanitorSchedule = "@hourly"
	// DefaultMaxAge is how long an abandoned snapshot is kept.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithSchedule sets the cron expression (standard five fields or a
// descriptor such as "@every 10m").
func WithSchedule(expr string) JanitorOption {
	return func(j *Janitor) {
		if strings.TrimSpace(expr) != "" {
			j.schedule = expr
		}
	}
}

// WithMaxAge sets how old a snapshot must be before it is pruned.
func WithMaxAge(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.maxAge = d
		}
	}
}

// WithJanitorLogger sets the janitor logger.
func WithJanitorLogger(logger stepflow.Logger) JanitorOption {
	return func(j *Janitor) {
		j.logger = stepflow.NormalizeLogger(logger)
	}
}

// WithJanitorClock overrides time.Now.
func WithJanitorClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

// Janitor periodically prunes snapshots of runs nobody came back to.
type Janitor struct {
	store    Pruner
	schedule string
	maxAge   time.Duration
	logger   stepflow.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *rcron.Cron
	entryID rcron.EntryID
}

// NewJanitor builds a janitor over store.
func NewJanitor(store Pruner, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		store:    store,
		schedule: DefaultJanitorSchedule,
		maxAge:   DefaultMaxAge,
		logger:   stepflow.NormalizeLogger(nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	return j
}

// RunOnce prunes snapshots older than the max age and reports how many were
// removed.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	if j.store == nil {
		return 0, fmt.Errorf("janitor store not configured")
	}
	cutoff := j.now().Add(-j.maxAge)
	n, err := j.store.Prune(ctx, cutoff)
	if err != nil {
		j.logger.Error("snapshot prune failed: %v", err)
		return n, err
	}
	if n > 0 {
		j.logger.Info("pruned %d snapshot(s) older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Start schedules RunOnce. Calling Start twice is a no-op.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}
	c := rcron.New(rcron.WithLogger(cronLogger{logger: j.logger}))
	id, err := c.AddFunc(j.schedule, func() {
		_, _ = j.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}
	j.cron, j.entryID = c, id
	c.Start()
	return nil
}

// Next returns the next scheduled run, or the zero time when stopped.
func (j *Janitor) Next() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron == nil {
		return time.Time{}
	}
	return j.cron.Entry(j.entryID).Next
}

// Stop cancels the schedule and waits for a running prune to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// cronLogger adapts stepflow.Logger to the cron logger, which passes
// key/value pairs.
type cronLogger struct {
	logger stepflow.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron %s%s", msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron %s%s: %v", msg, pairs(keysAndValues), err)
}

func pairs(kv []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
