package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"nse_alert_bot/internal/app" // For CycleResult

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrCycleInProgress is returned by TriggerNow when another ingest cycle
// holds the single-flight guard. Callers get an immediate answer instead of
// queueing behind the running cycle.
var ErrCycleInProgress = errors.New("an ingest cycle is already in progress")

// CycleRunner is the one operation the scheduler drives. Satisfied by
// app.IngestService.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*app.CycleResult, error)
}

// Config controls the polling cadence. Polling runs at ShortInterval inside
// the active window (weekday range + inclusive hour range) and LongInterval
// outside it.
type Config struct {
	ActiveDayStart  time.Weekday
	ActiveDayEnd    time.Weekday
	ActiveHourStart int
	ActiveHourEnd   int

	ShortInterval time.Duration
	LongInterval  time.Duration
	ErrorCooldown time.Duration // pause after a panic inside a cycle
	CycleTimeout  time.Duration // context deadline for one full cycle

	// Optional cron spec for one extra fetch outside the regular cadence
	// (the original deployment ran one at 16:00 after market close). Empty
	// disables it.
	PostMarketCronSpec string

	// SleepStep is the granularity at which the interval sleep checks the
	// stop flag. Defaults to one second; tests shrink it.
	SleepStep time.Duration
}

func (c Config) withDefaults() Config {
	if c.ShortInterval <= 0 {
		c.ShortInterval = 2 * time.Minute
	}
	if c.LongInterval <= 0 {
		c.LongInterval = 5 * time.Minute
	}
	if c.ErrorCooldown <= 0 {
		c.ErrorCooldown = time.Minute
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 2 * time.Minute
	}
	if c.SleepStep <= 0 {
		c.SleepStep = time.Second
	}
	return c
}

// Snapshot is a point-in-time copy of the schedule state, safe to read while
// a cycle is in flight. The operator surface serves it without ever touching
// the cycle itself.
type Snapshot struct {
	Running           bool             `json:"running"`
	CurrentInterval   time.Duration    `json:"current_interval"`
	LastCycleAt       time.Time        `json:"last_cycle_at"`
	LastCycleError    string           `json:"last_cycle_error,omitempty"`
	CyclesRun         int64            `json:"cycles_run"`
	NewRecords        int64            `json:"new_records"`
	NotificationsSent int64            `json:"notifications_sent"`
	LastResult        *app.CycleResult `json:"last_result,omitempty"`
}

// PollScheduler drives the ingest cycle on a variable-interval loop. One
// background goroutine owns the loop; cycles never overlap. The loop and
// the on-demand trigger serialize on a single-permit guard, and a trigger
// that loses simply reports ErrCycleInProgress.
type PollScheduler struct {
	cfg    Config
	ingest CycleRunner
	logger *logrus.Entry
	now    func() time.Time

	// cycleMu is the single-flight guard around cycle execution. The loop
	// blocks on it, TriggerNow try-locks it.
	cycleMu sync.Mutex

	mu                sync.Mutex // guards everything below
	running           bool
	stopCh            chan struct{}
	done              chan struct{}
	cronEngine        *cron.Cron
	currentInterval   time.Duration
	lastCycleAt       time.Time
	lastCycleError    string
	cyclesRun         int64
	newRecords        int64
	notificationsSent int64
	lastResult        *app.CycleResult
}

func NewPollScheduler(ingest CycleRunner, cfg Config, logger *logrus.Entry) *PollScheduler {
	return &PollScheduler{
		cfg:    cfg.withDefaults(),
		ingest: ingest,
		logger: logger,
		now:    time.Now,
	}
}

// Start launches the polling loop. The first cycle runs immediately; after
// that the loop alternates interval sleeps and cycles until Stop. Calling
// Start on a running scheduler is a no-op.
func (s *PollScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.currentInterval = s.nextIntervalLocked()

	if s.cfg.PostMarketCronSpec != "" {
		s.cronEngine = cron.New(cron.WithLocation(time.Local))
		_, err := s.cronEngine.AddFunc(s.cfg.PostMarketCronSpec, s.postMarketFetch)
		if err != nil {
			s.logger.WithError(err).Error("Could not add post-market cron job; continuing without it")
			s.cronEngine = nil
		} else {
			s.cronEngine.Start()
		}
	}
	s.mu.Unlock()

	s.logger.Info("Polling scheduler started")
	go s.loop()
}

// Stop interrupts any in-flight sleep, waits for the loop (and a cycle in
// progress, if any) to finish, and shuts down the cron engine. After Stop
// returns no new cycle will start. Stop is idempotent.
func (s *PollScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	cronEngine := s.cronEngine
	s.cronEngine = nil
	s.mu.Unlock()

	if cronEngine != nil {
		ctx := cronEngine.Stop()
		<-ctx.Done()
	}
	<-done
	s.logger.Info("Polling scheduler stopped")
}

// TriggerNow runs one out-of-band cycle for the operator surface. If a cycle
// is already executing it returns ErrCycleInProgress instead of queueing.
func (s *PollScheduler) TriggerNow(ctx context.Context) (*app.CycleResult, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	s.logger.Info("Manual fetch triggered")
	res, err := s.ingest.RunCycle(ctx)
	s.recordResult(res, err)
	return res, err
}

// Snapshot returns a copy of the current schedule state.
func (s *PollScheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Running:           s.running,
		CurrentInterval:   s.currentInterval,
		LastCycleAt:       s.lastCycleAt,
		LastCycleError:    s.lastCycleError,
		CyclesRun:         s.cyclesRun,
		NewRecords:        s.newRecords,
		NotificationsSent: s.notificationsSent,
		LastResult:        s.lastResult,
	}
}

// NextInterval reports the polling interval in effect at t.
func (s *PollScheduler) NextInterval(t time.Time) time.Duration {
	if s.inActiveWindow(t) {
		return s.cfg.ShortInterval
	}
	return s.cfg.LongInterval
}

func (s *PollScheduler) inActiveWindow(t time.Time) bool {
	wd := t.Weekday()
	if wd < s.cfg.ActiveDayStart || wd > s.cfg.ActiveDayEnd {
		return false
	}
	return t.Hour() >= s.cfg.ActiveHourStart && t.Hour() <= s.cfg.ActiveHourEnd
}

func (s *PollScheduler) loop() {
	defer close(s.done)

	s.runGuardedCycle()
	for {
		interval := s.NextInterval(s.now())
		s.mu.Lock()
		s.currentInterval = interval
		s.mu.Unlock()

		s.logger.WithField("interval", interval.String()).Debug("Sleeping until next cycle")
		if !s.sleep(interval) {
			return
		}
		s.runGuardedCycle()
	}
}

// sleep waits for d in SleepStep increments, returning false as soon as the
// scheduler is stopped so Stop is honored within roughly one increment.
func (s *PollScheduler) sleep(d time.Duration) bool {
	deadline := s.now().Add(d)
	timer := time.NewTimer(s.cfg.SleepStep)
	defer timer.Stop()
	for {
		select {
		case <-s.stopCh:
			return false
		case <-timer.C:
		}
		if !s.now().Before(deadline) {
			return true
		}
		timer.Reset(s.cfg.SleepStep)
	}
}

// runGuardedCycle executes one cycle under the single-flight guard. A panic
// inside the cycle is contained here: logged, followed by a cooldown, never
// allowed to kill the loop.
func (s *PollScheduler) runGuardedCycle() {
	if s.runCycleOnce() {
		s.logger.WithField("cooldown", s.cfg.ErrorCooldown.String()).Warn("Cooling down after cycle panic")
		s.sleep(s.cfg.ErrorCooldown)
	}
}

func (s *PollScheduler) runCycleOnce() (needCooldown bool) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Ingest cycle panicked")
			s.recordResult(nil, fmt.Errorf("cycle panicked: %v", r))
			needCooldown = true
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CycleTimeout)
	defer cancel()

	res, err := s.ingest.RunCycle(ctx)
	s.recordResult(res, err)
	if err != nil {
		// Expected failure classes (source down, store down) are retried by
		// the next tick; nothing further to do here.
		s.logger.WithError(err).Warn("Ingest cycle finished with error; next tick will retry")
	} else if res != nil {
		s.logger.WithFields(logrus.Fields{
			"new":        len(res.NewRecords),
			"duplicates": res.Duplicates,
			"skipped":    res.Skipped,
		}).Info("Ingest cycle finished")
	}
	return false
}

func (s *PollScheduler) recordResult(res *app.CycleResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycleAt = s.now()
	s.cyclesRun++
	s.lastCycleError = ""
	if err != nil {
		s.lastCycleError = err.Error()
	}
	if res != nil {
		s.lastResult = res
		s.newRecords += int64(len(res.NewRecords))
		sent := int64(len(res.NewRecords)) - int64(res.NotifyFailures)
		if sent > 0 {
			s.notificationsSent += sent
		}
	}
}

func (s *PollScheduler) postMarketFetch() {
	s.logger.Info("Post-market cron job triggered")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CycleTimeout)
	defer cancel()
	if _, err := s.TriggerNow(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		s.logger.WithError(err).Warn("Post-market fetch finished with error")
	}
}

func (s *PollScheduler) nextIntervalLocked() time.Duration {
	if s.inActiveWindow(s.now()) {
		return s.cfg.ShortInterval
	}
	return s.cfg.LongInterval
}
