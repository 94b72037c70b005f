// internal/app/ingest_service.go
package app

import (
	"context"
	"errors"
	"time"

	"nse_alert_bot/internal/domain/announcement"
	"nse_alert_bot/internal/domain/source"
	idb "nse_alert_bot/internal/infra/database" // For repository error values

	"github.com/sirupsen/logrus"
)

// Notifier delivers alerts for newly stored announcements. Failures are
// best-effort territory: the ingest cycle logs and counts them but never
// propagates them, and a stored record is never rolled back because its
// alert could not be sent.
type Notifier interface {
	Notify(ctx context.Context, rec *announcement.Record) error
	NotifySummary(ctx context.Context, recs []*announcement.Record) error
}

// CycleResult summarizes one fetch-normalize-dedup-persist-notify pass. It
// is ephemeral: the scheduler logs it and the operator surface echoes the
// latest one, nothing persists it.
type CycleResult struct {
	NewRecords     []*announcement.Record `json:"new_records"`
	Fetched        int                    `json:"fetched"`
	Skipped        int                    `json:"skipped"`    // empty/filtered items
	Duplicates     int                    `json:"duplicates"` // already stored
	NotifyFailures int                    `json:"notify_failures"`
	Aborted        bool                   `json:"aborted"` // store went unavailable mid-cycle
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     time.Time              `json:"finished_at"`
}

// IngestService orchestrates one ingest cycle. It owns no schedule state;
// the scheduler (and the manual trigger) call RunCycle and interpret the
// result.
type IngestService struct {
	client           source.Client
	normalizer       *Normalizer
	repo             announcement.Repository
	notifier         Notifier
	summaryThreshold int
	logger           *logrus.Entry
}

func NewIngestService(
	client source.Client,
	normalizer *Normalizer,
	repo announcement.Repository,
	notifier Notifier,
	summaryThreshold int,
	logger *logrus.Entry,
) *IngestService {
	return &IngestService{
		client:           client,
		normalizer:       normalizer,
		repo:             repo,
		notifier:         notifier,
		summaryThreshold: summaryThreshold,
		logger:           logger,
	}
}

// RunCycle performs one ingest pass. The returned CycleResult is always
// non-nil; the error reports a source fetch failure or the store failure
// that aborted the pass. Records inserted before an abort stay inserted and
// still get their alerts. There is no retry inside a cycle; the next
// scheduled tick is the retry.
func (s *IngestService) RunCycle(ctx context.Context) (*CycleResult, error) {
	res := &CycleResult{StartedAt: time.Now()}
	defer func() { res.FinishedAt = time.Now() }()

	items, err := s.client.Fetch(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Source fetch failed; terminating cycle with zero new records")
		return res, err
	}
	res.Fetched = len(items)
	s.logger.WithField("fetched", len(items)).Debug("Source fetch succeeded")

	storeErr := s.ingestItems(ctx, items, res)

	s.notifyNew(ctx, res)

	if storeErr != nil {
		return res, storeErr
	}
	return res, nil
}

// ingestItems walks the raw batch in source order: normalize, dedup-check,
// insert. It returns the store error that aborted the walk, or nil when the
// whole batch was processed.
func (s *IngestService) ingestItems(ctx context.Context, items []source.RawItem, res *CycleResult) error {
	for _, item := range items {
		rec, ok := s.normalizer.Normalize(item)
		if !ok {
			res.Skipped++
			continue
		}

		exists, err := s.repo.Exists(ctx, rec.Symbol, rec.Title)
		if err != nil {
			s.logger.WithError(err).Error("Store unavailable during existence check; aborting remainder of cycle")
			res.Aborted = true
			return err
		}
		if exists {
			res.Duplicates++
			continue
		}

		if err := s.repo.Insert(ctx, rec); err != nil {
			if errors.Is(err, idb.ErrDuplicateAnnouncement) {
				// Another actor inserted the same (symbol, title) pair
				// between our check and our insert. Not our record.
				s.logger.WithFields(logrus.Fields{
					"symbol": rec.Symbol,
					"title":  rec.Title,
				}).Debug("Lost insert race; treating as duplicate")
				res.Duplicates++
				continue
			}
			s.logger.WithError(err).WithField("symbol", rec.Symbol).Error("Store unavailable during insert; aborting remainder of cycle")
			res.Aborted = true
			return err
		}

		s.logger.WithFields(logrus.Fields{
			"symbol": rec.Symbol,
			"title":  truncate(rec.Title, 50),
		}).Info("New announcement stored")
		res.NewRecords = append(res.NewRecords, rec)
	}
	return nil
}

// notifyNew sends one alert per inserted record, in source-arrival order,
// plus a condensed summary when the cycle produced more than the threshold.
func (s *IngestService) notifyNew(ctx context.Context, res *CycleResult) {
	for _, rec := range res.NewRecords {
		if err := s.notifier.Notify(ctx, rec); err != nil {
			res.NotifyFailures++
			s.logger.WithError(err).WithField("symbol", rec.Symbol).Error("Failed to send alert; record stays persisted")
		}
	}

	if s.summaryThreshold > 0 && len(res.NewRecords) > s.summaryThreshold {
		if err := s.notifier.NotifySummary(ctx, res.NewRecords); err != nil {
			res.NotifyFailures++
			s.logger.WithError(err).Error("Failed to send bulk summary")
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
