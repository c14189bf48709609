package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamannathakur/Invora/internal/metrics"
	"github.com/tamannathakur/Invora/internal/repositories"
)

const (
	reminderPollInterval = time.Minute
	reminderBatchSize    = 50
)

// ReminderService drives the vendor-ETA reminders. Reminders are durable
// rows, not in-process timers: a restart loses nothing, the next poll picks
// up whatever is due.
type ReminderService interface {
	Run(ctx context.Context)
	ProcessDue(ctx context.Context) (int, error)
}

type reminderService struct {
	reminderRepo repositories.ReminderRepository
	requestRepo  repositories.RequestRepository
	txm          TxManager
	db           repositories.SQLExecutor
	pollEvery    time.Duration
	now          func() time.Time
}

// NewReminderService creates a new instance of ReminderService.
func NewReminderService(
	remr repositories.ReminderRepository,
	rr repositories.RequestRepository,
	db *sql.DB,
) ReminderService {
	return &reminderService{
		reminderRepo: remr,
		requestRepo:  rr,
		txm:          NewTxManager(db),
		db:           db,
		pollEvery:    reminderPollInterval,
		now:          time.Now,
	}
}

// Run polls for due reminders until the context is cancelled. Intended to be
// started as a goroutine from main.
func (s *reminderService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()
	log.Info().Dur("poll_interval", s.pollEvery).Msg("Vendor reminder scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Vendor reminder scheduler stopped")
			return
		case <-ticker.C:
			if fired, err := s.ProcessDue(ctx); err != nil {
				log.Error().Err(err).Msg("Vendor reminder sweep failed")
			} else if fired > 0 {
				log.Info().Int("fired", fired).Msg("Vendor reminders dispatched")
			}
		}
	}
}

// ProcessDue fires every due reminder once and returns how many notified.
// A reminder whose request has already left awaiting_vendor (delivered,
// re-approved) is marked sent without notifying.
func (s *reminderService) ProcessDue(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	due, err := s.reminderRepo.Due(ctx, s.now(), reminderBatchSize)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, reminder := range due {
		notified, err := s.fire(ctx, reminder.ID, reminder.RequestID)
		if err != nil {
			// One bad row must not block the rest of the batch.
			log.Error().Err(err).Int64("request_id", reminder.RequestID).Msg("Vendor reminder failed")
			continue
		}
		if notified {
			fired++
		}
	}
	return fired, nil
}

func (s *reminderService) fire(ctx context.Context, reminderID, requestID int64) (bool, error) {
	notified := false
	err := s.txm.WithinTx(ctx, func(executor repositories.SQLExecutor) error {
		request, err := s.requestRepo.GetByID(ctx, executor, requestID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				// Request is gone; retire the reminder.
				return s.reminderRepo.MarkSent(ctx, executor, reminderID)
			}
			return err
		}
		if request.Status != StatusAwaitingVendor || request.VendorReminderSent {
			// Stale: the request moved on or was already reminded.
			return s.reminderRepo.MarkSent(ctx, executor, reminderID)
		}

		event := log.Warn().
			Int64("request_id", requestID).
			Int64("requested_by", request.RequestedBy)
		if request.VendorETAExpiresAt != nil {
			event = event.Time("eta_expires_at", *request.VendorETAExpiresAt)
		}
		event.Msg("Vendor ETA about to lapse, follow up with the vendor")

		if err := s.requestRepo.MarkReminderSent(ctx, executor, requestID); err != nil {
			return err
		}
		if err := s.reminderRepo.MarkSent(ctx, executor, reminderID); err != nil {
			return err
		}
		notified = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if notified {
		metrics.VendorRemindersTotal.Inc()
	}
	return notified, nil
}
