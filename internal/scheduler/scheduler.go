package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// DigestSource renders the dashboard of one ledger.
type DigestSource interface {
	Digest(ctx context.Context, key models.LedgerKey) (string, error)
}

// Sender delivers a message to the manager.
type Sender interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	schedule  string
	ledgers   []models.LedgerKey
	managerID string
	reporting DigestSource
	messaging Sender
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler instance. messaging may be nil, in
// which case digests are only logged.
func NewScheduler(cfg config.Config, reporting DigestSource, messaging Sender, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Reporting.Timezone, err)
	}

	ledgers := make([]models.LedgerKey, 0, len(cfg.Reporting.DigestLedgers))
	for _, ref := range cfg.Reporting.DigestLedgers {
		ledgers = append(ledgers, models.LedgerKey{FarmID: ref.FarmID, Category: models.Category(ref.Category)})
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		schedule:  cfg.Reporting.CronSchedule,
		ledgers:   ledgers,
		managerID: cfg.WhatsApp.ManagerID,
		reporting: reporting,
		messaging: messaging,
		logger:    logger,
	}, nil
}

// Start registers the digest job and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule), zap.Int("ledgers", len(s.ledgers)))

	if _, err := s.cron.AddFunc(s.schedule, s.runDigest); err != nil {
		return fmt.Errorf("schedule digest %q: %w", s.schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s.SendDigests(ctx)
}

// SendDigests builds the dashboard of every configured ledger and sends it to
// the manager. A failing ledger does not stop the others.
func (s *Scheduler) SendDigests(ctx context.Context) int {
	s.logger.Info("generating ledger digests")

	sent := 0
	for _, key := range s.ledgers {
		digest, err := s.reporting.Digest(ctx, key)
		if err != nil {
			s.logger.Error("failed to build digest", zap.String("ledger", key.String()), zap.Error(err))
			continue
		}

		if s.messaging == nil || s.managerID == "" {
			s.logger.Info("digest ready, no recipient configured", zap.String("ledger", key.String()), zap.String("digest", digest))
			continue
		}

		req := models.OutboundMessageRequest{
			To:      s.managerID,
			Message: digest,
		}
		if err := s.messaging.SendOutbound(ctx, req); err != nil {
			s.logger.Error("failed to send digest", zap.String("ledger", key.String()), zap.Error(err))
			continue
		}
		sent++
	}

	s.logger.Info("ledger digests done", zap.Int("sent", sent), zap.Int("ledgers", len(s.ledgers)))
	return sent
}
