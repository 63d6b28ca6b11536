// Package scheduler runs background jobs. The expiry sweeper moves campaigns whose
// deadline passed without reaching the goal to expired, so listings and events do not
// wait for the next call on each campaign.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/campaign"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/metrics"
)

const (
	expirySweepJobName  = "campaign_expiry_sweep"
	defaultSweepBatch   = 200
	defaultPoolSize     = 8
	defaultSweepTimeout = 30 * time.Second
)

var (
	errMissingStore     = errors.New("scheduler: store is required")
	errMissingCampaigns = errors.New("scheduler: campaign service is required")
	errMissingHeight    = errors.New("scheduler: height source is required")
	errInvalidInterval  = errors.New("scheduler: sweep interval must be positive")
)

// ExpiryNotifier is told about campaigns the sweeper expired.
type ExpiryNotifier interface {
	CampaignExpired(address string, height uint64)
}

// SweeperConfig configures the expiry sweeper.
type SweeperConfig struct {
	Store     *ledger.Store
	Campaigns *campaign.Service
	Height    func() uint64
	Interval  time.Duration
	BatchSize int
	PoolSize  int
	Notifier  ExpiryNotifier
	Logger    *zap.Logger
}

// Sweeper periodically expires overdue campaigns.
type Sweeper struct {
	store     *ledger.Store
	campaigns *campaign.Service
	height    func() uint64
	interval  time.Duration
	batchSize int
	poolSize  int
	notifier  ExpiryNotifier
	logger    *zap.Logger
	scheduler gocron.Scheduler
}

// NewSweeper validates the configuration and builds a Sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Campaigns == nil {
		return nil, errMissingCampaigns
	}
	if cfg.Height == nil {
		return nil, errMissingHeight
	}
	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:     cfg.Store,
		campaigns: cfg.Campaigns,
		height:    cfg.Height,
		interval:  cfg.Interval,
		batchSize: batch,
		poolSize:  poolSize,
		notifier:  cfg.Notifier,
		logger:    logger,
	}, nil
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.runOnce),
		gocron.WithName(expirySweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return err
	}
	s.scheduler = scheduler
	scheduler.Start()
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep.
func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	s.logger.Info("expiry sweeper stopped")
	return err
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSweepTimeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
	}
}

// Sweep expires every overdue campaign at the current height and returns how many
// changed. Each campaign is refreshed in its own transaction.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	height := s.height()
	due, err := s.store.CampaignsDueForExpiry(height, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return 0, err
	}
	defer pool.Release()

	var (
		expired atomic.Int64
		wg      sync.WaitGroup
	)
	for _, address := range due {
		address := address
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if s.refresh(ctx, address, height) {
				expired.Add(1)
			}
		})
		if submitErr != nil {
			wg.Done()
			s.logger.Warn("expiry refresh not scheduled", zap.String("campaign", address), zap.Error(submitErr))
		}
	}
	wg.Wait()

	count := int(expired.Load())
	if count > 0 {
		s.logger.Info("expiry sweep completed", zap.Int("expired", count), zap.Uint64("height", height))
	}
	return count, nil
}

func (s *Sweeper) refresh(ctx context.Context, address string, height uint64) bool {
	changed := false
	err := s.store.Transaction(ctx, func(store *ledger.Store) error {
		var refreshErr error
		changed, refreshErr = s.campaigns.RefreshStatus(store, address, height)
		return refreshErr
	})
	if err != nil {
		s.logger.Error("expiry refresh failed", zap.String("campaign", address), zap.Error(err))
		return false
	}
	if !changed {
		return false
	}
	metrics.CampaignsExpired.Inc()
	if s.notifier != nil {
		s.notifier.CampaignExpired(address, height)
	}
	return true
}
