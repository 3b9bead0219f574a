package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"
	"auction-settlement/pkg/utils"

	"github.com/robfig/cron/v3"
)

var ErrSchedulerStopped = errors.New("scheduler is stopped")

// AuctionScheduler owns the auction lifecycle. Each auction gets two
// delayed triggers, open at StartTime and close at EndTime. Triggers
// check the current lifecycle state before applying, so duplicate or
// reordered firings never re-open or re-close an auction.
type AuctionScheduler struct {
	repo     domain.AuctionRepository
	eventPub domain.EventPublisher
	cron     *cron.Cron
	log      logger.Logger

	mutex    sync.Mutex
	auctions map[string]*scheduledAuction
	stopped  bool
}

type scheduledAuction struct {
	auction    *domain.Auction
	openTimer  *time.Timer
	closeTimer *time.Timer
}

func NewAuctionScheduler(repo domain.AuctionRepository, eventPub domain.EventPublisher,
	log logger.Logger) *AuctionScheduler {
	return &AuctionScheduler{
		repo:     repo,
		eventPub: eventPub,
		cron:     cron.New(cron.WithSeconds()),
		log:      log,
		auctions: make(map[string]*scheduledAuction),
	}
}

// Start arms the recovery sweep: every minute unfinished auctions are
// reloaded from the repository and re-scheduled. Schedule is
// idempotent, so auctions already armed are untouched; transitions
// missed across a restart fire on the first sweep.
func (s *AuctionScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting auction scheduler")

	if _, err := s.cron.AddFunc("@every 1m", func() {
		s.sweep(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.sweep(ctx)
	return nil
}

// Stop cancels every outstanding timer without emitting partial events.
func (s *AuctionScheduler) Stop() error {
	s.log.Info("Stopping auction scheduler")
	s.cron.Stop()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stopped = true
	for _, sa := range s.auctions {
		if sa.openTimer != nil {
			sa.openTimer.Stop()
		}
		if sa.closeTimer != nil {
			sa.closeTimer.Stop()
		}
	}
	return nil
}

// CreateAuction persists a new auction and arms its triggers.
func (s *AuctionScheduler) CreateAuction(ctx context.Context, description string,
	startTime, endTime time.Time) (*domain.Auction, error) {
	auction := &domain.Auction{
		ID:          utils.GenerateID("auction"),
		Description: description,
		StartTime:   startTime,
		EndTime:     endTime,
		Status:      domain.AuctionScheduled,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}

	if err := s.Schedule(ctx, auction); err != nil {
		return nil, err
	}

	s.log.Info("Auction created", "auction_id", auction.ID)
	return auction, nil
}

// Schedule arms the open and close triggers for an auction. Scheduling
// an auction whose triggers are already armed is a no-op.
func (s *AuctionScheduler) Schedule(ctx context.Context, auction *domain.Auction) error {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return ErrSchedulerStopped
	}
	if _, exists := s.auctions[auction.ID]; exists {
		s.mutex.Unlock()
		return nil
	}

	a := *auction
	sa := &scheduledAuction{auction: &a}
	s.auctions[a.ID] = sa

	now := time.Now()
	openDelay := a.StartTime.Sub(now)
	closeDelay := a.EndTime.Sub(now)

	if openDelay > 0 {
		sa.openTimer = time.AfterFunc(openDelay, func() {
			s.openAuction(context.Background(), a.ID)
		})
	}
	if closeDelay > 0 {
		sa.closeTimer = time.AfterFunc(closeDelay, func() {
			s.closeAuction(context.Background(), a.ID)
		})
	}
	s.mutex.Unlock()

	// Past triggers fire right away; a close in the past must still
	// fire so settlement is never silently skipped.
	if openDelay <= 0 {
		s.openAuction(ctx, a.ID)
	}
	if closeDelay <= 0 {
		s.closeAuction(ctx, a.ID)
	}

	return nil
}

func (s *AuctionScheduler) openAuction(ctx context.Context, auctionID string) {
	s.mutex.Lock()
	sa, exists := s.auctions[auctionID]
	if !exists || s.stopped || sa.auction.Status != domain.AuctionScheduled {
		s.mutex.Unlock()
		return
	}
	sa.auction.Status = domain.AuctionOpen
	sa.auction.UpdatedAt = time.Now()
	event := domain.AuctionOpenedEvent{
		ID:          sa.auction.ID,
		Description: sa.auction.Description,
		StartTime:   sa.auction.StartTime,
		EndTime:     sa.auction.EndTime,
	}
	s.mutex.Unlock()

	s.log.Info("Opening auction", "auction_id", auctionID)

	if err := s.repo.UpdateAuctionStatus(ctx, auctionID, domain.AuctionOpen); err != nil {
		s.log.Error("Failed to persist auction open", "auction_id", auctionID, "error", err)
	}

	// The transition is never rolled back; consumers dedupe opens by
	// auction id, so retried emissions are safe.
	if err := s.eventPub.Publish(ctx, domain.TopicAuctionOpened, event); err != nil {
		s.log.Error("Failed to publish auction opened", "auction_id", auctionID, "error", err)
	}
}

func (s *AuctionScheduler) closeAuction(ctx context.Context, auctionID string) {
	s.mutex.Lock()
	sa, exists := s.auctions[auctionID]
	if !exists || s.stopped || sa.auction.Status == domain.AuctionClosed {
		s.mutex.Unlock()
		return
	}
	// A close trigger may arrive before the open fired; close applies
	// from whatever state it finds.
	sa.auction.Status = domain.AuctionClosed
	sa.auction.UpdatedAt = time.Now()
	if sa.openTimer != nil {
		sa.openTimer.Stop()
	}
	s.mutex.Unlock()

	s.log.Info("Closing auction", "auction_id", auctionID)

	if err := s.repo.UpdateAuctionStatus(ctx, auctionID, domain.AuctionClosed); err != nil {
		s.log.Error("Failed to persist auction close", "auction_id", auctionID, "error", err)
	}

	event := domain.AuctionClosedEvent{ID: auctionID}
	if err := s.eventPub.Publish(ctx, domain.TopicAuctionClosed, event); err != nil {
		s.log.Error("Failed to publish auction closed", "auction_id", auctionID, "error", err)
	}
}

func (s *AuctionScheduler) sweep(ctx context.Context) {
	auctions, err := s.repo.GetUnfinishedAuctions(ctx)
	if err != nil {
		s.log.Error("Failed to load unfinished auctions", "error", err)
		return
	}

	for _, auction := range auctions {
		if err := s.Schedule(ctx, auction); err != nil {
			s.log.Error("Failed to schedule auction", "auction_id", auction.ID, "error", err)
		}
	}
}
