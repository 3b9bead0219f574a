package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"auction-settlement/internal/domain"
)

// fakeBus records published events for assertions.
type fakeBus struct {
	mutex  sync.Mutex
	events []publishedEvent
	fail   int // fail the next N publishes
}

type publishedEvent struct {
	topic string
	data  []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{}
}

func (b *fakeBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.fail > 0 {
		b.fail--
		return context.DeadlineExceeded
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.events = append(b.events, publishedEvent{topic: topic, data: data})
	return nil
}

func (b *fakeBus) eventsFor(topic string) [][]byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var out [][]byte
	for _, e := range b.events {
		if e.topic == topic {
			out = append(out, e.data)
		}
	}
	return out
}

func (b *fakeBus) lastFor(topic string) []byte {
	events := b.eventsFor(topic)
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

// fakeAuctionRepo is an in-memory AuctionRepository.
type fakeAuctionRepo struct {
	mutex    sync.Mutex
	auctions map[string]*domain.Auction
}

func newFakeAuctionRepo() *fakeAuctionRepo {
	return &fakeAuctionRepo{auctions: make(map[string]*domain.Auction)}
}

func (r *fakeAuctionRepo) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	a := *auction
	r.auctions[auction.ID] = &a
	return nil
}

func (r *fakeAuctionRepo) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	auction, ok := r.auctions[auctionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	a := *auction
	return &a, nil
}

func (r *fakeAuctionRepo) UpdateAuctionStatus(ctx context.Context, auctionID string, status domain.AuctionStatus) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if auction, ok := r.auctions[auctionID]; ok {
		auction.Status = status
	}
	return nil
}

func (r *fakeAuctionRepo) GetUnfinishedAuctions(ctx context.Context) ([]*domain.Auction, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []*domain.Auction
	for _, auction := range r.auctions {
		if auction.Status != domain.AuctionClosed {
			a := *auction
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r *fakeAuctionRepo) status(auctionID string) domain.AuctionStatus {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if auction, ok := r.auctions[auctionID]; ok {
		return auction.Status
	}
	return domain.AuctionScheduled
}

// fakePaymentRepo is an in-memory PaymentRepository.
type fakePaymentRepo struct {
	mutex    sync.Mutex
	payments map[string]*domain.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*domain.Payment)}
}

func (r *fakePaymentRepo) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	p := *payment
	r.payments[payment.ID] = &p
	return nil
}

func (r *fakePaymentRepo) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p := *payment
	return &p, nil
}

func (r *fakePaymentRepo) GetPaymentByAuction(ctx context.Context, auctionID string) (*domain.Payment, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, payment := range r.payments {
		if payment.AuctionID == auctionID {
			p := *payment
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakePaymentRepo) UpdatePaymentStatus(ctx context.Context, paymentID string, status domain.PaymentStatus, updatedAt time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if payment, ok := r.payments[paymentID]; ok {
		payment.Status = status
		payment.UpdatedAt = updatedAt
	}
	return nil
}

func (r *fakePaymentRepo) ListPayments(ctx context.Context) ([]*domain.Payment, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []*domain.Payment
	for _, payment := range r.payments {
		p := *payment
		out = append(out, &p)
	}
	return out, nil
}
