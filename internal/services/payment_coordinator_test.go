package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"

	"github.com/stretchr/testify/require"
)

const testCallbackURL = "http://localhost:8003/api/v1/payments/callback"

// fakeProvider issues deterministic payment links and can be told to
// fail the next N requests.
type fakeProvider struct {
	mutex sync.Mutex
	calls int
	fail  int
}

func (p *fakeProvider) RequestLink(ctx context.Context, auctionID, winnerID string,
	amount float64, callbackURL string) (*domain.PaymentLink, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.calls++
	if p.fail > 0 {
		p.fail--
		return nil, errors.New("provider unavailable")
	}
	return &domain.PaymentLink{
		PaymentID: fmt.Sprintf("pay-%s-%d", auctionID, p.calls),
		Link:      fmt.Sprintf("https://pay.example/%s/%d", auctionID, p.calls),
	}, nil
}

func (p *fakeProvider) callCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.calls
}

func newTestCoordinator(t *testing.T) (*PaymentCoordinator, *fakePaymentRepo, *fakeProvider, *fakeBus) {
	t.Helper()
	repo := newFakePaymentRepo()
	provider := &fakeProvider{}
	bus := newFakeBus()
	coordinator := NewPaymentCoordinator(repo, provider, bus, testCallbackURL, logger.NewNop())
	return coordinator, repo, provider, bus
}

func settlementWithWinner(auctionID, winnerID string, amount float64) *domain.AuctionSettledEvent {
	return &domain.AuctionSettledEvent{
		AuctionID: auctionID,
		WinnerID:  &winnerID,
		Amount:    &amount,
	}
}

func TestCoordinator_SettlementOpensPayment(t *testing.T) {
	coordinator, repo, provider, bus := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coordinator.HandleAuctionSettled(ctx, settlementWithWinner("a1", "u1", 150)))
	require.Equal(t, 1, provider.callCount())

	issued := bus.eventsFor(domain.TopicPaymentLinkIssued)
	require.Len(t, issued, 1)

	var event domain.PaymentLinkIssuedEvent
	require.NoError(t, json.Unmarshal(issued[0], &event))
	require.Equal(t, "a1", event.AuctionID)
	require.Equal(t, "u1", event.WinnerID)
	require.Equal(t, 150.0, event.Amount)
	require.NotEmpty(t, event.Link)

	payment, err := repo.GetPayment(ctx, event.PaymentID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPending, payment.Status)
	require.Equal(t, event.Link, payment.Link)
}

func TestCoordinator_SettlementWithoutWinnerIsNoOp(t *testing.T) {
	coordinator, repo, provider, bus := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coordinator.HandleAuctionSettled(ctx, &domain.AuctionSettledEvent{AuctionID: "a1"}))

	require.Equal(t, 0, provider.callCount())
	require.Empty(t, bus.eventsFor(domain.TopicPaymentLinkIssued))

	payments, err := repo.ListPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestCoordinator_DuplicateSettlementOpensOnePayment(t *testing.T) {
	coordinator, repo, provider, bus := newTestCoordinator(t)
	ctx := context.Background()

	event := settlementWithWinner("a1", "u1", 150)
	require.NoError(t, coordinator.HandleAuctionSettled(ctx, event))
	require.NoError(t, coordinator.HandleAuctionSettled(ctx, event))

	require.Equal(t, 1, provider.callCount())
	require.Len(t, bus.eventsFor(domain.TopicPaymentLinkIssued), 1)

	payments, err := repo.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestCoordinator_ProviderFailureLeavesSettlementRetriable(t *testing.T) {
	coordinator, repo, provider, bus := newTestCoordinator(t)
	ctx := context.Background()

	provider.fail = 1
	event := settlementWithWinner("a1", "u1", 150)
	require.Error(t, coordinator.HandleAuctionSettled(ctx, event))
	require.Empty(t, bus.eventsFor(domain.TopicPaymentLinkIssued))

	// Redelivery after the provider recovers succeeds.
	require.NoError(t, coordinator.HandleAuctionSettled(ctx, event))
	require.Len(t, bus.eventsFor(domain.TopicPaymentLinkIssued), 1)

	payments, err := repo.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestCoordinator_CallbackMovesPaymentToTerminalStatus(t *testing.T) {
	coordinator, repo, _, bus := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coordinator.HandleAuctionSettled(ctx, settlementWithWinner("a1", "u1", 150)))

	var issued domain.PaymentLinkIssuedEvent
	require.NoError(t, json.Unmarshal(bus.lastFor(domain.TopicPaymentLinkIssued), &issued))

	payment, err := coordinator.ReportStatus(ctx, issued.PaymentID, "approved", "card charged")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentApproved, payment.Status)

	stored, err := repo.GetPayment(ctx, issued.PaymentID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentApproved, stored.Status)

	changed := bus.eventsFor(domain.TopicPaymentStatusChanged)
	require.Len(t, changed, 1)

	var event domain.PaymentStatusChangedEvent
	require.NoError(t, json.Unmarshal(changed[0], &event))
	require.Equal(t, issued.PaymentID, event.PaymentID)
	require.Equal(t, "u1", event.WinnerID)
	require.Equal(t, "approved", event.Status)
	require.Equal(t, "card charged", event.Details)
}

func TestCoordinator_SettlementRedeliveredAfterRestartOpensNoSecondPayment(t *testing.T) {
	coordinator, repo, provider, bus := newTestCoordinator(t)
	ctx := context.Background()

	event := settlementWithWinner("a1", "u1", 150)
	require.NoError(t, coordinator.HandleAuctionSettled(ctx, event))
	require.Equal(t, 1, provider.callCount())

	// A fresh coordinator on the same repository models a restart: its
	// in-memory dedupe is empty, the persisted payment is not.
	restarted := NewPaymentCoordinator(repo, provider, bus, testCallbackURL, logger.NewNop())
	require.NoError(t, restarted.HandleAuctionSettled(ctx, event))

	require.Equal(t, 1, provider.callCount())
	require.Len(t, bus.eventsFor(domain.TopicPaymentLinkIssued), 1)

	payments, err := repo.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestCoordinator_ConcurrentIdenticalCallbacksEmitOneEvent(t *testing.T) {
	coordinator, repo, _, bus := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coordinator.HandleAuctionSettled(ctx, settlementWithWinner("a1", "u1", 150)))
	var issued domain.PaymentLinkIssuedEvent
	require.NoError(t, json.Unmarshal(bus.lastFor(domain.TopicPaymentLinkIssued), &issued))

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coordinator.ReportStatus(ctx, issued.PaymentID, "approved", "card charged")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, bus.eventsFor(domain.TopicPaymentStatusChanged), 1)

	stored, err := repo.GetPayment(ctx, issued.PaymentID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentApproved, stored.Status)
}

func TestCoordinator_DuplicateCallbackIsIdempotent(t *testing.T) {
	coordinator, _, _, bus := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coordinator.HandleAuctionSettled(ctx, settlementWithWinner("a1", "u1", 150)))
	var issued domain.PaymentLinkIssuedEvent
	require.NoError(t, json.Unmarshal(bus.lastFor(domain.TopicPaymentLinkIssued), &issued))

	_, err := coordinator.ReportStatus(ctx, issued.PaymentID, "declined", "insufficient funds")
	require.NoError(t, err)
	_, err = coordinator.ReportStatus(ctx, issued.PaymentID, "declined", "insufficient funds")
	require.NoError(t, err)

	require.Len(t, bus.eventsFor(domain.TopicPaymentStatusChanged), 1)
}

func TestCoordinator_ConflictingCallbackLastWriteWins(t *testing.T) {
	coordinator, repo, _, bus := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coordinator.HandleAuctionSettled(ctx, settlementWithWinner("a1", "u1", 150)))
	var issued domain.PaymentLinkIssuedEvent
	require.NoError(t, json.Unmarshal(bus.lastFor(domain.TopicPaymentLinkIssued), &issued))

	_, err := coordinator.ReportStatus(ctx, issued.PaymentID, "approved", "")
	require.NoError(t, err)
	_, err = coordinator.ReportStatus(ctx, issued.PaymentID, "declined", "chargeback")
	require.NoError(t, err)

	stored, err := repo.GetPayment(ctx, issued.PaymentID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentDeclined, stored.Status)

	require.Len(t, bus.eventsFor(domain.TopicPaymentStatusChanged), 2)
}

func TestCoordinator_CallbackValidation(t *testing.T) {
	coordinator, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := coordinator.ReportStatus(ctx, "pay-missing", "approved", "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, coordinator.HandleAuctionSettled(ctx, settlementWithWinner("a1", "u1", 150)))

	_, err = coordinator.ReportStatus(ctx, "pay-a1-1", "refunded", "")
	require.ErrorIs(t, err, ErrInvalidPaymentStatus)
}

func TestCoordinator_StatusIsCaseInsensitive(t *testing.T) {
	coordinator, repo, _, bus := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coordinator.HandleAuctionSettled(ctx, settlementWithWinner("a1", "u1", 150)))
	var issued domain.PaymentLinkIssuedEvent
	require.NoError(t, json.Unmarshal(bus.lastFor(domain.TopicPaymentLinkIssued), &issued))

	payment, err := coordinator.ReportStatus(ctx, issued.PaymentID, "APPROVED", "")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentApproved, payment.Status)

	stored, err := repo.GetPayment(ctx, issued.PaymentID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentApproved, stored.Status)
}
