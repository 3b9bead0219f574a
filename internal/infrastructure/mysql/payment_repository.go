package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auction-settlement/internal/domain"
)

type MySQLPaymentRepository struct {
	db *sql.DB
}

func NewMySQLPaymentRepository(db *sql.DB) *MySQLPaymentRepository {
	return &MySQLPaymentRepository{db: db}
}

func (r *MySQLPaymentRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
        INSERT INTO payments (id, auction_id, winner_id, amount, status, link, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.AuctionID, payment.WinnerID, payment.Amount,
		string(payment.Status), payment.Link, payment.CreatedAt, payment.UpdatedAt)
	return err
}

func (r *MySQLPaymentRepository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `
        SELECT id, auction_id, winner_id, amount, status, link, created_at, updated_at
        FROM payments WHERE id = ?
    `

	var payment domain.Payment
	var status string

	err := r.db.QueryRowContext(ctx, query, paymentID).Scan(
		&payment.ID, &payment.AuctionID, &payment.WinnerID, &payment.Amount,
		&status, &payment.Link, &payment.CreatedAt, &payment.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	payment.Status = domain.PaymentStatus(status)
	return &payment, nil
}

func (r *MySQLPaymentRepository) GetPaymentByAuction(ctx context.Context, auctionID string) (*domain.Payment, error) {
	query := `
        SELECT id, auction_id, winner_id, amount, status, link, created_at, updated_at
        FROM payments WHERE auction_id = ?
    `

	var payment domain.Payment
	var status string

	err := r.db.QueryRowContext(ctx, query, auctionID).Scan(
		&payment.ID, &payment.AuctionID, &payment.WinnerID, &payment.Amount,
		&status, &payment.Link, &payment.CreatedAt, &payment.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	payment.Status = domain.PaymentStatus(status)
	return &payment, nil
}

func (r *MySQLPaymentRepository) UpdatePaymentStatus(ctx context.Context, paymentID string, status domain.PaymentStatus, updatedAt time.Time) error {
	query := `UPDATE payments SET status = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, string(status), updatedAt, paymentID)
	return err
}

func (r *MySQLPaymentRepository) ListPayments(ctx context.Context) ([]*domain.Payment, error) {
	query := `
        SELECT id, auction_id, winner_id, amount, status, link, created_at, updated_at
        FROM payments ORDER BY created_at
    `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		var payment domain.Payment
		var status string

		err := rows.Scan(&payment.ID, &payment.AuctionID, &payment.WinnerID, &payment.Amount,
			&status, &payment.Link, &payment.CreatedAt, &payment.UpdatedAt)
		if err != nil {
			return nil, err
		}

		payment.Status = domain.PaymentStatus(status)
		payments = append(payments, &payment)
	}

	return payments, rows.Err()
}
