package repository

import (
	"context"

	"github.com/wanderlog/service-payment/internal/domain/booking"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"github.com/wanderlog/service-payment/internal/domain/receipt"
)

// Store groups the repositories and the unit of work spanning them.
type Store interface {
	Payments() payment.PaymentRepository
	Receipts() receipt.Repository
	Bookings() booking.Repository

	// Transaction runs fn against a Store whose writes commit or roll back
	// together. Rows read with FindByReferenceForUpdate stay locked until fn returns.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}
