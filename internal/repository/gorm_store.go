package repository

import (
	"context"

	"github.com/wanderlog/service-payment/internal/common/database"
	"github.com/wanderlog/service-payment/internal/domain/booking"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	"github.com/wanderlog/service-payment/internal/domain/receipt"
	"gorm.io/gorm"
)

// GormStore is the PostgreSQL Store.
type GormStore struct {
	db       *gorm.DB
	payments *PaymentRepositoryImpl
	receipts *ReceiptRepositoryImpl
	bookings *BookingRepositoryImpl
}

// NewGormStore wraps db. The same constructor binds a store to a transaction handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:       db,
		payments: NewPaymentRepository(db),
		receipts: NewReceiptRepository(db),
		bookings: NewBookingRepository(db),
	}
}

// AutoMigrateModels lists the models created by AutoMigrate in development.
func AutoMigrateModels() []interface{} {
	return []interface{}{&BookingModel{}, &PaymentModel{}, &ReceiptModel{}, &ReceiptSequenceModel{}}
}

func (s *GormStore) Payments() payment.PaymentRepository { return s.payments }
func (s *GormStore) Receipts() receipt.Repository        { return s.receipts }
func (s *GormStore) Bookings() booking.Repository        { return s.bookings }

// Transaction runs fn in a database transaction. Nested calls use savepoints.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

// Ping checks the connection.
func (s *GormStore) Ping(ctx context.Context) error {
	return database.Ping(ctx, s.db)
}

// Close closes the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
