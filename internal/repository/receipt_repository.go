package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wanderlog/service-payment/internal/common/domain"
	receiptDomain "github.com/wanderlog/service-payment/internal/domain/receipt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReceiptModel is the GORM persistence model for the payment_receipts table.
type ReceiptModel struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	ReceiptNumber    string         `gorm:"type:varchar(32);uniqueIndex:idx_receipts_number;not null"`
	PaymentID        uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_receipts_payment;not null"`
	PaymentReference string         `gorm:"type:varchar(64);not null"`
	BookingID        uuid.UUID      `gorm:"type:uuid;not null"`
	ReceiptData      datatypes.JSON `gorm:"type:jsonb;not null"`
	GeneratedAt      time.Time      `gorm:"type:timestamptz;not null"`
	CreatedAt        time.Time      `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName specifies the table name for GORM.
func (ReceiptModel) TableName() string {
	return "payment_receipts"
}

// ReceiptSequenceModel holds the last receipt number issued per year.
type ReceiptSequenceModel struct {
	Year      int `gorm:"primaryKey;autoIncrement:false"`
	LastValue int `gorm:"not null"`
}

// TableName specifies the table name for GORM.
func (ReceiptSequenceModel) TableName() string {
	return "receipt_sequences"
}

// ReceiptRepositoryImpl is the GORM-based implementation of receipt.Repository.
type ReceiptRepositoryImpl struct {
	db *gorm.DB
}

// NewReceiptRepository creates a new GORM-based receipt repository.
func NewReceiptRepository(db *gorm.DB) *ReceiptRepositoryImpl {
	return &ReceiptRepositoryImpl{db: db}
}

// FindByPaymentID returns the receipt of a payment.
func (r *ReceiptRepositoryImpl) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*receiptDomain.Receipt, error) {
	return r.findOne(r.db.WithContext(ctx).Where("payment_id = ?", paymentID), paymentID.String())
}

// FindByNumber returns a receipt by its number.
func (r *ReceiptRepositoryImpl) FindByNumber(ctx context.Context, number string) (*receiptDomain.Receipt, error) {
	return r.findOne(r.db.WithContext(ctx).Where("receipt_number = ?", number), number)
}

func (r *ReceiptRepositoryImpl) findOne(q *gorm.DB, key string) (*receiptDomain.Receipt, error) {
	var model ReceiptModel
	if err := q.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Receipt", key)
		}
		return nil, err
	}
	return receiptToDomain(&model), nil
}

// NextSequence reserves the next number for year with a single upsert, so
// concurrent issuers never draw the same value.
func (r *ReceiptRepositoryImpl) NextSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO receipt_sequences (year, last_value) VALUES (?, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = receipt_sequences.last_value + 1
		RETURNING last_value`, year).Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Save persists a new receipt.
func (r *ReceiptRepositoryImpl) Save(ctx context.Context, rec *receiptDomain.Receipt) error {
	model := &ReceiptModel{
		ID:               rec.ID(),
		ReceiptNumber:    rec.Number(),
		PaymentID:        rec.PaymentID(),
		PaymentReference: rec.PaymentReference(),
		BookingID:        rec.BookingID(),
		ReceiptData:      datatypes.JSON(rec.Data()),
		GeneratedAt:      rec.GeneratedAt(),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("payment already has a receipt")
		}
		return err
	}
	return nil
}

func receiptToDomain(m *ReceiptModel) *receiptDomain.Receipt {
	return receiptDomain.Reconstitute(
		m.ID,
		m.ReceiptNumber,
		m.PaymentID,
		m.PaymentReference,
		m.BookingID,
		[]byte(m.ReceiptData),
		m.GeneratedAt,
	)
}
