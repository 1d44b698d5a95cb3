package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wanderlog/service-payment/internal/common/domain"
	paymentDomain "github.com/wanderlog/service-payment/internal/domain/payment"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentModel is the GORM persistence model for the payments table.
type PaymentModel struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Reference            string          `gorm:"type:varchar(64);uniqueIndex:idx_payments_reference;not null"`
	BookingID            uuid.UUID       `gorm:"type:uuid;not null;index:idx_payments_booking_id;uniqueIndex:idx_payments_booking_pending,where:status = 'pending'"`
	InitiatedBy          uuid.UUID       `gorm:"type:uuid;not null"`
	Amount               decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency             string          `gorm:"type:varchar(3);not null"`
	Method               string          `gorm:"type:varchar(20);not null"`
	PayerIdentifier      string          `gorm:"type:varchar(32)"`
	Status               string          `gorm:"type:varchar(20);not null;default:'pending';index:idx_payments_status_created,priority:1"`
	GatewayTransactionID string          `gorm:"type:varchar(255)"`
	GatewayResponse      string          `gorm:"type:text"`
	GatewayData          datatypes.JSON  `gorm:"type:jsonb"`
	FailureReason        string          `gorm:"type:text"`
	PaidAt               *time.Time      `gorm:"type:timestamptz"`
	RefundedAt           *time.Time      `gorm:"type:timestamptz"`
	RefundReason         string          `gorm:"type:text"`
	Version              int64           `gorm:"not null;default:1"`
	CreatedAt            time.Time       `gorm:"type:timestamptz;not null;default:now();index:idx_payments_status_created,priority:2"`
	UpdatedAt            time.Time       `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName specifies the table name for GORM.
func (PaymentModel) TableName() string {
	return "payments"
}

// mutablePaymentColumns are the only columns an update may write.
var mutablePaymentColumns = []string{
	"status",
	"gateway_transaction_id",
	"gateway_response",
	"gateway_data",
	"failure_reason",
	"paid_at",
	"refunded_at",
	"refund_reason",
	"version",
	"updated_at",
}

// PaymentRepositoryImpl is the GORM-based implementation of PaymentRepository.
type PaymentRepositoryImpl struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new GORM-based payment repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepositoryImpl {
	return &PaymentRepositoryImpl{db: db}
}

// FindByID retrieves a payment by its unique ID.
func (r *PaymentRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*paymentDomain.Payment, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id), id.String())
}

// FindByReference retrieves a payment by its idempotency reference.
func (r *PaymentRepositoryImpl) FindByReference(ctx context.Context, reference string) (*paymentDomain.Payment, error) {
	return r.findOne(r.db.WithContext(ctx).Where("reference = ?", reference), reference)
}

// FindByReferenceForUpdate locks the row (SELECT ... FOR UPDATE) for the
// rest of the surrounding transaction.
func (r *PaymentRepositoryImpl) FindByReferenceForUpdate(ctx context.Context, reference string) (*paymentDomain.Payment, error) {
	q := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference)
	return r.findOne(q, reference)
}

func (r *PaymentRepositoryImpl) findOne(q *gorm.DB, key string) (*paymentDomain.Payment, error) {
	var model PaymentModel
	if err := q.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Payment", key)
		}
		return nil, err
	}
	return toDomain(&model), nil
}

// ListByBooking returns every attempt for a booking, newest first.
func (r *PaymentRepositoryImpl) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*paymentDomain.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

// FindPendingByBooking returns the booking's pending attempt, or nil.
func (r *PaymentRepositoryImpl) FindPendingByBooking(ctx context.Context, bookingID uuid.UUID) (*paymentDomain.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status = ?", bookingID, string(paymentDomain.StatusPending)).
		Limit(1).
		Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return toDomain(&models[0]), nil
}

// ListPendingCreatedBefore returns pending attempts older than cutoff, oldest first.
func (r *PaymentRepositoryImpl) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*paymentDomain.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(paymentDomain.StatusPending), cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

// Save persists a new payment aggregate.
func (r *PaymentRepositoryImpl) Save(ctx context.Context, payment *paymentDomain.Payment) error {
	model := toModel(payment)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("booking already has a pending payment")
		}
		return err
	}
	return nil
}

// Update persists changes to an existing payment with optimistic locking.
// Only the resolution columns are written.
func (r *PaymentRepositoryImpl) Update(ctx context.Context, payment *paymentDomain.Payment) error {
	model := toModel(payment)
	previousVersion := payment.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Select(mutablePaymentColumns).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("payment was modified by another transaction")
	}

	return nil
}

// ListAll retrieves all payments with pagination (admin).
func (r *PaymentRepositoryImpl) ListAll(ctx context.Context, page, limit int) ([]*paymentDomain.Payment, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&PaymentModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []PaymentModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	return toDomainList(models), total, nil
}

// GetRevenueStats returns settled revenue per currency and counts per status (admin).
func (r *PaymentRepositoryImpl) GetRevenueStats(ctx context.Context) (map[string]decimal.Decimal, map[string]int64, error) {
	type currencyTotal struct {
		Currency string
		Total    decimal.Decimal
	}
	var totals []currencyTotal
	if err := r.db.WithContext(ctx).Model(&PaymentModel{}).
		Select("currency, COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", string(paymentDomain.StatusSuccessful)).
		Group("currency").
		Find(&totals).Error; err != nil {
		return nil, nil, err
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := r.db.WithContext(ctx).Model(&PaymentModel{}).
		Select("status, count(*) AS count").
		Group("status").
		Find(&counts).Error; err != nil {
		return nil, nil, err
	}

	revenue := make(map[string]decimal.Decimal, len(totals))
	for _, t := range totals {
		revenue[t.Currency] = t.Total
	}
	byStatus := make(map[string]int64, len(counts))
	for _, sc := range counts {
		byStatus[sc.Status] = sc.Count
	}
	return revenue, byStatus, nil
}

func toDomainList(models []PaymentModel) []*paymentDomain.Payment {
	payments := make([]*paymentDomain.Payment, len(models))
	for i := range models {
		payments[i] = toDomain(&models[i])
	}
	return payments
}

// toDomain maps a PaymentModel to the domain Payment aggregate.
func toDomain(model *PaymentModel) *paymentDomain.Payment {
	var gatewayData []byte
	if len(model.GatewayData) > 0 && string(model.GatewayData) != "null" {
		gatewayData = []byte(model.GatewayData)
	}
	return paymentDomain.Reconstitute(
		model.ID,
		model.Reference,
		model.BookingID,
		model.InitiatedBy,
		model.Amount,
		model.Currency,
		paymentDomain.Method(model.Method),
		model.PayerIdentifier,
		paymentDomain.Status(model.Status),
		model.GatewayTransactionID,
		model.GatewayResponse,
		gatewayData,
		model.FailureReason,
		model.PaidAt,
		model.RefundedAt,
		model.RefundReason,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// toModel maps a domain Payment aggregate to a PaymentModel for persistence.
func toModel(p *paymentDomain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:                   p.ID(),
		Reference:            p.Reference(),
		BookingID:            p.BookingID(),
		InitiatedBy:          p.InitiatedBy(),
		Amount:               p.Amount(),
		Currency:             p.Currency(),
		Method:               string(p.Method()),
		PayerIdentifier:      p.PayerIdentifier(),
		Status:               string(p.Status()),
		GatewayTransactionID: p.GatewayTransactionID(),
		GatewayResponse:      p.GatewayResponse(),
		GatewayData:          datatypes.JSON(p.GatewayData()),
		FailureReason:        p.FailureReason(),
		PaidAt:               p.PaidAt(),
		RefundedAt:           p.RefundedAt(),
		RefundReason:         p.RefundReason(),
		Version:              p.Version(),
		CreatedAt:            p.CreatedAt(),
		UpdatedAt:            p.UpdatedAt(),
	}
}
