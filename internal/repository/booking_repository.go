package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wanderlog/service-payment/internal/common/domain"
	bookingDomain "github.com/wanderlog/service-payment/internal/domain/booking"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingModel is the GORM persistence model for the bookings read model.
type BookingModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BookingReference  string          `gorm:"type:varchar(32);uniqueIndex:idx_bookings_reference;not null"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null"`
	Destination       string          `gorm:"type:varchar(255)"`
	NumberOfTravelers int             `gorm:"not null;default:1"`
	TotalAmount       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TaxAmount         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	DiscountAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	TravelDate        *time.Time      `gorm:"type:timestamptz"`
	Status            string          `gorm:"type:varchar(20);not null"`
	UpdatedAt         time.Time       `gorm:"type:timestamptz;not null;default:now();autoUpdateTime:false"`
}

// TableName specifies the table name for GORM.
func (BookingModel) TableName() string {
	return "bookings"
}

// BookingRepositoryImpl is the GORM-based implementation of booking.Repository.
type BookingRepositoryImpl struct {
	db *gorm.DB
}

// NewBookingRepository creates a new GORM-based booking repository.
func NewBookingRepository(db *gorm.DB) *BookingRepositoryImpl {
	return &BookingRepositoryImpl{db: db}
}

// FindByID returns the booking snapshot.
func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, err
	}
	return bookingToDomain(&model), nil
}

// Upsert inserts the snapshot or replaces an older one. Out-of-order events
// carrying an older UpdatedAt are ignored.
func (r *BookingRepositoryImpl) Upsert(ctx context.Context, b *bookingDomain.Booking) error {
	model := bookingToModel(b)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"booking_reference", "user_id", "destination", "number_of_travelers",
			"total_amount", "tax_amount", "discount_amount", "currency",
			"travel_date", "status", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "bookings.updated_at <= excluded.updated_at"},
		}},
	}).Create(model).Error
}

func bookingToModel(b *bookingDomain.Booking) *BookingModel {
	var travel *time.Time
	if !b.TravelDate.IsZero() {
		t := b.TravelDate
		travel = &t
	}
	return &BookingModel{
		ID:                b.ID,
		BookingReference:  b.Reference,
		UserID:            b.UserID,
		Destination:       b.Destination,
		NumberOfTravelers: b.NumberOfTravelers,
		TotalAmount:       b.TotalAmount,
		TaxAmount:         b.TaxAmount,
		DiscountAmount:    b.DiscountAmount,
		Currency:          b.Currency,
		TravelDate:        travel,
		Status:            b.Status,
		UpdatedAt:         b.UpdatedAt,
	}
}

func bookingToDomain(m *BookingModel) *bookingDomain.Booking {
	b := &bookingDomain.Booking{
		ID:                m.ID,
		Reference:         m.BookingReference,
		UserID:            m.UserID,
		Destination:       m.Destination,
		NumberOfTravelers: m.NumberOfTravelers,
		TotalAmount:       m.TotalAmount,
		TaxAmount:         m.TaxAmount,
		DiscountAmount:    m.DiscountAmount,
		Currency:          m.Currency,
		Status:            m.Status,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.TravelDate != nil {
		b.TravelDate = *m.TravelDate
	}
	return b
}
