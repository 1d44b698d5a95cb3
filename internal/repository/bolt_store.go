package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wanderlog/service-payment/internal/common/domain"
	bookingDomain "github.com/wanderlog/service-payment/internal/domain/booking"
	paymentDomain "github.com/wanderlog/service-payment/internal/domain/payment"
	receiptDomain "github.com/wanderlog/service-payment/internal/domain/receipt"
)

var (
	bucketPayments         = []byte("payments")
	bucketPaymentRefs      = []byte("payment_refs")
	bucketBookingPending   = []byte("booking_pending")
	bucketReceipts         = []byte("receipts")
	bucketReceiptByPayment = []byte("receipt_by_payment")
	bucketReceiptNumbers   = []byte("receipt_numbers")
	bucketReceiptSeq       = []byte("receipt_seq")
	bucketBookings         = []byte("bookings")
)

var errReadOnly = errors.New("bolt: write on read-only transaction")

var allBuckets = [][]byte{
	bucketPayments, bucketPaymentRefs, bucketBookingPending,
	bucketReceipts, bucketReceiptByPayment, bucketReceiptNumbers, bucketReceiptSeq,
	bucketBookings,
}

// BoltStore is the embedded single-file Store. Records are the GORM models
// encoded as JSON. Bolt allows one writer at a time, so a Transaction is
// serialized against every other write and FindByReferenceForUpdate needs no
// extra locking.
type BoltStore struct {
	db *bolt.DB
	tx *bolt.Tx
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Payments() paymentDomain.PaymentRepository { return &boltPaymentRepository{s: s} }
func (s *BoltStore) Receipts() receiptDomain.Repository        { return &boltReceiptRepository{s: s} }
func (s *BoltStore) Bookings() bookingDomain.Repository        { return &boltBookingRepository{s: s} }

// Transaction runs fn inside one read-write Bolt transaction. A nested call
// joins the outer transaction.
func (s *BoltStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.tx != nil {
		return fn(s)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&BoltStore{db: s.db, tx: tx})
	})
}

// Ping opens and closes a read transaction.
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.view(func(*bolt.Tx) error { return nil })
}

// Close releases the file lock. It is a no-op on a transaction-bound store.
func (s *BoltStore) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) view(fn func(tx *bolt.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return s.db.View(fn)
}

func (s *BoltStore) update(fn func(tx *bolt.Tx) error) error {
	if s.tx != nil {
		if !s.tx.Writable() {
			return errReadOnly
		}
		return fn(s.tx)
	}
	return s.db.Update(fn)
}

func getJSON(b *bolt.Bucket, key []byte, v interface{}) (bool, error) {
	raw := b.Get(key)
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func putJSON(b *bolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// --- payments ---

type boltPaymentRepository struct {
	s *BoltStore
}

func (r *boltPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*paymentDomain.Payment, error) {
	var model PaymentModel
	err := r.s.view(func(tx *bolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketPayments), []byte(id.String()), &model)
		if err != nil {
			return err
		}
		if !found {
			return domain.NewNotFoundError("Payment", id.String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *boltPaymentRepository) FindByReference(ctx context.Context, reference string) (*paymentDomain.Payment, error) {
	var model PaymentModel
	err := r.s.view(func(tx *bolt.Tx) error {
		return loadPaymentByReference(tx, reference, &model)
	})
	if err != nil {
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *boltPaymentRepository) FindByReferenceForUpdate(ctx context.Context, reference string) (*paymentDomain.Payment, error) {
	return r.FindByReference(ctx, reference)
}

func loadPaymentByReference(tx *bolt.Tx, reference string, model *PaymentModel) error {
	id := tx.Bucket(bucketPaymentRefs).Get([]byte(reference))
	if id == nil {
		return domain.NewNotFoundError("Payment", reference)
	}
	found, err := getJSON(tx.Bucket(bucketPayments), id, model)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewNotFoundError("Payment", reference)
	}
	return nil
}

// scan returns every payment model matching keep.
func (r *boltPaymentRepository) scan(keep func(*PaymentModel) bool) ([]PaymentModel, error) {
	var models []PaymentModel
	err := r.s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPayments).ForEach(func(_, v []byte) error {
			var m PaymentModel
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if keep(&m) {
				models = append(models, m)
			}
			return nil
		})
	})
	return models, err
}

func (r *boltPaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*paymentDomain.Payment, error) {
	models, err := r.scan(func(m *PaymentModel) bool { return m.BookingID == bookingID })
	if err != nil {
		return nil, err
	}
	sortNewestFirst(models)
	return toDomainList(models), nil
}

func (r *boltPaymentRepository) FindPendingByBooking(ctx context.Context, bookingID uuid.UUID) (*paymentDomain.Payment, error) {
	var model PaymentModel
	found := false
	err := r.s.view(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketBookingPending).Get([]byte(bookingID.String()))
		if id == nil {
			return nil
		}
		var err error
		found, err = getJSON(tx.Bucket(bucketPayments), id, &model)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *boltPaymentRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*paymentDomain.Payment, error) {
	var models []PaymentModel
	err := r.s.view(func(tx *bolt.Tx) error {
		payments := tx.Bucket(bucketPayments)
		return tx.Bucket(bucketBookingPending).ForEach(func(_, id []byte) error {
			var m PaymentModel
			found, err := getJSON(payments, id, &m)
			if err != nil || !found {
				return err
			}
			if m.CreatedAt.Before(cutoff) {
				models = append(models, m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(models, func(i, j int) bool { return models[i].CreatedAt.Before(models[j].CreatedAt) })
	if limit > 0 && len(models) > limit {
		models = models[:limit]
	}
	return toDomainList(models), nil
}

func (r *boltPaymentRepository) ListAll(ctx context.Context, page, limit int) ([]*paymentDomain.Payment, int64, error) {
	models, err := r.scan(func(*PaymentModel) bool { return true })
	if err != nil {
		return nil, 0, err
	}
	sortNewestFirst(models)

	total := int64(len(models))
	offset := (page - 1) * limit
	if offset >= len(models) {
		return []*paymentDomain.Payment{}, total, nil
	}
	end := offset + limit
	if end > len(models) {
		end = len(models)
	}
	return toDomainList(models[offset:end]), total, nil
}

func (r *boltPaymentRepository) GetRevenueStats(ctx context.Context) (map[string]decimal.Decimal, map[string]int64, error) {
	models, err := r.scan(func(*PaymentModel) bool { return true })
	if err != nil {
		return nil, nil, err
	}
	revenue := make(map[string]decimal.Decimal)
	byStatus := make(map[string]int64)
	for _, m := range models {
		byStatus[m.Status]++
		if m.Status == string(paymentDomain.StatusSuccessful) {
			revenue[m.Currency] = revenue[m.Currency].Add(m.Amount)
		}
	}
	return revenue, byStatus, nil
}

func (r *boltPaymentRepository) Save(ctx context.Context, p *paymentDomain.Payment) error {
	model := toModel(p)
	return r.s.update(func(tx *bolt.Tx) error {
		refs := tx.Bucket(bucketPaymentRefs)
		pending := tx.Bucket(bucketBookingPending)
		id := []byte(model.ID.String())
		bookingKey := []byte(model.BookingID.String())

		if refs.Get([]byte(model.Reference)) != nil {
			return domain.NewConflictError("payment reference already exists")
		}
		if model.Status == string(paymentDomain.StatusPending) {
			if pending.Get(bookingKey) != nil {
				return domain.NewConflictError("booking already has a pending payment")
			}
			if err := pending.Put(bookingKey, id); err != nil {
				return err
			}
		}
		if err := refs.Put([]byte(model.Reference), id); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketPayments), id, model)
	})
}

func (r *boltPaymentRepository) Update(ctx context.Context, p *paymentDomain.Payment) error {
	incoming := toModel(p)
	return r.s.update(func(tx *bolt.Tx) error {
		payments := tx.Bucket(bucketPayments)
		id := []byte(incoming.ID.String())

		var stored PaymentModel
		found, err := getJSON(payments, id, &stored)
		if err != nil {
			return err
		}
		if !found || stored.Version != incoming.Version-1 {
			return domain.NewConflictError("payment was modified by another transaction")
		}

		stored.Status = incoming.Status
		stored.GatewayTransactionID = incoming.GatewayTransactionID
		stored.GatewayResponse = incoming.GatewayResponse
		stored.GatewayData = incoming.GatewayData
		stored.FailureReason = incoming.FailureReason
		stored.PaidAt = incoming.PaidAt
		stored.RefundedAt = incoming.RefundedAt
		stored.RefundReason = incoming.RefundReason
		stored.Version = incoming.Version
		stored.UpdatedAt = incoming.UpdatedAt

		if stored.Status != string(paymentDomain.StatusPending) {
			pending := tx.Bucket(bucketBookingPending)
			bookingKey := []byte(stored.BookingID.String())
			if string(pending.Get(bookingKey)) == string(id) {
				if err := pending.Delete(bookingKey); err != nil {
					return err
				}
			}
		}
		return putJSON(payments, id, &stored)
	})
}

func sortNewestFirst(models []PaymentModel) {
	sort.Slice(models, func(i, j int) bool { return models[i].CreatedAt.After(models[j].CreatedAt) })
}

// --- receipts ---

type boltReceiptRepository struct {
	s *BoltStore
}

func (r *boltReceiptRepository) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*receiptDomain.Receipt, error) {
	return r.findVia(bucketReceiptByPayment, paymentID.String())
}

func (r *boltReceiptRepository) FindByNumber(ctx context.Context, number string) (*receiptDomain.Receipt, error) {
	return r.findVia(bucketReceiptNumbers, number)
}

func (r *boltReceiptRepository) findVia(index []byte, key string) (*receiptDomain.Receipt, error) {
	var model ReceiptModel
	err := r.s.view(func(tx *bolt.Tx) error {
		id := tx.Bucket(index).Get([]byte(key))
		if id == nil {
			return domain.NewNotFoundError("Receipt", key)
		}
		found, err := getJSON(tx.Bucket(bucketReceipts), id, &model)
		if err != nil {
			return err
		}
		if !found {
			return domain.NewNotFoundError("Receipt", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receiptToDomain(&model), nil
}

func (r *boltReceiptRepository) NextSequence(ctx context.Context, year int) (int, error) {
	var next int
	err := r.s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceiptSeq)
		key := []byte(strconv.Itoa(year))
		if raw := b.Get(key); raw != nil {
			last, err := strconv.Atoi(string(raw))
			if err != nil {
				return err
			}
			next = last
		}
		next++
		return b.Put(key, []byte(strconv.Itoa(next)))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *boltReceiptRepository) Save(ctx context.Context, rec *receiptDomain.Receipt) error {
	model := &ReceiptModel{
		ID:               rec.ID(),
		ReceiptNumber:    rec.Number(),
		PaymentID:        rec.PaymentID(),
		PaymentReference: rec.PaymentReference(),
		BookingID:        rec.BookingID(),
		ReceiptData:      rec.Data(),
		GeneratedAt:      rec.GeneratedAt(),
		CreatedAt:        time.Now().UTC(),
	}
	return r.s.update(func(tx *bolt.Tx) error {
		byPayment := tx.Bucket(bucketReceiptByPayment)
		numbers := tx.Bucket(bucketReceiptNumbers)
		id := []byte(model.ID.String())
		paymentKey := []byte(model.PaymentID.String())

		if byPayment.Get(paymentKey) != nil {
			return domain.NewConflictError("payment already has a receipt")
		}
		if numbers.Get([]byte(model.ReceiptNumber)) != nil {
			return domain.NewConflictError("receipt number already issued")
		}
		if err := byPayment.Put(paymentKey, id); err != nil {
			return err
		}
		if err := numbers.Put([]byte(model.ReceiptNumber), id); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketReceipts), id, model)
	})
}

// --- bookings ---

type boltBookingRepository struct {
	s *BoltStore
}

func (r *boltBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	err := r.s.view(func(tx *bolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketBookings), []byte(id.String()), &model)
		if err != nil {
			return err
		}
		if !found {
			return domain.NewNotFoundError("Booking", id.String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bookingToDomain(&model), nil
}

func (r *boltBookingRepository) Upsert(ctx context.Context, b *bookingDomain.Booking) error {
	model := bookingToModel(b)
	return r.s.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBookings)
		key := []byte(model.ID.String())

		var stored BookingModel
		found, err := getJSON(bucket, key, &stored)
		if err != nil {
			return err
		}
		if found && stored.UpdatedAt.After(model.UpdatedAt) {
			return nil
		}
		return putJSON(bucket, key, model)
	})
}
