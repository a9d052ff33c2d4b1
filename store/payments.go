package store

import (
	"context"
	"errors"
	"time"

	"essay-review-bot/model"

	"gorm.io/gorm"
)

// Payments holds receipt-based top-up requests.
type Payments struct {
	db *gorm.DB
}

func NewPayments(db *gorm.DB) *Payments {
	return &Payments{db: db}
}

// Create inserts p as a pending payment.
func (s *Payments) Create(ctx context.Context, p *model.Payment) error {
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	db, err := session(ctx, s.db)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUser(tx, p.UserID); err != nil {
			return err
		}
		p.Status = model.PaymentPending
		p.DecidedBy = nil
		p.DecidedAt = nil
		return tx.Create(p).Error
	})
}

func (s *Payments) Get(ctx context.Context, paymentID string) (*model.Payment, error) {
	db, err := session(ctx, s.db)
	if err != nil {
		return nil, err
	}
	var p model.Payment
	if err := db.Where("payment_id = ?", paymentID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Decide moves a pending payment to approved or rejected and, on approval,
// credits the ledger in the same transaction. It returns nil, nil when the
// payment is missing or already decided, so only one of several concurrent
// decisions wins.
func (s *Payments) Decide(ctx context.Context, paymentID string, decidedBy int64, approve bool) (*model.Payment, error) {
	db, err := session(ctx, s.db)
	if err != nil {
		return nil, err
	}

	status := model.PaymentRejected
	if approve {
		status = model.PaymentApproved
	}

	var decided *model.Payment
	err = db.Transaction(func(tx *gorm.DB) error {
		var p model.Payment
		res := forUpdate(tx).Where("payment_id = ?", paymentID).Limit(1).Find(&p)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || p.Status != model.PaymentPending {
			return nil
		}

		now := time.Now()
		upd := tx.Model(&model.Payment{}).
			Where("payment_id = ? AND status = ?", paymentID, model.PaymentPending).
			Updates(map[string]any{
				"status":     status,
				"decided_by": decidedBy,
				"decided_at": now,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return nil
		}

		if approve {
			if err := credit(tx, p.UserID, p.Amount); err != nil {
				return err
			}
		}

		p.Status = status
		p.DecidedBy = &decidedBy
		p.DecidedAt = &now
		decided = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

func (s *Payments) CountPending(ctx context.Context) (int64, error) {
	db, err := session(ctx, s.db)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.Model(&model.Payment{}).Where("status = ?", model.PaymentPending).Count(&n).Error
	return n, err
}
