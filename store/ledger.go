package store

import (
	"context"
	"time"

	"essay-review-bot/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the per-user balance of review credits.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// GetBalance returns the user's balance, creating the user row if needed.
func (l *Ledger) GetBalance(ctx context.Context, userID int64) (int64, error) {
	db, err := session(ctx, l.db)
	if err != nil {
		return 0, err
	}
	if err := ensureUser(db, userID); err != nil {
		return 0, err
	}

	var b model.Balance
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&b).Error; err != nil {
		return 0, err
	}
	return b.Balance, nil
}

// Grant adds amount credits.
func (l *Ledger) Grant(ctx context.Context, userID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	db, err := session(ctx, l.db)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUser(tx, userID); err != nil {
			return err
		}
		return credit(tx, userID, amount)
	})
}

// Refund reverses a consumed credit after a failed downstream step.
func (l *Ledger) Refund(ctx context.Context, userID, amount int64) error {
	return l.Grant(ctx, userID, amount)
}

// ConsumeOne takes one credit. It reports false, without mutating anything,
// when the balance is below one.
func (l *Ledger) ConsumeOne(ctx context.Context, userID int64) (bool, error) {
	db, err := session(ctx, l.db)
	if err != nil {
		return false, err
	}

	consumed := false
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUser(tx, userID); err != nil {
			return err
		}

		var b model.Balance
		res := forUpdate(tx).Where("user_id = ?", userID).Limit(1).Find(&b)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || b.Balance < 1 {
			return nil
		}

		upd := tx.Model(&model.Balance{}).
			Where("user_id = ? AND balance >= 1", userID).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - 1"),
				"updated_at": time.Now(),
			})
		if upd.Error != nil {
			return upd.Error
		}
		consumed = upd.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// HasUsedFreeTrial reports whether the free check was already granted.
func (l *Ledger) HasUsedFreeTrial(ctx context.Context, userID int64) (bool, error) {
	db, err := session(ctx, l.db)
	if err != nil {
		return false, err
	}
	var n int64
	if err := db.Model(&model.FreeTry{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// GrantFreeTrial credits one check once per user. The marker and the credit
// commit together; a second call is a no-op returning false.
func (l *Ledger) GrantFreeTrial(ctx context.Context, userID int64) (bool, error) {
	db, err := session(ctx, l.db)
	if err != nil {
		return false, err
	}

	granted := false
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUser(tx, userID); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.FreeTry{UserID: userID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := credit(tx, userID, 1); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}
