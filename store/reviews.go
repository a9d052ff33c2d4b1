package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"essay-review-bot/model"

	"gorm.io/gorm"
)

// Reviews tracks essays from scoring through voice delivery.
type Reviews struct {
	db *gorm.DB
}

func NewReviews(db *gorm.DB) *Reviews {
	return &Reviews{db: db}
}

// ResendTarget is what an admin redelivery needs.
type ResendTarget struct {
	UserID   int64
	VoiceRef string
	Status   string
}

func clearedVoice() map[string]any {
	return map[string]any{
		"status":          model.StatusWaitingVoice,
		"voice_file_id":   nil,
		"voiced_at":       nil,
		"voice_sent_by":   nil,
		"voice_msg_id":    nil,
		"voice_sent_at":   nil,
		"sent_to_user_at": nil,
	}
}

// Create stores a scored essay. Status defaults to waiting_voice.
func (r *Reviews) Create(ctx context.Context, rec *model.EssayReview) error {
	db, err := session(ctx, r.db)
	if err != nil {
		return err
	}
	if rec.Status == "" {
		rec.Status = model.StatusWaitingVoice
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUser(tx, rec.UserID); err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
}

func (r *Reviews) Get(ctx context.Context, essayID string) (*model.EssayReview, error) {
	db, err := session(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var rec model.EssayReview
	if err := db.Where("essay_id = ?", essayID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// lockReview loads the review matched by where under a row lock.
func lockReview(tx *gorm.DB, where func(*gorm.DB) *gorm.DB) (*model.EssayReview, error) {
	var rec model.EssayReview
	res := where(forUpdate(tx)).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func byID(essayID string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("essay_id = ?", essayID)
	}
}

func byAnchor(anchor model.MessageRef) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("admin_chat_id = ? AND admin_msg_id = ?", anchor.ChatID, anchor.MessageID)
	}
}

// Reopen resets the review to waiting_voice from any state and clears the
// voice fields. It returns the owning user and the status before the reset.
func (r *Reviews) Reopen(ctx context.Context, essayID string) (int64, string, error) {
	db, err := session(ctx, r.db)
	if err != nil {
		return 0, "", err
	}
	var (
		userID int64
		prior  string
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		rec, err := lockReview(tx, byID(essayID))
		if err != nil {
			return err
		}
		userID, prior = rec.UserID, rec.Status
		return tx.Model(&model.EssayReview{}).Where("essay_id = ?", essayID).Updates(clearedVoice()).Error
	})
	if err != nil {
		return 0, "", err
	}
	return userID, prior, nil
}

// CancelVoice takes a voice_scheduled review back to waiting_voice. Any other
// state is reported as ErrNotFound.
func (r *Reviews) CancelVoice(ctx context.Context, essayID string) (int64, error) {
	db, err := session(ctx, r.db)
	if err != nil {
		return 0, err
	}
	var userID int64
	err = db.Transaction(func(tx *gorm.DB) error {
		rec, err := lockReview(tx, byID(essayID))
		if err != nil {
			return err
		}
		if rec.Status != model.StatusVoiceScheduled {
			return ErrNotFound
		}
		userID = rec.UserID
		return tx.Model(&model.EssayReview{}).
			Where("essay_id = ? AND status = ?", essayID, model.StatusVoiceScheduled).
			Updates(clearedVoice()).Error
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// AttachVoice records the admin's voice for the review anchored at anchor.
func (r *Reviews) AttachVoice(ctx context.Context, anchor model.MessageRef, voiceRef string, sentBy int64) (*model.EssayReview, error) {
	return r.attachVoice(ctx, byAnchor(anchor), voiceRef, sentBy)
}

// AttachVoiceByID is AttachVoice addressed by essay id instead of anchor.
func (r *Reviews) AttachVoiceByID(ctx context.Context, essayID, voiceRef string, sentBy int64) (*model.EssayReview, error) {
	return r.attachVoice(ctx, byID(essayID), voiceRef, sentBy)
}

func (r *Reviews) attachVoice(ctx context.Context, where func(*gorm.DB) *gorm.DB, voiceRef string, sentBy int64) (*model.EssayReview, error) {
	db, err := session(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var out *model.EssayReview
	err = db.Transaction(func(tx *gorm.DB) error {
		rec, err := lockReview(tx, where)
		if err != nil {
			return err
		}
		if rec.Status == model.StatusVoiceScheduled || rec.Status == model.StatusVoiceSent {
			return ErrVoiceAttached
		}

		now := time.Now()
		upd := tx.Model(&model.EssayReview{}).
			Where("essay_id = ? AND status = ?", rec.EssayID, rec.Status).
			Updates(map[string]any{
				"status":        model.StatusVoiceScheduled,
				"voice_file_id": voiceRef,
				"voiced_at":     now,
				"voice_sent_by": sentBy,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrVoiceAttached
		}

		rec.Status = model.StatusVoiceScheduled
		rec.VoiceFileID = &voiceRef
		rec.VoicedAt = &now
		rec.VoiceSentBy = &sentBy
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FinalizeDelivery marks the voice as sent only while the review is still
// voice_scheduled. It reports whether the update applied.
func (r *Reviews) FinalizeDelivery(ctx context.Context, essayID string, sent model.MessageRef) (bool, error) {
	db, err := session(ctx, r.db)
	if err != nil {
		return false, err
	}
	now := time.Now()
	res := db.Model(&model.EssayReview{}).
		Where("essay_id = ? AND status = ?", essayID, model.StatusVoiceScheduled).
		Updates(map[string]any{
			"status":          model.StatusVoiceSent,
			"sent_to_user_at": now,
			"voice_sent_at":   now,
			"voice_msg_id":    sent.MessageID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// resendable lists the states whose attached voice can be delivered again.
// voice_scheduled is included for deliveries that failed.
var resendable = []string{model.StatusVoiceScheduled, model.StatusVoiceSent, model.StatusResent}

// Resend returns the delivery target of an attached voice.
func (r *Reviews) Resend(ctx context.Context, essayID string) (*ResendTarget, error) {
	rec, err := r.Get(ctx, essayID)
	if err != nil {
		return nil, err
	}
	if rec.VoiceFileID == nil || *rec.VoiceFileID == "" {
		return nil, ErrNotFound
	}
	if !slices.Contains(resendable, rec.Status) {
		return nil, ErrNotFound
	}
	return &ResendTarget{UserID: rec.UserID, VoiceRef: *rec.VoiceFileID, Status: rec.Status}, nil
}

// MarkResent records an admin redelivery.
func (r *Reviews) MarkResent(ctx context.Context, essayID string, sent model.MessageRef) error {
	db, err := session(ctx, r.db)
	if err != nil {
		return err
	}
	res := db.Model(&model.EssayReview{}).
		Where("essay_id = ? AND status IN ?", essayID, resendable).
		Updates(map[string]any{
			"status":          model.StatusResent,
			"sent_to_user_at": time.Now(),
			"voice_msg_id":    sent.MessageID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Reviews) CountByStatus(ctx context.Context, status string) (int64, error) {
	db, err := session(ctx, r.db)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.Model(&model.EssayReview{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// UsersWithStatus lists distinct owners of reviews in any of statuses.
func (r *Reviews) UsersWithStatus(ctx context.Context, statuses ...string) ([]int64, error) {
	db, err := session(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var ids []int64
	err = db.Model(&model.EssayReview{}).
		Where("status IN ?", statuses).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}
