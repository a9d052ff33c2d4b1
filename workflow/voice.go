package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"essay-review-bot/model"
	"essay-review-bot/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type voiceArgs struct {
	EssayID string `json:"essay_id"`
	UserID  int64  `json:"user_id"`
}

// Attached describes a voice scheduled for delivery.
type Attached struct {
	EssayID string
	UserID  int64
	RunAt   time.Time
}

// AttachVoice binds an admin voice to a review and schedules its delivery.
// The review is addressed by the anchor the voice replies to; without one, a
// caption holding the essay id is used.
func (s *Service) AttachVoice(ctx context.Context, adminID int64, replyTo *model.MessageRef, caption, voiceRef string) (*Attached, error) {
	if !s.IsEssayAdmin(adminID) {
		return nil, ErrForbidden
	}

	var (
		rec *model.EssayReview
		err error
	)
	essayID := strings.TrimSpace(caption)
	switch {
	case replyTo != nil:
		rec, err = s.reviews.AttachVoice(ctx, *replyTo, voiceRef, adminID)
		if errors.Is(err, store.ErrNotFound) && uuid.Validate(essayID) == nil {
			rec, err = s.reviews.AttachVoiceByID(ctx, essayID, voiceRef, adminID)
		}
	case uuid.Validate(essayID) == nil:
		rec, err = s.reviews.AttachVoiceByID(ctx, essayID, voiceRef, adminID)
	default:
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapStoreErr(err)
	}

	runAt := s.nowFn().Add(s.opts.VoiceDelay)
	args := voiceArgs{EssayID: rec.EssayID, UserID: rec.UserID}
	if err := s.jobs.Schedule(ctx, voiceJobID(rec.EssayID), runAt, ActionVoiceDeliver, args); err != nil {
		if _, cerr := s.reviews.CancelVoice(context.WithoutCancel(ctx), rec.EssayID); cerr != nil {
			s.log.Error("failed to revert voice attachment", zap.String("essay_id", rec.EssayID), zap.Error(cerr))
		}
		return nil, fmt.Errorf("workflow: schedule voice delivery: %w", err)
	}

	s.log.Info("voice scheduled", zap.String("essay_id", rec.EssayID), zap.Int64("user_id", rec.UserID), zap.Time("run_at", runAt))
	return &Attached{EssayID: rec.EssayID, UserID: rec.UserID, RunAt: runAt}, nil
}

// runVoiceDelivery sends the report and the voice to the user. The lock is
// released on every path except when the review already left
// voice_scheduled, since cancel and reopen release it themselves.
func (s *Service) runVoiceDelivery(ctx context.Context, raw json.RawMessage) error {
	args, err := decode[voiceArgs](raw)
	if err != nil {
		return err
	}
	log := s.log.With(zap.String("essay_id", args.EssayID), zap.Int64("user_id", args.UserID))

	release := true
	defer func() {
		if release {
			s.unlock(context.WithoutCancel(ctx), args.UserID)
		}
	}()

	rec, err := s.reviews.Get(ctx, args.EssayID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("review vanished before delivery")
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status != model.StatusVoiceScheduled || rec.VoiceFileID == nil {
		release = false
		log.Info("delivery skipped", zap.String("status", rec.Status))
		return nil
	}

	if _, err := s.msg.SendText(rec.UserID, rec.AIResult); err != nil {
		s.deliveryFailed(log, rec, err)
		return nil
	}
	sent, err := s.msg.SendVoice(rec.UserID, *rec.VoiceFileID, voiceCaption(rec.EssayID))
	if err != nil {
		s.deliveryFailed(log, rec, err)
		return nil
	}

	applied, err := s.reviews.FinalizeDelivery(ctx, rec.EssayID, sent)
	if err != nil {
		return err
	}
	if !applied {
		log.Warn("delivery already finalized")
		return nil
	}
	log.Info("voice delivered")
	s.notify(s.opts.EssayAdminID, fmt.Sprintf("✅ Voice for %s delivered to %d.", rec.EssayID, rec.UserID))
	return nil
}

func (s *Service) deliveryFailed(log *zap.Logger, rec *model.EssayReview, err error) {
	log.Error("failed to deliver voice", zap.Error(err))
	s.notify(s.opts.EssayAdminID, fmt.Sprintf("⚠️ Could not deliver essay %s to user %d: %v\nUse /fix %s to start over.", rec.EssayID, rec.UserID, err, rec.EssayID))
}

// holdsLock reports whether a review in status still owns its user's lock.
// A scheduled voice whose delivery already ran and failed gave the lock up.
func (s *Service) holdsLock(essayID, status string) bool {
	switch status {
	case model.StatusWaitingVoice:
		return true
	case model.StatusVoiceScheduled:
		return s.jobs.Pending(voiceJobID(essayID))
	}
	return false
}

// Reopen resets a review to waiting_voice and drops its pending delivery.
// The owner's lock is released only when this review held it.
func (s *Service) Reopen(ctx context.Context, adminID int64, essayID string) (int64, error) {
	if !s.IsEssayAdmin(adminID) {
		return 0, ErrForbidden
	}
	userID, prior, err := s.reviews.Reopen(ctx, essayID)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	// the delivery job is still armed here; dropDelivery cancels it
	s.dropDelivery(ctx, essayID, userID, s.holdsLock(essayID, prior))
	return userID, nil
}

// CancelVoice takes a scheduled voice back to waiting_voice.
func (s *Service) CancelVoice(ctx context.Context, adminID int64, essayID string) (int64, error) {
	if !s.IsEssayAdmin(adminID) {
		return 0, ErrForbidden
	}
	held := s.jobs.Pending(voiceJobID(essayID))
	userID, err := s.reviews.CancelVoice(ctx, essayID)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	s.dropDelivery(ctx, essayID, userID, held)
	return userID, nil
}

func (s *Service) dropDelivery(ctx context.Context, essayID string, userID int64, unlock bool) {
	if err := s.jobs.Cancel(ctx, voiceJobID(essayID)); err != nil {
		s.log.Error("failed to cancel delivery job", zap.String("essay_id", essayID), zap.Error(err))
	}
	if unlock {
		s.unlock(ctx, userID)
	}
	s.log.Info("review reset to waiting_voice", zap.String("essay_id", essayID), zap.Int64("user_id", userID), zap.Bool("unlocked", unlock))
}

// Resend delivers an attached voice again, including one whose scheduled
// delivery failed. The lock is untouched.
func (s *Service) Resend(ctx context.Context, adminID int64, essayID string) (int64, error) {
	if !s.IsEssayAdmin(adminID) {
		return 0, ErrForbidden
	}
	target, err := s.reviews.Resend(ctx, essayID)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	if target.Status == model.StatusVoiceScheduled && s.jobs.Pending(voiceJobID(essayID)) {
		return 0, ErrDeliveryQueued
	}
	sent, err := s.msg.SendVoice(target.UserID, target.VoiceRef, voiceCaption(essayID))
	if err != nil {
		return 0, fmt.Errorf("workflow: resend voice: %w", err)
	}
	if err := s.reviews.MarkResent(ctx, essayID, sent); err != nil {
		return 0, mapStoreErr(err)
	}
	return target.UserID, nil
}
