package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"essay-review-bot/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitResult is the synchronous outcome of an essay submission.
type SubmitResult int

const (
	Accepted  SubmitResult = iota
	Busy                   // a review is already in flight
	NoBalance              // needs a payment first
	TooShort               // below the minimum: low score, no charge
	TooLong                // above the maximum: rejected, no charge
)

func (r SubmitResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Busy:
		return "busy"
	case NoBalance:
		return "no_balance"
	case TooShort:
		return "too_short"
	case TooLong:
		return "too_long"
	}
	return "unknown"
}

// Apostrophe variants include ‘ and the backtick, which Uzbek Latin uses in o‘ and g‘.
var wordRe = regexp.MustCompile("[\\p{L}\\p{M}'’‘`-]*\\p{L}[\\p{L}\\p{M}'’‘`-]*")

// CountWords counts runs of letters, apostrophes and hyphens that contain at
// least one letter. Numbers and emoji are not words.
func CountWords(text string) int {
	return len(wordRe.FindAllStringIndex(text, -1))
}

type essayArgs struct {
	UserID int64  `json:"user_id"`
	Topic  string `json:"topic"`
	Essay  string `json:"essay"`
}

// Begin reports whether the user may start a submission at all.
func (s *Service) Begin(ctx context.Context, userID int64) (SubmitResult, error) {
	locked, err := s.locks.IsLocked(ctx, userID)
	if err != nil {
		return 0, err
	}
	if locked || s.checkPending(userID) {
		return Busy, nil
	}
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if balance < 1 {
		return NoBalance, nil
	}
	return Accepted, nil
}

// SubmitEssay charges one credit, takes the user's lock and schedules the
// oracle call. Rejected submissions mutate nothing.
func (s *Service) SubmitEssay(ctx context.Context, userID int64, topic, essay string) (SubmitResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return 0, ErrEmptyTopic
	}

	res, err := s.Begin(ctx, userID)
	if err != nil || res != Accepted {
		return res, err
	}

	switch n := CountWords(essay); {
	case n < s.opts.MinWords:
		return TooShort, nil
	case n > s.opts.MaxWords:
		return TooLong, nil
	}

	ok, err := s.ledger.ConsumeOne(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return NoBalance, nil
	}

	got, err := s.locks.TryLock(ctx, userID)
	// A pending check belongs to a review in flight, so the lock stays with it.
	if err != nil || !got || s.checkPending(userID) {
		if rerr := s.ledger.Refund(ctx, userID, 1); rerr != nil {
			s.log.Error("failed to refund after lock failure", zap.Int64("user_id", userID), zap.Error(rerr))
		}
		return Busy, err
	}

	runAt := s.nowFn().Add(s.opts.Delay)
	args := essayArgs{UserID: userID, Topic: topic, Essay: essay}
	if err := s.jobs.Schedule(ctx, essayJobID(userID), runAt, ActionEssayCheck, args); err != nil {
		s.rollback(ctx, userID)
		return 0, fmt.Errorf("workflow: schedule essay check: %w", err)
	}

	s.log.Info("essay accepted", zap.Int64("user_id", userID), zap.Time("run_at", runAt))
	return Accepted, nil
}

// rollback returns the credit and releases the lock of a failed review.
func (s *Service) rollback(ctx context.Context, userID int64) {
	ctx = context.WithoutCancel(ctx)
	if err := s.ledger.Refund(ctx, userID, 1); err != nil {
		s.log.Error("failed to refund", zap.Int64("user_id", userID), zap.Error(err))
	}
	s.unlock(ctx, userID)
}

func (s *Service) checkPending(userID int64) bool {
	return s.jobs.Pending(essayJobID(userID))
}

// jobOwner reads only user_id so a job with otherwise broken args can still
// be rolled back.
type jobOwner struct {
	UserID int64 `json:"user_id"`
}

func (s *Service) runEssayCheck(ctx context.Context, raw json.RawMessage) error {
	owner, err := decode[jobOwner](raw)
	if err != nil {
		return err
	}
	if owner.UserID == 0 {
		return errors.New("workflow: essay check without user_id")
	}
	log := s.log.With(zap.Int64("user_id", owner.UserID))

	done := false
	defer func() {
		if !done {
			s.rollback(ctx, owner.UserID)
			s.notify(owner.UserID, msgCheckFailed)
		}
	}()

	args, err := decode[essayArgs](raw)
	if err != nil {
		log.Error("bad essay check args", zap.Error(err))
		return nil
	}

	report, err := s.oracle.Check(ctx, args.Topic, args.Essay)
	if err != nil {
		log.Warn("essay check failed", zap.Error(err))
		return nil
	}

	rec := &model.EssayReview{
		EssayID:   uuid.NewString(),
		UserID:    args.UserID,
		Topic:     args.Topic,
		EssayText: args.Essay,
		AIResult:  report,
		Status:    model.StatusWaitingVoice,
	}
	anchor, err := s.msg.SendText(s.opts.EssayAdminID, anchorText(rec))
	if err != nil {
		log.Error("failed to post review to admin", zap.Error(err))
		return nil
	}
	rec.AdminChatID, rec.AdminMsgID = anchor.ChatID, anchor.MessageID

	if err := s.reviews.Create(ctx, rec); err != nil {
		log.Error("failed to store review", zap.Error(err))
		return nil
	}
	done = true

	log.Info("essay scored, waiting for voice", zap.String("essay_id", rec.EssayID))
	s.notify(args.UserID, msgCheckQueued)
	return nil
}
