// Package workflow runs the essay review lifecycle and the payment flow on top
// of the ledger, the review and payment stores, the per-user lock and the
// delayed job scheduler. It knows nothing about the chat platform beyond the
// Messenger interface.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"essay-review-bot/lock"
	"essay-review-bot/model"
	"essay-review-bot/scheduler"
	"essay-review-bot/store"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

var (
	ErrForbidden      = errors.New("workflow: not allowed for this user")
	ErrEmptyTopic     = errors.New("workflow: topic is empty")
	ErrAlreadyDecided = errors.New("workflow: payment already decided or not found")
	ErrNotFound       = errors.New("workflow: review not found")
	ErrVoiceAttached  = store.ErrVoiceAttached
	ErrDeliveryQueued = errors.New("workflow: voice delivery still scheduled")
)

// Scheduled actions.
const (
	ActionEssayCheck   = "essay.check"
	ActionVoiceDeliver = "voice.deliver"
)

const (
	essayJobPrefix = "essay_result:"
	voiceJobPrefix = "send_voice:"
)

func essayJobID(userID int64) string   { return fmt.Sprintf("%s%d", essayJobPrefix, userID) }
func voiceJobID(essayID string) string { return voiceJobPrefix + essayID }

type Ledger interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	ConsumeOne(ctx context.Context, userID int64) (bool, error)
	Refund(ctx context.Context, userID, amount int64) error
	GrantFreeTrial(ctx context.Context, userID int64) (bool, error)
}

type Payments interface {
	Create(ctx context.Context, p *model.Payment) error
	Decide(ctx context.Context, paymentID string, decidedBy int64, approve bool) (*model.Payment, error)
	CountPending(ctx context.Context) (int64, error)
}

type Reviews interface {
	Create(ctx context.Context, rec *model.EssayReview) error
	Get(ctx context.Context, essayID string) (*model.EssayReview, error)
	Reopen(ctx context.Context, essayID string) (int64, string, error)
	CancelVoice(ctx context.Context, essayID string) (int64, error)
	AttachVoice(ctx context.Context, anchor model.MessageRef, voiceRef string, sentBy int64) (*model.EssayReview, error)
	AttachVoiceByID(ctx context.Context, essayID, voiceRef string, sentBy int64) (*model.EssayReview, error)
	FinalizeDelivery(ctx context.Context, essayID string, sent model.MessageRef) (bool, error)
	Resend(ctx context.Context, essayID string) (*store.ResendTarget, error)
	MarkResent(ctx context.Context, essayID string, sent model.MessageRef) error
	CountByStatus(ctx context.Context, status string) (int64, error)
	UsersWithStatus(ctx context.Context, statuses ...string) ([]int64, error)
}

type Scheduler interface {
	Register(name string, fn scheduler.Action)
	Schedule(ctx context.Context, jobID string, runAt time.Time, action string, args any) error
	Cancel(ctx context.Context, jobID string) error
	Pending(jobID string) bool
	PendingIDs(prefix string) []string
}

// Oracle grades an essay and returns a free-form score report.
type Oracle interface {
	Check(ctx context.Context, topic, essay string) (string, error)
}

// Messenger delivers messages to chats. Refs are opaque platform file handles.
type Messenger interface {
	SendText(chatID int64, text string) (model.MessageRef, error)
	SendVoice(chatID int64, voiceRef, caption string) (model.MessageRef, error)
	SendReceipt(chatID int64, p *model.Payment, caption string) (model.MessageRef, error)
	EditCaption(ref model.MessageRef, caption string) error
}

type Options struct {
	Delay          time.Duration // submission to oracle call
	VoiceDelay     time.Duration // voice attachment to delivery
	MinWords       int
	MaxWords       int
	EssayAdminID   int64
	PaymentAdminID int64
	PaymentAmount  int64
	NodeID         int64
}

func (o *Options) setDefaults() {
	if o.MinWords == 0 {
		o.MinWords = 100
	}
	if o.MaxWords == 0 {
		o.MaxWords = 350
	}
	if o.PaymentAmount == 0 {
		o.PaymentAmount = 1
	}
}

type Deps struct {
	Ledger    Ledger
	Payments  Payments
	Reviews   Reviews
	Locks     lock.Registry
	Scheduler Scheduler
	Oracle    Oracle
	Messenger Messenger
}

type Service struct {
	ledger   Ledger
	payments Payments
	reviews  Reviews
	locks    lock.Registry
	jobs     Scheduler
	oracle   Oracle
	msg      Messenger

	opts  Options
	node  *snowflake.Node
	log   *zap.Logger
	nowFn func() time.Time
}

// New builds the service and registers its job actions on the scheduler.
func New(deps Deps, opts Options, log *zap.Logger) (*Service, error) {
	opts.setDefaults()
	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("workflow: payment id node: %w", err)
	}
	s := &Service{
		ledger:   deps.Ledger,
		payments: deps.Payments,
		reviews:  deps.Reviews,
		locks:    deps.Locks,
		jobs:     deps.Scheduler,
		oracle:   deps.Oracle,
		msg:      deps.Messenger,
		opts:     opts,
		node:     node,
		log:      log.Named("workflow"),
		nowFn:    time.Now,
	}
	s.jobs.Register(ActionEssayCheck, s.runEssayCheck)
	s.jobs.Register(ActionVoiceDeliver, s.runVoiceDelivery)
	return s, nil
}

func (s *Service) Options() Options { return s.opts }

func (s *Service) IsEssayAdmin(userID int64) bool   { return userID == s.opts.EssayAdminID }
func (s *Service) IsPaymentAdmin(userID int64) bool { return userID == s.opts.PaymentAdminID }

// notify sends text and only logs a failure.
func (s *Service) notify(chatID int64, text string) {
	if _, err := s.msg.SendText(chatID, text); err != nil {
		s.log.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *Service) unlock(ctx context.Context, userID int64) {
	if err := s.locks.Unlock(ctx, userID); err != nil {
		s.log.Error("failed to release lock", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("workflow: decode job args: %w", err)
	}
	return v, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
