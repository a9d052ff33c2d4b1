package model

import (
	"time"
)

// Essay review statuses.
const (
	StatusSubmitted      = "submitted"
	StatusScored         = "scored"
	StatusWaitingVoice   = "waiting_voice"
	StatusVoiceScheduled = "voice_scheduled"
	StatusVoiceSent      = "voice_sent"
	StatusResent         = "resent"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

// Receipt kinds.
const (
	ReceiptImage = "image"
	ReceiptFile  = "file"
)

// MessageRef addresses one message in one chat.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type User struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"` // Telegram User ID
	CreatedAt time.Time
}

func (User) TableName() string { return "users" }

type Balance struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Balance   int64 `gorm:"not null;default:0;check:balance >= 0"`
	UpdatedAt time.Time
}

func (Balance) TableName() string { return "balances" }

// FreeTry marks that the one-time free check was granted.
type FreeTry struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

func (FreeTry) TableName() string { return "free_tries" }

type Payment struct {
	PaymentID   string `gorm:"primaryKey;size:64"`
	UserID      int64  `gorm:"index;not null"`
	Amount      int64  `gorm:"not null"`
	Status      string `gorm:"size:16;index;not null"`
	Username    string `gorm:"size:255"`
	ReceiptKind string `gorm:"size:16;not null"`
	ReceiptRef  string `gorm:"not null"`
	DecidedBy   *int64
	DecidedAt   *time.Time
	CreatedAt   time.Time
}

func (Payment) TableName() string { return "payments" }

type EssayReview struct {
	EssayID   string `gorm:"primaryKey;size:64"`
	UserID    int64  `gorm:"index;not null"`
	Topic     string `gorm:"type:text"`
	EssayText string `gorm:"type:text"`
	AIResult  string `gorm:"column:ai_result;type:text"`

	// Anchor: the admin-facing message a voice reply is addressed to.
	AdminChatID int64 `gorm:"index:idx_essay_anchor"`
	AdminMsgID  int   `gorm:"index:idx_essay_anchor"`

	Status       string `gorm:"size:32;index;not null"`
	VoiceFileID  *string
	VoicedAt     *time.Time
	VoiceSentBy  *int64
	VoiceMsgID   *int
	VoiceSentAt  *time.Time
	SentToUserAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (EssayReview) TableName() string { return "essay_reviews" }

// Anchor returns the admin message the review is correlated with.
func (e *EssayReview) Anchor() MessageRef {
	return MessageRef{ChatID: e.AdminChatID, MessageID: e.AdminMsgID}
}

// ScheduledJob is the durable copy of a pending delayed job.
type ScheduledJob struct {
	JobID     string    `gorm:"primaryKey;size:128"`
	Action    string    `gorm:"size:64;not null"`
	Args      string    `gorm:"type:text"`
	RunAt     time.Time `gorm:"index;not null"`
	Token     string    `gorm:"size:64;not null"` // changes on every reschedule
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ScheduledJob) TableName() string { return "scheduled_jobs" }

// All lists every model for migrations.
func All() []any {
	return []any{&User{}, &Balance{}, &FreeTry{}, &Payment{}, &EssayReview{}, &ScheduledJob{}}
}
