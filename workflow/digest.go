package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"essay-review-bot/model"
	"essay-review-bot/store"

	"go.uber.org/zap"
)

type Digest struct {
	PendingPayments int64
	WaitingVoice    int64
	VoiceScheduled  int64
}

func (d Digest) Empty() bool {
	return d.PendingPayments == 0 && d.WaitingVoice == 0 && d.VoiceScheduled == 0
}

func (d Digest) String() string {
	return fmt.Sprintf("📊 Pending payments: %d\nWaiting for voice: %d\nVoice scheduled: %d",
		d.PendingPayments, d.WaitingVoice, d.VoiceScheduled)
}

func (s *Service) Digest(ctx context.Context) (Digest, error) {
	var (
		d   Digest
		err error
	)
	if d.PendingPayments, err = s.payments.CountPending(ctx); err != nil {
		return d, err
	}
	if d.WaitingVoice, err = s.reviews.CountByStatus(ctx, model.StatusWaitingVoice); err != nil {
		return d, err
	}
	if d.VoiceScheduled, err = s.reviews.CountByStatus(ctx, model.StatusVoiceScheduled); err != nil {
		return d, err
	}
	return d, nil
}

// SendDigest posts the backlog counts to the essay admin. Nothing is sent
// when there is no backlog.
func (s *Service) SendDigest(ctx context.Context) error {
	d, err := s.Digest(ctx)
	if err != nil {
		return err
	}
	if d.Empty() {
		return nil
	}
	if _, err := s.msg.SendText(s.opts.EssayAdminID, d.String()); err != nil {
		return fmt.Errorf("workflow: send digest: %w", err)
	}
	return nil
}

// RestoreLocks takes the lock again for every user with a review in flight:
// a pending essay check, a review waiting for a voice, or a voice whose
// delivery is still scheduled. Call it after the scheduler restored its jobs.
func (s *Service) RestoreLocks(ctx context.Context) (int, error) {
	users := make(map[int64]struct{})
	for _, id := range s.jobs.PendingIDs(essayJobPrefix) {
		userID, err := strconv.ParseInt(strings.TrimPrefix(id, essayJobPrefix), 10, 64)
		if err != nil {
			s.log.Warn("skipping malformed job id", zap.String("job_id", id))
			continue
		}
		users[userID] = struct{}{}
	}
	for _, id := range s.jobs.PendingIDs(voiceJobPrefix) {
		rec, err := s.reviews.Get(ctx, strings.TrimPrefix(id, voiceJobPrefix))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		users[rec.UserID] = struct{}{}
	}
	waiting, err := s.reviews.UsersWithStatus(ctx, model.StatusWaitingVoice)
	if err != nil {
		return 0, err
	}
	for _, userID := range waiting {
		users[userID] = struct{}{}
	}

	n := 0
	for userID := range users {
		ok, err := s.locks.TryLock(ctx, userID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
