// Package scheduler runs named one-shot actions at a given time. A job id has
// at most one pending run; scheduling the same id again replaces it.
// Pending jobs are kept in the scheduled_jobs table and re-armed by Restore.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"essay-review-bot/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnknownAction = errors.New("scheduler: unknown action")
	ErrStopped       = errors.New("scheduler: stopped")
)

// Action is a job body. args is the JSON the job was scheduled with.
type Action func(ctx context.Context, args json.RawMessage) error

type entry struct {
	timer *time.Timer
	gen   uint64
	runAt time.Time
}

type Scheduler struct {
	db  *gorm.DB
	log *zap.Logger

	mu      sync.Mutex
	actions map[string]Action
	pending map[string]*entry
	gen     uint64
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	nowFn  func() time.Time
}

// New returns a Scheduler. db may be nil, in which case jobs only live in memory.
func New(db *gorm.DB, log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:      db,
		log:     log.Named("scheduler"),
		actions: make(map[string]Action),
		pending: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
		nowFn:   time.Now,
	}
}

// Register binds name to fn. Register before Restore so restored jobs find their action.
func (s *Scheduler) Register(name string, fn Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[name] = fn
}

// Schedule arms jobID to run action(args) at runAt, replacing any pending run
// of the same id. The replaced run never fires.
func (s *Scheduler) Schedule(ctx context.Context, jobID string, runAt time.Time, action string, args any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("scheduler: encode args for %s: %w", jobID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.actions[action]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	token := uuid.NewString()
	if s.db != nil {
		job := model.ScheduledJob{
			JobID:  jobID,
			Action: action,
			Args:   string(payload),
			RunAt:  runAt,
			Token:  token,
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"action", "args", "run_at", "token", "updated_at"}),
		}).Create(&job).Error
		if err != nil {
			return fmt.Errorf("scheduler: persist %s: %w", jobID, err)
		}
	}

	s.armLocked(jobID, action, token, payload, runAt)
	s.log.Debug("job scheduled", zap.String("job_id", jobID), zap.String("action", action), zap.Time("run_at", runAt))
	return nil
}

func (s *Scheduler) armLocked(jobID, action, token string, payload []byte, runAt time.Time) {
	if old, ok := s.pending[jobID]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen

	delay := runAt.Sub(s.nowFn())
	if delay < 0 {
		delay = 0
	}
	e := &entry{gen: gen, runAt: runAt}
	e.timer = time.AfterFunc(delay, func() {
		s.fire(jobID, gen, action, token, payload)
	})
	s.pending[jobID] = e
}

func (s *Scheduler) fire(jobID string, gen uint64, action, token string, payload []byte) {
	s.mu.Lock()
	e, ok := s.pending[jobID]
	if !ok || e.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, jobID)
	fn := s.actions[action]
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	log := s.log.With(zap.String("job_id", jobID), zap.String("action", action))
	if s.db != nil {
		err := s.db.WithContext(s.ctx).
			Where("job_id = ? AND token = ?", jobID, token).
			Delete(&model.ScheduledJob{}).Error
		if err != nil {
			log.Warn("failed to delete fired job row", zap.Error(err))
		}
	}
	s.run(log, fn, payload)
}

func (s *Scheduler) run(log *zap.Logger, fn Action, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked, dropping", zap.Any("panic", r))
		}
	}()
	if fn == nil {
		log.Error("no action registered, dropping")
		return
	}
	if err := fn(s.ctx, payload); err != nil {
		log.Error("job failed, dropping", zap.Error(err))
	}
}

// Cancel drops the pending run of jobID, if any.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.pending[jobID]; ok {
		e.timer.Stop()
		delete(s.pending, jobID)
	}
	if s.db == nil {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&model.ScheduledJob{}).Error; err != nil {
		return fmt.Errorf("scheduler: cancel %s: %w", jobID, err)
	}
	return nil
}

// Pending reports whether jobID has a run armed.
func (s *Scheduler) Pending(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[jobID]
	return ok
}

// PendingIDs lists armed job ids starting with prefix.
func (s *Scheduler) PendingIDs(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.pending {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Restore re-arms every persisted job. Jobs whose time has passed fire right away.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	var jobs []model.ScheduledJob
	if err := s.db.WithContext(ctx).Order("run_at").Find(&jobs).Error; err != nil {
		return 0, fmt.Errorf("scheduler: load jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrStopped
	}
	n := 0
	for _, j := range jobs {
		if _, ok := s.actions[j.Action]; !ok {
			s.log.Warn("skipping persisted job with unknown action", zap.String("job_id", j.JobID), zap.String("action", j.Action))
			continue
		}
		s.armLocked(j.JobID, j.Action, j.Token, []byte(j.Args), j.RunAt)
		n++
	}
	return n, nil
}

// Stop disarms all timers and waits for running jobs. Persisted rows are kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
}
