package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"carebook/internal/domain"
	"carebook/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Job is a unit of deferred work. Returning domain.ErrNotFound marks the job
// as a no-op because its target no longer exists.
type Job func(ctx context.Context) error

// DeadLetter is what lands in the redis dead-letter list after the last retry.
type DeadLetter struct {
	Owner    string    `json:"owner"`
	Name     string    `json:"name"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type scheduledJob struct {
	id     uint64
	owner  string
	name   string
	timer  *time.Timer
	cancel context.CancelFunc
}

// Scheduler runs delayed jobs on its own context, detached from whoever
// scheduled them. Jobs are grouped by owner key so that removing an entity
// cancels everything still pending for it.
type Scheduler struct {
	base       context.Context
	stop       context.CancelFunc
	retry      RetryPolicy
	redis      *redis.Client
	deadLetter string
	logger     *zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	owners map[string]map[uint64]*scheduledJob
	wg     sync.WaitGroup
	closed bool
}

var _ domain.JobScheduler = (*Scheduler)(nil)

// NewScheduler builds a scheduler. redisClient may be nil, in which case
// exhausted jobs are only logged.
func NewScheduler(retry RetryPolicy, redisClient *redis.Client, deadLetterKey string, logger *zerolog.Logger) *Scheduler {
	base, stop := context.WithCancel(context.Background())
	if deadLetterKey == "" {
		deadLetterKey = "jobs:deadletter"
	}
	return &Scheduler{
		base:       base,
		stop:       stop,
		retry:      retry,
		redis:      redisClient,
		deadLetter: deadLetterKey,
		logger:     logger,
		owners:     make(map[string]map[uint64]*scheduledJob),
	}
}

// Schedule runs job after delay under owner. Scheduling on a stopped
// scheduler is ignored.
func (s *Scheduler) Schedule(owner string, delay time.Duration, name string, job func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn().Str("owner", owner).Str("job", name).Msg("scheduler stopped, job dropped")
		return
	}

	s.seq++
	ctx, cancel := context.WithCancel(s.base)
	sj := &scheduledJob{id: s.seq, owner: owner, name: name, cancel: cancel}

	if s.owners[owner] == nil {
		s.owners[owner] = make(map[uint64]*scheduledJob)
	}
	s.owners[owner][sj.id] = sj

	s.wg.Add(1)
	sj.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		defer s.forget(sj)
		s.run(ctx, sj, job)
	})
}

// Cancel stops every pending job of owner and returns how many were cancelled.
// A job already running sees its context cancelled.
func (s *Scheduler) Cancel(owner string) int {
	s.mu.Lock()
	jobs := s.owners[owner]
	delete(s.owners, owner)
	s.mu.Unlock()

	for _, sj := range jobs {
		sj.cancel()
		if sj.timer.Stop() {
			s.wg.Done()
		}
		metrics.IncJob(sj.name, "cancelled")
	}
	if len(jobs) > 0 {
		s.logger.Debug().Str("owner", owner).Int("jobs", len(jobs)).Msg("pending jobs cancelled")
	}
	return len(jobs)
}

// Pending reports how many jobs are scheduled or running.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, jobs := range s.owners {
		n += len(jobs)
	}
	return n
}

// Stop cancels all pending jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	owners := make([]string, 0, len(s.owners))
	for owner := range s.owners {
		owners = append(owners, owner)
	}
	s.mu.Unlock()

	for _, owner := range owners {
		s.Cancel(owner)
	}
	s.stop()
	s.wg.Wait()
}

func (s *Scheduler) forget(sj *scheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if jobs, ok := s.owners[sj.owner]; ok {
		delete(jobs, sj.id)
		if len(jobs) == 0 {
			delete(s.owners, sj.owner)
		}
	}
	sj.cancel()
}

func (s *Scheduler) run(ctx context.Context, sj *scheduledJob, job Job) {
	log := s.logger.With().Str("owner", sj.owner).Str("job", sj.name).Logger()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			metrics.IncJob(sj.name, "cancelled")
			return
		}

		err := job(ctx)
		switch {
		case err == nil:
			metrics.IncJob(sj.name, "done")
			return
		case errors.Is(err, domain.ErrNotFound):
			log.Debug().Err(err).Msg("job target gone, skipping")
			metrics.IncJob(sj.name, "skipped")
			return
		case ctx.Err() != nil:
			metrics.IncJob(sj.name, "cancelled")
			return
		}

		if attempt > s.retry.MaxRetries {
			log.Error().Err(err).Int("attempts", attempt).Msg("job failed permanently")
			metrics.IncJob(sj.name, "dead")
			s.pushDeadLetter(sj, attempt, err)
			return
		}

		delay := s.retry.NextDelay(attempt)
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("job failed, retrying")
		metrics.IncJob(sj.name, "retry")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			metrics.IncJob(sj.name, "cancelled")
			return
		case <-t.C:
		}
	}
}

func (s *Scheduler) pushDeadLetter(sj *scheduledJob, attempts int, cause error) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(DeadLetter{
		Owner:    sj.owner,
		Name:     sj.name,
		Attempts: attempts,
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.LPush(ctx, s.deadLetter, data).Err(); err != nil {
		s.logger.Error().Err(err).Str("job", sj.name).Msg("failed to push dead letter")
	}
}
