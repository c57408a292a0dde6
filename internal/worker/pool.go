package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studyflow/internal/models"
)

const maxAttempts = 3

type progressStore interface {
	RecomputeProgress(ctx context.Context, planID uuid.UUID) (*models.PlanProgress, error)
}

type updatePublisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

// Pool drains the plan progress queue. Each job recomputes a plan's
// aggregates from its completed sessions and tells the owner about it.
type Pool struct {
	redis        *redis.Client
	plans        progressStore
	events       updatePublisher
	workerCount  int
	blockTimeout time.Duration
	lockTTL      time.Duration
	lockBackoff  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(redisClient *redis.Client, plans progressStore, events updatePublisher, workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		redis:        redisClient,
		plans:        plans,
		events:       events,
		workerCount:  workerCount,
		blockTimeout: 30 * time.Second,
		lockTTL:      time.Minute,
		lockBackoff:  500 * time.Millisecond,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

// Stop waits for workers to exit. A worker blocked in BLPOP returns once its
// timeout elapses.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

type queuedJob struct {
	models.PlanProgressJob
	Attempt int `json:"attempt"`
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		if p.ctx.Err() != nil {
			log.Printf("Worker %d shutting down", id)
			return
		}

		result, err := p.redis.BLPop(p.ctx, p.blockTimeout, models.PlanProgressQueue).Result()
		if err != nil {
			continue // Timeout, shutdown or transient error
		}
		if len(result) < 2 {
			continue
		}

		var job queuedJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		p.handle(p.ctx, id, job)
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, job queuedJob) {
	// One recompute per plan at a time
	lockKey := fmt.Sprintf("plan_progress_lock:%s", job.PlanID)
	locked, err := p.redis.SetNX(ctx, lockKey, job.ID.String(), p.lockTTL).Result()
	if err != nil {
		log.Printf("Worker %d: failed to lock plan %s: %v", workerID, job.PlanID, err)
		p.retry(ctx, job, err)
		return
	}
	if !locked {
		// The running recompute may have read the plan before this session
		// committed, so run again once it is done. Not counted as an attempt.
		p.requeue(ctx, job, p.lockBackoff)
		return
	}
	defer p.redis.Del(context.Background(), lockKey)

	log.Printf("Worker %d: recomputing progress for plan %s (session %s)", workerID, job.PlanID, job.SessionID)

	if err := p.process(ctx, job.PlanProgressJob); err != nil {
		p.retry(ctx, job, err)
	}
}

func (p *Pool) process(ctx context.Context, job models.PlanProgressJob) error {
	progress, err := p.plans.RecomputeProgress(ctx, job.PlanID)
	if err != nil {
		return fmt.Errorf("failed to recompute plan progress: %w", err)
	}

	if err := p.events.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type:    models.WSPlanProgress,
		Payload: progress,
	}); err != nil {
		log.Printf("Failed to publish progress for plan %s: %v", job.PlanID, err)
	}
	return nil
}

func (p *Pool) retry(ctx context.Context, job queuedJob, err error) {
	job.Attempt++
	if job.Attempt >= maxAttempts {
		log.Printf("Job %s failed permanently: %v", job.ID, err)
		return
	}

	log.Printf("Job %s failed (attempt %d): %v, retrying", job.ID, job.Attempt, err)
	p.requeue(ctx, job, time.Duration(1<<uint(job.Attempt))*time.Second)
}

func (p *Pool) requeue(ctx context.Context, job queuedJob, delay time.Duration) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Printf("Job %s could not be requeued: %v", job.ID, err)
		return
	}
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		p.redis.RPush(context.Background(), models.PlanProgressQueue, string(data))
	})
}
