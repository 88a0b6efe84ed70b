package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is a unit of periodic background work
type Job interface {
	Run(ctx context.Context) error
}

// JobScheduler runs registered jobs at fixed intervals
type JobScheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]Job
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create job scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Register adds a job that runs every interval. Overlapping runs are skipped.
func (s *JobScheduler) Register(name string, interval time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return fmt.Errorf("job scheduler is stopped")
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.runJob(name, job)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered job: %s (every %v)", name, interval)
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.scheduler == nil {
		return
	}
	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started job scheduler with %d jobs", len(s.jobs))
}

func (s *JobScheduler) runJob(name string, job Job) {
	startTime := time.Now()

	if err := job.Run(s.ctx); err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return
	}
	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
}

// Stop cancels running jobs and shuts the scheduler down. Safe to call more than once.
func (s *JobScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return nil
	}

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false
	s.cancel()
	err := s.scheduler.Shutdown()
	s.scheduler = nil

	log.Println("✅ [SCHEDULER] Job scheduler stopped")
	return err
}

// RunNow runs a registered job immediately on the caller's goroutine
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %s not registered", name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return job.Run(s.ctx)
}
