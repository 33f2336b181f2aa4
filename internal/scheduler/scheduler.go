package scheduler

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

const (
	refreshTag = "refresh"
	sweepTag   = "sweep"
)

// Refresher is the part of the weather service the scheduler drives.
type Refresher interface {
	RefreshActive()
	Evict() int
}

// Scheduler runs the background refresh of active keys and the eviction sweep.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Refresher

	mu       sync.Mutex
	interval time.Duration
	sweep    time.Duration
}

// New creates a new Scheduler. A non-positive interval disables that job.
func New(service Refresher, interval, sweep time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		interval:  interval,
		sweep:     sweep,
	}
}

// Start schedules both jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.scheduleRefresh(s.interval); err != nil {
		return err
	}

	if s.sweep > 0 {
		_, err := s.scheduler.Every(s.sweep).Tag(sweepTag).WaitForSchedule().Do(func() {
			s.service.Evict()
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Reschedule replaces the refresh job with one at the new interval.
func (s *Scheduler) Reschedule(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interval == s.interval {
		return nil
	}
	if err := s.scheduler.RemoveByTag(refreshTag); err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		return err
	}
	s.interval = interval
	log.Printf("scheduler: refresh interval set to %s", interval)
	return s.scheduleRefresh(interval)
}

func (s *Scheduler) scheduleRefresh(interval time.Duration) error {
	if interval <= 0 {
		log.Println("scheduler: background refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(interval).Tag(refreshTag).WaitForSchedule().Do(func() {
		log.Println("DEBUG: scheduler: running refresh job")
		s.service.RefreshActive()
	})
	return err
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
