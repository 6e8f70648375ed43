package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

// PoolConfig sizes the event sender.
type PoolConfig struct {
	Workers int
	Buffer  int
	// Timeout bounds a single publish call.
	Timeout time.Duration
	// Handoff is how long Send waits for buffer space before publishing inline.
	Handoff time.Duration
}

type publishJob struct {
	userID string
	events []domain.Event
}

// EventSender publishes task events on a pool of workers. When the buffer
// stays full for longer than the handoff timeout the events are published
// inline by the caller. Failures are logged and dropped.
type EventSender struct {
	publisher EventPublisher
	logger    *log.Logger
	timeout   time.Duration
	handoff   time.Duration

	jobs      chan publishJob
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEventSender starts cfg.Workers goroutines draining a buffer of cfg.Buffer jobs.
func NewEventSender(publisher EventPublisher, cfg PoolConfig, logger *log.Logger) *EventSender {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	s := &EventSender{
		publisher: publisher,
		logger:    logger,
		timeout:   cfg.Timeout,
		handoff:   cfg.Handoff,
		jobs:      make(chan publishJob, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("event sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.Handoff)
	return s
}

// Send hands the events to a worker or publishes them inline.
func (s *EventSender) Send(userID string, events ...domain.Event) {
	if len(events) == 0 {
		return
	}
	job := publishJob{userID: userID, events: events}
	if s.tryEnqueue(job) {
		return
	}
	s.logger.Warn("event buffer saturated; publishing inline")
	s.publish(-1, job)
}

// Close stops accepting jobs and waits for the workers to drain the buffer.
func (s *EventSender) Close() {
	s.closeOnce.Do(func() {
		close(s.jobs)
	})
	s.wg.Wait()
}

func (s *EventSender) worker(id int) {
	defer s.wg.Done()
	for j := range s.jobs {
		s.publish(id, j)
	}
}

func (s *EventSender) publish(worker int, j publishJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := s.publisher.PublishEvents(ctx, j.events)
	cancel()
	if err != nil {
		s.logger.WithFields(log.Fields{
			"user":   j.userID,
			"count":  len(j.events),
			"worker": worker,
		}).Errorf("publish events failed: %v", err)
	}
}

func (s *EventSender) tryEnqueue(job publishJob) bool {
	if ok, closed := trySendNonBlocking(s.jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if s.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(s.handoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(s.jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan publishJob, job publishJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan publishJob, job publishJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
