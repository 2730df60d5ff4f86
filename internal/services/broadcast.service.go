package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/internal/queue"
	"github.com/starledger/starbot/pkg/logger"
	"github.com/starledger/starbot/pkg/prom"
	"github.com/starledger/starbot/pkg/redis"
	"github.com/starledger/starbot/pkg/worker"
)

const broadcastCounterTTL = 24 * time.Hour

// RecipientLister supplies the chat ids a broadcast fans out to.
type RecipientLister interface {
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

type BroadcastConfig struct {
	Queue   queue.Config
	Workers int
}

// BroadcastService fans an admin announcement out to every active account.
// Each recipient becomes one queued job, so a crash mid-broadcast resumes
// where it left off instead of starting over. Delivery counters live in a
// Redis hash keyed by run id; the admin gets a summary once the run drains.
type BroadcastService struct {
	adapter    redis.RedisAdapter
	recipients RecipientLister
	notifier   Notifier
	queue      *queue.Queue
	worker     *worker.WorkerManager
	config     BroadcastConfig
	wg         sync.WaitGroup
}

func NewBroadcastService(adapter redis.RedisAdapter, recipients RecipientLister, notifier Notifier, config BroadcastConfig) (*BroadcastService, error) {
	if config.Workers == 0 {
		config.Workers = 10
	}

	q, err := queue.New(adapter, config.Queue)
	if err != nil {
		return nil, fmt.Errorf("create broadcast queue: %w", err)
	}

	return &BroadcastService{
		adapter:    adapter,
		recipients: recipients,
		notifier:   notifier,
		queue:      q,
		worker:     worker.NewWorkerManager(10_000, config.Workers, nil),
		config:     config,
	}, nil
}

// Start launches the worker pool and the queue consumer.
func (s *BroadcastService) Start() error {
	s.worker.SetWorker(s.deliverJob)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Error("broadcast worker pool stopped", "error", err)
		}
	}()

	if err := s.queue.Consume(s.enqueueJob); err != nil {
		return fmt.Errorf("start broadcast consumer: %w", err)
	}

	logger.Info("broadcast service started", "workers", s.config.Workers)
	return nil
}

// Broadcast queues one delivery per active account and returns the run id
// and recipient count.
func (s *BroadcastService) Broadcast(ctx context.Context, adminID int64, text string) (string, int64, error) {
	ids, err := s.recipients.ListActiveIDs(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("list recipients: %w", err)
	}

	runID := uuid.NewString()
	total := int64(len(ids))

	if total == 0 {
		return runID, 0, nil
	}

	for _, chatID := range ids {
		job := model.BroadcastJob{
			RunID:   runID,
			ChatID:  chatID,
			Text:    text,
			AdminID: adminID,
			Total:   total,
		}
		if _, err := s.queue.PublishJSON(ctx, job); err != nil {
			return "", 0, fmt.Errorf("enqueue broadcast job: %w", err)
		}
	}

	logger.Info("broadcast queued", "run", runID, "recipients", total, "admin", adminID)
	return runID, total, nil
}

func (s *BroadcastService) enqueueJob(ctx context.Context, msg *queue.Message) error {
	var job model.BroadcastJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		// Malformed payload, retrying won't help.
		logger.Error("broadcast job unmarshal failed", "id", msg.ID, "error", err)
		return nil
	}

	s.worker.Enqueue(job)
	return nil
}

func (s *BroadcastService) deliverJob(workerIndex int, raw interface{}) {
	job, ok := raw.(model.BroadcastJob)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := s.notifier.Notify(ctx, job.ChatID, job.Text)
	if err != nil {
		prom.ObserveBroadcastDelivery(prom.OutcomeError, time.Since(start))
		logger.Warn("broadcast delivery failed", "run", job.RunID, "chat", job.ChatID, "error", err)
		s.recordOutcome(ctx, job, "failed")
		return
	}

	prom.ObserveBroadcastDelivery(prom.OutcomeOK, time.Since(start))
	s.recordOutcome(ctx, job, "delivered")
}

func (s *BroadcastService) recordOutcome(ctx context.Context, job model.BroadcastJob, field string) {
	key := s.counterKey(job.RunID)

	count, err := s.adapter.HIncrement(key, field, 1)
	if err != nil {
		logger.Error("broadcast counter update failed", "run", job.RunID, "error", err)
		return
	}
	_ = s.adapter.Expire(key, broadcastCounterTTL)

	report, done := s.runReport(job, field, count)
	if done {
		s.reportRun(ctx, job.AdminID, report)
	}
}

func (s *BroadcastService) runReport(job model.BroadcastJob, lastField string, lastCount int64) (*model.BroadcastReport, bool) {
	counters, err := s.adapter.HGetAll(s.counterKey(job.RunID))
	if err != nil {
		return nil, false
	}

	report := &model.BroadcastReport{RunID: job.RunID}
	for field, v := range counters {
		n, _ := strconv.ParseInt(v, 10, 64)
		switch field {
		case "delivered":
			report.Delivered = n
		case "failed":
			report.Failed = n
		}
	}

	// HGetAll may race with a concurrent increment; trust our own write.
	switch lastField {
	case "delivered":
		if report.Delivered < lastCount {
			report.Delivered = lastCount
		}
	case "failed":
		if report.Failed < lastCount {
			report.Failed = lastCount
		}
	}

	return report, report.Delivered+report.Failed >= job.Total
}

func (s *BroadcastService) reportRun(ctx context.Context, adminID int64, report *model.BroadcastReport) {
	text := fmt.Sprintf("Broadcast finished: %d delivered, %d failed.", report.Delivered, report.Failed)
	if err := s.notifier.Notify(ctx, adminID, text); err != nil {
		logger.Warn("broadcast summary notify failed", "admin", adminID, "error", err)
	}
	logger.Info("broadcast finished", "run", report.RunID, "delivered", report.Delivered, "failed", report.Failed)
}

func (s *BroadcastService) counterKey(runID string) string {
	return "broadcast:" + runID
}

// Stop drains the consumer and worker pool.
func (s *BroadcastService) Stop(timeout time.Duration) error {
	if err := s.queue.Stop(timeout); err != nil {
		return err
	}
	s.worker.Exit()
	return nil
}
