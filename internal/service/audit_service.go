package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/pkg/jobs"
)

const auditJobType = "audit.write"

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditEvent describes something worth recording in the audit trail.
type AuditEvent struct {
	UserID     *int64
	Action     string
	Resource   string
	ResourceID string
	Values     map[string]interface{}
	Meta       models.ClientMeta
}

// AuditConfig sizes the dispatcher.
type AuditConfig struct {
	Workers    int
	BufferSize int
}

// AuditService writes audit entries off the request path. When the buffer is
// full the entry is dropped and counted rather than slowing the caller.
type AuditService struct {
	repo    auditRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	timeout time.Duration
}

// NewAuditService builds the dispatcher. Call Start before Record and Stop on shutdown.
func NewAuditService(repo auditRepository, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, metrics: metrics, logger: logger, timeout: 5 * time.Second}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
		Logger:     logger,
	})
	return s
}

// Start launches the background writers.
func (s *AuditService) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop flushes buffered entries and stops the writers.
func (s *AuditService) Stop() {
	if s == nil {
		return
	}
	s.queue.Stop()
}

// Record queues event for persistence. It never returns an error to the caller.
func (s *AuditService) Record(event AuditEvent) {
	if s == nil {
		return
	}
	entry, err := event.toLog()
	if err != nil {
		s.logger.Warn("failed to encode audit entry", zap.String("action", event.Action), zap.Error(err))
		return
	}
	err = s.queue.TryEnqueue(jobs.Job{ID: entry.ID, Type: auditJobType, Payload: entry})
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrQueueFull):
		s.metrics.IncAuditDropped()
		s.logger.Warn("audit buffer full, entry dropped", zap.String("action", event.Action))
	default:
		s.logger.Warn("failed to queue audit entry", zap.String("action", event.Action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.Create(writeCtx, entry)
}

func (e AuditEvent) toLog() (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		UserID:    e.UserID,
		Action:    e.Action,
		Resource:  e.Resource,
		IPAddress: e.Meta.IP,
		UserAgent: e.Meta.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if e.ResourceID != "" {
		id := e.ResourceID
		entry.ResourceID = &id
	}
	if len(e.Values) > 0 {
		payload, err := json.Marshal(e.Values)
		if err != nil {
			return nil, err
		}
		entry.NewValues = payload
	}
	return entry, nil
}
