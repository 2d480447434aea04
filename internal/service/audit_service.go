package service

import (
	"context"
	"sync"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"

	"github.com/rs/zerolog"
)

const (
	auditQueueSize    = 256
	auditWriteTimeout = 5 * time.Second
)

// AuditServiceImpl implements ports.AuditService. Entries are written by a
// single background worker so settlement calls never wait on the audit table.
type AuditServiceImpl struct {
	repo    ports.AuditRepository
	log     zerolog.Logger
	queue   chan *domain.AuditLog
	done    chan struct{}
	closeMu sync.Once
}

// NewAuditService creates a new audit service and starts its worker.
// If repo is nil, audit entries are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	s := &AuditServiceImpl{
		repo:  repo,
		log:   log,
		queue: make(chan *domain.AuditLog, auditQueueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Log enqueues an audit entry. When the queue is full the entry is logged and dropped.
func (s *AuditServiceImpl) Log(_ context.Context, entry *domain.AuditLog) {
	s.log.Info().
		Str("action", string(entry.Action)).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("ip", entry.IPAddress).
		Msg("audit")

	select {
	case s.queue <- entry:
	default:
		s.log.Warn().Str("action", string(entry.Action)).Str("resource_id", entry.ResourceID).Msg("audit queue full, entry not persisted")
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (s *AuditServiceImpl) Close() {
	s.closeMu.Do(func() { close(s.queue) })
	<-s.done
}

func (s *AuditServiceImpl) run() {
	defer close(s.done)
	for entry := range s.queue {
		if s.repo == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
		cancel()
	}
}
