package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Recorder is what the domain services write audit entries through.
type Recorder interface {
	Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions)
	LogSync(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error
}

// AuditLogger writes entries off the request path. Failures are logged and
// never surface to the caller.
type AuditLogger struct {
	service *Service
	wg      sync.WaitGroup
}

func NewAuditLogger(service *Service) *AuditLogger {
	return &AuditLogger{
		service: service,
	}
}

func (l *AuditLogger) Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	// the request context is cancelled once the handler returns
	ctx = context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.service.Log(ctx, userID, action, entityType, entityID, opts); err != nil {
			log.Error().
				Err(err).
				Str("action", action).
				Str("entity_type", entityType).
				Str("entity_id", entityID.String()).
				Msg("failed to write audit log")
		}
	}()
}

func (l *AuditLogger) LogSync(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	return l.service.Log(ctx, userID, action, entityType, entityID, opts)
}

// Wait blocks until every pending entry has been written.
func (l *AuditLogger) Wait() {
	l.wg.Wait()
}
