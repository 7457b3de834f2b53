// audit/service.go
package audit

import (
	"context"
	"time"
)

// Service is the audit log sink consumed by the security core.
type Service interface {
	LogSuccess(ctx context.Context, eventType, resourceType, resourceID string, evtCtx EventContext) error
	LogFailure(ctx context.Context, eventType, resourceType, resourceID string, evtCtx EventContext) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) LogSuccess(ctx context.Context, eventType, resourceType, resourceID string, evtCtx EventContext) error {
	return s.repo.Index(ctx, Event{
		Timestamp:    time.Now(),
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Success:      true,
		Context:      evtCtx,
	})
}

func (s *service) LogFailure(ctx context.Context, eventType, resourceType, resourceID string, evtCtx EventContext) error {
	return s.repo.Index(ctx, Event{
		Timestamp:    time.Now(),
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Success:      false,
		Context:      evtCtx,
	})
}
