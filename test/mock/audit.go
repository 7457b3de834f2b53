// test/mock/audit.go
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stronghold-io/bastion/audit"
)

// MockAuditService is a mock implementation of audit.Service
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) LogSuccess(ctx context.Context, eventType, resourceType, resourceID string, evtCtx audit.EventContext) error {
	args := m.Called(ctx, eventType, resourceType, resourceID, evtCtx)
	return args.Error(0)
}

func (m *MockAuditService) LogFailure(ctx context.Context, eventType, resourceType, resourceID string, evtCtx audit.EventContext) error {
	args := m.Called(ctx, eventType, resourceType, resourceID, evtCtx)
	return args.Error(0)
}
