// test/mock/evaluator.go
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stronghold-io/bastion/evaluator"
)

// MockEvaluator is a mock implementation of evaluator.Evaluator
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) HasPermissionByAction(ctx context.Context, userID, resourceType, action string) (evaluator.Result, error) {
	args := m.Called(ctx, userID, resourceType, action)
	return args.Get(0).(evaluator.Result), args.Error(1)
}
