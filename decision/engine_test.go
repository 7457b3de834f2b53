// decision/engine_test.go
package decision

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/stronghold-io/bastion/audit"
	bastion_errors "github.com/stronghold-io/bastion/errors"
	"github.com/stronghold-io/bastion/evaluator"
	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/model"
	mocks "github.com/stronghold-io/bastion/test/mock"
)

func TestMain(m *testing.M) {
	logger.InitLogger(os.TempDir())
	os.Exit(m.Run())
}

func newTestEngine(t *testing.T) (*Engine, *mocks.MockEvaluator, *mocks.MockAuditService) {
	t.Helper()
	eval := new(mocks.MockEvaluator)
	auditSvc := new(mocks.MockAuditService)
	cache := NewMemoryCache(100, 5*time.Minute)
	return NewEngine(cache, eval, auditSvc, nil, 100*time.Millisecond), eval, auditSvc
}

func TestEvaluateAllowedAndCached(t *testing.T) {
	ctx := context.Background()
	engine, eval, auditSvc := newTestEngine(t)

	req := model.AccessRequest{
		UserID:       "alice",
		ResourceType: "invoice",
		Action:       "read",
		ResourceID:   "inv-1",
	}

	eval.On("HasPermissionByAction", mock.Anything, "alice", "invoice", "read").
		Return(evaluator.Result{HasPermission: true, Reason: "granted by role admin"}, nil).Once()
	auditSvc.On("LogSuccess", mock.Anything, "access.decision", "invoice", "inv-1", mock.Anything).
		Return(nil).Once()

	first := engine.Evaluate(ctx, req)
	assert.True(t, first.Allowed)
	assert.False(t, first.FromCache)
	assert.Equal(t, "granted by role admin", first.Reason)

	second := engine.Evaluate(ctx, req)
	assert.True(t, second.Allowed)
	assert.True(t, second.FromCache, "identical request must be served from cache")
	assert.Equal(t, first.Reason, second.Reason)

	// The evaluator must not be consulted for the cached call.
	eval.AssertExpectations(t)
}

func TestEvaluateDeniedByEvaluator(t *testing.T) {
	ctx := context.Background()
	engine, eval, auditSvc := newTestEngine(t)

	req := model.AccessRequest{UserID: "bob", ResourceType: "invoice", Action: "delete"}

	eval.On("HasPermissionByAction", mock.Anything, "bob", "invoice", "delete").
		Return(evaluator.Result{HasPermission: false, Reason: "no role grants invoice:delete"}, nil).Once()
	auditSvc.On("LogFailure", mock.Anything, "access.decision", "invoice", "", mock.Anything).
		Return(nil)

	decision := engine.Evaluate(ctx, req)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "no role grants invoice:delete", decision.Reason)

	// Explicit denials are cacheable.
	cached := engine.Evaluate(ctx, req)
	assert.True(t, cached.FromCache)
	eval.AssertExpectations(t)
}

func TestEvaluateFailsClosedOnEvaluatorError(t *testing.T) {
	ctx := context.Background()
	engine, eval, auditSvc := newTestEngine(t)

	req := model.AccessRequest{UserID: "carol", ResourceType: "report", Action: "read"}

	eval.On("HasPermissionByAction", mock.Anything, "carol", "report", "read").
		Return(evaluator.Result{}, errors.New("graph unavailable")).Twice()
	auditSvc.On("LogFailure", mock.Anything, "access.decision", "report", "", mock.MatchedBy(func(c audit.EventContext) bool {
		msg, _ := c.Details["error"].(string)
		return c.Details["cause"] == "evaluation_error" &&
			strings.Contains(msg, bastion_errors.ErrEvaluationFailed.Error()) &&
			strings.Contains(msg, "graph unavailable")
	})).Return(nil).Twice()

	decision := engine.Evaluate(ctx, req)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DeniedReasonError, decision.Reason)
	assert.False(t, decision.FromCache)

	// Error denials are not cached; the next request retries evaluation.
	retry := engine.Evaluate(ctx, req)
	assert.False(t, retry.FromCache)
	eval.AssertExpectations(t)
	auditSvc.AssertExpectations(t)
}

func TestEvaluateClassifiesTimeoutAsEvaluationTimeout(t *testing.T) {
	ctx := context.Background()
	engine, eval, auditSvc := newTestEngine(t)

	req := model.AccessRequest{UserID: "dave", ResourceType: "report", Action: "read"}

	eval.On("HasPermissionByAction", mock.Anything, "dave", "report", "read").
		Return(evaluator.Result{}, context.DeadlineExceeded).Once()
	auditSvc.On("LogFailure", mock.Anything, "access.decision", "report", "", mock.MatchedBy(func(c audit.EventContext) bool {
		msg, _ := c.Details["error"].(string)
		return strings.Contains(msg, bastion_errors.ErrEvaluationTimeout.Error())
	})).Return(nil).Once()

	decision := engine.Evaluate(ctx, req)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DeniedReasonError, decision.Reason)
	auditSvc.AssertExpectations(t)
}

func TestEvaluateSurvivesAuditFailure(t *testing.T) {
	ctx := context.Background()
	engine, eval, auditSvc := newTestEngine(t)

	req := model.AccessRequest{UserID: "alice", ResourceType: "invoice", Action: "read"}

	eval.On("HasPermissionByAction", mock.Anything, "alice", "invoice", "read").
		Return(evaluator.Result{HasPermission: true, Reason: "granted by role admin"}, nil).Once()
	auditSvc.On("LogSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("elasticsearch down"))

	decision := engine.Evaluate(ctx, req)
	assert.True(t, decision.Allowed, "audit sink failures must not change the decision")
}

func TestInvalidateUserCache(t *testing.T) {
	ctx := context.Background()
	engine, eval, auditSvc := newTestEngine(t)

	eval.On("HasPermissionByAction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(evaluator.Result{HasPermission: true, Reason: "ok"}, nil)
	auditSvc.On("LogSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	engine.Evaluate(ctx, model.AccessRequest{UserID: "alice", ResourceType: "invoice", Action: "read", ResourceID: "inv-1"})
	engine.Evaluate(ctx, model.AccessRequest{UserID: "alice", ResourceType: "invoice", Action: "write", ResourceID: "inv-2"})
	engine.Evaluate(ctx, model.AccessRequest{UserID: "bob", ResourceType: "invoice", Action: "read", ResourceID: "inv-1"})

	removed := engine.InvalidateUserCache(ctx, "alice")
	assert.Equal(t, 2, removed)

	// Bob's entry survives; Alice's requests re-evaluate.
	cached := engine.Evaluate(ctx, model.AccessRequest{UserID: "bob", ResourceType: "invoice", Action: "read", ResourceID: "inv-1"})
	assert.True(t, cached.FromCache)
	fresh := engine.Evaluate(ctx, model.AccessRequest{UserID: "alice", ResourceType: "invoice", Action: "read", ResourceID: "inv-1"})
	assert.False(t, fresh.FromCache)
}

func TestInvalidateResourceCache(t *testing.T) {
	ctx := context.Background()
	engine, eval, auditSvc := newTestEngine(t)

	eval.On("HasPermissionByAction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(evaluator.Result{HasPermission: true, Reason: "ok"}, nil)
	auditSvc.On("LogSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	engine.Evaluate(ctx, model.AccessRequest{UserID: "alice", ResourceType: "invoice", Action: "read", ResourceID: "inv-1"})
	engine.Evaluate(ctx, model.AccessRequest{UserID: "bob", ResourceType: "invoice", Action: "read", ResourceID: "inv-1"})
	engine.Evaluate(ctx, model.AccessRequest{UserID: "alice", ResourceType: "invoice", Action: "read", ResourceID: "inv-2"})

	removed := engine.InvalidateResourceCache(ctx, "inv-1")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, engine.CacheStats(ctx).Size)
}

func TestCacheKeyWildcardResource(t *testing.T) {
	withResource := cacheKey(model.AccessRequest{UserID: "u", ResourceType: "invoice", Action: "read", ResourceID: "inv-1"})
	withoutResource := cacheKey(model.AccessRequest{UserID: "u", ResourceType: "invoice", Action: "read"})

	assert.Equal(t, "decision:u:invoice:read:inv-1", withResource)
	assert.Equal(t, "decision:u:invoice:read:*", withoutResource)
	assert.NotEqual(t, withResource, withoutResource)
}
