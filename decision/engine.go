// decision/engine.go
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stronghold-io/bastion/audit"
	bastion_errors "github.com/stronghold-io/bastion/errors"
	"github.com/stronghold-io/bastion/evaluator"
	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/metrics"
	"github.com/stronghold-io/bastion/model"
	"github.com/stronghold-io/bastion/util"
)

// keyNamespace prefixes every decision cache key, keeping the keyspace
// disjoint from the rate limiter and lock keys sharing Redis.
const keyNamespace = "decision:"

// wildcardResource marks a request that carries no resource identifier.
const wildcardResource = "*"

const (
	eventTypeDecision = "access.decision"

	// DeniedReasonError is returned whenever evaluation itself failed. The
	// real cause goes to the audit trail, never to the caller.
	DeniedReasonError = "access denied: permission evaluation unavailable"
)

// Engine is the access decision orchestrator: cache probe, evaluator
// fallback, cache store, audit emission. Every error path fails closed.
type Engine struct {
	cache       Cache
	eval        evaluator.Evaluator
	auditSvc    audit.Service
	events      *util.EventBus
	evalTimeout time.Duration
}

func NewEngine(cache Cache, eval evaluator.Evaluator, auditSvc audit.Service, events *util.EventBus, evalTimeout time.Duration) *Engine {
	return &Engine{
		cache:       cache,
		eval:        eval,
		auditSvc:    auditSvc,
		events:      events,
		evalTimeout: evalTimeout,
	}
}

// Evaluate decides whether the request's principal may perform the action.
// It never returns an error: an evaluator failure or timeout produces an
// explicit denial with a generic reason and an audit record tagging the
// cause as an evaluation error.
func (e *Engine) Evaluate(ctx context.Context, req model.AccessRequest) model.AccessDecision {
	start := time.Now()
	key := cacheKey(req)

	if entry, ok := e.cache.Get(ctx, key); ok {
		metrics.IncCacheHit()
		decision := entry.Decision
		decision.FromCache = true
		decision.Duration = time.Since(start)
		logger.Debug("Decision served from cache",
			zap.String("userID", req.UserID),
			zap.String("key", key),
			zap.Bool("allowed", decision.Allowed))
		return decision
	}
	metrics.IncCacheMiss()

	evalCtx, cancel := context.WithTimeout(ctx, e.evalTimeout)
	defer cancel()

	result, err := e.eval.HasPermissionByAction(evalCtx, req.UserID, req.ResourceType, req.Action)
	if err != nil {
		cause := bastion_errors.ErrEvaluationFailed
		if errors.Is(err, context.DeadlineExceeded) {
			cause = bastion_errors.ErrEvaluationTimeout
		}
		return e.failClosed(ctx, req, fmt.Errorf("%w: %v", cause, err), start)
	}

	decision := model.AccessDecision{
		Allowed:     result.HasPermission,
		Reason:      result.Reason,
		Duration:    time.Since(start),
		FromCache:   false,
		EvaluatedAt: time.Now(),
	}

	e.cache.Set(ctx, key, decision)
	metrics.IncDecision(decision.Allowed)
	e.emitAudit(ctx, req, decision, "")
	return decision
}

// failClosed converts an evaluator failure into a denial. The decision is
// deliberately not cached: the next request should retry evaluation.
func (e *Engine) failClosed(ctx context.Context, req model.AccessRequest, cause error, start time.Time) model.AccessDecision {
	logger.Error("Permission evaluation failed, denying access",
		zap.Error(cause),
		zap.String("userID", req.UserID),
		zap.String("resourceType", req.ResourceType),
		zap.String("action", req.Action))

	decision := model.AccessDecision{
		Allowed:     false,
		Reason:      DeniedReasonError,
		Duration:    time.Since(start),
		FromCache:   false,
		EvaluatedAt: time.Now(),
	}
	metrics.IncDecision(false)
	e.emitAudit(ctx, req, decision, cause.Error())
	return decision
}

func (e *Engine) emitAudit(ctx context.Context, req model.AccessRequest, decision model.AccessDecision, evalError string) {
	details := map[string]interface{}{
		"action": req.Action,
	}
	if !decision.Allowed {
		details["reason"] = decision.Reason
	}
	if evalError != "" {
		details["cause"] = "evaluation_error"
		details["error"] = evalError
	}

	evtCtx := audit.EventContext{
		UserID:    req.UserID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Details:   details,
	}

	var err error
	if decision.Allowed {
		err = e.auditSvc.LogSuccess(ctx, eventTypeDecision, req.ResourceType, req.ResourceID, evtCtx)
	} else {
		err = e.auditSvc.LogFailure(ctx, eventTypeDecision, req.ResourceType, req.ResourceID, evtCtx)
		if e.events != nil {
			e.events.Publish(ctx, util.EventDecisionDenied, req)
		}
	}
	if err != nil {
		logger.Error("Failed to write audit record", zap.Error(err), zap.String("userID", req.UserID))
	}
}

// InvalidateUserCache removes every cached decision scoped to the user.
// Callers mutating roles or permissions are responsible for invoking this.
func (e *Engine) InvalidateUserCache(ctx context.Context, userID string) int {
	removed := e.cache.InvalidateByPrefix(ctx, keyNamespace+userID+":")
	logger.Info("Invalidated user decision cache",
		zap.String("userID", userID),
		zap.Int("removed", removed))
	return removed
}

// InvalidateResourceCache removes every cached decision referencing the
// resource.
func (e *Engine) InvalidateResourceCache(ctx context.Context, resourceID string) int {
	removed := e.cache.InvalidateBySuffix(ctx, ":"+resourceID)
	logger.Info("Invalidated resource decision cache",
		zap.String("resourceID", resourceID),
		zap.Int("removed", removed))
	return removed
}

// ClearCache removes every cached decision.
func (e *Engine) ClearCache(ctx context.Context) {
	e.cache.Clear(ctx)
	logger.Info("Decision cache cleared")
}

// CacheStats exposes the cache's operational counters.
func (e *Engine) CacheStats(ctx context.Context) Stats {
	return e.cache.Stats(ctx)
}

// cacheKey is a deterministic composition of the request coordinates. A
// request without a resource identifier uses the wildcard marker so it can
// never alias a concrete resource entry.
func cacheKey(req model.AccessRequest) string {
	resource := req.ResourceID
	if resource == "" {
		resource = wildcardResource
	}
	return fmt.Sprintf("%s%s:%s:%s:%s", keyNamespace, req.UserID, req.ResourceType, req.Action, resource)
}
