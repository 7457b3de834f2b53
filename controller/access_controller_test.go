// controller/access_controller_test.go
package controller_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stronghold-io/bastion/controller"
	"github.com/stronghold-io/bastion/decision"
	"github.com/stronghold-io/bastion/evaluator"
	"github.com/stronghold-io/bastion/model"
	mocks "github.com/stronghold-io/bastion/test/mock"
)

func setupAccessRouter(t *testing.T) (*gin.Engine, *mocks.MockEvaluator, *mocks.MockAuditService) {
	t.Helper()
	eval := new(mocks.MockEvaluator)
	auditSvc := new(mocks.MockAuditService)
	cache := decision.NewMemoryCache(100, 5*time.Minute)
	engine := decision.NewEngine(cache, eval, auditSvc, nil, 100*time.Millisecond)

	router := gin.New()
	api := router.Group("/")
	controller.NewAccessController(engine).RegisterRoutes(api)
	return router, eval, auditSvc
}

func TestAccessController(t *testing.T) {
	router, eval, auditSvc := setupAccessRouter(t)

	t.Run("CheckAccess_Allowed", func(t *testing.T) {
		eval.On("HasPermissionByAction", mock.Anything, "alice", "invoice", "read").
			Return(evaluator.Result{HasPermission: true, Reason: "granted by role admin"}, nil).Once()
		auditSvc.On("LogSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil)

		body := strings.NewReader(`{"user_id":"alice","resource_type":"invoice","action":"read","resource_id":"inv-1"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/access/check", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp model.AccessDecision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Allowed)
		assert.False(t, resp.FromCache)
	})

	t.Run("CheckAccess_SecondCallFromCache", func(t *testing.T) {
		body := strings.NewReader(`{"user_id":"alice","resource_type":"invoice","action":"read","resource_id":"inv-1"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/access/check", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp model.AccessDecision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Allowed)
		assert.True(t, resp.FromCache)
		eval.AssertExpectations(t)
	})

	t.Run("CheckAccess_FailsClosed", func(t *testing.T) {
		eval.On("HasPermissionByAction", mock.Anything, "bob", "invoice", "delete").
			Return(evaluator.Result{}, errors.New("graph unavailable")).Once()
		auditSvc.On("LogFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil)

		body := strings.NewReader(`{"user_id":"bob","resource_type":"invoice","action":"delete"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/access/check", body)
		router.ServeHTTP(w, req)

		// Evaluation failure still yields a well-formed denial, not a 5xx.
		assert.Equal(t, http.StatusOK, w.Code)
		var resp model.AccessDecision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Allowed)
		assert.Equal(t, decision.DeniedReasonError, resp.Reason)
	})

	t.Run("CheckAccess_Failure_MissingFields", func(t *testing.T) {
		body := strings.NewReader(`{"user_id":"alice"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/access/check", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CacheStats_Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/access/cache/stats", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var stats decision.Stats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, 1, stats.Size)
	})

	t.Run("InvalidateUser_Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/access/cache/users/alice", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]int
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp["removed"])
	})

	t.Run("ClearCache_Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/access/cache", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
