// middleware/device_guard.go

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stronghold-io/bastion/devicetrust"
	bastion_errors "github.com/stronghold-io/bastion/errors"
	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/model"
)

const (
	fingerprintHeader = "X-Device-Fingerprint"
	sessionHeader     = "X-Session-Token"
)

// DeviceGuard short-circuits requests from devices the trust manager has
// judged unfit, regardless of what the decision engine would conclude.
// Requests without a fingerprint header pass through untouched; device
// enrolment is the caller's concern.
func DeviceGuard(manager *devicetrust.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		fingerprint := c.GetHeader(fingerprintHeader)
		if fingerprint == "" {
			c.Next()
			return
		}

		device, err := manager.GetDevice(c, fingerprint)
		if err != nil {
			if err == bastion_errors.ErrDeviceNotFound {
				c.Next()
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Device lookup failed"})
			c.Abort()
			return
		}

		if device.Status == model.DeviceStatusCompromised || device.AccessLevel == model.AccessLevelDenied {
			logger.Warn("Request blocked by device guard",
				zap.String("fingerprint", fingerprint),
				zap.String("status", string(device.Status)),
				zap.String("accessLevel", string(device.AccessLevel)),
				zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusForbidden, gin.H{"error": "Device not trusted"})
			c.Abort()
			return
		}

		if token := c.GetHeader(sessionHeader); token != "" {
			if _, err := manager.ValidateSession(c, token); err != nil {
				logger.Warn("Session rejected by device guard",
					zap.Error(err),
					zap.String("fingerprint", fingerprint))
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Session invalid"})
				c.Abort()
				return
			}
		}

		c.Set("deviceFingerprint", fingerprint)
		c.Next()
	}
}
