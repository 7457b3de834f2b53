// util/notification_service.go

package util

import (
	"context"
	"fmt"

	"github.com/containrrr/shoutrrr"
	"go.uber.org/zap"

	logger "github.com/stronghold-io/bastion/logging"
)

// NotificationService fans security alerts out to the operator-configured
// shoutrrr URLs (discord, slack, smtp, ...). An empty URL list turns the
// service into a log-only sink.
type NotificationService struct {
	urls []string
}

func NewNotificationService(urls []string) *NotificationService {
	return &NotificationService{urls: urls}
}

// NotifySecurityEvent sends a titled message to every configured endpoint.
func (n *NotificationService) NotifySecurityEvent(ctx context.Context, title, message string) error {
	logger.Info("SECURITY NOTIFICATION",
		zap.String("title", title),
		zap.String("message", message))

	if len(n.urls) == 0 {
		return nil
	}

	body := fmt.Sprintf("%s: %s", title, message)
	for _, url := range n.urls {
		if err := shoutrrr.Send(url, body); err != nil {
			logger.Error("Failed to send security notification",
				zap.Error(err),
				zap.String("title", title))
			return err
		}
	}
	return nil
}

// NotifyDeviceCompromised alerts operators that a device's sessions were
// revoked.
func (n *NotificationService) NotifyDeviceCompromised(ctx context.Context, fingerprint string, revoked int) error {
	return n.NotifySecurityEvent(ctx, "Device compromised",
		fmt.Sprintf("device %s marked compromised, %d session(s) revoked", fingerprint, revoked))
}

// NotifyKeyRotated alerts operators that the active encryption key changed.
func (n *NotificationService) NotifyKeyRotated(ctx context.Context, oldKeyID, newKeyID string) error {
	return n.NotifySecurityEvent(ctx, "Encryption key rotated",
		fmt.Sprintf("key %s rotated, new active key %s", oldKeyID, newKeyID))
}
