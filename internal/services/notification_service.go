package services

import (
	"fleet-api/internal/config"
	"fleet-api/internal/database"
	"fleet-api/internal/models"
	"fleet-api/pkg/logging"

	"gorm.io/gorm"
)

// Notifier receives device lifecycle events. Notifications are fire-and-forget:
// the capacity engine never waits on them and never fails because of them.
type Notifier interface {
	DeviceStatusChanged(device *models.Device, oldStatus, newStatus models.DeviceStatus, reason string)
	GracePeriodExpired(device *models.Device)
}

// NotificationService fans device events out to the webhook collaborator and
// to the owner by email
type NotificationService struct {
	db      *gorm.DB
	webhook *WebhookNotifier
	email   *BrevoService
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		db:      db,
		webhook: NewWebhookNotifier(),
		email:   NewBrevoService(),
	}
}

// DeviceStatusChanged reports a device transition to the collaborators
func (n *NotificationService) DeviceStatusChanged(device *models.Device, oldStatus, newStatus models.DeviceStatus, reason string) {
	n.webhook.NotifyStatusChange(config.AppConfig.WebhookCallbackURL, config.AppConfig.WebhookSecret,
		device, oldStatus, newStatus, reason)

	// Email the owner only when a device gets suspended
	if newStatus != models.DeviceSuspended {
		return
	}

	user, err := database.GetUserByID(n.db, device.UserID)
	if err != nil {
		logging.Errorf("Cannot email suspension notice, owner lookup failed - device: %d, user: %d, error: %v",
			device.ID, device.UserID, err)
		return
	}

	if err := n.email.SendDeviceSuspendedEmail(user.Email, user.Name, device.Name, reason, device.GracePeriodEndsAt); err != nil {
		logging.Errorf("Failed to send suspension email - device: %d, error: %v", device.ID, err)
	}
}

// GracePeriodExpired reports an expired suspension grace period
func (n *NotificationService) GracePeriodExpired(device *models.Device) {
	n.webhook.NotifyGraceExpired(config.AppConfig.WebhookCallbackURL, config.AppConfig.WebhookSecret, device)

	user, err := database.GetUserByID(n.db, device.UserID)
	if err != nil {
		logging.Errorf("Cannot email grace expiry notice, owner lookup failed - device: %d, user: %d, error: %v",
			device.ID, device.UserID, err)
		return
	}

	if err := n.email.SendGraceExpiredEmail(user.Email, user.Name, device.Name); err != nil {
		logging.Errorf("Failed to send grace expiry email - device: %d, error: %v", device.ID, err)
	}
}
