package services

import (
	"context"
	"fmt"
	"time"

	"fleet-api/internal/config"
	"fleet-api/pkg/logging"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// BrevoService provides Brevo transactional email sending
type BrevoService struct {
	client    *brevo.APIClient
	FromEmail string
	FromName  string
	enabled   bool
}

// NewBrevoService creates a new Brevo service instance
func NewBrevoService() *BrevoService {
	apiKey := config.AppConfig.BrevoAPIKey

	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", apiKey)

	return &BrevoService{
		client:    brevo.NewAPIClient(cfg),
		FromEmail: config.AppConfig.BrevoFromEmail,
		FromName:  config.AppConfig.BrevoFromName,
		enabled:   apiKey != "",
	}
}

// SendDeviceSuspendedEmail notifies the owner that a device was auto-suspended
func (s *BrevoService) SendDeviceSuspendedEmail(to, userName, deviceName, reason string, graceEndsAt *time.Time) error {
	graceLine := ""
	if graceEndsAt != nil {
		graceLine = fmt.Sprintf("It will remain recoverable at any time; the grace period for review ends on %s.",
			graceEndsAt.Format("January 2, 2006"))
	}

	subject := fmt.Sprintf("Device suspended - %s", deviceName)
	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head><meta charset="UTF-8"><title>Device suspended</title></head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
				<h1 style="color: #333;">Device suspended</h1>
				<p style="color: #666; font-size: 16px;">Hi %s,</p>
				<p style="color: #666; font-size: 16px;">Your device <b>%s</b> was suspended (reason: %s).</p>
				<p style="color: #666; font-size: 14px;">%s</p>
				<p style="color: #999; font-size: 12px; margin-top: 30px;">You can wake the device from your dashboard, upgrade your plan, or purchase extra device slots.</p>
			</div>
		</body>
		</html>
	`, userName, deviceName, reason, graceLine)

	textContent := fmt.Sprintf("Hi %s,\n\nYour device %s was suspended (reason: %s). %s\n\nYou can wake the device from your dashboard, upgrade your plan, or purchase extra device slots.",
		userName, deviceName, reason, graceLine)

	return s.send(to, userName, subject, htmlContent, textContent)
}

// SendGraceExpiredEmail notifies the owner that a suspension grace period passed
func (s *BrevoService) SendGraceExpiredEmail(to, userName, deviceName string) error {
	subject := fmt.Sprintf("Suspension grace period ended - %s", deviceName)
	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head><meta charset="UTF-8"><title>Grace period ended</title></head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
				<h1 style="color: #333;">Grace period ended</h1>
				<p style="color: #666; font-size: 16px;">Hi %s,</p>
				<p style="color: #666; font-size: 16px;">The review grace period for your suspended device <b>%s</b> has ended. The device stays suspended and can still be woken at any time.</p>
			</div>
		</body>
		</html>
	`, userName, deviceName)

	textContent := fmt.Sprintf("Hi %s,\n\nThe review grace period for your suspended device %s has ended. The device stays suspended and can still be woken at any time.",
		userName, deviceName)

	return s.send(to, userName, subject, htmlContent, textContent)
}

// send sends a transactional email through Brevo
func (s *BrevoService) send(toEmail, toName, subject, htmlContent, textContent string) error {
	if !s.enabled {
		logging.Warnf("Brevo API key not configured, skipping email to %s", toEmail)
		return nil
	}

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  s.FromName,
			Email: s.FromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: toEmail, Name: toName},
		},
		Subject:     subject,
		HtmlContent: htmlContent,
		TextContent: textContent,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, _, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send email via Brevo: %w", err)
	}

	logging.Infof("Email sent successfully to %s - subject: %s", toEmail, subject)
	return nil
}
