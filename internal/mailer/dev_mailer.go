package mailer

import (
	"fmt"

	"github.com/diagnosis/luma-gate/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendCredentialAlert(toEmail, gateName, accountEmail, reason string) error {
	logger.Info("📧 [DEV MAIL] Credential Alert",
		"to", toEmail,
		"gate", gateName,
		"account", accountEmail,
		"reason", reason,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 CREDENTIAL ALERT (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"Subject: Gate %s halted: platform rejected its credentials\n"+
		"\n"+
		"Account: %s\n"+
		"Reason: %s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, gateName, accountEmail, reason)

	return nil
}

func (d *DevMailer) SendTestAlert(toEmail, gateName string) error {
	logger.Info("📧 [DEV MAIL] Test Alert",
		"to", toEmail,
		"gate", gateName,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 TEST ALERT (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"Subject: Test alert from gate %s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, gateName)

	return nil
}
