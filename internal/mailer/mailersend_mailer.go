package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendCredentialAlert(toEmail, gateName, accountEmail, reason string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := fmt.Sprintf("Gate %s halted: platform rejected its credentials", gateName)
	html := fmt.Sprintf(`
		<h2>Gate halted</h2>
		<p>Gate <strong>%s</strong> stopped admitting guests because the platform rejected the stored credentials.</p>
		<p>Account: <strong>%s</strong></p>
		<p>Reason: %s</p>
		<p>Update the account password on the gate and restart it.</p>
	`, gateName, accountEmail, reason)

	text := fmt.Sprintf("Gate %s stopped admitting guests: the platform rejected the stored credentials.\n\nAccount: %s\nReason: %s\n\nUpdate the account password on the gate and restart it.", gateName, accountEmail, reason)

	return m.sendEmail(toEmail, "", subject, text, html)
}

func (m *MailerSendClient) SendTestAlert(toEmail, gateName string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := fmt.Sprintf("Test alert from gate %s", gateName)
	html := fmt.Sprintf(`
		<h2>Test alert</h2>
		<p>Gate <strong>%s</strong> can reach you at this address.</p>
		<p>No action is needed.</p>
	`, gateName)

	text := fmt.Sprintf("Gate %s can reach you at this address. No action is needed.", gateName)

	return m.sendEmail(toEmail, "", subject, text, html)
}

func (m *MailerSendClient) sendEmail(toEmail, toName, subject, text, html string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
