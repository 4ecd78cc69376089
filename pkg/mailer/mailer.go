package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Mailer handles sending emails
type Mailer struct {
	config Config
}

// New creates a new Mailer instance
func New(cfg Config) *Mailer {
	return &Mailer{config: cfg}
}

// SendDeviceLinked notifies the account owner that a new device was paired
func (m *Mailer) SendDeviceLinked(toEmail, deviceName string) error {
	subject := "GridNote - A new device was linked to your account"

	body, err := m.renderDeviceLinkedTemplate(deviceName)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return m.send(toEmail, subject, body)
}

// send delivers an email via SMTP
func (m *Mailer) send(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%s", m.config.Host, m.config.Port)

	headers := map[string]string{
		"From":         fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From),
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=\"utf-8\"",
	}

	var msg bytes.Buffer
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	var auth smtp.Auth
	if m.config.Username != "" && m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	err := smtp.SendMail(addr, auth, m.config.From, []string{to}, msg.Bytes())
	if err != nil {
		log.Printf("❌ Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Printf("📧 Email sent to %s: %s", to, subject)
	return nil
}

// renderDeviceLinkedTemplate returns the HTML body for the device-linked notice
func (m *Mailer) renderDeviceLinkedTemplate(deviceName string) (string, error) {
	const tpl = `
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f5f5f5; padding: 20px;">
	<div style="max-width: 520px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 32px;">
		<h2 style="color: #1a1a2e; margin-top: 0;">New device linked</h2>
		<p>The device <strong>{{.DeviceName}}</strong> was just linked to your GridNote account and can now access your boards.</p>
		<p>If this wasn't you, open <em>Settings &rarr; Linked devices</em> and revoke it immediately.</p>
		<p style="color: #888; font-size: 12px; margin-bottom: 0;">You are receiving this because device pairing succeeded on your account.</p>
	</div>
</body>
</html>`

	t, err := template.New("device_linked").Parse(tpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]string{"DeviceName": deviceName}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
