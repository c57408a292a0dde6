package services

import (
	"fmt"
	"html"
	"log"
	"net/smtp"
	"strings"
	"time"
)

type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	frontendURL string
	devMode     bool
}

func NewEmailService(host, port, user, pass, from, frontendURL string) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		log.Println("⚠ Email service running in DEV MODE (logging to console)")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		frontendURL: frontendURL,
		devMode:     devMode,
	}
}

// SendSessionReminderEmail tells a user that a scheduled study session is
// about to begin.
func (s *EmailService) SendSessionReminderEmail(to, fullName, title string, startsIn time.Duration, sessionID string) error {
	subject, body := s.sessionReminderEmail(fullName, title, startsIn, sessionID)
	return s.sendHTML(to, subject, body)
}

func (s *EmailService) sessionReminderEmail(fullName, title string, startsIn time.Duration, sessionID string) (string, string) {
	sessionURL := fmt.Sprintf("%s/study-sessions/%s", strings.TrimRight(s.frontendURL, "/"), sessionID)

	name := strings.TrimSpace(fullName)
	if name == "" {
		name = "there"
	}

	subject := fmt.Sprintf("Starting soon: %s", title)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: linear-gradient(135deg, #0ea5e9 0%%, #6366f1 100%%); padding: 32px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 24px; font-weight: 700;">Studyflow</h1>
    </div>
    <div style="padding: 32px;">
      <h2 style="margin: 0 0 16px; font-size: 20px; color: #1e293b;">Hi %s, your session starts %s</h2>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 24px;">
        <strong>%s</strong> is on your schedule. Open it when you are ready to begin.
      </p>
      <a href="%s" style="display: inline-block; background: #6366f1; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600; font-size: 14px;">
        Open Session
      </a>
    </div>
  </div>
</body>
</html>`, html.EscapeString(name), startsInPhrase(startsIn), html.EscapeString(title), sessionURL)

	return subject, body
}

func startsInPhrase(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	switch {
	case minutes <= 0:
		return "now"
	case minutes == 1:
		return "in 1 minute"
	default:
		return fmt.Sprintf("in %d minutes", minutes)
	}
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		log.Printf("📧 [DEV EMAIL] To: %s | Subject: %s", to, subject)
		log.Printf("📧 Body:\n%s", htmlBody)
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	log.Printf("📧 Email sent to %s: %s", to, subject)
	return nil
}
