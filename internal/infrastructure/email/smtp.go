package email

import (
	"errors"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
)

var ErrEmailServiceNotConfigured = errors.New("email service not configured")

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	BaseURL     string // Base URL for ticket links (e.g., "http://localhost:8080")
}

// sender is the part of gomail.Dialer the service uses.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPEmailService struct {
	config SMTPConfig
	dialer sender
}

func NewSMTPEmailService(config SMTPConfig) (*SMTPEmailService, error) {
	if config.Host == "" {
		return nil, ErrEmailServiceNotConfigured
	}
	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)

	return &SMTPEmailService{
		config: config,
		dialer: dialer,
	}, nil
}

// SendTicketResolvedEmail tells the customer their ticket was resolved.
func (s *SMTPEmailService) SendTicketResolvedEmail(to string, t ticket.Ticket) error {
	ticketURL := fmt.Sprintf("%s/dashboard/tickets/%s", s.config.BaseURL, t.ID)

	subject := fmt.Sprintf("Your ticket has been resolved: %s", t.Title)
	htmlBody := fmt.Sprintf(`
		<html>
		<body>
			<h2>Ticket Resolved</h2>
			<p>Your support ticket <strong>%s</strong> has been marked as resolved.</p>
			<p><a href="%s">View Ticket</a></p>
			<p>If the problem persists, reply to this email or reopen the ticket.</p>
		</body>
		</html>
	`, html.EscapeString(t.Title), ticketURL)

	plainBody := fmt.Sprintf(`
Ticket Resolved

Your support ticket "%s" has been marked as resolved.

View it at:
%s

If the problem persists, reply to this email or reopen the ticket.
	`, t.Title, ticketURL)

	return s.sendEmail(to, subject, htmlBody, plainBody)
}

// SendTestEmail sends a test email to verify the configuration
func (s *SMTPEmailService) SendTestEmail(to string) error {
	subject := "AutoCRM Test Email"
	htmlBody := `
		<html>
		<body>
			<h2>Test Email</h2>
			<p>Your SMTP settings are working.</p>
		</body>
		</html>
	`
	plainBody := `
Test Email

Your SMTP settings are working.
	`
	return s.sendEmail(to, subject, htmlBody, plainBody)
}

func (s *SMTPEmailService) sendEmail(to, subject, htmlBody, plainBody string) error {
	m := gomail.NewMessage()
	if s.config.FromName != "" {
		m.SetAddressHeader("From", s.config.FromAddress, s.config.FromName)
	} else {
		m.SetHeader("From", s.config.FromAddress)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
