package email

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
)

type recordingSender struct {
	sent []*gomail.Message
	err  error
}

func (r *recordingSender) DialAndSend(m ...*gomail.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m...)
	return nil
}

func newTestService(s sender) *SMTPEmailService {
	return &SMTPEmailService{
		config: SMTPConfig{FromAddress: "support@example.com", FromName: "AutoCRM", BaseURL: "https://crm.example.com"},
		dialer: s,
	}
}

func TestSendTicketResolvedEmail(t *testing.T) {
	rec := &recordingSender{}
	svc := newTestService(rec)

	err := svc.SendTicketResolvedEmail("alice@example.com", ticket.Ticket{ID: "t1", Title: "Printer <on fire>"})
	require.NoError(t, err)
	require.Len(t, rec.sent, 1)

	m := rec.sent[0]
	assert.Equal(t, []string{"alice@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Your ticket has been resolved: Printer <on fire>"}, m.GetHeader("Subject"))
	assert.Equal(t, []string{`"AutoCRM" <support@example.com>`}, m.GetHeader("From"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	// Undo quoted-printable soft line breaks.
	body := strings.ReplaceAll(buf.String(), "=\r\n", "")
	assert.Contains(t, body, "https://crm.example.com/dashboard/tickets/t1")
	assert.Contains(t, body, "Printer &lt;on fire&gt;")
}

func TestSendEmail_Failure(t *testing.T) {
	svc := newTestService(&recordingSender{err: errors.New("connection refused")})
	err := svc.SendTestEmail("alice@example.com")
	assert.EqualError(t, err, "failed to send email: connection refused")
}

func TestNewSMTPEmailService_RequiresHost(t *testing.T) {
	_, err := NewSMTPEmailService(SMTPConfig{})
	assert.ErrorIs(t, err, ErrEmailServiceNotConfigured)

	svc, err := NewSMTPEmailService(SMTPConfig{Host: "smtp.example.com", Port: 587})
	require.NoError(t, err)
	assert.NotNil(t, svc.dialer)
}
