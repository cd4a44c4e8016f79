package mail

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"medprep/api/internal/config"
)

// Mailer sends templated transactional email over SMTP. With Enabled false
// every send is a logged no-op, which keeps local development working
// without a mail server.
type Mailer struct {
	cfg   config.SMTPConfig
	brand config.BrandConfig
	log   zerolog.Logger
}

func New(cfg config.SMTPConfig, brand config.BrandConfig, log zerolog.Logger) *Mailer {
	return &Mailer{
		cfg:   cfg,
		brand: brand,
		log:   log,
	}
}

func (m *Mailer) SendVerifyEmail(ctx context.Context, to string, token string) error {
	html, err := renderTemplate(verifyEmailTpl, templateData{
		BrandName: m.brand.Name,
		CTAURL:    m.actionURL("verify-email", to, token),
		CTALabel:  "Verify Email",
	})
	if err != nil {
		return err
	}
	return m.send(ctx, to, "Verify your email", html)
}

func (m *Mailer) SendResetPassword(ctx context.Context, to string, token string) error {
	html, err := renderTemplate(resetPasswordTpl, templateData{
		BrandName: m.brand.Name,
		CTAURL:    m.actionURL("reset-password", to, token),
		CTALabel:  "Reset Password",
	})
	if err != nil {
		return err
	}
	return m.send(ctx, to, "Reset your password", html)
}

func (m *Mailer) SendWelcome(ctx context.Context, to string, firstName string) error {
	html, err := renderTemplate(welcomeTpl, templateData{
		BrandName: m.brand.Name,
		FirstName: firstName,
		CTAURL:    strings.TrimSuffix(m.brand.FrontendURL, "/"),
		CTALabel:  "Go to Dashboard",
	})
	if err != nil {
		return err
	}
	return m.send(ctx, to, fmt.Sprintf("Welcome to %s", m.brand.Name), html)
}

// actionURL builds a frontend deep link carrying the email token, e.g.
// https://app.example.com/verify-email?email=...&token=...
func (m *Mailer) actionURL(path string, email string, token string) string {
	base := strings.TrimSuffix(m.brand.FrontendURL, "/")
	query := url.Values{}
	query.Set("email", email)
	query.Set("token", token)
	return fmt.Sprintf("%s/%s?%s", base, path, query.Encode())
}

func (m *Mailer) send(ctx context.Context, to string, subject string, html string) error {
	if !m.cfg.Enabled {
		m.log.Debug().Str("to", to).Str("subject", subject).Msg("mail disabled, skipping send")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	port := m.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, port)

	from := m.cfg.From
	if from == "" {
		from = m.cfg.User
	}

	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString(fmt.Sprintf("From: %s\r\n", from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", to))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	body.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	body.WriteString("\r\n")
	body.WriteString(html)

	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	if err := smtp.SendMail(addr, auth, from, []string{to}, body.Bytes()); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
