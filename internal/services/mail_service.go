package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type IMailService interface {
	SendVerificationEmail(to, verificationURL string) error
	SendWelcomeEmail(to, accountCompletionURL, preferencesURL string) error
	SendRegeneratedLinkEmail(to, linkURL, origin string) error
}

// SMTPConfig holds transport + branding config. Authentication is XOAUTH2
// with tokens from the AccessTokenSource, not a static password.
type SMTPConfig struct {
	Host       string // e.g. "smtp.office365.com"
	Port       int    // 587 (STARTTLS)
	Sender     string // envelope from, e.g. "news@example.com"
	SenderName string // display name
	RequireTLS bool

	AppName string
}

type smtpMailService struct {
	cfg     SMTPConfig
	tokens  *AccessTokenSource
	htmlTpl *template.Template
	textTpl *template.Template
}

func NewSMTPMailService(cfg SMTPConfig, tokens *AccessTokenSource) IMailService {
	return &smtpMailService{
		cfg:     cfg,
		tokens:  tokens,
		htmlTpl: template.Must(template.New("html").Parse(baseHTMLTemplate)),
		textTpl: template.Must(template.New("text").Parse(plainTextTemplate)),
	}
}

// ------------------- Public API -------------------

func (s *smtpMailService) SendVerificationEmail(to, verificationURL string) error {
	subject := "Verify your email"
	html, text, err := s.renderEmail(EmailData{
		Title:     subject,
		Intro:     "Thanks for subscribing! Confirm your email address to start receiving the newsletter.",
		ButtonURL: verificationURL,
		ButtonTxt: "Verify Email",
		AppName:   s.cfg.AppName,
		Year:      time.Now().Year(),
	})
	if err != nil {
		return err
	}
	return s.send(to, subject, html, text)
}

func (s *smtpMailService) SendWelcomeEmail(to, accountCompletionURL, preferencesURL string) error {
	subject := "Welcome to the newsletter"
	html, text, err := s.renderEmail(EmailData{
		Title:        subject,
		Intro:        "Your email is verified. Tell us your name to personalise your newsletter, or adjust what you receive at any time.",
		ButtonURL:    accountCompletionURL,
		ButtonTxt:    "Complete Your Account",
		SecondaryURL: preferencesURL,
		SecondaryTxt: "Manage your preferences",
		AppName:      s.cfg.AppName,
		Year:         time.Now().Year(),
	})
	if err != nil {
		return err
	}
	return s.send(to, subject, html, text)
}

func (s *smtpMailService) SendRegeneratedLinkEmail(to, linkURL, origin string) error {
	subject := "Your new verification link"
	intro := "Here is a fresh link to verify your email. The previous one has been invalidated."
	if origin == "complete-account" {
		subject = "Your new account completion link"
		intro = "Here is a fresh link to complete your account. The previous one has been invalidated."
	}

	html, text, err := s.renderEmail(EmailData{
		Title:     subject,
		Intro:     intro,
		ButtonURL: linkURL,
		ButtonTxt: "Open Link",
		AppName:   s.cfg.AppName,
		Year:      time.Now().Year(),
	})
	if err != nil {
		return err
	}
	return s.send(to, subject, html, text)
}

// ------------------- Rendering -------------------

type EmailData struct {
	Title        string
	Intro        string
	ButtonURL    string
	ButtonTxt    string
	SecondaryURL string
	SecondaryTxt string
	AppName      string
	Year         int
}

const baseHTMLTemplate = `<!doctype html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; padding: 0; background: #f4f4f7; color: #1f2933; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; }
    .wrapper { width: 100%; padding: 32px 16px; box-sizing: border-box; }
    .container { max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 8px; overflow: hidden; border: 1px solid #e4e7eb; }
    .header { padding: 24px 32px; border-bottom: 1px solid #e4e7eb; font-weight: 700; font-size: 20px; color: #2563eb; }
    .hero { padding: 32px; }
    h1 { margin: 0 0 16px; font-size: 24px; line-height: 1.3; }
    p { margin: 0 0 16px; line-height: 1.6; color: #3e4c59; }
    .btn { display: inline-block; margin: 16px 0; padding: 12px 28px; background: #2563eb; color: #ffffff !important; text-decoration: none; border-radius: 6px; font-weight: 600; }
    .muted { color: #7b8794; font-size: 13px; line-height: 1.5; }
    .link-text { color: #2563eb; word-break: break-all; font-size: 13px; }
    .footer { padding: 20px 32px; color: #7b8794; font-size: 13px; text-align: center; border-top: 1px solid #e4e7eb; }
  </style>
</head>
<body>
  <div class="wrapper">
    <div class="container">
      <div class="header">{{.AppName}}</div>
      <div class="hero">
        <h1>{{.Title}}</h1>
        <p>{{.Intro}}</p>
        {{if .ButtonURL}}
          <a class="btn" href="{{.ButtonURL}}">{{.ButtonTxt}}</a>
          <p class="muted">
            If the button doesn't work, copy and paste this link into your browser:<br>
            <a href="{{.ButtonURL}}" class="link-text">{{.ButtonURL}}</a>
          </p>
        {{end}}
        {{if .SecondaryURL}}
          <p><a href="{{.SecondaryURL}}" class="link-text">{{.SecondaryTxt}}</a></p>
        {{end}}
      </div>
      <div class="footer">© {{.Year}} {{.AppName}}. All rights reserved.</div>
    </div>
  </div>
</body>
</html>`

const plainTextTemplate = `{{.Title}}

{{.Intro}}

{{if .ButtonURL}}Open this link:
{{.ButtonURL}}
{{end}}{{if .SecondaryURL}}{{.SecondaryTxt}}:
{{.SecondaryURL}}
{{end}}
— {{.AppName}} (c) {{.Year}}
`

func (s *smtpMailService) renderEmail(data EmailData) (html string, text string, err error) {
	var hb, tb bytes.Buffer

	if err = s.htmlTpl.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if err = s.textTpl.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}

// ------------------- SMTP Send -------------------

// xoauth2Auth implements SASL XOAUTH2 for net/smtp.
type xoauth2Auth struct {
	user  string
	token string
}

func (a xoauth2Auth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	payload := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.user, a.token)
	return "XOAUTH2", []byte(payload), nil
}

func (a xoauth2Auth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		// Server sent an error challenge; reply empty so it fails the exchange.
		return []byte(""), nil
	}
	return nil, nil
}

func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "535") ||
		strings.Contains(msg, "530") ||
		strings.Contains(msg, "5.7.3") ||
		strings.Contains(msg, "Client not authenticated")
}

func (s *smtpMailService) send(to, subject, htmlBody, textBody string) error {
	accessToken, err := s.tokens.Token(context.Background())
	if err != nil {
		return err
	}

	date := time.Now().Format(time.RFC1123Z)
	boundary := fmt.Sprintf("alt_%d", time.Now().UnixNano())

	var msg bytes.Buffer
	write := func(format string, a ...any) { _, _ = msg.WriteString(fmt.Sprintf(format, a...)) }

	write("From: %s <%s>\r\n", s.cfg.SenderName, s.cfg.Sender)
	write("To: %s\r\n", to)
	write("Subject: %s\r\n", subject)
	write("Date: %s\r\n", date)
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	write("\r\n")

	write("--%s\r\n", boundary)
	write("Content-Type: text/plain; charset=UTF-8\r\n")
	write("Content-Transfer-Encoding: 7bit\r\n\r\n")
	write("%s\r\n\r\n", textBody)

	write("--%s\r\n", boundary)
	write("Content-Type: text/html; charset=UTF-8\r\n")
	write("Content-Transfer-Encoding: 7bit\r\n\r\n")
	write("%s\r\n\r\n", htmlBody)

	write("--%s--\r\n", boundary)

	if err := s.deliver(to, msg.Bytes(), accessToken); err != nil {
		// Refresh the cached token so the next queue retry can authenticate.
		if isAuthFailure(err) {
			s.tokens.ForceRefresh()
		}
		return err
	}
	return nil
}

func (s *smtpMailService) deliver(to string, msg []byte, accessToken string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := xoauth2Auth{user: s.cfg.Sender, token: accessToken}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Quit()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		if err = c.StartTLS(tlsCfg); err != nil {
			return err
		}
	} else if s.cfg.RequireTLS {
		return fmt.Errorf("server %s does not support STARTTLS", s.cfg.Host)
	}

	if err = c.Auth(auth); err != nil {
		return err
	}
	if err = c.Mail(s.cfg.Sender); err != nil {
		return err
	}
	if err = c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
