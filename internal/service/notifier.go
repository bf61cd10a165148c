package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"license-activation-service/internal/model"
)

// ErrMailerNotConfigured is returned by notifiers that cannot deliver mail.
var ErrMailerNotConfigured = errors.New("email delivery is not configured")

// Notifier tells a license holder about their new license.
type Notifier interface {
	NotifyLicenseCreated(ctx context.Context, license model.License) error
	SendTestEmail(ctx context.Context, to string) error
}

type NopNotifier struct{}

func (NopNotifier) NotifyLicenseCreated(context.Context, model.License) error { return nil }

func (NopNotifier) SendTestEmail(context.Context, string) error { return ErrMailerNotConfigured }

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPNotifier delivers plain-text mail over SMTP with STARTTLS when offered.
type SMTPNotifier struct {
	cfg     SMTPConfig
	timeout time.Duration
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, timeout: 30 * time.Second}
}

func (n *SMTPNotifier) NotifyLicenseCreated(ctx context.Context, license model.License) error {
	if license.Email == "" {
		return nil
	}
	return n.send(ctx, license.Email, "Your license key", licenseMessage(license))
}

func (n *SMTPNotifier) SendTestEmail(ctx context.Context, to string) error {
	body := "This is a test message from the license service.\r\n" +
		"If you received it, outgoing email is configured correctly.\r\n"
	return n.send(ctx, to, "Test email", body)
}

func licenseMessage(license model.License) string {
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\r\n\r\n", license.FullName)
	body.WriteString("Thank you for your purchase. Your license details:\r\n\r\n")
	fmt.Fprintf(&body, "License key: %s\r\n", license.LicenseKey)
	fmt.Fprintf(&body, "Devices allowed: %d\r\n", license.MaxDevices)
	fmt.Fprintf(&body, "Valid until: %s\r\n\r\n", license.ExpiresAt.Format("2006-01-02"))
	body.WriteString("Keep this key private. It can be activated on a limited number of devices.\r\n")
	return body.String()
}

func (n *SMTPNotifier) buildMessage(to, subject, body string) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	dialer := &net.Dialer{Timeout: n.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if n.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(n.buildMessage(to, subject, body))); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}
