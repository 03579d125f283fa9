// alert_notifier.go implements the AlertNotifier background job, which
// periodically scans for unacknowledged critical alerts and emails the
// configured recipients. Notified alert IDs are tracked in memory, so a
// restart may re-send for alerts that are still open; that is accepted
// behaviour for a paging channel. The job is a no-op when notifications are
// disabled, so it is always safe to start.
package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/meddev-qms/meddev-qms/internal/compliance"
	"github.com/meddev-qms/meddev-qms/internal/config"
	"github.com/meddev-qms/meddev-qms/internal/telemetry"
)

// AlertNotifier periodically emails recipients about open critical alerts.
type AlertNotifier struct {
	engine   *compliance.Engine
	cfg      *config.NotificationsConfig
	interval time.Duration
	notified map[string]bool
	stopChan chan struct{}
}

// NewAlertNotifier creates the notifier job.
func NewAlertNotifier(engine *compliance.Engine, cfg *config.NotificationsConfig) *AlertNotifier {
	minutes := cfg.CheckIntervalMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return &AlertNotifier{
		engine:   engine,
		cfg:      cfg,
		interval: time.Duration(minutes) * time.Minute,
		notified: make(map[string]bool),
		stopChan: make(chan struct{}),
	}
}

// Start begins the notification loop. It runs an initial scan immediately,
// then repeats on the configured interval. The loop exits when ctx is
// cancelled or Stop() is called.
func (n *AlertNotifier) Start(ctx context.Context) {
	if !n.cfg.Enabled {
		slog.Info("alert notifier disabled (notifications.enabled=false)")
		return
	}
	if n.cfg.SMTP.Host == "" {
		slog.Info("alert notifier disabled (notifications.smtp.host not set)")
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	slog.Info("alert notifier started", "interval", n.interval, "recipients", len(n.cfg.Recipients))

	n.runScan()

	for {
		select {
		case <-ticker.C:
			n.runScan()
		case <-n.stopChan:
			slog.Info("alert notifier stopped")
			return
		case <-ctx.Done():
			slog.Info("alert notifier context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit.
func (n *AlertNotifier) Stop() {
	close(n.stopChan)
}

// runScan finds unacknowledged critical alerts not yet notified and emails
// them as a single digest.
func (n *AlertNotifier) runScan() {
	var pending []compliance.Alert
	for _, a := range n.engine.UnacknowledgedAlerts() {
		if a.Severity == compliance.SeverityCritical && !n.notified[a.ID] {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		return
	}

	if err := n.sendDigest(pending); err != nil {
		slog.Error("alert notifier: failed to send digest", "alerts", len(pending), "error", err)
		return
	}

	for _, a := range pending {
		n.notified[a.ID] = true
	}
	telemetry.AlertNotificationsSentTotal.Inc()
	slog.Info("alert notifier: digest sent", "alerts", len(pending))
}

// sendDigest composes and delivers a plain-text digest email via SMTP.
func (n *AlertNotifier) sendDigest(alerts []compliance.Alert) error {
	subject := fmt.Sprintf("Compliance alert: %d critical metric(s) out of threshold", len(alerts))

	lines := []string{
		"The following compliance metrics have unacknowledged critical alerts:",
		"",
	}
	for _, a := range alerts {
		lines = append(lines,
			fmt.Sprintf("- %s", a.Title),
			fmt.Sprintf("  %s", a.Message),
			fmt.Sprintf("  Reference: %s, raised %s", a.ISOReference, a.Timestamp.UTC().Format(time.RFC1123)),
			"")
	}
	lines = append(lines,
		"Review and acknowledge these alerts in the QMS dashboard.",
		"",
		"— MedDev QMS")
	body := strings.Join(lines, "\r\n")

	smtpCfg := &n.cfg.SMTP
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		smtpCfg.From, strings.Join(n.cfg.Recipients, ", "), subject,
	)
	msg := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", smtpCfg.Host, smtpCfg.Port)
	auth := smtp.PlainAuth("", smtpCfg.Username, smtpCfg.Password, smtpCfg.Host)

	return sendMail(addr, smtpCfg.Host, auth, smtpCfg.From, n.cfg.Recipients, msg)
}

// sendMail tries implicit TLS first (port 465 / SMTPS) and falls back to the
// standard smtp.SendMail path, which upgrades via STARTTLS on port 587.
func sendMail(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	return w.Close()
}
