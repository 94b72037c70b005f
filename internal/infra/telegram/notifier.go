// internal/infra/telegram/notifier.go
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"nse_alert_bot/internal/domain/announcement"
	domainTelegram "nse_alert_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Caps on the condensed bulk summary, to stay under Telegram's message size
// limit however large the batch is.
const (
	summaryMaxRecords          = 10
	summaryMaxCompanies        = 5
	summaryMaxTitlesPerCompany = 2
	descriptionPreviewLen      = 200
)

// AnnouncementNotifier formats and sends one HTML alert per new
// announcement, plus bulk summaries and lifecycle notices, all to a single
// configured chat. Sends are rate-limited because a busy cycle can easily
// outrun Telegram's per-chat allowance.
type AnnouncementNotifier struct {
	client  domainTelegram.Client
	chatID  int64
	limiter *rate.Limiter
	logger  *logrus.Entry
}

func NewAnnouncementNotifier(client domainTelegram.Client, chatID int64, ratePerSec int, logger *logrus.Entry) *AnnouncementNotifier {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &AnnouncementNotifier{
		client:  client,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		logger:  logger,
	}
}

var htmlSendOptions = &telebot.SendOptions{ParseMode: telebot.ModeHTML}

// Notify sends one alert for a newly stored announcement.
func (n *AnnouncementNotifier) Notify(ctx context.Context, rec *announcement.Record) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait interrupted: %w", err)
	}
	if err := n.client.SendMessage(n.chatID, buildAlertMessage(rec), htmlSendOptions); err != nil {
		return fmt.Errorf("failed to send alert for %s: %w", rec.Symbol, err)
	}
	n.logger.WithField("symbol", rec.Symbol).Info("Alert sent")
	return nil
}

// NotifySummary sends one condensed message covering a large batch, grouped
// by company display name.
func (n *AnnouncementNotifier) NotifySummary(ctx context.Context, recs []*announcement.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait interrupted: %w", err)
	}
	if err := n.client.SendMessage(n.chatID, buildSummaryMessage(recs), htmlSendOptions); err != nil {
		return fmt.Errorf("failed to send bulk summary: %w", err)
	}
	n.logger.WithField("count", len(recs)).Info("Bulk summary sent")
	return nil
}

// NotifyStartup announces that monitoring has begun.
func (n *AnnouncementNotifier) NotifyStartup(interval time.Duration) {
	msg := "🚀 <b>NSE Alert System Started!</b>\n\n" +
		"📡 Monitoring for new corporate announcements...\n" +
		fmt.Sprintf("⏰ Check interval: %s during market hours", interval)
	if err := n.client.SendMessage(n.chatID, msg, htmlSendOptions); err != nil {
		n.logger.WithError(err).Warn("Failed to send startup notification")
	}
}

// NotifyShutdown announces a clean stop together with the session counter.
func (n *AnnouncementNotifier) NotifyShutdown(alertsSent int64) {
	msg := fmt.Sprintf("🛑 <b>NSE Alert System Stopped</b>\n\n📊 Total alerts sent: %d", alertsSent)
	if err := n.client.SendMessage(n.chatID, msg, htmlSendOptions); err != nil {
		n.logger.WithError(err).Warn("Failed to send shutdown notification")
	}
}

// buildAlertMessage renders one announcement as Telegram HTML. Title,
// description and link come from the feed, so they are escaped before
// interpolation.
func buildAlertMessage(rec *announcement.Record) string {
	var b strings.Builder

	displayName := rec.DisplayName()
	if rec.CompanyName.Valid && displayName != rec.Symbol {
		fmt.Fprintf(&b, "🚨 <b>%s (%s)</b>\n\n", html.EscapeString(displayName), html.EscapeString(rec.Symbol))
	} else {
		fmt.Fprintf(&b, "🚨 <b>%s</b>\n\n", html.EscapeString(rec.Symbol))
	}

	fmt.Fprintf(&b, "📝 <b>Announcement:</b>\n%s\n\n", html.EscapeString(rec.Title))

	if rec.Description.Valid && strings.TrimSpace(rec.Description.String) != "" {
		desc := rec.Description.String
		if len(desc) > descriptionPreviewLen {
			desc = desc[:descriptionPreviewLen] + "..."
		}
		fmt.Fprintf(&b, "ℹ️ <b>Details:</b>\n%s\n\n", html.EscapeString(desc))
	}

	if rec.Link.Valid && strings.TrimSpace(rec.Link.String) != "" {
		fmt.Fprintf(&b, "🔗 <a href=\"%s\">View Document</a>", html.EscapeString(rec.Link.String))
	} else {
		b.WriteString("📄 No document available")
	}

	return b.String()
}

// buildSummaryMessage renders the condensed multi-record message, grouped by
// display name (symbol when the full name is absent), preserving first-seen
// company order.
func buildSummaryMessage(recs []*announcement.Record) string {
	type group struct {
		symbol string
		titles []string
	}
	var order []string
	groups := make(map[string]*group)

	limit := len(recs)
	if limit > summaryMaxRecords {
		limit = summaryMaxRecords
	}
	for _, rec := range recs[:limit] {
		key := rec.DisplayName()
		g, ok := groups[key]
		if !ok {
			g = &group{symbol: rec.Symbol}
			groups[key] = g
			order = append(order, key)
		}
		title := rec.Title
		if len(title) > 60 {
			title = title[:60] + "..."
		}
		g.titles = append(g.titles, title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📢 <b>Bulk Announcements Alert</b>\n\n🆕 Found %d new announcements:\n\n", len(recs))

	companies := len(order)
	if companies > summaryMaxCompanies {
		companies = summaryMaxCompanies
	}
	for _, name := range order[:companies] {
		g := groups[name]
		if name != g.symbol {
			fmt.Fprintf(&b, "🏢 <b>%s (%s)</b>:\n", html.EscapeString(name), html.EscapeString(g.symbol))
		} else {
			fmt.Fprintf(&b, "🏢 <b>%s</b>:\n", html.EscapeString(g.symbol))
		}
		shown := len(g.titles)
		if shown > summaryMaxTitlesPerCompany {
			shown = summaryMaxTitlesPerCompany
		}
		for _, title := range g.titles[:shown] {
			fmt.Fprintf(&b, "   • %s\n", html.EscapeString(title))
		}
		if len(g.titles) > shown {
			fmt.Fprintf(&b, "   • ... and %d more\n", len(g.titles)-shown)
		}
		b.WriteString("\n")
	}

	if len(recs) > summaryMaxRecords {
		fmt.Fprintf(&b, "... and %d more announcements\n\n", len(recs)-summaryMaxRecords)
	}
	b.WriteString("🔔 Individual detailed alerts sent for each announcement")

	return b.String()
}
