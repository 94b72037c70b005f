// internal/infra/telegram/handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"nse_alert_bot/internal/domain/announcement"
	idb "nse_alert_bot/internal/infra/database"
	"nse_alert_bot/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands wires the operator commands onto the bot. Commands are
// gated to the configured chat; anyone else gets a polite refusal.
func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	sched *scheduler.PollScheduler,
	repo announcement.Repository,
	allowedChatID int64,
	baseLogger *logrus.Entry,
) {
	b.Handle("/status", func(c telebot.Context) error {
		logCtx := baseLogger.WithField("command", "/status").WithField("sender_id", c.Sender().ID)
		if c.Chat().ID != allowedChatID {
			logCtx.Warn("Unauthorized access attempt")
			return c.Send("This bot only answers its configured chat.")
		}
		logCtx.Info("Processing /status command")

		snap := sched.Snapshot()
		var msg strings.Builder
		if snap.Running {
			msg.WriteString("✅ <b>NSE Monitor Status</b>\n\nSystem running normally\n")
		} else {
			msg.WriteString("🛑 <b>NSE Monitor Status</b>\n\nScheduler is stopped\n")
		}
		fmt.Fprintf(&msg, "⏰ Check interval: %s\n", snap.CurrentInterval)
		if !snap.LastCycleAt.IsZero() {
			fmt.Fprintf(&msg, "🕐 Last check: %s\n", snap.LastCycleAt.Format("15:04:05"))
		}
		fmt.Fprintf(&msg, "🔔 Alerts sent: %d\n", snap.NotificationsSent)
		if count, err := repo.Count(ctx); err == nil {
			fmt.Fprintf(&msg, "📊 Total announcements: %d\n", count)
		}
		if latest, err := repo.Latest(ctx); err == nil {
			fmt.Fprintf(&msg, "\n🆕 Latest: <b>%s</b> — %s",
				html.EscapeString(latest.Symbol), html.EscapeString(latest.Title))
		} else if !errors.Is(err, idb.ErrAnnouncementNotFound) {
			logCtx.WithError(err).Warn("Could not load latest announcement")
		}
		return c.Send(msg.String(), &telebot.SendOptions{ParseMode: telebot.ModeHTML})
	})

	b.Handle("/fetch", func(c telebot.Context) error {
		logCtx := baseLogger.WithField("command", "/fetch").WithField("sender_id", c.Sender().ID)
		if c.Chat().ID != allowedChatID {
			logCtx.Warn("Unauthorized access attempt")
			return c.Send("This bot only answers its configured chat.")
		}
		logCtx.Info("Processing /fetch command")

		res, err := sched.TriggerNow(ctx)
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			return c.Send("⏳ A fetch cycle is already in progress.")
		}
		if err != nil {
			logCtx.WithError(err).Error("Manual fetch failed")
			newCount := 0
			if res != nil {
				newCount = len(res.NewRecords)
			}
			return c.Send(fmt.Sprintf("⚠️ Fetch finished with an error after %d new announcements. It will be retried on the next cycle.", newCount))
		}
		return c.Send(fmt.Sprintf("✅ Fetch complete: %d new, %d duplicates, %d skipped.",
			len(res.NewRecords), res.Duplicates, res.Skipped))
	})
}
