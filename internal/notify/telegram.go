package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends the run's alerts as a single Telegram message.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects to the Telegram API and validates the token.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, fmt.Errorf("telegram token invalid or expired; get one from @BotFather")
		}
		return nil, fmt.Errorf("connect to telegram: %v", err)
	}
	bot.Debug = false
	log.Printf("Telegram bot authorized as %s", bot.Self.UserName)

	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Notify(_ context.Context, p Payload) error {
	if len(p.Events) == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(t.chatID, t.message(p))
	msg.ParseMode = "HTML"
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("Telegram send with HTML failed, retrying plain: %v", err)
		msg.ParseMode = ""
		if _, err2 := t.bot.Send(msg); err2 != nil {
			return fmt.Errorf("telegram send: %w", err2)
		}
	}
	return nil
}

func (t *TelegramNotifier) message(p Payload) string {
	var b strings.Builder
	b.WriteString("🔔 <b>Price Drop Alert</b>\n\n")

	for _, e := range p.Events {
		b.WriteString(fmt.Sprintf("📦 <b>%s</b> at %s\n", escapeHTML(e.Product), escapeHTML(e.Site)))
		if e.Drop > 0 {
			b.WriteString(fmt.Sprintf("💰 $%.2f → <b>$%.2f</b> (%.1f%% off, save $%.2f)\n",
				e.PreviousPrice, e.NewPrice, e.DropPercent, e.Drop))
		} else {
			b.WriteString(fmt.Sprintf("💰 Now <b>$%.2f</b>\n", e.NewPrice))
		}
		if e.TargetReached {
			b.WriteString("🎯 <b>Target price reached!</b>\n")
		}
		b.WriteString(fmt.Sprintf("🔗 %s\n\n", e.URL))
	}

	b.WriteString(fmt.Sprintf("Run %s: %d snapshot(s), %d failure(s)", p.RunID, p.Snapshots, p.Failures))
	return b.String()
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
