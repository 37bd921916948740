package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier posts operational alerts to the admin Telegram chat. A nil
// Notifier is valid and drops everything, so callers never have to branch on
// whether notifications are configured.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// New returns nil (disabled) when token or chatID is unset.
func New(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID, log: log}, nil
}

func (n *Notifier) send(text string) {
	if n == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error("send admin notification", "err", err)
	}
}

func (n *Notifier) ExportReady(url string) {
	n.send(fmt.Sprintf("Ranking export ready: %s", url))
}

func (n *Notifier) CouponRedeemed(code string, discount string) {
	n.send(fmt.Sprintf("Coupon %s redeemed (discount %s)", code, discount))
}
