package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/promolabs/promobot/core/logger"
	"github.com/promolabs/promobot/core/telegram/keyboard"
	"github.com/promolabs/promobot/core/telegram/sender"
	"github.com/promolabs/promobot/internal/users"
)

// Callback uniques for the review-request inline buttons. The bot registers
// handlers under the same names.
const (
	CallbackApprove = "mod_approve"
	CallbackReject  = "mod_reject"
)

// ErrNotBound is returned when a notification is requested before the
// Telegram transport is up.
var ErrNotBound = errors.New("notify: telegram transport not bound")

type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramNotifier delivers moderation events over the bot transport: review
// requests with inline verdict buttons to the operator channel, outcomes to
// the user chat. Sends go through the async dispatcher and are best effort.
type TelegramNotifier struct {
	adminChannelID int64

	bot  atomic.Pointer[api]
	disp atomic.Pointer[sender.Dispatcher]
}

func NewTelegramNotifier(adminChannelID int64) *TelegramNotifier {
	return &TelegramNotifier{adminChannelID: adminChannelID}
}

// Bind attaches the live bot and dispatcher. Called once the transport has
// started; notifications before that fail with ErrNotBound.
func (n *TelegramNotifier) Bind(bot *tele.Bot, disp *sender.Dispatcher) {
	var a api = bot
	n.bot.Store(&a)
	n.disp.Store(disp)
}

func (n *TelegramNotifier) send(ctx context.Context, action string, to tele.Recipient, text string, markup *tele.ReplyMarkup) error {
	botPtr := n.bot.Load()
	if botPtr == nil {
		return ErrNotBound
	}
	bot := *botPtr

	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup}
	run := func() error {
		_, err := bot.Send(to, text, opts)
		return err
	}

	disp := n.disp.Load()
	if disp == nil {
		return run()
	}
	if err := disp.Enqueue(ctx, action, "sendMessage", run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "notify", "queue.fallback",
				slog.String("action", action),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// ContactsReceived posts the review request to the operator channel and a
// confirmation to the user.
func (n *TelegramNotifier) ContactsReceived(ctx context.Context, rec users.Record, preview []users.Contact) error {
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Approve", Unique: CallbackApprove, Data: rec.ID},
		{Text: "❌ Reject", Unique: CallbackReject, Data: rec.ID},
	})

	if err := n.send(ctx, "notify.review_request", tele.ChatID(n.adminChannelID), reviewRequestText(rec, preview), markup); err != nil {
		return err
	}

	if rec.ChannelID != 0 {
		if err := n.send(ctx, "notify.received", tele.ChatID(rec.ChannelID), receivedText(rec), nil); err != nil {
			logger.Warn(ctx, "notify", "received.send_failed",
				slog.String("record_id", rec.ID),
				slog.String("err", err.Error()),
			)
		}
	}
	return nil
}

// UserApproved tells the user their submission passed review.
func (n *TelegramNotifier) UserApproved(ctx context.Context, rec users.Record) error {
	if rec.ChannelID == 0 {
		return nil
	}
	return n.send(ctx, "notify.approved", tele.ChatID(rec.ChannelID), approvedText(rec), nil)
}

// UserRejected tells the user their submission was turned down.
func (n *TelegramNotifier) UserRejected(ctx context.Context, rec users.Record) error {
	if rec.ChannelID == 0 {
		return nil
	}
	return n.send(ctx, "notify.rejected", tele.ChatID(rec.ChannelID), rejectedText(rec), nil)
}
