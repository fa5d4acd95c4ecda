package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/promolabs/promobot/core/telegram/callbacks"
	"github.com/promolabs/promobot/core/telegram/helpers"
	"github.com/promolabs/promobot/internal/moderation"
	"github.com/promolabs/promobot/internal/notify"
	"github.com/promolabs/promobot/internal/users"
)

func senderRecordID(c tele.Context) string {
	return strconv.FormatInt(c.Sender().ID, 10)
}

func senderDisplayName(s *tele.User) string {
	if s == nil {
		return ""
	}
	if s.Username != "" {
		return "@" + s.Username
	}
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func stateLine(st users.ModerationState) string {
	switch st {
	case users.StatePending:
		return "⏳ Your contacts are waiting for review."
	case users.StateApproved:
		return "✅ You are approved and can publish promo posts."
	case users.StateRejected:
		return "❌ Your last submission was rejected. Use /contacts to submit an updated list."
	default:
		return "You have not submitted contacts yet. Use /contacts to get started."
	}
}

func (a *App) handleStart(c tele.Context) error {
	rec := a.store.Ensure(senderRecordID(c), c.Chat().ID, senderDisplayName(c.Sender()))
	text := "Hi! This bot manages access to promo publications.\n\n" + stateLine(rec.State)
	return helpers.SendText(c, text)
}

func (a *App) handleStatus(c tele.Context) error {
	rec, ok := a.store.Get(senderRecordID(c))
	if !ok {
		return helpers.SendText(c, "You are not registered yet. Send /start first.")
	}

	var b strings.Builder
	b.WriteString(stateLine(rec.State))
	if rec.HasContacts {
		fmt.Fprintf(&b, "\nContacts on file: %d", len(rec.Contacts))
	}
	if rec.PublishCount > 0 {
		fmt.Fprintf(&b, "\nPublications so far: %d", rec.PublishCount)
	}
	return helpers.SendText(c, b.String())
}

func (a *App) handlePublish(c tele.Context) error {
	id := senderRecordID(c)
	if _, err := a.gate.AuthorizePublish(id); err != nil {
		return helpers.SendText(c, publishRefusalText(err))
	}

	rec, err := a.store.RecordPublish(id)
	if err != nil {
		return err
	}
	return helpers.SendText(c, fmt.Sprintf("Publication #%d recorded. Go ahead!", rec.PublishCount))
}

func publishRefusalText(err error) string {
	switch {
	case errors.Is(err, moderation.ErrUserUnknown):
		return "You are not registered yet. Send /start first."
	case errors.Is(err, moderation.ErrNotApproved):
		return "Publications are open to approved users only. Check /status."
	case errors.Is(err, moderation.ErrNoContacts):
		return "Your contact list is empty. Submit it again with /contacts."
	default:
		return "Cannot publish right now, please try again later."
	}
}

func (a *App) handlePending(c tele.Context) error {
	pending := a.workflow.Pending()
	if len(pending) == 0 {
		return helpers.SendText(c, "The review queue is empty.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Review queue* — %d waiting\n\n", len(pending))
	for _, rec := range pending {
		name := rec.DisplayName
		if name == "" {
			name = "id " + rec.ID
		}
		fmt.Fprintf(&b, "• %s — %d contacts, id `%s`\n",
			notify.EscapeMarkdown(name), len(rec.Contacts), notify.EscapeMarkdown(rec.ID))
	}
	return helpers.SendMD(c, strings.TrimRight(b.String(), "\n"))
}

// handleVerdict resolves an inline approve/reject press on a review request.
// The message in the operator channel is edited in place so a second press
// has nothing actionable left to click.
func (a *App) handleVerdict(d moderation.Decision) tele.HandlerFunc {
	return func(c tele.Context) error {
		recordID := callbacks.PayloadString(c)
		if recordID == "" {
			return helpers.EditMD(c, "Malformed review request, no user reference.")
		}

		ctx := helpers.BuildContext(c)
		res, err := a.workflow.Decide(ctx, c.Sender().ID, recordID, d)
		if err != nil {
			switch {
			case errors.Is(err, moderation.ErrForbidden):
				// The route already acked the press, so this answer may be
				// refused; the refusal itself is logged by the workflow.
				_ = c.Respond(&tele.CallbackResponse{Text: "Operators only."})
				return nil
			case errors.Is(err, moderation.ErrUserUnknown):
				return helpers.EditMD(c, fmt.Sprintf("User `%s` is gone from the store.", notify.EscapeMarkdown(recordID)))
			case errors.Is(err, moderation.ErrNotPending):
				_ = c.Respond(&tele.CallbackResponse{Text: "Already decided with the opposite verdict."})
				return nil
			default:
				return err
			}
		}

		if !res.Changed {
			_ = c.Respond(&tele.CallbackResponse{Text: "Already decided."})
			return nil
		}

		verdict := "✅ Approved"
		if d == moderation.DecisionReject {
			verdict = "❌ Rejected"
		}
		name := res.Record.DisplayName
		if name == "" {
			name = "id " + res.Record.ID
		}
		return helpers.EditMD(c, fmt.Sprintf("%s — %s\nDecided by operator `%d`.",
			verdict, notify.EscapeMarkdown(name), c.Sender().ID))
	}
}
