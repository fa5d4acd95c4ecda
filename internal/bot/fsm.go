package bot

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/promolabs/promobot/core/telegram/helpers"
	"github.com/promolabs/promobot/core/telegram/state"
	"github.com/promolabs/promobot/internal/moderation"
	"github.com/promolabs/promobot/internal/users"
)

const (
	stateContactsEntry state.State = "contacts.entry"

	tempDraftKey = "contacts.draft"
)

const contactsPrompt = `Send me your contacts, one per line:

Name; phone1, phone2; email1, email2

Phones or emails may be omitted, but each contact needs at least one.
Send "done" when finished, or /cancel to abort.`

func (a *App) registerConversations() {
	a.fsm.RegisterHandler(stateContactsEntry, a.contactsEntryStep)
}

func (a *App) handleContacts(c tele.Context) error {
	userID := c.Sender().ID
	a.store.Ensure(senderRecordID(c), c.Chat().ID, senderDisplayName(c.Sender()))
	a.fsm.ClearTemp(userID, tempDraftKey)
	a.fsm.Set(userID, stateContactsEntry)
	return helpers.SendText(c, contactsPrompt)
}

func (a *App) handleCancel(c tele.Context) error {
	userID := c.Sender().ID
	if !a.fsm.InProgress(userID) {
		return helpers.SendText(c, "Nothing to cancel.")
	}
	a.fsm.Clear(userID)
	a.fsm.ClearTemp(userID, tempDraftKey)
	return helpers.SendText(c, "Cancelled. Your previous submission, if any, is untouched.")
}

func (a *App) contactsEntryStep(c tele.Context, s *state.Session) error {
	userID := c.Sender().ID
	text := strings.TrimSpace(c.Text())

	if strings.EqualFold(text, "done") {
		return a.finishContactsEntry(c)
	}

	draft := a.draftContacts(userID)
	added, bad := 0, 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		contact, err := parseContactLine(line)
		if err != nil {
			bad++
			continue
		}
		draft = append(draft, contact)
		added++
	}
	a.fsm.SetTemp(userID, tempDraftKey, draft)

	if added == 0 {
		return helpers.SendText(c, "Could not read any contact from that. Expected: Name; phones; emails")
	}
	reply := fmt.Sprintf("Got %d, total %d.", added, len(draft))
	if bad > 0 {
		reply += fmt.Sprintf(" Skipped %d unreadable line(s).", bad)
	}
	reply += ` Send more or "done".`
	return helpers.SendText(c, reply)
}

func (a *App) finishContactsEntry(c tele.Context) error {
	userID := c.Sender().ID
	draft := a.draftContacts(userID)
	a.fsm.Clear(userID)
	a.fsm.ClearTemp(userID, tempDraftKey)

	ctx := helpers.BuildContext(c)
	sum, err := a.importer.Import(ctx, senderRecordID(c), c.Chat().ID, senderDisplayName(c.Sender()), draft, users.SourceManual)
	if err != nil {
		if errors.Is(err, moderation.ErrTooFewContacts) {
			return helpers.SendText(c, fmt.Sprintf(
				"Only %d usable contact(s) after weeding out duplicates, need at least %d. Start over with /contacts.",
				len(draft), a.cfg.Moderation.MinContacts))
		}
		return err
	}

	if sum.Submitted {
		return helpers.SendText(c, fmt.Sprintf("Saved %d contacts and sent them for review. You will hear back soon.", sum.Accepted))
	}
	return helpers.SendText(c, fmt.Sprintf("Saved %d contacts. Your status is unchanged, see /status.", sum.Accepted))
}

func (a *App) draftContacts(userID int64) []users.Contact {
	raw, ok := a.fsm.GetTemp(userID, tempDraftKey)
	if !ok {
		return nil
	}
	draft, ok := raw.([]users.Contact)
	if !ok {
		return nil
	}
	return draft
}

// parseContactLine reads "Name; phone1, phone2; email1, email2".
// Trailing sections may be omitted.
func parseContactLine(line string) (users.Contact, error) {
	parts := strings.SplitN(line, ";", 3)
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return users.Contact{}, errors.New("empty name")
	}

	contact := users.Contact{Name: name, Source: users.SourceManual}
	if len(parts) > 1 {
		contact.Phones = splitList(parts[1])
	}
	if len(parts) > 2 {
		contact.Emails = splitList(parts[2])
	}
	if len(contact.Phones) == 0 && len(contact.Emails) == 0 {
		return users.Contact{}, errors.New("no phone or email")
	}
	return contact, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
