package notify

import (
	"fmt"
	"strings"

	"github.com/promolabs/promobot/internal/users"
)

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// EscapeMarkdown neutralizes legacy Markdown control characters in
// user-supplied text.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// FormatContact renders one contact card as a bullet line.
func FormatContact(c users.Contact) string {
	var b strings.Builder
	b.WriteString("• ")
	b.WriteString(EscapeMarkdown(c.Name))
	if len(c.Phones) > 0 {
		b.WriteString(" — ")
		b.WriteString(EscapeMarkdown(strings.Join(c.Phones, ", ")))
	}
	if len(c.Emails) > 0 {
		b.WriteString(" — ")
		b.WriteString(EscapeMarkdown(strings.Join(c.Emails, ", ")))
	}
	return b.String()
}

func displayName(rec users.Record) string {
	if rec.DisplayName != "" {
		return EscapeMarkdown(rec.DisplayName)
	}
	return "id " + EscapeMarkdown(rec.ID)
}

func reviewRequestText(rec users.Record, preview []users.Contact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Review request* from %s\n", displayName(rec))
	fmt.Fprintf(&b, "User id: `%s`\n", EscapeMarkdown(rec.ID))
	fmt.Fprintf(&b, "Contacts on file: %d\n", len(rec.Contacts))
	if len(preview) > 0 {
		b.WriteString("\n")
		for _, c := range preview {
			b.WriteString(FormatContact(c))
			b.WriteString("\n")
		}
		if extra := len(rec.Contacts) - len(preview); extra > 0 {
			fmt.Fprintf(&b, "…and %d more\n", extra)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func receivedText(rec users.Record) string {
	return fmt.Sprintf(
		"Your %d contacts were received and sent for review.\nYou will get a message once an operator takes a look.",
		len(rec.Contacts),
	)
}

func approvedText(users.Record) string {
	return "*You are approved.* 🎉\nYou can publish promo posts now."
}

func rejectedText(users.Record) string {
	return "*Your submission was rejected.*\nYou can update your contact list and submit it again."
}
