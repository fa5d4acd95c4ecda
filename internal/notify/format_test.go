package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/promolabs/promobot/internal/users"
)

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, "a\\_b \\*c\\* \\`d\\` \\[e]", EscapeMarkdown("a_b *c* `d` [e]"))
	assert.Equal(t, "plain", EscapeMarkdown("plain"))
}

func TestReviewRequestText(t *testing.T) {
	rec := users.Record{
		ID:          "42",
		DisplayName: "promo_user",
		Contacts: []users.Contact{
			{Name: "Anna", Phones: []string{"+7 900 1"}},
			{Name: "Boris", Emails: []string{"b@example.com"}},
			{Name: "Clara", Phones: []string{"+7 900 3"}},
		},
	}
	text := reviewRequestText(rec, rec.Contacts[:2])

	assert.Contains(t, text, "promo\\_user")
	assert.Contains(t, text, "`42`")
	assert.Contains(t, text, "Contacts on file: 3")
	assert.Contains(t, text, "• Anna — +7 900 1")
	assert.Contains(t, text, "b@example.com")
	assert.Contains(t, text, "…and 1 more")
	assert.NotContains(t, text, "Clara", "preview is capped")
}
