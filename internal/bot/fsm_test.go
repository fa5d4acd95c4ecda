package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promolabs/promobot/internal/users"
)

func TestParseContactLine(t *testing.T) {
	c, err := parseContactLine("Anna Petrova; +7 900 1, +7 900 2; anna@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Anna Petrova", c.Name)
	assert.Equal(t, []string{"+7 900 1", "+7 900 2"}, c.Phones)
	assert.Equal(t, []string{"anna@example.com"}, c.Emails)
	assert.Equal(t, users.SourceManual, c.Source)

	c, err = parseContactLine("Boris; +7 900 3")
	require.NoError(t, err)
	assert.Equal(t, []string{"+7 900 3"}, c.Phones)
	assert.Empty(t, c.Emails)

	c, err = parseContactLine("Clara; ; clara@example.com")
	require.NoError(t, err)
	assert.Empty(t, c.Phones)
	assert.Equal(t, []string{"clara@example.com"}, c.Emails)

	_, err = parseContactLine("; +7 900 4")
	assert.Error(t, err, "name is required")

	_, err = parseContactLine("Ghost")
	assert.Error(t, err, "a reachable channel is required")

	_, err = parseContactLine("Ghost; ;")
	assert.Error(t, err)
}

func TestStateLine(t *testing.T) {
	assert.Contains(t, stateLine(users.StateUnsubmitted), "/contacts")
	assert.Contains(t, stateLine(users.StatePending), "waiting")
	assert.Contains(t, stateLine(users.StateApproved), "approved")
	assert.Contains(t, stateLine(users.StateRejected), "rejected")
}
