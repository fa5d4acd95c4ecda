package users

import "time"

// ModerationState tracks where a user record sits in the approval lifecycle.
type ModerationState string

const (
	// StateUnsubmitted marks a record that has never passed a contact import.
	StateUnsubmitted ModerationState = "unsubmitted"
	// StatePending marks a record awaiting an operator decision.
	StatePending ModerationState = "pending"
	// StateApproved marks a record cleared for publishing.
	StateApproved ModerationState = "approved"
	// StateRejected marks a record declined by an operator.
	StateRejected ModerationState = "rejected"
)

// Decided reports whether the state is terminal for the current submission cycle.
func (s ModerationState) Decided() bool {
	return s == StateApproved || s == StateRejected
}

// ContactSource tags how a contact list was obtained.
type ContactSource string

const (
	// SourceManual marks contacts typed in by the user.
	SourceManual ContactSource = "manual"
	// SourceImport marks contacts fetched from an external directory.
	SourceImport ContactSource = "import-service"
	// SourceTest marks synthetic contacts used in tests.
	SourceTest ContactSource = "test"
)

// ValidSource reports whether the given tag is a known contact source.
func ValidSource(s ContactSource) bool {
	switch s {
	case SourceManual, SourceImport, SourceTest:
		return true
	}
	return false
}

// Contact is a single entry of a user's imported contact list.
type Contact struct {
	Name   string        `json:"name"`
	Phones []string      `json:"phones,omitempty"`
	Emails []string      `json:"emails,omitempty"`
	Source ContactSource `json:"source"`
}

// Record is the mutable profile kept per external user identifier.
type Record struct {
	ID          string    `json:"id"`
	ChannelID   int64     `json:"channel_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Contacts    []Contact `json:"contacts,omitempty"`
	HasContacts bool      `json:"has_contacts"`
	ImportedAt  *time.Time `json:"imported_at,omitempty"`

	State     ModerationState `json:"state"`
	DecidedAt *time.Time      `json:"decided_at,omitempty"`
	DecidedBy string          `json:"decided_by,omitempty"`

	PublishCount  int        `json:"publish_count"`
	LastPublishAt *time.Time `json:"last_publish_at,omitempty"`
}

// NewRecord creates a fresh record in the unsubmitted state.
func NewRecord(id string, channelID int64, displayName string) *Record {
	return &Record{
		ID:          id,
		ChannelID:   channelID,
		DisplayName: displayName,
		State:       StateUnsubmitted,
	}
}

// Clone returns a deep copy safe to use outside the store lock.
func (r *Record) Clone() Record {
	out := *r
	if r.Contacts != nil {
		out.Contacts = make([]Contact, len(r.Contacts))
		for i, c := range r.Contacts {
			cc := c
			cc.Phones = append([]string(nil), c.Phones...)
			cc.Emails = append([]string(nil), c.Emails...)
			out.Contacts[i] = cc
		}
	}
	out.ImportedAt = cloneTime(r.ImportedAt)
	out.DecidedAt = cloneTime(r.DecidedAt)
	out.LastPublishAt = cloneTime(r.LastPublishAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
