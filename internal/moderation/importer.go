package moderation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/promolabs/promobot/core/logger"
	"github.com/promolabs/promobot/internal/users"
)

// Notifier fans moderation events out to the review channel and to the user.
// Delivery is best effort: the workflow never rolls back on a failed send.
type Notifier interface {
	ContactsReceived(ctx context.Context, rec users.Record, preview []users.Contact) error
	UserApproved(ctx context.Context, rec users.Record) error
	UserRejected(ctx context.Context, rec users.Record) error
}

// ImportSummary describes what a contact import changed.
type ImportSummary struct {
	Record    users.Record
	Accepted  int
	Dropped   int
	Submitted bool
}

// Importer validates incoming contact lists and moves the owning record into
// the moderation queue.
type Importer struct {
	store        *users.Store
	notifier     Notifier
	minContacts  int
	previewLimit int
}

func NewImporter(store *users.Store, notifier Notifier, minContacts, previewLimit int) *Importer {
	if minContacts <= 0 {
		minContacts = 3
	}
	if previewLimit <= 0 {
		previewLimit = 5
	}
	return &Importer{
		store:        store,
		notifier:     notifier,
		minContacts:  minContacts,
		previewLimit: previewLimit,
	}
}

// Import validates, dedupes and stores a contact list, then submits the
// record for review. A rejected user re-entering contacts goes back to
// pending with the previous decision cleared; an approved user keeps the
// approval. Validation failures leave the store untouched.
func (im *Importer) Import(ctx context.Context, userID string, channelID int64, displayName string, list []users.Contact, source users.ContactSource) (ImportSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return ImportSummary{}, ErrInvalidUserID
	}
	if !users.ValidSource(source) {
		return ImportSummary{}, ErrInvalidSource
	}

	clean, dropped := normalizeContacts(list, source)
	if len(clean) < im.minContacts {
		logger.SVCImport.Warn("import refused",
			slog.String("event", "import.refused"),
			slog.String("record_id", userID),
			slog.Int("accepted", len(clean)),
			slog.Int("dropped", dropped),
			slog.Int("min", im.minContacts),
		)
		return ImportSummary{}, ErrTooFewContacts
	}

	submitted := false
	rec, err := im.store.Upsert(userID, channelID, displayName, func(r *users.Record) error {
		now := time.Now().UTC()
		r.Contacts = clean
		r.HasContacts = true
		r.ImportedAt = &now
		switch r.State {
		case users.StateUnsubmitted, users.StateRejected:
			// A rejected user resubmitting is an appeal: the old verdict
			// no longer applies.
			r.State = users.StatePending
			r.DecidedAt = nil
			r.DecidedBy = ""
			submitted = true
		case users.StatePending, users.StateApproved:
			// Already in the queue or already trusted; refresh data only.
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}

	logger.SVCImport.Info("contacts imported",
		slog.String("event", "import.stored"),
		slog.String("record_id", rec.ID),
		slog.String("source", string(source)),
		slog.Int("accepted", len(clean)),
		slog.Int("dropped", dropped),
		slog.String("state", string(rec.State)),
	)

	if submitted && im.notifier != nil {
		preview := clean
		if len(preview) > im.previewLimit {
			preview = preview[:im.previewLimit]
		}
		if err := im.notifier.ContactsReceived(ctx, rec, preview); err != nil {
			logger.SVCImport.Warn("review notification failed",
				slog.String("event", "import.notify_failed"),
				slog.String("record_id", rec.ID),
				slog.Any("err", err),
			)
		}
	}

	return ImportSummary{
		Record:    rec,
		Accepted:  len(clean),
		Dropped:   dropped,
		Submitted: submitted,
	}, nil
}

// normalizeContacts trims fields, drops cards without any reachable channel
// and collapses duplicates keyed by lowercased name plus first phone.
func normalizeContacts(list []users.Contact, source users.ContactSource) ([]users.Contact, int) {
	seen := make(map[string]struct{}, len(list))
	clean := make([]users.Contact, 0, len(list))
	dropped := 0

	for _, c := range list {
		name := strings.TrimSpace(c.Name)
		phones := trimNonEmpty(c.Phones)
		emails := trimNonEmpty(c.Emails)
		if name == "" || (len(phones) == 0 && len(emails) == 0) {
			dropped++
			continue
		}

		key := strings.ToLower(name)
		if len(phones) > 0 {
			key += "|" + phones[0]
		}
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}

		clean = append(clean, users.Contact{
			Name:   name,
			Phones: phones,
			Emails: emails,
			Source: source,
		})
	}
	return clean, dropped
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
