package moderation

import (
	"github.com/promolabs/promobot/internal/users"
)

// Gate answers whether a user may publish promo material. It only reads
// state; recording an actual publication lives on the store.
type Gate struct {
	store *users.Store
}

func NewGate(store *users.Store) *Gate {
	return &Gate{store: store}
}

// AuthorizePublish returns the record when publication is allowed. It allows
// only approved records that still hold contacts.
func (g *Gate) AuthorizePublish(userID string) (users.Record, error) {
	rec, ok := g.store.Get(userID)
	if !ok {
		return users.Record{}, ErrUserUnknown
	}
	if rec.State != users.StateApproved {
		return users.Record{}, ErrNotApproved
	}
	if !rec.HasContacts || len(rec.Contacts) == 0 {
		return users.Record{}, ErrNoContacts
	}
	return rec, nil
}
