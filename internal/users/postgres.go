package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// userRow mirrors the users table. Contacts travel as a JSONB document so the
// schema does not have to chase the contact card shape.
type userRow struct {
	ID            string          `db:"id"`
	ChannelID     int64           `db:"channel_id"`
	DisplayName   sql.NullString  `db:"display_name"`
	Contacts      json.RawMessage `db:"contacts"`
	HasContacts   bool            `db:"has_contacts"`
	ImportedAt    sql.NullTime    `db:"imported_at"`
	State         string          `db:"state"`
	DecidedAt     sql.NullTime    `db:"decided_at"`
	DecidedBy     sql.NullString  `db:"decided_by"`
	PublishCount  int             `db:"publish_count"`
	LastPublishAt sql.NullTime    `db:"last_publish_at"`
}

// PostgresPersister keeps the record set in a users table. SaveAll replaces
// the whole set in one transaction, mirroring the snapshot semantics of the
// file persister.
type PostgresPersister struct {
	db *sqlx.DB
}

func NewPostgresPersister(db *sqlx.DB) *PostgresPersister {
	return &PostgresPersister{db: db}
}

func (p *PostgresPersister) LoadAll(ctx context.Context) ([]Record, error) {
	var rows []userRow
	const q = `SELECT id, channel_id, display_name, contacts, has_contacts,
		imported_at, state, decided_at, decided_by, publish_count, last_publish_at
		FROM users ORDER BY id`
	if err := p.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("users: select records: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *PostgresPersister) SaveAll(ctx context.Context, records []Record) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("users: begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO users
		(id, channel_id, display_name, contacts, has_contacts,
		 imported_at, state, decided_at, decided_by, publish_count, last_publish_at)
		VALUES (:id, :channel_id, :display_name, :contacts, :has_contacts,
		 :imported_at, :state, :decided_at, :decided_by, :publish_count, :last_publish_at)
		ON CONFLICT (id) DO UPDATE SET
		 channel_id = EXCLUDED.channel_id,
		 display_name = EXCLUDED.display_name,
		 contacts = EXCLUDED.contacts,
		 has_contacts = EXCLUDED.has_contacts,
		 imported_at = EXCLUDED.imported_at,
		 state = EXCLUDED.state,
		 decided_at = EXCLUDED.decided_at,
		 decided_by = EXCLUDED.decided_by,
		 publish_count = EXCLUDED.publish_count,
		 last_publish_at = EXCLUDED.last_publish_at`

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		row, err := recordToRow(rec)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, upsert, row); err != nil {
			return fmt.Errorf("users: upsert record %s: %w", rec.ID, err)
		}
		ids = append(ids, rec.ID)
	}

	// Rows absent from the snapshot were removed in memory.
	if len(ids) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
			return fmt.Errorf("users: prune records: %w", err)
		}
	} else {
		q, args, err := sqlx.In(`DELETE FROM users WHERE id NOT IN (?)`, ids)
		if err != nil {
			return fmt.Errorf("users: build prune query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, p.db.Rebind(q), args...); err != nil {
			return fmt.Errorf("users: prune records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("users: commit snapshot tx: %w", err)
	}
	return nil
}

func rowToRecord(row userRow) (Record, error) {
	rec := Record{
		ID:           row.ID,
		ChannelID:    row.ChannelID,
		DisplayName:  row.DisplayName.String,
		HasContacts:  row.HasContacts,
		State:        ModerationState(row.State),
		DecidedBy:    row.DecidedBy.String,
		PublishCount: row.PublishCount,
	}
	if len(row.Contacts) > 0 {
		if err := json.Unmarshal(row.Contacts, &rec.Contacts); err != nil {
			return Record{}, fmt.Errorf("users: decode contacts for %s: %w", row.ID, err)
		}
	}
	rec.ImportedAt = nullTimePtr(row.ImportedAt)
	rec.DecidedAt = nullTimePtr(row.DecidedAt)
	rec.LastPublishAt = nullTimePtr(row.LastPublishAt)
	return rec, nil
}

func recordToRow(rec Record) (userRow, error) {
	contacts, err := json.Marshal(rec.Contacts)
	if err != nil {
		return userRow{}, fmt.Errorf("users: encode contacts for %s: %w", rec.ID, err)
	}
	return userRow{
		ID:            rec.ID,
		ChannelID:     rec.ChannelID,
		DisplayName:   nullString(rec.DisplayName),
		Contacts:      contacts,
		HasContacts:   rec.HasContacts,
		ImportedAt:    nullTime(rec.ImportedAt),
		State:         string(rec.State),
		DecidedAt:     nullTime(rec.DecidedAt),
		DecidedBy:     nullString(rec.DecidedBy),
		PublishCount:  rec.PublishCount,
		LastPublishAt: nullTime(rec.LastPublishAt),
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
