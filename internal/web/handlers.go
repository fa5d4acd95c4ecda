package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promolabs/promobot/core/buildinfo"
	"github.com/promolabs/promobot/core/logger"
	"github.com/promolabs/promobot/internal/moderation"
	"github.com/promolabs/promobot/internal/users"
)

// API implements the JSON endpoints used by the external import service and
// status consumers.
type API struct {
	store    *users.Store
	importer *moderation.Importer
	gate     *moderation.Gate
}

func NewAPI(store *users.Store, importer *moderation.Importer, gate *moderation.Gate) *API {
	return &API{store: store, importer: importer, gate: gate}
}

type contactPayload struct {
	Name   string   `json:"name"`
	Phones []string `json:"phones"`
	Emails []string `json:"emails"`
}

type importRequest struct {
	UserID      string           `json:"user_id"`
	ChannelID   int64            `json:"channel_id"`
	DisplayName string           `json:"display_name"`
	Source      string           `json:"source"`
	Contacts    []contactPayload `json:"contacts"`
}

type importResponse struct {
	UserID    string `json:"user_id"`
	State     string `json:"state"`
	Accepted  int    `json:"accepted"`
	Dropped   int    `json:"dropped"`
	Submitted bool   `json:"submitted"`
}

type userResponse struct {
	UserID        string     `json:"user_id"`
	DisplayName   string     `json:"display_name,omitempty"`
	State         string     `json:"state"`
	HasContacts   bool       `json:"has_contacts"`
	ContactCount  int        `json:"contact_count"`
	ImportedAt    *time.Time `json:"imported_at,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	PublishCount  int        `json:"publish_count"`
	LastPublishAt *time.Time `json:"last_publish_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.HTTP.Warn("response encode failed",
			slog.String("event", "http.encode_failed"),
			slog.String("err", err.Error()),
		)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var derr *moderation.DomainError
	if errors.As(err, &derr) {
		writeJSON(w, domainStatus(derr), errorResponse{Error: derr.Error(), Code: derr.Code()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
}

func domainStatus(err *moderation.DomainError) int {
	switch err.Code() {
	case "invalid_user_id", "invalid_source", "too_few_contacts":
		return http.StatusUnprocessableEntity
	case "forbidden":
		return http.StatusForbidden
	case "user_unknown":
		return http.StatusNotFound
	case "not_pending", "not_approved", "no_contacts":
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func userView(rec users.Record) userResponse {
	return userResponse{
		UserID:        rec.ID,
		DisplayName:   rec.DisplayName,
		State:         string(rec.State),
		HasContacts:   rec.HasContacts,
		ContactCount:  len(rec.Contacts),
		ImportedAt:    rec.ImportedAt,
		DecidedAt:     rec.DecidedAt,
		PublishCount:  rec.PublishCount,
		LastPublishAt: rec.LastPublishAt,
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	})
}

func (a *API) handleImportContacts(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body", Code: "bad_request"})
		return
	}

	source := users.ContactSource(req.Source)
	if req.Source == "" {
		source = users.SourceImport
	}

	list := make([]users.Contact, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		list = append(list, users.Contact{Name: c.Name, Phones: c.Phones, Emails: c.Emails})
	}

	sum, err := a.importer.Import(r.Context(), req.UserID, req.ChannelID, req.DisplayName, list, source)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, importResponse{
		UserID:    sum.Record.ID,
		State:     string(sum.Record.State),
		Accepted:  sum.Accepted,
		Dropped:   sum.Dropped,
		Submitted: sum.Submitted,
	})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := a.store.Get(id)
	if !ok {
		writeError(w, moderation.ErrUserUnknown)
		return
	}
	writeJSON(w, http.StatusOK, userView(rec))
}

func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.gate.AuthorizePublish(id); err != nil {
		writeError(w, err)
		return
	}

	rec, err := a.store.RecordPublish(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(rec))
}
