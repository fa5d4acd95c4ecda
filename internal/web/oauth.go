package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	coreconfig "github.com/promolabs/promobot/core/config"
	"github.com/promolabs/promobot/core/logger"
	"github.com/promolabs/promobot/internal/moderation"
	"github.com/promolabs/promobot/internal/users"
)

const (
	peopleEndpoint = "https://people.googleapis.com/v1/people/me/connections" +
		"?personFields=names,phoneNumbers,emailAddresses&pageSize=200"
	stateTTL = 5 * time.Minute
)

type pendingAuth struct {
	userID    string
	channelID int64
	createdAt time.Time
}

// GoogleImporter drives the OAuth consent flow and pulls the user's Google
// address book into the moderation pipeline.
type GoogleImporter struct {
	oauth    *oauth2.Config
	importer *moderation.Importer

	mu      sync.Mutex
	pending map[string]pendingAuth
}

func NewGoogleImporter(cfg *coreconfig.Config, importer *moderation.Importer) *GoogleImporter {
	return &GoogleImporter{
		oauth: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.HTTP.BaseURL + "/auth/google/callback",
			Scopes:       []string{"https://www.googleapis.com/auth/contacts.readonly"},
			Endpoint:     google.Endpoint,
		},
		importer: importer,
		pending:  make(map[string]pendingAuth),
	}
}

// handleLogin starts the consent flow for a known user. The state token ties
// the callback back to the Telegram identity that requested the import.
func (g *GoogleImporter) handleLogin(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id query parameter required", Code: "bad_request"})
		return
	}
	channelID, _ := strconv.ParseInt(r.URL.Query().Get("channel_id"), 10, 64)

	state := uuid.NewString()
	g.mu.Lock()
	g.prune()
	g.pending[state] = pendingAuth{userID: userID, channelID: channelID, createdAt: time.Now()}
	g.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusTemporaryRedirect)
}

func (g *GoogleImporter) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie("oauth_state")
	if err != nil || state == "" || cookie.Value != state {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "state mismatch", Code: "invalid_state"})
		return
	}

	g.mu.Lock()
	auth, ok := g.pending[state]
	delete(g.pending, state)
	g.mu.Unlock()
	if !ok || time.Since(auth.createdAt) > stateTTL {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown or expired state", Code: "invalid_state"})
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "consent refused: " + errMsg, Code: "consent_refused"})
		return
	}

	token, err := g.oauth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.OAuth.Warn("code exchange failed",
			slog.String("event", "oauth.exchange_failed"),
			slog.String("record_id", auth.userID),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "token exchange failed", Code: "exchange_failed"})
		return
	}

	list, err := g.fetchContacts(r, token)
	if err != nil {
		logger.OAuth.Warn("address book fetch failed",
			slog.String("event", "oauth.fetch_failed"),
			slog.String("record_id", auth.userID),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "could not read the address book", Code: "fetch_failed"})
		return
	}

	sum, err := g.importer.Import(r.Context(), auth.userID, auth.channelID, "", list, users.SourceImport)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.OAuth.Info("address book imported",
		slog.String("event", "oauth.imported"),
		slog.String("record_id", auth.userID),
		slog.Int("accepted", sum.Accepted),
	)
	writeJSON(w, http.StatusOK, importResponse{
		UserID:    sum.Record.ID,
		State:     string(sum.Record.State),
		Accepted:  sum.Accepted,
		Dropped:   sum.Dropped,
		Submitted: sum.Submitted,
	})
}

// prune drops stale pending states. Caller holds g.mu.
func (g *GoogleImporter) prune() {
	cutoff := time.Now().Add(-stateTTL)
	for state, auth := range g.pending {
		if auth.createdAt.Before(cutoff) {
			delete(g.pending, state)
		}
	}
}

type peopleResponse struct {
	Connections []struct {
		Names []struct {
			DisplayName string `json:"displayName"`
		} `json:"names"`
		PhoneNumbers []struct {
			Value string `json:"value"`
		} `json:"phoneNumbers"`
		EmailAddresses []struct {
			Value string `json:"value"`
		} `json:"emailAddresses"`
	} `json:"connections"`
}

// fetchContacts reads the first page of the People API connections list.
func (g *GoogleImporter) fetchContacts(r *http.Request, token *oauth2.Token) ([]users.Contact, error) {
	client := g.oauth.Client(r.Context(), token)
	resp, err := client.Get(peopleEndpoint)
	if err != nil {
		return nil, fmt.Errorf("web: people api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("web: people api status %d: %s", resp.StatusCode, body)
	}

	var parsed peopleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("web: decode people response: %w", err)
	}

	out := make([]users.Contact, 0, len(parsed.Connections))
	for _, conn := range parsed.Connections {
		c := users.Contact{Source: users.SourceImport}
		if len(conn.Names) > 0 {
			c.Name = conn.Names[0].DisplayName
		}
		for _, p := range conn.PhoneNumbers {
			c.Phones = append(c.Phones, p.Value)
		}
		for _, e := range conn.EmailAddresses {
			c.Emails = append(c.Emails, e.Value)
		}
		out = append(out, c)
	}
	return out, nil
}
