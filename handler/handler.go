// Package handler exposes the connection lifecycle and sync status over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/Seann-Moser/integrations"
	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/metrics"
	"github.com/Seann-Moser/integrations/oauth/omanager"
	"github.com/Seann-Moser/integrations/session"
	"github.com/Seann-Moser/integrations/syncstatus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	registry *integrations.Registry
	status   *syncstatus.Service
	trigger  *syncstatus.Trigger
	sessions *session.Client
	log      *zap.Logger
}

func New(registry *integrations.Registry, status *syncstatus.Service, trigger *syncstatus.Trigger, sessions *session.Client, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{registry: registry, status: status, trigger: trigger, sessions: sessions, log: log}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/integrations", func(r chi.Router) {
		r.Use(h.sessions.Middleware)
		r.Get("/", h.list)
		r.Route("/{provider}", func(r chi.Router) {
			r.Get("/connect", h.connect)
			r.Get("/callback", h.callback)
			r.Get("/status", h.connectionStatus)
			r.Post("/disconnect", h.disconnect)
			r.Post("/sync", h.sync)
		})
	})
	return r
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": h.registry.Providers()})
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	id, _ := session.FromContext(r.Context())
	m, err := h.registry.Manager(chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	target, err := m.BeginAuthorization(r.Context(), id.OrganizationID, r.URL.Query().Get("return_to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// callback finishes the provider redirect. With a return path in the state
// the browser is sent back there with the outcome in the query string.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	m, err := h.registry.Manager(provider)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	state := q.Get("state")
	returnTo := m.ReturnContext(state)

	code := q.Get("code")
	if q.Get("error") != "" {
		h.log.Info("authorization denied at provider", zap.String("provider", provider), zap.String("error", q.Get("error")))
		code = ""
	}
	var c *connection.Connection
	id, _ := session.FromContext(r.Context())
	if org := m.Organization(state); org != "" && (id == nil || org != id.OrganizationID) {
		h.log.Warn("authorization callback from another organization", zap.String("provider", provider))
		err = omanager.ErrInvalidState
	} else {
		c, err = m.CompleteAuthorization(r.Context(), code, state, q.Get(m.Provider().AccountIDParam))
	}
	if returnTo != "" {
		http.Redirect(w, r, withOutcome(returnTo, provider, err), http.StatusFound)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func withOutcome(path, provider string, err error) string {
	u, perr := url.Parse(path)
	if perr != nil {
		return "/"
	}
	v := u.Query()
	v.Set("integration", provider)
	if err != nil {
		v.Set("status", "error")
		v.Set("message", omanager.UserMessage(err))
	} else {
		v.Set("status", "connected")
	}
	u.RawQuery = v.Encode()
	return u.String()
}

func (h *Handler) connectionStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := session.FromContext(r.Context())
	p, ok := h.registry.Provider(chi.URLParam(r, "provider"))
	if !ok {
		h.writeError(w, r, integrations.ErrUnknownProvider)
		return
	}
	resp := statusResponse{Provider: p.Type, Name: p.Name, Category: p.Category}
	m, err := h.registry.Manager(string(p.Type))
	switch {
	case err == nil:
		resp.Configured = true
	case !errors.Is(err, omanager.ErrNotConfigured):
		h.writeError(w, r, err)
		return
	}

	key := connection.Key{OrganizationID: id.OrganizationID, Provider: p.Type}
	if m != nil {
		c, err := m.Connection(r.Context(), id.OrganizationID)
		switch {
		case err == nil:
			v := viewOf(c)
			resp.Connection = &v
			resp.Connected = c.Connected
			resp.ReconnectRequired = !c.Connected
		case !errors.Is(err, omanager.ErrNotConnected):
			h.writeError(w, r, err)
			return
		}
	}
	if resp.Health, err = h.status.Health(r.Context(), key); err != nil {
		h.writeError(w, r, err)
		return
	}
	if resp.History, err = h.status.History(r.Context(), key); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	id, _ := session.FromContext(r.Context())
	m, err := h.registry.Manager(chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := m.Disconnect(r.Context(), id.OrganizationID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncBody struct {
	Direction   syncstatus.Direction `json:"direction"`
	EntityTypes []string             `json:"entityTypes"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	id, _ := session.FromContext(r.Context())
	p, ok := h.registry.Provider(chi.URLParam(r, "provider"))
	if !ok {
		h.writeError(w, r, integrations.ErrUnknownProvider)
		return
	}
	var body syncBody
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
			return
		}
	}
	req, err := h.trigger.TriggerSync(r.Context(), syncstatus.SyncInput{
		OrganizationID: id.OrganizationID,
		Provider:       p.Type,
		Direction:      body.Direction,
		EntityTypes:    body.EntityTypes,
		RequestedBy:    id.UserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

type connectionView struct {
	Provider            connection.ProviderType `json:"provider"`
	Connected           bool                    `json:"connected"`
	ProviderAccountID   string                  `json:"providerAccountId"`
	ProviderAccountName string                  `json:"providerAccountName,omitempty"`
	LastSyncAt          *time.Time              `json:"lastSyncAt,omitempty"`
	SyncStatus          connection.SyncStatus   `json:"syncStatus"`
	ItemsSyncedLast24h  int                     `json:"itemsSyncedLast24h"`
	ErrorCount          int                     `json:"errorCount"`
	CreatedAt           time.Time               `json:"createdAt"`
	UpdatedAt           time.Time               `json:"updatedAt"`
}

// viewOf drops the tokens.
func viewOf(c *connection.Connection) connectionView {
	return connectionView{
		Provider:            c.Provider,
		Connected:           c.Connected,
		ProviderAccountID:   c.ProviderAccountID,
		ProviderAccountName: c.ProviderAccountName,
		LastSyncAt:          c.LastSyncAt,
		SyncStatus:          c.SyncStatus,
		ItemsSyncedLast24h:  c.ItemsSyncedLast24h,
		ErrorCount:          c.ErrorCount,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

type statusResponse struct {
	Provider          connection.ProviderType       `json:"provider"`
	Name              string                        `json:"name"`
	Category          string                        `json:"category"`
	Configured        bool                          `json:"configured"`
	Connected         bool                          `json:"connected"`
	ReconnectRequired bool                          `json:"reconnectRequired"`
	Connection        *connectionView               `json:"connection,omitempty"`
	Health            syncstatus.SyncHealthSummary  `json:"health"`
	History           syncstatus.SyncHistorySummary `json:"history"`
}
