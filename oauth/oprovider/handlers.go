package oprovider

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

const contentTypeForm = "application/x-www-form-urlencoded"

type Handler struct {
	server       *Server
	accountParam string
}

// NewHandler serves s. accountParam names the query parameter that carries
// the account id on the authorize redirect, e.g. "realmId".
func NewHandler(s *Server, accountParam string) *Handler {
	return &Handler{server: s, accountParam: accountParam}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get(AuthorizePath, h.Authorize)
	r.Post(TokenPath, h.Token)
	r.Post(RevokePath, h.Revoke)
	return r
}

func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := AuthRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
	resp, err := h.server.Authorize(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		writeError(w, oauthError(http.StatusBadRequest, "invalid_request", "invalid redirect_uri"))
		return
	}
	s := u.Query()
	s.Set("code", resp.Code)
	if resp.State != "" {
		s.Set("state", resp.State)
	}
	if h.accountParam != "" {
		s.Set(h.accountParam, resp.AccountID)
	}
	u.RawQuery = s.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		writeError(w, oauthError(http.StatusBadRequest, "invalid_request", ""))
		return
	}
	req.ClientID, req.ClientSecret = clientCredentials(r, req.ClientID, req.ClientSecret)
	resp, err := h.server.Token(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	req, err := parseRevocationRequest(r)
	if err != nil {
		writeError(w, oauthError(http.StatusBadRequest, "invalid_request", ""))
		return
	}
	req.ClientID, req.ClientSecret = clientCredentials(r, req.ClientID, req.ClientSecret)
	if err := h.server.Revoke(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// clientCredentials prefers HTTP Basic auth, whose parts are form-encoded per RFC 6749 section 2.3.1.
func clientCredentials(r *http.Request, formID, formSecret string) (string, string) {
	id, secret, ok := r.BasicAuth()
	if !ok {
		return formID, formSecret
	}
	if v, err := url.QueryUnescape(id); err == nil {
		id = v
	}
	if v, err := url.QueryUnescape(secret); err == nil {
		secret = v
	}
	return id, secret
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var oe *ErrorResponse
	if !errors.As(err, &oe) {
		oe = oauthError(http.StatusInternalServerError, "server_error", "")
	}
	writeJSON(w, oe.status, oe)
}

// parseTokenRequest supports both form and JSON bodies.
func parseTokenRequest(r *http.Request) (TokenRequest, error) {
	var req TokenRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), contentTypeForm) {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req = TokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			RefreshToken: r.PostForm.Get("refresh_token"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
		}
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func parseRevocationRequest(r *http.Request) (RevocationRequest, error) {
	var req RevocationRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), contentTypeForm) {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req = RevocationRequest{
			Token:        r.PostForm.Get("token"),
			TokenType:    r.PostForm.Get("token_type_hint"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
		}
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}
