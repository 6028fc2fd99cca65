package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Seann-Moser/integrations"
	"github.com/Seann-Moser/integrations/oauth/omanager"
	"github.com/Seann-Moser/integrations/syncstatus"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
}

// respond maps an error to a status and a message safe to show users.
func respond(err error) (int, string) {
	var cf *omanager.ConnectionFailedError
	switch {
	case errors.Is(err, integrations.ErrUnknownProvider):
		return http.StatusNotFound, "unknown integration"
	case errors.Is(err, omanager.ErrNotConfigured):
		return http.StatusServiceUnavailable, omanager.UserMessage(err)
	case errors.Is(err, omanager.ErrMissingOrganization), errors.Is(err, syncstatus.ErrMissingOrganization):
		return http.StatusBadRequest, "organization required"
	case errors.Is(err, omanager.ErrInvalidState):
		return http.StatusBadRequest, omanager.UserMessage(err)
	case errors.As(err, &cf):
		if cf.Retryable {
			return http.StatusBadGateway, omanager.UserMessage(err)
		}
		return http.StatusBadRequest, omanager.UserMessage(err)
	case errors.Is(err, omanager.ErrNotConnected), errors.Is(err, omanager.ErrReauthorizationRequired),
		errors.Is(err, syncstatus.ErrNotConnected):
		return http.StatusConflict, omanager.MessageReconnect
	case errors.Is(err, omanager.ErrTransientRefresh):
		return http.StatusServiceUnavailable, omanager.UserMessage(err)
	case errors.Is(err, syncstatus.ErrSyncInProgress):
		return http.StatusConflict, "sync already in progress"
	case errors.Is(err, syncstatus.ErrInvalidDirection):
		return http.StatusBadRequest, "invalid sync direction"
	case errors.Is(err, syncstatus.ErrDispatchFailed):
		return http.StatusServiceUnavailable, "sync could not be started, try again"
	}
	return http.StatusInternalServerError, "internal error"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := respond(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
