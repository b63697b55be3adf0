package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"later/internal/core"
	"later/internal/extract"
	"later/internal/priority"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

// respondMappedError translates domain errors to HTTP statuses.
func (s *Server) respondMappedError(w http.ResponseWriter, err error) {
	var (
		validation   *core.ValidationError
		conflict     *core.ConflictError
		insufficient *core.InsufficientDataError
		timeout      *core.ProviderTimeoutError
	)
	switch {
	case errors.As(err, &validation):
		s.respondError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, core.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "item not found")
	case errors.As(err, &conflict):
		s.respondError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &insufficient):
		s.respondError(w, http.StatusUnprocessableEntity, insufficient.Error())
	case errors.As(err, &timeout):
		s.respondError(w, http.StatusGatewayTimeout, timeout.Error())
	default:
		s.log.Error("request failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateItemRequest is the POST /api/items body.
type CreateItemRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	prepared, err := extract.PrepareURL(req.URL)
	if err != nil {
		s.respondMappedError(w, err)
		return
	}

	item := &core.Item{
		ID:     uuid.NewString(),
		UserID: s.userID(r),
		URL:    prepared,
	}
	if err := s.store.CreateItem(r.Context(), item); err != nil {
		s.respondMappedError(w, err)
		return
	}

	s.runner.Launch(item)
	s.respondJSON(w, http.StatusAccepted, item)
}

// RankedItem pairs an item with its computed reading priority.
type RankedItem struct {
	*core.Item
	Priority float64 `json:"priority"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context(), s.userID(r))
	if err != nil {
		s.respondMappedError(w, err)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := items[:0]
		for _, item := range items {
			if item.ClientStatus == core.ClientStatus(status) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	if r.URL.Query().Get("sort") == "priority" {
		ranked := priority.Rank(items, time.Now().UTC())
		out := make([]RankedItem, len(ranked))
		for i, rk := range ranked {
			out[i] = RankedItem{Item: rk.Item, Priority: rk.Priority}
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItem(r.Context(), s.userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondMappedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.runner.Cancel(id)
	if err := s.store.DeleteItem(r.Context(), s.userID(r), id); err != nil {
		s.respondMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItem(r.Context(), s.userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondMappedError(w, err)
		return
	}
	if item.ServerStatus == core.ServerClassified {
		s.respondError(w, http.StatusConflict, "item already fully processed")
		return
	}
	s.runner.Launch(item)
	s.respondJSON(w, http.StatusAccepted, item)
}

// StatusRequest is the PATCH /api/items/{id}/status body.
type StatusRequest struct {
	Status core.ClientStatus `json:"status"`
}

var settableStatuses = map[core.ClientStatus]bool{
	core.ClientQueued:    true,
	core.ClientPaused:    true,
	core.ClientCompleted: true,
	core.ClientBookmark:  true,
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !settableStatuses[req.Status] {
		s.respondError(w, http.StatusBadRequest, "status must be queued, paused, completed, or bookmark")
		return
	}
	if err := s.store.SetClientStatus(r.Context(), s.userID(r), chi.URLParam(r, "id"), req.Status); err != nil {
		s.respondMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
