package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/auth"
	"github.com/pharmadesk/pharmadesk/internal/ops"
)

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

type clientPayload struct {
	ClientID  int64     `json:"client_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile,omitempty"`
	DayPhone  string    `json:"day_phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func clientToPayload(c ops.Client) clientPayload {
	return clientPayload{
		ClientID:  c.ClientID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Mobile:    c.Mobile,
		DayPhone:  c.DayPhone,
		CreatedAt: c.CreatedAt,
	}
}

func handleListClients(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	clients, err := deps.Repo.ListClients(r.Context(), ops.ListClientsInput{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list clients")
		return
	}
	payloads := make([]clientPayload, 0, len(clients))
	for _, c := range clients {
		payloads = append(payloads, clientToPayload(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": payloads})
}

func handleCreateClient(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Mobile    string `json:"mobile"`
		DayPhone  string `json:"day_phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "first_name and last_name are required")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	client, err := deps.Repo.CreateClient(r.Context(), ops.CreateClientInput{
		Actor:     auth.Actor(r.Context(), deps.DefaultActor),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Mobile:    req.Mobile,
		DayPhone:  req.DayPhone,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create client")
		return
	}
	writeJSON(w, http.StatusCreated, clientToPayload(client))
}

func handleGetClient(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	client, err := deps.Repo.GetClient(r.Context(), id)
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load client")
		return
	}
	writeJSON(w, http.StatusOK, clientToPayload(client))
}

func handlePatchClient(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
		Mobile    *string `json:"mobile"`
		DayPhone  *string `json:"day_phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	client, err := deps.Repo.UpdateClient(r.Context(), ops.UpdateClientInput{
		Actor:     auth.Actor(r.Context(), deps.DefaultActor),
		ClientID:  id,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Mobile:    req.Mobile,
		DayPhone:  req.DayPhone,
	})
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to update client")
		return
	}
	writeJSON(w, http.StatusOK, clientToPayload(client))
}
