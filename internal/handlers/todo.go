package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"mytodos/internal/models"
)

type listResponse struct {
	Version uint64        `json:"version"`
	Items   []models.Item `json:"items"`
}

func (h *Handlers) respondList(w http.ResponseWriter, code int) {
	items, version := h.engine.Snapshot()
	h.respondJSON(w, code, listResponse{Version: version, Items: items})
}

// ListTodos returns the todo list in display order.
func (h *Handlers) ListTodos(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, http.StatusOK)
}

// CreateTodo appends a todo. The content comes from a form field or a
// JSON body. The new todo shows up in the list once the store confirms
// it, so the response is 202 rather than the todo itself.
func (h *Handlers) CreateTodo(w http.ResponseWriter, r *http.Request) {
	content, err := readContent(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := models.ValidateContent(content); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Create(r.Context(), content); err != nil {
		h.respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// DeleteTodo deletes a todo.
func (h *Handlers) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid todo id")
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.respondList(w, http.StatusOK)
}

// ReorderTodos moves active_id to the position of over_id. Unknown or
// equal ids leave the list as it is.
func (h *Handlers) ReorderTodos(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ActiveID string `json:"active_id"`
		OverID   string `json:"over_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.engine.Reorder(r.Context(), payload.ActiveID, payload.OverID); err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.respondList(w, http.StatusOK)
}

// UpdateTodoOrder sets the stored order of a single todo.
func (h *Handlers) UpdateTodoOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid todo id")
		return
	}

	var payload struct {
		Order *int `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.Order == nil {
		respondError(w, http.StatusBadRequest, "order is required")
		return
	}
	if err := models.ValidateOrder(*payload.Order); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.UpdateOrder(r.Context(), id, *payload.Order); err != nil {
		h.respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func readContent(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var payload struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return "", errors.New("invalid json")
		}
		return payload.Content, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", errors.New("invalid form data")
	}
	return r.FormValue("content"), nil
}
