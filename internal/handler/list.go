package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tasklists/internal/auth"
	"github.com/sakif/tasklists/internal/model"
	"github.com/sakif/tasklists/internal/service"
)

// maxBodyBytes caps request bodies; a list with its tasks is small.
const maxBodyBytes = 1 << 20

// ListService is what ListHandler needs from the service layer.
// *service.ListService satisfies it; tests can pass a fake.
type ListService interface {
	Index(ctx context.Context) ([]model.List, error)
	Mine(ctx context.Context, requester model.Requester) ([]model.List, error)
	Show(ctx context.Context, id string) (*model.List, error)
	Create(ctx context.Context, requester model.Requester, in service.CreateListInput) (*model.List, error)
	Update(ctx context.Context, requester model.Requester, id string, update service.ListUpdate) (*model.List, error)
	Destroy(ctx context.Context, requester model.Requester, id string) error
}

// ListHandler is the HTTP face of the list operations.
//
// HANDLER RESPONSIBILITIES:
//   - HandleIndex  → GET    /api/lists       (admin)
//   - HandleMine   → GET    /api/lists/mine
//   - HandleShow   → GET    /api/lists/{id}  (admin)
//   - HandleCreate → POST   /api/lists
//   - HandleUpdate → PUT    /api/lists/{id}  (also PATCH)
//   - HandleDelete → DELETE /api/lists/{id}
//
// Auth gates run before these handlers (see Server.setupRoutes), so every
// handler can count on a Requester being in the context.
type ListHandler struct {
	lists  ListService
	logger *slog.Logger
}

// NewListHandler creates a ListHandler.
func NewListHandler(lists ListService, logger *slog.Logger) *ListHandler {
	return &ListHandler{lists: lists, logger: logger}
}

// HandleIndex returns every list.
func (h *ListHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	lists, err := h.lists.Index(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// HandleMine returns the requester's own lists; [] when there are none.
func (h *ListHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	lists, err := h.lists.Mine(r.Context(), requester)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// HandleShow returns one list.
//
// HTTP: GET /api/lists/{id}
// chi.URLParam reads the {id} segment of the matched route pattern.
func (h *ListHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	list, err := h.lists.Show(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate stores a new list owned by the requester.
//
// HTTP: POST /api/lists
// REQUEST BODY: {"title": "groceries"}
//
// Only the title is read from the body. id, created_at, tasks and by are
// set by the server, so values sent for them are dropped during decoding.
func (h *ListHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var in service.CreateListInput
	if !h.decode(w, r, &in) {
		return
	}

	list, err := h.lists.Create(r.Context(), requester, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT or PATCH /api/lists/{id}
// REQUEST BODY: {"title": "new title", "tasks": [{"text": "milk", "done": false}]}
//
// The list id always comes from the URL; an "id" in the body is ignored.
func (h *ListHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var update service.ListUpdate
	if !h.decode(w, r, &update) {
		return
	}

	list, err := h.lists.Update(r.Context(), requester, chi.URLParam(r, "id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleDelete removes a list.
//
// HTTP: DELETE /api/lists/{id}
// 204 No Content on success.
func (h *ListHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	if err := h.lists.Destroy(r.Context(), requester, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requester pulls the authenticated caller out of the context, answering
// 401 itself when there is none.
func (h *ListHandler) requester(w http.ResponseWriter, r *http.Request) (model.Requester, bool) {
	requester, ok := auth.RequesterFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return model.Requester{}, false
	}
	return requester, true
}

// decode reads a JSON body into dst. An empty body decodes to the zero
// value; malformed JSON is answered with 400.
func (h *ListHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid list JSON",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
