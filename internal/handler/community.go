package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/service"
)

// CommunityHandler serves the /communities routes.
type CommunityHandler struct {
	registry *service.CommunityService
	logger   *slog.Logger
}

func NewCommunityHandler(registry *service.CommunityService, logger *slog.Logger) *CommunityHandler {
	return &CommunityHandler{registry: registry, logger: logger}
}

type createCommunityRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	AdminID     string  `json:"admin_id"`
}

// HandleCreate creates a community owned by admin_id.
//
// HTTP: POST /communities
// REQUEST BODY: {"name": "Paris", "description": "city stickers", "admin_id": "<uuid>"}
func (h *CommunityHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCommunityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid community JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	c, err := h.registry.Create(r.Context(), req.Name, req.Description, req.AdminID)
	if err != nil {
		id := ""
		if c != nil {
			id = c.ID
			h.logger.Warn("community created with errors", slog.String("id", id), slog.String("error", err.Error()))
		}
		writeErrorWithID(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleGet returns one community.
//
// HTTP: GET /communities/{id}
func (h *CommunityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type joinRequest struct {
	UserID string `json:"user_id"`
}

// HandleJoin adds user_id to the community.
//
// HTTP: POST /communities/{id}/join
// REQUEST BODY: {"user_id": "<uuid>"}
func (h *CommunityHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid join JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	if err := h.registry.Join(r.Context(), chi.URLParam(r, "id"), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleQuit removes the caller from the community.
//
// HTTP: DELETE /communities/{id}/quit?user_id=<uuid>
func (h *CommunityHandler) HandleQuit(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if err := h.registry.Quit(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "left the community"})
}

// HandleKick lets the admin remove another member.
//
// HTTP: DELETE /communities/{id}/kick?admin_id=<uuid>&user_id=<uuid>
func (h *CommunityHandler) HandleKick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.registry.Kick(r.Context(), chi.URLParam(r, "id"), q.Get("admin_id"), q.Get("user_id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "user removed from the community"})
}

type communityUsersResponse struct {
	CommunityUsers []model.Profile `json:"community_users"`
}

// HandleListMembers returns the profiles that point at the community.
//
// HTTP: GET /communities/{id}/users
func (h *CommunityHandler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.registry.ListMembers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if members == nil {
		members = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, communityUsersResponse{CommunityUsers: members})
}
