package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/service"
)

// ProfileHandler serves the /users routes.
type ProfileHandler struct {
	ledger *service.ProfileService
	intake *service.StickerService
	logger *slog.Logger
}

func NewProfileHandler(ledger *service.ProfileService, intake *service.StickerService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{ledger: ledger, intake: intake, logger: logger}
}

type createProfileRequest struct {
	AuthID    string  `json:"auth_id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
}

// HandleCreate provisions the profile of a freshly registered identity.
//
// HTTP: POST /users/profiles
func (h *ProfileHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid profile JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	p, err := h.ledger.Provision(r.Context(), req.AuthID, req.Username, req.AvatarURL, req.Bio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleGet returns a profile.
//
// HTTP: GET /users/{auth_id}
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.ledger.Fetch(r.Context(), chi.URLParam(r, "auth_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdate applies a partial update; absent fields are left alone.
//
// HTTP: PUT /users/{auth_id}
// REQUEST BODY: any of {"username", "avatar_url", "bio"}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch model.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.logger.Warn("invalid profile patch JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	p, err := h.ledger.Update(r.Context(), chi.URLParam(r, "auth_id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleListStickers returns the user's stickers, newest first.
//
// HTTP: GET /users/{auth_id}/stickers?limit=20&offset=0
func (h *ProfileHandler) HandleListStickers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.logger.Warn("invalid paging parameter", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.logger.Warn("invalid paging parameter", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	stickers, err := h.intake.ListByUser(r.Context(), chi.URLParam(r, "auth_id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if stickers == nil {
		stickers = []model.Sticker{}
	}
	writeJSON(w, http.StatusOK, stickers)
}
