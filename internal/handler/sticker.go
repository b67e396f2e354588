package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/service"
)

// StickerHandler serves the /stickers routes.
type StickerHandler struct {
	intake *service.StickerService
	logger *slog.Logger
}

func NewStickerHandler(intake *service.StickerService, logger *slog.Logger) *StickerHandler {
	return &StickerHandler{intake: intake, logger: logger}
}

// createStickerRequest uses pointers for the coordinates so that a missing
// value is told apart from 0.
type createStickerRequest struct {
	CommunityID string   `json:"community_id"`
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	ImageURL    string   `json:"image_url"`
	Long        *float64 `json:"long"`
	Lat         *float64 `json:"lat"`
	AuthID      string   `json:"auth_id"`
}

// HandleCreate posts a sticker and credits the poster.
//
// HTTP: POST /stickers
// RESPONSE: {"ok": true, "id": "<uuid>"}
func (h *StickerHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createStickerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid sticker JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if req.Long == nil {
		writeError(w, apperror.ValidationFailed("long", "long is required"))
		return
	}
	if req.Lat == nil {
		writeError(w, apperror.ValidationFailed("lat", "lat is required"))
		return
	}

	in := service.NewSticker{
		CommunityID: req.CommunityID,
		Title:       req.Title,
		ImageURL:    req.ImageURL,
		Long:        *req.Long,
		Lat:         *req.Lat,
		AuthID:      req.AuthID,
	}
	if req.Description != nil {
		in.Description = *req.Description
	}

	st, err := h.intake.Create(r.Context(), in)
	if err != nil {
		id := ""
		if st != nil {
			id = st.ID
			h.logger.Warn("sticker created with errors", slog.String("id", id), slog.String("error", err.Error()))
		}
		writeErrorWithID(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, ID: st.ID})
}

// HandleGet returns one sticker.
//
// HTTP: GET /stickers/{id}
func (h *StickerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.intake.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleDelete removes a sticker. The poster keeps the credit.
//
// HTTP: DELETE /stickers/{id}
func (h *StickerHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.intake.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "sticker deleted"})
}
