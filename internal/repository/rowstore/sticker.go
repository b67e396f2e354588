package rowstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/repository"
	"github.com/slapit/slapit-api/internal/store"
)

var _ repository.StickerRepository = (*StickerRepo)(nil)

type StickerRepo struct {
	s store.Store
}

func (r *StickerRepo) Create(ctx context.Context, st *model.Sticker) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	rows, err := r.s.Insert(ctx, store.Stickers, store.Row{
		"id":           st.ID,
		"community_id": st.CommunityID,
		"title":        st.Title,
		"description":  st.Description,
		"image_url":    st.ImageURL,
		"long":         st.Long,
		"lat":          st.Lat,
		"auth_id":      st.AuthID,
		"created_at":   encodeTime(st.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("creating sticker: %w", err)
	}
	if len(rows) > 0 {
		stored, err := decodeSticker(rows[0])
		if err != nil {
			return fmt.Errorf("creating sticker: %w", err)
		}
		*st = *stored
	}
	return nil
}

func (r *StickerRepo) GetByID(ctx context.Context, id string) (*model.Sticker, error) {
	rows, err := r.s.Find(ctx, store.Stickers, store.Query{
		Where:  store.Eq{"id": id},
		Single: true,
	})
	if err != nil {
		return nil, fmt.Errorf("getting sticker %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("sticker", id)
	}
	return decodeSticker(rows[0])
}

func (r *StickerRepo) Delete(ctx context.Context, id string) error {
	rows, err := r.s.Delete(ctx, store.Stickers, store.Eq{"id": id})
	if err != nil {
		return fmt.Errorf("deleting sticker %s: %w", id, err)
	}
	if len(rows) == 0 {
		return apperror.NotFound("sticker", id)
	}
	return nil
}

func (r *StickerRepo) ListByUser(ctx context.Context, authID string, opts repository.ListOptions) ([]model.Sticker, error) {
	rows, err := r.s.Find(ctx, store.Stickers, store.Query{
		Where:   store.Eq{"auth_id": authID},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing stickers of %s: %w", authID, err)
	}

	out := make([]model.Sticker, 0, len(rows))
	for _, row := range rows {
		st, err := decodeSticker(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func decodeSticker(row store.Row) (*model.Sticker, error) {
	r := rowReader{row: row}
	st := &model.Sticker{
		ID:          r.str("id"),
		CommunityID: r.str("community_id"),
		Title:       r.str("title"),
		Description: r.str("description"),
		ImageURL:    r.str("image_url"),
		Long:        r.f64("long"),
		Lat:         r.f64("lat"),
		AuthID:      r.str("auth_id"),
		CreatedAt:   r.timestamp("created_at"),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decoding sticker: %w", r.err)
	}
	return st, nil
}
