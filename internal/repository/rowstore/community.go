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

var _ repository.CommunityRepository = (*CommunityRepo)(nil)

type CommunityRepo struct {
	s store.Store
}

// Create inserts the community. An empty ID or zero CreatedAt is filled in
// here; the caller's values win otherwise.
func (r *CommunityRepo) Create(ctx context.Context, c *model.Community) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	rows, err := r.s.Insert(ctx, store.Communities, store.Row{
		"id":          c.ID,
		"name":        c.Name,
		"description": encodeStringPtr(c.Description),
		"admin_id":    c.AdminID,
		"created_at":  encodeTime(c.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("creating community: %w", err)
	}
	if len(rows) > 0 {
		stored, err := decodeCommunity(rows[0])
		if err != nil {
			return fmt.Errorf("creating community: %w", err)
		}
		*c = *stored
	}
	return nil
}

func (r *CommunityRepo) GetByID(ctx context.Context, id string) (*model.Community, error) {
	rows, err := r.s.Find(ctx, store.Communities, store.Query{
		Where:  store.Eq{"id": id},
		Single: true,
	})
	if err != nil {
		return nil, fmt.Errorf("getting community %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("community", id)
	}
	return decodeCommunity(rows[0])
}

func decodeCommunity(row store.Row) (*model.Community, error) {
	r := rowReader{row: row}
	c := &model.Community{
		ID:          r.str("id"),
		Name:        r.str("name"),
		Description: r.strPtr("description"),
		AdminID:     r.str("admin_id"),
		CreatedAt:   r.timestamp("created_at"),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decoding community: %w", r.err)
	}
	return c, nil
}
