package rowstore

import (
	"context"
	"fmt"
	"time"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/repository"
	"github.com/slapit/slapit-api/internal/store"
)

var _ repository.ProfileRepository = (*ProfileRepo)(nil)

type ProfileRepo struct {
	s store.Store
}

func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	rows, err := r.s.Insert(ctx, store.Profiles, store.Row{
		"auth_id":        p.AuthID,
		"username":       p.Username,
		"avatar_url":     encodeStringPtr(p.AvatarURL),
		"bio":            encodeStringPtr(p.Bio),
		"created_at":     encodeTime(p.CreatedAt),
		"last_login":     encodeTimePtr(p.LastLogin),
		"community_id":   encodeStringPtr(p.CommunityID),
		"is_admin":       p.IsAdmin,
		"total_stickers": p.TotalStickers,
		"score":          p.Score,
	})
	if err != nil {
		return fmt.Errorf("creating profile %s: %w", p.AuthID, err)
	}
	if len(rows) > 0 {
		stored, err := decodeProfile(rows[0])
		if err != nil {
			return fmt.Errorf("creating profile %s: %w", p.AuthID, err)
		}
		*p = *stored
	}
	return nil
}

func (r *ProfileRepo) GetByID(ctx context.Context, authID string) (*model.Profile, error) {
	rows, err := r.s.Find(ctx, store.Profiles, store.Query{
		Where:  store.Eq{"auth_id": authID},
		Single: true,
	})
	if err != nil {
		return nil, fmt.Errorf("getting profile %s: %w", authID, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("profile", authID)
	}
	return decodeProfile(rows[0])
}

func (r *ProfileRepo) Update(ctx context.Context, authID string, patch model.ProfilePatch) (*model.Profile, error) {
	row := store.Row{}
	if patch.Username != nil {
		row["username"] = *patch.Username
	}
	if patch.AvatarURL != nil {
		row["avatar_url"] = encodeClearable(*patch.AvatarURL)
	}
	if patch.Bio != nil {
		row["bio"] = encodeClearable(*patch.Bio)
	}
	if len(row) == 0 {
		return r.GetByID(ctx, authID)
	}
	return r.updateOne(ctx, authID, row, "updating")
}

func (r *ProfileRepo) SetCommunity(ctx context.Context, authID string, communityID *string, isAdmin bool) error {
	_, err := r.updateOne(ctx, authID, store.Row{
		"community_id": encodeStringPtr(communityID),
		"is_admin":     isAdmin,
	}, "setting community of")
	return err
}

func (r *ProfileRepo) ListByCommunity(ctx context.Context, communityID string) ([]model.Profile, error) {
	rows, err := r.s.Find(ctx, store.Profiles, store.Query{
		Where:   store.Eq{"community_id": communityID},
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, fmt.Errorf("listing profiles of community %s: %w", communityID, err)
	}
	return decodeProfiles(rows)
}

func (r *ProfileRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.Profile, error) {
	rows, err := r.s.Find(ctx, store.Profiles, store.Query{
		OrderBy: "auth_id",
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return decodeProfiles(rows)
}

// IncrementCounters needs a store.Incrementer. Without one it returns
// repository.ErrAtomicIncrementUnsupported and writes nothing.
func (r *ProfileRepo) IncrementCounters(ctx context.Context, authID string, stickers, score int64) (*model.Profile, error) {
	inc, ok := r.s.(store.Incrementer)
	if !ok {
		return nil, repository.ErrAtomicIncrementUnsupported
	}
	rows, err := inc.Increment(ctx, store.Profiles, store.Eq{"auth_id": authID}, map[string]int64{
		"total_stickers": stickers,
		"score":          score,
	})
	if err != nil {
		return nil, fmt.Errorf("incrementing counters of %s: %w", authID, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("profile", authID)
	}
	return decodeProfile(rows[0])
}

func (r *ProfileRepo) SetCounters(ctx context.Context, authID string, totalStickers, score int64) (*model.Profile, error) {
	return r.updateOne(ctx, authID, store.Row{
		"total_stickers": totalStickers,
		"score":          score,
	}, "setting counters of")
}

func (r *ProfileRepo) updateOne(ctx context.Context, authID string, patch store.Row, verb string) (*model.Profile, error) {
	rows, err := r.s.Update(ctx, store.Profiles, store.Eq{"auth_id": authID}, patch)
	if err != nil {
		return nil, fmt.Errorf("%s profile %s: %w", verb, authID, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("profile", authID)
	}
	return decodeProfile(rows[0])
}

func decodeProfile(row store.Row) (*model.Profile, error) {
	r := rowReader{row: row}
	p := &model.Profile{
		AuthID:        r.str("auth_id"),
		Username:      r.str("username"),
		AvatarURL:     r.strPtr("avatar_url"),
		Bio:           r.strPtr("bio"),
		CreatedAt:     r.timestamp("created_at"),
		LastLogin:     r.timePtr("last_login"),
		CommunityID:   r.strPtr("community_id"),
		IsAdmin:       r.boolean("is_admin"),
		TotalStickers: r.i64("total_stickers"),
		Score:         r.i64("score"),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decoding profile: %w", r.err)
	}
	return p, nil
}

func decodeProfiles(rows []store.Row) ([]model.Profile, error) {
	out := make([]model.Profile, 0, len(rows))
	for _, row := range rows {
		p, err := decodeProfile(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
