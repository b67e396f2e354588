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

var _ repository.MembershipRepository = (*MembershipRepo)(nil)

type MembershipRepo struct {
	s store.Store
}

func (r *MembershipRepo) Create(ctx context.Context, m *model.Membership) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	_, err := r.s.Insert(ctx, store.Memberships, store.Row{
		"community_id": m.CommunityID,
		"user_id":      m.UserID,
		"joined_at":    encodeTime(m.JoinedAt),
	})
	if err != nil {
		return fmt.Errorf("creating membership (%s, %s): %w", m.CommunityID, m.UserID, err)
	}
	return nil
}

// Delete reports NotFound when the pair had no row; removing nothing is not
// a success.
func (r *MembershipRepo) Delete(ctx context.Context, communityID, userID string) error {
	rows, err := r.s.Delete(ctx, store.Memberships, store.Eq{
		"community_id": communityID,
		"user_id":      userID,
	})
	if err != nil {
		return fmt.Errorf("deleting membership (%s, %s): %w", communityID, userID, err)
	}
	if len(rows) == 0 {
		return apperror.NotFound("membership", communityID+"/"+userID)
	}
	return nil
}

func (r *MembershipRepo) ListByUser(ctx context.Context, userID string) ([]model.Membership, error) {
	rows, err := r.s.Find(ctx, store.Memberships, store.Query{
		Where:   store.Eq{"user_id": userID},
		OrderBy: "joined_at",
	})
	if err != nil {
		return nil, fmt.Errorf("listing memberships of %s: %w", userID, err)
	}
	return decodeMemberships(rows)
}

func (r *MembershipRepo) List(ctx context.Context) ([]model.Membership, error) {
	rows, err := r.s.Find(ctx, store.Memberships, store.Query{OrderBy: "joined_at"})
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	return decodeMemberships(rows)
}

func decodeMemberships(rows []store.Row) ([]model.Membership, error) {
	out := make([]model.Membership, 0, len(rows))
	for _, row := range rows {
		r := rowReader{row: row}
		m := model.Membership{
			CommunityID: r.str("community_id"),
			UserID:      r.str("user_id"),
			JoinedAt:    r.timestamp("joined_at"),
		}
		if r.err != nil {
			return nil, fmt.Errorf("decoding membership: %w", r.err)
		}
		out = append(out, m)
	}
	return out, nil
}
