// Package repository defines the typed data-access interfaces the services
// depend on. Implementations live in subpackages (rowstore) and hand-written
// mocks live next to the service tests.
//
// Conventions shared by every implementation:
//   - Get/Delete/Update of a missing row return apperror.NotFound.
//   - Store failures are returned wrapped, with the *store.ConstraintError
//     (if any) still in the chain. Translating them into error kinds is the
//     service layer's job.
package repository

import (
	"context"
	"errors"

	"github.com/slapit/slapit-api/internal/model"
)

// ErrAtomicIncrementUnsupported is returned by ProfileRepository.IncrementCounters
// when the underlying store cannot add to a column in a single statement.
var ErrAtomicIncrementUnsupported = errors.New("store does not support atomic increment")

type ListOptions struct {
	Limit  int
	Offset int
}

type CommunityRepository interface {
	Create(ctx context.Context, community *model.Community) error
	GetByID(ctx context.Context, id string) (*model.Community, error)
}

type MembershipRepository interface {
	Create(ctx context.Context, m *model.Membership) error
	// Delete removes the (community, user) row. NotFound when there was none.
	Delete(ctx context.Context, communityID, userID string) error
	ListByUser(ctx context.Context, userID string) ([]model.Membership, error)
	List(ctx context.Context) ([]model.Membership, error)
}

type ProfileRepository interface {
	Create(ctx context.Context, profile *model.Profile) error
	GetByID(ctx context.Context, authID string) (*model.Profile, error)
	// Update applies the non-nil patch fields. NotFound when no row matched.
	Update(ctx context.Context, authID string, patch model.ProfilePatch) (*model.Profile, error)
	// SetCommunity rewrites the denormalized membership pointer and admin flag.
	// A nil communityID clears the pointer.
	SetCommunity(ctx context.Context, authID string, communityID *string, isAdmin bool) error
	ListByCommunity(ctx context.Context, communityID string) ([]model.Profile, error)
	// List pages through every profile ordered by auth_id.
	List(ctx context.Context, opts ListOptions) ([]model.Profile, error)
	// IncrementCounters adds to total_stickers and score in one store call.
	IncrementCounters(ctx context.Context, authID string, stickers, score int64) (*model.Profile, error)
	// SetCounters overwrites both counters; the read-then-write fallback.
	SetCounters(ctx context.Context, authID string, totalStickers, score int64) (*model.Profile, error)
}

type StickerRepository interface {
	Create(ctx context.Context, sticker *model.Sticker) error
	GetByID(ctx context.Context, id string) (*model.Sticker, error)
	Delete(ctx context.Context, id string) error
	// ListByUser returns the poster's stickers, newest first.
	ListByUser(ctx context.Context, authID string, opts ListOptions) ([]model.Sticker, error)
}
