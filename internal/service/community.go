// Package service contains the business rules of the API.
//
//	Handler (HTTP) → Service (rules, multi-step writes) → Repository → store
//
// The store has no transactions, so every operation that touches more than
// one row is a saga (see saga.go): its steps run in a fixed order, nothing is
// rolled back, and a failure after the first write is reported as a
// *apperror.PartialFailure. Membership rows are the source of truth for who
// belongs where; Profile.CommunityID and Profile.IsAdmin are a cache that
// every saga below rewrites right after the membership changes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/repository"
	"github.com/slapit/slapit-api/internal/store"
)

// CommunityService is the Community Registry.
type CommunityService struct {
	communities repository.CommunityRepository
	memberships repository.MembershipRepository
	profiles    repository.ProfileRepository
	logger      *slog.Logger
	now         func() time.Time
}

func NewCommunityService(
	communities repository.CommunityRepository,
	memberships repository.MembershipRepository,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
) *CommunityService {
	return &CommunityService{
		communities: communities,
		memberships: memberships,
		profiles:    profiles,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create makes a new community with adminID as its admin and first member:
//
//  1. community.insert
//  2. membership.insert   (admin, same timestamp)
//  3. profile.set_admin   (community_id = new id, is_admin = true)
//
// When step 1 succeeded the community is returned even if a later step
// failed, together with the *apperror.PartialFailure.
func (s *CommunityService) Create(ctx context.Context, name string, description *string, adminID string) (*model.Community, error) {
	name, err := requireText("name", name, MaxCommunityNameLength)
	if err != nil {
		return nil, err
	}
	if adminID, err = requireID("admin_id", adminID); err != nil {
		return nil, err
	}
	if description != nil {
		d := strings.TrimSpace(*description)
		if len(d) > MaxDescriptionLength {
			return nil, apperror.ValidationFailed("description", "description is too long")
		}
		description = &d
	}

	admin, err := s.profiles.GetByID(ctx, adminID)
	if err != nil {
		return nil, classify(s.logger, "loading admin profile", err)
	}
	if admin.InCommunity() {
		return nil, apperror.ConflictMessage("user " + adminID + " already belongs to community " + *admin.CommunityID)
	}

	now := s.now()
	community := &model.Community{
		Name:        name,
		Description: description,
		AdminID:     adminID,
		CreatedAt:   now,
	}

	run := startSaga(s.logger, "community.create")

	err = run.step(ctx, "community.insert", func(ctx context.Context) error {
		return classify(s.logger, "creating community", s.communities.Create(ctx, community))
	})
	if err != nil {
		return nil, run.finish(err)
	}

	err = run.step(ctx, "membership.insert", func(ctx context.Context) error {
		return classify(s.logger, "adding admin membership", s.memberships.Create(ctx, &model.Membership{
			CommunityID: community.ID,
			UserID:      adminID,
			JoinedAt:    now,
		}))
	})
	if err != nil {
		return community, run.finish(err)
	}

	err = run.step(ctx, "profile.set_admin", func(ctx context.Context) error {
		return classify(s.logger, "marking admin profile",
			s.profiles.SetCommunity(ctx, adminID, &community.ID, true))
	})
	return community, run.finish(err)
}

// Get returns the community or NotFound.
func (s *CommunityService) Get(ctx context.Context, id string) (*model.Community, error) {
	var err error
	if id, err = requireID("id", id); err != nil {
		return nil, err
	}
	c, err := s.communities.GetByID(ctx, id)
	if err != nil {
		return nil, classify(s.logger, "getting community", err)
	}
	return c, nil
}

// Join adds userID to the community and points their profile at it:
//
//  1. membership.insert
//  2. profile.set_community (community_id = C, is_admin = false)
//
// A user already pointing at another community is refused before any write.
// Every store refusal of the membership row (duplicate, unknown user or
// community, malformed id) is a Conflict carrying the store's message.
func (s *CommunityService) Join(ctx context.Context, communityID, userID string) error {
	var err error
	if communityID, err = requireID("community_id", communityID); err != nil {
		return err
	}
	if userID, err = requireID("user_id", userID); err != nil {
		return err
	}

	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ConflictMessage("no profile exists for user " + userID)
		}
		return classify(s.logger, "loading profile", err)
	}
	if profile.InCommunity() && *profile.CommunityID != communityID {
		return apperror.ConflictMessage("user " + userID + " already belongs to community " + *profile.CommunityID)
	}

	run := startSaga(s.logger, "community.join")

	err = run.step(ctx, "membership.insert", func(ctx context.Context) error {
		err := s.memberships.Create(ctx, &model.Membership{
			CommunityID: communityID,
			UserID:      userID,
			JoinedAt:    s.now(),
		})
		if ce, ok := store.AsConstraint(err); ok {
			return apperror.ConflictMessage(ce.Message)
		}
		return classify(s.logger, "adding membership", err)
	})
	if err != nil {
		return run.finish(err)
	}

	err = run.step(ctx, "profile.set_community", func(ctx context.Context) error {
		return classify(s.logger, "pointing profile at community",
			s.profiles.SetCommunity(ctx, userID, &communityID, false))
	})
	return run.finish(err)
}

// Quit removes userID from the community and clears their pointer. Removing
// a membership that does not exist is NotFound, not a no-op. The admin
// cannot quit: a community always has exactly one admin who is a member.
func (s *CommunityService) Quit(ctx context.Context, communityID, userID string) error {
	var err error
	if communityID, err = requireID("community_id", communityID); err != nil {
		return err
	}
	if userID, err = requireID("user_id", userID); err != nil {
		return err
	}

	c, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return classify(s.logger, "getting community", err)
	}
	if c.AdminID == userID {
		return apperror.Forbidden("the admin cannot leave their own community")
	}

	return s.removeMember(ctx, "community.quit", communityID, userID)
}

// Kick removes targetID on behalf of adminID, who must be the community's
// admin. The admin cannot kick themselves.
func (s *CommunityService) Kick(ctx context.Context, communityID, adminID, targetID string) error {
	var err error
	if communityID, err = requireID("community_id", communityID); err != nil {
		return err
	}
	if adminID, err = requireID("admin_id", adminID); err != nil {
		return err
	}
	if targetID, err = requireID("user_id", targetID); err != nil {
		return err
	}

	c, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return classify(s.logger, "getting community", err)
	}
	if c.AdminID != adminID {
		return apperror.Forbidden("only the community admin can kick members")
	}
	if targetID == adminID {
		return apperror.Forbidden("the admin cannot kick themselves")
	}

	return s.removeMember(ctx, "community.kick", communityID, targetID)
}

// removeMember is the shared body of Quit and Kick:
//
//  1. membership.delete
//  2. profile.clear_community
func (s *CommunityService) removeMember(ctx context.Context, saga, communityID, userID string) error {
	run := startSaga(s.logger, saga)

	err := run.step(ctx, "membership.delete", func(ctx context.Context) error {
		return classify(s.logger, "removing membership", s.memberships.Delete(ctx, communityID, userID))
	})
	if err != nil {
		return run.finish(err)
	}

	err = run.step(ctx, "profile.clear_community", func(ctx context.Context) error {
		return classify(s.logger, "clearing profile community",
			s.profiles.SetCommunity(ctx, userID, nil, false))
	})
	return run.finish(err)
}

// ListMembers returns the profiles whose pointer names the community. It
// reads the cached pointer, not the membership table; the Reconciler keeps
// the two in agreement.
func (s *CommunityService) ListMembers(ctx context.Context, communityID string) ([]model.Profile, error) {
	var err error
	if communityID, err = requireID("id", communityID); err != nil {
		return nil, err
	}
	if _, err := s.communities.GetByID(ctx, communityID); err != nil {
		return nil, classify(s.logger, "getting community", err)
	}

	members, err := s.profiles.ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, classify(s.logger, "listing members", err)
	}
	return members, nil
}
