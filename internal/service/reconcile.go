package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/metrics"
	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/repository"
)

const reconcilePageSize = 200

// Report summarizes one reconciliation pass.
type Report struct {
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Memberships     int       `json:"memberships"`
	CheckedProfiles int       `json:"checked_profiles"`
	PointersCleared int       `json:"pointers_cleared"`
	PointersSet     int       `json:"pointers_set"`
	AdminFlagsFixed int       `json:"admin_flags_fixed"`
	Conflicting     int       `json:"conflicting"`
	Skipped         int       `json:"skipped"`
	Failed          int       `json:"failed"`
}

// Reconciler brings profile pointers back in line with membership rows,
// which are authoritative. Sagas that fail halfway leave exactly the kind
// of drift it repairs.
type Reconciler struct {
	communities repository.CommunityRepository
	memberships repository.MembershipRepository
	profiles    repository.ProfileRepository
	logger      *slog.Logger

	running sync.Mutex
}

func NewReconciler(
	communities repository.CommunityRepository,
	memberships repository.MembershipRepository,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		communities: communities,
		memberships: memberships,
		profiles:    profiles,
		logger:      logger.With(slog.String("component", "reconciler")),
	}
}

// Run makes one pass over every profile. For each profile the wanted
// pointer is:
//
//	its current community, if a membership row backs it
//	else its only membership, if it has exactly one
//	else nothing, if it has none
//
// and is_admin is wanted iff the user is that community's admin. A profile
// with several memberships and no backed pointer is counted as conflicting
// and left alone. Failed writes are counted and the pass goes on; failed
// reads end it.
//
// The membership snapshot is taken once, so before any repair the user's
// membership rows and profile are read again. If either moved since the
// snapshot a saga ran in between; the profile is counted as skipped and
// left for the next pass.
//
// Only one pass runs at a time; a concurrent call gets Conflict.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	if !r.running.TryLock() {
		return Report{}, apperror.ConflictMessage("reconciliation already running")
	}
	defer r.running.Unlock()

	rep := Report{StartedAt: time.Now().UTC()}

	all, err := r.memberships.List(ctx)
	if err != nil {
		return rep, classify(r.logger, "listing memberships", err)
	}
	rep.Memberships = len(all)

	byUser := make(map[string][]string)
	for _, m := range all {
		byUser[m.UserID] = append(byUser[m.UserID], m.CommunityID)
	}

	admins := make(map[string]string) // community id -> admin id
	adminOf := func(ctx context.Context, communityID string) (string, error) {
		if id, ok := admins[communityID]; ok {
			return id, nil
		}
		c, err := r.communities.GetByID(ctx, communityID)
		if errors.Is(err, apperror.ErrNotFound) {
			admins[communityID] = ""
			return "", nil
		}
		if err != nil {
			return "", err
		}
		admins[communityID] = c.AdminID
		return c.AdminID, nil
	}

	for offset := 0; ; offset += reconcilePageSize {
		page, err := r.profiles.List(ctx, repository.ListOptions{Limit: reconcilePageSize, Offset: offset})
		if err != nil {
			return rep, classify(r.logger, "listing profiles", err)
		}
		for i := range page {
			if err := r.reconcileProfile(ctx, &page[i], byUser[page[i].AuthID], adminOf, &rep); err != nil {
				return rep, classify(r.logger, "reconciling profile "+page[i].AuthID, err)
			}
		}
		if len(page) < reconcilePageSize {
			break
		}
	}

	rep.FinishedAt = time.Now().UTC()
	metrics.RecordReconcileRepairs("pointer_cleared", rep.PointersCleared)
	metrics.RecordReconcileRepairs("pointer_set", rep.PointersSet)
	metrics.RecordReconcileRepairs("admin_flag", rep.AdminFlagsFixed)

	r.logger.Info("reconciliation finished",
		slog.Int("profiles", rep.CheckedProfiles),
		slog.Int("pointers_cleared", rep.PointersCleared),
		slog.Int("pointers_set", rep.PointersSet),
		slog.Int("admin_flags_fixed", rep.AdminFlagsFixed),
		slog.Int("conflicting", rep.Conflicting),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed),
	)
	return rep, nil
}

// reconcileProfile returns an error only when a read fails.
func (r *Reconciler) reconcileProfile(
	ctx context.Context,
	p *model.Profile,
	memberOf []string,
	adminOf func(context.Context, string) (string, error),
	rep *Report,
) error {
	rep.CheckedProfiles++

	var want *string
	switch {
	case p.InCommunity() && slices.Contains(memberOf, *p.CommunityID):
		want = p.CommunityID
		if len(memberOf) > 1 {
			rep.Conflicting++
		}
	case len(memberOf) == 1:
		want = &memberOf[0]
	case len(memberOf) > 1:
		rep.Conflicting++
		r.logger.Warn("profile has several memberships and no valid pointer",
			slog.String("auth_id", p.AuthID),
			slog.Any("communities", memberOf),
		)
		return nil
	}

	wantAdmin := false
	if want != nil {
		adminID, err := adminOf(ctx, *want)
		if err != nil {
			return err
		}
		wantAdmin = adminID == p.AuthID
	}

	samePointer := (want == nil && !p.InCommunity()) ||
		(want != nil && p.InCommunity() && *want == *p.CommunityID)
	if samePointer && p.IsAdmin == wantAdmin {
		return nil
	}

	moved, err := r.movedSinceSnapshot(ctx, p, memberOf)
	if err != nil {
		return err
	}
	if moved {
		rep.Skipped++
		r.logger.Info("profile changed during pass, repair skipped", slog.String("auth_id", p.AuthID))
		return nil
	}

	if err := r.profiles.SetCommunity(ctx, p.AuthID, want, wantAdmin); err != nil {
		rep.Failed++
		r.logger.Error("repairing profile failed",
			slog.String("auth_id", p.AuthID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	switch {
	case samePointer:
		rep.AdminFlagsFixed++
	case want == nil:
		rep.PointersCleared++
	default:
		rep.PointersSet++
	}
	r.logger.Info("profile repaired",
		slog.String("auth_id", p.AuthID),
		slog.Bool("is_admin", wantAdmin),
	)
	return nil
}

// movedSinceSnapshot reports whether the user's memberships or profile
// pointer differ from what the pass decided on.
func (r *Reconciler) movedSinceSnapshot(ctx context.Context, p *model.Profile, memberOf []string) (bool, error) {
	rows, err := r.memberships.ListByUser(ctx, p.AuthID)
	if err != nil {
		return false, err
	}
	live := make([]string, 0, len(rows))
	for _, m := range rows {
		live = append(live, m.CommunityID)
	}
	if !sameSet(live, memberOf) {
		return true, nil
	}

	cur, err := r.profiles.GetByID(ctx, p.AuthID)
	if errors.Is(err, apperror.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if cur.IsAdmin != p.IsAdmin || cur.InCommunity() != p.InCommunity() {
		return true, nil
	}
	return cur.InCommunity() && *cur.CommunityID != *p.CommunityID, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
