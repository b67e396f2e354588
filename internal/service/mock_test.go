package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/repository"
	"github.com/slapit/slapit-api/internal/store"
)

// =========================================================================
// MOCK REPOSITORIES
// =========================================================================
//
// In-memory stand-ins for the rowstore repositories. They reproduce the
// store's observable behavior: unique and foreign-key refusals come back as
// *store.ConstraintError, missing rows as apperror.NotFound. Each mock has
// fail* fields to inject an error into one call, which is how the partial
// failure paths of the sagas are exercised.

var errStoreDown = errors.New("connection reset by peer")

const (
	adminID = "11111111-1111-4111-8111-111111111111"
	userID  = "22222222-2222-4222-8222-222222222222"
	otherID = "33333333-3333-4333-8333-333333333333"
	ghostID = "99999999-9999-4999-8999-999999999999"
)

type fakeDB struct {
	mu          sync.Mutex
	communities map[string]model.Community
	memberships map[[2]string]model.Membership
	profiles    map[string]model.Profile
	stickers    map[string]model.Sticker
	calls       int // store calls of any kind
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		communities: make(map[string]model.Community),
		memberships: make(map[[2]string]model.Membership),
		profiles:    make(map[string]model.Profile),
		stickers:    make(map[string]model.Sticker),
	}
}

func fkError(table store.Table, msg string) error {
	return &store.ConstraintError{Kind: store.ForeignKey, Table: table, Message: msg}
}

func uniqueError(table store.Table, msg string) error {
	return &store.ConstraintError{Kind: store.Unique, Table: table, Message: msg}
}

// --- communities ---

type mockCommunities struct {
	db         *fakeDB
	failCreate error
	failGet    error
}

func (m *mockCommunities) Create(_ context.Context, c *model.Community) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if m.failCreate != nil {
		return m.failCreate
	}
	if _, ok := m.db.profiles[c.AdminID]; !ok {
		return fkError(store.Communities, "admin_id references missing profile")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.db.communities[c.ID] = *c
	return nil
}

func (m *mockCommunities) GetByID(_ context.Context, id string) (*model.Community, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if m.failGet != nil {
		return nil, m.failGet
	}
	c, ok := m.db.communities[id]
	if !ok {
		return nil, apperror.NotFound("community", id)
	}
	return &c, nil
}

// --- memberships ---

type mockMemberships struct {
	db         *fakeDB
	failCreate error
	failDelete error
	failList   error
}

func (m *mockMemberships) Create(_ context.Context, ms *model.Membership) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if m.failCreate != nil {
		return m.failCreate
	}
	if _, ok := m.db.communities[ms.CommunityID]; !ok {
		return fkError(store.Memberships, "community_id references missing community")
	}
	if _, ok := m.db.profiles[ms.UserID]; !ok {
		return fkError(store.Memberships, "user_id references missing profile")
	}
	key := [2]string{ms.CommunityID, ms.UserID}
	if _, ok := m.db.memberships[key]; ok {
		return uniqueError(store.Memberships, "duplicate key value violates unique constraint \"user_communities_pkey\"")
	}
	m.db.memberships[key] = *ms
	return nil
}

func (m *mockMemberships) Delete(_ context.Context, communityID, userID string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if m.failDelete != nil {
		return m.failDelete
	}
	key := [2]string{communityID, userID}
	if _, ok := m.db.memberships[key]; !ok {
		return apperror.NotFound("membership", communityID+"/"+userID)
	}
	delete(m.db.memberships, key)
	return nil
}

func (m *mockMemberships) ListByUser(_ context.Context, userID string) ([]model.Membership, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	var out []model.Membership
	for k, ms := range m.db.memberships {
		if k[1] == userID {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (m *mockMemberships) List(_ context.Context) ([]model.Membership, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]model.Membership, 0, len(m.db.memberships))
	for _, ms := range m.db.memberships {
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID+out[i].CommunityID < out[j].UserID+out[j].CommunityID })
	return out, nil
}

func (m *mockMemberships) has(communityID, userID string) bool {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	_, ok := m.db.memberships[[2]string{communityID, userID}]
	return ok
}

// --- profiles ---

type mockProfiles struct {
	db *fakeDB

	// atomic selects whether IncrementCounters works or reports
	// ErrAtomicIncrementUnsupported, like the PostgREST store.
	atomic bool

	failSetCommunity  error
	failIncrement     error
	failGet           error
	updateMatchesNone bool
	setCommunityCalls int

	// beforeList and afterList run outside the lock around List, so they
	// can drive the services while a reconciliation pass is paging.
	beforeList func()
	afterList  func()
}

func (m *mockProfiles) Create(_ context.Context, p *model.Profile) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if _, ok := m.db.profiles[p.AuthID]; ok {
		return uniqueError(store.Profiles, "duplicate key value violates unique constraint \"profiles_pkey\"")
	}
	m.db.profiles[p.AuthID] = *p
	return nil
}

func (m *mockProfiles) GetByID(_ context.Context, authID string) (*model.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if m.failGet != nil {
		return nil, m.failGet
	}
	p, ok := m.db.profiles[authID]
	if !ok {
		return nil, apperror.NotFound("profile", authID)
	}
	return &p, nil
}

func (m *mockProfiles) Update(_ context.Context, authID string, patch model.ProfilePatch) (*model.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	p, ok := m.db.profiles[authID]
	if !ok || m.updateMatchesNone {
		return nil, apperror.NotFound("profile", authID)
	}
	if patch.Username != nil {
		p.Username = *patch.Username
	}
	if patch.AvatarURL != nil {
		p.AvatarURL = clearable(*patch.AvatarURL)
	}
	if patch.Bio != nil {
		p.Bio = clearable(*patch.Bio)
	}
	m.db.profiles[authID] = p
	return &p, nil
}

func (m *mockProfiles) SetCommunity(_ context.Context, authID string, communityID *string, isAdmin bool) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	m.setCommunityCalls++
	if m.failSetCommunity != nil {
		return m.failSetCommunity
	}
	p, ok := m.db.profiles[authID]
	if !ok {
		return apperror.NotFound("profile", authID)
	}
	if communityID != nil {
		c := *communityID
		communityID = &c
	}
	p.CommunityID = communityID
	p.IsAdmin = isAdmin
	m.db.profiles[authID] = p
	return nil
}

func (m *mockProfiles) ListByCommunity(_ context.Context, communityID string) ([]model.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	out := []model.Profile{}
	for _, p := range m.db.profiles {
		if p.CommunityID != nil && *p.CommunityID == communityID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProfiles) List(ctx context.Context, opts repository.ListOptions) ([]model.Profile, error) {
	if m.beforeList != nil {
		m.beforeList()
	}
	page, err := m.list(ctx, opts)
	if m.afterList != nil {
		m.afterList()
	}
	return page, err
}

func (m *mockProfiles) list(_ context.Context, opts repository.ListOptions) ([]model.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	all := make([]model.Profile, 0, len(m.db.profiles))
	for _, p := range m.db.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AuthID < all[j].AuthID })
	if opts.Offset >= len(all) {
		return []model.Profile{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (m *mockProfiles) IncrementCounters(_ context.Context, authID string, stickers, score int64) (*model.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if m.failIncrement != nil {
		return nil, m.failIncrement
	}
	if !m.atomic {
		return nil, repository.ErrAtomicIncrementUnsupported
	}
	p, ok := m.db.profiles[authID]
	if !ok {
		return nil, apperror.NotFound("profile", authID)
	}
	p.TotalStickers += stickers
	p.Score += score
	m.db.profiles[authID] = p
	return &p, nil
}

func (m *mockProfiles) SetCounters(_ context.Context, authID string, total, score int64) (*model.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	p, ok := m.db.profiles[authID]
	if !ok {
		return nil, apperror.NotFound("profile", authID)
	}
	p.TotalStickers = total
	p.Score = score
	m.db.profiles[authID] = p
	return &p, nil
}

// clearable mirrors the row store: an empty string is written as NULL.
func clearable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// --- stickers ---

type mockStickers struct {
	db         *fakeDB
	failCreate error
}

func (m *mockStickers) Create(_ context.Context, st *model.Sticker) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if m.failCreate != nil {
		return m.failCreate
	}
	if _, ok := m.db.communities[st.CommunityID]; !ok {
		return fkError(store.Stickers, "insert or update on table \"stickers\" violates foreign key constraint \"stickers_community_id_fkey\"")
	}
	if _, ok := m.db.profiles[st.AuthID]; !ok {
		return fkError(store.Stickers, "insert or update on table \"stickers\" violates foreign key constraint \"stickers_auth_id_fkey\"")
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	m.db.stickers[st.ID] = *st
	return nil
}

func (m *mockStickers) GetByID(_ context.Context, id string) (*model.Sticker, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	st, ok := m.db.stickers[id]
	if !ok {
		return nil, apperror.NotFound("sticker", id)
	}
	return &st, nil
}

func (m *mockStickers) Delete(_ context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	if _, ok := m.db.stickers[id]; !ok {
		return apperror.NotFound("sticker", id)
	}
	delete(m.db.stickers, id)
	return nil
}

func (m *mockStickers) ListByUser(_ context.Context, authID string, opts repository.ListOptions) ([]model.Sticker, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.calls++
	var out []model.Sticker
	for _, st := range m.db.stickers {
		if st.AuthID == authID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Offset >= len(out) {
		return []model.Sticker{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// =========================================================================
// TEST FIXTURE
// =========================================================================

type fixture struct {
	db          *fakeDB
	communities *mockCommunities
	memberships *mockMemberships
	profiles    *mockProfiles
	stickers    *mockStickers

	registry   *CommunityService
	ledger     *ProfileService
	intake     *StickerService
	reconciler *Reconciler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newFakeDB()
	f := &fixture{
		db:          db,
		communities: &mockCommunities{db: db},
		memberships: &mockMemberships{db: db},
		profiles:    &mockProfiles{db: db, atomic: true},
		stickers:    &mockStickers{db: db},
	}
	logger := testLogger()
	f.registry = NewCommunityService(f.communities, f.memberships, f.profiles, logger)
	f.ledger = NewProfileService(f.profiles, logger)
	f.intake = NewStickerService(f.stickers, f.ledger, logger)
	f.reconciler = NewReconciler(f.communities, f.memberships, f.profiles, logger)
	return f
}

// seedProfile stores a profile directly, bypassing the services.
func (f *fixture) seedProfile(t *testing.T, authID string) {
	t.Helper()
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.profiles[authID] = model.Profile{AuthID: authID, Username: "user-" + authID[:4]}
}

func (f *fixture) profile(t *testing.T, authID string) model.Profile {
	t.Helper()
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.profiles[authID]
	if !ok {
		t.Fatalf("profile %s missing", authID)
	}
	return p
}

func (f *fixture) storeCalls() int {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.calls
}

// createCommunity runs the full create saga for a seeded admin.
func (f *fixture) createCommunity(t *testing.T, admin string) *model.Community {
	t.Helper()
	c, err := f.registry.Create(context.Background(), "Test", nil, admin)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return c
}
