// Package rowstore implements the repository interfaces on top of a
// store.Store, so the same repositories work against sqlite, postgres and
// PostgREST.
//
// ROWS IN, MODELS OUT:
// A store.Row is a map of column name to whatever the backend produced.
// Each repository turns a model into a Row on the way in and decodes Rows
// back into models on the way out (codec.go). The decoders accept every
// shape a backend hands back for a column: sqlite gives int64 for a
// boolean, lib/pq gives time.Time for a timestamp, PostgREST gives float64
// for every number and strings for timestamps.
//
// NOT FOUND:
// A Get, Update or Delete that touches zero rows becomes
// apperror.NotFound here, so services never look at row counts.
package rowstore

import (
	"github.com/slapit/slapit-api/internal/store"
)

// Store hands out the typed repositories. All of them share one store.Store.
type Store struct {
	s store.Store
}

func New(s store.Store) *Store {
	return &Store{s: s}
}

func (st *Store) Communities() *CommunityRepo { return &CommunityRepo{s: st.s} }

func (st *Store) Memberships() *MembershipRepo { return &MembershipRepo{s: st.s} }

func (st *Store) Profiles() *ProfileRepo { return &ProfileRepo{s: st.s} }

func (st *Store) Stickers() *StickerRepo { return &StickerRepo{s: st.s} }
