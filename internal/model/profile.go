package model

import "time"

// Profile is the per-user record. AuthID equals the identity issued by the
// external auth provider.
//
// CommunityID is a cached copy of the user's membership: the membership row
// is authoritative, and every operation that changes membership rewrites
// this pointer in the same sequence of calls.
type Profile struct {
	AuthID        string     `json:"auth_id"`
	Username      string     `json:"username"`
	AvatarURL     *string    `json:"avatar_url"`
	Bio           *string    `json:"bio"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login"`
	CommunityID   *string    `json:"community_id"`
	IsAdmin       bool       `json:"is_admin"`
	TotalStickers int64      `json:"total_stickers"`
	Score         int64      `json:"score"`
}

// InCommunity reports whether the profile currently points at a community.
func (p *Profile) InCommunity() bool {
	return p.CommunityID != nil && *p.CommunityID != ""
}

// ProfilePatch carries the user-editable fields of a profile. A nil field is
// left untouched; an empty AvatarURL or Bio clears the column.
type ProfilePatch struct {
	Username  *string `json:"username"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.AvatarURL == nil && p.Bio == nil
}
