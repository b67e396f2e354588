package model

import "time"

// Sticker is a geotagged image post, owned by a community and a poster.
type Sticker struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Long        float64   `json:"long"`
	Lat         float64   `json:"lat"`
	AuthID      string    `json:"auth_id"`
	CreatedAt   time.Time `json:"created_at"`
}
