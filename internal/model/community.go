// Package model defines the data structures used throughout the application.
//
// Field names follow the columns of the remote store (snake_case JSON), so a
// row fetched from the store and a model encoded to JSON look the same to
// the mobile client.
package model

import "time"

// Community is a named group with exactly one admin, who is also a member.
type Community struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	AdminID     string    `json:"admin_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership is one row of the user_communities join table. At most one row
// exists per (community, user) pair and its existence is what makes the user
// a member.
type Membership struct {
	CommunityID string    `json:"community_id"`
	UserID      string    `json:"user_id"`
	JoinedAt    time.Time `json:"joined_at"`
}
