package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/slapit/slapit-api/internal/apperror"
)

// Validation limits.
const (
	MaxCommunityNameLength = 100
	MaxDescriptionLength   = 1000
	MaxUsernameLength      = 50
	MaxTitleLength         = 100
	DefaultListLimit       = 20
	MaxListLimit           = 100
)

// requireID checks that v is a UUID and returns it in canonical form
// (lower case, hyphenated). Community, sticker and user ids are all UUIDs
// (user ids come from the auth provider). uuid.Parse also takes braces,
// urn:uuid: and bare hex; postgres casts all of those to the same id, so
// they are rewritten before any comparison or store call.
func requireID(field, v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return "", apperror.ValidationFailed(field, field+" must be a UUID")
	}
	return id.String(), nil
}

// requireText trims v and checks it is non-empty and at most max bytes.
func requireText(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if len(v) > max {
		return "", apperror.ValidationFailed(field, fmt.Sprintf("%s must be %d characters or less", field, max))
	}
	return v, nil
}

func validateCoordinates(long, lat float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return apperror.ValidationFailed("lat", "lat must be between -90 and 90")
	}
	if math.IsNaN(long) || math.IsInf(long, 0) || long < -180 || long > 180 {
		return apperror.ValidationFailed("long", "long must be between -180 and 180")
	}
	return nil
}

// clampPage applies the list defaults: limit in [1, MaxListLimit], offset >= 0.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
