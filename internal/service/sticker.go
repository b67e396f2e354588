package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/repository"
	"github.com/slapit/slapit-api/internal/store"
)

// StickerLedger credits a poster for a new sticker. *ProfileService
// implements it.
type StickerLedger interface {
	RecordSticker(ctx context.Context, authID string) (*model.Profile, error)
}

// StickerService is the Sticker Intake.
type StickerService struct {
	stickers repository.StickerRepository
	ledger   StickerLedger
	logger   *slog.Logger
	now      func() time.Time
}

func NewStickerService(stickers repository.StickerRepository, ledger StickerLedger, logger *slog.Logger) *StickerService {
	return &StickerService{
		stickers: stickers,
		ledger:   ledger,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewSticker is the input of Create.
type NewSticker struct {
	CommunityID string
	Title       string
	Description string
	ImageURL    string
	Long        float64
	Lat         float64
	AuthID      string
}

// Create validates and stores a sticker, then credits the poster:
//
//  1. sticker.insert
//  2. profile.record_sticker
//
// Input errors are reported before any store call. A constraint refusal of
// the insert (unknown community or poster, malformed id) is InvalidInput with
// the store's message. If crediting fails the sticker stays, uncredited, and
// is returned together with the *apperror.PartialFailure.
func (s *StickerService) Create(ctx context.Context, in NewSticker) (*model.Sticker, error) {
	var err error
	if in.CommunityID, err = requireID("community_id", in.CommunityID); err != nil {
		return nil, err
	}
	if in.AuthID, err = requireID("auth_id", in.AuthID); err != nil {
		return nil, err
	}
	title, err := requireText("title", in.Title, MaxTitleLength)
	if err != nil {
		return nil, err
	}
	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL == "" {
		return nil, apperror.ValidationFailed("image_url", "image_url is required")
	}
	description := strings.TrimSpace(in.Description)
	if len(description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description", "description is too long")
	}
	if err := validateCoordinates(in.Long, in.Lat); err != nil {
		return nil, err
	}

	sticker := &model.Sticker{
		CommunityID: in.CommunityID,
		Title:       title,
		Description: description,
		ImageURL:    imageURL,
		Long:        in.Long,
		Lat:         in.Lat,
		AuthID:      in.AuthID,
		CreatedAt:   s.now(),
	}

	run := startSaga(s.logger, "sticker.create")

	err = run.step(ctx, "sticker.insert", func(ctx context.Context) error {
		err := s.stickers.Create(ctx, sticker)
		if ce, ok := store.AsConstraint(err); ok {
			return apperror.UpstreamConstraint(ce.Message)
		}
		return classify(s.logger, "creating sticker", err)
	})
	if err != nil {
		return nil, run.finish(err)
	}

	err = run.step(ctx, "profile.record_sticker", func(ctx context.Context) error {
		_, err := s.ledger.RecordSticker(ctx, in.AuthID)
		return err
	})
	return sticker, run.finish(err)
}

func (s *StickerService) Get(ctx context.Context, id string) (*model.Sticker, error) {
	var err error
	if id, err = requireID("id", id); err != nil {
		return nil, err
	}
	st, err := s.stickers.GetByID(ctx, id)
	if err != nil {
		return nil, classify(s.logger, "getting sticker", err)
	}
	return st, nil
}

// Delete removes the sticker. Deleting nothing is NotFound. The poster's
// counters are lifetime totals and are not decremented.
func (s *StickerService) Delete(ctx context.Context, id string) error {
	var err error
	if id, err = requireID("id", id); err != nil {
		return err
	}
	if err := s.stickers.Delete(ctx, id); err != nil {
		return classify(s.logger, "deleting sticker", err)
	}
	s.logger.Info("sticker deleted", slog.String("id", id))
	return nil
}

// ListByUser returns the user's stickers newest first. limit defaults to
// DefaultListLimit and is capped at MaxListLimit.
func (s *StickerService) ListByUser(ctx context.Context, authID string, limit, offset int) ([]model.Sticker, error) {
	var err error
	if authID, err = requireID("auth_id", authID); err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)

	list, err := s.stickers.ListByUser(ctx, authID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, classify(s.logger, "listing stickers", err)
	}
	return list, nil
}
