package services

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/images"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

// Profiles serves an account to its owner and the admin listing.
type Profiles struct {
	accounts *AccountStore
	images   images.URLResolver
	logger   logging.Logger
}

func NewProfiles(accounts *AccountStore, resolver images.URLResolver, logger logging.Logger) *Profiles {
	return &Profiles{
		accounts: accounts,
		images:   resolver,
		logger:   logger.With("module", "profiles"),
	}
}

// Me returns the owner's profile. An image URL that cannot be produced is
// left out rather than failing the request.
func (p *Profiles) Me(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	a, err := p.accounts.GetByID(ctx, id)
	if err != nil {
		return models.Profile{}, err
	}

	profile := models.Profile{
		Email:           a.Email,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		Phone:           a.Phone,
		Role:            a.Role,
		IsEmailVerified: a.IsEmailVerified,
	}
	if a.Image != nil {
		url, err := p.images.URL(ctx, *a.Image)
		if err != nil {
			p.logger.Warn(ctx, "image url failed", "account_id", id, "error", err)
		} else {
			profile.URLImage = &url
		}
	}
	return profile, nil
}

// Patch updates the supplied profile fields. An empty patch still checks
// that the account exists.
func (p *Profiles) Patch(ctx context.Context, id uuid.UUID, patch models.AccountPatch) error {
	if patch.Empty() {
		_, err := p.accounts.GetByID(ctx, id)
		return err
	}
	_, err := p.accounts.Patch(ctx, id, patch)
	return err
}

// List returns one page of accounts and the total count.
func (p *Profiles) List(ctx context.Context, count, offset int, desc bool) (models.AccountPage, error) {
	items, err := p.accounts.List(ctx, count, offset, desc)
	if err != nil {
		return models.AccountPage{}, err
	}
	total, err := p.accounts.Count(ctx)
	if err != nil {
		return models.AccountPage{}, err
	}

	page := models.AccountPage{Total: total, Items: make([]models.AccountSummary, 0, len(items))}
	for i := range items {
		page.Items = append(page.Items, items[i].Summary())
	}
	return page, nil
}

// UpdateImage records a new profile image for the account.
func (p *Profiles) UpdateImage(ctx context.Context, id uuid.UUID, fileName string) error {
	return p.accounts.UpdateImage(ctx, id, fileName)
}
