// Package session resolves the device's current user and facility. The
// current facility drives sync-group purges and the overdue list, and is
// read on nearly every request, so lookups are cached briefly.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/repository"
)

const currentFacilityKey = "current_facility"

type Provider struct {
	users      repository.UserRepository
	facilities repository.FacilityRepository
	userUUID   uuid.UUID
	cache      *cache.Cache
}

func NewProvider(users repository.UserRepository, facilities repository.FacilityRepository, userUUID uuid.UUID) *Provider {
	return &Provider{
		users:      users,
		facilities: facilities,
		userUUID:   userUUID,
		cache:      cache.New(time.Minute, 5*time.Minute),
	}
}

func (p *Provider) UserUUID() uuid.UUID { return p.userUUID }

// CurrentFacility returns the facility the device is operating as.
func (p *Provider) CurrentFacility(ctx context.Context) (*model.Facility, error) {
	if cached, ok := p.cache.Get(currentFacilityKey); ok {
		f := cached.(model.Facility)
		return &f, nil
	}

	facilityUUID, err := p.users.CurrentFacilityUUID(ctx, p.userUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current facility: %w", err)
	}
	facility, err := p.facilities.Get(ctx, facilityUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current facility: %w", err)
	}

	p.cache.SetDefault(currentFacilityKey, *facility)
	return facility, nil
}

// SwitchFacility changes the current facility and invalidates the cache.
// The caller is expected to trigger a sync-group purge afterwards.
func (p *Provider) SwitchFacility(ctx context.Context, facilityUUID uuid.UUID) (*model.Facility, error) {
	facility, err := p.facilities.Get(ctx, facilityUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facility: %w", err)
	}
	if err := p.users.SetCurrentFacility(ctx, p.userUUID, facilityUUID); err != nil {
		return nil, err
	}
	p.cache.Delete(currentFacilityKey)
	return facility, nil
}
