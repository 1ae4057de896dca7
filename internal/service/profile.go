package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/repository"
)

// ProfileUpdate is a partial update; nil fields are left untouched.
// Role and email are deliberately absent: both are immutable here.
type ProfileUpdate struct {
	FirstName         *string                   `json:"firstName,omitempty"`
	LastName          *string                   `json:"lastName,omitempty"`
	PhoneNumber       *string                   `json:"phoneNumber,omitempty"`
	MaritalStatus     *string                   `json:"maritalStatus,omitempty"`
	LGA               *string                   `json:"lga,omitempty"`
	State             *string                   `json:"state,omitempty"`
	Country           *string                   `json:"country,omitempty"`
	EmergencyContacts []model.EmergencyContact  `json:"emergencyContacts,omitempty"`
	Specialty         *string                   `json:"specialty,omitempty"`
	FacilityID        *string                   `json:"facilityId,omitempty"`
}

// GeoLocationInput carries the caller-settable fields of a geo entry.
type GeoLocationInput struct {
	Category     string  `json:"category"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	LocationName string  `json:"locationName"`
	Description  string  `json:"description,omitempty"`
}

// ProfileService defines profile reads, partial updates and geo sub-document operations.
type ProfileService interface {
	// Get loads a profile by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// Update applies a partial update and recomputes profileStatus.
	Update(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*model.Profile, error)
	// AddGeoLocation appends a geo entry with a fresh sub-document id.
	AddGeoLocation(ctx context.Context, userID uuid.UUID, in GeoLocationInput) (*model.Profile, error)
	// UpdateGeoLocation edits an existing geo entry by sub-document id.
	UpdateGeoLocation(ctx context.Context, userID, locID uuid.UUID, in GeoLocationInput) (*model.Profile, error)
	// RemoveGeoLocation deletes a geo entry by sub-document id.
	RemoveGeoLocation(ctx context.Context, userID, locID uuid.UUID) (*model.Profile, error)
}

type ProfileServiceImpl struct {
	profiles repository.ProfileRepository
}

// NewProfileService constructs ProfileService.
func NewProfileService(profiles repository.ProfileRepository) *ProfileServiceImpl {
	return &ProfileServiceImpl{profiles: profiles}
}

// Get loads a profile by ID.
func (s *ProfileServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty id", errs.ErrValidation)
	}
	return s.profiles.GetByID(ctx, id)
}

// Update applies non-nil fields, recomputes profileStatus, and saves.
// The stored status is never trusted: Refresh runs on every save.
func (s *ProfileServiceImpl) Update(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*model.Profile, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	setIf := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setIf(&p.FirstName, upd.FirstName)
	setIf(&p.LastName, upd.LastName)
	setIf(&p.PhoneNumber, upd.PhoneNumber)
	setIf(&p.MaritalStatus, upd.MaritalStatus)
	setIf(&p.LGA, upd.LGA)
	setIf(&p.State, upd.State)
	setIf(&p.Country, upd.Country)
	setIf(&p.Specialty, upd.Specialty)
	setIf(&p.FacilityID, upd.FacilityID)
	if upd.EmergencyContacts != nil {
		p.EmergencyContacts = upd.EmergencyContacts
	}

	p.Refresh()
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddGeoLocation appends an entry; the array is unbounded.
func (s *ProfileServiceImpl) AddGeoLocation(ctx context.Context, userID uuid.UUID, in GeoLocationInput) (*model.Profile, error) {
	if err := validateGeo(in); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	locID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p.GeoLocations = append(p.GeoLocations, model.GeoLocation{
		ID:           locID,
		Category:     in.Category,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		LocationName: in.LocationName,
		Description:  in.Description,
	})
	p.Refresh()
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateGeoLocation edits the entry with the given sub-document id.
func (s *ProfileServiceImpl) UpdateGeoLocation(ctx context.Context, userID, locID uuid.UUID, in GeoLocationInput) (*model.Profile, error) {
	if err := validateGeo(in); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range p.GeoLocations {
		if p.GeoLocations[i].ID == locID {
			p.GeoLocations[i] = model.GeoLocation{
				ID:           locID,
				Category:     in.Category,
				Latitude:     in.Latitude,
				Longitude:    in.Longitude,
				LocationName: in.LocationName,
				Description:  in.Description,
			}
			found = true
			break
		}
	}
	if !found {
		return nil, errs.ErrNotFound
	}
	p.Refresh()
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RemoveGeoLocation deletes the entry with the given sub-document id.
func (s *ProfileServiceImpl) RemoveGeoLocation(ctx context.Context, userID, locID uuid.UUID) (*model.Profile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range p.GeoLocations {
		if p.GeoLocations[i].ID == locID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errs.ErrNotFound
	}
	p.GeoLocations = append(p.GeoLocations[:idx], p.GeoLocations[idx+1:]...)
	p.Refresh()
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func validateGeo(in GeoLocationInput) error {
	if in.LocationName == "" {
		return fmt.Errorf("%w: empty locationName", errs.ErrValidation)
	}
	if in.Latitude < -90 || in.Latitude > 90 {
		return fmt.Errorf("%w: latitude out of range", errs.ErrValidation)
	}
	if in.Longitude < -180 || in.Longitude > 180 {
		return fmt.Errorf("%w: longitude out of range", errs.ErrValidation)
	}
	return nil
}
