// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Role discriminates profile subtypes. Immutable after registration.
type Role string

const (
	RoleUser         Role = "user"
	RoleHealthWorker Role = "health_worker"
)

// Valid reports whether r is a known role tag.
func (r Role) Valid() bool { return r == RoleUser || r == RoleHealthWorker }

// ProfileStatus is derived from required-field presence, never set directly.
type ProfileStatus string

const (
	StatusComplete   ProfileStatus = "Complete"
	StatusIncomplete ProfileStatus = "Incomplete"
)

// PresenceStatus is the online/offline indicator kept in the realtime store.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// EncryptedBlob is an opaque Base64 ciphertext produced by the cipher layer.
type EncryptedBlob string

// GeoLocation is a profile sub-document; ID is unique within the array.
type GeoLocation struct {
	ID           uuid.UUID `json:"id"`
	Category     string    `json:"category"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	LocationName string    `json:"locationName"`
	Description  string    `json:"description,omitempty"`
}

// EmergencyContact is a named phone contact attached to a profile.
type EmergencyContact struct {
	Name         string `json:"name"`
	PhoneNumber  string `json:"phoneNumber"`
	Relationship string `json:"relationship,omitempty"`
}

// Profile is the authoritative identity record for a user or health worker.
// HealthWorker-only fields live on the shared struct and stay zero for users;
// the role tag is validated at the boundary and never changes post-creation.
type Profile struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	PwdHash  []byte    `json:"-"`
	SaltAuth []byte    `json:"-"`

	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	PhoneNumber   string `json:"phoneNumber"`
	MaritalStatus string `json:"maritalStatus"`

	LGA     string `json:"lga"`
	State   string `json:"state"`
	Country string `json:"country"`

	EmergencyContacts []EmergencyContact `json:"emergencyContacts"`
	GeoLocations      []GeoLocation      `json:"geoLocations"`

	// Health-worker extension.
	Specialty  string `json:"specialty,omitempty"`
	FacilityID string `json:"facilityId,omitempty"`

	ProfileStatus ProfileStatus `json:"profileStatus"`
	MissingFields []string      `json:"missingFields,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ComputeProfileStatus derives completeness from required fields. Callers must
// assign the result on every save; the stored value is never trusted as input.
func ComputeProfileStatus(p *Profile) (ProfileStatus, []string) {
	var missing []string
	if p.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if p.LastName == "" {
		missing = append(missing, "lastName")
	}
	if p.PhoneNumber == "" {
		missing = append(missing, "phoneNumber")
	}
	if len(p.EmergencyContacts) == 0 {
		missing = append(missing, "emergencyContacts")
	}
	if p.MaritalStatus == "" {
		missing = append(missing, "maritalStatus")
	}
	if len(missing) > 0 {
		return StatusIncomplete, missing
	}
	return StatusComplete, nil
}

// Refresh recomputes ProfileStatus and MissingFields in place.
func (p *Profile) Refresh() {
	p.ProfileStatus, p.MissingFields = ComputeProfileStatus(p)
}

// PresenceRecord is a derived, best-effort indicator keyed by identity id.
// It is not authoritative for identity data; lost updates are acceptable.
type PresenceRecord struct {
	UserID     uuid.UUID      `json:"userId"`
	Status     PresenceStatus `json:"status"`
	LastActive time.Time      `json:"lastActive"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// NotificationScope targets a notification at a person or a geography.
type NotificationScope string

const (
	ScopePersonal NotificationScope = "personal"
	ScopeLGA      NotificationScope = "lga"
	ScopeState    NotificationScope = "state"
	ScopeNational NotificationScope = "national"
)

// RelatedRef points a notification at the document that caused it.
type RelatedRef struct {
	Model string    `json:"model"`
	ID    uuid.UUID `json:"id"`
}

// Notification is one fan-out target; status only ever flips unread -> read.
type Notification struct {
	ID         uuid.UUID         `json:"id"`
	UserID     uuid.UUID         `json:"userId"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Scope      NotificationScope `json:"scope"`
	ScopeValue string            `json:"scopeValue,omitempty"`
	Read       bool              `json:"read"`
	RelatedTo  *RelatedRef       `json:"relatedTo,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
