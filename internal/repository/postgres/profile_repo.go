package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ProfileRepo implements ProfileRepository using PostgreSQL. Sub-documents
// (emergency contacts, geo locations) are stored as jsonb columns.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileCols = `id, email, role, pwd_hash, salt_auth, first_name, last_name, phone_number,
marital_status, lga, state, country, emergency_contacts, geo_locations,
specialty, facility_id, profile_status, missing_fields, created_at, updated_at`

// Create inserts a new profile row.
func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	contacts, locations, missing, err := marshalSubdocs(p)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO profiles (id, email, role, pwd_hash, salt_auth, first_name, last_name, phone_number,
	marital_status, lga, state, country, emergency_contacts, geo_locations,
	specialty, facility_id, profile_status, missing_fields)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err = r.db.Pool.Exec(ctx, q,
		p.ID, p.Email, string(p.Role), p.PwdHash, p.SaltAuth,
		p.FirstName, p.LastName, p.PhoneNumber, p.MaritalStatus,
		p.LGA, p.State, p.Country, contacts, locations,
		p.Specialty, p.FacilityID, string(p.ProfileStatus), missing,
	)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a profile by ID.
func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	q := fmt.Sprintf(`SELECT %s FROM profiles WHERE id=$1`, profileCols)
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects a profile by email.
func (r *ProfileRepo) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	q := fmt.Sprintf(`SELECT %s FROM profiles WHERE email=$1`, profileCols)
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, email))
}

// Update writes mutable fields. Role, email and credentials are not touched;
// profile_status/missing_fields carry the caller's recomputed values.
func (r *ProfileRepo) Update(ctx context.Context, p *model.Profile) error {
	contacts, locations, missing, err := marshalSubdocs(p)
	if err != nil {
		return err
	}
	const q = `
UPDATE profiles
SET first_name=$2, last_name=$3, phone_number=$4, marital_status=$5,
    lga=$6, state=$7, country=$8, emergency_contacts=$9, geo_locations=$10,
    specialty=$11, facility_id=$12, profile_status=$13, missing_fields=$14,
    updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q,
		p.ID, p.FirstName, p.LastName, p.PhoneNumber, p.MaritalStatus,
		p.LGA, p.State, p.Country, contacts, locations,
		p.Specialty, p.FacilityID, string(p.ProfileStatus), missing,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListByScope returns profiles matching a geographic predicate. National scope
// matches every profile regardless of the value argument.
func (r *ProfileRepo) ListByScope(ctx context.Context, scope model.NotificationScope, value string) ([]model.Profile, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch scope {
	case model.ScopeLGA:
		rows, err = r.db.Pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM profiles WHERE lga=$1`, profileCols), value)
	case model.ScopeState:
		rows, err = r.db.Pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM profiles WHERE state=$1`, profileCols), value)
	case model.ScopeNational:
		rows, err = r.db.Pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM profiles`, profileCols))
	default:
		return nil, errs.ErrInvalidScope
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func marshalSubdocs(p *model.Profile) (contacts, locations, missing []byte, err error) {
	if contacts, err = json.Marshal(p.EmergencyContacts); err != nil {
		return nil, nil, nil, err
	}
	if locations, err = json.Marshal(p.GeoLocations); err != nil {
		return nil, nil, nil, err
	}
	if missing, err = json.Marshal(p.MissingFields); err != nil {
		return nil, nil, nil, err
	}
	return contacts, locations, missing, nil
}

func (r *ProfileRepo) scanOne(row pgx.Row) (*model.Profile, error) {
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var (
		p                            model.Profile
		role, status                 string
		contacts, locations, missing []byte
	)
	if err := row.Scan(
		&p.ID, &p.Email, &role, &p.PwdHash, &p.SaltAuth,
		&p.FirstName, &p.LastName, &p.PhoneNumber, &p.MaritalStatus,
		&p.LGA, &p.State, &p.Country, &contacts, &locations,
		&p.Specialty, &p.FacilityID, &status, &missing,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Role = model.Role(role)
	p.ProfileStatus = model.ProfileStatus(status)
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &p.EmergencyContacts); err != nil {
			return nil, err
		}
	}
	if len(locations) > 0 {
		if err := json.Unmarshal(locations, &p.GeoLocations); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &p.MissingFields); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
