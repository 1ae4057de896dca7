// Package service contains application services for authentication and profiles.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/carebridge/carebridge/internal/crypto"
	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/limiter"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/repository"
)

// RegisterPayload is the plaintext carried inside a registration's
// encryptedData field. The password never travels or returns in clear
// outside this envelope.
type RegisterPayload struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role,omitempty"`
}

// AuthService defines registration and login operations.
type AuthService interface {
	// RegisterEncrypted decrypts an encrypted registration envelope and
	// creates the profile. Decryption failure aborts the registration.
	RegisterEncrypted(ctx context.Context, encryptedData string) (*model.Profile, error)
	// Register creates a profile from a plaintext payload.
	Register(ctx context.Context, p RegisterPayload) (*model.Profile, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.Profile, error)
}

type AuthServiceImpl struct {
	profiles      repository.ProfileRepository
	privateKeyPEM string
	signKey       []byte
	accessTTL     time.Duration
	lim           limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(profiles repository.ProfileRepository, privateKeyPEM string, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{
		profiles:      profiles,
		privateKeyPEM: privateKeyPEM,
		signKey:       signKey,
		accessTTL:     accessTTL,
		lim:           lim,
	}
}

// RegisterEncrypted decrypts the envelope with the server's private key and
// delegates to Register. A padding or key mismatch fails the whole operation.
func (s *AuthServiceImpl) RegisterEncrypted(ctx context.Context, encryptedData string) (*model.Profile, error) {
	if encryptedData == "" {
		return nil, fmt.Errorf("%w: empty encryptedData", errs.ErrValidation)
	}
	var p RegisterPayload
	if err := pkgcrypto.Decrypt(encryptedData, s.privateKeyPEM, &p); err != nil {
		return nil, err
	}
	return s.Register(ctx, p)
}

// Register validates the payload and creates a profile with a hashed password.
// Role defaults to user and is immutable afterwards.
func (s *AuthServiceImpl) Register(ctx context.Context, p RegisterPayload) (*model.Profile, error) {
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	if p.Email == "" || p.Password == "" {
		return nil, fmt.Errorf("%w: empty email/password", errs.ErrValidation)
	}
	if p.Role == "" {
		p.Role = model.RoleUser
	}
	if !p.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", errs.ErrValidation, p.Role)
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	saltAuth, err := pkgcrypto.RandBytes(16)
	if err != nil {
		return nil, err
	}

	prof := &model.Profile{
		ID:       uid,
		Email:    p.Email,
		Role:     p.Role,
		PwdHash:  pkgcrypto.HashPassword([]byte(p.Password), saltAuth),
		SaltAuth: saltAuth,
	}
	prof.Refresh()

	if err := s.profiles.Create(ctx, prof); err != nil {
		return nil, err
	}
	return prof, nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.Profile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.Profile{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Profile{}, errs.ErrRateLimited
	}

	p, err := s.profiles.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), p.SaltAuth, p.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Profile{}, errs.ErrRateLimited
		}
		// hide account existence on wrong password or missing user
		return model.Tokens{}, model.Profile{}, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email, ipHash)

	access, exp, err := s.issueAccessToken(p.ID, p.Role)
	if err != nil {
		return model.Tokens{}, model.Profile{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *p, nil
}

// sessionClaims carry the role alongside registered claims.
type sessionClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID, role model.Role) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: string(role),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// ParseAccessToken validates a session token and returns its subject and role.
func ParseAccessToken(token string, signKey []byte) (uuid.UUID, model.Role, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errs.ErrUnauthorized
		}
		return signKey, nil
	})
	if err != nil {
		return uuid.Nil, "", errs.ErrUnauthorized
	}
	uid, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, "", errs.ErrUnauthorized
	}
	return uid, model.Role(claims.Role), nil
}
