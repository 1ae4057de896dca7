package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/notify"
	"github.com/carebridge/carebridge/internal/presence"
	"github.com/carebridge/carebridge/internal/service"
)

var testSignKey = []byte("test-sign-key")

type fakeAuthSvc struct {
	registered *model.Profile
	regErr     error
	loginErr   error
	profile    model.Profile
}

func (f *fakeAuthSvc) RegisterEncrypted(_ context.Context, encryptedData string) (*model.Profile, error) {
	if encryptedData == "" {
		return nil, errs.ErrValidation
	}
	return f.registered, f.regErr
}

func (f *fakeAuthSvc) Register(_ context.Context, _ service.RegisterPayload) (*model.Profile, error) {
	return f.registered, f.regErr
}

func (f *fakeAuthSvc) LoginWithIP(_ context.Context, _, _, _ string) (model.Tokens, model.Profile, error) {
	if f.loginErr != nil {
		return model.Tokens{}, model.Profile{}, f.loginErr
	}
	return model.Tokens{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, f.profile, nil
}

type fakeProfileSvc struct {
	profile *model.Profile
	err     error
}

func (f *fakeProfileSvc) Get(_ context.Context, _ uuid.UUID) (*model.Profile, error) {
	return f.profile, f.err
}

func (f *fakeProfileSvc) Update(_ context.Context, _ uuid.UUID, _ service.ProfileUpdate) (*model.Profile, error) {
	return f.profile, f.err
}

func (f *fakeProfileSvc) AddGeoLocation(_ context.Context, _ uuid.UUID, _ service.GeoLocationInput) (*model.Profile, error) {
	return f.profile, f.err
}

func (f *fakeProfileSvc) UpdateGeoLocation(_ context.Context, _, _ uuid.UUID, _ service.GeoLocationInput) (*model.Profile, error) {
	return f.profile, f.err
}

func (f *fakeProfileSvc) RemoveGeoLocation(_ context.Context, _, _ uuid.UUID) (*model.Profile, error) {
	return f.profile, f.err
}

type fakeNotifStore struct {
	created []model.Notification
	list    []model.Notification
	readErr error
	listErr error
}

func (f *fakeNotifStore) Create(_ context.Context, n *model.Notification) error {
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeNotifStore) ListByUser(_ context.Context, _ uuid.UUID) ([]model.Notification, error) {
	return f.list, f.listErr
}

func (f *fakeNotifStore) MarkRead(_ context.Context, _, _ uuid.UUID) error {
	return f.readErr
}

type fakeProfilesRepo struct {
	byScope []model.Profile
}

func (f *fakeProfilesRepo) Create(_ context.Context, _ *model.Profile) error { return nil }
func (f *fakeProfilesRepo) GetByID(_ context.Context, _ uuid.UUID) (*model.Profile, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeProfilesRepo) GetByEmail(_ context.Context, _ string) (*model.Profile, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeProfilesRepo) Update(_ context.Context, _ *model.Profile) error { return nil }
func (f *fakeProfilesRepo) ListByScope(_ context.Context, _ model.NotificationScope, _ string) ([]model.Profile, error) {
	return f.byScope, nil
}

type fakeRedis struct {
	hsetCalls  int
	lpushCalls int
}

func (f *fakeRedis) HSet(ctx context.Context, _ string, _ ...any) *redis.IntCmd {
	f.hsetCalls++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) HGetAll(ctx context.Context, _ string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	cmd.SetVal(map[string]string{})
	return cmd
}

func (f *fakeRedis) LPush(ctx context.Context, _ string, _ ...any) *redis.IntCmd {
	f.lpushCalls++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

type harness struct {
	srv    *Server
	router http.Handler
	auth   *fakeAuthSvc
	prof   *fakeProfileSvc
	notifs *fakeNotifStore
	rdb    *fakeRedis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	uid := uuid.Must(uuid.NewV4())
	profile := &model.Profile{ID: uid, Email: "a@b.c", Role: model.RoleUser}

	auth := &fakeAuthSvc{registered: profile, profile: *profile}
	prof := &fakeProfileSvc{profile: profile}
	notifs := &fakeNotifStore{}
	rdb := &fakeRedis{}
	pres := presence.New(rdb, zap.NewNop())
	disp := notify.New(&fakeProfilesRepo{byScope: []model.Profile{*profile}}, notifs, nil, zap.NewNop())

	srv := New(auth, prof, notifs, disp, pres, testSignKey, zap.NewNop())
	return &harness{srv: srv, router: srv.Router(), auth: auth, prof: prof, notifs: notifs, rdb: rdb}
}

func signToken(t *testing.T, uid uuid.UUID, role model.Role) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  uid.String(),
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSignKey)
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, h *harness, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"encryptedData": "deadbeef",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@b.c")

	rec = doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "a@b.c", "password": "pw",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accessToken")
	// login marks the user online
	assert.Equal(t, 1, h.rdb.hsetCalls)
	assert.Equal(t, 1, h.rdb.lpushCalls)
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)
	h.auth.loginErr = errs.ErrUnauthorized

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "a@b.c", "password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, h.rdb.hsetCalls)
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t)
	h.auth.loginErr = errs.ErrRateLimited

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "a@b.c", "password": "pw",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileRequiresAuth(t *testing.T) {
	h := newHarness(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetProfile(t *testing.T) {
	h := newHarness(t)
	tok := signToken(t, h.prof.profile.ID, model.RoleUser)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/profile", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@b.c")
	// the password hash must never serialize
	assert.NotContains(t, rec.Body.String(), "pwdHash")
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)
	tok := signToken(t, h.prof.profile.ID, model.RoleUser)

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/profile", tok, map[string]string{
		"firstName": "Ada",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// unknown fields are rejected
	rec = doJSON(t, h, http.MethodPatch, "/api/v1/profile", tok, map[string]string{
		"role": "health_worker",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocationBadID(t *testing.T) {
	h := newHarness(t)
	tok := signToken(t, h.prof.profile.ID, model.RoleUser)

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/profile/locations/not-a-uuid", tok, map[string]any{
		"category": "home", "latitude": 1.0, "longitude": 2.0, "locationName": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/profile/locations/not-a-uuid", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocationNotFound(t *testing.T) {
	h := newHarness(t)
	h.prof.err = errs.ErrNotFound
	tok := signToken(t, h.prof.profile.ID, model.RoleUser)

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/profile/locations/"+uuid.Must(uuid.NewV4()).String(), tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresenceToggle(t *testing.T) {
	h := newHarness(t)
	tok := signToken(t, h.prof.profile.ID, model.RoleUser)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/presence", tok, map[string]string{"status": "online"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/presence", tok, map[string]string{"status": "offline"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, h.rdb.hsetCalls)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/presence", tok, map[string]string{"status": "away"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNotifications(t *testing.T) {
	h := newHarness(t)
	h.notifs.list = []model.Notification{{ID: uuid.Must(uuid.NewV4()), Title: "clinic day"}}
	tok := signToken(t, h.prof.profile.ID, model.RoleUser)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/notifications", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic day")
}

func TestMarkReadNotFound(t *testing.T) {
	h := newHarness(t)
	h.notifs.readErr = errs.ErrNotFound
	tok := signToken(t, h.prof.profile.ID, model.RoleUser)

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/notifications/"+uuid.Must(uuid.NewV4()).String()+"/read", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateNotificationRoleGate(t *testing.T) {
	h := newHarness(t)

	userTok := signToken(t, h.prof.profile.ID, model.RoleUser)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/notifications", userTok, map[string]any{
		"scope": "national", "type": "info", "title": "t", "message": "m",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	hwTok := signToken(t, uuid.Must(uuid.NewV4()), model.RoleHealthWorker)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/notifications", hwTok, map[string]any{
		"scope": "national", "type": "info", "title": "t", "message": "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, h.notifs.created, 1)
}

func TestCreateNotificationPersonal(t *testing.T) {
	h := newHarness(t)
	hwTok := signToken(t, uuid.Must(uuid.NewV4()), model.RoleHealthWorker)

	// personal scope needs an explicit recipient
	rec := doJSON(t, h, http.MethodPost, "/api/v1/notifications", hwTok, map[string]any{
		"scope": "personal", "type": "info", "title": "t", "message": "m",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	target := uuid.Must(uuid.NewV4())
	rec = doJSON(t, h, http.MethodPost, "/api/v1/notifications", hwTok, map[string]any{
		"scope": "personal", "userId": target.String(), "type": "info", "title": "t", "message": "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, h.notifs.created, 1)
	assert.Equal(t, target, h.notifs.created[0].UserID)
}

func TestInvalidScope(t *testing.T) {
	h := newHarness(t)
	hwTok := signToken(t, uuid.Must(uuid.NewV4()), model.RoleHealthWorker)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/notifications", hwTok, map[string]any{
		"scope": "galaxy", "type": "info", "title": "t", "message": "m",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
