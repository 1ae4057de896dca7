// Package http exposes the REST API: authentication, profiles, presence and
// notifications, plus health and metrics endpoints.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/notify"
	"github.com/carebridge/carebridge/internal/presence"
	"github.com/carebridge/carebridge/internal/repository"
	"github.com/carebridge/carebridge/internal/service"
)

// Server wires application services into HTTP handlers.
type Server struct {
	auth          service.AuthService
	profiles      service.ProfileService
	notifications repository.NotificationRepository
	dispatcher    *notify.Dispatcher
	presence      *presence.Synchronizer
	signKey       []byte
	log           *zap.Logger
}

// New builds a Server over the given services.
func New(auth service.AuthService, profiles service.ProfileService, notifications repository.NotificationRepository, dispatcher *notify.Dispatcher, pres *presence.Synchronizer, signKey []byte, log *zap.Logger) *Server {
	return &Server{
		auth:          auth,
		profiles:      profiles,
		notifications: notifications,
		dispatcher:    dispatcher,
		presence:      pres,
		signKey:       signKey,
		log:           log,
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/profile", s.handleGetProfile)
			r.Patch("/profile", s.handleUpdateProfile)
			r.Post("/profile/locations", s.handleAddLocation)
			r.Patch("/profile/locations/{locID}", s.handleUpdateLocation)
			r.Delete("/profile/locations/{locID}", s.handleRemoveLocation)

			r.Post("/presence", s.handlePresence)

			r.Get("/notifications", s.handleListNotifications)
			r.Patch("/notifications/{id}/read", s.handleMarkRead)
			r.With(s.requireHealthWorker).Post("/notifications", s.handleCreateNotification)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "ok", nil)
}

type registerRequest struct {
	EncryptedData string `json:"encryptedData"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	profile, err := s.auth.RegisterEncrypted(r.Context(), req.EncryptedData)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "registered", profile)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string         `json:"accessToken"`
	ExpiresAt   int64          `json:"expiresAt"`
	Profile     *model.Profile `json:"profile"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	tokens, profile, err := s.auth.LoginWithIP(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	s.presence.Online(r.Context(), profile.Role, profile.ID)
	s.presence.LogActivity(r.Context(), profile.ID, "login")
	writeJSON(w, http.StatusOK, "logged in", loginResponse{
		AccessToken: tokens.AccessToken,
		ExpiresAt:   tokens.ExpiresAt.Unix(),
		Profile:     &profile,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromCtx(r.Context())
	profile, err := s.profiles.Get(r.Context(), sess.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "profile", profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromCtx(r.Context())
	var upd service.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeErr(w, err)
		return
	}
	profile, err := s.profiles.Update(r.Context(), sess.UserID, upd)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "profile updated", profile)
}

func (s *Server) handleAddLocation(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromCtx(r.Context())
	var in service.GeoLocationInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	profile, err := s.profiles.AddGeoLocation(r.Context(), sess.UserID, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "location added", profile)
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromCtx(r.Context())
	locID, err := uuid.FromString(chi.URLParam(r, "locID"))
	if err != nil {
		writeErr(w, errs.ErrValidation)
		return
	}
	var in service.GeoLocationInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	profile, err := s.profiles.UpdateGeoLocation(r.Context(), sess.UserID, locID, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "location updated", profile)
}

func (s *Server) handleRemoveLocation(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromCtx(r.Context())
	locID, err := uuid.FromString(chi.URLParam(r, "locID"))
	if err != nil {
		writeErr(w, errs.ErrValidation)
		return
	}
	profile, err := s.profiles.RemoveGeoLocation(r.Context(), sess.UserID, locID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "location removed", profile)
}

type presenceRequest struct {
	Status model.PresenceStatus `json:"status"`
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromCtx(r.Context())
	var req presenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	switch req.Status {
	case model.PresenceOnline:
		s.presence.Online(r.Context(), sess.Role, sess.UserID)
	case model.PresenceOffline:
		s.presence.Offline(r.Context(), sess.Role, sess.UserID)
	default:
		writeErr(w, errs.ErrValidation)
		return
	}
	s.presence.LogActivity(r.Context(), sess.UserID, "presence:"+string(req.Status))
	writeJSON(w, http.StatusOK, "presence updated", nil)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromCtx(r.Context())
	list, err := s.notifications.ListByUser(r.Context(), sess.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "notifications", list)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromCtx(r.Context())
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, errs.ErrValidation)
		return
	}
	if err := s.notifications.MarkRead(r.Context(), sess.UserID, id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "notification read", nil)
}

type createNotificationRequest struct {
	Scope      model.NotificationScope `json:"scope"`
	ScopeValue string                  `json:"scopeValue,omitempty"`
	UserID     *uuid.UUID              `json:"userId,omitempty"`
	Type       string                  `json:"type"`
	Title      string                  `json:"title"`
	Message    string                  `json:"message"`
	RelatedTo  *model.RelatedRef       `json:"relatedTo,omitempty"`
}

type createNotificationResponse struct {
	Delivered int         `json:"delivered"`
	IDs       []uuid.UUID `json:"ids"`
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	payload := notify.Payload{
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		RelatedTo: req.RelatedTo,
	}

	if req.Scope == model.ScopePersonal {
		if req.UserID == nil {
			writeErr(w, errs.ErrValidation)
			return
		}
		id, err := s.dispatcher.Create(r.Context(), *req.UserID, payload)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, "notification created", createNotificationResponse{
			Delivered: 1,
			IDs:       []uuid.UUID{id},
		})
		return
	}

	ids, err := s.dispatcher.CreateScoped(r.Context(), req.Scope, req.ScopeValue, payload)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "notifications created", createNotificationResponse{
		Delivered: len(ids),
		IDs:       ids,
	})
}
