package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/service"
)

type ctxKey string

const sessionKey ctxKey = "cb.session"

// Session identifies the authenticated caller.
type Session struct {
	UserID uuid.UUID
	Role   model.Role
}

// WithSession stores the authenticated session in context.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromCtx fetches the session from context.
func SessionFromCtx(ctx context.Context) (Session, bool) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return Session{}, false
	}
	sess, ok := v.(Session)
	return sess, ok
}

// authMiddleware validates the bearer token and injects the session.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeErr(w, errs.ErrUnauthorized)
			return
		}
		uid, role, err := service.ParseAccessToken(token, s.signKey)
		if err != nil {
			writeErr(w, errs.ErrUnauthorized)
			return
		}
		ctx := WithSession(r.Context(), Session{UserID: uid, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireHealthWorker gates handlers on the health-worker role.
func (s *Server) requireHealthWorker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromCtx(r.Context())
		if !ok {
			writeErr(w, errs.ErrUnauthorized)
			return
		}
		if sess.Role != model.RoleHealthWorker {
			writeErr(w, errs.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware emits one structured line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("dur", time.Since(start)),
			zap.String("remote", clientIP(r)),
		)
	})
}

// recoverMiddleware converts panics into 500s.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic",
					zap.Any("reason", rec),
					zap.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, "unexpected error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
