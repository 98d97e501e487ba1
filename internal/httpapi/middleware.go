package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SamiSolomon/mobile/internal/service"
	"github.com/SamiSolomon/mobile/internal/store"
	"github.com/SamiSolomon/mobile/internal/xid"
)

const maxBodyBytes = 1 << 20

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID"},
	{"Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS"},
	{"Vary", "Origin"},
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireAuth admits callers whose token carries one of roles and puts
// them on the request context for the service layer.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		if !slices.Contains(roles, actor.Role) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = xid.New("req")
		}
		h := w.Header()
		h.Set("X-Request-ID", requestID)
		h.Set("Access-Control-Allow-Origin", a.allowedOrigin)
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if isMutation(r.Method) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			if !csrfExempt[r.URL.Path] && !a.csrf.valid(strings.TrimSpace(r.Header.Get("X-CSRF-Token")), time.Now()) {
				a.writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
				return
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		a.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"elapsed_ms": time.Since(start).Milliseconds(),
		}).Info("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// decodeJSON rejects unknown fields and trailing data.
func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON value")
	}
	return nil
}

// parsePositiveLimit falls back on missing or non-positive input and caps at max.
func parsePositiveLimit(raw string, fallback int, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		n = fallback
	}
	return min(n, max)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err)
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError logs 5xx causes and sends the client a generic message instead.
func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		a.log.WithError(err).WithField("status", status).Error("internal error")
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
