package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"petadopt/internal/auth"
	"petadopt/internal/model"
	"petadopt/internal/service"

	"go.uber.org/zap"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Details []service.Problem `json:"details,omitempty"`
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, code int, errCode, message string, log *zap.Logger) {
	writeErrorResponse(w, code, ErrorResponse{Error: errCode, Code: errCode, Message: message}, log)
}

func writeErrorResponse(w http.ResponseWriter, code int, resp ErrorResponse, log *zap.Logger) {
	if code >= 500 {
		log.Error("API error", zap.String("code", resp.Code), zap.String("message", resp.Message))
	} else {
		log.Debug("API error", zap.String("code", resp.Code), zap.String("message", resp.Message))
	}
	writeJSON(w, code, resp)
}

// writeServiceError maps a service error to its status code.
func writeServiceError(w http.ResponseWriter, err error, log *zap.Logger) {
	if errors.Is(err, context.Canceled) {
		return
	}

	code := service.Code(err)
	resp := ErrorResponse{Error: code, Code: code, Message: err.Error()}
	var status int
	switch code {
	case service.CodeValidation:
		status = http.StatusBadRequest
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			resp.Details = verr.Problems
		}
	case service.CodeForbidden:
		status = http.StatusForbidden
	case service.CodeNotFound:
		status = http.StatusNotFound
	case service.CodeConflict:
		status = http.StatusConflict
	case service.CodePersistence:
		status = http.StatusServiceUnavailable
		log.Error("Persistence failure", zap.Error(err))
		resp.Message = "storage temporarily unavailable"
	default:
		status = http.StatusInternalServerError
		log.Error("Unhandled error", zap.Error(err))
		resp.Message = "internal error"
	}
	writeErrorResponse(w, status, resp, log)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, log *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", log)
		return false
	}
	return true
}

// requireSession returns the authenticated session or writes 401.
func requireSession(w http.ResponseWriter, r *http.Request, log *zap.Logger) (model.Session, bool) {
	sess, ok := auth.SessionFrom(r.Context())
	if !ok || sess.UserID == "" {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", log)
		return model.Session{}, false
	}
	return sess, true
}

// activeOrganization rejects requests whose X-Organization-ID names an
// organization the caller does not belong to.
func (d Dependencies) activeOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := auth.SessionFrom(r.Context())
		if ok && sess.ActiveOrganizationID != "" {
			if _, err := d.Organizations.RequireMembership(r.Context(), sess); err != nil {
				writeServiceError(w, err, d.Log)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs HTTP requests and responses
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip wrapping for WebSocket upgrades - they need direct access to ResponseWriter
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
